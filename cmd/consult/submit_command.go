package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"ai-consultation-be/pkg/relay"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		patient   string
		date      string
		notes     string
		notesFile string
		file      string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit notes or a file and stream the summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			sub := relay.Submission{
				PatientName: patient,
				DateOfVisit: date,
				Notes:       notes,
			}
			if notesFile != "" {
				raw, err := os.ReadFile(notesFile)
				if err != nil {
					return fmt.Errorf("read notes: %w", err)
				}
				sub.Notes = string(raw)
			}
			if file != "" {
				raw, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read file: %w", err)
				}
				sub.File = raw
				sub.FileMime = mimetype.Detect(raw).String()
			}

			return ctx.withClient(func(client *relay.Client) error {
				out := cmd.OutOrStdout()
				errOut := cmd.ErrOrStderr()
				colorize := shouldColorize(errOut)

				run, err := client.Submit(cmd.Context(), sub)
				if err != nil {
					fmt.Fprintln(errOut, renderStatus(statusError, err.Error(), colorize))
					return err
				}
				defer run.Close()

				err = run.Wait(func(chunk, _ string) {
					fmt.Fprint(out, chunk)
				})
				fmt.Fprintln(out)
				if err != nil {
					fmt.Fprintln(errOut, renderStatus(statusError, err.Error(), colorize))
					return err
				}

				reportRun(errOut, run, colorize)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&patient, "patient", "p", "", "Patient name")
	cmd.Flags().StringVarP(&date, "date", "d", "", "Date of visit (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&notes, "notes", "n", "", "Consultation notes")
	cmd.Flags().StringVar(&notesFile, "notes-file", "", "Read notes from a text file")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Attach a PDF or image")
	return cmd
}

// finishedRun is what reportRun reads from a closed relay.Run.
type finishedRun interface {
	SaveErr() error
	CacheErr() error
	Saved() *relay.HistoryEntry
	Done() *relay.Done
}

func reportRun(w io.Writer, run finishedRun, colorize bool) {
	if saveErr := run.SaveErr(); saveErr != nil {
		fmt.Fprintln(w, renderStatus(statusWarn, "summary not saved to history: "+saveErr.Error(), colorize))
	} else if saved := run.Saved(); saved != nil {
		fmt.Fprintln(w, renderStatus(statusOK, "saved to history as "+saved.ID, colorize))
	}
	if cacheErr := run.CacheErr(); cacheErr != nil {
		fmt.Fprintln(w, renderStatus(statusWarn, "summary not kept in recent summaries: "+cacheErr.Error(), colorize))
	}
	if done := run.Done(); done != nil && strings.TrimSpace(done.Model) != "" {
		fmt.Fprintln(w, renderStatus(statusInfo, "model "+done.Model, colorize))
	}
}
