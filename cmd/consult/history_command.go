package main

import (
	"context"
	"fmt"

	"ai-consultation-be/pkg/relay"

	"github.com/spf13/cobra"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit, offset int
	var full bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved summaries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *relay.Client) error {
				entries, err := client.ListHistory(cmd.Context(), limit, offset)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderHistory(entries, full))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries (0 for all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Entries to skip")
	cmd.Flags().BoolVar(&full, "full", false, "Show whole summaries")
	return cmd
}

func newRecentCommand(ctx *commandContext) *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List summaries kept on this machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *relay.Client) error {
				records, err := client.Cache().Recent(context.WithoutCancel(cmd.Context()))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderRecent(records, full))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "Show whole summaries")
	return cmd
}

func newWhoamiCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity and summary tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *relay.Client) error {
				me, err := client.Me(cmd.Context())
				if err != nil {
					return err
				}
				plan := me.Plan
				if plan == "" {
					plan = "-"
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"User", "Plan", "Premium", "Model", "Expires"},
					[][]string{{me.UserID, plan, fmt.Sprintf("%t", me.Premium), me.Model, me.ExpiresAt}},
					nil,
				))
				return nil
			})
		},
	}
}
