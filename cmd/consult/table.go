package main

import (
	"io"
	"os"
	"strings"

	"ai-consultation-be/pkg/relay"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

const previewWidth = 60

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func renderHistory(entries []relay.HistoryEntry, full bool) string {
	if len(entries) == 0 {
		return "No saved summaries."
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.CreatedAt.Local().Format("2006-01-02 15:04"),
			e.PatientName,
			e.DateOfVisit,
			preview(e.Summary, full),
		})
	}
	return renderTable([]string{"Saved", "Patient", "Visit", "Summary"}, rows, nil)
}

func renderRecent(records []relay.Record, full bool) string {
	if len(records) == 0 {
		return "No summaries on this machine."
	}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			r.PatientName,
			r.DateOfVisit,
			preview(r.Summary, full),
		})
	}
	return renderTable([]string{"Saved", "Patient", "Visit", "Summary"}, rows, nil)
}

// preview flattens a summary onto one line and cuts it to previewWidth runes.
func preview(summary string, full bool) string {
	if full {
		return summary
	}
	flat := strings.Join(strings.Fields(summary), " ")
	runes := []rune(flat)
	if len(runes) <= previewWidth {
		return flat
	}
	return string(runes[:previewWidth-1]) + "…"
}

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

func renderStatus(kind statusKind, message string, colorize bool) string {
	var label string
	var attr color.Attribute
	switch kind {
	case statusOK:
		label, attr = "OK", color.FgGreen
	case statusWarn:
		label, attr = "WARN", color.FgYellow
	case statusError:
		label, attr = "ERROR", color.FgRed
	default:
		label, attr = "INFO", color.FgBlue
	}
	line := "[" + label + "] " + message
	if !colorize {
		return line
	}
	c := color.New(attr)
	c.EnableColor()
	return c.Sprint(line)
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
