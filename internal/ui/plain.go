package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/store"
)

// RenderPlain writes the run as static tables, for pipes and terminals
// without an alternate screen. Errors are listed after the tables.
func RenderPlain(w io.Writer, run *store.Run) error {
	if run == nil {
		_, err := fmt.Fprintln(w, "No run recorded. Run `cuas run` first.")
		return err
	}
	if _, err := fmt.Fprintf(w, "Run %s  reference %s  lexicon %s\n\n",
		run.ID, run.ReferenceTime.Format(time.RFC3339), run.LexiconVersion); err != nil {
		return err
	}

	for t := TabPosts; t < TabEvents; t++ {
		rows := rowsFor(t, run, nil, run.FinishedAt)
		if _, err := fmt.Fprintf(w, "%s (%d)\n", t, len(rows)); err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Fprintln(w)
			continue
		}
		if _, err := fmt.Fprintln(w, plainTable(tabColumns[t], rows)); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}

	if len(run.Errors) > 0 {
		fmt.Fprintf(w, "Record errors (%d)\n", len(run.Errors))
		for _, e := range run.Errors {
			fmt.Fprintf(w, "  %s %s: %s\n", e.Kind, e.RecordID, e.Error)
		}
	}
	return nil
}

func plainTable(cols []table.Column, rows []table.Row) string {
	headers := make([]string, len(cols))
	for i, c := range cols {
		headers[i] = c.Title
	}
	t := ltable.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)
	for _, r := range rows {
		t.Row(r...)
	}
	return t.String()
}
