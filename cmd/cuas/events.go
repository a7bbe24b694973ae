package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/otel"
)

func eventsCmd(e *env) *cobra.Command {
	var (
		tail    int
		follow  bool
		filter  otel.Filter
		level   string
		rawJSON bool
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "JSONL event log viewer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter.MinLevel = otel.Level(strings.ToLower(level))
			logPath := e.cfg.Events()

			f, err := os.Open(logPath)
			if err != nil {
				fmt.Fprintf(e.errOut, "  Event log not found at %s\n", logPath)
				fmt.Fprintf(e.errOut, "  Run `cuas run` or `cuas ingest` first to generate events.\n")
				return err
			}
			defer f.Close()

			lines, err := otel.ReadTail(f, tail, filter)
			if err != nil {
				return err
			}
			for _, l := range lines {
				fmt.Fprintln(e.out, formatEvent(l.Event, l.Raw, rawJSON))
			}
			if !follow {
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return followEvents(ctx, f, filter, func(ev otel.Event, raw []byte) {
				fmt.Fprintln(e.out, formatEvent(ev, raw, rawJSON))
			})
		},
	}
	cmd.Flags().IntVar(&tail, "tail", 50, "Number of recent lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow mode (like tail -f)")
	cmd.Flags().StringVar(&filter.KindPrefix, "kind", "", "Filter by event kind prefix (e.g. 'fetch')")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level: debug, info, warn, error")
	cmd.Flags().StringVar(&filter.Comp, "comp", "", "Filter by component name")
	cmd.Flags().StringVar(&filter.RunID, "run", "", "Filter by run ID")
	cmd.Flags().BoolVar(&rawJSON, "json", false, "Output raw JSON lines")
	return cmd
}

// followEvents reads events appended to f until ctx is cancelled. The
// caller has already consumed the existing content.
func followEvents(ctx context.Context, f *os.File, filter otel.Filter, emit func(otel.Event, []byte)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch event log: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(f.Name()); err != nil {
		return fmt.Errorf("watch event log: %w", err)
	}

	reader := bufio.NewReader(f)
	var partial []byte
	drain := func() error {
		for {
			chunk, err := reader.ReadBytes('\n')
			partial = append(partial, chunk...)
			if err == io.EOF {
				return nil // keep the incomplete line for the next write
			}
			if err != nil {
				return err
			}
			line := trimLine(partial)
			partial = nil
			if len(line) == 0 {
				continue
			}
			var ev otel.Event
			if json.Unmarshal(line, &ev) != nil || !filter.Match(ev) {
				continue
			}
			emit(ev, line)
		}
	}

	// Lines written between the tail read and the watch.
	if err := drain(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				return fmt.Errorf("event log %s was moved or removed", f.Name())
			}
			if event.Has(fsnotify.Write) {
				if err := drain(); err != nil {
					return err
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch event log: %w", err)
		}
	}
}

// formatEvent renders one event as a log line, or raw when asJSON is set.
func formatEvent(ev otel.Event, raw []byte, asJSON bool) string {
	if asJSON {
		return string(raw)
	}
	lvl := strings.ToUpper(string(ev.Level))
	if lvl == "" {
		lvl = "?"
	}

	parts := []string{fmt.Sprintf("%s %-5s [%-8s] %-20s", ev.Time.Format("15:04:05.000"), lvl, ev.Comp, ev.Kind)}

	if ev.Msg != "" {
		parts = append(parts, "- "+ev.Msg)
	}
	if ev.DurMs > 0 {
		parts = append(parts, fmt.Sprintf("(%.*fms)", durPrecision(ev.DurMs), ev.DurMs))
	}
	if ev.Count > 0 {
		parts = append(parts, fmt.Sprintf("n=%d", ev.Count))
	}
	if ev.RecordID != "" {
		parts = append(parts, fmt.Sprintf("%s=%s", ev.RecordKind, ev.RecordID))
	}
	if ev.Location != "" {
		parts = append(parts, fmt.Sprintf("at=%q", ev.Location))
	}
	if ev.Source != "" {
		parts = append(parts, "src="+ev.Source)
	}
	if ev.RunID != "" {
		parts = append(parts, "run="+shortRunID(ev.RunID))
	}
	if ev.Err != "" {
		parts = append(parts, "err="+ev.Err)
	}
	return strings.Join(parts, " ")
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func trimLine(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
