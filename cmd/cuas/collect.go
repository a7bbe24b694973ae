package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/coord"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/ingest"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/logging"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/otel"
)

func ingestCmd(e *env) *cobra.Command {
	var every time.Duration

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch incident reports from the configured feeds",
		Long: `Fetch every configured RSS/Atom feed, keep the items that read as
drone incidents and store the new ones. With --every, keep fetching
on that interval until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := e.openDB()
			if err != nil {
				return err
			}
			defer st.Close()

			c, err := e.coordinator(st, nil)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if every <= 0 {
				outs := c.FetchAll(ctx)
				printOutcomes(e.out, outs)
				if failed(outs) == len(outs) && len(outs) > 0 {
					return fmt.Errorf("all %d feeds failed", len(outs))
				}
				return nil
			}

			c.Start(ctx, every, func(o coord.Outcome) { printOutcomes(e.out, []coord.Outcome{o}) })
			<-ctx.Done()
			c.Wait()
			return nil
		},
	}
	cmd.Flags().DurationVar(&every, "every", 0, "Keep fetching on this interval (e.g. 15m)")
	return cmd
}

func failed(outs []coord.Outcome) int {
	n := 0
	for _, o := range outs {
		if o.Err != nil {
			n++
		}
	}
	return n
}

func printOutcomes(w io.Writer, outs []coord.Outcome) {
	for _, o := range outs {
		if o.Err != nil {
			fmt.Fprintf(w, "%-28s FAILED  %v\n", truncate(o.Source, 28), o.Err)
			continue
		}
		fmt.Fprintf(w, "%-28s seen %3d  matched %3d  new %3d  (%s)\n",
			truncate(o.Source, 28), o.Seen, o.Matched, o.New, o.Dur.Round(time.Millisecond))
	}
}

func importCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|glob>...",
		Short: "Import incidents, posts and channels from JSON files",
		Long: `Import JSON documents of the form

  {"incidents": [...], "posts": [...], "channels": [...]}

Arguments may be glob patterns, including ** (e.g. 'exports/**/*.json').
Unknown fields reject a file. Records that fail validation are listed
and skipped; the rest are stored. Records already stored are left
unchanged, except channels, whose metadata is updated.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := expandPaths(args)
			if err != nil {
				return err
			}
			for _, path := range paths {
				if err := runImport(e, path); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// expandPaths resolves glob patterns. Plain paths pass through unchanged so
// a missing file reports its own error.
func expandPaths(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		if !strings.ContainsAny(arg, "*?[{") {
			out = append(out, arg)
			continue
		}
		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob error: %w", err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match pattern: %s", arg)
		}
		sort.Strings(matches)
		out = append(out, matches...)
	}
	return out, nil
}

func runImport(e *env, path string) error {
	start := time.Now()
	b, err := ingest.ReadFile(path)
	if err != nil {
		e.events.Error(otel.KindImport, "cli", err)
		return err
	}

	st, err := e.openDB()
	if err != nil {
		return err
	}
	defer st.Close()

	newIncidents, err := st.SaveIncidents(b.Incidents)
	if err != nil {
		return fmt.Errorf("save incidents: %w", err)
	}
	newPosts, err := st.SavePosts(b.Posts)
	if err != nil {
		return fmt.Errorf("save posts: %w", err)
	}
	newChannels, err := st.SaveChannels(b.Channels)
	if err != nil {
		return fmt.Errorf("save channels: %w", err)
	}

	fmt.Fprintf(e.out, "Imported %s\n", path)
	fmt.Fprintf(e.out, "  incidents  %4d read  %4d new\n", len(b.Incidents), newIncidents)
	fmt.Fprintf(e.out, "  posts      %4d read  %4d new\n", len(b.Posts), newPosts)
	fmt.Fprintf(e.out, "  channels   %4d read  %4d new\n", len(b.Channels), newChannels)
	if len(b.Errors) > 0 {
		fmt.Fprintf(e.out, "Skipped %d records:\n", len(b.Errors))
		for _, re := range b.Errors {
			fmt.Fprintf(e.out, "  %v\n", re)
			e.events.Emit(otel.Event{
				Kind: otel.KindRecordSkipped, Level: otel.LevelWarn, Comp: "ingest",
				RecordID: re.RecordID, RecordKind: re.Kind, Err: re.Err.Error(),
			})
		}
	}

	stored := newIncidents + newPosts + newChannels
	logging.Info("import complete", "file", path, "new", stored, "skipped", len(b.Errors))
	e.events.Emit(otel.Event{
		Kind: otel.KindImport, Level: otel.LevelInfo, Comp: "cli",
		Source: path, Count: stored, Dur: time.Since(start),
		Extra: map[string]any{"skipped": len(b.Errors)},
	})
	return nil
}
