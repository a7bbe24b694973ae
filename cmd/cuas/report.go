package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/coord"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/logging"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/otel"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/pipeline"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/store"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/ui"
)

// eventPanelSize is how many recent events the viewer loads.
const eventPanelSize = 200

func reportCmd(e *env) *cobra.Command {
	var (
		plain bool
		watch time.Duration
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the latest run",
		Long: `Open the report viewer on the latest stored run. Tabs list scored
posts, correlations, predictions, channel priorities and recent events.

Keys: tab/shift+tab switch tabs, b runs a batch, f fetches feeds,
r reloads, ? shows all keys, q quits.

With --plain, print the run as text tables instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := e.openDB()
			if err != nil {
				return err
			}
			defer st.Close()

			if plain {
				run, err := st.LatestRun()
				if err != nil {
					return err
				}
				return ui.RenderPlain(e.out, run)
			}
			return runViewer(cmd.Context(), e, st, watch)
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "Print text tables instead of opening the viewer")
	cmd.Flags().DurationVar(&watch, "watch", 0, "Fetch feeds in the background on this interval (e.g. 15m)")
	return cmd
}

func runViewer(parent context.Context, e *env, st *store.Store, watch time.Duration) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	eng, err := e.engine(nil, false)
	if err != nil {
		return err
	}
	coordinator, err := e.coordinator(st, nil)
	if err != nil {
		return err
	}

	// Seed the panel from the log file, then keep it current from this
	// process's own events.
	ring := otel.NewRingBuffer(eventPanelSize)
	past, err := recentEvents(e.cfg.Events(), eventPanelSize)
	if err != nil {
		logging.Warn("read event log", "path", e.cfg.Events(), "error", err)
	}
	for _, ev := range past {
		ring.Push(ev)
	}
	e.events.SetRingBuffer(ring)

	app := ui.NewApp(viewerConfig(ctx, e, st, eng, coordinator, ring))
	program := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))

	if watch > 0 {
		coordinator.Start(ctx, watch, func(o coord.Outcome) {
			program.Send(ui.FetchComplete{Source: o.Source, New: o.New, Err: o.Err})
		})
	}

	_, err = program.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		err = nil
	}
	if err != nil {
		logging.Error("viewer failed", "error", err)
	}

	// Graceful shutdown
	cancel()
	coordinator.Wait()
	return err
}

// viewerConfig wires the viewer's commands to the store, the batch engine
// and the feed coordinator.
func viewerConfig(ctx context.Context, e *env, st *store.Store, eng *pipeline.Engine, c *coord.Coordinator, ring *otel.RingBuffer) ui.AppConfig {
	return ui.AppConfig{
		LoadReport: func() tea.Cmd {
			return func() tea.Msg {
				run, err := st.LatestRun()
				return ui.ReportLoaded{Run: run, Err: err}
			}
		},
		LoadEvents: func() tea.Cmd {
			return func() tea.Msg {
				return ui.EventsLoaded{Events: ring.Last(eventPanelSize)}
			}
		},
		RunBatch: func() tea.Cmd {
			return func() tea.Msg {
				res, err := runBatch(st, eng, e.cfg.Windows, batchOptions{})
				if err != nil {
					return ui.BatchComplete{Err: err}
				}
				return ui.BatchComplete{RunID: res.RunID}
			}
		},
		TriggerFetch: func() tea.Cmd {
			return func() tea.Msg {
				outs := c.FetchAll(ctx)
				msg := ui.FetchComplete{Source: fmt.Sprintf("%d feeds", len(outs))}
				for _, o := range outs {
					msg.New += o.New
				}
				if n := failed(outs); n > 0 {
					msg.Err = fmt.Errorf("%d of %d feeds failed", n, len(outs))
				}
				return msg
			}
		},
	}
}

// recentEvents reads the last n events of the JSONL log. A missing log is
// not an error.
func recentEvents(path string, n int) ([]otel.Event, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lines, err := otel.ReadTail(f, n, otel.Filter{})
	evs := make([]otel.Event, len(lines))
	for i, l := range lines {
		evs[i] = l.Event
	}
	return evs, err
}
