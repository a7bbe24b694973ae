package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/config"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/coord"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/fetch"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/geo"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/logging"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/metrics"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/pipeline"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/store"
)

// openDB opens the configured store.
func (e *env) openDB() (*store.Store, error) {
	st, err := store.Open(e.cfg.DB())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return st, nil
}

// engine builds a batch engine from the config and lexicon.
func (e *env) engine(m *metrics.Metrics, trace bool) (*pipeline.Engine, error) {
	lex, err := e.lexicon()
	if err != nil {
		return nil, err
	}
	return pipeline.New(e.cfg, lex, pipeline.Options{Events: e.events, Metrics: m, Trace: trace})
}

// coordinator builds a feed coordinator writing to st.
func (e *env) coordinator(st *store.Store, m *metrics.Metrics) (*coord.Coordinator, error) {
	lex, err := e.lexicon()
	if err != nil {
		return nil, err
	}
	resolver, err := geo.NewResolver(lex.Locations())
	if err != nil {
		return nil, err
	}
	fetcher := fetch.NewFetcher(lex, e.cfg.Fetch.Timeout, e.cfg.Fetch.Interval)
	return coord.New(st, fetcher, resolver, fetch.SourcesFrom(e.cfg.Feeds), coord.Options{
		Concurrency: e.cfg.Fetch.Concurrency,
		Timeout:     e.cfg.Fetch.Timeout,
		RadiusKm:    e.cfg.NearestRadiusKm,
		Events:      e.events,
		Metrics:     m,
	}), nil
}

// batchOptions selects the records a batch reads.
type batchOptions struct {
	now       time.Time
	sinceDays int // 0 = lookbackDays of the configured windows
}

// runBatch loads stored records, runs a batch and saves the result.
func runBatch(st *store.Store, eng *pipeline.Engine, w config.Windows, opts batchOptions) (*pipeline.Result, error) {
	now := opts.now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	days := opts.sinceDays
	if days <= 0 {
		days = lookbackDays(w)
	}
	in, err := pipeline.LoadInput(st, now.AddDate(0, 0, -days), now)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	res := eng.Run(in)
	if _, err := st.SaveRun(res.StoreRun()); err != nil {
		return res, fmt.Errorf("save run: %w", err)
	}
	logging.Info("run stored", "run_id", res.RunID, "posts", len(res.Scores), "errors", len(res.Errors))
	return res, nil
}

// lookbackDays is how far back a batch reads: the oldest post that can
// still get a prediction plus the longest correlation gap, over every
// location kind.
func lookbackDays(w config.Windows) int {
	longest := w.MaxDays + w.PredictMaxAgeDays
	for kind := range w.ByKind {
		win := w.For(kind)
		if d := win.MaxDays + win.PredictMaxAgeDays; d > longest {
			longest = d
		}
	}
	return longest
}

// parseTime accepts RFC 3339 or a plain date. Empty means zero.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339 or YYYY-MM-DD", s)
	}
	return t, nil
}

// truncate shortens a string to max runes, appending "..." if truncated.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

func durPrecision(ms float64) int {
	if ms >= 100 {
		return 0
	}
	if ms >= 1 {
		return 1
	}
	return 2
}
