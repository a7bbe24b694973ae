// Package coord runs incident feed collection cycles.
package coord

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/fetch"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/geo"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/logging"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/metrics"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/model"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/otel"
)

const comp = "coord"

// fetcher interface for dependency injection (testing).
type fetcher interface {
	Fetch(ctx context.Context, src fetch.Source) (fetch.Result, error)
}

// saver is the slice of the store a cycle writes to.
type saver interface {
	SaveIncidents(incidents []model.Incident) (int, error)
}

// Outcome is what one source produced in a cycle.
type Outcome struct {
	Source  string
	Seen    int // Items in the feed
	Matched int // Items that passed the incident filter
	New     int // Incidents not stored before
	Dur     time.Duration
	Err     error
}

// Options tunes a coordinator. Zero values take defaults.
type Options struct {
	Concurrency int           // Parallel fetches, default 4
	Timeout     time.Duration // Per-fetch timeout, default 30s
	RadiusKm    float64       // Coordinate fallback for labelling incidents
	Events      *otel.Logger
	Metrics     *metrics.Metrics
}

// Coordinator fetches every source concurrently and stores what they find.
// Uses context cancellation as the ONLY stop mechanism.
type Coordinator struct {
	store    saver
	fetcher  fetcher
	resolver *geo.Resolver
	sources  []fetch.Source // IMMUTABLE: set at construction, never modified
	opts     Options
	wg       sync.WaitGroup
}

// New creates a Coordinator. resolver may be nil, in which case incidents
// are stored without a canonical label.
func New(s saver, f fetcher, resolver *geo.Resolver, sources []fetch.Source, opts Options) *Coordinator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	sourcesCopy := make([]fetch.Source, len(sources))
	copy(sourcesCopy, sources)

	return &Coordinator{
		store:    s,
		fetcher:  f,
		resolver: resolver,
		sources:  sourcesCopy,
		opts:     opts,
	}
}

// Start runs a cycle immediately and then every interval until ctx is
// cancelled. notify, when non-nil, sees every outcome.
func (c *Coordinator) Start(ctx context.Context, interval time.Duration, notify func(Outcome)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		c.notifyAll(c.FetchAll(ctx), notify)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.notifyAll(c.FetchAll(ctx), notify)
			}
		}
	}()
}

func (c *Coordinator) notifyAll(outs []Outcome, notify func(Outcome)) {
	if notify == nil {
		return
	}
	for _, o := range outs {
		notify(o)
	}
}

// Wait blocks until the background goroutine exits.
// Call after canceling the context passed to Start.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// FetchAll fetches all sources in parallel and returns one outcome per
// source, in source order. A failing source never fails the cycle.
func (c *Coordinator) FetchAll(ctx context.Context) []Outcome {
	out := make([]Outcome, len(c.sources))

	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)

	for i, src := range c.sources {
		i, src := i, src // per-iteration copies (go directive is 1.21)
		g.Go(func() error {
			if ctx.Err() != nil {
				out[i] = Outcome{Source: src.Name, Err: ctx.Err()}
				return nil
			}
			out[i] = c.fetchSource(ctx, src)
			return nil // never fail the group - errors reported per-source
		})
	}
	_ = g.Wait()
	return out
}

// fetchSource fetches and stores a single source with timeout.
func (c *Coordinator) fetchSource(ctx context.Context, src fetch.Source) Outcome {
	fetchCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	c.opts.Events.Emit(otel.Event{Kind: otel.KindFetchStart, Level: otel.LevelDebug, Comp: comp, Source: src.Name})
	start := time.Now()

	res, err := c.fetcher.Fetch(fetchCtx, src)
	o := Outcome{Source: src.Name, Seen: res.Seen, Matched: len(res.Incidents), Err: err}

	if err == nil && len(res.Incidents) > 0 {
		incidents := c.label(res.Incidents)
		o.New, o.Err = c.store.SaveIncidents(incidents)
		if o.Err != nil {
			c.opts.Events.Error(otel.KindStoreError, comp, o.Err)
		}
	}
	o.Dur = time.Since(start)

	c.opts.Metrics.FeedFetch(o.Err, o.New)
	if o.Err != nil {
		logging.Warn("feed fetch failed", "source", src.Name, "error", o.Err)
		c.opts.Events.Emit(otel.Event{
			Kind: otel.KindFetchError, Level: otel.LevelError, Comp: comp,
			Source: src.Name, Dur: o.Dur, Err: o.Err.Error(),
		})
		return o
	}
	logging.Info("feed fetched", "source", src.Name, "seen", o.Seen, "matched", o.Matched, "new", o.New)
	c.opts.Events.Emit(otel.Event{
		Kind: otel.KindFetchComplete, Level: otel.LevelInfo, Comp: comp,
		Source: src.Name, Dur: o.Dur, Count: o.New,
	})
	return o
}

// label fills in the canonical location name for incidents whose feed gave
// none, so stored incidents resolve by canonical name later.
func (c *Coordinator) label(incidents []model.Incident) []model.Incident {
	if c.resolver == nil {
		return incidents
	}
	out := make([]model.Incident, len(incidents))
	for i, inc := range incidents {
		out[i] = inc
		if inc.Location.Label != "" {
			continue
		}
		res := c.resolver.Resolve(inc.RecordText())
		if !res.OK() && inc.Location.Coords != nil && c.opts.RadiusKm > 0 {
			res = c.resolver.Nearest(inc.Location.Coords.Lat, inc.Location.Coords.Lon, c.opts.RadiusKm)
		}
		if !res.OK() {
			continue
		}
		if res.Ambiguous {
			logging.Warn("ambiguous incident location", "incident", inc.ID, "error", res.Err())
			c.opts.Events.Emit(otel.Event{
				Kind: otel.KindGeoAmbiguous, Level: otel.LevelWarn, Comp: comp,
				RecordID: inc.ID, RecordKind: string(model.KindIncident), Location: res.Place.Name,
				Msg: res.Err().Error(),
			})
			c.opts.Metrics.LocationAmbiguous()
		}
		out[i].Location.Label = res.Place.Name
	}
	return out
}
