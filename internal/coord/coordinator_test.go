package coord

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/fetch"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/geo"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/lexicon"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/metrics"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/model"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/otel"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/store"
)

// mockFetcher implements the fetcher interface for testing.
type mockFetcher struct {
	mu          sync.Mutex
	fetchedSrcs []fetch.Source
	results     map[string]fetch.Result // by source name
	errs        map[string]error
	fetchDelay  time.Duration
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (m *mockFetcher) Fetch(ctx context.Context, src fetch.Source) (fetch.Result, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		cur := m.maxInFlight.Load()
		if n <= cur || m.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	if m.fetchDelay > 0 {
		select {
		case <-ctx.Done():
			return fetch.Result{}, ctx.Err()
		case <-time.After(m.fetchDelay):
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchedSrcs = append(m.fetchedSrcs, src)
	return m.results[src.Name], m.errs[src.Name]
}

func (m *mockFetcher) fetchedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.fetchedSrcs)
}

func incident(id, title string) model.Incident {
	return model.Incident{ID: id, Title: title, Text: "drone sighting reported", Timestamp: time.Date(2025, 11, 4, 0, 0, 0, 0, time.UTC)}
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFetchAllStoresAndReports(t *testing.T) {
	s := openStore(t)
	r, err := geo.NewResolver(lexicon.Default().Locations())
	if err != nil {
		t.Fatal(err)
	}

	mock := &mockFetcher{
		results: map[string]fetch.Result{
			"A": {Seen: 5, Incidents: []model.Incident{incident("a1", "Drones over Schiphol"), incident("a2", "Drone near Volkel")}},
			"B": {Seen: 2, Incidents: []model.Incident{incident("a1", "Drones over Schiphol")}},
		},
		errs: map[string]error{"C": errors.New("timeout")},
	}
	var events bytes.Buffer
	ev := otel.NewLogger(&events)
	m := metrics.New()

	c := New(s, mock, r, []fetch.Source{{Name: "A"}, {Name: "B"}, {Name: "C"}}, Options{Events: ev, Metrics: m})
	outs := c.FetchAll(context.Background())
	ev.Close()

	if len(outs) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outs))
	}
	if outs[0].Source != "A" || outs[0].Seen != 5 || outs[0].Matched != 2 {
		t.Errorf("A outcome = %+v", outs[0])
	}
	// a1 is shared between A and B: exactly one of them stores it.
	if total := outs[0].New + outs[1].New; total != 2 {
		t.Errorf("new incidents = %d, want 2", total)
	}
	if outs[2].Err == nil {
		t.Error("C should report its error")
	}

	stored, err := s.Incidents(time.Time{})
	if err != nil || len(stored) != 2 {
		t.Fatalf("stored = %d, %v", len(stored), err)
	}
	labels := map[string]string{}
	for _, inc := range stored {
		labels[inc.ID] = inc.Location.Label
	}
	if labels["a1"] != "Amsterdam Schiphol Airport" || labels["a2"] != "Volkel Air Base" {
		t.Errorf("labels = %v", labels)
	}

	log := events.String()
	for _, want := range []string{`"fetch.complete"`, `"fetch.error"`} {
		if !strings.Contains(log, want) {
			t.Errorf("events missing %s", want)
		}
	}
}

func TestFetchAllRespectsConcurrencyLimit(t *testing.T) {
	s := openStore(t)
	mock := &mockFetcher{fetchDelay: 20 * time.Millisecond}

	var sources []fetch.Source
	for _, n := range []string{"1", "2", "3", "4", "5", "6"} {
		sources = append(sources, fetch.Source{Name: n})
	}
	c := New(s, mock, nil, sources, Options{Concurrency: 2})
	c.FetchAll(context.Background())

	if got := mock.maxInFlight.Load(); got > 2 {
		t.Errorf("max in flight = %d, want <= 2", got)
	}
	if mock.fetchedCount() != 6 {
		t.Errorf("fetched %d sources, want 6", mock.fetchedCount())
	}
}

func TestFetchAllCancelledContext(t *testing.T) {
	s := openStore(t)
	mock := &mockFetcher{}
	c := New(s, mock, nil, []fetch.Source{{Name: "A"}, {Name: "B"}}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outs := c.FetchAll(ctx)

	for _, o := range outs {
		if !errors.Is(o.Err, context.Canceled) {
			t.Errorf("%s err = %v, want context.Canceled", o.Source, o.Err)
		}
	}
	if mock.fetchedCount() != 0 {
		t.Errorf("fetched %d sources after cancel", mock.fetchedCount())
	}
}

func TestFetchTimeout(t *testing.T) {
	s := openStore(t)
	mock := &mockFetcher{fetchDelay: time.Second}
	c := New(s, mock, nil, []fetch.Source{{Name: "slow"}}, Options{Timeout: 20 * time.Millisecond})

	outs := c.FetchAll(context.Background())
	if !errors.Is(outs[0].Err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", outs[0].Err)
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	s := openStore(t)
	mock := &mockFetcher{results: map[string]fetch.Result{"A": {Seen: 1}}}
	c := New(s, mock, nil, []fetch.Source{{Name: "A"}}, Options{})

	var notified atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx, time.Hour, func(Outcome) { notified.Add(1) })

	deadline := time.Now().Add(2 * time.Second)
	for notified.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	done := make(chan struct{})
	go func() {
		c.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not stop after cancel")
	}
	if notified.Load() != 1 {
		t.Errorf("notified %d times, want 1 (initial cycle)", notified.Load())
	}
}
