package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/model"
)

func openMem(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

var day0 = time.Date(2025, 11, 4, 9, 30, 0, 0, time.UTC)

func TestOpenCreatesSchema(t *testing.T) {
	st := openMem(t)

	for _, table := range []string{"incidents", "posts", "channels", "runs", "post_scores", "correlations", "predictions", "channel_priorities", "record_errors"} {
		var name string
		err := st.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("%s table not created: %v", table, err)
		}
	}

	var version int
	if err := st.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("read user_version failed: %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("user_version = %d, want %d", version, SchemaVersion)
	}
}

func TestReopenFileIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cuas.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := st.SavePosts([]model.SocialPost{{ID: "p1", ChannelID: "c", Text: "hello", Timestamp: day0}}); err != nil {
		t.Fatal(err)
	}
	st.Close()

	st, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer st.Close()
	posts, err := st.Posts(time.Time{})
	if err != nil || len(posts) != 1 {
		t.Errorf("Posts() = %v, %v; want 1 post after reopen", posts, err)
	}
}

func TestSaveIncidents(t *testing.T) {
	st := openMem(t)
	incs := []model.Incident{
		{
			ID: "i1", Title: "Drones at Schiphol", Text: "Runway closed", Timestamp: day0,
			Location: model.Location{Label: "Schiphol", Coords: &model.Coordinates{Lat: 52.31, Lon: 4.76}},
			Source:   "nos", URL: "https://example.com/1",
		},
		{ID: "i0", Title: "Sighting", Text: "Lights", Timestamp: day0.Add(-48 * time.Hour)},
	}

	n, err := st.SaveIncidents(incs)
	if err != nil || n != 2 {
		t.Fatalf("SaveIncidents() = %d, %v; want 2", n, err)
	}
	n, err = st.SaveIncidents(incs)
	if err != nil || n != 0 {
		t.Errorf("second SaveIncidents() = %d, %v; want 0 new", n, err)
	}

	got, err := st.Incidents(time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "i0" || got[1].ID != "i1" {
		t.Fatalf("Incidents() = %+v, want oldest first", got)
	}
	if !got[1].Timestamp.Equal(day0) {
		t.Errorf("Timestamp = %v, want %v", got[1].Timestamp, day0)
	}
	if c := got[1].Location.Coords; c == nil || c.Lat != 52.31 {
		t.Errorf("Coords = %+v", c)
	}
	if got[0].Location.Coords != nil {
		t.Error("incident without coordinates should load nil Coords")
	}

	recent, err := st.Incidents(day0.Add(-time.Hour))
	if err != nil || len(recent) != 1 {
		t.Errorf("Incidents(since) = %d, %v; want 1", len(recent), err)
	}
}

func TestSavePostsAndSearch(t *testing.T) {
	st := openMem(t)
	posts := []model.SocialPost{
		{ID: "p1", ChannelID: "c1", Text: "Quick job: film drones near the airport", Timestamp: day0, TargetLocationText: "Schiphol",
			Payment: &model.Payment{Amount: 1500, Currency: "EUR"}},
		{ID: "p2", ChannelID: "c2", Text: "Weather is nice", Timestamp: day0.Add(time.Hour)},
	}
	if n, err := st.SavePosts(posts); err != nil || n != 2 {
		t.Fatalf("SavePosts() = %d, %v", n, err)
	}

	got, err := st.Posts(time.Time{})
	if err != nil || len(got) != 2 {
		t.Fatalf("Posts() = %v, %v", got, err)
	}
	if got[0].Payment == nil || got[0].Payment.Amount != 1500 || got[0].Payment.Currency != "EUR" {
		t.Errorf("Payment = %+v", got[0].Payment)
	}
	if got[1].Payment != nil {
		t.Errorf("post without payment loaded %+v", got[1].Payment)
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"drones", []string{"p1"}},
		{"schiphol", []string{"p1"}},
		{"weather", []string{"p2"}},
		{`"unbalanced`, nil},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			res, err := st.SearchPosts(tt.query, 10)
			if err != nil {
				t.Fatalf("SearchPosts(%q) err = %v", tt.query, err)
			}
			if len(res) != len(tt.want) {
				t.Fatalf("SearchPosts(%q) = %d results, want %d", tt.query, len(res), len(tt.want))
			}
			for i, id := range tt.want {
				if res[i].ID != id {
					t.Errorf("[%d] = %s, want %s", i, res[i].ID, id)
				}
			}
		})
	}
}

func TestSaveChannelsUpserts(t *testing.T) {
	st := openMem(t)
	ch := model.Channel{Username: "ops", Title: "Ops", CreatedAt: day0, Hops: model.HopCount(1)}

	if n, err := st.SaveChannels([]model.Channel{ch}); err != nil || n != 1 {
		t.Fatalf("SaveChannels() = %d, %v", n, err)
	}
	ch.Verified = true
	ch.Category = model.ChannelThreatActor
	if n, err := st.SaveChannels([]model.Channel{ch}); err != nil || n != 0 {
		t.Fatalf("second SaveChannels() = %d, %v; want 0 new", n, err)
	}

	got, err := st.Channels()
	if err != nil || len(got) != 1 {
		t.Fatalf("Channels() = %v, %v", got, err)
	}
	if !got[0].Verified || got[0].Category != model.ChannelThreatActor || got[0].Hops == nil || *got[0].Hops != 1 {
		t.Errorf("channel not refreshed: %+v", got[0])
	}

	inc, posts, chans, err := st.Counts()
	if err != nil || inc != 0 || posts != 0 || chans != 1 {
		t.Errorf("Counts() = %d/%d/%d, %v", inc, posts, chans, err)
	}
}

func TestChannelUnknownHops(t *testing.T) {
	st := openMem(t)
	if _, err := st.SaveChannels([]model.Channel{{Username: "fresh", Title: "Fresh", CreatedAt: day0}}); err != nil {
		t.Fatal(err)
	}
	got, err := st.Channels()
	if err != nil || len(got) != 1 {
		t.Fatalf("Channels() = %v, %v", got, err)
	}
	if got[0].Hops != nil {
		t.Errorf("Hops = %d, want nil for an unknown distance", *got[0].Hops)
	}
}

func sampleRun(id string, finished time.Time) Run {
	return Run{
		ID:             id,
		StartedAt:      finished.Add(-time.Second),
		FinishedAt:     finished,
		ReferenceTime:  finished,
		LexiconVersion: "test",
		Scores: []model.ScoredPost{
			{PostID: "p1", ChannelID: "c1", Score: 60, Tier: model.SeverityHigh,
				Categories: []model.Category{model.CategoryPayment, model.CategoryTarget},
				Payment:    &model.Payment{Amount: 1500, Currency: "EUR"}, Location: "Amsterdam Schiphol Airport"},
			{PostID: "p2", ChannelID: "c1", Score: 0, Tier: model.SeverityLow},
		},
		Correlations: []model.Correlation{{
			PostID: "p1", IncidentID: "i1", DaysDelta: 15, Strength: model.StrengthHigh,
			Basis: model.MatchBasis{Location: "Amsterdam Schiphol Airport", PostMethod: model.MatchAlias, PostTerm: "schiphol",
				IncidentMethod: model.MatchCanonical, IncidentTerm: "amsterdam schiphol airport"},
		}},
		Predictions: []model.PredictionWindow{{
			PostID: "p3", Location: "Volkel Air Base", Start: finished, End: finished.Add(24 * time.Hour),
			Status: model.PredictionExpired, AgeDays: 45,
		}},
		Channels: []model.ChannelPriority{{
			Username: "ops", Score: 95, Tier: model.Tier1, Category: model.ChannelThreatActor,
			Factors: model.Factors{CategoryRisk: 40, GraphProximity: 30, Age: 15, Verification: 10},
		}},
		Errors: []RecordError{{RecordID: "p9", Kind: "post", Error: "malformed record: empty text"}},
	}
}

func TestSaveAndLoadRun(t *testing.T) {
	st := openMem(t)

	if r, err := st.LatestRun(); err != nil || r != nil {
		t.Fatalf("LatestRun() on empty store = %v, %v", r, err)
	}

	id, err := st.SaveRun(sampleRun("", day0))
	if err != nil {
		t.Fatalf("SaveRun() err = %v", err)
	}
	if len(id) != 36 {
		t.Errorf("generated run id %q is not a uuid", id)
	}

	r, err := st.LatestRun()
	if err != nil || r == nil {
		t.Fatalf("LatestRun() = %v, %v", r, err)
	}
	if r.ID != id || r.LexiconVersion != "test" || !r.FinishedAt.Equal(day0) {
		t.Errorf("run header = %+v", r)
	}
	if len(r.Scores) != 2 || len(r.Scores[0].Categories) != 2 || r.Scores[0].Payment == nil {
		t.Fatalf("Scores = %+v", r.Scores)
	}
	if len(r.Scores[0].CorrelationRefs) != 1 || r.Scores[0].CorrelationRefs[0].IncidentID != "i1" {
		t.Errorf("CorrelationRefs = %+v", r.Scores[0].CorrelationRefs)
	}
	if len(r.Scores[1].Categories) != 0 {
		t.Errorf("empty categories loaded as %v", r.Scores[1].Categories)
	}
	if len(r.Correlations) != 1 || r.Correlations[0].Basis.PostMethod != model.MatchAlias {
		t.Errorf("Correlations = %+v", r.Correlations)
	}
	if len(r.Predictions) != 1 || len(r.Predictions[0].Hypotheses) != 3 {
		t.Errorf("Predictions = %+v", r.Predictions)
	}
	if len(r.Channels) != 1 || r.Channels[0].Cadence != model.CadenceHourly || r.Channels[0].Factors.Age != 15 {
		t.Errorf("Channels = %+v", r.Channels)
	}
	if len(r.Errors) != 1 || r.Errors[0].RecordID != "p9" {
		t.Errorf("Errors = %+v", r.Errors)
	}
}

func TestSaveRunReplacesCorrelations(t *testing.T) {
	st := openMem(t)

	if _, err := st.SaveRun(sampleRun("r1", day0)); err != nil {
		t.Fatal(err)
	}
	second := sampleRun("r2", day0.Add(time.Hour))
	second.Correlations = nil
	if _, err := st.SaveRun(second); err != nil {
		t.Fatal(err)
	}

	var n int
	if err := st.db.QueryRow("SELECT COUNT(*) FROM correlations").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("correlations after second run = %d, want 0", n)
	}

	sums, err := st.RunSummaries(10)
	if err != nil || len(sums) != 2 {
		t.Fatalf("RunSummaries() = %v, %v", sums, err)
	}
	if sums[0].ID != "r2" || sums[1].ID != "r1" {
		t.Errorf("order = %s, %s; want newest first", sums[0].ID, sums[1].ID)
	}
	if sums[1].Posts != 2 || sums[1].Predictions != 1 || sums[1].Channels != 1 || sums[1].Errors != 1 {
		t.Errorf("r1 summary = %+v", sums[1])
	}

	if _, err := st.SaveRun(sampleRun("r1", day0)); err == nil {
		t.Error("duplicate run id should fail")
	}
}
