package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/config"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/geo"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/lexicon"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/metrics"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/model"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/otel"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/predict"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/store"
)

var now = time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func batch() Input {
	schiphol := model.Incident{
		ID:        "i1",
		Title:     "Drone sighting halts flights",
		Text:      "Air traffic was suspended for an hour after several drones were seen.",
		Timestamp: date(2025, 11, 4),
		Location:  model.Location{Label: "Amsterdam Schiphol Airport"},
	}
	return Input{
		Incidents: []model.Incident{schiphol, schiphol},
		Posts: []model.SocialPost{
			{ID: "p1", ChannelID: "ops", Timestamp: date(2025, 10, 20), TargetLocationText: "Schiphol",
				Text: "Quick job: film drones near Schiphol airport, pay €1500 cash. Telegram contact @handler for details."},
			{ID: "p0", ChannelID: "ops", Timestamp: date(2025, 8, 1), TargetLocationText: "Schiphol",
				Text: "Quick job: film drones near Schiphol airport, pay €1500 cash."},
			{ID: "p3", ChannelID: "ops", Timestamp: now.AddDate(0, 0, -45), TargetLocationText: "Volkel",
				Text: "Need photos of the base fence, pay 300 EUR"},
			{ID: "pA", ChannelID: "ops", Timestamp: now.AddDate(0, 0, -100), Text: "recon at volkel or munich"},
			{ID: "p9", ChannelID: "ops", Timestamp: now.AddDate(0, 0, 2), TargetLocationText: "Eindhoven",
				Text: "drone job near Eindhoven airport"},
			{ID: "pE", ChannelID: "ops", Timestamp: date(2025, 11, 1), Text: "  "},
		},
		Channels: []model.Channel{
			{Username: "sabotage_ops", Title: "Ops", CreatedAt: now.AddDate(-5, 0, 0), Verified: true, Hops: model.HopCount(1)},
			{Username: "bad", Title: "Bad", CreatedAt: now.AddDate(-1, 0, 0), Category: "cartel"},
			{Username: "nodate", Title: "No date"},
		},
		Now: now,
	}
}

func newEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	e, err := New(nil, lexicon.Default(), opts)
	if err != nil {
		t.Fatalf("New() err = %v", err)
	}
	return e
}

func TestRunScenarios(t *testing.T) {
	res := newEngine(t, Options{}).Run(batch())

	t.Run("A recruitment post scores HIGH", func(t *testing.T) {
		if len(res.Scores) != 5 {
			t.Fatalf("Scores = %d, want 5", len(res.Scores))
		}
		p1 := res.Scores[1]
		if p1.PostID != "p1" {
			t.Fatalf("Scores[1] = %s, want p1 (sorted by id)", p1.PostID)
		}
		if p1.Score < 41 {
			t.Errorf("p1 score = %d, want >= 41", p1.Score)
		}
		if p1.Location != "Amsterdam Schiphol Airport" {
			t.Errorf("p1 location = %q", p1.Location)
		}
		if p1.Payment == nil || p1.Payment.Amount != 1500 {
			t.Errorf("p1 payment = %+v", p1.Payment)
		}
	})

	t.Run("B correlation within 15 days", func(t *testing.T) {
		if len(res.Correlations) != 1 {
			t.Fatalf("Correlations = %+v, want 1", res.Correlations)
		}
		c := res.Correlations[0]
		if c.PostID != "p1" || c.IncidentID != "i1" || c.DaysDelta != 15 || c.Strength != model.StrengthHigh {
			t.Errorf("correlation = %+v", c)
		}
		refs := res.Scores[1].CorrelationRefs
		if len(refs) != 1 || refs[0] != (model.CorrelationRef{IncidentID: "i1", Strength: model.StrengthHigh}) {
			t.Errorf("p1 refs = %+v", refs)
		}
	})

	t.Run("C outside window yields nothing", func(t *testing.T) {
		p0 := res.Scores[0]
		if p0.PostID != "p0" || len(p0.CorrelationRefs) != 0 {
			t.Errorf("p0 = %+v", p0)
		}
	})

	t.Run("D threat channel is TIER1", func(t *testing.T) {
		if len(res.Channels) != 1 {
			t.Fatalf("Channels = %+v", res.Channels)
		}
		ch := res.Channels[0]
		if ch.Username != "sabotage_ops" || ch.Factors.Age != 15 || ch.Factors.Verification != 10 || ch.Score < 75 || ch.Tier != model.Tier1 {
			t.Errorf("channel = %+v", ch)
		}
	})

	t.Run("E unmatched post window expired", func(t *testing.T) {
		if len(res.Predictions) != 1 {
			t.Fatalf("Predictions = %+v, want only p3", res.Predictions)
		}
		p := res.Predictions[0]
		post := now.AddDate(0, 0, -45)
		if p.PostID != "p3" || p.Location != "Volkel Air Base" {
			t.Errorf("prediction = %+v", p)
		}
		if !p.Start.Equal(post.AddDate(0, 0, 14)) || !p.End.Equal(post.AddDate(0, 0, 30)) {
			t.Errorf("window = %v..%v", p.Start, p.End)
		}
		if p.Status != model.PredictionExpired || len(p.Hypotheses) != 3 {
			t.Errorf("status = %s, hypotheses = %v", p.Status, p.Hypotheses)
		}
	})

	t.Run("record errors", func(t *testing.T) {
		want := []struct {
			kind, id string
			is       error
		}{
			{"channel", "bad", model.ErrMalformed},
			{"channel", "nodate", model.ErrMalformed},
			{"incident", "i1", ErrDuplicate},
			{"post", "p9", predict.ErrClockSkew},
			{"post", "pE", model.ErrMalformed},
		}
		if len(res.Errors) != len(want) {
			t.Fatalf("Errors = %v, want %d", res.Errors, len(want))
		}
		for i, w := range want {
			got := res.Errors[i]
			if got.Kind != w.kind || got.RecordID != w.id || !errors.Is(got, w.is) {
				t.Errorf("Errors[%d] = %v, want %s %s (%v)", i, got, w.kind, w.id, w.is)
			}
		}
	})

	t.Run("ambiguity and summary", func(t *testing.T) {
		if len(res.Ambiguous) != 1 || res.Ambiguous[0].RecordID != "pA" {
			t.Errorf("Ambiguous = %+v", res.Ambiguous)
		}
		s := res.Summary
		if s.Incidents != 1 || s.Posts != 5 || s.Channels != 1 || s.Errors != 5 || s.Ambiguous != 1 {
			t.Errorf("Summary counts = %+v", s)
		}
		if s.Strengths[model.StrengthHigh] != 1 || s.Predictions[model.PredictionExpired] != 1 || s.ChannelTiers[model.Tier1] != 1 {
			t.Errorf("Summary breakdown = %+v", s)
		}
		if res.LexiconVersion != lexicon.Default().Version() || !res.Now.Equal(now) {
			t.Errorf("header = %s %v", res.LexiconVersion, res.Now)
		}
	})
}

func TestRunReportsSkewedCorrelatedPost(t *testing.T) {
	ref := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	in := Input{
		Incidents: []model.Incident{{
			ID: "i1", Title: "Drone sighting", Text: "Flights halted after drones were seen.",
			Timestamp: ref.AddDate(0, 0, 20),
			Location:  model.Location{Label: "Amsterdam Schiphol Airport"},
		}},
		Posts: []model.SocialPost{
			{ID: "p1", ChannelID: "ops", Timestamp: ref.AddDate(0, 0, 5), TargetLocationText: "Schiphol",
				Text: "film at Schiphol"},
			{ID: "p2", ChannelID: "ops", Timestamp: ref.AddDate(0, 0, 5), TargetLocationText: "Volkel",
				Text: "film at Volkel"},
		},
		Now: ref,
	}
	res := newEngine(t, Options{}).Run(in)

	if len(res.Correlations) != 1 || res.Correlations[0].PostID != "p1" {
		t.Fatalf("Correlations = %+v", res.Correlations)
	}
	if len(res.Predictions) != 0 {
		t.Errorf("Predictions = %+v, want none for skewed posts", res.Predictions)
	}
	skewed := map[string]bool{}
	for _, re := range res.Errors {
		if errors.Is(re, predict.ErrClockSkew) {
			skewed[re.RecordID] = true
		}
	}
	if !skewed["p1"] || !skewed["p2"] {
		t.Errorf("skewed posts = %v, want p1 and p2", skewed)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	e := newEngine(t, Options{})
	a, b := e.Run(batch()), e.Run(batch())

	if a.RunID == b.RunID {
		t.Error("run ids should differ")
	}
	if !reflect.DeepEqual(a.Scores, b.Scores) {
		t.Error("scores differ between runs")
	}
	if !reflect.DeepEqual(a.Correlations, b.Correlations) {
		t.Error("correlations differ between runs")
	}
	if !reflect.DeepEqual(a.Predictions, b.Predictions) {
		t.Error("predictions differ between runs")
	}
	if !reflect.DeepEqual(a.Channels, b.Channels) {
		t.Error("channels differ between runs")
	}
	if !reflect.DeepEqual(a.Summary, b.Summary) {
		t.Error("summaries differ between runs")
	}
}

func TestNewRejectsConfiguration(t *testing.T) {
	badWindow := config.DefaultConfig()
	badWindow.Windows.HighDays = badWindow.Windows.MaxDays + 1

	collision, err := lexicon.Parse([]byte(`
version: "collide"
weights: {payment_offer: 25, recruitment_call: 20, intelligence_task: 20, handler_signal: 15, crypto_payment: 10, target_mention: 10}
patterns:
  payment_offer: ['pay']
  recruitment_call: ['job']
  intelligence_task: ['film']
  handler_signal: ['contact']
  crypto_payment: ['btc']
  target_mention: ['airport']
locations:
  - {name: Eindhoven Airport, kind: airport, aliases: [eindhoven]}
  - {name: Eindhoven Air Base, kind: military, aliases: [eindhoven]}
`))
	if err != nil {
		t.Fatalf("Parse() err = %v", err)
	}

	tests := []struct {
		name string
		cfg  *config.Config
		lex  *lexicon.Lexicon
		want error
	}{
		{"invalid window", badWindow, lexicon.Default(), config.ErrInvalid},
		{"alias collision", nil, collision, geo.ErrAliasCollision},
		{"no lexicon", nil, nil, lexicon.ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var events bytes.Buffer
			ev := otel.NewLogger(&events)
			_, err := New(tt.cfg, tt.lex, Options{Events: ev})
			ev.Close()
			if !errors.Is(err, tt.want) {
				t.Fatalf("New() err = %v, want %v", err, tt.want)
			}
			if !strings.Contains(events.String(), `"batch.abort"`) {
				t.Error("no batch.abort event")
			}
		})
	}
}

func TestRunEmitsEventsAndMetrics(t *testing.T) {
	var events bytes.Buffer
	ev := otel.NewLogger(&events)
	m := metrics.New()

	res := newEngine(t, Options{Events: ev, Metrics: m, Trace: true}).Run(batch())
	ev.Close()

	lines, err := otel.ReadTail(&events, 1000, otel.Filter{RunID: res.RunID})
	if err != nil {
		t.Fatal(err)
	}
	kinds := map[otel.EventKind]int{}
	for _, l := range lines {
		kinds[l.Event.Kind]++
	}
	for kind, want := range map[otel.EventKind]int{
		otel.KindBatchStart:        1,
		otel.KindRecordSkipped:     5,
		otel.KindGeoAmbiguous:      1,
		otel.KindCorrelateComplete: 1,
		otel.KindCorrelatePair:     5, // one incident x five valid posts
		otel.KindPostScored:        5,
		otel.KindBatchComplete:     1,
	} {
		if kinds[kind] != want {
			t.Errorf("%s events = %d, want %d", kind, kinds[kind], want)
		}
	}

	n, err := testutil.GatherAndCount(m.Registry(), "cuas_record_errors_total")
	if err != nil || n != 3 {
		t.Errorf("record error series = %d, %v; want 3 kinds", n, err)
	}
	n, err = testutil.GatherAndCount(m.Registry(), "cuas_correlations_total")
	if err != nil || n != 1 {
		t.Errorf("correlation series = %d, %v; want 1", n, err)
	}
}

func TestResultJSONAndStoreRun(t *testing.T) {
	res := newEngine(t, Options{}).Run(batch())

	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("Marshal() err = %v", err)
	}
	if !strings.Contains(string(data), `"error":"malformed record: duplicate id"`) {
		t.Errorf("record errors not serialized: %s", data)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	id, err := st.SaveRun(res.StoreRun())
	if err != nil || id != res.RunID {
		t.Fatalf("SaveRun() = %q, %v", id, err)
	}
	got, err := st.LatestRun()
	if err != nil || got == nil {
		t.Fatalf("LatestRun() = %v, %v", got, err)
	}
	if len(got.Scores) != 5 || len(got.Correlations) != 1 || len(got.Predictions) != 1 || len(got.Errors) != 5 {
		t.Errorf("loaded run = %d scores, %d correlations, %d predictions, %d errors",
			len(got.Scores), len(got.Correlations), len(got.Predictions), len(got.Errors))
	}
}

func TestLoadInput(t *testing.T) {
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	in := batch()
	if _, err := st.SaveIncidents(in.Incidents[:1]); err != nil {
		t.Fatal(err)
	}
	if _, err := st.SavePosts(in.Posts[:3]); err != nil {
		t.Fatal(err)
	}
	if _, err := st.SaveChannels(in.Channels[:1]); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadInput(st, time.Time{}, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Incidents) != 1 || len(loaded.Posts) != 3 || len(loaded.Channels) != 1 || !loaded.Now.Equal(now) {
		t.Fatalf("LoadInput() = %d/%d/%d", len(loaded.Incidents), len(loaded.Posts), len(loaded.Channels))
	}

	res := newEngine(t, Options{}).Run(loaded)
	if len(res.Correlations) != 1 || len(res.Predictions) != 1 || len(res.Errors) != 0 {
		t.Errorf("run over stored records = %d correlations, %d predictions, %v",
			len(res.Correlations), len(res.Predictions), res.Errors)
	}
}
