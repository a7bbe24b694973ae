// Package pipeline is the batch entry point of the scoring and correlation
// core.
//
// An Engine is built once from a validated configuration and lexicon; any
// problem there is fatal before a record is touched. Run then takes one
// batch of incidents, posts and channels plus an explicit reference time
// and returns everything derived from them. Bad records are skipped and
// reported in Result.Errors, never fatal. Two runs over the same input and
// reference time produce identical results apart from the run id and
// timestamps.
package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/channel"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/config"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/correlation"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/geo"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/lexicon"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/logging"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/metrics"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/model"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/otel"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/predict"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/score"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/signal"
)

const comp = "pipeline"

// ErrDuplicate marks a record whose id was already seen in the batch.
var ErrDuplicate = fmt.Errorf("%w: duplicate id", model.ErrMalformed)

// Options wires optional observability into an Engine.
type Options struct {
	Events  *otel.Logger
	Metrics *metrics.Metrics
	Trace   bool // Emit one event per evaluated pair (also CUAS_TRACE)
}

// Engine runs batches against one configuration. It holds no per-run state
// and is safe for concurrent use.
type Engine struct {
	lex         *lexicon.Lexicon
	extractor   *signal.Extractor
	scorer      score.Scorer
	correlator  *correlation.Correlator
	predictor   *predict.Predictor
	prioritizer *channel.Prioritizer
	opts        Options
}

// New validates cfg and lex and builds an Engine. A nil cfg uses the
// defaults. Errors wrap config.ErrInvalid, lexicon.ErrInvalid,
// lexicon.ErrMissingCategory or geo.ErrAliasCollision.
func New(cfg *config.Config, lex *lexicon.Lexicon, opts Options) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	e, err := build(cfg, lex, opts)
	if err != nil {
		logging.Error("batch configuration rejected", "error", err)
		opts.Events.Error(otel.KindBatchAbort, comp, err)
		return nil, err
	}
	return e, nil
}

func build(cfg *config.Config, lex *lexicon.Lexicon, opts Options) (*Engine, error) {
	if lex == nil {
		return nil, fmt.Errorf("%w: no lexicon", lexicon.ErrInvalid)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	resolver, err := geo.NewResolver(lex.Locations())
	if err != nil {
		return nil, err
	}
	corr := correlation.New(resolver, cfg.Windows, cfg.NearestRadiusKm)
	return &Engine{
		lex:         lex,
		extractor:   signal.NewExtractor(lex),
		scorer:      score.NewScorer(lex),
		correlator:  corr,
		predictor:   predict.New(corr),
		prioritizer: channel.New(lex, cfg.LanguageRelevance()),
		opts:        opts,
	}, nil
}

// Input is one batch. Now is the reference time for ages, windows and clock
// skew; zero means the current time.
type Input struct {
	Incidents []model.Incident
	Posts     []model.SocialPost
	Channels  []model.Channel
	Now       time.Time
}

// Summary counts what a run produced.
type Summary struct {
	Incidents    int                            `json:"incidents"`
	Posts        int                            `json:"posts"`
	Channels     int                            `json:"channels"`
	PostTiers    map[model.Severity]int         `json:"post_tiers"`
	Strengths    map[model.Strength]int         `json:"correlation_strengths"`
	Predictions  map[model.PredictionStatus]int `json:"predictions"`
	ChannelTiers map[model.MonitorTier]int      `json:"channel_tiers"`
	Ambiguous    int                            `json:"ambiguous"`
	Errors       int                            `json:"errors"`
}

// Result is everything one batch produced. Slices are sorted: scores and
// predictions by post id, correlations by (post id, incident id), channels
// by score descending then username, errors by (kind, id).
type Result struct {
	RunID          string                   `json:"run_id"`
	StartedAt      time.Time                `json:"started_at"`
	FinishedAt     time.Time                `json:"finished_at"`
	Now            time.Time                `json:"reference_time"`
	LexiconVersion string                   `json:"lexicon_version"`
	Scores         []model.ScoredPost       `json:"scores"`
	Correlations   []model.Correlation      `json:"correlations"`
	Predictions    []model.PredictionWindow `json:"predictions"`
	Channels       []model.ChannelPriority  `json:"channels"`
	Ambiguous      []correlation.Ambiguity  `json:"ambiguous,omitempty"`
	Errors         []model.RecordError      `json:"errors,omitempty"`
	Summary        Summary                  `json:"summary"`
}

// Run processes one batch.
func (e *Engine) Run(in Input) *Result {
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	res := &Result{
		RunID:          uuid.New().String(),
		StartedAt:      time.Now().UTC(),
		Now:            now,
		LexiconVersion: e.lex.Version(),
	}
	e.opts.Events.Emit(otel.Event{
		Kind: otel.KindBatchStart, Level: otel.LevelInfo, Comp: comp, RunID: res.RunID,
		Count: len(in.Incidents) + len(in.Posts) + len(in.Channels),
	})
	logging.Info("batch started", "run", res.RunID, "incidents", len(in.Incidents),
		"posts", len(in.Posts), "channels", len(in.Channels), "now", now.Format(time.RFC3339))

	incidents := e.validIncidents(res, in.Incidents)
	posts := e.validPosts(res, in.Posts)
	channels := e.validChannels(res, in.Channels)

	// Correlate first so each score carries its refs and resolved target.
	var trace func(correlation.Verdict)
	if e.opts.Trace || otel.TraceEnabled() {
		trace = func(v correlation.Verdict) { e.tracePair(res.RunID, v) }
	}
	run := e.correlator.Run(incidents, posts, trace)
	res.Correlations = run.Correlations
	res.Ambiguous = run.Ambiguous
	for _, a := range run.Ambiguous {
		e.reportAmbiguity(res.RunID, a)
	}
	for _, c := range res.Correlations {
		e.opts.Metrics.Correlation(string(c.Strength))
	}
	e.opts.Events.Emit(otel.Event{
		Kind: otel.KindCorrelateComplete, Level: otel.LevelInfo, Comp: comp, RunID: res.RunID,
		Count: len(res.Correlations),
	})

	res.Scores = e.scorePosts(res.RunID, posts, run)

	preds, fails := e.predictor.Batch(posts, run, now)
	res.Predictions = preds
	for _, f := range fails {
		e.recordError(res, model.RecordError{RecordID: f.PostID, Kind: string(model.KindPost), Err: f.Err})
	}
	for _, p := range preds {
		e.opts.Metrics.Prediction(string(p.Status))
	}
	e.opts.Events.Emit(otel.Event{
		Kind: otel.KindPredictComplete, Level: otel.LevelInfo, Comp: comp, RunID: res.RunID,
		Count: len(preds),
	})

	res.Channels = e.prioritizer.Batch(channels, now)
	for _, p := range res.Channels {
		e.opts.Metrics.ChannelPrioritized(string(p.Tier))
		e.opts.Events.Emit(otel.Event{
			Kind: otel.KindChannelPrioritized, Level: otel.LevelDebug, Comp: comp, RunID: res.RunID,
			RecordID: p.Username, RecordKind: model.KindChannel, Count: p.Score, Msg: string(p.Tier),
		})
	}

	sort.SliceStable(res.Errors, func(i, j int) bool {
		a, b := res.Errors[i], res.Errors[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.RecordID < b.RecordID
	})
	res.Summary = summarize(res, len(incidents), len(posts), len(channels))

	res.FinishedAt = time.Now().UTC()
	dur := res.FinishedAt.Sub(res.StartedAt)
	e.opts.Metrics.BatchDone(dur, res.FinishedAt)
	e.opts.Events.Emit(otel.Event{
		Kind: otel.KindBatchComplete, Level: otel.LevelInfo, Comp: comp, RunID: res.RunID,
		Dur: dur, Count: len(res.Scores),
		Extra: map[string]any{
			"correlations": len(res.Correlations),
			"predictions":  len(res.Predictions),
			"channels":     len(res.Channels),
			"errors":       len(res.Errors),
		},
	})
	logging.Info("batch complete", "run", res.RunID, "scored", len(res.Scores),
		"correlations", len(res.Correlations), "predictions", len(res.Predictions),
		"channels", len(res.Channels), "errors", len(res.Errors), "dur", dur)
	return res
}

func (e *Engine) validIncidents(res *Result, in []model.Incident) []model.Incident {
	seen := make(map[string]bool, len(in))
	out := make([]model.Incident, 0, len(in))
	for _, inc := range in {
		err := model.Validate(inc)
		if err == nil && seen[inc.ID] {
			err = ErrDuplicate
		}
		if err != nil {
			e.recordError(res, model.RecordError{RecordID: inc.ID, Kind: string(model.KindIncident), Err: err})
			continue
		}
		seen[inc.ID] = true
		out = append(out, inc)
	}
	return out
}

func (e *Engine) validPosts(res *Result, in []model.SocialPost) []model.SocialPost {
	seen := make(map[string]bool, len(in))
	out := make([]model.SocialPost, 0, len(in))
	for _, p := range in {
		err := model.Validate(p)
		if err == nil && seen[p.ID] {
			err = ErrDuplicate
		}
		if err != nil {
			e.recordError(res, model.RecordError{RecordID: p.ID, Kind: string(model.KindPost), Err: err})
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out
}

func (e *Engine) validChannels(res *Result, in []model.Channel) []model.Channel {
	seen := make(map[string]bool, len(in))
	out := make([]model.Channel, 0, len(in))
	for _, ch := range in {
		err := validateChannel(ch)
		key := strings.ToLower(ch.Username)
		if err == nil && seen[key] {
			err = ErrDuplicate
		}
		if err != nil {
			e.recordError(res, model.RecordError{RecordID: ch.Username, Kind: model.KindChannel, Err: err})
			continue
		}
		seen[key] = true
		out = append(out, ch)
	}
	return out
}

func validateChannel(ch model.Channel) error {
	if strings.TrimSpace(ch.Username) == "" {
		return fmt.Errorf("%w: missing username", model.ErrMalformed)
	}
	if ch.CreatedAt.IsZero() {
		return fmt.Errorf("%w: channel %s has no creation date", model.ErrMalformed, ch.Username)
	}
	if _, err := model.ParseChannelCategory(string(ch.Category)); err != nil {
		return fmt.Errorf("%w: %v", model.ErrMalformed, err)
	}
	return nil
}

func (e *Engine) recordError(res *Result, re model.RecordError) {
	res.Errors = append(res.Errors, re)
	e.opts.Metrics.RecordError(re.Kind)
	level := otel.LevelWarn
	if errors.Is(re.Err, predict.ErrClockSkew) {
		level = otel.LevelError
	}
	e.opts.Events.Emit(otel.Event{
		Kind: otel.KindRecordSkipped, Level: level, Comp: comp, RunID: res.RunID,
		RecordID: re.RecordID, RecordKind: re.Kind, Err: re.Err.Error(),
	})
	logging.Warn("record skipped", "kind", re.Kind, "id", re.RecordID, "error", re.Err)
}

func (e *Engine) reportAmbiguity(runID string, a correlation.Ambiguity) {
	e.opts.Metrics.LocationAmbiguous()
	e.opts.Events.Emit(otel.Event{
		Kind: otel.KindGeoAmbiguous, Level: otel.LevelWarn, Comp: comp, RunID: runID,
		RecordID: a.RecordID, RecordKind: string(a.Kind), Location: a.Resolution.Place.Name,
		Msg: a.Resolution.Err().Error(),
	})
	logging.Warn("ambiguous location", "kind", a.Kind, "id", a.RecordID, "error", a.Resolution.Err())
}

func (e *Engine) tracePair(runID string, v correlation.Verdict) {
	ev := otel.Event{
		Kind: otel.KindCorrelatePair, Level: otel.LevelDebug, Comp: comp, RunID: runID,
		RecordID: v.PostID, RecordKind: string(model.KindPost),
		Extra: map[string]any{"incident_id": v.IncidentID, "accepted": v.Accepted},
	}
	if v.Accepted {
		ev.Location = v.Correlation.Basis.Location
		ev.Count = v.Correlation.DaysDelta
		ev.Msg = string(v.Correlation.Strength)
	} else {
		ev.Msg = v.Reason
	}
	e.opts.Events.Emit(ev)
}

func (e *Engine) scorePosts(runID string, posts []model.SocialPost, run correlation.Result) []model.ScoredPost {
	refs := correlation.RefsByPost(run.Correlations)
	out := make([]model.ScoredPost, 0, len(posts))
	for _, p := range posts {
		sp := e.scorer.Post(p, e.extractor.Extract(p.Text))
		sp.Location = run.Posts[p.ID].Place.Name
		sp.CorrelationRefs = refs[p.ID]
		out = append(out, sp)

		e.opts.Metrics.PostScored(string(sp.Tier))
		e.opts.Events.Emit(otel.Event{
			Kind: otel.KindPostScored, Level: otel.LevelDebug, Comp: comp, RunID: runID,
			RecordID: p.ID, RecordKind: string(model.KindPost), Count: sp.Score,
			Location: sp.Location, Msg: string(sp.Tier),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PostID < out[j].PostID })
	return out
}

func summarize(res *Result, incidents, posts, channels int) Summary {
	s := Summary{
		Incidents:    incidents,
		Posts:        posts,
		Channels:     channels,
		PostTiers:    make(map[model.Severity]int),
		Strengths:    make(map[model.Strength]int),
		Predictions:  make(map[model.PredictionStatus]int),
		ChannelTiers: make(map[model.MonitorTier]int),
		Ambiguous:    len(res.Ambiguous),
		Errors:       len(res.Errors),
	}
	for _, sp := range res.Scores {
		s.PostTiers[sp.Tier]++
	}
	for _, c := range res.Correlations {
		s.Strengths[c.Strength]++
	}
	for _, p := range res.Predictions {
		s.Predictions[p.Status]++
	}
	for _, c := range res.Channels {
		s.ChannelTiers[c.Tier]++
	}
	return s
}
