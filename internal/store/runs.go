package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/model"
)

// RecordError is a per-record failure kept with its run.
type RecordError struct {
	RecordID string `json:"record_id"`
	Kind     string `json:"kind"`
	Error    string `json:"error"`
}

// Run is everything one batch produced.
type Run struct {
	ID             string    `json:"run_id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	ReferenceTime  time.Time `json:"reference_time"` // The injected "now"
	LexiconVersion string    `json:"lexicon_version"`

	Scores       []model.ScoredPost       `json:"scores"`
	Correlations []model.Correlation      `json:"correlations"`
	Predictions  []model.PredictionWindow `json:"predictions"`
	Channels     []model.ChannelPriority  `json:"channels"`
	Errors       []RecordError            `json:"errors,omitempty"`
}

// RunSummary is one row of run history.
type RunSummary struct {
	ID             string    `json:"run_id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	LexiconVersion string    `json:"lexicon_version"`
	Posts          int       `json:"posts"`
	Correlations   int       `json:"correlations"`
	Predictions    int       `json:"predictions"`
	Channels       int       `json:"channels"`
	Errors         int       `json:"errors"`
}

// SaveRun persists a run in one transaction and returns its id, generating
// one when r.ID is empty. Correlations are replaced wholesale: only the
// latest run's set is kept.
func (s *Store) SaveRun(r Run) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = newRunID()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO runs (id, started_at, finished_at, reference_time, lexicon_version)
		VALUES (?, ?, ?, ?, ?)
	`, r.ID, r.StartedAt.UTC(), r.FinishedAt.UTC(), r.ReferenceTime.UTC(), r.LexiconVersion); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	if err := insertScores(tx, r.ID, r.Scores); err != nil {
		return "", err
	}
	if _, err := tx.Exec("DELETE FROM correlations"); err != nil {
		return "", fmt.Errorf("clear correlations: %w", err)
	}
	if err := insertCorrelations(tx, r.ID, r.Correlations); err != nil {
		return "", err
	}
	if err := insertPredictions(tx, r.ID, r.Predictions); err != nil {
		return "", err
	}
	if err := insertPriorities(tx, r.ID, r.Channels); err != nil {
		return "", err
	}
	for _, e := range r.Errors {
		if _, err := tx.Exec(
			"INSERT INTO record_errors (run_id, record_id, kind, error) VALUES (?, ?, ?, ?)",
			r.ID, e.RecordID, e.Kind, e.Error,
		); err != nil {
			return "", fmt.Errorf("insert record error: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return r.ID, nil
}

func insertScores(tx *sql.Tx, runID string, scores []model.ScoredPost) error {
	stmt, err := tx.Prepare(`
		INSERT INTO post_scores (
			run_id, post_id, channel_id, score, tier, categories, payment_amount, payment_currency, location
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, sp := range scores {
		cats := make([]string, len(sp.Categories))
		for i, c := range sp.Categories {
			cats[i] = string(c)
		}
		amount, currency := paymentArgs(sp.Payment)
		if _, err := stmt.Exec(
			runID, sp.PostID, sp.ChannelID, sp.Score, string(sp.Tier),
			strings.Join(cats, ","), amount, currency, sp.Location,
		); err != nil {
			return fmt.Errorf("insert score %s: %w", sp.PostID, err)
		}
	}
	return nil
}

func insertCorrelations(tx *sql.Tx, runID string, corrs []model.Correlation) error {
	stmt, err := tx.Prepare(`
		INSERT INTO correlations (
			run_id, post_id, incident_id, days_delta, strength,
			location, post_method, post_term, incident_method, incident_term
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range corrs {
		b := c.Basis
		if _, err := stmt.Exec(
			runID, c.PostID, c.IncidentID, c.DaysDelta, string(c.Strength),
			b.Location, string(b.PostMethod), b.PostTerm, string(b.IncidentMethod), b.IncidentTerm,
		); err != nil {
			return fmt.Errorf("insert correlation %s/%s: %w", c.PostID, c.IncidentID, err)
		}
	}
	return nil
}

func insertPredictions(tx *sql.Tx, runID string, preds []model.PredictionWindow) error {
	stmt, err := tx.Prepare(`
		INSERT INTO predictions (run_id, post_id, location, window_start, window_end, status, age_days)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range preds {
		if _, err := stmt.Exec(
			runID, p.PostID, p.Location, p.Start.UTC(), p.End.UTC(), string(p.Status), p.AgeDays,
		); err != nil {
			return fmt.Errorf("insert prediction %s: %w", p.PostID, err)
		}
	}
	return nil
}

func insertPriorities(tx *sql.Tx, runID string, prios []model.ChannelPriority) error {
	stmt, err := tx.Prepare(`
		INSERT INTO channel_priorities (
			run_id, username, score, tier, category,
			category_risk, graph_proximity, age, verification, language
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range prios {
		f := p.Factors
		if _, err := stmt.Exec(
			runID, p.Username, p.Score, string(p.Tier), string(p.Category),
			f.CategoryRisk, f.GraphProximity, f.Age, f.Verification, f.Language,
		); err != nil {
			return fmt.Errorf("insert priority %s: %w", p.Username, err)
		}
	}
	return nil
}

// LatestRun loads the most recently finished run, or nil when none exist.
func (s *Store) LatestRun() (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var r Run
	err := s.db.QueryRow(`
		SELECT id, started_at, finished_at, reference_time, lexicon_version
		FROM runs
		ORDER BY finished_at DESC, id DESC
		LIMIT 1
	`).Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.ReferenceTime, &r.LexiconVersion)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.StartedAt, r.FinishedAt, r.ReferenceTime = r.StartedAt.UTC(), r.FinishedAt.UTC(), r.ReferenceTime.UTC()

	if r.Correlations, err = s.loadCorrelations(r.ID); err != nil {
		return nil, fmt.Errorf("load correlations: %w", err)
	}
	if r.Scores, err = s.loadScores(r.ID, r.Correlations); err != nil {
		return nil, fmt.Errorf("load scores: %w", err)
	}
	if r.Predictions, err = s.loadPredictions(r.ID); err != nil {
		return nil, fmt.Errorf("load predictions: %w", err)
	}
	if r.Channels, err = s.loadPriorities(r.ID); err != nil {
		return nil, fmt.Errorf("load priorities: %w", err)
	}
	if r.Errors, err = s.loadErrors(r.ID); err != nil {
		return nil, fmt.Errorf("load errors: %w", err)
	}
	return &r, nil
}

// Caller must hold s.mu for the load helpers below.

func (s *Store) loadCorrelations(runID string) ([]model.Correlation, error) {
	rows, err := s.db.Query(`
		SELECT post_id, incident_id, days_delta, strength,
			location, post_method, post_term, incident_method, incident_term
		FROM correlations
		WHERE run_id = ?
		ORDER BY post_id, incident_id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Correlation
	for rows.Next() {
		var (
			c                model.Correlation
			strength, pm, im string
		)
		if err := rows.Scan(
			&c.PostID, &c.IncidentID, &c.DaysDelta, &strength,
			&c.Basis.Location, &pm, &c.Basis.PostTerm, &im, &c.Basis.IncidentTerm,
		); err != nil {
			return nil, err
		}
		c.Strength = model.Strength(strength)
		c.Basis.PostMethod = model.MatchMethod(pm)
		c.Basis.IncidentMethod = model.MatchMethod(im)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) loadScores(runID string, corrs []model.Correlation) ([]model.ScoredPost, error) {
	refs := make(map[string][]model.CorrelationRef)
	for _, c := range corrs {
		refs[c.PostID] = append(refs[c.PostID], model.CorrelationRef{IncidentID: c.IncidentID, Strength: c.Strength})
	}

	rows, err := s.db.Query(`
		SELECT post_id, channel_id, score, tier, categories, payment_amount, payment_currency, location
		FROM post_scores
		WHERE run_id = ?
		ORDER BY post_id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ScoredPost
	for rows.Next() {
		var (
			sp         model.ScoredPost
			tier, cats string
			amount     sql.NullFloat64
			currency   sql.NullString
		)
		if err := rows.Scan(
			&sp.PostID, &sp.ChannelID, &sp.Score, &tier, &cats, &amount, &currency, &sp.Location,
		); err != nil {
			return nil, err
		}
		sp.Tier = model.Severity(tier)
		if cats != "" {
			for _, c := range strings.Split(cats, ",") {
				sp.Categories = append(sp.Categories, model.Category(c))
			}
		}
		sp.Payment = scanPayment(amount, currency)
		sp.CorrelationRefs = refs[sp.PostID]
		out = append(out, sp)
	}
	return out, rows.Err()
}

func (s *Store) loadPredictions(runID string) ([]model.PredictionWindow, error) {
	rows, err := s.db.Query(`
		SELECT post_id, location, window_start, window_end, status, age_days
		FROM predictions
		WHERE run_id = ?
		ORDER BY post_id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PredictionWindow
	for rows.Next() {
		var (
			p      model.PredictionWindow
			status string
		)
		if err := rows.Scan(&p.PostID, &p.Location, &p.Start, &p.End, &status, &p.AgeDays); err != nil {
			return nil, err
		}
		p.Start, p.End = p.Start.UTC(), p.End.UTC()
		p.Status = model.PredictionStatus(status)
		if p.Status == model.PredictionExpired {
			p.Hypotheses = model.ExpiredHypotheses()
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) loadPriorities(runID string) ([]model.ChannelPriority, error) {
	rows, err := s.db.Query(`
		SELECT username, score, tier, category,
			category_risk, graph_proximity, age, verification, language
		FROM channel_priorities
		WHERE run_id = ?
		ORDER BY score DESC, username
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ChannelPriority
	for rows.Next() {
		var (
			p              model.ChannelPriority
			tier, category string
		)
		f := &p.Factors
		if err := rows.Scan(
			&p.Username, &p.Score, &tier, &category,
			&f.CategoryRisk, &f.GraphProximity, &f.Age, &f.Verification, &f.Language,
		); err != nil {
			return nil, err
		}
		p.Tier = model.MonitorTier(tier)
		p.Cadence = model.CadenceFor(p.Tier)
		p.Category = model.ChannelCategory(category)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) loadErrors(runID string) ([]RecordError, error) {
	rows, err := s.db.Query(`
		SELECT record_id, kind, error FROM record_errors WHERE run_id = ? ORDER BY rowid
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RecordError
	for rows.Next() {
		var e RecordError
		if err := rows.Scan(&e.RecordID, &e.Kind, &e.Error); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RunSummaries returns up to limit runs, newest first, with row counts.
func (s *Store) RunSummaries(limit int) ([]RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT r.id, r.started_at, r.finished_at, r.lexicon_version,
			(SELECT COUNT(*) FROM post_scores WHERE run_id = r.id),
			(SELECT COUNT(*) FROM correlations WHERE run_id = r.id),
			(SELECT COUNT(*) FROM predictions WHERE run_id = r.id),
			(SELECT COUNT(*) FROM channel_priorities WHERE run_id = r.id),
			(SELECT COUNT(*) FROM record_errors WHERE run_id = r.id)
		FROM runs r
		ORDER BY r.finished_at DESC, r.id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var rs RunSummary
		if err := rows.Scan(
			&rs.ID, &rs.StartedAt, &rs.FinishedAt, &rs.LexiconVersion,
			&rs.Posts, &rs.Correlations, &rs.Predictions, &rs.Channels, &rs.Errors,
		); err != nil {
			return nil, err
		}
		rs.StartedAt, rs.FinishedAt = rs.StartedAt.UTC(), rs.FinishedAt.UTC()
		out = append(out, rs)
	}
	return out, rows.Err()
}
