package pipeline

import (
	"time"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/model"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/store"
)

// source is the slice of the store a batch reads from.
type source interface {
	Incidents(since time.Time) ([]model.Incident, error)
	Posts(since time.Time) ([]model.SocialPost, error)
	Channels() ([]model.Channel, error)
}

// LoadInput reads every stored record newer than since into a batch with
// reference time now.
func LoadInput(s source, since, now time.Time) (Input, error) {
	incidents, err := s.Incidents(since)
	if err != nil {
		return Input{}, err
	}
	posts, err := s.Posts(since)
	if err != nil {
		return Input{}, err
	}
	channels, err := s.Channels()
	if err != nil {
		return Input{}, err
	}
	return Input{Incidents: incidents, Posts: posts, Channels: channels, Now: now}, nil
}

// StoreRun converts a result into its persisted form.
func (r *Result) StoreRun() store.Run {
	errs := make([]store.RecordError, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = store.RecordError{RecordID: e.RecordID, Kind: e.Kind, Error: e.Err.Error()}
	}
	return store.Run{
		ID:             r.RunID,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
		ReferenceTime:  r.Now,
		LexiconVersion: r.LexiconVersion,
		Scores:         r.Scores,
		Correlations:   r.Correlations,
		Predictions:    r.Predictions,
		Channels:       r.Channels,
		Errors:         errs,
	}
}
