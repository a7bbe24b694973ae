// Package model defines the intelligence records that flow through the
// correlation and scoring core, and the derived results attached to them.
//
// Records are immutable once created by a collaborator (feed fetcher, JSON
// import). The core never mutates them; derived values live in separate
// result types (ScoredPost, Correlation, PredictionWindow, ChannelPriority).
//
// All timestamps are treated as already-normalized instants. Collaborators
// convert to a single reference timezone before handing records over.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformed marks a record that cannot be processed (missing timestamp,
// empty text, unknown enum value). Malformed records are skipped and
// reported, never fatal to a batch.
var ErrMalformed = errors.New("malformed record")

// SourceKind identifies which kind of intelligence record this is.
type SourceKind string

const (
	KindIncident SourceKind = "incident" // Physical event from news
	KindPost     SourceKind = "post"     // Social-media message
)

// ParseSourceKind validates a raw kind string. Unknown values are rejected
// rather than propagated as free text.
func ParseSourceKind(s string) (SourceKind, error) {
	switch k := SourceKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindIncident, KindPost:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown source kind %q", ErrMalformed, s)
}

// KindChannel labels channel records in RecordError. Incidents and posts use
// their SourceKind.
const KindChannel = "channel"

// RecordError is one record that was skipped or could not be fully
// processed, by an import or a batch run.
type RecordError struct {
	RecordID string
	Kind     string // "incident", "post" or "channel"
	Err      error
}

func (e RecordError) Error() string {
	if e.RecordID == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.RecordID, e.Err)
}

func (e RecordError) Unwrap() error { return e.Err }

// MarshalJSON writes Err as its message.
func (e RecordError) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		RecordID string `json:"record_id"`
		Kind     string `json:"kind"`
		Error    string `json:"error"`
	}{e.RecordID, e.Kind, msg})
}

// IntelRecord is the common view of incidents and posts.
type IntelRecord interface {
	RecordID() string
	RecordText() string
	RecordTime() time.Time
	Kind() SourceKind
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Location is where an incident happened: a free-text label and, when the
// source provided them, coordinates.
type Location struct {
	Label  string       `json:"label"`
	Coords *Coordinates `json:"coords,omitempty"`
}

// Incident is a recorded physical event (e.g. a drone sighting) anchored to
// a date and place. Incidents are the ground truth for correlation and are
// never scored.
type Incident struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Location  Location  `json:"location"`
	Source    string    `json:"source,omitempty"` // Feed name or importer
	URL       string    `json:"url,omitempty"`
}

func (i Incident) RecordID() string      { return i.ID }
func (i Incident) RecordText() string    { return i.Title + " " + i.Text }
func (i Incident) RecordTime() time.Time { return i.Timestamp }
func (i Incident) Kind() SourceKind      { return KindIncident }

// Payment is an offered amount extracted from, or supplied with, a post.
type Payment struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"` // ISO-ish code: EUR, USD, BTC, USDT
}

// SocialPost is a message from a monitored channel.
type SocialPost struct {
	ID                 string    `json:"id"`
	ChannelID          string    `json:"channel_id"`
	Text               string    `json:"text"`
	Timestamp          time.Time `json:"timestamp"`
	TargetLocationText string    `json:"target_location_text,omitempty"`
	Payment            *Payment  `json:"payment,omitempty"`
}

func (p SocialPost) RecordID() string      { return p.ID }
func (p SocialPost) RecordText() string    { return p.Text }
func (p SocialPost) RecordTime() time.Time { return p.Timestamp }
func (p SocialPost) Kind() SourceKind      { return KindPost }

// LocationText returns the text used to resolve where a post is aimed:
// the explicit target when present, otherwise the message body.
func (p SocialPost) LocationText() string {
	if strings.TrimSpace(p.TargetLocationText) != "" {
		return p.TargetLocationText
	}
	return p.Text
}

// Validate checks the fields every record needs before the core will touch
// it. The returned error wraps ErrMalformed.
func Validate(r IntelRecord) error {
	if strings.TrimSpace(r.RecordID()) == "" {
		return fmt.Errorf("%w: missing id", ErrMalformed)
	}
	if r.RecordTime().IsZero() {
		return fmt.Errorf("%w: %s %s has no timestamp", ErrMalformed, r.Kind(), r.RecordID())
	}
	if strings.TrimSpace(r.RecordText()) == "" {
		return fmt.Errorf("%w: %s %s has empty text", ErrMalformed, r.Kind(), r.RecordID())
	}
	return nil
}
