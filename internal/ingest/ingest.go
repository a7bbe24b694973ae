// Package ingest imports intelligence records exported by other collectors
// as JSON.
//
// The file is one object with optional "incidents", "posts" and "channels"
// arrays. Incidents and posts may carry a "kind" that must name their own
// list. Unknown fields anywhere in the document reject the whole file.
// Individual records that fail validation are reported and skipped; the
// rest of the file still imports.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/model"
)

// Batch is the validated content of one import file.
type Batch struct {
	Incidents []model.Incident
	Posts     []model.SocialPost
	Channels  []model.Channel
	Errors    []model.RecordError
}

type rawFile struct {
	Incidents []rawIncident `json:"incidents"`
	Posts     []rawPost     `json:"posts"`
	Channels  []rawChannel  `json:"channels"`
}

type rawIncident struct {
	ID        string      `json:"id"`
	Kind      string      `json:"kind"`
	Title     string      `json:"title"`
	Text      string      `json:"text"`
	Timestamp string      `json:"timestamp"`
	Location  rawLocation `json:"location"`
	Source    string      `json:"source"`
	URL       string      `json:"url"`
}

type rawLocation struct {
	Label string   `json:"label"`
	Lat   *float64 `json:"lat"`
	Lon   *float64 `json:"lon"`
}

type rawPost struct {
	ID                 string      `json:"id"`
	Kind               string      `json:"kind"`
	ChannelID          string      `json:"channel_id"`
	Text               string      `json:"text"`
	Timestamp          string      `json:"timestamp"`
	TargetLocationText string      `json:"target_location_text"`
	Payment            *rawPayment `json:"payment"`
}

type rawPayment struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

type rawChannel struct {
	Username        string `json:"username"`
	Title           string `json:"title"`
	CreatedAt       string `json:"created_at"`
	Category        string `json:"category"`
	Verified        bool   `json:"verified"`
	SubscriberCount int    `json:"subscriber_count"`
	Language        string `json:"language"`
	Hops            *int   `json:"hops"`
}

// ReadFile decodes the import file at path.
func ReadFile(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read import file: %w", err)
	}
	return Decode(bytes.NewReader(data))
}

// Decode reads one import document. The returned error is non-nil only when
// the document itself is unusable; per-record problems land in
// Batch.Errors.
func Decode(r io.Reader) (*Batch, error) {
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()

	var raw rawFile
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}

	b := &Batch{}
	seen := make(map[string]struct{})
	dup := func(kind, id string) bool {
		key := kind + "\x00" + id
		if _, ok := seen[key]; ok {
			return true
		}
		seen[key] = struct{}{}
		return false
	}

	for _, ri := range raw.Incidents {
		inc, err := ri.convert()
		if err == nil && dup(string(model.KindIncident), inc.ID) {
			err = fmt.Errorf("%w: duplicate id", model.ErrMalformed)
		}
		if err != nil {
			b.Errors = append(b.Errors, model.RecordError{RecordID: ri.ID, Kind: string(model.KindIncident), Err: err})
			continue
		}
		b.Incidents = append(b.Incidents, inc)
	}

	for _, rp := range raw.Posts {
		p, err := rp.convert()
		if err == nil && dup(string(model.KindPost), p.ID) {
			err = fmt.Errorf("%w: duplicate id", model.ErrMalformed)
		}
		if err != nil {
			b.Errors = append(b.Errors, model.RecordError{RecordID: rp.ID, Kind: string(model.KindPost), Err: err})
			continue
		}
		b.Posts = append(b.Posts, p)
	}

	for _, rc := range raw.Channels {
		ch, err := rc.convert()
		if err == nil && dup(model.KindChannel, strings.ToLower(ch.Username)) {
			err = fmt.Errorf("%w: duplicate username", model.ErrMalformed)
		}
		if err != nil {
			b.Errors = append(b.Errors, model.RecordError{RecordID: rc.Username, Kind: model.KindChannel, Err: err})
			continue
		}
		b.Channels = append(b.Channels, ch)
	}

	return b, nil
}

func (r rawIncident) convert() (model.Incident, error) {
	if err := checkKind(r.Kind, model.KindIncident); err != nil {
		return model.Incident{}, err
	}
	ts, err := parseTime(r.Timestamp)
	if err != nil {
		return model.Incident{}, err
	}
	inc := model.Incident{
		ID:        strings.TrimSpace(r.ID),
		Title:     strings.TrimSpace(r.Title),
		Text:      strings.TrimSpace(r.Text),
		Timestamp: ts,
		Location:  model.Location{Label: strings.TrimSpace(r.Location.Label)},
		Source:    r.Source,
		URL:       r.URL,
	}
	if (r.Location.Lat == nil) != (r.Location.Lon == nil) {
		return model.Incident{}, fmt.Errorf("%w: location needs both lat and lon", model.ErrMalformed)
	}
	if r.Location.Lat != nil {
		lat, lon := *r.Location.Lat, *r.Location.Lon
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return model.Incident{}, fmt.Errorf("%w: coordinates out of range", model.ErrMalformed)
		}
		inc.Location.Coords = &model.Coordinates{Lat: lat, Lon: lon}
	}
	if inc.Source == "" {
		inc.Source = "import"
	}
	return inc, model.Validate(inc)
}

func (r rawPost) convert() (model.SocialPost, error) {
	if err := checkKind(r.Kind, model.KindPost); err != nil {
		return model.SocialPost{}, err
	}
	ts, err := parseTime(r.Timestamp)
	if err != nil {
		return model.SocialPost{}, err
	}
	p := model.SocialPost{
		ID:                 strings.TrimSpace(r.ID),
		ChannelID:          strings.TrimSpace(r.ChannelID),
		Text:               r.Text,
		Timestamp:          ts,
		TargetLocationText: strings.TrimSpace(r.TargetLocationText),
	}
	if r.Payment != nil {
		cur := strings.ToUpper(strings.TrimSpace(r.Payment.Currency))
		if r.Payment.Amount <= 0 || cur == "" {
			return model.SocialPost{}, fmt.Errorf("%w: payment needs a positive amount and a currency", model.ErrMalformed)
		}
		p.Payment = &model.Payment{Amount: r.Payment.Amount, Currency: cur}
	}
	return p, model.Validate(p)
}

func (r rawChannel) convert() (model.Channel, error) {
	name := strings.TrimPrefix(strings.TrimSpace(r.Username), "@")
	if name == "" {
		return model.Channel{}, fmt.Errorf("%w: missing username", model.ErrMalformed)
	}
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return model.Channel{}, err
	}
	cat, err := model.ParseChannelCategory(r.Category)
	if err != nil {
		return model.Channel{}, fmt.Errorf("%w: %v", model.ErrMalformed, err)
	}
	var hops *int
	if r.Hops != nil {
		if *r.Hops < 0 {
			return model.Channel{}, fmt.Errorf("%w: negative hops", model.ErrMalformed)
		}
		hops = model.HopCount(*r.Hops)
	}
	if r.SubscriberCount < 0 {
		return model.Channel{}, fmt.Errorf("%w: negative subscriber count", model.ErrMalformed)
	}
	return model.Channel{
		Username:        name,
		Title:           strings.TrimSpace(r.Title),
		CreatedAt:       created,
		Category:        cat,
		Verified:        r.Verified,
		SubscriberCount: r.SubscriberCount,
		Language:        strings.ToLower(strings.TrimSpace(r.Language)),
		Hops:            hops,
	}, nil
}

// checkKind validates an optional "kind" field against the array the record
// was found in.
func checkKind(raw string, want model.SourceKind) error {
	if raw == "" {
		return nil
	}
	kind, err := model.ParseSourceKind(raw)
	if err != nil {
		return err
	}
	if kind != want {
		return fmt.Errorf("%w: %s record in the %ss list", model.ErrMalformed, kind, want)
	}
	return nil
}

// parseTime accepts RFC 3339 timestamps or bare dates and normalizes to UTC.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: missing timestamp", model.ErrMalformed)
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: bad timestamp %q", model.ErrMalformed, s)
}
