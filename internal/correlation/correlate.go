// Package correlation links social posts to the incidents that followed
// them at the same place.
//
// Every (incident, post) pair is evaluated. The scan is quadratic on purpose:
// batches are hundreds of records, and each accepted pair must be explainable
// on its own. A pair is accepted when the post precedes the incident by no
// more than the window's MaxDays and both resolve to the same canonical
// location. Gaps up to HighDays are HIGH, the rest MEDIUM.
package correlation

import (
	"sort"
	"time"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/config"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/geo"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/model"
)

const day = 24 * time.Hour

// Correlator evaluates post/incident pairs. It is immutable and safe for
// concurrent use.
type Correlator struct {
	resolver *geo.Resolver
	windows  config.Windows
	radiusKm float64
}

// New returns a correlator. radiusKm bounds the coordinate fallback for
// incidents; zero disables it.
func New(resolver *geo.Resolver, windows config.Windows, radiusKm float64) *Correlator {
	return &Correlator{resolver: resolver, windows: windows, radiusKm: radiusKm}
}

// Windows returns the window table the correlator was built with.
func (c *Correlator) Windows() config.Windows { return c.windows }

// ResolveIncident places an incident: its location label first, then its
// title and text, then its coordinates.
func (c *Correlator) ResolveIncident(inc model.Incident) geo.Resolution {
	if res := c.resolver.Resolve(inc.Location.Label); res.OK() {
		return res
	}
	if res := c.resolver.Resolve(inc.RecordText()); res.OK() {
		return res
	}
	if inc.Location.Coords != nil && c.radiusKm > 0 {
		return c.resolver.Nearest(inc.Location.Coords.Lat, inc.Location.Coords.Lon, c.radiusKm)
	}
	return geo.Resolution{}
}

// ResolvePost places a post: its explicit target first, then its body.
func (c *Correlator) ResolvePost(p model.SocialPost) geo.Resolution {
	if p.TargetLocationText != "" {
		if res := c.resolver.Resolve(p.TargetLocationText); res.OK() {
			return res
		}
	}
	return c.resolver.Resolve(p.Text)
}

// DaysDelta is incident - post in whole days, truncated toward zero.
func DaysDelta(post, incident time.Time) int {
	return int(incident.Sub(post) / day)
}

// Verdict is the outcome of evaluating one pair.
type Verdict struct {
	PostID      string
	IncidentID  string
	Accepted    bool
	Reason      string // Why a pair was rejected; empty when accepted
	Correlation model.Correlation
}

// Rejection reasons.
const (
	ReasonPostAfterIncident = "post after incident"
	ReasonOutsideWindow     = "outside window"
	ReasonUnresolved        = "location unresolved"
	ReasonDifferentLocation = "different location"
)

// Evaluate decides one pair given both sides' resolutions. It has no side
// effects, so pairs can be evaluated in any order.
func (c *Correlator) Evaluate(inc model.Incident, incRes geo.Resolution, post model.SocialPost, postRes geo.Resolution) Verdict {
	v := Verdict{PostID: post.ID, IncidentID: inc.ID}

	if post.Timestamp.After(inc.Timestamp) {
		v.Reason = ReasonPostAfterIncident
		return v
	}
	if !incRes.OK() || !postRes.OK() {
		v.Reason = ReasonUnresolved
		return v
	}
	if incRes.Place.Name != postRes.Place.Name {
		v.Reason = ReasonDifferentLocation
		return v
	}

	w := c.windows.For(incRes.Place.Kind)
	delta := DaysDelta(post.Timestamp, inc.Timestamp)
	if delta > w.MaxDays {
		v.Reason = ReasonOutsideWindow
		return v
	}

	strength := model.StrengthMedium
	if delta <= w.HighDays {
		strength = model.StrengthHigh
	}
	v.Accepted = true
	v.Correlation = model.Correlation{
		PostID:     post.ID,
		IncidentID: inc.ID,
		DaysDelta:  delta,
		Strength:   strength,
		Basis: model.MatchBasis{
			Location:       incRes.Place.Name,
			PostMethod:     postRes.Method,
			PostTerm:       postRes.Term,
			IncidentMethod: incRes.Method,
			IncidentTerm:   incRes.Term,
		},
	}
	return v
}

// Ambiguity is a record whose location text named several canonical
// locations.
type Ambiguity struct {
	RecordID   string
	Kind       model.SourceKind
	Resolution geo.Resolution
}

// Result is a full correlation run.
type Result struct {
	Correlations []model.Correlation       // Sorted by (post id, incident id)
	Posts        map[string]geo.Resolution // By post id
	Incidents    map[string]geo.Resolution // By incident id
	Ambiguous    []Ambiguity               // Sorted by (kind, id)
}

// Correlate returns every accepted pair, sorted by (post id, incident id).
func (c *Correlator) Correlate(incidents []model.Incident, posts []model.SocialPost) []model.Correlation {
	return c.Run(incidents, posts, nil).Correlations
}

// Run resolves every record once, evaluates every pair and collects
// ambiguities. trace, when non-nil, sees every verdict.
func (c *Correlator) Run(incidents []model.Incident, posts []model.SocialPost, trace func(Verdict)) Result {
	res := Result{
		Posts:     make(map[string]geo.Resolution, len(posts)),
		Incidents: make(map[string]geo.Resolution, len(incidents)),
	}

	for _, inc := range incidents {
		r := c.ResolveIncident(inc)
		res.Incidents[inc.ID] = r
		if r.Ambiguous {
			res.Ambiguous = append(res.Ambiguous, Ambiguity{RecordID: inc.ID, Kind: model.KindIncident, Resolution: r})
		}
	}
	for _, p := range posts {
		r := c.ResolvePost(p)
		res.Posts[p.ID] = r
		if r.Ambiguous {
			res.Ambiguous = append(res.Ambiguous, Ambiguity{RecordID: p.ID, Kind: model.KindPost, Resolution: r})
		}
	}

	for _, inc := range incidents {
		incRes := res.Incidents[inc.ID]
		for _, p := range posts {
			v := c.Evaluate(inc, incRes, p, res.Posts[p.ID])
			if trace != nil {
				trace(v)
			}
			if v.Accepted {
				res.Correlations = append(res.Correlations, v.Correlation)
			}
		}
	}

	sort.Slice(res.Correlations, func(i, j int) bool {
		a, b := res.Correlations[i], res.Correlations[j]
		if a.PostID != b.PostID {
			return a.PostID < b.PostID
		}
		return a.IncidentID < b.IncidentID
	})
	sort.Slice(res.Ambiguous, func(i, j int) bool {
		a, b := res.Ambiguous[i], res.Ambiguous[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.RecordID < b.RecordID
	})
	return res
}

// RefsByPost groups correlations by post id.
func RefsByPost(corrs []model.Correlation) map[string][]model.CorrelationRef {
	out := make(map[string][]model.CorrelationRef)
	for _, c := range corrs {
		out[c.PostID] = append(out[c.PostID], model.CorrelationRef{IncidentID: c.IncidentID, Strength: c.Strength})
	}
	return out
}
