// Package predict derives forward incident windows from posts that no
// recorded incident explains.
package predict

import (
	"fmt"
	"sort"
	"time"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/correlation"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/geo"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/model"
)

// ErrClockSkew marks a post dated after the reference time. It wraps
// model.ErrMalformed, so skewed posts are reported like any other bad record.
var ErrClockSkew = fmt.Errorf("%w: post after reference time", model.ErrMalformed)

const day = 24 * time.Hour

// Predictor shares the correlator's resolver and window table so a post is
// placed the same way for correlation and prediction.
type Predictor struct {
	c *correlation.Correlator
}

// New returns a predictor backed by c.
func New(c *correlation.Correlator) *Predictor {
	return &Predictor{c: c}
}

// CheckClock returns ErrClockSkew when post is dated after now.
func CheckClock(post model.SocialPost, now time.Time) error {
	if post.Timestamp.After(now) {
		return fmt.Errorf("%w: post %s at %s, now %s", ErrClockSkew, post.ID,
			post.Timestamp.Format(time.RFC3339), now.Format(time.RFC3339))
	}
	return nil
}

// Predict returns the window for post, or nil when the post correlates with
// one of incidents, has no resolvable location, or is too old. A skewed post
// is an error whether or not it correlates.
func (p *Predictor) Predict(post model.SocialPost, incidents []model.Incident, now time.Time) (*model.PredictionWindow, error) {
	if err := CheckClock(post, now); err != nil {
		return nil, err
	}
	res := p.c.ResolvePost(post)
	for _, inc := range incidents {
		if p.c.Evaluate(inc, p.c.ResolveIncident(inc), post, res).Accepted {
			return nil, nil
		}
	}
	return p.Unmatched(post, res, now)
}

// Unmatched computes the window for a post already known to have no
// correlations.
func (p *Predictor) Unmatched(post model.SocialPost, res geo.Resolution, now time.Time) (*model.PredictionWindow, error) {
	if err := CheckClock(post, now); err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, nil
	}

	w := p.c.Windows().For(res.Place.Kind)
	age := int(now.Sub(post.Timestamp) / day)
	if age > w.PredictMaxAgeDays {
		return nil, nil
	}

	pw := &model.PredictionWindow{
		PostID:   post.ID,
		Location: res.Place.Name,
		Start:    post.Timestamp.Add(time.Duration(w.PredictStartDays) * day),
		End:      post.Timestamp.Add(time.Duration(w.PredictEndDays) * day),
		Status:   model.PredictionActive,
		AgeDays:  age,
	}
	if now.After(pw.End) {
		pw.Status = model.PredictionExpired
		pw.Hypotheses = model.ExpiredHypotheses()
	}
	return pw, nil
}

// Failure is a post excluded from prediction.
type Failure struct {
	PostID string
	Err    error
}

// Batch predicts for every post without a correlation in run. Windows are
// sorted by post id. Skewed posts are returned as failures, correlated or
// not.
func (p *Predictor) Batch(posts []model.SocialPost, run correlation.Result, now time.Time) ([]model.PredictionWindow, []Failure) {
	matched := make(map[string]bool, len(run.Correlations))
	for _, c := range run.Correlations {
		matched[c.PostID] = true
	}

	var (
		out   []model.PredictionWindow
		fails []Failure
	)
	for _, post := range posts {
		if err := CheckClock(post, now); err != nil {
			fails = append(fails, Failure{PostID: post.ID, Err: err})
			continue
		}
		if matched[post.ID] {
			continue
		}
		res, ok := run.Posts[post.ID]
		if !ok {
			res = p.c.ResolvePost(post)
		}
		pw, err := p.Unmatched(post, res, now)
		if err != nil {
			fails = append(fails, Failure{PostID: post.ID, Err: err})
			continue
		}
		if pw != nil {
			out = append(out, *pw)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PostID < out[j].PostID })
	return out, fails
}
