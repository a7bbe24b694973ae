// Package score turns extracted signals into a 0-100 post score and a
// severity tier.
package score

import (
	"math"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/lexicon"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/model"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/signal"
)

// Tier upper bounds, inclusive. Anything above HighMax is CRITICAL.
const (
	LowMax    = 20
	MediumMax = 40
	HighMax   = 70
)

// Scorer weighs signals with the lexicon's weight table.
type Scorer struct {
	lex *lexicon.Lexicon
}

// NewScorer returns a scorer using lex's weights.
func NewScorer(lex *lexicon.Lexicon) Scorer {
	return Scorer{lex: lex}
}

// Contributions returns each category's share of the score before rounding:
// weight * min(match_count, 3) / 3.
func (s Scorer) Contributions(sig signal.Signals) map[model.Category]float64 {
	out := make(map[model.Category]float64, len(model.ScoredCategories))
	for _, c := range model.ScoredCategories {
		out[c] = s.lex.Weight(c) * sig[c].Normalized
	}
	return out
}

// Score sums the contributions, rounds to the nearest integer and clamps to
// [0,100]. No signals scores 0 (LOW).
func (s Scorer) Score(sig signal.Signals) (int, model.Severity) {
	var total float64
	for _, c := range model.ScoredCategories {
		total += s.lex.Weight(c) * sig[c].Normalized
	}
	score := clamp(int(math.Round(total)), 0, 100)
	return score, TierFor(score)
}

// Post scores one post. The payment is the one supplied with the post, or
// the first amount found in its text.
func (s Scorer) Post(p model.SocialPost, sig signal.Signals) model.ScoredPost {
	n, tier := s.Score(sig)
	payment := p.Payment
	if payment == nil {
		payment = signal.ExtractPayment(p.Text)
	}
	return model.ScoredPost{
		PostID:     p.ID,
		ChannelID:  p.ChannelID,
		Score:      n,
		Tier:       tier,
		Categories: sig.Categories(),
		Payment:    payment,
	}
}

// TierFor bands a score: LOW 0-20, MEDIUM 21-40, HIGH 41-70, CRITICAL 71-100.
func TierFor(score int) model.Severity {
	switch {
	case score <= LowMax:
		return model.SeverityLow
	case score <= MediumMax:
		return model.SeverityMedium
	case score <= HighMax:
		return model.SeverityHigh
	default:
		return model.SeverityCritical
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
