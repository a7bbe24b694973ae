// Package channel scores discovered channels and assigns them a monitoring
// tier and check cadence.
//
// The score is the sum of five independently capped factors:
//
//	category risk    0..40  lexicon channel indicators
//	graph proximity  0..30  seed or one hop from a seed
//	age              0..15  3 points per year
//	verification     0..10
//	language         0..5   configured relevance table
package channel

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/lexicon"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/model"
)

// Factor caps.
const (
	MaxCategoryRisk   = 40
	MaxGraphProximity = 30
	MaxAge            = 15
	MaxVerification   = 10
	MaxLanguage       = 5

	agePointsPerYear = 3
)

// Tier thresholds (inclusive lower bounds).
const (
	Tier1Min = 75
	Tier2Min = 60
	Tier3Min = 45
)

// Prioritizer is immutable and safe for concurrent use.
type Prioritizer struct {
	indicators []lexicon.Indicator // highest risk first
	risk       map[model.ChannelCategory]int
	languages  map[string]int
}

// New builds a prioritizer from the lexicon's channel indicators and a
// language relevance table (ISO 639-1 code to points).
func New(lex *lexicon.Lexicon, languages map[string]int) *Prioritizer {
	p := &Prioritizer{
		indicators: lex.Indicators(),
		risk:       make(map[model.ChannelCategory]int),
		languages:  make(map[string]int, len(languages)),
	}
	for _, ind := range p.indicators {
		if ind.Risk > p.risk[ind.Category] {
			p.risk[ind.Category] = ind.Risk
		}
	}
	for k, v := range languages {
		p.languages[strings.ToLower(k)] = v
	}
	return p
}

// Classify returns the channel's category and its risk points. A category
// supplied by the collaborator is trusted; otherwise the first indicator
// whose term appears in the username or title wins.
func (p *Prioritizer) Classify(ch model.Channel) (model.ChannelCategory, int) {
	if ch.Category != "" && ch.Category != model.ChannelUnknown {
		return ch.Category, p.risk[ch.Category]
	}
	hay := strings.ToLower(ch.Username + " " + ch.Title)
	for _, ind := range p.indicators {
		for _, term := range ind.Terms {
			if strings.Contains(hay, strings.ToLower(term)) {
				return ind.Category, ind.Risk
			}
		}
	}
	return model.ChannelUnknown, 0
}

// Language returns the channel's language code: the declared one, or "ru"
// when the title is written in Cyrillic, or "" when unknown.
func Language(ch model.Channel) string {
	if l := strings.ToLower(strings.TrimSpace(ch.Language)); l != "" {
		return l
	}
	for _, r := range ch.Title {
		if unicode.Is(unicode.Cyrillic, r) {
			return "ru"
		}
	}
	return ""
}

// Prioritize scores one channel as of now.
func (p *Prioritizer) Prioritize(ch model.Channel, now time.Time) model.ChannelPriority {
	cat, risk := p.Classify(ch)

	f := model.Factors{
		CategoryRisk: clamp(risk, 0, MaxCategoryRisk),
		Age:          ageScore(ch.CreatedAt, now),
		Language:     clamp(p.languages[Language(ch)], 0, MaxLanguage),
	}
	if ch.Proximate() {
		f.GraphProximity = MaxGraphProximity
	}
	if ch.Verified {
		f.Verification = MaxVerification
	}

	score := clamp(f.CategoryRisk+f.GraphProximity+f.Age+f.Verification+f.Language, 0, 100)
	tier := TierFor(score)
	return model.ChannelPriority{
		Username: ch.Username,
		Score:    score,
		Tier:     tier,
		Cadence:  model.CadenceFor(tier),
		Category: cat,
		Factors:  f,
	}
}

// Batch prioritizes every channel, highest score first, then by username.
func (p *Prioritizer) Batch(channels []model.Channel, now time.Time) []model.ChannelPriority {
	out := make([]model.ChannelPriority, 0, len(channels))
	for _, ch := range channels {
		out = append(out, p.Prioritize(ch, now))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Username < out[j].Username
	})
	return out
}

// TierFor maps a score to its monitoring tier.
func TierFor(score int) model.MonitorTier {
	switch {
	case score >= Tier1Min:
		return model.Tier1
	case score >= Tier2Min:
		return model.Tier2
	case score >= Tier3Min:
		return model.Tier3
	default:
		return model.Tier4
	}
}

// ageScore rounds years*3 so a channel created exactly N years ago gets
// 3N points despite leap days.
func ageScore(created, now time.Time) int {
	if created.IsZero() || !created.Before(now) {
		return 0
	}
	years := now.Sub(created).Hours() / (24 * 365.25)
	return clamp(int(math.Round(years*agePointsPerYear)), 0, MaxAge)
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
