// Package signal scans post text against the lexicon and reports, per
// category, which patterns fired.
package signal

import (
	"sort"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/lexicon"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/model"
)

// MaxCounted is the number of pattern hits after which a category stops
// gaining weight.
const MaxCounted = 3

// Signals maps each scored category to its hit. Every scored category is
// present, with a zero hit when nothing matched.
type Signals map[model.Category]model.CategoryHit

// Categories returns the categories with at least one hit, in reporting
// order.
func (s Signals) Categories() []model.Category {
	var out []model.Category
	for _, c := range model.ScoredCategories {
		if s[c].MatchCount > 0 {
			out = append(out, c)
		}
	}
	return out
}

// Empty reports whether no category matched.
func (s Signals) Empty() bool {
	for _, h := range s {
		if h.MatchCount > 0 {
			return false
		}
	}
	return true
}

// Extractor runs one lexicon over texts. It holds no mutable state and is
// safe for concurrent use.
type Extractor struct {
	lex *lexicon.Lexicon
}

// NewExtractor returns an extractor bound to lex.
func NewExtractor(lex *lexicon.Lexicon) *Extractor {
	return &Extractor{lex: lex}
}

// Extract matches every pattern of every category independently. A pattern
// counts once regardless of how often it occurs. Empty text yields all-zero
// signals.
//
// target_mention also gets one hit when the text names a known location,
// so the location table and the pattern table never disagree about what a
// target is.
func (e *Extractor) Extract(text string) Signals {
	out := make(Signals, len(model.ScoredCategories))
	for _, c := range model.ScoredCategories {
		var hit model.CategoryHit
		if text != "" {
			for _, p := range e.lex.Patterns(c) {
				if m := p.Find(text); m != "" {
					hit.MatchCount++
					hit.Matched = append(hit.Matched, m)
				}
			}
			if c == model.CategoryTarget {
				if term := e.lex.KnownLocation(text); term != "" {
					hit.MatchCount++
					hit.Matched = append(hit.Matched, term)
				}
			}
		}
		hit.Normalized = normalized(hit.MatchCount)
		out[c] = hit
	}
	return out
}

func normalized(n int) float64 {
	if n > MaxCounted {
		n = MaxCounted
	}
	return float64(n) / MaxCounted
}

// Keywords flattens every matched term, sorted and deduplicated.
func (s Signals) Keywords() []string {
	seen := make(map[string]bool)
	var out []string
	for _, h := range s {
		for _, m := range h.Matched {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	sort.Strings(out)
	return out
}
