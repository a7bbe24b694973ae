// Package geo resolves free-text place references to canonical locations.
//
// Resolution runs in two stages: canonical names first, then aliases. Both
// match whole words, case-insensitively. Within a stage the longest matched
// term wins; equal lengths fall back to the lexicographically smallest
// canonical name. When the text names more than one distinct canonical
// location the result is still resolved but flagged Ambiguous with every
// candidate, so the alias table can be corrected.
package geo

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/lexicon"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/model"
)

var (
	// ErrAliasCollision means one term maps to two canonical locations.
	ErrAliasCollision = errors.New("geo: alias collision")

	// ErrAmbiguousLocation is reported when a text names several canonical
	// locations.
	ErrAmbiguousLocation = errors.New("geo: ambiguous location")
)

// Place is a canonical location.
type Place struct {
	Name   string             `json:"name"`
	Kind   model.LocationKind `json:"kind"`
	Coords model.Coordinates  `json:"coords"`
}

// Resolution is the outcome of resolving one text.
type Resolution struct {
	Place      Place             `json:"place"`
	Method     model.MatchMethod `json:"method,omitempty"`
	Term       string            `json:"term,omitempty"`
	Ambiguous  bool              `json:"ambiguous,omitempty"`
	Candidates []string          `json:"candidates,omitempty"` // Sorted; set when Ambiguous
}

// OK reports whether a canonical location was found.
func (r Resolution) OK() bool { return r.Place.Name != "" }

// Err returns ErrAmbiguousLocation, wrapped with the candidates, when the
// resolution is ambiguous.
func (r Resolution) Err() error {
	if !r.Ambiguous {
		return nil
	}
	return fmt.Errorf("%w: %s (picked %q)", ErrAmbiguousLocation, strings.Join(r.Candidates, ", "), r.Place.Name)
}

type term struct {
	text   string
	place  string
	method model.MatchMethod
}

// Resolver is immutable once built and safe for concurrent use.
type Resolver struct {
	places map[string]Place
	names  []term // canonical names, longest first
	alias  []term // aliases, longest first
}

// NewResolver builds a resolver from a location table. Every term, canonical
// or alias, must belong to exactly one location.
func NewResolver(locs []lexicon.Location) (*Resolver, error) {
	r := &Resolver{places: make(map[string]Place, len(locs))}
	owner := make(map[string]string)

	claim := func(text, place string) (bool, error) {
		text = strings.ToLower(strings.TrimSpace(text))
		if text == "" {
			return false, nil
		}
		if prev, ok := owner[text]; ok {
			if prev == place {
				return false, nil
			}
			return false, fmt.Errorf("%w: %q belongs to both %q and %q", ErrAliasCollision, text, prev, place)
		}
		owner[text] = place
		return true, nil
	}

	for _, loc := range locs {
		name := strings.TrimSpace(loc.Name)
		if _, dup := r.places[name]; dup {
			return nil, fmt.Errorf("%w: location %q listed twice", ErrAliasCollision, name)
		}
		r.places[name] = Place{
			Name:   name,
			Kind:   loc.Kind,
			Coords: model.Coordinates{Lat: loc.Lat, Lon: loc.Lon},
		}
		if _, err := claim(name, name); err != nil {
			return nil, err
		}
		r.names = append(r.names, term{text: strings.ToLower(name), place: name, method: model.MatchCanonical})
	}
	for _, loc := range locs {
		name := strings.TrimSpace(loc.Name)
		for _, a := range loc.Aliases {
			added, err := claim(a, name)
			if err != nil {
				return nil, err
			}
			if added {
				r.alias = append(r.alias, term{text: strings.ToLower(strings.TrimSpace(a)), place: name, method: model.MatchAlias})
			}
		}
	}

	sortTerms(r.names)
	sortTerms(r.alias)
	return r, nil
}

// sortTerms orders by the tie-break rule so the first hit is the winner.
func sortTerms(ts []term) {
	sort.Slice(ts, func(i, j int) bool {
		if len(ts[i].text) != len(ts[j].text) {
			return len(ts[i].text) > len(ts[j].text)
		}
		if ts[i].place != ts[j].place {
			return ts[i].place < ts[j].place
		}
		return ts[i].text < ts[j].text
	})
}

// Resolve maps text to a canonical location. A zero Resolution means no
// match.
func (r *Resolver) Resolve(text string) Resolution {
	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) == "" {
		return Resolution{}
	}

	var winner *term
	matched := make(map[string]bool)
	for _, stage := range [][]term{r.names, r.alias} {
		for i := range stage {
			t := &stage[i]
			if !lexicon.ContainsWord(lower, t.text) {
				continue
			}
			matched[t.place] = true
			if winner == nil {
				winner = t
			}
		}
	}
	if winner == nil {
		return Resolution{}
	}

	res := Resolution{
		Place:  r.places[winner.place],
		Method: winner.method,
		Term:   winner.text,
	}
	if len(matched) > 1 {
		res.Ambiguous = true
		for name := range matched {
			res.Candidates = append(res.Candidates, name)
		}
		sort.Strings(res.Candidates)
	}
	return res
}

// Place looks up a canonical location by name.
func (r *Resolver) Place(name string) (Place, bool) {
	p, ok := r.places[name]
	return p, ok
}

// Places returns every canonical location sorted by name.
func (r *Resolver) Places() []Place {
	out := make([]Place, 0, len(r.places))
	for _, p := range r.places {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
