// Package lexicon is the single source of keyword knowledge: signal patterns
// and weights per category, canonical locations with their aliases, the
// incident relevance terms used by feed collection, and the channel
// classifier indicators.
//
// A Lexicon is immutable after Parse. Every scoring path in the repository
// reads from the same *Lexicon for a batch; two batches with different
// tables can run side by side.
package lexicon

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/model"
)

//go:embed default.yaml
var embeddedFS embed.FS

var (
	// ErrMissingCategory means a scored category has no weight or no
	// patterns. Scoring with such a table would silently under-score every
	// post, so it is fatal.
	ErrMissingCategory = errors.New("lexicon: category missing")

	// ErrInvalid covers every other structural problem in a lexicon file.
	ErrInvalid = errors.New("lexicon: invalid")
)

// Location is a canonical place with its synonyms.
type Location struct {
	Name    string             `yaml:"name"`
	Kind    model.LocationKind `yaml:"kind"`
	Lat     float64            `yaml:"lat"`
	Lon     float64            `yaml:"lon"`
	Aliases []string           `yaml:"aliases"`
}

// Indicator ties a set of username/title substrings to a channel category
// and its risk points.
type Indicator struct {
	Category model.ChannelCategory `yaml:"category"`
	Risk     int                   `yaml:"risk"`
	Terms    []string              `yaml:"terms"`
}

// file is the on-disk shape.
type file struct {
	Version           string              `yaml:"version"`
	Weights           map[string]float64  `yaml:"weights"`
	Patterns          map[string][]string `yaml:"patterns"`
	Locations         []Location          `yaml:"locations"`
	IncidentTerms     []string            `yaml:"incident_terms"`
	ChannelIndicators []Indicator         `yaml:"channel_indicators"`
}

// Pattern is one compiled signal pattern.
type Pattern struct {
	Source string
	re     *regexp.Regexp
}

// Find returns the first match of p in text, or "" when there is none.
func (p Pattern) Find(text string) string {
	return p.re.FindString(text)
}

// Lexicon is a validated, compiled keyword table.
type Lexicon struct {
	version       string
	weights       map[model.Category]float64
	patterns      map[model.Category][]Pattern
	locations     []Location
	incidentTerms []string
	indicators    []Indicator
}

// Default returns the built-in lexicon. It panics if the embedded table is
// broken, which the package tests rule out.
func Default() *Lexicon {
	b, err := fs.ReadFile(embeddedFS, "default.yaml")
	if err != nil {
		panic(err)
	}
	lex, err := Parse(b)
	if err != nil {
		panic(err)
	}
	return lex
}

// Load reads and validates a lexicon file.
func Load(path string) (*Lexicon, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}
	lex, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return lex, nil
}

// LoadOrDefault loads path when it is set, the built-in table otherwise.
func LoadOrDefault(path string) (*Lexicon, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Parse decodes, validates and compiles a YAML lexicon.
func Parse(data []byte) (*Lexicon, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return compile(f)
}

func compile(f file) (*Lexicon, error) {
	if strings.TrimSpace(f.Version) == "" {
		return nil, fmt.Errorf("%w: version is required", ErrInvalid)
	}

	lex := &Lexicon{
		version:  f.Version,
		weights:  make(map[model.Category]float64, len(f.Weights)),
		patterns: make(map[model.Category][]Pattern, len(f.Patterns)),
	}

	for name, w := range f.Weights {
		c, err := model.ParseCategory(name)
		if err != nil {
			return nil, fmt.Errorf("%w: weights: %v", ErrInvalid, err)
		}
		if w < 0 {
			return nil, fmt.Errorf("%w: weight for %s is negative", ErrInvalid, c)
		}
		lex.weights[c] = w
	}

	for name, srcs := range f.Patterns {
		c, err := model.ParseCategory(name)
		if err != nil {
			return nil, fmt.Errorf("%w: patterns: %v", ErrInvalid, err)
		}
		for _, src := range srcs {
			re, err := regexp.Compile("(?i)" + src)
			if err != nil {
				return nil, fmt.Errorf("%w: %s pattern %q: %v", ErrInvalid, c, src, err)
			}
			lex.patterns[c] = append(lex.patterns[c], Pattern{Source: src, re: re})
		}
	}

	for _, c := range model.ScoredCategories {
		if _, ok := lex.weights[c]; !ok {
			return nil, fmt.Errorf("%w: no weight for %s", ErrMissingCategory, c)
		}
		if len(lex.patterns[c]) == 0 {
			return nil, fmt.Errorf("%w: no patterns for %s", ErrMissingCategory, c)
		}
	}

	for i, loc := range f.Locations {
		if strings.TrimSpace(loc.Name) == "" {
			return nil, fmt.Errorf("%w: location %d has no name", ErrInvalid, i)
		}
		kind, err := model.ParseLocationKind(string(loc.Kind))
		if err != nil {
			return nil, fmt.Errorf("%w: location %q: %v", ErrInvalid, loc.Name, err)
		}
		loc.Kind = kind
		loc.Aliases = append([]string(nil), loc.Aliases...)
		lex.locations = append(lex.locations, loc)
	}

	for _, t := range f.IncidentTerms {
		if t = normalize(t); t != "" {
			lex.incidentTerms = append(lex.incidentTerms, t)
		}
	}

	for _, ind := range f.ChannelIndicators {
		cat, err := model.ParseChannelCategory(string(ind.Category))
		if err != nil {
			return nil, fmt.Errorf("%w: channel indicator: %v", ErrInvalid, err)
		}
		if ind.Risk < 0 || ind.Risk > 40 {
			return nil, fmt.Errorf("%w: channel indicator %s risk %d outside 0..40", ErrInvalid, cat, ind.Risk)
		}
		terms := make([]string, 0, len(ind.Terms))
		for _, t := range ind.Terms {
			if t = normalize(t); t != "" {
				terms = append(terms, t)
			}
		}
		lex.indicators = append(lex.indicators, Indicator{Category: cat, Risk: ind.Risk, Terms: terms})
	}
	// Highest risk first; file order breaks ties.
	sort.SliceStable(lex.indicators, func(i, j int) bool {
		return lex.indicators[i].Risk > lex.indicators[j].Risk
	})

	return lex, nil
}

// Version identifies the table a result was computed with.
func (l *Lexicon) Version() string { return l.version }

// Weight returns the configured weight for c.
func (l *Lexicon) Weight(c model.Category) float64 { return l.weights[c] }

// Patterns returns the compiled patterns for c. Callers must not modify the
// returned slice.
func (l *Lexicon) Patterns(c model.Category) []Pattern { return l.patterns[c] }

// Locations returns a copy of the canonical location table.
func (l *Lexicon) Locations() []Location {
	out := make([]Location, len(l.locations))
	copy(out, l.locations)
	return out
}

// Indicators returns the channel classifier rules, highest risk first.
func (l *Lexicon) Indicators() []Indicator {
	out := make([]Indicator, len(l.indicators))
	copy(out, l.indicators)
	return out
}

// IsIncident reports whether text mentions any incident term as a whole
// word.
func (l *Lexicon) IsIncident(text string) bool {
	lower := strings.ToLower(text)
	for _, t := range l.incidentTerms {
		if ContainsWord(lower, t) {
			return true
		}
	}
	return false
}

// KnownLocation returns the first location term (canonical name or alias)
// found in text, or "". The target_mention category counts it as one extra
// pattern hit.
func (l *Lexicon) KnownLocation(text string) string {
	lower := strings.ToLower(text)
	for _, loc := range l.locations {
		if n := normalize(loc.Name); ContainsWord(lower, n) {
			return n
		}
		for _, a := range loc.Aliases {
			if a = normalize(a); a != "" && ContainsWord(lower, a) {
				return a
			}
		}
	}
	return ""
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
