package otel

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// Filter selects events when reading a log back. Zero fields match
// everything.
type Filter struct {
	KindPrefix string
	MinLevel   Level
	Comp       string
	RunID      string
}

// Match reports whether e passes the filter.
func (f Filter) Match(e Event) bool {
	if f.KindPrefix != "" && !strings.HasPrefix(string(e.Kind), f.KindPrefix) {
		return false
	}
	if f.MinLevel != "" && e.Level.Rank() < f.MinLevel.Rank() {
		return false
	}
	if f.Comp != "" && e.Comp != f.Comp {
		return false
	}
	if f.RunID != "" && e.RunID != f.RunID {
		return false
	}
	return true
}

// Line is one decoded JSONL line together with its raw bytes.
type Line struct {
	Event Event
	Raw   []byte
}

// ReadTail returns the last n lines of r that decode and match f, oldest
// first. Lines that are not valid events are skipped.
func ReadTail(r io.Reader, n int, f Filter) ([]Line, error) {
	if n <= 0 {
		return nil, nil
	}
	scanner := bufio.NewScanner(r)
	// Allow large lines (some events carry big Extra maps)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	ring := make([]Line, 0, n)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ev Event
		if json.Unmarshal(raw, &ev) != nil || !f.Match(ev) {
			continue
		}
		line := Line{Event: ev, Raw: append([]byte(nil), raw...)}
		if len(ring) < n {
			ring = append(ring, line)
			continue
		}
		copy(ring, ring[1:])
		ring[n-1] = line
	}
	return ring, scanner.Err()
}
