package fetch

import (
	"strings"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/config"
)

// Source is one incident feed.
type Source struct {
	Name string // Display name, stored as Incident.Source
	URL  string
}

// SourcesFrom converts configured feeds, dropping entries without a URL and
// naming unnamed ones after their URL.
func SourcesFrom(feeds []config.Feed) []Source {
	out := make([]Source, 0, len(feeds))
	for _, f := range feeds {
		url := strings.TrimSpace(f.URL)
		if url == "" {
			continue
		}
		name := strings.TrimSpace(f.Name)
		if name == "" {
			name = url
		}
		out = append(out, Source{Name: name, URL: url})
	}
	return out
}
