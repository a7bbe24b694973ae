// Package fetch retrieves incident reports from RSS and Atom news feeds.
//
// Feed items become model.Incident records. Items that do not mention any of
// the lexicon's incident terms (drone, UAV, airspace closed, ...) are
// dropped, so a general news feed yields only drone-related reports.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
	"golang.org/x/time/rate"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/lexicon"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/model"
)

const userAgent = "cuas-osint/1.0 (+https://github.com/MarcellusVR007/drone-cuas-osint-dashboard)"

// maxTextLen bounds the stored incident body, in runes.
const maxTextLen = 2000

// Result is what one feed produced.
type Result struct {
	Incidents []model.Incident
	Seen      int // Items in the feed before filtering
}

// Fetcher retrieves incidents from feed sources. Requests share one rate
// limiter, so concurrent callers are paced together.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	lex     *lexicon.Lexicon
}

// NewFetcher creates a Fetcher with the given HTTP timeout and minimum
// spacing between requests. A zero spacing disables pacing.
func NewFetcher(lex *lexicon.Lexicon, timeout, spacing time.Duration) *Fetcher {
	limit := rate.Inf
	if spacing > 0 {
		limit = rate.Every(spacing)
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
		lex:     lex,
	}
}

// Fetch retrieves one source. Does NOT store anything - caller decides what
// to do with the incidents.
//
// The function respects context cancellation, including while waiting for
// the rate limiter.
func (f *Fetcher) Fetch(ctx context.Context, src Source) (Result, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("parse feed: %w", err)
	}

	now := time.Now().UTC()
	res := Result{Seen: len(feed.Items)}
	for _, item := range feed.Items {
		inc := convertItem(item, src, now)
		if !f.lex.IsIncident(inc.RecordText()) {
			continue
		}
		res.Incidents = append(res.Incidents, inc)
	}
	return res, nil
}

// convertItem converts a feed item to an incident.
func convertItem(item *gofeed.Item, src Source, fetchTime time.Time) model.Incident {
	occurred := fetchTime
	if item.PublishedParsed != nil {
		occurred = item.PublishedParsed.UTC()
	} else if item.UpdatedParsed != nil {
		occurred = item.UpdatedParsed.UTC()
	}

	body := item.Description
	if body == "" {
		body = item.Content
	}

	return model.Incident{
		ID:        generateID(item),
		Title:     strings.TrimSpace(item.Title),
		Text:      truncate(plainText(body), maxTextLen),
		Timestamp: occurred,
		Location:  model.Location{Coords: geoPoint(item)},
		Source:    src.Name,
		URL:       item.Link,
	}
}

// generateID creates a deterministic ID for a feed item.
// Uses the GUID if available, otherwise hashes the URL.
func generateID(item *gofeed.Item) string {
	if item.GUID != "" {
		return hashString(item.GUID)
	}
	if item.Link != "" {
		return hashString(item.Link)
	}
	key := item.Title
	if item.PublishedParsed != nil {
		key += item.PublishedParsed.String()
	}
	return hashString(key)
}

// hashString creates a short hash of a string for use as an ID.
func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:8]) // 16 character hex string
}

// plainText strips markup from a feed body and collapses whitespace.
func plainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// geoPoint reads W3C Basic Geo (geo:lat / geo:long) or GeoRSS simple
// (georss:point) coordinates when the feed carries them.
func geoPoint(item *gofeed.Item) *model.Coordinates {
	exts := item.Extensions
	if exts == nil {
		return nil
	}
	if g, ok := exts["geo"]; ok {
		lat, okLat := extFloat(g["lat"])
		lon, okLon := extFloat(g["long"])
		if okLat && okLon {
			return &model.Coordinates{Lat: lat, Lon: lon}
		}
	}
	if g, ok := exts["georss"]; ok && len(g["point"]) > 0 {
		parts := strings.Fields(g["point"][0].Value)
		if len(parts) == 2 {
			lat, err1 := strconv.ParseFloat(parts[0], 64)
			lon, err2 := strconv.ParseFloat(parts[1], 64)
			if err1 == nil && err2 == nil {
				return &model.Coordinates{Lat: lat, Lon: lon}
			}
		}
	}
	return nil
}

func extFloat(vals []ext.Extension) (float64, bool) {
	if len(vals) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(vals[0].Value), 64)
	return v, err == nil
}

// truncate shortens a string to maxLen runes, adding "..." if truncated.
// Uses rune-aware slicing to avoid breaking UTF-8 characters.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
