package model

import (
	"fmt"
	"time"
)

// Channel is a candidate monitoring source discovered by a collaborator.
type Channel struct {
	Username        string          `json:"username"`
	Title           string          `json:"title"`
	CreatedAt       time.Time       `json:"created_at"`
	Category        ChannelCategory `json:"category,omitempty"` // Derived when empty
	Verified        bool            `json:"verified"`
	SubscriberCount int             `json:"subscriber_count"`
	Language        string          `json:"language,omitempty"` // ISO 639-1; detected when empty

	// Hops is the graph distance from a seed channel: 0 for a seed, 1 for a
	// channel found via a seed's forwards or links, nil when unknown.
	Hops *int `json:"hops,omitempty"`
}

// HopCount returns a Hops value of n.
func HopCount(n int) *int { return &n }

// Proximate reports whether ch is a seed or one hop from one.
func (ch Channel) Proximate() bool {
	return ch.Hops != nil && (*ch.Hops == 0 || *ch.Hops == 1)
}

// MonitorTier is the monitoring priority bucket for a channel.
type MonitorTier string

const (
	Tier1 MonitorTier = "TIER1"
	Tier2 MonitorTier = "TIER2"
	Tier3 MonitorTier = "TIER3"
	Tier4 MonitorTier = "TIER4"
)

// Cadence is the recommended check interval range for a tier.
type Cadence struct {
	Min time.Duration `json:"min"`
	Max time.Duration `json:"max"`
}

// Cadence presets per tier.
var (
	CadenceHourly   = Cadence{Min: time.Hour, Max: time.Hour}
	CadenceFrequent = Cadence{Min: 2 * time.Hour, Max: 4 * time.Hour}
	CadenceTwiceDay = Cadence{Min: 12 * time.Hour, Max: 12 * time.Hour}
	CadenceWeekly   = Cadence{Min: 7 * 24 * time.Hour, Max: 7 * 24 * time.Hour}
)

// CadenceFor returns the recommended cadence for a tier.
func CadenceFor(t MonitorTier) Cadence {
	switch t {
	case Tier1:
		return CadenceHourly
	case Tier2:
		return CadenceFrequent
	case Tier3:
		return CadenceTwiceDay
	default:
		return CadenceWeekly
	}
}

// String renders a cadence the way analysts read it ("1h", "2h-4h").
func (c Cadence) String() string {
	if c.Min == c.Max {
		return shortDuration(c.Min)
	}
	return shortDuration(c.Min) + "-" + shortDuration(c.Max)
}

func shortDuration(d time.Duration) string {
	if d%(24*time.Hour) == 0 {
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	}
	return fmt.Sprintf("%dh", d/time.Hour)
}

// ChannelPriority is the prioritizer's verdict for one channel.
type ChannelPriority struct {
	Username string          `json:"username"`
	Score    int             `json:"score"`
	Tier     MonitorTier     `json:"tier"`
	Cadence  Cadence         `json:"cadence"`
	Category ChannelCategory `json:"category"`
	Factors  Factors         `json:"factors"`
}

// Factors is the per-factor breakdown behind a channel score.
type Factors struct {
	CategoryRisk   int `json:"category_risk"`
	GraphProximity int `json:"graph_proximity"`
	Age            int `json:"age"`
	Verification   int `json:"verification"`
	Language       int `json:"language"`
}

// IsDue reports whether a channel last checked at lastChecked should be
// checked again at now, using the lower bound of its tier cadence.
func (p ChannelPriority) IsDue(lastChecked, now time.Time) bool {
	if lastChecked.IsZero() {
		return true
	}
	return now.Sub(lastChecked) >= p.Cadence.Min
}
