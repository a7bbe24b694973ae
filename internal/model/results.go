package model

import "time"

// CategoryHit is the extractor's output for one signal category.
type CategoryHit struct {
	MatchCount int      `json:"match_count"` // Distinct patterns that matched
	Matched    []string `json:"matched"`     // Matched text, one entry per pattern
	Normalized float64  `json:"normalized"`  // min(MatchCount, 3) / 3
}

// ScoredPost carries the values derived for one post: its score and tier,
// the categories that fired, the payment (supplied or extracted) and the
// incidents it was correlated with.
type ScoredPost struct {
	PostID          string           `json:"post_id"`
	ChannelID       string           `json:"channel_id"`
	Score           int              `json:"score"`
	Tier            Severity         `json:"tier"`
	Categories      []Category       `json:"matched_categories"`
	Payment         *Payment         `json:"payment,omitempty"`
	Location        string           `json:"location,omitempty"` // Canonical target, if resolved
	CorrelationRefs []CorrelationRef `json:"correlations,omitempty"`
}

// MatchMethod records how a text resolved to a canonical location.
type MatchMethod string

const (
	MatchCanonical   MatchMethod = "canonical"   // Canonical name found verbatim
	MatchAlias       MatchMethod = "alias"       // Synonym found
	MatchCoordinates MatchMethod = "coordinates" // Nearest canonical by distance
)

// MatchBasis explains why a post and an incident were placed at the same
// location.
type MatchBasis struct {
	Location       string      `json:"location"`
	PostMethod     MatchMethod `json:"post_method"`
	PostTerm       string      `json:"post_term"`
	IncidentMethod MatchMethod `json:"incident_method"`
	IncidentTerm   string      `json:"incident_term"`
}

// Correlation links a post to an incident that happened at the same
// canonical location within the correlation window after it.
type Correlation struct {
	PostID     string     `json:"post_id"`
	IncidentID string     `json:"incident_id"`
	DaysDelta  int        `json:"days_delta"` // incident - post, whole days
	Strength   Strength   `json:"strength"`
	Basis      MatchBasis `json:"location_match_basis"`
}

// CorrelationRef is a correlation as seen from the post side.
type CorrelationRef struct {
	IncidentID string   `json:"incident_id"`
	Strength   Strength `json:"strength"`
}

// Hypotheses for an expired prediction window. They are mutually exclusive
// and deliberately left for an analyst to adjudicate.
const (
	HypothesisUnrecorded = "Incident occurred but was not recorded in the incident database"
	HypothesisDisrupted  = "Operation was disrupted or abandoned before execution"
	HypothesisFalseAlarm = "Post was a false positive (no real operation behind it)"
)

// ExpiredHypotheses returns the three candidate explanations in a fresh
// slice so callers may keep it.
func ExpiredHypotheses() []string {
	return []string{HypothesisUnrecorded, HypothesisDisrupted, HypothesisFalseAlarm}
}

// PredictionWindow is the hypothesized time range for a future incident
// derived from a post that no recorded incident explains.
type PredictionWindow struct {
	PostID     string           `json:"post_id"`
	Location   string           `json:"location"`
	Start      time.Time        `json:"start"`
	End        time.Time        `json:"end"`
	Status     PredictionStatus `json:"status"`
	AgeDays    int              `json:"age_days"`
	Hypotheses []string         `json:"hypotheses,omitempty"` // Set only when EXPIRED
}
