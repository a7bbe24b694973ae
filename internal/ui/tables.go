package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/model"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/otel"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/store"
)

// Tab identifies one report view.
type Tab int

const (
	TabPosts Tab = iota
	TabCorrelations
	TabPredictions
	TabChannels
	TabEvents
	tabCount
)

var tabNames = [tabCount]string{"Posts", "Correlations", "Predictions", "Channels", "Events"}

func (t Tab) String() string { return tabNames[t] }

var tabColumns = [tabCount][]table.Column{
	TabPosts: {
		{Title: "Post", Width: 14},
		{Title: "Channel", Width: 16},
		{Title: "Score", Width: 5},
		{Title: "Tier", Width: 8},
		{Title: "Target", Width: 26},
		{Title: "Payment", Width: 12},
		{Title: "Categories", Width: 40},
		{Title: "Incidents", Width: 20},
	},
	TabCorrelations: {
		{Title: "Post", Width: 14},
		{Title: "Incident", Width: 18},
		{Title: "Days", Width: 4},
		{Title: "Strength", Width: 8},
		{Title: "Location", Width: 26},
		{Title: "Basis", Width: 44},
	},
	TabPredictions: {
		{Title: "Post", Width: 14},
		{Title: "Location", Width: 26},
		{Title: "Window", Width: 23},
		{Title: "Age", Width: 4},
		{Title: "Status", Width: 8},
		{Title: "Hypotheses", Width: 50},
	},
	TabChannels: {
		{Title: "Channel", Width: 22},
		{Title: "Score", Width: 5},
		{Title: "Tier", Width: 6},
		{Title: "Cadence", Width: 8},
		{Title: "Category", Width: 13},
		{Title: "Risk/Graph/Age/Ver/Lang", Width: 24},
	},
	TabEvents: {
		{Title: "Age", Width: 6},
		{Title: "Level", Width: 5},
		{Title: "Kind", Width: 20},
		{Title: "Record", Width: 16},
		{Title: "Detail", Width: 60},
	},
}

// rowsFor builds the rows of one tab. A nil run yields no rows except on
// the events tab.
func rowsFor(tab Tab, run *store.Run, events []otel.Event, now time.Time) []table.Row {
	if tab == TabEvents {
		return eventRows(events, now)
	}
	if run == nil {
		return nil
	}
	switch tab {
	case TabPosts:
		return postRows(run.Scores)
	case TabCorrelations:
		return correlationRows(run.Correlations)
	case TabPredictions:
		return predictionRows(run.Predictions)
	case TabChannels:
		return channelRows(run.Channels)
	}
	return nil
}

func postRows(scores []model.ScoredPost) []table.Row {
	rows := make([]table.Row, 0, len(scores))
	for _, s := range scores {
		cats := make([]string, len(s.Categories))
		for i, c := range s.Categories {
			cats[i] = string(c)
		}
		refs := make([]string, len(s.CorrelationRefs))
		for i, r := range s.CorrelationRefs {
			refs[i] = r.IncidentID
		}
		rows = append(rows, table.Row{
			s.PostID,
			s.ChannelID,
			fmt.Sprintf("%d", s.Score),
			string(s.Tier),
			dash(s.Location),
			formatPayment(s.Payment),
			dash(strings.Join(cats, ", ")),
			dash(strings.Join(refs, ", ")),
		})
	}
	return rows
}

func correlationRows(corrs []model.Correlation) []table.Row {
	rows := make([]table.Row, 0, len(corrs))
	for _, c := range corrs {
		basis := fmt.Sprintf("post %s %q, incident %s %q",
			c.Basis.PostMethod, c.Basis.PostTerm, c.Basis.IncidentMethod, c.Basis.IncidentTerm)
		rows = append(rows, table.Row{
			c.PostID,
			c.IncidentID,
			fmt.Sprintf("%d", c.DaysDelta),
			string(c.Strength),
			c.Basis.Location,
			basis,
		})
	}
	return rows
}

func predictionRows(preds []model.PredictionWindow) []table.Row {
	rows := make([]table.Row, 0, len(preds))
	for _, p := range preds {
		rows = append(rows, table.Row{
			p.PostID,
			p.Location,
			p.Start.Format("2006-01-02") + " → " + p.End.Format("01-02"),
			fmt.Sprintf("%dd", p.AgeDays),
			string(p.Status),
			dash(strings.Join(p.Hypotheses, " | ")),
		})
	}
	return rows
}

func channelRows(chans []model.ChannelPriority) []table.Row {
	rows := make([]table.Row, 0, len(chans))
	for _, c := range chans {
		f := c.Factors
		rows = append(rows, table.Row{
			"@" + c.Username,
			fmt.Sprintf("%d", c.Score),
			string(c.Tier),
			c.Cadence.String(),
			string(c.Category),
			fmt.Sprintf("%d/%d/%d/%d/%d", f.CategoryRisk, f.GraphProximity, f.Age, f.Verification, f.Language),
		})
	}
	return rows
}

// eventRows lists events newest first.
func eventRows(events []otel.Event, now time.Time) []table.Row {
	rows := make([]table.Row, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		rec := e.RecordID
		if e.RecordKind != "" && rec != "" {
			rec = e.RecordKind + ":" + rec
		}
		rows = append(rows, table.Row{
			formatAge(now.Sub(e.Time)),
			strings.ToUpper(string(e.Level)),
			string(e.Kind),
			dash(rec),
			eventDetail(e),
		})
	}
	return rows
}

func eventDetail(e otel.Event) string {
	var parts []string
	if e.Source != "" {
		parts = append(parts, "src="+e.Source)
	}
	if e.Location != "" {
		parts = append(parts, "at "+e.Location)
	}
	if e.Count > 0 {
		parts = append(parts, fmt.Sprintf("n=%d", e.Count))
	}
	if e.Msg != "" {
		parts = append(parts, truncateRunes(e.Msg, 60))
	}
	if e.Err != "" {
		parts = append(parts, "ERR:"+truncateRunes(e.Err, 40))
	}
	return strings.Join(parts, " ")
}

func formatPayment(p *model.Payment) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%g %s", p.Amount, p.Currency)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatAge formats a duration as a compact human string.
// Handles negative durations from clock skew by clamping to "0ms".
func formatAge(d time.Duration) string {
	if d < 0 {
		return "0ms"
	}
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%.0fm", d.Minutes())
	default:
		return fmt.Sprintf("%.0fh", d.Hours())
	}
}

// truncateRunes shortens s to max runes, appending "..." if truncated.
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
