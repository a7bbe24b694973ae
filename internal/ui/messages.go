// Package ui provides the Bubble Tea report viewer for cuas.
package ui

import (
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/otel"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/store"
)

// ReportLoaded is sent when the latest run has been read from the store.
// A nil Run with a nil Err means no run has been recorded yet.
type ReportLoaded struct {
	Run *store.Run
	Err error
}

// EventsLoaded carries the most recent run events, oldest first.
type EventsLoaded struct {
	Events []otel.Event
}

// FetchComplete is sent when one incident feed finishes during a background
// collection cycle.
type FetchComplete struct {
	Source string
	New    int
	Err    error
}

// BatchComplete is sent when a batch started from the viewer has been
// stored.
type BatchComplete struct {
	RunID string
	Err   error
}

// RefreshTick triggers periodic refresh.
type RefreshTick struct{}
