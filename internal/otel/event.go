// Package otel records what a run did as typed events.
//
// Events are serialized as JSONL lines by an asynchronous Logger. An optional
// RingBuffer keeps the most recent events in memory for the report viewer's
// event panel. `cuas events` reads the JSONL file back.
package otel

import (
	"encoding/json"
	"strings"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Rank orders levels for minimum-level filters. Unknown levels rank as
// debug.
func (l Level) Rank() int {
	switch l {
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 0
	}
}

// EventKind identifies the category of an event.
// Dot-delimited: "<subsystem>.<action>".
type EventKind string

const (
	// Batch events
	KindBatchStart    EventKind = "batch.start"
	KindBatchComplete EventKind = "batch.complete"
	KindBatchAbort    EventKind = "batch.abort" // Configuration error
	KindRecordSkipped EventKind = "record.skipped"

	// Core events
	KindPostScored         EventKind = "score.post"
	KindGeoAmbiguous       EventKind = "geo.ambiguous"
	KindCorrelatePair      EventKind = "correlate.pair" // Only with CUAS_TRACE
	KindCorrelateComplete  EventKind = "correlate.complete"
	KindPredictComplete    EventKind = "predict.complete"
	KindChannelPrioritized EventKind = "channel.prioritized"

	// Collection events
	KindFetchStart    EventKind = "fetch.start"
	KindFetchComplete EventKind = "fetch.complete"
	KindFetchError    EventKind = "fetch.error"
	KindImport        EventKind = "import.complete"

	// Store events
	KindStoreSave  EventKind = "store.save"
	KindStoreError EventKind = "store.error"

	// System events
	KindStartup  EventKind = "sys.startup"
	KindShutdown EventKind = "sys.shutdown"
)

// Subsystem returns the part before the first dot.
func (k EventKind) Subsystem() string {
	s, _, _ := strings.Cut(string(k), ".")
	return s
}

// Event is one observability record. Every field except Kind and Time is
// optional. Serialized as a single JSONL line.
type Event struct {
	Time       time.Time      `json:"t"`
	Level      Level          `json:"level,omitempty"`
	Kind       EventKind      `json:"kind"`
	Comp       string         `json:"comp,omitempty"`       // component: "pipeline", "coord", "fetch", "cli"
	SessionID  string         `json:"session_id,omitempty"` // random hex, same for the whole process
	RunID      string         `json:"run_id,omitempty"`     // batch run this event belongs to
	Dur        time.Duration  `json:"-"`                    // not serialized directly
	DurMs      float64        `json:"dur_ms,omitempty"`     // computed from Dur at marshal time
	Count      int            `json:"count,omitempty"`
	RecordID   string         `json:"record_id,omitempty"`
	RecordKind string         `json:"record_kind,omitempty"`
	Source     string         `json:"source,omitempty"`
	Location   string         `json:"location,omitempty"`
	Err        string         `json:"err,omitempty"`
	Msg        string         `json:"msg,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// MarshalJSON implements json.Marshaler, converting Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type alias Event
	a := alias(e)
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}
