package otel

import (
	"os"
	"sync/atomic"
)

// traceEnabled is read once at init. CUAS_TRACE turns on per-pair
// correlation events, which are too noisy for normal runs.
var traceEnabled atomic.Bool

func init() {
	traceEnabled.Store(os.Getenv("CUAS_TRACE") != "")
}

// TraceEnabled reports whether CUAS_TRACE is set.
func TraceEnabled() bool {
	return traceEnabled.Load()
}

// SetTraceEnabled overrides the flag (tests, --trace).
func SetTraceEnabled(v bool) {
	traceEnabled.Store(v)
}
