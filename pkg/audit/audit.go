// Package audit hands the decision trace to a best-effort sink. Audit
// failures must never affect the user-visible outcome; everything here is
// fire-and-forget.
package audit

import (
	"github.com/campbellsechrest/im-concierge-starter/pkg/observability/logging"
	"github.com/campbellsechrest/im-concierge-starter/pkg/router"
)

// Record is one audit entry covering a routed request. Layers that were
// never reached are recorded as skipped here, by the caller; the router
// itself only traces layers it attempted.
type Record struct {
	RequestID string            `json:"request_id"`
	Question  string            `json:"question"`
	Trace     []router.Decision `json:"trace"`
	Skipped   []string          `json:"skipped,omitempty"`
	Summary   router.Summary    `json:"summary"`
}

// Sink persists audit records. Implementations must swallow their own
// failures.
type Sink interface {
	Record(rec Record)
}

// allLayers is the full pipeline, used to compute the skipped tail.
var allLayers = []string{
	router.LayerSafetyRegex,
	router.LayerBusinessRegex,
	router.LayerSafetyEmbed,
	router.LayerIntentEmbed,
	router.LayerRetrievalFallback,
}

// NewRecord builds an audit record from a routing outcome, marking the
// layers the router never reached as skipped.
func NewRecord(requestID, question string, outcome *router.Outcome) Record {
	attempted := make(map[string]bool, len(outcome.Trace))
	for _, d := range outcome.Trace {
		attempted[d.Layer] = true
	}
	var skipped []string
	for _, layer := range allLayers {
		if !attempted[layer] {
			skipped = append(skipped, layer)
		}
	}
	return Record{
		RequestID: requestID,
		Question:  question,
		Trace:     outcome.Trace,
		Skipped:   skipped,
		Summary:   outcome.Summary,
	}
}

// LogSink writes audit records to the structured log. Asynchronous so the
// response is never delayed by audit work.
type LogSink struct{}

// NewLogSink returns a logging sink.
func NewLogSink() *LogSink { return &LogSink{} }

// Record logs the audit entry on a detached goroutine. Panics are
// recovered and logged; nothing propagates to the request path.
func (s *LogSink) Record(rec Record) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.Errorf("audit sink panic: %v", r)
			}
		}()
		logging.Infow("routing decision trace",
			"request_id", rec.RequestID,
			"layer", rec.Summary.Layer,
			"rule", rec.Summary.Rule,
			"intent", rec.Summary.Intent,
			"category", rec.Summary.Category,
			"stages_attempted", len(rec.Trace),
			"stages_skipped", len(rec.Skipped),
		)
	}()
}
