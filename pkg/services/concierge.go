// Package services composes the router with its collaborators: input
// validation in front, answer generation and audit behind.
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/campbellsechrest/im-concierge-starter/pkg/audit"
	"github.com/campbellsechrest/im-concierge-starter/pkg/generation"
	"github.com/campbellsechrest/im-concierge-starter/pkg/observability/logging"
	"github.com/campbellsechrest/im-concierge-starter/pkg/observability/metrics"
	"github.com/campbellsechrest/im-concierge-starter/pkg/router"
)

// ValidationError rejects a request before the pipeline runs.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s", e.Reason)
}

// Answer is the user-facing result of one question.
type Answer struct {
	Answer  string          `json:"answer"`
	Sources []router.Source `json:"sources,omitempty"`
	Routing router.Summary  `json:"routing"`
}

// ConciergeService answers product questions. Stateless and safe for
// concurrent use.
type ConciergeService struct {
	router    *router.Router
	generator generation.Generator
	sink      audit.Sink
}

// NewConciergeService wires the service.
func NewConciergeService(r *router.Router, g generation.Generator, sink audit.Sink) *ConciergeService {
	return &ConciergeService{router: r, generator: g, sink: sink}
}

const maxQuestionLength = 4096

// Ask validates the question, routes it, and, when the router hands off
// to retrieval, drafts an answer from the retrieved passages. The audit
// record is emitted best-effort and never affects the returned result.
func (s *ConciergeService) Ask(ctx context.Context, requestID, question string) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		metrics.RecordRequest("invalid")
		return nil, &ValidationError{Reason: "question is empty"}
	}
	if len(question) > maxQuestionLength {
		metrics.RecordRequest("invalid")
		return nil, &ValidationError{Reason: fmt.Sprintf("question exceeds %d bytes", maxQuestionLength)}
	}

	outcome, err := s.router.Route(ctx, question)
	if err != nil {
		metrics.RecordRequest("provider_error")
		return nil, err
	}

	if s.sink != nil {
		s.sink.Record(audit.NewRecord(requestID, question, outcome))
	}

	answer := outcome.Answer
	if !outcome.Answered {
		answer, err = s.generator.Generate(ctx, question, outcome.Documents)
		if err != nil {
			metrics.RecordRequest("error")
			return nil, fmt.Errorf("answer generation: %w", err)
		}
	}

	metrics.RecordRequest("ok")
	logging.Debugf("Answered request %s via %s", requestID, outcome.Summary.Layer)

	return &Answer{
		Answer:  answer,
		Sources: outcome.Sources,
		Routing: outcome.Summary,
	}, nil
}
