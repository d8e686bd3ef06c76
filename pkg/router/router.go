/*
Copyright 2026 IM Concierge Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package router sequences the five routing layers in fixed precedence
// order. The first terminal decision wins; later layers never execute
// once one is produced. The ordering is a safety property: the
// deterministic and semantic safety layers must see every query before
// any business answer or retrieval can.
package router

import (
	"context"
	"math"
	"time"

	"github.com/campbellsechrest/im-concierge-starter/pkg/config"
	"github.com/campbellsechrest/im-concierge-starter/pkg/embedding"
	"github.com/campbellsechrest/im-concierge-starter/pkg/intent"
	"github.com/campbellsechrest/im-concierge-starter/pkg/normalize"
	"github.com/campbellsechrest/im-concierge-starter/pkg/observability/logging"
	"github.com/campbellsechrest/im-concierge-starter/pkg/observability/metrics"
	"github.com/campbellsechrest/im-concierge-starter/pkg/retrieval"
	"github.com/campbellsechrest/im-concierge-starter/pkg/rules"
	"github.com/campbellsechrest/im-concierge-starter/pkg/safety"
)

// Routing layer names, in execution order.
const (
	LayerSafetyRegex       = "SAFETY_REGEX"
	LayerBusinessRegex     = "BUSINESS_REGEX"
	LayerSafetyEmbed       = "SAFETY_EMBED"
	LayerIntentEmbed       = "INTENT_EMBED"
	LayerRetrievalFallback = "RETRIEVAL_FALLBACK"
)

// Decision is one entry in the audit trace: a layer that was attempted,
// whether it fired, and what it saw.
type Decision struct {
	Layer     string              `json:"layer"`
	RuleID    string              `json:"rule_id,omitempty"`
	IntentID  string              `json:"intent_id,omitempty"`
	Category  string              `json:"category,omitempty"`
	Score     *float64            `json:"score,omitempty"`
	Triggered bool                `json:"triggered"`
	Index     int                 `json:"index"`
	Safety    *safety.Diagnostics `json:"safety,omitempty"`
}

// Source is one citation attached to a retrieval outcome. Scores are
// rounded to three decimal places for display.
type Source struct {
	ID    string  `json:"id"`
	URL   string  `json:"url"`
	Score float64 `json:"score"`
}

// Summary is the routing result in payload-ready form.
type Summary struct {
	Layer    string   `json:"layer"`
	Rule     string   `json:"rule,omitempty"`
	Intent   string   `json:"intent,omitempty"`
	Category string   `json:"category,omitempty"`
	Score    *float64 `json:"score,omitempty"`
}

// Outcome is the full result of routing one query.
type Outcome struct {
	// Trace records every layer attempted, in order.
	Trace []Decision

	// Answer is the terminal canned answer. Empty when the query fell
	// through to retrieval; Answered distinguishes the two.
	Answer   string
	Answered bool

	// Documents are the retrieved passages handed to generation; empty
	// unless the retrieval fallback ran.
	Documents []retrieval.ScoredDocument

	// Sources are citation entries derived from Documents.
	Sources []Source

	// Scope is the document allowlist resolved by an earlier layer, if any.
	Scope []string

	Summary    Summary
	Normalized normalize.Result
}

// Router is the orchestrator. Stateless across requests: all configuration
// lives in the immutable stage components, so one Router serves concurrent
// requests without locks.
type Router struct {
	normalizer *normalize.Normalizer
	rules      *rules.Engine
	gate       *safety.Gate
	intents    *intent.Classifier
	retriever  retrieval.Backend
	provider   embedding.Provider
	topK       int
}

// New wires the router from already-constructed stages.
func New(
	normalizer *normalize.Normalizer,
	ruleEngine *rules.Engine,
	gate *safety.Gate,
	intents *intent.Classifier,
	retriever retrieval.Backend,
	provider embedding.Provider,
	topK int,
) *Router {
	return &Router{
		normalizer: normalizer,
		rules:      ruleEngine,
		gate:       gate,
		intents:    intents,
		retriever:  retriever,
		provider:   provider,
		topK:       topK,
	}
}

// NewFromConfig builds every stage from validated configuration. Vectors
// must already be populated (see embedding.Preload).
func NewFromConfig(cfg *config.RouterConfig, provider embedding.Provider) (*Router, error) {
	normalizer, err := normalize.New(cfg.Normalizer)
	if err != nil {
		return nil, err
	}
	ruleEngine, err := rules.NewEngine(cfg.SafetyRules, cfg.BusinessRules)
	if err != nil {
		return nil, err
	}
	gate, err := safety.NewGate(cfg.SafetyGate)
	if err != nil {
		return nil, err
	}
	intents, err := intent.NewClassifier(cfg.Intents)
	if err != nil {
		return nil, err
	}
	retriever, err := retrieval.NewBackend(cfg.Retrieval, cfg.Knowledge)
	if err != nil {
		return nil, err
	}
	return New(normalizer, ruleEngine, gate, intents, retriever, provider, cfg.Retrieval.WithDefaults().TopK), nil
}

// Route runs the pipeline for one query. The returned error is non-nil
// only for embedding provider failures; the pipeline is aborted in that
// case rather than downgraded to a partial regex-only result.
func (r *Router) Route(ctx context.Context, rawText string) (*Outcome, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRoutingLatency(time.Since(start).Seconds())
	}()

	outcome := &Outcome{Normalized: r.normalizer.Normalize(rawText)}

	// Stage 1: deterministic safety refusal, evaluated on raw text.
	if m := r.rules.MatchSafety(rawText); m != nil {
		d := Decision{
			Layer:     LayerSafetyRegex,
			RuleID:    m.RuleID,
			Category:  m.Category,
			Triggered: true,
		}
		return r.terminal(outcome, d, m.Response), nil
	}
	outcome.append(Decision{Layer: LayerSafetyRegex})

	// Stage 2: deterministic business answer, evaluated on normalized text.
	if m := r.rules.MatchBusiness(outcome.Normalized.Text); m != nil {
		d := Decision{
			Layer:     LayerBusinessRegex,
			RuleID:    m.RuleID,
			IntentID:  m.Intent,
			Category:  m.Category,
			Triggered: true,
		}
		response := m.Response
		if response == "" && m.Intent != "" {
			if def := r.intents.Lookup(m.Intent); def != nil {
				response = def.Response
				outcome.Scope = def.Scope
			}
		}
		if response != "" {
			return r.terminal(outcome, d, response), nil
		}
		// Rule fired but only contributed scope; the pipeline continues.
		outcome.append(d)
	} else {
		outcome.append(Decision{Layer: LayerBusinessRegex})
	}

	// The embedding is computed at most once from here on; every semantic
	// stage shares the memoized result.
	embed := embedding.Memoize(ctx, r.provider, outcome.Normalized.Text)

	// Stage 3: semantic safety gate.
	match, diag, err := r.gate.Evaluate(outcome.Normalized.Text, embed)
	if err != nil {
		return nil, err
	}
	if match != nil {
		d := Decision{
			Layer:     LayerSafetyEmbed,
			RuleID:    match.ExemplarID,
			Category:  match.Category,
			Score:     ptr(match.Diagnostics.BlendedScore),
			Triggered: true,
			Safety:    &match.Diagnostics,
		}
		return r.terminal(outcome, d, match.Response), nil
	}
	notTriggered := diag
	outcome.append(Decision{
		Layer:  LayerSafetyEmbed,
		Score:  ptr(diag.BlendedScore),
		Safety: &notTriggered,
	})

	// Stage 4: semantic intent classification.
	im, err := r.intents.Classify(embed)
	if err != nil {
		return nil, err
	}
	if im != nil {
		d := Decision{
			Layer:     LayerIntentEmbed,
			IntentID:  im.IntentID,
			Score:     ptr(im.Score),
			Triggered: true,
		}
		if im.Terminal() {
			return r.terminal(outcome, d, im.Response), nil
		}
		if len(im.Scope) > 0 {
			outcome.Scope = im.Scope
		}
		outcome.append(d)
	} else {
		outcome.append(Decision{Layer: LayerIntentEmbed})
	}

	// Stage 5: retrieval fallback. Always terminal by construction.
	queryVec, err := embed()
	if err != nil {
		return nil, err
	}
	docs, err := r.retriever.Retrieve(ctx, queryVec, outcome.Scope, r.topK)
	if err != nil {
		return nil, err
	}

	outcome.Documents = docs
	outcome.Sources = make([]Source, 0, len(docs))
	topScore := 0.0
	for _, doc := range docs {
		if doc.Score > topScore {
			topScore = doc.Score
		}
		outcome.Sources = append(outcome.Sources, Source{
			ID:    doc.Document.ID,
			URL:   doc.Document.URL,
			Score: round3(doc.Score),
		})
	}
	metrics.RecordRetrievalTopScore(topScore)

	d := Decision{
		Layer:     LayerRetrievalFallback,
		Score:     ptr(topScore),
		Triggered: true,
	}
	outcome.append(d)
	outcome.Summary = summarize(d)
	metrics.RecordRoutingDecision(LayerRetrievalFallback, "")

	logging.Infof("Routed query to %s: %d passages, top score %.3f",
		LayerRetrievalFallback, len(docs), topScore)

	return outcome, nil
}

// terminal finalizes the outcome at the given decision and answer.
func (r *Router) terminal(outcome *Outcome, d Decision, answer string) *Outcome {
	outcome.append(d)
	outcome.Answer = answer
	outcome.Answered = true
	outcome.Summary = summarize(d)
	metrics.RecordRoutingDecision(d.Layer, d.Category)
	logging.Infof("Routed query to %s (rule=%s intent=%s category=%s)",
		d.Layer, d.RuleID, d.IntentID, d.Category)
	return outcome
}

func (o *Outcome) append(d Decision) {
	d.Index = len(o.Trace)
	o.Trace = append(o.Trace, d)
}

func summarize(d Decision) Summary {
	return Summary{
		Layer:    d.Layer,
		Rule:     d.RuleID,
		Intent:   d.IntentID,
		Category: d.Category,
		Score:    d.Score,
	}
}

func ptr(v float64) *float64 { return &v }

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
