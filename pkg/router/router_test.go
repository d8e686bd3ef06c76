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

package router

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/campbellsechrest/im-concierge-starter/pkg/config"
	"github.com/campbellsechrest/im-concierge-starter/pkg/embedding"
)

func TestRouter(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Router Suite")
}

// stubProvider returns a fixed vector and counts calls, so specs can
// assert the provider is reached exactly when the pipeline allows it.
type stubProvider struct {
	calls int32
	vec   []float32
	err   error
}

func (p *stubProvider) Embed(_ context.Context, _ string) ([]float32, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.err != nil {
		return nil, &embedding.ProviderError{Err: p.err}
	}
	return p.vec, nil
}

func testConfig() *config.RouterConfig {
	cfg := &config.RouterConfig{
		Normalizer: config.NormalizerConfig{
			ProtectedEntities: []config.ProtectedEntity{
				{Canonical: "a-minus", Variants: []string{"A-Minus", "A Minus", "AMinus"}},
			},
		},
		SafetyRules: []config.PatternRule{
			{
				ID:       "emergency-symptoms",
				Category: "emergency",
				Patterns: []string{`chest pain`, `call 911`},
				Response: "Please call 911 or contact emergency services right away.",
			},
		},
		BusinessRules: []config.PatternRule{
			{
				ID:       "shipping-keywords",
				Category: "logistics",
				Patterns: []string{`\bship(?:ping|s|ped)?\b`},
				Intent:   "shipping",
			},
		},
		SafetyGate: config.SafetyGateConfig{
			RiskTokens:          []string{"medication", "pregnancy", "dose"},
			ProductContextTerms: []string{"ingredients", "capsule"},
			Exemplars: []config.SafetyExemplar{
				{
					ID:       "medical-advice",
					Category: "medical",
					Text:     "is this safe for me",
					Response: "Please ask your doctor before combining A-Minus with anything.",
					Vector:   []float32{1, 0, 0},
				},
				{
					ID:       "dosage-advice",
					Category: "medical",
					Text:     "how much should I take",
					Response: "Please stick to the label serving.",
					Vector:   []float32{0.6, 0.8, 0},
				},
			},
		},
		Intents: config.IntentsConfig{
			Definitions: []config.IntentDefinition{
				{
					ID:        "shipping",
					Label:     "Shipping & delivery",
					Threshold: 0.78,
					Response:  "Orders ship within one business day.",
					Examples: []config.IntentExample{
						{Text: "how fast do you ship", Vector: []float32{0.5, 0.5, 0.70710678}},
					},
				},
				{
					ID:        "ingredients",
					Label:     "Ingredients",
					Threshold: 0.76,
					Scope:     []string{"ingredients-panel", "allergens"},
					Examples: []config.IntentExample{
						{Text: "what is in it", Vector: []float32{0, 1, 0}},
					},
				},
			},
		},
		Knowledge: []config.KnowledgeDocument{
			{ID: "ingredients-panel", URL: "https://example.com/ingredients", Section: "ingredients", Content: "Magnesium.", Vector: []float32{0, 1, 0}},
			{ID: "allergens", URL: "https://example.com/allergens", Section: "ingredients", Content: "No major allergens.", Vector: []float32{0, 0.9, 0.1}},
			{ID: "research-overview", URL: "https://example.com/research", Section: "research", Content: "Published research.", Vector: []float32{0, 0, 1}},
		},
		Retrieval: config.RetrievalConfig{TopK: 3, Backend: "memory"},
	}
	return cfg
}

func buildRouter(provider embedding.Provider) *Router {
	cfg := testConfig()
	r, err := NewFromConfig(cfg, provider)
	Expect(err).ToNot(HaveOccurred())
	return r
}

var _ = Describe("Router pipeline", func() {
	var provider *stubProvider

	BeforeEach(func() {
		provider = &stubProvider{vec: []float32{0, 0, 1}}
	})

	Context("safety regex layer", func() {
		It("refuses emergencies deterministically", func() {
			r := buildRouter(provider)
			outcome, err := r.Route(context.Background(), "I just took A-Minus and now I have chest pain")
			Expect(err).ToNot(HaveOccurred())

			Expect(outcome.Answered).To(BeTrue())
			Expect(outcome.Summary.Layer).To(Equal(LayerSafetyRegex))
			Expect(outcome.Summary.Category).To(Equal("emergency"))
			Expect(outcome.Summary.Rule).To(Equal("emergency-symptoms"))
			Expect(outcome.Answer).To(ContainSubstring("911"))
		})

		It("never calls the embedding provider when a safety rule fires", func() {
			r := buildRouter(provider)
			_, err := r.Route(context.Background(), "chest pain after shipping my order")
			Expect(err).ToNot(HaveOccurred())
			Expect(provider.calls).To(Equal(int32(0)))
		})

		It("wins over every later layer regardless of semantic scores", func() {
			// Vector aligned perfectly with the medical exemplar; the
			// regex layer must still decide first.
			provider.vec = []float32{1, 0, 0}
			r := buildRouter(provider)
			outcome, err := r.Route(context.Background(), "chest pain, is it safe?")
			Expect(err).ToNot(HaveOccurred())
			Expect(outcome.Summary.Layer).To(Equal(LayerSafetyRegex))
			Expect(outcome.Trace).To(HaveLen(1))
			Expect(provider.calls).To(Equal(int32(0)))
		})
	})

	Context("business regex layer", func() {
		It("answers shipping questions from the intent's canned response", func() {
			r := buildRouter(provider)
			outcome, err := r.Route(context.Background(), "How fast do you ship orders?")
			Expect(err).ToNot(HaveOccurred())

			Expect(outcome.Answered).To(BeTrue())
			Expect(outcome.Summary.Layer).To(Equal(LayerBusinessRegex))
			Expect(outcome.Summary.Rule).To(Equal("shipping-keywords"))
			Expect(outcome.Summary.Intent).To(Equal("shipping"))
			Expect(outcome.Answer).To(Equal("Orders ship within one business day."))
			Expect(provider.calls).To(Equal(int32(0)))

			Expect(outcome.Trace).To(HaveLen(2))
			Expect(outcome.Trace[0].Layer).To(Equal(LayerSafetyRegex))
			Expect(outcome.Trace[0].Triggered).To(BeFalse())
			Expect(outcome.Trace[1].Triggered).To(BeTrue())
		})
	})

	Context("safety embedding layer", func() {
		It("refuses semantically risky questions", func() {
			provider.vec = []float32{1, 0, 0}
			r := buildRouter(provider)
			outcome, err := r.Route(context.Background(), "can I combine it with my medication")
			Expect(err).ToNot(HaveOccurred())

			Expect(outcome.Summary.Layer).To(Equal(LayerSafetyEmbed))
			Expect(outcome.Summary.Rule).To(Equal("medical-advice"))
			Expect(outcome.Summary.Category).To(Equal("medical"))

			last := outcome.Trace[len(outcome.Trace)-1]
			Expect(last.Safety).ToNot(BeNil())
			Expect(last.Safety.RiskTokenCount).To(Equal(1))
			Expect(last.Safety.EmbeddingScore).To(BeNumerically("~", 1.0, 1e-6))
		})

		It("records diagnostics even when it does not trigger", func() {
			r := buildRouter(provider)
			outcome, err := r.Route(context.Background(), "tell me about the research behind it")
			Expect(err).ToNot(HaveOccurred())

			var safetyEmbed *Decision
			for i := range outcome.Trace {
				if outcome.Trace[i].Layer == LayerSafetyEmbed {
					safetyEmbed = &outcome.Trace[i]
				}
			}
			Expect(safetyEmbed).ToNot(BeNil())
			Expect(safetyEmbed.Triggered).To(BeFalse())
			Expect(safetyEmbed.Safety).ToNot(BeNil())
			Expect(safetyEmbed.Score).ToNot(BeNil())
		})
	})

	Context("intent embedding layer", func() {
		It("scopes retrieval without answering when the intent has no response", func() {
			provider.vec = []float32{0, 1, 0}
			r := buildRouter(provider)
			outcome, err := r.Route(context.Background(), "what ingredients are inside")
			Expect(err).ToNot(HaveOccurred())

			// The ingredients intent wins but only contributes scope;
			// the pipeline continues to retrieval.
			Expect(outcome.Summary.Layer).To(Equal(LayerRetrievalFallback))
			Expect(outcome.Scope).To(Equal([]string{"ingredients-panel", "allergens"}))

			Expect(outcome.Sources).To(HaveLen(2))
			Expect(outcome.Sources[0].ID).To(Equal("ingredients-panel"))
			Expect(outcome.Sources[1].ID).To(Equal("allergens"))

			var intentDecision *Decision
			for i := range outcome.Trace {
				if outcome.Trace[i].Layer == LayerIntentEmbed {
					intentDecision = &outcome.Trace[i]
				}
			}
			Expect(intentDecision).ToNot(BeNil())
			Expect(intentDecision.Triggered).To(BeTrue())
			Expect(intentDecision.IntentID).To(Equal("ingredients"))
		})

		It("calls the provider exactly once across all semantic stages", func() {
			provider.vec = []float32{0, 1, 0}
			r := buildRouter(provider)
			_, err := r.Route(context.Background(), "what ingredients are inside")
			Expect(err).ToNot(HaveOccurred())
			Expect(provider.calls).To(Equal(int32(1)))
		})
	})

	Context("retrieval fallback layer", func() {
		It("always terminates the pipeline with ranked passages", func() {
			r := buildRouter(provider)
			outcome, err := r.Route(context.Background(), "I read about supplements and pregnancy research in general")
			Expect(err).ToNot(HaveOccurred())

			Expect(outcome.Answered).To(BeFalse())
			Expect(outcome.Summary.Layer).To(Equal(LayerRetrievalFallback))
			Expect(outcome.Documents).ToNot(BeEmpty())
			Expect(outcome.Sources[0].ID).To(Equal("research-overview"))
			Expect(outcome.Sources[0].Score).To(BeNumerically("~", 1.0, 1e-9))

			Expect(outcome.Trace).To(HaveLen(5))
			for i, layer := range []string{
				LayerSafetyRegex, LayerBusinessRegex, LayerSafetyEmbed,
				LayerIntentEmbed, LayerRetrievalFallback,
			} {
				Expect(outcome.Trace[i].Layer).To(Equal(layer))
				Expect(outcome.Trace[i].Index).To(Equal(i))
			}
			Expect(outcome.Trace[4].Triggered).To(BeTrue())
		})

		It("rounds source scores to three decimals", func() {
			provider.vec = []float32{0.3, -0.2, 0.8}
			r := buildRouter(provider)
			outcome, err := r.Route(context.Background(), "something uncategorized")
			Expect(err).ToNot(HaveOccurred())
			Expect(outcome.Sources).ToNot(BeEmpty())
			for _, src := range outcome.Sources {
				Expect(src.Score * 1000).To(BeNumerically("~", math.Round(src.Score*1000), 1e-6))
			}
		})
	})

	Context("embedding provider failure", func() {
		It("aborts the pipeline instead of downgrading to a partial result", func() {
			provider.err = errors.New("connection refused")
			r := buildRouter(provider)
			outcome, err := r.Route(context.Background(), "an uncategorized question")
			Expect(outcome).To(BeNil())
			Expect(err).To(HaveOccurred())

			var providerErr *embedding.ProviderError
			Expect(errors.As(err, &providerErr)).To(BeTrue())
		})

		It("does not affect queries decided by the regex layers", func() {
			provider.err = errors.New("connection refused")
			r := buildRouter(provider)
			outcome, err := r.Route(context.Background(), "do you ship to Canada")
			Expect(err).ToNot(HaveOccurred())
			Expect(outcome.Summary.Layer).To(Equal(LayerBusinessRegex))
		})
	})
})
