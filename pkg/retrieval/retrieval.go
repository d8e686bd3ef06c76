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

// Package retrieval implements the unconditional fallback layer: ranking
// the knowledge corpus by similarity to the query, optionally restricted
// to an intent-provided scope.
package retrieval

import (
	"context"
	"fmt"

	"github.com/campbellsechrest/im-concierge-starter/pkg/config"
)

// ScoredDocument pairs a knowledge document with its similarity score,
// clamped into [0, 1].
type ScoredDocument struct {
	Document config.KnowledgeDocument
	Score    float64
}

// Backend ranks the corpus for one query embedding. A non-empty scope is
// an id allowlist; when the scope matches nothing, backends fall back to
// the unfiltered corpus rather than returning an empty result set.
type Backend interface {
	Retrieve(ctx context.Context, queryVec []float32, scope []string, topK int) ([]ScoredDocument, error)
}

// NewBackend builds the configured retrieval backend.
func NewBackend(cfg config.RetrievalConfig, corpus []config.KnowledgeDocument) (Backend, error) {
	cfg = cfg.WithDefaults()
	switch cfg.Backend {
	case "memory":
		return NewMemoryBackend(corpus)
	case "milvus":
		return NewMilvusBackend(cfg.Milvus)
	default:
		return nil, fmt.Errorf("unknown retrieval backend: %q", cfg.Backend)
	}
}
