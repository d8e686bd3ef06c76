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

package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/campbellsechrest/im-concierge-starter/pkg/config"
	"github.com/campbellsechrest/im-concierge-starter/pkg/observability/logging"
	"github.com/campbellsechrest/im-concierge-starter/pkg/similarity"
)

// MemoryBackend scores the in-process corpus with brute-force cosine
// similarity. The corpus is small enough that exhaustive scoring beats
// any approximate index, and it keeps ranking fully deterministic.
type MemoryBackend struct {
	corpus []config.KnowledgeDocument
}

// NewMemoryBackend captures the corpus in declaration order. Every
// document must carry a vector by the time the backend is built.
func NewMemoryBackend(corpus []config.KnowledgeDocument) (*MemoryBackend, error) {
	if len(corpus) == 0 {
		return nil, fmt.Errorf("knowledge corpus is empty")
	}
	for _, doc := range corpus {
		if len(doc.Vector) == 0 {
			return nil, fmt.Errorf("knowledge document %q has no vector", doc.ID)
		}
	}
	return &MemoryBackend{corpus: corpus}, nil
}

// Retrieve ranks the corpus descending by similarity and returns the top
// K. Ties keep original corpus order. A scope that matches no document id
// falls back to the unfiltered corpus; returning nothing when the intent
// layer supplied a stale scope would be worse than answering broadly.
func (b *MemoryBackend) Retrieve(_ context.Context, queryVec []float32, scope []string, topK int) ([]ScoredDocument, error) {
	candidates := b.corpus
	if len(scope) > 0 {
		allowed := make(map[string]bool, len(scope))
		for _, id := range scope {
			allowed[id] = true
		}
		scoped := make([]config.KnowledgeDocument, 0, len(scope))
		for _, doc := range b.corpus {
			if allowed[doc.ID] {
				scoped = append(scoped, doc)
			}
		}
		if len(scoped) > 0 {
			candidates = scoped
		} else {
			logging.Warnf("Retrieval scope %v matched no documents, falling back to full corpus", scope)
		}
	}

	scored := make([]ScoredDocument, 0, len(candidates))
	for _, doc := range candidates {
		score, err := similarity.Cosine(queryVec, doc.Vector)
		if err != nil {
			return nil, fmt.Errorf("document %q: %w", doc.ID, err)
		}
		scored = append(scored, ScoredDocument{
			Document: doc,
			Score:    similarity.Clamp01(score),
		})
	}

	// Stable sort preserves corpus order on equal scores.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}
