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
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/campbellsechrest/im-concierge-starter/pkg/config"
	"github.com/campbellsechrest/im-concierge-starter/pkg/observability/logging"
	"github.com/campbellsechrest/im-concierge-starter/pkg/similarity"
)

// MilvusBackend searches an external Milvus collection holding the
// knowledge corpus. The collection schema mirrors config.KnowledgeDocument:
// id (varchar, primary), url, section, content (varchar) and a float
// vector field named "vector" indexed with the COSINE metric.
type MilvusBackend struct {
	client     client.Client
	collection string
}

// NewMilvusBackend connects to Milvus at startup; connection failure is a
// fatal configuration problem.
func NewMilvusBackend(cfg config.MilvusConfig) (*MilvusBackend, error) {
	cli, err := client.NewGrpcClient(context.Background(), cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("milvus connect: %w", err)
	}
	logging.Infof("Connected to Milvus at %s, collection %q", cfg.Endpoint, cfg.Collection)
	return &MilvusBackend{client: cli, collection: cfg.Collection}, nil
}

// Retrieve searches the collection, restricted to the scope ids when
// given. A scoped search returning zero hits is retried unscoped, keeping
// the same leniency as the in-memory backend.
func (b *MilvusBackend) Retrieve(ctx context.Context, queryVec []float32, scope []string, topK int) ([]ScoredDocument, error) {
	docs, err := b.search(ctx, queryVec, scope, topK)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 && len(scope) > 0 {
		logging.Warnf("Milvus scope %v matched no documents, falling back to unscoped search", scope)
		return b.search(ctx, queryVec, nil, topK)
	}
	return docs, nil
}

func (b *MilvusBackend) search(ctx context.Context, queryVec []float32, scope []string, topK int) ([]ScoredDocument, error) {
	expr := ""
	if len(scope) > 0 {
		quoted := make([]string, len(scope))
		for i, id := range scope {
			quoted[i] = fmt.Sprintf("%q", id)
		}
		expr = fmt.Sprintf("id in [%s]", strings.Join(quoted, ", "))
	}

	searchParam, err := entity.NewIndexHNSWSearchParam(64)
	if err != nil {
		return nil, fmt.Errorf("milvus search params: %w", err)
	}

	results, err := b.client.Search(
		ctx,
		b.collection,
		[]string{}, // all partitions
		expr,
		[]string{"id", "url", "section", "content"},
		[]entity.Vector{entity.FloatVector(queryVec)},
		"vector",
		entity.COSINE,
		topK,
		searchParam,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	res := results[0]
	docs := make([]ScoredDocument, 0, res.ResultCount)
	for i := 0; i < res.ResultCount; i++ {
		doc := config.KnowledgeDocument{
			ID:      varcharAt(res.Fields, "id", i),
			URL:     varcharAt(res.Fields, "url", i),
			Section: varcharAt(res.Fields, "section", i),
			Content: varcharAt(res.Fields, "content", i),
		}
		docs = append(docs, ScoredDocument{
			Document: doc,
			Score:    similarity.Clamp01(float64(res.Scores[i])),
		})
	}
	return docs, nil
}

func varcharAt(fields []entity.Column, name string, idx int) string {
	for _, field := range fields {
		if field.Name() != name {
			continue
		}
		if col, ok := field.(*entity.ColumnVarChar); ok && col.Len() > idx {
			if val, err := col.ValueByIdx(idx); err == nil {
				return val
			}
		}
	}
	return ""
}
