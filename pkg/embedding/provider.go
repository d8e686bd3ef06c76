// Package embedding adapts the external embedding capability: text in,
// fixed-dimension vector out. The provider is treated as opaque; the
// router only depends on the Provider interface and on ProviderError for
// its abort semantics.
package embedding

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/campbellsechrest/im-concierge-starter/pkg/config"
	"github.com/campbellsechrest/im-concierge-starter/pkg/observability/metrics"
)

// Provider computes an embedding vector for a piece of text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ProviderError wraps an embedding call failure. The router surfaces it to
// the caller instead of downgrading to a regex-only decision; skipping
// semantic safety checks is unsafe.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding provider: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// OpenAIProvider calls an OpenAI-compatible embeddings endpoint.
type OpenAIProvider struct {
	client openai.EmbeddingService
	model  string
}

// NewOpenAIProvider builds a provider from config. The API key is read
// from the configured environment variable; the endpoint may point at any
// OpenAI-compatible service.
func NewOpenAIProvider(cfg config.EmbeddingConfig) *OpenAIProvider {
	cfg = cfg.WithDefaults()
	opts := []option.RequestOption{}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	if key := os.Getenv(cfg.APIKeyEnv); key != "" {
		opts = append(opts, option.WithAPIKey(key))
	}
	return &OpenAIProvider{
		client: openai.NewEmbeddingService(opts...),
		model:  cfg.Model,
	}
}

// Embed returns the embedding for a single input text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	res, err := p.client.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
		Model: openai.EmbeddingModel(p.model),
	})
	metrics.RecordEmbedding(time.Since(start).Seconds(), err)
	if err != nil {
		return nil, &ProviderError{Err: err}
	}
	if len(res.Data) == 0 {
		return nil, &ProviderError{Err: fmt.Errorf("no embedding returned for input")}
	}

	raw := res.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Func is the lazy, memoized embedding accessor handed to the semantic
// stages. The underlying provider is invoked at most once per request.
type Func func() ([]float32, error)

// Memoize wraps the provider call for one request. The first invocation
// computes and caches; later invocations and later stages reuse the
// result, including a cached failure.
func Memoize(ctx context.Context, provider Provider, text string) Func {
	var (
		vec  []float32
		err  error
		done bool
	)
	return func() ([]float32, error) {
		if !done {
			vec, err = provider.Embed(ctx, text)
			done = true
		}
		return vec, err
	}
}
