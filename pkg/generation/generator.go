// Package generation adapts the opaque answer-generation collaborator.
// The router never calls this. Only the service layer does, and only
// after the retrieval fallback has produced passages.
package generation

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/campbellsechrest/im-concierge-starter/pkg/config"
	"github.com/campbellsechrest/im-concierge-starter/pkg/observability/logging"
	"github.com/campbellsechrest/im-concierge-starter/pkg/retrieval"
)

// Generator drafts a natural-language answer from retrieved passages.
type Generator interface {
	Generate(ctx context.Context, question string, passages []retrieval.ScoredDocument) (string, error)
}

// OpenAIGenerator calls an OpenAI-compatible chat completions endpoint.
type OpenAIGenerator struct {
	client openai.Client
	model  string
}

// NewOpenAIGenerator builds a generator from config.
func NewOpenAIGenerator(cfg config.GenerationConfig) *OpenAIGenerator {
	cfg = cfg.WithDefaults()
	opts := []option.RequestOption{}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	if key := os.Getenv(cfg.APIKeyEnv); key != "" {
		opts = append(opts, option.WithAPIKey(key))
	}
	return &OpenAIGenerator{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}
}

const systemPrompt = `You are a careful customer-support assistant for a single consumer product.
Answer only from the reference passages provided. If the passages do not
cover the question, say so and suggest contacting support. Never give
medical advice.`

// Generate drafts an answer grounded in the passages.
func (g *OpenAIGenerator) Generate(ctx context.Context, question string, passages []retrieval.ScoredDocument) (string, error) {
	var sb strings.Builder
	for i, p := range passages {
		fmt.Fprintf(&sb, "[%d] (%s) %s\n", i+1, p.Document.Section, p.Document.Content)
	}

	logging.Debugf("Generating answer from %d passages", len(passages))

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(fmt.Sprintf("Reference passages:\n%s\nQuestion: %s", sb.String(), question)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("error calling chat completions: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
