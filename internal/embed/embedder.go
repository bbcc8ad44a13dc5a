// Package embed provides the text-embedding capability used for similarity
// search, plus a bounded LRU cache in front of it.
package embed

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/causalmem/causalmem/internal/types"
)

// Embedder maps text to a fixed-length vector. Implementations must be safe
// for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OpenAI backs Embedder with an OpenAI-compatible embeddings endpoint.
// Self-hosted servers exposing the same API (including ones serving
// sentence-transformer models like all-MiniLM-L6-v2) work via
// OPENAI_API_BASE.
type OpenAI struct {
	llm     *openai.LLM
	model   string
	timeout time.Duration
	log     *zap.Logger
}

// NewOpenAI builds an embedder for the given model identifier. Credentials
// and base URL come from the standard OPENAI_* environment variables.
func NewOpenAI(model string, timeout time.Duration, log *zap.Logger) (*OpenAI, error) {
	llm, err := openai.New(openai.WithEmbeddingModel(model))
	if err != nil {
		return nil, fmt.Errorf("embed: init openai client: %w", err)
	}
	return &OpenAI{llm: llm, model: model, timeout: timeout, log: log}, nil
}

// Embed returns the embedding for text. Failures and timeouts surface as
// ServiceUnavailable; callers on the ingest path propagate that to the
// client.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	vecs, err := o.llm.CreateEmbedding(ctx, []string{text})
	if err != nil {
		o.log.Warn("embedding request failed",
			zap.String("model", o.model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, types.NewUnavailable("embedding service unreachable", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, types.NewUnavailable(
			fmt.Sprintf("embedding service returned %d vectors, want 1", len(vecs)), nil)
	}
	return vecs[0], nil
}
