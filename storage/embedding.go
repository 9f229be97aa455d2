package storage

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"lessonkb/config"
)

// embeddingDim is the dimensionality the vector backends are provisioned
// for (text-embedding-3-small and ada-002 both emit 1536 floats).
const embeddingDim = 1536

// OpenAIEmbedder embeds text through the configured OpenAI-compatible API.
type OpenAIEmbedder struct {
	cli   *openai.Client
	model string
}

func NewOpenAIEmbedder(cfg *config.Config) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		cli:   Client(cfg),
		model: cfg.EmbeddingModel,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.cli.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding API failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return resp.Data[0].Embedding, nil
}
