package embedding

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/syllabus/pkg/domain/interfaces"
)

// LLM generates embeddings with a gollem LLM client.
type LLM struct {
	client    gollem.LLMClient
	dimension int
}

var _ interfaces.Embedder = &LLM{}

func NewLLM(client gollem.LLMClient, dimension int) (*LLM, error) {
	if client == nil {
		return nil, goerr.New("LLM client is required")
	}
	if dimension <= 0 {
		return nil, goerr.New("embedding dimension must be positive", goerr.V("dimension", dimension))
	}
	return &LLM{client: client, dimension: dimension}, nil
}

func (e *LLM) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings, err := e.client.GenerateEmbedding(ctx, e.dimension, texts)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate embedding", goerr.V("count", len(texts)))
	}
	if len(embeddings) != len(texts) {
		return nil, goerr.New("embedding count mismatch",
			goerr.V("expected", len(texts)),
			goerr.V("actual", len(embeddings)))
	}

	// Convert float64 to float32
	result := make([][]float32, len(embeddings))
	for i, vec := range embeddings {
		if len(vec) == 0 {
			return nil, goerr.New("empty embedding returned", goerr.V("index", i))
		}
		result[i] = make([]float32, len(vec))
		for j, v := range vec {
			result[i][j] = float32(v)
		}
	}

	return result, nil
}
