package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/syllabus/pkg/domain/interfaces"
	"github.com/secmon-lab/syllabus/pkg/service/embedding"
	"github.com/secmon-lab/syllabus/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// Embedding selects how texts are turned into vectors
type Embedding struct {
	provider  string
	dimension int
}

// Flags returns CLI flags for embedding configuration
func (e *Embedding) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "embedding-provider",
			Usage:       "Embedding provider [llm|hash]. hash needs no credentials",
			Category:    "Embedding",
			Value:       "llm",
			Sources:     cli.EnvVars("SYLLABUS_EMBEDDING_PROVIDER"),
			Destination: &e.provider,
		},
		&cli.IntFlag{
			Name:        "embedding-dimension",
			Usage:       "Embedding vector dimension",
			Category:    "Embedding",
			Value:       768,
			Sources:     cli.EnvVars("SYLLABUS_EMBEDDING_DIMENSION"),
			Destination: &e.dimension,
		},
	}
}

// Dimension returns the embedding vector dimension
func (e *Embedding) Dimension() int {
	return e.dimension
}

// LogAttrs returns log attributes for the embedding configuration
func (e *Embedding) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("provider", e.provider),
		slog.Int("dimension", e.dimension),
	}
}

// Configure creates the embedder. The llm provider embeds with the Gemini
// client, whichever chat provider is selected.
func (e *Embedding) Configure(ctx context.Context, llm *LLM) (interfaces.Embedder, error) {
	if e.dimension <= 0 {
		return nil, goerr.Wrap(ErrInvalidConfig, "embedding dimension must be positive", goerr.V("dimension", e.dimension))
	}

	switch e.provider {
	case "llm":
		client, err := llm.GeminiClient(ctx)
		if err != nil {
			return nil, err
		}
		if client == nil {
			return nil, goerr.Wrap(ErrMissingOption, "gemini-project is required for llm embeddings",
				goerr.V(OptionKey, "gemini-project"))
		}
		embedder, err := embedding.NewLLM(client, e.dimension)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create embedder")
		}
		return embedder, nil

	case "hash":
		logging.Default().Warn("Using hash embeddings; retrieval quality is lexical only")
		return embedding.NewHash(e.dimension), nil

	default:
		return nil, goerr.Wrap(ErrInvalidBackend, "invalid embedding provider", goerr.V(BackendKey, e.provider))
	}
}
