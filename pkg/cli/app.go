package cli

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/syllabus/pkg/agent/orchestrator"
	"github.com/secmon-lab/syllabus/pkg/cli/config"
	"github.com/secmon-lab/syllabus/pkg/domain/interfaces"
	"github.com/secmon-lab/syllabus/pkg/service/chunker"
	"github.com/secmon-lab/syllabus/pkg/service/index"
	"github.com/secmon-lab/syllabus/pkg/usecase"
	"github.com/secmon-lab/syllabus/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// appConfig groups the configuration shared by every command that opens
// the index.
type appConfig struct {
	llm       config.LLM
	embedding config.Embedding
	index     config.Index
	session   config.Session
	rag       config.RAG
}

func (a *appConfig) Flags() []cli.Flag {
	var flags []cli.Flag
	flags = append(flags, a.llm.Flags()...)
	flags = append(flags, a.embedding.Flags()...)
	flags = append(flags, a.index.Flags()...)
	flags = append(flags, a.session.Flags()...)
	flags = append(flags, a.rag.Flags()...)
	return flags
}

func attrsToAny(attrs []slog.Attr) []any {
	out := make([]any, len(attrs))
	for i, a := range attrs {
		out[i] = a
	}
	return out
}

// need selects which parts of the pipeline a command uses.
type need struct {
	embedder bool
	llm      bool
}

// build wires the use cases from the configuration. The returned function
// releases every opened backend.
func (a *appConfig) build(ctx context.Context, c *cli.Command, n need) (*usecase.UseCases, func(), error) {
	logger := logging.Default()
	logger.Debug("Configuration",
		slog.Group("llm", attrsToAny(a.llm.LogAttrs())...),
		slog.Group("embedding", attrsToAny(a.embedding.LogAttrs())...),
		slog.Group("index", attrsToAny(a.index.LogAttrs())...),
		slog.Group("session", attrsToAny(a.session.LogAttrs())...),
		slog.Group("rag", attrsToAny(a.rag.LogAttrs())...),
	)

	settings, err := a.rag.Configure(c)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to load RAG settings")
	}

	var embedder interfaces.Embedder = unusedEmbedder{}
	if n.embedder {
		embedder, err = a.embedding.Configure(ctx, &a.llm)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to configure embedding")
		}
	}

	store, err := a.index.Configure(ctx)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to initialize index")
	}
	closers := []func(){func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close index", "error", err.Error())
		}
	}}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	svc, err := index.New(store, embedder,
		index.WithMaxResults(settings.MaxResults),
		index.WithMaxResolveDistance(settings.MaxResolveDistance),
	)
	if err != nil {
		closeAll()
		return nil, nil, goerr.Wrap(err, "failed to create index service")
	}

	ucOpts := []usecase.Option{
		usecase.WithChunker(chunker.New(
			chunker.WithChunkSize(settings.ChunkSize),
			chunker.WithChunkOverlap(settings.ChunkOverlap),
		)),
		usecase.WithMaxHistory(settings.MaxHistory),
	}

	if n.llm {
		client, err := a.llm.Configure(ctx)
		if err != nil {
			closeAll()
			return nil, nil, goerr.Wrap(err, "failed to configure LLM")
		}
		if client == nil {
			logger.Warn("No LLM credentials configured, queries are disabled")
		} else {
			ucOpts = append(ucOpts,
				usecase.WithLLM(client),
				usecase.WithOrchestratorOptions(orchestrator.WithMaxModelCalls(settings.MaxModelCalls)),
			)
		}

		sessions, closeSessions, err := a.session.Configure(ctx, max(20, 2*settings.MaxHistory))
		if err != nil {
			closeAll()
			return nil, nil, goerr.Wrap(err, "failed to configure session store")
		}
		closers = append(closers, closeSessions)
		ucOpts = append(ucOpts, usecase.WithSessionStore(sessions))
	}

	uc, err := usecase.New(svc, ucOpts...)
	if err != nil {
		closeAll()
		return nil, nil, goerr.Wrap(err, "failed to create use cases")
	}

	return uc, closeAll, nil
}

// unusedEmbedder stands in for commands that never embed text.
type unusedEmbedder struct{}

func (unusedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, goerr.New("embedding is not configured for this command")
}
