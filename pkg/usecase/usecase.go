package usecase

import (
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/syllabus/pkg/agent/orchestrator"
	"github.com/secmon-lab/syllabus/pkg/agent/tool/course"
	"github.com/secmon-lab/syllabus/pkg/domain/interfaces"
	"github.com/secmon-lab/syllabus/pkg/repository/memory"
	"github.com/secmon-lab/syllabus/pkg/service/chunker"
	"github.com/secmon-lab/syllabus/pkg/service/index"
)

const (
	// DefaultMaxHistory is the number of past exchanges given to the model.
	DefaultMaxHistory = 2

	defaultSessionTurns = 20
)

type UseCases struct {
	index            *index.Service
	chunker          *chunker.Chunker
	llmClient        gollem.LLMClient
	sessions         interfaces.SessionStore
	maxHistory       int
	orchestratorOpts []orchestrator.Option
	orchestrator     *orchestrator.Orchestrator

	// ingestMu keeps ingestion single-writer
	ingestMu sync.Mutex
}

type Option func(*UseCases)

func WithLLM(client gollem.LLMClient) Option {
	return func(uc *UseCases) {
		uc.llmClient = client
	}
}

func WithSessionStore(store interfaces.SessionStore) Option {
	return func(uc *UseCases) {
		uc.sessions = store
	}
}

// WithMaxHistory sets how many past exchanges (user and assistant turn pairs) are sent with a query.
func WithMaxHistory(n int) Option {
	return func(uc *UseCases) {
		if n >= 0 {
			uc.maxHistory = n
		}
	}
}

func WithChunker(c *chunker.Chunker) Option {
	return func(uc *UseCases) {
		if c != nil {
			uc.chunker = c
		}
	}
}

func WithOrchestratorOptions(opts ...orchestrator.Option) Option {
	return func(uc *UseCases) {
		uc.orchestratorOpts = append(uc.orchestratorOpts, opts...)
	}
}

func New(idx *index.Service, opts ...Option) (*UseCases, error) {
	if idx == nil {
		return nil, goerr.New("index service is required")
	}

	uc := &UseCases{
		index:      idx,
		chunker:    chunker.New(),
		maxHistory: DefaultMaxHistory,
	}
	for _, opt := range opts {
		opt(uc)
	}

	if uc.sessions == nil {
		uc.sessions = memory.NewSessionStore(max(defaultSessionTurns, 2*uc.maxHistory))
	}

	if uc.llmClient != nil {
		o, err := orchestrator.New(uc.llmClient, course.NewDefaultRegistry(idx), uc.orchestratorOpts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create orchestrator")
		}
		uc.orchestrator = o
	}

	return uc, nil
}

// Index returns the underlying index service.
func (uc *UseCases) Index() *index.Service {
	return uc.index
}
