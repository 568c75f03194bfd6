package orchestrator

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/syllabus/pkg/agent/tool/course"
	"github.com/secmon-lab/syllabus/pkg/domain/model"
	"github.com/secmon-lab/syllabus/pkg/service/index"
	"github.com/secmon-lab/syllabus/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

//go:embed prompt/system.md
var systemPromptTmpl string

var defaultSystemPrompt = template.Must(template.New("system").Parse(systemPromptTmpl))

const (
	// DefaultMaxModelCalls allows one tool round followed by the answer.
	DefaultMaxModelCalls = 2

	// DefaultForcedAnswer is returned when the bound is hit and the model produced no text.
	DefaultForcedAnswer = "I could not complete an answer within the allowed number of steps. Please try asking a more specific question."

	finalRoundHint = "You have reached the tool usage limit. Answer the original question now using only the information above, without calling any more tools."
)

// Orchestrator runs the bounded model and tool loop for one query at a time.
// It holds no per-query state and can be shared across goroutines.
type Orchestrator struct {
	llm           gollem.LLMClient
	registry      *course.Registry
	maxModelCalls int
	systemPrompt  *template.Template
	forcedAnswer  string
}

// Option configures Orchestrator
type Option func(*Orchestrator)

// WithMaxModelCalls bounds the number of model invocations per query. Values below 1 are ignored.
func WithMaxModelCalls(n int) Option {
	return func(o *Orchestrator) {
		if n >= 1 {
			o.maxModelCalls = n
		}
	}
}

// WithSystemPrompt replaces the system prompt. The text may use {{ .History }}.
func WithSystemPrompt(prompt string) Option {
	return func(o *Orchestrator) {
		o.systemPrompt = template.Must(template.New("system").Parse(prompt))
	}
}

// WithForcedAnswer sets the answer used when the loop is cut off with no model text.
func WithForcedAnswer(answer string) Option {
	return func(o *Orchestrator) {
		o.forcedAnswer = answer
	}
}

// New creates an Orchestrator.
func New(llm gollem.LLMClient, registry *course.Registry, opts ...Option) (*Orchestrator, error) {
	if llm == nil {
		return nil, goerr.New("LLM client is required")
	}
	if registry == nil {
		return nil, goerr.New("tool registry is required")
	}

	o := &Orchestrator{
		llm:           llm,
		registry:      registry,
		maxModelCalls: DefaultMaxModelCalls,
		systemPrompt:  defaultSystemPrompt,
		forcedAnswer:  DefaultForcedAnswer,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Request is a single user query with prior conversation turns, oldest first.
type Request struct {
	Query   string
	History []model.Turn
}

// Result is the outcome of a query.
type Result struct {
	Answer     string
	Sources    []model.Source
	ModelCalls int
	ToolCalls  int
	// Forced reports that the bound was reached while the model still requested tools.
	Forced bool
}

// run is the mutable state of one query.
type run struct {
	state    State
	inputs   []gollem.Input
	pending  []*gollem.FunctionCall
	lastText string
	result   Result
}

// Run answers a query, letting the model call retrieval tools for at most
// the configured number of model invocations.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	logger := logging.From(ctx)

	systemPrompt, err := o.buildSystemPrompt(req.History)
	if err != nil {
		return nil, err
	}

	session, err := o.llm.NewSession(ctx,
		gollem.WithSessionSystemPrompt(systemPrompt),
		gollem.WithSessionTools(o.registry.Tools()...),
	)
	if err != nil {
		return nil, goerr.Wrap(index.ErrBackendUnavailable, "failed to create LLM session", goerr.V("cause", err.Error()))
	}

	r := &run{
		state:  StateAwaitingModel,
		inputs: []gollem.Input{gollem.Text(req.Query)},
	}

	for r.state != StateDone {
		logger.Debug("orchestration step", "state", r.state.String(), "model_calls", r.result.ModelCalls)

		switch r.state {
		case StateAwaitingModel:
			if err := o.awaitModel(ctx, session, r); err != nil {
				return nil, err
			}
		case StateExecutingTools:
			if err := o.executeTools(ctx, r); err != nil {
				return nil, err
			}
		}
	}

	return &r.result, nil
}

func (o *Orchestrator) awaitModel(ctx context.Context, session gollem.Session, r *run) error {
	resp, err := session.GenerateContent(ctx, r.inputs...)
	r.result.ModelCalls++
	if err != nil {
		return goerr.Wrap(index.ErrBackendUnavailable, "failed to generate content",
			goerr.V("cause", err.Error()), goerr.V("model_calls", r.result.ModelCalls))
	}

	text := strings.TrimSpace(strings.Join(resp.Texts, "\n"))
	if text != "" {
		r.lastText = text
	}

	switch {
	case len(resp.FunctionCalls) == 0:
		r.result.Answer = text
		r.state = StateDone

	case r.result.ModelCalls >= o.maxModelCalls:
		logging.From(ctx).Warn("model call bound reached with pending tool calls",
			"model_calls", r.result.ModelCalls, "pending", len(resp.FunctionCalls))
		r.result.Forced = true
		r.result.Answer = r.lastText
		if r.result.Answer == "" {
			r.result.Answer = o.forcedAnswer
		}
		r.state = StateDone

	default:
		r.pending = resp.FunctionCalls
		r.state = StateExecutingTools
	}
	return nil
}

// executeTools runs every call of the round concurrently. Each call writes
// only its own slot; sources are merged afterwards in call order.
func (o *Orchestrator) executeTools(ctx context.Context, r *run) error {
	calls := r.pending
	responses := make([]gollem.Input, len(calls))
	sources := make([][]model.Source, len(calls))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, call := range calls {
		eg.Go(func() error {
			text, srcs, err := o.invoke(egCtx, call)
			if err != nil {
				return err
			}
			sources[i] = srcs
			responses[i] = gollem.FunctionResponse{
				ID:   call.ID,
				Name: call.Name,
				Data: map[string]any{"result": text},
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	for _, srcs := range sources {
		r.result.Sources = model.MergeSources(r.result.Sources, srcs...)
	}
	r.result.ToolCalls += len(calls)

	// the next call is the last one allowed
	if r.result.ModelCalls+1 >= o.maxModelCalls {
		responses = append(responses, gollem.Text(finalRoundHint))
	}

	r.inputs = responses
	r.pending = nil
	r.state = StateAwaitingModel
	return nil
}

// invoke runs one tool call. Only an unknown tool is fatal; any other
// failure is reported back to the model as text.
func (o *Orchestrator) invoke(ctx context.Context, call *gollem.FunctionCall) (string, []model.Source, error) {
	logger := logging.From(ctx)
	logger.Debug("executing tool", "tool", call.Name, "args", call.Arguments)

	result, err := o.registry.Execute(ctx, call.Name, call.Arguments)
	if err != nil {
		if errors.Is(err, course.ErrUnknownTool) {
			return "", nil, goerr.Wrap(err, "model requested an unknown tool", goerr.V("tool", call.Name))
		}
		logger.Warn("tool execution failed", "error", goerr.Wrap(course.ErrToolExecution, err.Error(),
			goerr.V("tool", call.Name)))
		return "Error executing tool: " + err.Error(), nil, nil
	}
	return result.Text, result.Sources, nil
}

func (o *Orchestrator) buildSystemPrompt(history []model.Turn) (string, error) {
	data := struct {
		History string
	}{
		History: model.FormatTranscript(history),
	}

	var buf bytes.Buffer
	if err := o.systemPrompt.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to render system prompt")
	}
	return buf.String(), nil
}
