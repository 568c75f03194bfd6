package orchestrator_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/syllabus/pkg/agent/orchestrator"
	"github.com/secmon-lab/syllabus/pkg/agent/tool"
	"github.com/secmon-lab/syllabus/pkg/agent/tool/course"
	"github.com/secmon-lab/syllabus/pkg/domain/model"
	"github.com/secmon-lab/syllabus/pkg/repository/memory"
	"github.com/secmon-lab/syllabus/pkg/service/embedding"
	"github.com/secmon-lab/syllabus/pkg/service/index"
)

// mockLLMSession is a mock gollem Session for testing
type mockLLMSession struct {
	mu                sync.Mutex
	calls             [][]gollem.Input
	generateContentFn func(ctx context.Context, call int, input ...gollem.Input) (*gollem.Response, error)
}

func (s *mockLLMSession) GenerateContent(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, input)
	call := len(s.calls)
	s.mu.Unlock()

	if s.generateContentFn != nil {
		return s.generateContentFn(ctx, call, input...)
	}
	return &gollem.Response{Texts: []string{"mock response"}}, nil
}

func (s *mockLLMSession) GenerateStream(ctx context.Context, input ...gollem.Input) (<-chan *gollem.Response, error) {
	return nil, errors.New("not implemented")
}

func (s *mockLLMSession) History() (*gollem.History, error) {
	return nil, nil
}

func (s *mockLLMSession) AppendHistory(*gollem.History) error {
	return nil
}

func (s *mockLLMSession) CountToken(ctx context.Context, input ...gollem.Input) (int, error) {
	return 0, nil
}

// mockLLMClient is a mock gollem LLMClient for testing
type mockLLMClient struct {
	session      *mockLLMSession
	newSessionFn func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error)
}

func (c *mockLLMClient) NewSession(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	if c.newSessionFn != nil {
		return c.newSessionFn(ctx, options...)
	}
	return c.session, nil
}

func (c *mockLLMClient) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	return nil, errors.New("not implemented")
}

const mcpTitle = "MCP: Build Rich-Context AI Apps with Anthropic"

func newRegistry(t *testing.T) *course.Registry {
	t.Helper()
	svc, err := index.New(memory.NewCourseIndex(), embedding.NewHash(128))
	gt.NoError(t, err).Required()

	gt.NoError(t, svc.AddCourse(t.Context(),
		&model.Course{
			Title: mcpTitle,
			Link:  "https://example.com/mcp",
			Lessons: []model.Lesson{
				{Number: 1, Title: "Why MCP", Link: "https://example.com/mcp/1"},
				{Number: 2, Title: "Servers", Link: "https://example.com/mcp/2"},
			},
		},
		[]*model.CourseChunk{
			{Content: "Course MCP Lesson 1 content: mcp standardizes tool access.", CourseTitle: mcpTitle, LessonNumber: model.IntPtr(1), ChunkIndex: 0},
			{Content: "Course MCP Lesson 2 content: servers expose tools.", CourseTitle: mcpTitle, LessonNumber: model.IntPtr(2), ChunkIndex: 1},
		},
	)).Required()

	return course.NewDefaultRegistry(svc)
}

func searchCall(id string, args map[string]any) *gollem.FunctionCall {
	return &gollem.FunctionCall{ID: id, Name: course.SearchToolName, Arguments: args}
}

func functionResponses(inputs []gollem.Input) []gollem.FunctionResponse {
	var out []gollem.FunctionResponse
	for _, in := range inputs {
		if fr, ok := in.(gollem.FunctionResponse); ok {
			out = append(out, fr)
		}
	}
	return out
}

func hasText(inputs []gollem.Input, text string) bool {
	for _, in := range inputs {
		if t, ok := in.(gollem.Text); ok && string(t) == text {
			return true
		}
	}
	return false
}

func TestRunDirectAnswer(t *testing.T) {
	session := &mockLLMSession{
		generateContentFn: func(ctx context.Context, call int, input ...gollem.Input) (*gollem.Response, error) {
			return &gollem.Response{Texts: []string{"Go is a programming language."}}, nil
		},
	}
	o, err := orchestrator.New(&mockLLMClient{session: session}, newRegistry(t))
	gt.NoError(t, err).Required()

	result, err := o.Run(t.Context(), orchestrator.Request{Query: "What is Go?"})
	gt.NoError(t, err).Required()
	gt.Value(t, result.Answer).Equal("Go is a programming language.")
	gt.Value(t, result.ModelCalls).Equal(1)
	gt.Value(t, result.ToolCalls).Equal(0)
	gt.Bool(t, result.Forced).False()
	gt.Array(t, result.Sources).Length(0)
}

func TestRunOneToolRound(t *testing.T) {
	session := &mockLLMSession{
		generateContentFn: func(ctx context.Context, call int, input ...gollem.Input) (*gollem.Response, error) {
			if call == 1 {
				return &gollem.Response{
					FunctionCalls: []*gollem.FunctionCall{
						searchCall("call-1", map[string]any{"query": "servers", "course_name": "MCP", "lesson_number": float64(2)}),
					},
				}, nil
			}

			responses := functionResponses(input)
			if len(responses) != 1 {
				return nil, errors.New("expected one function response")
			}
			return &gollem.Response{Texts: []string{"Servers expose tools."}}, nil
		},
	}
	o, err := orchestrator.New(&mockLLMClient{session: session}, newRegistry(t))
	gt.NoError(t, err).Required()

	result, err := o.Run(t.Context(), orchestrator.Request{Query: "What do MCP servers do in lesson 2?"})
	gt.NoError(t, err).Required()
	gt.Value(t, result.Answer).Equal("Servers expose tools.")
	gt.Value(t, result.ModelCalls).Equal(2)
	gt.Value(t, result.ToolCalls).Equal(1)
	gt.Bool(t, result.Forced).False()
	gt.Value(t, result.Sources).Equal([]model.Source{
		{Title: mcpTitle + " - Lesson 2", Link: "https://example.com/mcp/2"},
	})

	gt.Array(t, session.calls).Length(2).Required()
	fr := functionResponses(session.calls[1])
	gt.Array(t, fr).Length(1).Required()
	gt.Value(t, fr[0].ID).Equal("call-1")
	gt.Value(t, fr[0].Name).Equal(course.SearchToolName)
	text, _ := fr[0].Data["result"].(string)
	gt.String(t, text).Contains("[" + mcpTitle + " - Lesson 2]")
	gt.String(t, text).NotContains("https://")
	gt.Bool(t, hasText(session.calls[1], orchestrator.FinalRoundHint)).True()
}

func TestRunBoundedModelCalls(t *testing.T) {
	alwaysCallTool := func(text string) func(ctx context.Context, call int, input ...gollem.Input) (*gollem.Response, error) {
		return func(ctx context.Context, call int, input ...gollem.Input) (*gollem.Response, error) {
			resp := &gollem.Response{
				FunctionCalls: []*gollem.FunctionCall{
					searchCall("call", map[string]any{"query": "tools"}),
				},
			}
			if text != "" {
				resp.Texts = []string{text}
			}
			return resp, nil
		}
	}

	t.Run("fallback answer when model gave no text", func(t *testing.T) {
		session := &mockLLMSession{generateContentFn: alwaysCallTool("")}
		o, err := orchestrator.New(&mockLLMClient{session: session}, newRegistry(t),
			orchestrator.WithForcedAnswer("out of steps"))
		gt.NoError(t, err).Required()

		result, err := o.Run(t.Context(), orchestrator.Request{Query: "loop forever"})
		gt.NoError(t, err).Required()
		gt.Value(t, result.ModelCalls).Equal(orchestrator.DefaultMaxModelCalls)
		gt.Value(t, result.ToolCalls).Equal(1)
		gt.Bool(t, result.Forced).True()
		gt.Value(t, result.Answer).Equal("out of steps")
		// sources gathered before the cut-off survive
		gt.Array(t, result.Sources).Length(2)
	})

	t.Run("last model text is kept", func(t *testing.T) {
		session := &mockLLMSession{generateContentFn: alwaysCallTool("partial answer")}
		o, err := orchestrator.New(&mockLLMClient{session: session}, newRegistry(t),
			orchestrator.WithMaxModelCalls(3))
		gt.NoError(t, err).Required()

		result, err := o.Run(t.Context(), orchestrator.Request{Query: "loop forever"})
		gt.NoError(t, err).Required()
		gt.Value(t, result.ModelCalls).Equal(3)
		gt.Value(t, result.ToolCalls).Equal(2)
		gt.Bool(t, result.Forced).True()
		gt.Value(t, result.Answer).Equal("partial answer")
		gt.Array(t, session.calls).Length(3).Required()
		// only the last allowed round carries the hint
		gt.Bool(t, hasText(session.calls[1], orchestrator.FinalRoundHint)).False()
		gt.Bool(t, hasText(session.calls[2], orchestrator.FinalRoundHint)).True()
	})

	t.Run("single call bound never runs tools", func(t *testing.T) {
		session := &mockLLMSession{generateContentFn: alwaysCallTool("")}
		o, err := orchestrator.New(&mockLLMClient{session: session}, newRegistry(t),
			orchestrator.WithMaxModelCalls(1))
		gt.NoError(t, err).Required()

		result, err := o.Run(t.Context(), orchestrator.Request{Query: "q"})
		gt.NoError(t, err).Required()
		gt.Value(t, result.ModelCalls).Equal(1)
		gt.Value(t, result.ToolCalls).Equal(0)
		gt.Value(t, result.Answer).Equal(orchestrator.DefaultForcedAnswer)
	})
}

func TestRunConcurrentToolCalls(t *testing.T) {
	session := &mockLLMSession{
		generateContentFn: func(ctx context.Context, call int, input ...gollem.Input) (*gollem.Response, error) {
			if call == 1 {
				return &gollem.Response{
					FunctionCalls: []*gollem.FunctionCall{
						searchCall("a", map[string]any{"query": "mcp standardizes tool access", "lesson_number": 1}),
						{ID: "b", Name: course.OutlineToolName, Arguments: map[string]any{"course_name": "MCP"}},
						searchCall("c", map[string]any{"query": "servers", "lesson_number": 2}),
						searchCall("d", map[string]any{"query": "servers", "lesson_number": 2}),
					},
				}, nil
			}
			return &gollem.Response{Texts: []string{"done"}}, nil
		},
	}
	o, err := orchestrator.New(&mockLLMClient{session: session}, newRegistry(t))
	gt.NoError(t, err).Required()

	result, err := o.Run(t.Context(), orchestrator.Request{Query: "q"})
	gt.NoError(t, err).Required()
	gt.Value(t, result.ToolCalls).Equal(4)
	gt.Value(t, result.Sources).Equal([]model.Source{
		{Title: mcpTitle + " - Lesson 1", Link: "https://example.com/mcp/1"},
		{Title: mcpTitle + " - Lesson 2", Link: "https://example.com/mcp/2"},
	})

	fr := functionResponses(session.calls[1])
	gt.Array(t, fr).Length(4).Required()
	gt.Value(t, fr[0].ID).Equal("a")
	gt.Value(t, fr[1].ID).Equal("b")
	outline, _ := fr[1].Data["result"].(string)
	gt.String(t, outline).Contains("Lessons (2):")
}

func TestRunToolErrors(t *testing.T) {
	t.Run("tool failure is reported to the model", func(t *testing.T) {
		session := &mockLLMSession{
			generateContentFn: func(ctx context.Context, call int, input ...gollem.Input) (*gollem.Response, error) {
				if call == 1 {
					return &gollem.Response{
						FunctionCalls: []*gollem.FunctionCall{searchCall("x", map[string]any{})},
					}, nil
				}
				return &gollem.Response{Texts: []string{"sorry"}}, nil
			},
		}
		o, err := orchestrator.New(&mockLLMClient{session: session}, newRegistry(t))
		gt.NoError(t, err).Required()

		result, err := o.Run(t.Context(), orchestrator.Request{Query: "q"})
		gt.NoError(t, err).Required()
		gt.Value(t, result.Answer).Equal("sorry")

		fr := functionResponses(session.calls[1])
		gt.Array(t, fr).Length(1).Required()
		text, _ := fr[0].Data["result"].(string)
		gt.String(t, text).Contains("Error executing tool: ")
	})

	t.Run("unknown tool aborts the query", func(t *testing.T) {
		session := &mockLLMSession{
			generateContentFn: func(ctx context.Context, call int, input ...gollem.Input) (*gollem.Response, error) {
				return &gollem.Response{
					FunctionCalls: []*gollem.FunctionCall{{ID: "z", Name: "drop_tables"}},
				}, nil
			},
		}
		o, err := orchestrator.New(&mockLLMClient{session: session}, newRegistry(t))
		gt.NoError(t, err).Required()

		_, err = o.Run(t.Context(), orchestrator.Request{Query: "q"})
		gt.Error(t, err).Is(course.ErrUnknownTool)
	})

	t.Run("model failure is a backend error", func(t *testing.T) {
		session := &mockLLMSession{
			generateContentFn: func(ctx context.Context, call int, input ...gollem.Input) (*gollem.Response, error) {
				return nil, errors.New("503 service unavailable")
			},
		}
		o, err := orchestrator.New(&mockLLMClient{session: session}, newRegistry(t))
		gt.NoError(t, err).Required()

		_, err = o.Run(t.Context(), orchestrator.Request{Query: "q"})
		gt.Error(t, err).Is(index.ErrBackendUnavailable)
		gt.Array(t, session.calls).Length(1)
	})

	t.Run("session creation failure", func(t *testing.T) {
		client := &mockLLMClient{
			newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
				return nil, errors.New("quota exceeded")
			},
		}
		o, err := orchestrator.New(client, newRegistry(t))
		gt.NoError(t, err).Required()

		_, err = o.Run(t.Context(), orchestrator.Request{Query: "q"})
		gt.Error(t, err).Is(index.ErrBackendUnavailable)
	})
}

func TestSystemPrompt(t *testing.T) {
	o, err := orchestrator.New(&mockLLMClient{session: &mockLLMSession{}}, newRegistry(t))
	gt.NoError(t, err).Required()

	t.Run("without history", func(t *testing.T) {
		prompt, err := o.BuildSystemPrompt(nil)
		gt.NoError(t, err).Required()
		gt.String(t, prompt).Contains(course.OutlineToolName)
		gt.String(t, prompt).NotContains("Previous conversation")
	})

	t.Run("with history", func(t *testing.T) {
		prompt, err := o.BuildSystemPrompt([]model.Turn{
			{Role: model.RoleUser, Content: "What is MCP?"},
			{Role: model.RoleAssistant, Content: "A protocol."},
		})
		gt.NoError(t, err).Required()
		gt.String(t, prompt).Contains("Previous conversation")
		gt.String(t, prompt).Contains("User: What is MCP?\nAssistant: A protocol.")
	})

	t.Run("custom prompt", func(t *testing.T) {
		custom, err := orchestrator.New(&mockLLMClient{session: &mockLLMSession{}}, newRegistry(t),
			orchestrator.WithSystemPrompt("Be terse.{{ if .History }} {{ .History }}{{ end }}"))
		gt.NoError(t, err).Required()

		prompt, err := custom.BuildSystemPrompt([]model.Turn{{Role: model.RoleUser, Content: "hi"}})
		gt.NoError(t, err).Required()
		gt.Value(t, prompt).Equal("Be terse. User: hi")
	})
}

func TestStateString(t *testing.T) {
	gt.Value(t, orchestrator.StateAwaitingModel.String()).Equal("awaiting_model")
	gt.Value(t, orchestrator.StateExecutingTools.String()).Equal("executing_tools")
	gt.Value(t, orchestrator.StateDone.String()).Equal("done")
}

func TestRunReportsToolProgress(t *testing.T) {
	session := &mockLLMSession{
		generateContentFn: func(ctx context.Context, call int, input ...gollem.Input) (*gollem.Response, error) {
			if call == 1 {
				return &gollem.Response{FunctionCalls: []*gollem.FunctionCall{
					searchCall("call-1", map[string]any{"query": "servers"}),
					{ID: "call-2", Name: course.OutlineToolName, Arguments: map[string]any{"course_name": "MCP"}},
				}}, nil
			}
			return &gollem.Response{Texts: []string{"done"}}, nil
		},
	}
	o, err := orchestrator.New(&mockLLMClient{session: session}, newRegistry(t))
	gt.NoError(t, err).Required()

	var mu sync.Mutex
	seen := map[string]int{}
	ctx := tool.WithProgress(t.Context(), func(_ context.Context, name, _ string) {
		mu.Lock()
		defer mu.Unlock()
		seen[name]++
	})

	_, err = o.Run(ctx, orchestrator.Request{Query: "What do MCP servers do?"})
	gt.NoError(t, err).Required()
	gt.Number(t, seen[course.SearchToolName]).Equal(1)
	gt.Number(t, seen[course.OutlineToolName]).Equal(1)
}
