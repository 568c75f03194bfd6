package usecase_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/syllabus/pkg/agent/tool/course"
	"github.com/secmon-lab/syllabus/pkg/domain/model"
	"github.com/secmon-lab/syllabus/pkg/repository/memory"
	"github.com/secmon-lab/syllabus/pkg/service/chunker"
	"github.com/secmon-lab/syllabus/pkg/service/embedding"
	"github.com/secmon-lab/syllabus/pkg/service/index"
	"github.com/secmon-lab/syllabus/pkg/usecase"
)

const courseMCP = `Course Title: MCP: Build Rich-Context AI Apps with Anthropic
Course Link: https://example.com/mcp
Course Instructor: Elie Schoppik

Lesson 0: Introduction
Lesson Link: https://example.com/mcp/0
Welcome to the course. MCP connects models to tools and data. You will build servers and clients.

Lesson 1: MCP Architecture
Lesson Link: https://example.com/mcp/1
An MCP server exposes tools, resources and prompts. A client connects to servers over a transport.
`

const courseComputerUse = `Course Title: Building Towards Computer Use with Anthropic
Course Link: https://example.com/computer-use
Course Instructor: Colt Steele

Lesson 1: Overview
Computer use lets the model operate a desktop. It takes screenshots and issues mouse clicks.
`

// same title as courseMCP in a different file
const courseMCPDuplicate = `Course Title: MCP: Build Rich-Context AI Apps with Anthropic
Course Instructor: Someone Else

Lesson 0: Another intro
Different text.
`

const malformed = `This file has no course header at all.
`

func writeDocs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"course1_script.txt": courseMCP,
		"course2_script.txt": courseComputerUse,
		"course3_script.txt": courseMCPDuplicate,
		"notes.md":           malformed,
		"image.png":          "not a document",
	}
	for name, content := range files {
		gt.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600)).Required()
	}
	return dir
}

func newIndex(t *testing.T) *index.Service {
	t.Helper()
	svc, err := index.New(memory.NewCourseIndex(), embedding.NewHash(256))
	gt.NoError(t, err).Required()
	return svc
}

func TestIngest(t *testing.T) {
	ctx := context.Background()

	t.Run("counts added, skipped and failed documents", func(t *testing.T) {
		uc, err := usecase.New(newIndex(t))
		gt.NoError(t, err).Required()

		report, err := uc.Ingest(ctx, writeDocs(t))
		gt.NoError(t, err).Required()
		gt.Value(t, report.CoursesAdded).Equal(2)
		gt.Value(t, report.Skipped).Equal(1)
		gt.Value(t, report.Failed).Equal(1)
		gt.Number(t, report.ChunksAdded).GreaterOrEqual(3)
		gt.Array(t, report.Failures).Length(1).Required()
		gt.Value(t, report.Failures[0].Document).Equal("notes.md")

		stats, err := uc.GetStats(ctx)
		gt.NoError(t, err).Required()
		gt.Value(t, stats.TotalCourses).Equal(2)
		gt.Value(t, stats.CourseTitles).Equal([]string{
			"Building Towards Computer Use with Anthropic",
			"MCP: Build Rich-Context AI Apps with Anthropic",
		})
	})

	t.Run("ingesting twice adds nothing the second time", func(t *testing.T) {
		uc, err := usecase.New(newIndex(t))
		gt.NoError(t, err).Required()
		dir := writeDocs(t)

		_, err = uc.Ingest(ctx, dir)
		gt.NoError(t, err).Required()

		report, err := uc.Ingest(ctx, dir)
		gt.NoError(t, err).Required()
		gt.Value(t, report.CoursesAdded).Equal(0)
		gt.Value(t, report.ChunksAdded).Equal(0)
		gt.Value(t, report.Skipped).Equal(3)

		stats, err := uc.GetStats(ctx)
		gt.NoError(t, err).Required()
		gt.Value(t, stats.TotalCourses).Equal(2)
	})

	t.Run("clear existing re-adds courses", func(t *testing.T) {
		uc, err := usecase.New(newIndex(t))
		gt.NoError(t, err).Required()
		dir := writeDocs(t)

		_, err = uc.Ingest(ctx, dir)
		gt.NoError(t, err).Required()

		report, err := uc.Ingest(ctx, dir, usecase.WithClearExisting())
		gt.NoError(t, err).Required()
		gt.Value(t, report.CoursesAdded).Equal(2)
	})

	t.Run("missing folder is an empty pass", func(t *testing.T) {
		uc, err := usecase.New(newIndex(t))
		gt.NoError(t, err).Required()

		report, err := uc.Ingest(ctx, filepath.Join(t.TempDir(), "nope"))
		gt.NoError(t, err).Required()
		gt.Value(t, *report).Equal(model.IngestReport{})
	})

	t.Run("chunk settings apply", func(t *testing.T) {
		small, err := usecase.New(newIndex(t), usecase.WithChunker(chunker.New(chunker.WithChunkSize(60), chunker.WithChunkOverlap(0))))
		gt.NoError(t, err).Required()
		large, err := usecase.New(newIndex(t))
		gt.NoError(t, err).Required()
		dir := writeDocs(t)

		r1, err := small.Ingest(ctx, dir)
		gt.NoError(t, err).Required()
		r2, err := large.Ingest(ctx, dir)
		gt.NoError(t, err).Required()
		gt.Bool(t, r1.ChunksAdded > r2.ChunksAdded).True()
	})

	t.Run("concurrent ingestion is serialized", func(t *testing.T) {
		uc, err := usecase.New(newIndex(t))
		gt.NoError(t, err).Required()
		dir := writeDocs(t)

		var wg sync.WaitGroup
		reports := make([]*model.IngestReport, 4)
		for i := range reports {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r, err := uc.Ingest(ctx, dir)
				if err != nil {
					t.Error(err)
					return
				}
				reports[i] = r
			}()
		}
		wg.Wait()

		added := 0
		for _, r := range reports {
			if r != nil {
				added += r.CoursesAdded
			}
		}
		gt.Value(t, added).Equal(2)
	})
}

// mockLLMSession is a mock gollem Session for testing
type mockLLMSession struct {
	generateContentFn func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error)
}

func (s *mockLLMSession) GenerateContent(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
	if s.generateContentFn != nil {
		return s.generateContentFn(ctx, input...)
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
	newSessionFn func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error)
}

func (c *mockLLMClient) NewSession(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	if c.newSessionFn != nil {
		return c.newSessionFn(ctx, options...)
	}
	return &mockLLMSession{}, nil
}

func (c *mockLLMClient) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	return nil, errors.New("not implemented")
}

// newToolThenAnswerClient returns a client whose sessions search once, then answer.
func newToolThenAnswerClient(answer string) *mockLLMClient {
	return &mockLLMClient{
		newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
			calls := 0
			return &mockLLMSession{
				generateContentFn: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
					calls++
					if calls == 1 {
						return &gollem.Response{FunctionCalls: []*gollem.FunctionCall{{
							ID:        "1",
							Name:      course.SearchToolName,
							Arguments: map[string]any{"query": "mcp server tools", "course_name": "MCP", "lesson_number": 1},
						}}}, nil
					}
					return &gollem.Response{Texts: []string{answer}}, nil
				},
			}, nil
		},
	}
}

func TestAnswerQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("requires LLM", func(t *testing.T) {
		uc, err := usecase.New(newIndex(t))
		gt.NoError(t, err).Required()

		_, err = uc.AnswerQuery(ctx, "What is MCP?", "")
		gt.Error(t, err).Is(usecase.ErrLLMNotConfigured)
	})

	t.Run("rejects empty query", func(t *testing.T) {
		uc, err := usecase.New(newIndex(t), usecase.WithLLM(&mockLLMClient{}))
		gt.NoError(t, err).Required()

		_, err = uc.AnswerQuery(ctx, "   ", "")
		gt.Error(t, err).Is(usecase.ErrEmptyQuery)
	})

	t.Run("answers with sources and records history", func(t *testing.T) {
		sessions := memory.NewSessionStore(10)
		uc, err := usecase.New(newIndex(t),
			usecase.WithLLM(newToolThenAnswerClient("Servers expose tools.")),
			usecase.WithSessionStore(sessions),
		)
		gt.NoError(t, err).Required()

		_, err = uc.Ingest(ctx, writeDocs(t))
		gt.NoError(t, err).Required()

		answer, err := uc.AnswerQuery(ctx, "What does an MCP server expose?", "")
		gt.NoError(t, err).Required()
		gt.Value(t, answer.Text).Equal("Servers expose tools.")
		gt.String(t, answer.SessionID).NotEqual("")
		gt.Array(t, answer.Sources).Length(1).Required()
		gt.Value(t, answer.Sources[0]).Equal(model.Source{
			Title: "MCP: Build Rich-Context AI Apps with Anthropic - Lesson 1",
			Link:  "https://example.com/mcp/1",
		})

		turns, err := sessions.GetHistory(ctx, model.SessionID(answer.SessionID), 0)
		gt.NoError(t, err).Required()
		gt.Value(t, turns).Equal([]model.Turn{
			{Role: model.RoleUser, Content: "What does an MCP server expose?"},
			{Role: model.RoleAssistant, Content: "Servers expose tools."},
		})

		again, err := uc.AnswerQuery(ctx, "And clients?", answer.SessionID)
		gt.NoError(t, err).Required()
		gt.Value(t, again.SessionID).Equal(answer.SessionID)

		turns, err = sessions.GetHistory(ctx, model.SessionID(answer.SessionID), 0)
		gt.NoError(t, err).Required()
		gt.Array(t, turns).Length(4)

		gt.NoError(t, uc.ClearSession(ctx, answer.SessionID)).Required()
		turns, err = sessions.GetHistory(ctx, model.SessionID(answer.SessionID), 0)
		gt.NoError(t, err).Required()
		gt.Array(t, turns).Length(0)
	})

	t.Run("model failure is not recorded", func(t *testing.T) {
		sessions := memory.NewSessionStore(10)
		client := &mockLLMClient{
			newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
				return &mockLLMSession{
					generateContentFn: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
						return nil, errors.New("overloaded")
					},
				}, nil
			},
		}
		uc, err := usecase.New(newIndex(t), usecase.WithLLM(client), usecase.WithSessionStore(sessions))
		gt.NoError(t, err).Required()

		_, err = uc.AnswerQuery(ctx, "q", "s1")
		gt.Error(t, err).Is(index.ErrBackendUnavailable)

		turns, err := sessions.GetHistory(ctx, "s1", 0)
		gt.NoError(t, err).Required()
		gt.Array(t, turns).Length(0)
	})
}

func TestClearIndex(t *testing.T) {
	ctx := context.Background()
	uc, err := usecase.New(newIndex(t))
	gt.NoError(t, err).Required()

	_, err = uc.Ingest(ctx, writeDocs(t))
	gt.NoError(t, err).Required()
	gt.NoError(t, uc.ClearIndex(ctx)).Required()

	stats, err := uc.GetStats(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, stats.TotalCourses).Equal(0)
	gt.Array(t, stats.CourseTitles).Length(0)
}
