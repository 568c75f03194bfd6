package cli_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/syllabus/pkg/cli"
	"github.com/secmon-lab/syllabus/pkg/cli/config"
	"github.com/secmon-lab/syllabus/pkg/repository/sqlite"
	"github.com/secmon-lab/syllabus/pkg/usecase"
)

const courseDoc = `Course Title: Prompt Compression and Query Optimization
Course Link: https://example.com/prompt
Course Instructor: Richmond Alake

Lesson 0: Introduction
Lesson Link: https://example.com/prompt/0
Prompt compression shortens long inputs. It keeps the answer quality while reducing cost.

Lesson 1: Projections
Vector search results can be trimmed with projections. Only the needed fields are returned.
`

type env struct {
	docs     string
	indexDir string
	logFile  string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		docs:     t.TempDir(),
		indexDir: t.TempDir(),
		logFile:  filepath.Join(t.TempDir(), "syllabus.log"),
	}
	gt.NoError(t, os.WriteFile(filepath.Join(e.docs, "course4_script.txt"), []byte(courseDoc), 0600)).Required()
	return e
}

func (e *env) run(t *testing.T, cmd string, args ...string) error {
	t.Helper()
	argv := []string{"syllabus", "--log-output", e.logFile, cmd,
		"--index-backend", "sqlite",
		"--index-dir", e.indexDir,
		"--embedding-provider", "hash",
		"--embedding-dimension", "128",
	}
	return cli.Run(t.Context(), append(argv, args...), "test")
}

func (e *env) countCourses(t *testing.T) int {
	t.Helper()
	idx, err := sqlite.New(t.Context(), e.indexDir)
	gt.NoError(t, err).Required()
	defer idx.Close()
	n, err := idx.CountCourses(t.Context())
	gt.NoError(t, err).Required()
	return n
}

func TestIngestStatsClear(t *testing.T) {
	e := newEnv(t)

	gt.NoError(t, e.run(t, "ingest", e.docs)).Required()
	gt.Number(t, e.countCourses(t)).Equal(1)

	// a second pass skips the existing course
	gt.NoError(t, e.run(t, "ingest", e.docs)).Required()
	gt.Number(t, e.countCourses(t)).Equal(1)

	gt.NoError(t, e.run(t, "ingest", "--clear", e.docs)).Required()
	gt.Number(t, e.countCourses(t)).Equal(1)

	gt.NoError(t, e.run(t, "stats"))

	gt.NoError(t, e.run(t, "clear")).Required()
	gt.Number(t, e.countCourses(t)).Equal(0)
}

func TestIngestRequiresLocation(t *testing.T) {
	e := newEnv(t)
	gt.Error(t, e.run(t, "ingest"))
}

func TestQueryWithoutLLM(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("SYLLABUS_CLAUDE_API_KEY", "")
	e := newEnv(t)
	err := e.run(t, "query", "--llm-provider", "claude", "What is prompt compression?")
	gt.Error(t, err).Is(usecase.ErrLLMNotConfigured)
}

func TestInvalidRAGSettings(t *testing.T) {
	e := newEnv(t)
	gt.Error(t, e.run(t, "stats", "--chunk-size", "10", "--chunk-overlap", "20"))
}

func TestMigrateRequiresProject(t *testing.T) {
	t.Setenv("SYLLABUS_FIRESTORE_PROJECT_ID", "")
	e := newEnv(t)
	err := cli.Run(t.Context(), []string{"syllabus", "--log-output", e.logFile, "migrate", "--dry-run"}, "test")
	gt.Error(t, err).Is(config.ErrMissingOption)
}
