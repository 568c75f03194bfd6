package course

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/syllabus/pkg/agent/tool"
	"github.com/secmon-lab/syllabus/pkg/domain/model"
	"github.com/secmon-lab/syllabus/pkg/service/index"
)

const (
	// SearchToolName is the name the model uses to search course content.
	SearchToolName = "search_course_content"

	noContentMessage = "No relevant content found"
)

// SearchTool runs semantic search over course content with optional course and lesson filters.
type SearchTool struct {
	index *index.Service
}

var _ Tool = &SearchTool{}

func NewSearchTool(idx *index.Service) *SearchTool {
	return &SearchTool{index: idx}
}

func (t *SearchTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        SearchToolName,
		Description: "Search course materials with smart course name matching and lesson filtering",
		Parameters: map[string]*gollem.Parameter{
			"query": {
				Type:        gollem.TypeString,
				Description: "What to search for in the course content",
				Required:    true,
			},
			"course_name": {
				Type:        gollem.TypeString,
				Description: "Course title (partial matches work, e.g. 'MCP', 'Introduction')",
			},
			"lesson_number": {
				Type:        gollem.TypeInteger,
				Description: "Specific lesson number to search within (e.g. 1, 2, 3)",
			},
		},
	}
}

func (t *SearchTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	return runAsGollem(ctx, t, args)
}

func (t *SearchTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	query, ok, err := extractString(args, "query")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, goerr.Wrap(ErrInvalidArgument, "query is required")
	}
	courseName, _, err := extractString(args, "course_name")
	if err != nil {
		return nil, err
	}
	lesson, err := extractInt(args, "lesson_number")
	if err != nil {
		return nil, err
	}

	tool.Progress(ctx, SearchToolName, "Searching course content: %s", query)

	resp, err := t.index.Search(ctx, index.SearchQuery{
		Query:        query,
		CourseName:   courseName,
		LessonNumber: lesson,
	})
	if err != nil {
		if errors.Is(err, index.ErrCourseNotFound) {
			return &Result{Text: index.CourseNotFoundMessage(courseName)}, nil
		}
		return nil, goerr.Wrap(err, "failed to search course content", goerr.V("query", query))
	}

	if len(resp.Results) == 0 {
		return &Result{Text: emptyMessage(courseName, lesson)}, nil
	}

	return t.format(ctx, resp.Results), nil
}

func emptyMessage(courseName string, lesson *int) string {
	var sb strings.Builder
	sb.WriteString(noContentMessage)
	if courseName != "" {
		fmt.Fprintf(&sb, " in course '%s'", courseName)
	}
	if lesson != nil {
		fmt.Fprintf(&sb, " in lesson %d", *lesson)
	}
	sb.WriteString(".")
	return sb.String()
}

func (t *SearchTool) format(ctx context.Context, results []*model.SearchResult) *Result {
	courses := make(map[string]*model.Course)
	lookup := func(title string) *model.Course {
		if c, ok := courses[title]; ok {
			return c
		}
		// a missing outline only costs the link
		c, err := t.index.LookupCourse(ctx, title)
		if err != nil {
			c = nil
		}
		courses[title] = c
		return c
	}

	blocks := make([]string, 0, len(results))
	var sources []model.Source

	for _, r := range results {
		label := r.Metadata.SourceLabel()
		blocks = append(blocks, fmt.Sprintf("[%s]\n%s", label, r.Content))

		src := model.Source{Title: label}
		if c := lookup(r.Metadata.CourseTitle); c != nil {
			src.Link = c.Link
			if r.Metadata.LessonNumber != nil {
				if l, ok := c.Lesson(*r.Metadata.LessonNumber); ok && l.Link != "" {
					src.Link = l.Link
				}
			}
		}
		sources = model.MergeSources(sources, src)
	}

	return &Result{
		Text:    strings.Join(blocks, "\n\n"),
		Sources: sources,
	}
}
