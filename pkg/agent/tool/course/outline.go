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

// OutlineToolName is the name the model uses to fetch a course outline.
const OutlineToolName = "get_course_outline"

// OutlineTool returns the title, link, instructor and lesson list of a course.
type OutlineTool struct {
	index *index.Service
}

var _ Tool = &OutlineTool{}

func NewOutlineTool(idx *index.Service) *OutlineTool {
	return &OutlineTool{index: idx}
}

func (t *OutlineTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        OutlineToolName,
		Description: "Get the outline of a course: its title, link, instructor and the complete list of lessons",
		Parameters: map[string]*gollem.Parameter{
			"course_name": {
				Type:        gollem.TypeString,
				Description: "Course title (partial matches work, e.g. 'MCP', 'Computer Use')",
				Required:    true,
			},
		},
	}
}

func (t *OutlineTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	return runAsGollem(ctx, t, args)
}

func (t *OutlineTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	name, ok, err := extractString(args, "course_name")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, goerr.Wrap(ErrInvalidArgument, "course_name is required")
	}

	tool.Progress(ctx, OutlineToolName, "Getting course outline: %s", name)

	course, err := t.index.GetCourse(ctx, name)
	if err != nil {
		if errors.Is(err, index.ErrCourseNotFound) {
			return &Result{Text: index.CourseNotFoundMessage(name)}, nil
		}
		return nil, goerr.Wrap(err, "failed to get course outline", goerr.V("course_name", name))
	}

	return &Result{Text: FormatOutline(course)}, nil
}

// FormatOutline renders a course outline as plain text for the model.
func FormatOutline(c *model.Course) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Course Title: %s\n", c.Title)
	if c.Link != "" {
		fmt.Fprintf(&sb, "Course Link: %s\n", c.Link)
	}
	if c.Instructor != "" {
		fmt.Fprintf(&sb, "Course Instructor: %s\n", c.Instructor)
	}

	lessons := c.SortedLessons()
	fmt.Fprintf(&sb, "\nLessons (%d):\n", len(lessons))
	for _, l := range lessons {
		fmt.Fprintf(&sb, "Lesson %d: %s", l.Number, l.Title)
		if l.Link != "" {
			fmt.Fprintf(&sb, " (%s)", l.Link)
		}
		sb.WriteString("\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}
