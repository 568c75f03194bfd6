package course

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/syllabus/pkg/domain/model"
)

// Result is the outcome of a tool call. Text goes back to the model; Sources
// are tracked by the caller and never shown to the model.
type Result struct {
	Text    string
	Sources []model.Source
}

// Tool is a retrieval capability the model may invoke.
type Tool interface {
	gollem.Tool
	Execute(ctx context.Context, args map[string]any) (*Result, error)
}

// runAsGollem adapts Execute to gollem's Run signature.
func runAsGollem(ctx context.Context, t Tool, args map[string]any) (map[string]any, error) {
	result, err := t.Execute(ctx, args)
	if err != nil {
		return nil, err
	}
	return map[string]any{"result": result.Text}, nil
}

func extractString(args map[string]any, key string) (string, bool, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, goerr.Wrap(ErrInvalidArgument, fmt.Sprintf("%s must be a string, got %T", key, v))
	}
	s = strings.TrimSpace(s)
	return s, s != "", nil
}

// extractInt accepts the numeric shapes LLM providers use for integer arguments.
func extractInt(args map[string]any, key string) (*int, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}

	switch n := v.(type) {
	case int:
		return model.IntPtr(n), nil
	case int64:
		return model.IntPtr(int(n)), nil
	case float64:
		if n != float64(int(n)) {
			return nil, goerr.Wrap(ErrInvalidArgument, fmt.Sprintf("%s must be an integer, got %v", key, n))
		}
		return model.IntPtr(int(n)), nil
	case string:
		if n == "" {
			return nil, nil
		}
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return nil, goerr.Wrap(ErrInvalidArgument, fmt.Sprintf("%s must be an integer, got %q", key, n))
		}
		return model.IntPtr(i), nil
	default:
		return nil, goerr.Wrap(ErrInvalidArgument, fmt.Sprintf("%s must be an integer, got %T", key, v))
	}
}
