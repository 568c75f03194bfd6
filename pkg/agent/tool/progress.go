package tool

import (
	"context"
	"fmt"
)

// ProgressFunc receives a short note of what a tool is doing. Tools of one
// round run concurrently, so implementations must be safe for concurrent use.
type ProgressFunc func(ctx context.Context, toolName, message string)

type progressKey struct{}

// WithProgress returns a context that reports tool progress to fn.
func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

// Progress reports a formatted note to the ProgressFunc of ctx, if any.
func Progress(ctx context.Context, toolName, format string, args ...any) {
	if fn, ok := ctx.Value(progressKey{}).(ProgressFunc); ok && fn != nil {
		fn(ctx, toolName, fmt.Sprintf(format, args...))
	}
}
