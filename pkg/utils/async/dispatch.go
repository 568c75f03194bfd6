package async

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/syllabus/pkg/utils/errutil"
	"github.com/secmon-lab/syllabus/pkg/utils/logging"
)

// Dispatch runs handler in a new goroutine detached from ctx cancellation.
// The logger of ctx is carried over. Errors and panics are logged under name.
// The returned channel is closed when handler has returned.
func Dispatch(ctx context.Context, name string, handler func(ctx context.Context) error) <-chan struct{} {
	logger := logging.From(ctx).With("task", name)
	bgCtx := logging.With(context.WithoutCancel(ctx), logger)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				err := goerr.New("panic in background task", goerr.V("panic", fmt.Sprint(r)))
				_ = errutil.Handle(bgCtx, err, "background task panicked")
			}
		}()

		if err := handler(bgCtx); err != nil {
			_ = errutil.Handle(bgCtx, err, "background task failed")
		}
	}()

	return done
}
