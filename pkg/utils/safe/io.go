package safe

import (
	"context"
	"fmt"
	"io"

	"github.com/secmon-lab/syllabus/pkg/utils/logging"
)

// Close closes closer and logs a failure instead of returning it. A nil
// closer is ignored.
func Close(ctx context.Context, closer io.Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.From(ctx).Warn("failed to close",
			"type", fmt.Sprintf("%T", closer),
			"error", err.Error(),
		)
	}
}

// Copy streams src into dst and logs a failure. It returns the number of
// bytes written.
func Copy(ctx context.Context, dst io.Writer, src io.Reader) int64 {
	n, err := io.Copy(dst, src)
	if err != nil {
		logging.From(ctx).Warn("failed to copy", "written", n, "error", err.Error())
	}
	return n
}
