package safe

import (
	"context"
	"io"

	"github.com/secmon-lab/mnemos/pkg/utils/logging"
)

// Close closes the closer and logs the error instead of dropping it
func Close(ctx context.Context, c io.Closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		logging.From(ctx).Warn("failed to close", "error", err)
	}
}
