package requestid

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/authflow/pkg/logger"
)

// LoggerExtractor returns a logger.ContextExtractor adding the request id.
func LoggerExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		if id := FromContext(ctx); id != "" {
			return logger.RequestID(id), true
		}
		return slog.Attr{}, false
	}
}
