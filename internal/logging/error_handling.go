package logging

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
)

// SafeCloseWithLogging closes resource and logs a failure instead of returning it. A nil closer and
// a resource that was already closed are not errors.
func SafeCloseWithLogging(closer io.Closer, logger *slog.Logger, resource string) {
	if closer == nil {
		return
	}

	err := closer.Close()
	if err == nil || errors.Is(err, fs.ErrClosed) {
		return
	}
	LogError(logger, "close failed", err, slog.String("resource", resource))
}

// HandleDeferredError runs cleanup from a defer. A cleanup failure is always logged and becomes
// the result only when *result is still nil.
func HandleDeferredError(result *error, cleanup func() error, logger *slog.Logger, operation string) {
	if cleanup == nil {
		return
	}

	err := cleanup()
	if err == nil {
		return
	}
	LogError(logger, "cleanup failed", err, slog.String("operation", operation))

	if *result == nil {
		*result = fmt.Errorf("%s failed: %w", operation, err)
	}
}
