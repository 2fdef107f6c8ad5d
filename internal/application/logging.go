package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/sessionboard/internal/logging"
)

// OperationObserver receives the outcome label of every service operation.
type OperationObserver interface {
	ObserveOperation(service, operation, outcome string)
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, string, string) {}

func defaultObserver(o OperationObserver) OperationObserver {
	if o != nil {
		return o
	}
	return nopObserver{}
}

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// finish logs and records the outcome of an operation. Expected business
// outcomes are logged at warn, everything else at error.
func finish(ctx context.Context, logger *slog.Logger, observer OperationObserver, serviceName, operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = ErrorKind(err)
	}
	defaultObserver(observer).ObserveOperation(serviceName, operation, outcome)
	switch {
	case err == nil:
		logger.InfoContext(ctx, operation+" succeeded")
	case outcome == "unexpected" || outcome == "store" || outcome == "erasure_failed":
		logger.ErrorContext(ctx, operation+" failed", "error", err, "error_kind", outcome)
	default:
		logger.WarnContext(ctx, operation+" rejected", "error", err, "error_kind", outcome)
	}
}

// ErrorKind maps sentinel and validation errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrSessionFull):
		return "session_full"
	case errors.Is(err, ErrSessionCancelled):
		return "session_cancelled"
	case errors.Is(err, ErrSessionPast):
		return "session_past"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrErasureFailed):
		return "erasure_failed"
	case errors.Is(err, ErrStore):
		return "store"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}

	return "unexpected"
}
