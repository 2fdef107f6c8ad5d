package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/example/sessionboard/internal/application"
)

var errBadRequestBody = errors.New("invalid request body")

// Error codes surfaced to clients.
const (
	codeBadRequest       = "BAD_REQUEST"
	codeValidation       = "VALIDATION_FAILED"
	codeUnauthenticated  = "AUTH_REQUIRED"
	codeForbidden        = "FORBIDDEN"
	codeNotFound         = "NOT_FOUND"
	codeAlreadyExists    = "ALREADY_EXISTS"
	codeSessionFull      = "SESSION_FULL"
	codeSessionCancelled = "SESSION_CANCELLED"
	codeSessionPast      = "SESSION_PAST"
	codeTokenExpired     = "TOKEN_EXPIRED"
	codeErasureFailed    = "ERASURE_FAILED"
	codeInternal         = "INTERNAL"
)

type errorResponse struct {
	ErrorCode string                   `json:"error_code"`
	Message   string                   `json:"message"`
	Errors    []application.FieldError `json:"errors,omitempty"`
}

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	return responder{logger: defaultLogger(logger)}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, code string, err error) {
	message := http.StatusText(status)
	if err != nil {
		message = err.Error()
	}
	r.writeJSON(ctx, w, status, errorResponse{ErrorCode: code, Message: message})
}

func (r responder) badRequest(ctx context.Context, w http.ResponseWriter, err error) {
	r.loggerFor(ctx).WarnContext(ctx, "malformed request", "error", err)
	r.writeError(ctx, w, http.StatusBadRequest, codeBadRequest, errBadRequestBody)
}

// handleServiceError translates service errors into status codes. An
// authorization failure is 401 for anonymous callers and 403 otherwise.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	status, body := r.describe(ctx, err)
	if status >= http.StatusInternalServerError {
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err, "error_kind", application.ErrorKind(err))
	}
	r.writeJSON(ctx, w, status, body)
}

func (r responder) describe(ctx context.Context, err error) (int, errorResponse) {
	fields := application.FieldErrorsOf(err)
	switch {
	case err == nil:
		return http.StatusInternalServerError, errorResponse{ErrorCode: codeInternal, Message: "unknown error"}
	case errors.Is(err, application.ErrUnauthorized):
		if !principalOf(ctx).Authenticated() {
			return http.StatusUnauthorized, errorResponse{ErrorCode: codeUnauthenticated, Message: "authentication required"}
		}
		return http.StatusForbidden, errorResponse{ErrorCode: codeForbidden, Message: "you are not allowed to perform this action"}
	case errors.Is(err, application.ErrNotFound):
		return http.StatusNotFound, errorResponse{ErrorCode: codeNotFound, Message: "resource not found"}
	case errors.Is(err, application.ErrAlreadyExists):
		return http.StatusConflict, errorResponse{ErrorCode: codeAlreadyExists, Message: "resource already exists", Errors: fields}
	case errors.Is(err, application.ErrSessionFull):
		return http.StatusConflict, errorResponse{ErrorCode: codeSessionFull, Message: "session is full"}
	case errors.Is(err, application.ErrSessionCancelled):
		return http.StatusConflict, errorResponse{ErrorCode: codeSessionCancelled, Message: "session is cancelled"}
	case errors.Is(err, application.ErrSessionPast):
		return http.StatusConflict, errorResponse{ErrorCode: codeSessionPast, Message: "session is over"}
	case errors.Is(err, application.ErrTokenExpired):
		return http.StatusBadRequest, errorResponse{ErrorCode: codeTokenExpired, Message: "token is expired", Errors: fields}
	case errors.Is(err, application.ErrErasureFailed):
		return http.StatusInternalServerError, errorResponse{ErrorCode: codeErasureFailed, Message: "account could not be erased"}
	case len(fields) > 0:
		return http.StatusBadRequest, errorResponse{ErrorCode: codeValidation, Message: "input is invalid", Errors: fields}
	default:
		return http.StatusInternalServerError, errorResponse{ErrorCode: codeInternal, Message: "internal server error"}
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errBadRequestBody
	}
	return json.NewDecoder(r.Body).Decode(dst)
}

func fieldProblem(field, message string) error {
	return &application.ValidationError{FieldErrors: []application.FieldError{{Field: field, Message: message}}}
}
