package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/example/sessionboard/internal/application"
)

// SessionResolver maps a client token onto the principal it is bound to.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (application.Principal, error)
}

// ResolvePrincipal attaches the caller's principal to the request context.
// Requests without a usable token proceed anonymously; only store failures
// abort the request.
func ResolvePrincipal(resolver SessionResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var principal application.Principal
			if token := extractTokenFromRequest(r); token != "" && resolver != nil {
				resolved, err := resolver.ResolveSession(r.Context(), token)
				switch {
				case err == nil:
					principal = resolved
				case errors.Is(err, application.ErrUnauthorized):
					responder.loggerFor(r.Context()).DebugContext(r.Context(), "ignoring stale session token")
				default:
					responder.handleServiceError(r.Context(), w, err)
					return
				}
			}

			ctx := ContextWithPrincipal(r.Context(), principal)
			if principal.Authenticated() {
				if logger := LoggerFromContext(ctx); logger != nil {
					ctx = ContextWithLogger(ctx, logger.With("actor_id", principal.ActorID))
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuthenticated rejects anonymous callers with 401.
func RequireAuthenticated(logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !principalOf(r.Context()).Authenticated() {
				responder.handleServiceError(r.Context(), w, application.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	base = defaultLogger(base)
	var counter atomic.Uint64

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := counter.Add(1)
			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := ContextWithLogger(r.Context(), logger)
			start := time.Now()
			logger.DebugContext(ctx, "request started")
			next.ServeHTTP(w, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed", "duration", time.Since(start))
		})
	}
}
