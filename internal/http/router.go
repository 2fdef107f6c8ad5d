package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Auth     *AuthHandler
	Accounts *AccountHandler
	Sessions *SessionHandler
	Comments *CommentHandler

	// Resolver turns the request token into a principal. Without it every
	// request is anonymous.
	Resolver SessionResolver
	Health   HealthChecker
	Metrics  http.Handler

	// AllowedOrigins enables CORS with credentials for the listed origins.
	AllowedOrigins []string
	// Middleware runs after request logging and before principal resolution,
	// in the order given.
	Middleware []func(http.Handler) http.Handler
	Logger     *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)
	r := chi.NewRouter()

	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"X-Session-Token"},
			AllowCredentials: true,
			MaxAge:           int((10 * time.Minute).Seconds()),
		}))
	}
	for _, mw := range cfg.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.Get("/healthz", healthHandler(cfg.Health, logger))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(ResolvePrincipal(cfg.Resolver, logger))
		requireAuth := RequireAuthenticated(logger)

		if cfg.Auth != nil {
			r.Route("/auth", func(r chi.Router) {
				r.Post("/signup", cfg.Auth.Signup)
				r.Post("/login", cfg.Auth.Login)
				r.Post("/logout", cfg.Auth.Logout)
				r.Post("/forgot-password", cfg.Auth.ForgotPassword)
				r.Post("/change-password", cfg.Auth.ChangePassword)
			})
		}

		if cfg.Accounts != nil {
			r.With(requireAuth).Get("/me", cfg.Accounts.Me)
			r.With(requireAuth).Delete("/me", cfg.Accounts.DeleteMe)
			r.Get("/actors/{actorID}", cfg.Accounts.GetActor)
		}

		r.Route("/sessions", func(r chi.Router) {
			if cfg.Sessions != nil {
				r.Get("/", cfg.Sessions.List)
				r.With(requireAuth).Post("/", cfg.Sessions.Create)
			}
			r.Route("/{sessionID}", func(r chi.Router) {
				if cfg.Sessions != nil {
					r.Get("/", cfg.Sessions.Get)
					r.Group(func(r chi.Router) {
						r.Use(requireAuth)
						r.Patch("/", cfg.Sessions.Edit)
						r.Delete("/", cfg.Sessions.Delete)
						r.Post("/cancel", cfg.Sessions.Cancel)
						r.Post("/join", cfg.Sessions.Join)
						r.Post("/leave", cfg.Sessions.Leave)
					})
				}
				if cfg.Comments != nil {
					r.Get("/comments", cfg.Comments.List)
					r.With(requireAuth).Post("/comments", cfg.Comments.Add)
				}
			})
		})

		if cfg.Comments != nil {
			r.With(requireAuth).Delete("/comments/{commentID}", cfg.Comments.Delete)
		}
	})

	return r
}

func healthHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	responder := newResponder(logger)
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.Ping(ctx); err != nil {
				responder.loggerFor(r.Context()).ErrorContext(r.Context(), "health check failed", "error", err)
				responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		responder.writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
