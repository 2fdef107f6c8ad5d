package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/example/sessionboard/internal/application"
	"github.com/example/sessionboard/internal/config"
	httptransport "github.com/example/sessionboard/internal/http"
	"github.com/example/sessionboard/internal/mail"
	"github.com/example/sessionboard/internal/metrics"
	"github.com/example/sessionboard/internal/persistence"
	"github.com/example/sessionboard/internal/persistence/sqlstore"
	"github.com/example/sessionboard/internal/tokenstore"
)

type app struct {
	Handler http.Handler
	Pool    *sqlstore.ConnectionPool
	Metrics *metrics.Registry
}

func (a *app) Close() {
	if a == nil || a.Pool == nil {
		return
	}
	if err := a.Pool.Close(); err != nil {
		slog.Default().Error("failed to close storage", "error", err)
	}
}

func storeConfig(cfg config.Config) sqlstore.Config {
	if cfg.DBDriver == string(sqlstore.DialectPostgres) {
		return sqlstore.DefaultPostgresConfig(cfg.DBDSN)
	}
	return sqlstore.DefaultSQLiteConfig(cfg.DBDSN)
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (*sqlstore.ConnectionPool, error) {
	pool, err := sqlstore.Open(ctx, storeConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	logger.InfoContext(ctx, "applying database migrations", "driver", cfg.DBDriver)
	if err := pool.Migrate(ctx, logger); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return pool, nil
}

func tokenBackend(cfg config.Config, pool *sqlstore.ConnectionPool) persistence.TokenRepository {
	if cfg.TokenStore == "memory" {
		return tokenstore.NewMemory(cfg.TokenCacheSize, cfg.RecoveryTTL)
	}
	return sqlstore.NewTokenRepository(pool)
}

func mailer(cfg config.Config, logger *slog.Logger) application.Mailer {
	if cfg.SMTP.Host == "" {
		logger.Warn("SMTP host not configured; recovery mail is written to the log")
		return mail.NewLogSender(logger)
	}
	return mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		User:     cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
}

// buildApp opens and migrates the store and wires every service behind the router.
func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	pool, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	registry := metrics.NewRegistry()
	idGenerator := uuid.NewString
	now := func() time.Time { return time.Now().UTC() }

	directory := application.NewActorDirectory(application.DirectoryDeps{
		Actors:       sqlstore.NewActorRepository(pool),
		AuthSessions: sqlstore.NewAuthSessionRepository(pool),
		Tokens:       application.NewExpiringTokenStore(tokenBackend(cfg, pool), nil, now),
		Mailer:       mailer(cfg, logger),
		IDGenerator:  idGenerator,
		Now:          now,
		SessionTTL:   cfg.SessionTTL,
		RecoveryTTL:  cfg.RecoveryTTL,
		PublicURL:    cfg.PublicURL,
		Logger:       logger,
		Observer:     registry,
	})
	sessions := sqlstore.NewSessionRepository(pool)
	memberships := sqlstore.NewMembershipRepository(pool)

	sessionService := application.NewSessionService(application.SessionServiceDeps{
		Sessions:    sessions,
		Memberships: memberships,
		IDGenerator: idGenerator,
		Now:         now,
		Logger:      logger,
		Observer:    registry,
	})
	ledger := application.NewMembershipLedgerWithLogger(sessions, memberships, now, logger, registry)
	comments := application.NewCommentServiceWithLogger(sessions, sqlstore.NewCommentRepository(pool), idGenerator, now, logger, registry)
	erasure := application.NewAccountErasureCoordinator(sqlstore.NewAccountEraser(pool), logger, registry)

	handler := httptransport.NewRouter(httptransport.RouterConfig{
		Auth:           httptransport.NewAuthHandler(directory, cfg.CookieSecure, logger),
		Accounts:       httptransport.NewAccountHandler(directory, erasure, cfg.CookieSecure, logger),
		Sessions:       httptransport.NewSessionHandler(sessionService, ledger, logger),
		Comments:       httptransport.NewCommentHandler(comments, logger),
		Resolver:       directory,
		Health:         pool,
		Metrics:        registry.Handler(),
		AllowedOrigins: cfg.AllowedOrigins,
		Middleware:     []func(http.Handler) http.Handler{registry.Middleware},
		Logger:         logger,
	})

	return &app{Handler: handler, Pool: pool, Metrics: registry}, nil
}
