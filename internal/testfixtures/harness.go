package testfixtures

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/sessionboard/internal/persistence/sqlstore"
)

// Harness provides repository access backed by a temporary SQLite database
// for integration-style tests.
type Harness struct {
	Pool         *sqlstore.ConnectionPool
	Actors       *sqlstore.ActorRepository
	Sessions     *sqlstore.SessionRepository
	Memberships  *sqlstore.MembershipRepository
	Comments     *sqlstore.CommentRepository
	AuthSessions *sqlstore.AuthSessionRepository
	Tokens       *sqlstore.TokenRepository
	Eraser       *sqlstore.AccountEraser

	cleanup func()
}

// Tables lists every table created by the migrations.
var Tables = []string{
	"actors",
	"sessions",
	"memberships",
	"comments",
	"auth_sessions",
	"voice_links",
	"expiring_tokens",
}

// Close releases resources associated with the harness.
func (h *Harness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewHarness opens a migrated database in a temporary directory. The harness
// is closed automatically when the test finishes.
func NewHarness(tb testing.TB) *Harness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "sessionboard.db")
	cfg := sqlstore.DefaultSQLiteConfig(path)
	cfg.BusyTimeout = 10 * time.Second

	ctx := context.Background()
	pool, err := sqlstore.Open(ctx, cfg)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	if err := pool.Migrate(ctx, slog.New(slog.DiscardHandler)); err != nil {
		_ = pool.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	h := &Harness{
		Pool:         pool,
		Actors:       sqlstore.NewActorRepository(pool),
		Sessions:     sqlstore.NewSessionRepository(pool),
		Memberships:  sqlstore.NewMembershipRepository(pool),
		Comments:     sqlstore.NewCommentRepository(pool),
		AuthSessions: sqlstore.NewAuthSessionRepository(pool),
		Tokens:       sqlstore.NewTokenRepository(pool),
		Eraser:       sqlstore.NewAccountEraser(pool),
		cleanup: func() {
			_ = pool.Close()
		},
	}
	tb.Cleanup(h.Close)
	return h
}

// Exec runs a raw statement, failing the test on error.
func (h *Harness) Exec(tb testing.TB, query string, args ...any) {
	tb.Helper()
	if _, err := h.Pool.DB().ExecContext(context.Background(), query, args...); err != nil {
		tb.Fatalf("exec %q: %v", query, err)
	}
}

// Count returns the number of rows in table matching where. An empty where
// counts every row.
func (h *Harness) Count(tb testing.TB, table, where string, args ...any) int {
	tb.Helper()
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if where != "" {
		query += " WHERE " + where
	}
	var n int
	if err := h.Pool.DB().QueryRowContext(context.Background(), query, args...).Scan(&n); err != nil {
		tb.Fatalf("count %s: %v", table, err)
	}
	return n
}

// LinkVoiceAccount stores a voice provider link for actorID.
func (h *Harness) LinkVoiceAccount(tb testing.TB, actorID, provider, externalID string) {
	tb.Helper()
	h.Exec(tb,
		`INSERT INTO voice_links (actor_id, provider, external_id, created_at) VALUES (?, ?, ?, ?)`,
		actorID, provider, externalID, ReferenceTime().UTC().Format("2006-01-02T15:04:05.000000Z"),
	)
}
