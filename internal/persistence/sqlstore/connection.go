package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sethvargo/go-retry"
	_ "modernc.org/sqlite"

	"github.com/example/sessionboard/internal/persistence"
)

// DBTX is the subset of *sql.DB and *sql.Tx the repositories need.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ConnectionPool owns the database handle and the dialect specific helpers
// shared by every repository.
type ConnectionPool struct {
	db      *sql.DB
	config  Config
	dialect Dialect
}

// Open validates cfg, opens the pool and checks connectivity.
func Open(ctx context.Context, cfg Config) (*ConnectionPool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}
	if err := cfg.ensureDirectory(); err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.driverName(), cfg.dataSourceName())
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Dialect, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", cfg.Dialect, err)
	}
	return NewConnectionPool(db, cfg), nil
}

// NewConnectionPool wraps an already opened handle, e.g. a sqlmock connection.
func NewConnectionPool(db *sql.DB, cfg Config) *ConnectionPool {
	if cfg.Dialect == "" {
		cfg.Dialect = DialectSQLite
	}
	return &ConnectionPool{db: db, config: cfg, dialect: cfg.Dialect}
}

// DB returns the underlying database connection.
func (cp *ConnectionPool) DB() *sql.DB {
	return cp.db
}

// Dialect reports the SQL flavour of the pool.
func (cp *ConnectionPool) Dialect() Dialect {
	return cp.dialect
}

// Close closes the connection pool.
func (cp *ConnectionPool) Close() error {
	if cp.db != nil {
		return cp.db.Close()
	}
	return nil
}

// Ping tests the database connection.
func (cp *ConnectionPool) Ping(ctx context.Context) error {
	return cp.db.PingContext(ctx)
}

// TransactionFunc runs inside a transaction. The DBTX already rebinds
// placeholders for the pool's dialect.
type TransactionFunc func(ctx context.Context, tx DBTX) error

// WithTransaction executes fn within a transaction, committing when fn
// returns nil and rolling back otherwise, including on panic.
func (cp *ConnectionPool) WithTransaction(ctx context.Context, fn TransactionFunc) (err error) {
	tx, err := cp.db.BeginTx(ctx, nil)
	if err != nil {
		return cp.mapError(fmt.Errorf("begin transaction: %w", err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, cp.bind(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("transaction failed (rollback error: %v): %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return cp.mapError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// WithRetryingTransaction runs WithTransaction and retries it with
// exponential backoff while it fails with persistence.ErrTransient.
func (cp *ConnectionPool) WithRetryingTransaction(ctx context.Context, fn TransactionFunc) error {
	base := cp.config.RetryBase
	if base <= 0 {
		base = 25 * time.Millisecond
	}
	backoff := retry.WithMaxRetries(cp.config.MaxRetries, retry.NewExponential(base))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := cp.WithTransaction(ctx, fn)
		if errors.Is(err, persistence.ErrTransient) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (cp *ConnectionPool) conn() DBTX {
	return cp.bind(cp.db)
}

func (cp *ConnectionPool) bind(inner DBTX) DBTX {
	if cp.dialect != DialectPostgres {
		return inner
	}
	return rebinder{inner: inner}
}

// rebinder rewrites ? placeholders into PostgreSQL's $n form.
type rebinder struct {
	inner DBTX
}

func (r rebinder) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return r.inner.ExecContext(ctx, rebind(query), args...)
}

func (r rebinder) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return r.inner.QueryContext(ctx, rebind(query), args...)
}

func (r rebinder) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return r.inner.QueryRowContext(ctx, rebind(query), args...)
}

func rebind(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
