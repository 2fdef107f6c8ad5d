package sqlstore

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Dialect selects the SQL flavour spoken by the pool.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Config holds the connection settings for either dialect. The SQLite specific
// fields are ignored for PostgreSQL.
type Config struct {
	Dialect Dialect
	// DSN is a file path for SQLite or a connection URL for PostgreSQL.
	DSN string

	// BusyTimeout sets how long SQLite waits for a competing writer.
	BusyTimeout time.Duration
	// JournalMode sets the SQLite journal mode (WAL, DELETE, ...).
	JournalMode string
	// Synchronous sets the SQLite synchronous mode (FULL, NORMAL, OFF).
	Synchronous string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// MaxRetries bounds retries of transactions that failed on lock contention.
	MaxRetries uint64
	// RetryBase is the first backoff interval; it doubles on every retry.
	RetryBase time.Duration
}

// DefaultSQLiteConfig returns production settings for a file database.
func DefaultSQLiteConfig(path string) Config {
	return Config{
		Dialect:         DialectSQLite,
		DSN:             path,
		BusyTimeout:     5 * time.Second,
		JournalMode:     "WAL",
		Synchronous:     "NORMAL",
		MaxOpenConns:    8,
		MaxIdleConns:    4,
		ConnMaxLifetime: time.Hour,
		MaxRetries:      3,
		RetryBase:       25 * time.Millisecond,
	}
}

// DefaultPostgresConfig returns pool settings for a PostgreSQL URL.
func DefaultPostgresConfig(dsn string) Config {
	return Config{
		Dialect:         DialectPostgres,
		DSN:             dsn,
		MaxOpenConns:    20,
		MaxIdleConns:    10,
		ConnMaxLifetime: 30 * time.Minute,
		MaxRetries:      3,
		RetryBase:       25 * time.Millisecond,
	}
}

// Validate reports settings that cannot produce a working pool.
func (c Config) Validate() error {
	switch c.Dialect {
	case DialectSQLite, DialectPostgres:
	default:
		return fmt.Errorf("unsupported dialect %q", c.Dialect)
	}
	if strings.TrimSpace(c.DSN) == "" {
		return fmt.Errorf("dsn is required")
	}
	if c.Dialect == DialectSQLite && c.BusyTimeout < 0 {
		return fmt.Errorf("busy timeout must not be negative")
	}
	return nil
}

func (c Config) driverName() string {
	if c.Dialect == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

// dataSourceName expands a SQLite path into a DSN whose pragmas apply to every
// pooled connection. Transactions start IMMEDIATE so the first statement of a
// transaction already holds the write lock.
func (c Config) dataSourceName() string {
	if c.Dialect != DialectSQLite {
		return c.DSN
	}
	path := c.DSN
	if strings.HasPrefix(path, "file:") {
		return path
	}

	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	if c.BusyTimeout > 0 {
		q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", c.BusyTimeout.Milliseconds()))
	}
	if c.JournalMode != "" {
		q.Add("_pragma", fmt.Sprintf("journal_mode(%s)", c.JournalMode))
	}
	if c.Synchronous != "" {
		q.Add("_pragma", fmt.Sprintf("synchronous(%s)", c.Synchronous))
	}
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

func (c Config) ensureDirectory() error {
	if c.Dialect != DialectSQLite || strings.HasPrefix(c.DSN, "file:") || c.DSN == ":memory:" {
		return nil
	}
	dir := filepath.Dir(c.DSN)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create database directory %s: %w", dir, err)
	}
	return nil
}
