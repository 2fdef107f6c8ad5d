package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/example/sessionboard/internal/persistence"
)

// uniqueFields maps fragments of unique index names (PostgreSQL) or of the
// "table.column" list in SQLite messages to the logical field they protect.
var uniqueFields = []struct {
	marker string
	field  string
}{
	{"lower_name", "name"},
	{"lower_email", "email"},
	{"memberships", "membership"},
	{"expiring_tokens", "key"},
	{"auth_sessions", "token"},
}

func uniqueField(source string) string {
	for _, candidate := range uniqueFields {
		if strings.Contains(source, candidate.marker) {
			return candidate.field
		}
	}
	return "id"
}

// mapError translates driver errors into persistence sentinels.
func (cp *ConnectionPool) mapError(err error) error {
	return mapError(err)
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.ErrNotFound
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return mapSQLiteError(sqliteErr, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPostgresError(pgErr, err)
	}

	// Drivers occasionally surface lock contention only in the message.
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") {
		return fmt.Errorf("%w: %v", persistence.ErrTransient, err)
	}
	return err
}

func mapSQLiteError(sqliteErr *sqlite.Error, err error) error {
	code := sqliteErr.Code()
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return &persistence.DuplicateError{Field: uniqueField(sqliteErr.Error()), Err: err}
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return fmt.Errorf("%w: %v", persistence.ErrForeignKeyViolation, err)
	case sqlite3.SQLITE_CONSTRAINT_CHECK, sqlite3.SQLITE_CONSTRAINT_NOTNULL:
		return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, err)
	}
	switch code & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return fmt.Errorf("%w: %v", persistence.ErrTransient, err)
	case sqlite3.SQLITE_CONSTRAINT:
		return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, err)
	}
	return err
}

func mapPostgresError(pgErr *pgconn.PgError, err error) error {
	switch pgErr.Code {
	case "23505":
		return &persistence.DuplicateError{Field: uniqueField(pgErr.ConstraintName), Err: err}
	case "23503":
		return fmt.Errorf("%w: %v", persistence.ErrForeignKeyViolation, err)
	case "23502", "23514":
		return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, err)
	case "40001", "40P01", "55P03":
		return fmt.Errorf("%w: %v", persistence.ErrTransient, err)
	}
	return err
}
