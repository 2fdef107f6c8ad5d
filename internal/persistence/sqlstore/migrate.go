package sqlstore

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

func gooseDialect(d Dialect) goose.Dialect {
	if d == DialectPostgres {
		return goose.DialectPostgres
	}
	return goose.DialectSQLite3
}

// migrationProvider builds a goose provider over the embedded migrations of
// the pool's dialect. goose's own output goes to logger instead of package log.
func (cp *ConnectionPool) migrationProvider(logger *slog.Logger) (*goose.Provider, error) {
	dir, err := fs.Sub(migrationFS, "migrations/"+string(cp.dialect))
	if err != nil {
		return nil, fmt.Errorf("open %s migrations: %w", cp.dialect, err)
	}
	provider, err := goose.NewProvider(gooseDialect(cp.dialect), cp.db, dir,
		goose.WithSlog(logger.With("component", "migrations", "dialect", string(cp.dialect))),
	)
	if err != nil {
		return nil, fmt.Errorf("create migration provider: %w", err)
	}
	return provider, nil
}

// Migrate applies every pending embedded migration for the pool's dialect
// and logs each applied version. A nil logger uses slog.Default.
func (cp *ConnectionPool) Migrate(ctx context.Context, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	provider, err := cp.migrationProvider(logger)
	if err != nil {
		return err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply %s migrations: %w", cp.dialect, err)
	}
	for _, result := range results {
		logger.InfoContext(ctx, "migration applied",
			"dialect", string(cp.dialect),
			"version", result.Source.Version,
			"source", path.Base(result.Source.Path),
			"duration", result.Duration,
		)
	}
	return nil
}
