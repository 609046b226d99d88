package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jackc/pgx/v4/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var ErrMigrationFailed = errors.New("failed to apply migrations")

// Migrate applies the embedded schema migrations. goose needs a database/sql
// handle, so a short-lived stdlib DB is opened on the pool's connection config.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *zerolog.Logger) error {
	db := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error().Err(err).Msg("close migration connection")
		}
	}()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(gooseLogger{log: logger})
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
}

// gooseLogger routes goose output through zerolog.
type gooseLogger struct {
	log *zerolog.Logger
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	g.log.Error().Str("component", "migrate").Msg(fmt.Sprintf(format, v...))
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.log.Info().Str("component", "migrate").Msg(fmt.Sprintf(format, v...))
}
