// Package migrate applies embedded SQL migrations on startup.
package migrate

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/and161185/pollboard/internal/errs"
	"github.com/and161185/pollboard/migrations"
)

// Up runs all pending migrations from the embedded filesystem against the
// store at url, authenticating with key.
func Up(ctx context.Context, url, key string) error {
	if url == "" || key == "" {
		return errs.ErrStoreUnavailable
	}
	cfg, err := pgx.ParseConfig(url)
	if err != nil {
		return err
	}
	cfg.Password = key

	db := stdlib.OpenDB(*cfg)
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	return goose.UpContext(ctx, db, ".")
}
