package sqlstore

import (
	"context"
	"fmt"

	"github.com/xraph/grove/migrate"
)

// Migration groups for each dialect. Column types differ only where the
// backends disagree on serial keys and timestamps.
var (
	SQLiteMigrations   = migrate.NewGroup("fundme")
	PostgresMigrations = migrate.NewGroup("fundme")
)

func init() {
	register(SQLiteMigrations, SQLite)
	register(PostgresMigrations, Postgres)
}

// Migrations returns the group for d.
func Migrations(d Dialect) *migrate.Group {
	if d == Postgres {
		return PostgresMigrations
	}
	return SQLiteMigrations
}

func register(g *migrate.Group, d Dialect) {
	g.MustRegister(
		&migrate.Migration{
			Name:    "create_fundme_deployments",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				return execAll(ctx, exec, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS fundme_deployments (
    id          TEXT PRIMARY KEY,
    owner       TEXT NOT NULL,
    price_feed  TEXT NOT NULL,
    minimum_usd TEXT NOT NULL,
    created_at  %[1]s NOT NULL,
    updated_at  %[1]s NOT NULL
)`, d.timestamp()))
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				return execAll(ctx, exec, `DROP TABLE IF EXISTS fundme_deployments`)
			},
		},
		&migrate.Migration{
			Name:    "create_fundme_contributors",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				return execAll(ctx, exec, `
CREATE TABLE IF NOT EXISTS fundme_contributors (
    address TEXT PRIMARY KEY,
    total   TEXT NOT NULL DEFAULT '0'
)`)
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				return execAll(ctx, exec, `DROP TABLE IF EXISTS fundme_contributors`)
			},
		},
		&migrate.Migration{
			Name:    "create_fundme_funders",
			Version: "20250101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				return execAll(ctx, exec, `
CREATE TABLE IF NOT EXISTS fundme_funders (
    position INTEGER PRIMARY KEY,
    address  TEXT NOT NULL
)`)
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				return execAll(ctx, exec, `DROP TABLE IF EXISTS fundme_funders`)
			},
		},
		&migrate.Migration{
			Name:    "create_fundme_contributions",
			Version: "20250101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				return execAll(ctx, exec,
					fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS fundme_contributions (
    seq             %s,
    id              TEXT NOT NULL UNIQUE,
    contributor     TEXT NOT NULL,
    value           TEXT NOT NULL,
    reference_value TEXT NOT NULL DEFAULT '0',
    position        INTEGER NOT NULL,
    created_at      %s NOT NULL
)`, d.serialKey(), d.timestamp()),
					`CREATE INDEX IF NOT EXISTS idx_fundme_contributions_contributor ON fundme_contributions (contributor)`,
				)
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				return execAll(ctx, exec, `DROP TABLE IF EXISTS fundme_contributions`)
			},
		},
		&migrate.Migration{
			Name:    "create_fundme_withdrawals",
			Version: "20250101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				return execAll(ctx, exec, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS fundme_withdrawals (
    seq          %s,
    id           TEXT NOT NULL UNIQUE,
    owner        TEXT NOT NULL,
    amount       TEXT NOT NULL,
    funders      INTEGER NOT NULL DEFAULT 0,
    contributors INTEGER NOT NULL DEFAULT 0,
    created_at   %s NOT NULL
)`, d.serialKey(), d.timestamp()))
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				return execAll(ctx, exec, `DROP TABLE IF EXISTS fundme_withdrawals`)
			},
		},
	)
}

// execAll runs one statement per call; not every driver accepts batches.
func execAll(ctx context.Context, exec migrate.Executor, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := exec.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
