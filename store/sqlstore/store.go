// Package sqlstore implements store.Store on SQLite or PostgreSQL through
// the grove drivers. Schema changes are versioned with grove migration groups.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/contribution"
	"github.com/xraph/fundme/deployment"
	"github.com/xraph/fundme/store"
	"github.com/xraph/fundme/withdrawal"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store over a grove SQL driver.
type Store struct {
	db      *grove.DB
	drv     driver.Driver
	dialect Dialect
}

// querier is satisfied by both driver.Driver and driver.Tx.
type querier interface {
	Exec(ctx context.Context, query string, args ...any) (driver.Result, error)
	Query(ctx context.Context, query string, args ...any) (driver.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) driver.Row
}

// Open connects to the store described by url (see ParseURL).
func Open(ctx context.Context, url string) (*Store, error) {
	dialect, dsn, err := ParseURL(url)
	if err != nil {
		return nil, err
	}
	drv, err := dialect.open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", dialect, err)
	}
	db, err := grove.Open(drv)
	if err != nil {
		_ = drv.Close()
		return nil, fmt.Errorf("sqlstore: open %s: %w", dialect, err)
	}
	return New(db)
}

// New wraps a grove database opened with sqlitedriver or pgdriver.
func New(db *grove.DB) (*Store, error) {
	drv, ok := db.Driver().(driver.Driver)
	if !ok {
		return nil, fmt.Errorf("sqlstore: driver %q does not run SQL", db.Driver().Name())
	}
	var dialect Dialect
	switch drv.Name() {
	case "sqlite":
		dialect = SQLite
	case "pg":
		dialect = Postgres
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", drv.Name())
	}
	return &Store{db: db, drv: drv, dialect: dialect}, nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Dialect reports the backend in use.
func (s *Store) Dialect() Dialect { return s.dialect }

// Migrate applies pending migrations using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.drv)
	if err != nil {
		return fmt.Errorf("sqlstore: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations(s.dialect))
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("sqlstore: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return mapClosed(err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) q(query string) string { return rebind(s.drv.Dialect(), query) }

// write runs fn inside one transaction bound to ctx. The dialect's ledger
// lock is taken first.
func (s *Store) write(ctx context.Context, fn func(ctx context.Context, tx querier) error) error {
	gtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapClosed(fmt.Errorf("sqlstore: begin: %w", err))
	}
	tx, ok := gtx.Raw().(driver.Tx)
	if !ok {
		_ = gtx.Rollback()
		return fmt.Errorf("sqlstore: unexpected transaction type %T", gtx.Raw())
	}

	if stmt := s.dialect.lockStatement(); stmt != "" {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("sqlstore: lock ledger: %w", err)
		}
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapClosed(fmt.Errorf("sqlstore: commit: %w", err))
	}
	return nil
}

// ==================== Contribution Store ====================

func (s *Store) RecordContribution(ctx context.Context, c *contribution.Contribution) error {
	addr := c.Contributor.Hex()

	return s.write(ctx, func(ctx context.Context, tx querier) error {
		var current string
		err := tx.QueryRow(ctx, s.q(`SELECT total FROM fundme_contributors WHERE address = ?`), addr).Scan(&current)
		switch {
		case isNoRows(err):
			if _, err := tx.Exec(ctx, s.q(`INSERT INTO fundme_contributors (address, total) VALUES (?, ?)`),
				addr, c.Value.String()); err != nil {
				return fmt.Errorf("sqlstore: create contributor: %w", err)
			}
		case err != nil:
			return fmt.Errorf("sqlstore: load contributor: %w", err)
		default:
			total, err := parseWei(current)
			if err != nil {
				return err
			}
			total.Add(total, c.Value)
			if _, err := tx.Exec(ctx, s.q(`UPDATE fundme_contributors SET total = ? WHERE address = ?`),
				total.String(), addr); err != nil {
				return fmt.Errorf("sqlstore: update contributor: %w", err)
			}
		}

		count, err := s.funderCount(ctx, tx)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, s.q(`INSERT INTO fundme_funders (position, address) VALUES (?, ?)`),
			count, addr); err != nil {
			return fmt.Errorf("sqlstore: append funder: %w", err)
		}

		c.Position = count
		m := toContributionModel(c)
		if _, err := tx.Exec(ctx, s.q(`INSERT INTO fundme_contributions (`+contributionColumns+`)
VALUES (?, ?, ?, ?, ?, ?)`), m.fields()...); err != nil {
			return fmt.Errorf("sqlstore: insert contribution: %w", err)
		}
		return nil
	})
}

func (s *Store) ContributedAmount(ctx context.Context, addr common.Address) (*big.Int, error) {
	var total string
	err := s.drv.QueryRow(ctx, s.q(`SELECT total FROM fundme_contributors WHERE address = ?`), addr.Hex()).Scan(&total)
	if isNoRows(err) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: contributed amount: %w", err)
	}
	return parseWei(total)
}

func (s *Store) FunderAt(ctx context.Context, position int) (common.Address, error) {
	if position < 0 {
		return common.Address{}, fmt.Errorf("%w: position %d", fundme.ErrIndexOutOfRange, position)
	}
	var addr string
	err := s.drv.QueryRow(ctx, s.q(`SELECT address FROM fundme_funders WHERE position = ?`), position).Scan(&addr)
	if isNoRows(err) {
		return common.Address{}, fmt.Errorf("%w: position %d", fundme.ErrIndexOutOfRange, position)
	}
	if err != nil {
		return common.Address{}, fmt.Errorf("sqlstore: funder at %d: %w", position, err)
	}
	return common.HexToAddress(addr), nil
}

func (s *Store) FunderCount(ctx context.Context) (int, error) {
	return s.funderCount(ctx, s.drv)
}

func (s *Store) funderCount(ctx context.Context, q querier) (int, error) {
	var count int64
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM fundme_funders`).Scan(&count); err != nil {
		return 0, fmt.Errorf("sqlstore: count funders: %w", err)
	}
	return int(count), nil
}

func (s *Store) Balance(ctx context.Context) (*big.Int, error) {
	return s.balance(ctx, s.drv)
}

func (s *Store) balance(ctx context.Context, q querier) (*big.Int, error) {
	totals, err := s.textColumn(ctx, q, `SELECT total FROM fundme_contributors`)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: balance: %w", err)
	}
	sum := new(big.Int)
	for _, t := range totals {
		v, err := parseWei(t)
		if err != nil {
			return nil, err
		}
		sum.Add(sum, v)
	}
	return sum, nil
}

func (s *Store) ListContributions(ctx context.Context, opts contribution.ListOpts) ([]*contribution.Contribution, error) {
	query := `SELECT ` + contributionColumns + ` FROM fundme_contributions`
	var args []any
	if opts.Contributor != nil {
		query += ` WHERE contributor = ?`
		args = append(args, opts.Contributor.Hex())
	}
	query, args = s.paginate(query+` ORDER BY seq ASC`, args, opts.Offset, opts.Limit)

	rows, err := s.drv.Query(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list contributions: %w", err)
	}
	defer rows.Close()

	var result []*contribution.Contribution
	for rows.Next() {
		var m contributionModel
		if err := rows.Scan(m.fields()...); err != nil {
			return nil, fmt.Errorf("sqlstore: scan contribution: %w", err)
		}
		c, err := fromContributionModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: list contributions: %w", err)
	}
	return result, nil
}

// ==================== Withdrawal Store ====================

// Drain resets every total, clears the funder index, writes the receipt and
// finally pays out. A payout error rolls the whole transaction back.
//
// The transaction is detached from ctx: once pay has moved funds, a deadline
// expiring afterwards cannot undo the drain. ctx is checked just before pay
// and is the context pay receives.
func (s *Store) Drain(ctx context.Context, w *withdrawal.Withdrawal, pay withdrawal.PayoutFunc) error {
	return s.write(context.WithoutCancel(ctx), func(txCtx context.Context, tx querier) error {
		amount, err := s.balance(txCtx, tx)
		if err != nil {
			return err
		}

		funders, err := s.textColumn(txCtx, tx, `SELECT address FROM fundme_funders ORDER BY position ASC`)
		if err != nil {
			return fmt.Errorf("sqlstore: load funders: %w", err)
		}
		distinct := make(map[string]struct{}, len(funders))
		for _, f := range funders {
			distinct[f] = struct{}{}
		}

		if _, err := tx.Exec(txCtx, `UPDATE fundme_contributors SET total = '0'`); err != nil {
			return fmt.Errorf("sqlstore: reset totals: %w", err)
		}
		if _, err := tx.Exec(txCtx, `DELETE FROM fundme_funders`); err != nil {
			return fmt.Errorf("sqlstore: clear funders: %w", err)
		}

		receipt := &withdrawalModel{
			ID:           w.ID.String(),
			Owner:        w.Owner.Hex(),
			Amount:       amount.String(),
			Funders:      len(funders),
			Contributors: len(distinct),
			CreatedAt:    w.CreatedAt.UTC(),
		}
		if _, err := tx.Exec(txCtx, s.q(`INSERT INTO fundme_withdrawals (`+withdrawalColumns+`)
VALUES (?, ?, ?, ?, ?, ?)`), receipt.fields()...); err != nil {
			return fmt.Errorf("sqlstore: insert withdrawal: %w", err)
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		if err := pay(ctx, new(big.Int).Set(amount)); err != nil {
			return err
		}

		w.Amount = amount
		w.Funders = receipt.Funders
		w.Contributors = receipt.Contributors
		return nil
	})
}

func (s *Store) ListWithdrawals(ctx context.Context, opts withdrawal.ListOpts) ([]*withdrawal.Withdrawal, error) {
	query, args := s.paginate(`SELECT `+withdrawalColumns+` FROM fundme_withdrawals ORDER BY seq ASC`,
		nil, opts.Offset, opts.Limit)

	rows, err := s.drv.Query(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list withdrawals: %w", err)
	}
	defer rows.Close()

	var result []*withdrawal.Withdrawal
	for rows.Next() {
		var m withdrawalModel
		if err := rows.Scan(m.fields()...); err != nil {
			return nil, fmt.Errorf("sqlstore: scan withdrawal: %w", err)
		}
		w, err := fromWithdrawalModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: list withdrawals: %w", err)
	}
	return result, nil
}

// ==================== Deployment Store ====================

func (s *Store) GetDeployment(ctx context.Context) (*deployment.Deployment, error) {
	var m deploymentModel
	err := s.drv.QueryRow(ctx,
		`SELECT `+deploymentColumns+` FROM fundme_deployments ORDER BY created_at ASC LIMIT 1`,
	).Scan(m.fields()...)
	if isNoRows(err) {
		return nil, fundme.ErrDeploymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get deployment: %w", err)
	}
	return fromDeploymentModel(&m)
}

func (s *Store) CreateDeployment(ctx context.Context, d *deployment.Deployment) error {
	return s.write(ctx, func(ctx context.Context, tx querier) error {
		var existing string
		err := tx.QueryRow(ctx, `SELECT id FROM fundme_deployments LIMIT 1`).Scan(&existing)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %s already recorded", fundme.ErrDeploymentMismatch, existing)
		case !isNoRows(err):
			return fmt.Errorf("sqlstore: check deployment: %w", err)
		}

		m := toDeploymentModel(d)
		if _, err := tx.Exec(ctx, s.q(`INSERT INTO fundme_deployments (`+deploymentColumns+`)
VALUES (?, ?, ?, ?, ?, ?)`), m.fields()...); err != nil {
			return fmt.Errorf("sqlstore: create deployment: %w", err)
		}
		return nil
	})
}

// ==================== Helpers ====================

// textColumn collects a single TEXT column.
func (s *Store) textColumn(ctx context.Context, q querier, query string) ([]string, error) {
	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) paginate(query string, args []any, offset, limit int) (string, []any) {
	switch {
	case limit > 0:
		query += ` LIMIT ?`
		args = append(args, limit)
	case offset > 0 && s.dialect == SQLite:
		// SQLite accepts OFFSET only after a LIMIT.
		query += ` LIMIT -1`
	}
	if offset > 0 {
		query += ` OFFSET ?`
		args = append(args, offset)
	}
	return query, args
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// mapClosed tags errors from a closed database with fundme.ErrStoreClosed.
func mapClosed(err error) error {
	if errors.Is(err, grove.ErrDriverClosed) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", fundme.ErrStoreClosed, err)
	}
	return err
}
