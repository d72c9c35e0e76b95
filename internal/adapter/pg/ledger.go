package pg

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/olyamironova/perp-engine/internal/domain"
	"github.com/olyamironova/perp-engine/internal/port"
)

var _ port.Ledger = (*Ledger)(nil)

// Ledger keeps balances in the balances table, one row per (account, asset).
type Ledger struct {
	pool *pgxpool.Pool
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

func (l *Ledger) AvailableBalance(ctx context.Context, account, asset string) (domain.Amount, error) {
	var s string
	err := l.pool.QueryRow(ctx,
		`SELECT available::text FROM balances WHERE account_id = $1 AND asset = $2`, account, asset).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "pg: balance of %s", account)
	}
	a, err := domain.ParseAmount(s)
	return a, errors.Wrapf(err, "pg: balance of %s", account)
}

// Freeze moves funds from available to frozen, failing when available is short.
func (l *Ledger) Freeze(ctx context.Context, account, asset string, amount domain.Amount) error {
	tag, err := l.pool.Exec(ctx, `
UPDATE balances SET available = available - $3::numeric, frozen = frozen + $3::numeric
WHERE account_id = $1 AND asset = $2 AND available >= $3::numeric
`, account, asset, amount.String())
	if err != nil {
		return errors.Wrapf(err, "pg: freeze for %s", account)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(domain.ErrInsufficientBalance, "pg: freeze %s for %s", amount, account)
	}
	return nil
}

func (l *Ledger) Release(ctx context.Context, account, asset string, amount domain.Amount) error {
	tag, err := l.pool.Exec(ctx, `
UPDATE balances SET available = available + $3::numeric, frozen = frozen - $3::numeric
WHERE account_id = $1 AND asset = $2 AND frozen >= $3::numeric
`, account, asset, amount.String())
	if err != nil {
		return errors.Wrapf(err, "pg: release for %s", account)
	}
	if tag.RowsAffected() == 0 {
		return errors.Errorf("pg: release %s exceeds frozen balance of %s", amount, account)
	}
	return nil
}

// Settle applies a signed delta to available funds, creating the row if needed.
func (l *Ledger) Settle(ctx context.Context, account, asset string, delta domain.Amount) error {
	_, err := l.pool.Exec(ctx, `
INSERT INTO balances(account_id, asset, available, frozen) VALUES($1, $2, $3::numeric, 0)
ON CONFLICT (account_id, asset) DO UPDATE SET available = balances.available + EXCLUDED.available
`, account, asset, delta.String())
	return errors.Wrapf(err, "pg: settle for %s", account)
}
