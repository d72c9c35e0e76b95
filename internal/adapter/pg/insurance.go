package pg

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/olyamironova/perp-engine/internal/domain"
	"github.com/olyamironova/perp-engine/internal/port"
)

var _ port.InsuranceFund = (*InsuranceFund)(nil)

var errFundExhausted = errors.New("pg: insurance fund capacity exhausted")

// InsuranceFund reads capacity from the single-row insurance_fund table and
// records takeovers in fund_takeovers.
type InsuranceFund struct {
	pool *pgxpool.Pool
}

func NewInsuranceFund(pool *pgxpool.Pool) *InsuranceFund {
	return &InsuranceFund{pool: pool}
}

// Seed creates the fund row with capacity unless it already exists.
func (f *InsuranceFund) Seed(ctx context.Context, capacity domain.Amount) error {
	_, err := f.pool.Exec(ctx, `
INSERT INTO insurance_fund (id, capacity) VALUES (1, $1::numeric)
ON CONFLICT (id) DO NOTHING
`, capacity.String())
	return errors.Wrap(err, "pg: seed insurance fund")
}

func (f *InsuranceFund) CheckCapacity(ctx context.Context) (domain.Amount, error) {
	var s string
	if err := f.pool.QueryRow(ctx, `SELECT capacity::text FROM insurance_fund WHERE id = 1`).Scan(&s); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "pg: fund capacity")
	}
	a, err := domain.ParseAmount(s)
	return a, errors.Wrap(err, "pg: fund capacity")
}

// Takeover reserves the position's margin against capacity and logs the receipt
// in one transaction.
func (f *InsuranceFund) Takeover(ctx context.Context, p domain.Position) (domain.TakeoverReceipt, error) {
	receipt := domain.TakeoverReceipt{
		ID:         uuid.NewString(),
		PositionID: p.ID,
		Quantity:   p.Quantity,
		Margin:     p.Margin,
		At:         time.Now().UTC(),
	}
	err := pgx.BeginFunc(ctx, f.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
UPDATE insurance_fund SET capacity = capacity - $1::numeric
WHERE id = 1 AND capacity >= $1::numeric
`, p.Margin.String())
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errFundExhausted
		}
		_, err = tx.Exec(ctx, `
INSERT INTO fund_takeovers(id, position_id, account_id, symbol, side, quantity, entry_price, margin, taken_at)
VALUES($1,$2,$3,$4,$5,$6::numeric,$7::numeric,$8::numeric,$9)
`, receipt.ID, p.ID, p.AccountID, string(p.Symbol), string(p.Side), p.Quantity.String(),
			p.EntryPrice.String(), p.Margin.String(), receipt.At)
		return err
	})
	if err != nil {
		return domain.TakeoverReceipt{}, errors.Wrapf(err, "pg: takeover of %s", p.ID)
	}
	return receipt, nil
}
