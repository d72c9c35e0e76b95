package pg

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/olyamironova/perp-engine/internal/domain"
	"github.com/olyamironova/perp-engine/internal/port"
)

var _ port.Repository = (*PgRepo)(nil)

// PgRepo is the audit store for trades and liquidation results.
type PgRepo struct {
	pool *pgxpool.Pool
}

// call Close when finish to work with database.
func NewPgRepo(ctx context.Context, dsn string) (*PgRepo, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "pg: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "pg: ping")
	}
	return &PgRepo{pool: pool}, nil
}

func (p *PgRepo) Pool() *pgxpool.Pool { return p.pool }

func (p *PgRepo) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

const insertTrade = `
INSERT INTO trades(id, symbol, seq, price, quantity, taker_order_id, maker_order_id,
  taker_account, maker_account, taker_side, taker_fee, maker_fee, fee_asset, executed_at)
VALUES($1,$2,$3,$4::numeric,$5::numeric,$6,$7,$8,$9,$10,$11::numeric,$12::numeric,$13,$14)
ON CONFLICT (id) DO NOTHING
`

const insertLiquidation = `
INSERT INTO liquidations(id, position_id, account_id, symbol, side, tier, mark_price,
  liquidation_price, close_price, quantity, margin_loss, insurance_fund_loss,
  affected_positions, takeover_receipt, created_at)
VALUES($1,$2,$3,$4,$5,$6,$7::numeric,$8::numeric,$9::numeric,$10::numeric,$11::numeric,$12::numeric,$13,$14,$15)
ON CONFLICT (position_id) DO NOTHING
`

func saveTrades(ctx context.Context, tx pgx.Tx, trades []domain.Trade) error {
	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(insertTrade, t.ID, string(t.Symbol), int64(t.Seq), t.Price.String(), t.Quantity.String(),
			int64(t.TakerOrderID), int64(t.MakerOrderID), t.TakerAccount, t.MakerAccount, string(t.TakerSide),
			t.TakerFee.String(), t.MakerFee.String(), t.FeeAsset, t.Timestamp)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrap(err, "pg: insert trades")
	}
	return nil
}

func saveLiquidation(ctx context.Context, tx pgx.Tx, r *domain.LiquidationResult) error {
	affected, err := json.Marshal(r.AffectedPositions)
	if err != nil {
		return errors.Wrap(err, "pg: encode affected positions")
	}
	_, err = tx.Exec(ctx, insertLiquidation, r.ID, r.PositionID, r.AccountID, string(r.Symbol), string(r.Side),
		string(r.Tier), r.MarkPrice.String(), r.LiquidationPrice.String(), r.ClosePrice.String(),
		r.Quantity.String(), r.MarginLoss.String(), r.InsuranceFundLoss.String(), string(affected),
		r.TakeoverReceipt, r.Timestamp)
	return errors.Wrap(err, "pg: insert liquidation")
}

func (p *PgRepo) SaveTrades(ctx context.Context, trades []domain.Trade) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error { return saveTrades(ctx, tx, trades) })
}

func (p *PgRepo) SaveLiquidation(ctx context.Context, r *domain.LiquidationResult) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error { return saveLiquidation(ctx, tx, r) })
}

// LoadTrades returns trades of symbol from fromSeq on, in sequence order.
func (p *PgRepo) LoadTrades(ctx context.Context, symbol domain.Symbol, fromSeq uint64, limit int) ([]domain.Trade, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := p.pool.Query(ctx, `
SELECT id, symbol, seq, price::text, quantity::text, taker_order_id, maker_order_id,
  taker_account, maker_account, taker_side, taker_fee::text, maker_fee::text, fee_asset, executed_at
FROM trades
WHERE symbol = $1 AND seq >= $2
ORDER BY seq ASC
LIMIT $3
`, string(symbol), int64(fromSeq), limit)
	if err != nil {
		return nil, errors.Wrap(err, "pg: query trades")
	}
	defer rows.Close()

	var res []domain.Trade
	for rows.Next() {
		var (
			t                              domain.Trade
			sym, side                      string
			seq, takerID, makerID          int64
			price, qty, takerFee, makerFee string
		)
		if err := rows.Scan(&t.ID, &sym, &seq, &price, &qty, &takerID, &makerID,
			&t.TakerAccount, &t.MakerAccount, &side, &takerFee, &makerFee, &t.FeeAsset, &t.Timestamp); err != nil {
			return nil, errors.Wrap(err, "pg: scan trade")
		}
		t.Symbol = domain.Symbol(sym)
		t.Seq = uint64(seq)
		t.TakerOrderID = domain.OrderID(takerID)
		t.MakerOrderID = domain.OrderID(makerID)
		t.TakerSide = domain.Side(side)
		if t.Price, err = domain.ParsePrice(price); err != nil {
			return nil, errors.Wrapf(err, "pg: trade %s price", t.ID)
		}
		if t.Quantity, err = domain.ParseQuantity(qty); err != nil {
			return nil, errors.Wrapf(err, "pg: trade %s quantity", t.ID)
		}
		if t.TakerFee, err = domain.ParseAmount(takerFee); err != nil {
			return nil, errors.Wrapf(err, "pg: trade %s taker fee", t.ID)
		}
		if t.MakerFee, err = domain.ParseAmount(makerFee); err != nil {
			return nil, errors.Wrapf(err, "pg: trade %s maker fee", t.ID)
		}
		res = append(res, t)
	}
	return res, errors.Wrap(rows.Err(), "pg: iterate trades")
}

func (p *PgRepo) BeginTx(ctx context.Context) (port.Tx, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "pg: begin")
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) SaveTrades(ctx context.Context, trades []domain.Trade) error {
	return saveTrades(ctx, t.tx, trades)
}

func (t *pgTx) SaveLiquidation(ctx context.Context, r *domain.LiquidationResult) error {
	return saveLiquidation(ctx, t.tx, r)
}

func (t *pgTx) Commit(ctx context.Context) error {
	return errors.Wrap(t.tx.Commit(ctx), "pg: commit")
}

func (t *pgTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}
