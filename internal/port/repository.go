package port

import (
	"context"

	"github.com/olyamironova/perp-engine/internal/domain"
)

// Repository is the audit store for emitted events.
type Repository interface {
	SaveTrades(ctx context.Context, trades []domain.Trade) error
	SaveLiquidation(ctx context.Context, r *domain.LiquidationResult) error
	LoadTrades(ctx context.Context, symbol domain.Symbol, fromSeq uint64, limit int) ([]domain.Trade, error)
	BeginTx(ctx context.Context) (Tx, error)
}

type Tx interface {
	SaveTrades(ctx context.Context, trades []domain.Trade) error
	SaveLiquidation(ctx context.Context, r *domain.LiquidationResult) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ResultStore keeps liquidation results by position id so repeated invocations are no-ops.
type ResultStore interface {
	Load(ctx context.Context, positionID string) (*domain.LiquidationResult, error)
	Save(ctx context.Context, r *domain.LiquidationResult) error
}
