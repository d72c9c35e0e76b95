package port

import (
	"context"

	"github.com/olyamironova/perp-engine/internal/domain"
)

type InsuranceFund interface {
	CheckCapacity(ctx context.Context) (domain.Amount, error)
	Takeover(ctx context.Context, p domain.Position) (domain.TakeoverReceipt, error)
}

// CounterpartySource lists open positions on side for symbol that auto-deleveraging may reduce.
type CounterpartySource interface {
	FindCounterparties(ctx context.Context, symbol domain.Symbol, side domain.PositionSide) ([]domain.Position, error)
}

type Notifier interface {
	Notify(ctx context.Context, accountID string, ev domain.ADLEvent) error
}
