package port

import (
	"context"

	"github.com/olyamironova/perp-engine/internal/domain"
)

// Ledger is the account balance service. Freeze moves available funds to frozen,
// Release moves them back, Settle credits (or debits, when negative) available funds.
type Ledger interface {
	AvailableBalance(ctx context.Context, account, asset string) (domain.Amount, error)
	Freeze(ctx context.Context, account, asset string, amount domain.Amount) error
	Release(ctx context.Context, account, asset string, amount domain.Amount) error
	Settle(ctx context.Context, account, asset string, delta domain.Amount) error
}
