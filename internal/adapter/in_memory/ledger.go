package in_memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/olyamironova/perp-engine/internal/domain"
	"github.com/olyamironova/perp-engine/internal/port"
)

type balance struct {
	available domain.Amount
	frozen    domain.Amount
}

type ledgerKey struct {
	account string
	asset   string
}

// Ledger keeps balances in memory.
type Ledger struct {
	mu       sync.Mutex
	balances map[ledgerKey]*balance
}

var _ port.Ledger = (*Ledger)(nil)

func NewLedger() *Ledger {
	return &Ledger{balances: make(map[ledgerKey]*balance)}
}

func (l *Ledger) get(account, asset string) *balance {
	k := ledgerKey{account, asset}
	b, ok := l.balances[k]
	if !ok {
		b = &balance{}
		l.balances[k] = b
	}
	return b
}

// Deposit credits available funds.
func (l *Ledger) Deposit(account, asset string, amount domain.Amount) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.get(account, asset)
	b.available = b.available.Add(amount)
}

func (l *Ledger) Frozen(account, asset string) domain.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.get(account, asset).frozen
}

func (l *Ledger) AvailableBalance(ctx context.Context, account, asset string) (domain.Amount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.get(account, asset).available, nil
}

func (l *Ledger) Freeze(ctx context.Context, account, asset string, amount domain.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.get(account, asset)
	if b.available < amount {
		return fmt.Errorf("%w: freeze %s of %s", domain.ErrInsufficientBalance, amount, b.available)
	}
	b.available = b.available.Sub(amount)
	b.frozen = b.frozen.Add(amount)
	return nil
}

func (l *Ledger) Release(ctx context.Context, account, asset string, amount domain.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.get(account, asset)
	if b.frozen < amount {
		return fmt.Errorf("release %s exceeds frozen %s for %s", amount, b.frozen, account)
	}
	b.frozen = b.frozen.Sub(amount)
	b.available = b.available.Add(amount)
	return nil
}

// Settle may take available funds negative; a liquidation can cost more than
// the account's free balance.
func (l *Ledger) Settle(ctx context.Context, account, asset string, delta domain.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.get(account, asset)
	b.available = b.available.Add(delta)
	return nil
}
