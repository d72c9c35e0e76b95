package in_memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/olyamironova/perp-engine/internal/domain"
	"github.com/olyamironova/perp-engine/internal/port"
)

var ErrFundExhausted = errors.New("insurance fund capacity exhausted")

// InsuranceFund tracks capacity in memory. Takeover reserves the position's
// remaining margin against capacity.
type InsuranceFund struct {
	mu        sync.Mutex
	capacity  domain.Amount
	takeovers []domain.TakeoverReceipt
}

var _ port.InsuranceFund = (*InsuranceFund)(nil)

func NewInsuranceFund(capacity domain.Amount) *InsuranceFund {
	return &InsuranceFund{capacity: capacity}
}

func (f *InsuranceFund) CheckCapacity(ctx context.Context) (domain.Amount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.capacity, nil
}

func (f *InsuranceFund) Takeover(ctx context.Context, p domain.Position) (domain.TakeoverReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.capacity < p.Margin {
		return domain.TakeoverReceipt{}, ErrFundExhausted
	}
	f.capacity = f.capacity.Sub(p.Margin)
	r := domain.TakeoverReceipt{
		ID:         uuid.NewString(),
		PositionID: p.ID,
		Quantity:   p.Quantity,
		Margin:     p.Margin,
		At:         time.Now(),
	}
	f.takeovers = append(f.takeovers, r)
	return r, nil
}

func (f *InsuranceFund) Takeovers() []domain.TakeoverReceipt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.TakeoverReceipt(nil), f.takeovers...)
}

// Notifier records ADL notifications.
type Notifier struct {
	mu     sync.Mutex
	events map[string][]domain.ADLEvent
}

var _ port.Notifier = (*Notifier)(nil)

func NewNotifier() *Notifier {
	return &Notifier{events: make(map[string][]domain.ADLEvent)}
}

func (n *Notifier) Notify(ctx context.Context, accountID string, ev domain.ADLEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events[accountID] = append(n.events[accountID], ev)
	return nil
}

func (n *Notifier) Events(accountID string) []domain.ADLEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.ADLEvent(nil), n.events[accountID]...)
}

// ResultStore keeps liquidation results by position id.
type ResultStore struct {
	mu      sync.Mutex
	results map[string]domain.LiquidationResult
}

var _ port.ResultStore = (*ResultStore)(nil)

func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[string]domain.LiquidationResult)}
}

func (s *ResultStore) Load(ctx context.Context, positionID string) (*domain.LiquidationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[positionID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *ResultStore) Save(ctx context.Context, r *domain.LiquidationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[r.PositionID] = *r
	return nil
}
