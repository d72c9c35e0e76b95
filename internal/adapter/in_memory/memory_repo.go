package in_memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/olyamironova/perp-engine/internal/domain"
	"github.com/olyamironova/perp-engine/internal/port"
)

var errTxDone = errors.New("transaction already finished")

// MemoryRepo is the audit store used in tests and single-process runs.
type MemoryRepo struct {
	mu           sync.Mutex
	trades       map[domain.Symbol][]domain.Trade
	liquidations map[string]*domain.LiquidationResult
}

var _ port.Repository = (*MemoryRepo)(nil)

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		trades:       make(map[domain.Symbol][]domain.Trade),
		liquidations: make(map[string]*domain.LiquidationResult),
	}
}

func (r *MemoryRepo) SaveTrades(ctx context.Context, trades []domain.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range trades {
		r.trades[t.Symbol] = append(r.trades[t.Symbol], t)
	}
	return nil
}

func (r *MemoryRepo) SaveLiquidation(ctx context.Context, res *domain.LiquidationResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *res
	r.liquidations[res.ID] = &c
	return nil
}

// LoadTrades returns trades with Seq >= fromSeq in sequence order.
func (r *MemoryRepo) LoadTrades(ctx context.Context, symbol domain.Symbol, fromSeq uint64, limit int) ([]domain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Trade
	for _, t := range r.trades[symbol] {
		if t.Seq >= fromSeq {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) Liquidations() []domain.LiquidationResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.LiquidationResult, 0, len(r.liquidations))
	for _, l := range r.liquidations {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// BeginTx buffers writes until Commit.
func (r *MemoryRepo) BeginTx(ctx context.Context) (port.Tx, error) {
	return &memoryTx{repo: r}, nil
}

type memoryTx struct {
	repo         *MemoryRepo
	trades       []domain.Trade
	liquidations []*domain.LiquidationResult
	done         bool
}

func (tx *memoryTx) SaveTrades(ctx context.Context, trades []domain.Trade) error {
	if tx.done {
		return errTxDone
	}
	tx.trades = append(tx.trades, trades...)
	return nil
}

func (tx *memoryTx) SaveLiquidation(ctx context.Context, res *domain.LiquidationResult) error {
	if tx.done {
		return errTxDone
	}
	tx.liquidations = append(tx.liquidations, res)
	return nil
}

func (tx *memoryTx) Commit(ctx context.Context) error {
	if tx.done {
		return errTxDone
	}
	tx.done = true
	if err := tx.repo.SaveTrades(ctx, tx.trades); err != nil {
		return err
	}
	for _, res := range tx.liquidations {
		if err := tx.repo.SaveLiquidation(ctx, res); err != nil {
			return err
		}
	}
	return nil
}

func (tx *memoryTx) Rollback(ctx context.Context) error {
	tx.done = true
	tx.trades, tx.liquidations = nil, nil
	return nil
}
