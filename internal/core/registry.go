package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/olyamironova/perp-engine/internal/domain"
	"github.com/olyamironova/perp-engine/internal/metrics"
)

type SymbolSpec struct {
	Symbol      domain.Symbol
	QuoteAsset  string
	MaxLeverage int
}

// terminalRetention bounds how many finished orders per symbol stay queryable.
const terminalRetention = 10_000

// market is the per-symbol state: the book, its writer lock and its sequence counters.
type market struct {
	spec SymbolSpec
	book *OrderBook

	// lock is a one-slot semaphore so acquisition can honor a context deadline.
	lock chan struct{}

	tradeSeq atomic.Uint64
	eventSeq atomic.Uint64
	version  atomic.Uint64

	bestBid atomic.Int64
	bestAsk atomic.Int64
	mark    atomic.Int64

	// guarded by lock
	reserved      map[domain.OrderID]domain.Amount
	terminal      map[domain.OrderID]*domain.Order
	terminalOrder []domain.OrderID
}

func newMarket(spec SymbolSpec) *market {
	return &market{
		spec:     spec,
		book:     NewOrderBook(spec.Symbol),
		lock:     make(chan struct{}, 1),
		reserved: make(map[domain.OrderID]domain.Amount),
		terminal: make(map[domain.OrderID]*domain.Order),
	}
}

func (m *market) nextTradeID() string {
	return fmt.Sprintf("%s-%d", m.spec.Symbol, m.tradeSeq.Add(1))
}

func (m *market) nextEventSeq() uint64 { return m.eventSeq.Add(1) }

func (m *market) retire(o *domain.Order) {
	m.terminal[o.ID] = o
	m.terminalOrder = append(m.terminalOrder, o.ID)
	if len(m.terminalOrder) > terminalRetention {
		delete(m.terminal, m.terminalOrder[0])
		m.terminalOrder = m.terminalOrder[1:]
	}
}

// publishTop refreshes the lock-free read path after a mutation.
func (m *market) publishTop() {
	m.book.assertUncrossed()
	bid, _ := m.book.BestBid()
	ask, _ := m.book.BestAsk()
	m.bestBid.Store(int64(bid))
	m.bestAsk.Store(int64(ask))
	m.version.Add(1)
	metrics.OrderBookDepth.WithLabelValues(string(m.spec.Symbol), string(domain.Buy)).Set(float64(m.book.LevelCount(domain.Buy)))
	metrics.OrderBookDepth.WithLabelValues(string(m.spec.Symbol), string(domain.Sell)).Set(float64(m.book.LevelCount(domain.Sell)))
}

// Registry routes operations to per-symbol books. Each symbol has its own writer
// lock, so different symbols match in parallel.
type Registry struct {
	mu      sync.RWMutex
	markets map[domain.Symbol]*market
}

func NewRegistry(specs ...SymbolSpec) *Registry {
	r := &Registry{markets: make(map[domain.Symbol]*market)}
	for _, s := range specs {
		r.Register(s)
	}
	return r
}

// Register adds a symbol. Registering an existing symbol is a no-op.
func (r *Registry) Register(spec SymbolSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.markets[spec.Symbol]; !ok {
		r.markets[spec.Symbol] = newMarket(spec)
	}
}

func (r *Registry) Symbols() []domain.Symbol {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Symbol, 0, len(r.markets))
	for s := range r.markets {
		out = append(out, s)
	}
	return out
}

func (r *Registry) market(symbol domain.Symbol) (*market, error) {
	r.mu.RLock()
	m, ok := r.markets[symbol]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownSymbol, symbol)
	}
	return m, nil
}

func (r *Registry) Spec(symbol domain.Symbol) (SymbolSpec, error) {
	m, err := r.market(symbol)
	if err != nil {
		return SymbolSpec{}, err
	}
	return m.spec, nil
}

// withMarket runs fn inside the symbol's critical section and republishes the top
// of book afterwards, also when fn fails. Waiting for the lock gives up when ctx
// is done.
func (r *Registry) withMarket(ctx context.Context, symbol domain.Symbol, fn func(*market) error) error {
	return r.locked(ctx, symbol, func(m *market) error {
		err := fn(m)
		m.publishTop()
		return err
	})
}

// viewMarket is withMarket for callers that leave the book unchanged.
func (r *Registry) viewMarket(ctx context.Context, symbol domain.Symbol, fn func(*market) error) error {
	return r.locked(ctx, symbol, fn)
}

func (r *Registry) locked(ctx context.Context, symbol domain.Symbol, fn func(*market) error) error {
	m, err := r.market(symbol)
	if err != nil {
		return err
	}
	select {
	case m.lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-m.lock }()
	return fn(m)
}

// BestBid reads the top of book without taking the writer lock.
func (r *Registry) BestBid(symbol domain.Symbol) (domain.Price, bool) {
	m, err := r.market(symbol)
	if err != nil {
		return 0, false
	}
	p := domain.Price(m.bestBid.Load())
	return p, p > 0
}

func (r *Registry) BestAsk(symbol domain.Symbol) (domain.Price, bool) {
	m, err := r.market(symbol)
	if err != nil {
		return 0, false
	}
	p := domain.Price(m.bestAsk.Load())
	return p, p > 0
}

func (r *Registry) MarkPrice(symbol domain.Symbol) (domain.Price, bool) {
	m, err := r.market(symbol)
	if err != nil {
		return 0, false
	}
	p := domain.Price(m.mark.Load())
	return p, p > 0
}
