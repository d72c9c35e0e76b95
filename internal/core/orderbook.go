package core

import (
	"cmp"
	"container/list"
	"fmt"
	"iter"
	"slices"
	"sort"
	"time"

	"github.com/olyamironova/perp-engine/internal/domain"
)

// priceLevel is a FIFO queue of resting orders sharing one price.
type priceLevel struct {
	price  domain.Price
	orders *list.List // of *domain.Order, head = oldest
	total  domain.Quantity
}

type bookEntry struct {
	order *domain.Order
	level *priceLevel
	elem  *list.Element
}

// ladder keeps the levels of one side sorted from worst to best, so the best
// level sits at the end and is removed without shifting.
type ladder struct {
	side   domain.Side
	levels []*priceLevel
}

// rank orders prices so that a higher rank is more aggressive for this side.
func (l *ladder) rank(p domain.Price) int64 {
	if l.side == domain.Buy {
		return int64(p)
	}
	return -int64(p)
}

func (l *ladder) find(p domain.Price) (int, bool) {
	r := l.rank(p)
	i := sort.Search(len(l.levels), func(i int) bool { return l.rank(l.levels[i].price) >= r })
	return i, i < len(l.levels) && l.levels[i].price == p
}

func (l *ladder) getOrCreate(p domain.Price) *priceLevel {
	i, ok := l.find(p)
	if ok {
		return l.levels[i]
	}
	lvl := &priceLevel{price: p, orders: list.New()}
	l.levels = slices.Insert(l.levels, i, lvl)
	return lvl
}

func (l *ladder) drop(lvl *priceLevel) {
	if i, ok := l.find(lvl.price); ok {
		l.levels = slices.Delete(l.levels, i, i+1)
	}
}

func (l *ladder) best() *priceLevel {
	if len(l.levels) == 0 {
		return nil
	}
	return l.levels[len(l.levels)-1]
}

// byPriority yields levels best first.
func (l *ladder) byPriority() iter.Seq[*priceLevel] {
	return func(yield func(*priceLevel) bool) {
		for i := len(l.levels) - 1; i >= 0; i-- {
			if !yield(l.levels[i]) {
				return
			}
		}
	}
}

// Fill is one execution produced by OrderBook.Match.
type Fill struct {
	Maker    *domain.Order
	Price    domain.Price
	Quantity domain.Quantity
}

// OrderBook is the single-symbol book. It is not safe for concurrent use; the
// Registry serializes access per symbol.
type OrderBook struct {
	Symbol domain.Symbol
	bids   ladder
	asks   ladder
	orders map[domain.OrderID]*bookEntry
}

func NewOrderBook(symbol domain.Symbol) *OrderBook {
	return &OrderBook{
		Symbol: symbol,
		bids:   ladder{side: domain.Buy},
		asks:   ladder{side: domain.Sell},
		orders: make(map[domain.OrderID]*bookEntry),
	}
}

func (b *OrderBook) sideOf(s domain.Side) *ladder {
	if s == domain.Buy {
		return &b.bids
	}
	return &b.asks
}

// Add rests an order at the tail of its price level.
func (b *OrderBook) Add(o *domain.Order) error {
	if o.Price <= 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidPrice, o.Price)
	}
	if _, exists := b.orders[o.ID]; exists {
		return fmt.Errorf("%w: %d", domain.ErrDuplicateOrderID, o.ID)
	}
	lvl := b.sideOf(o.Side).getOrCreate(o.Price)
	elem := lvl.orders.PushBack(o)
	lvl.total = lvl.total.Add(o.Remaining())
	b.orders[o.ID] = &bookEntry{order: o, level: lvl, elem: elem}
	return nil
}

// Remove takes an order off the book, dropping its level if it empties.
func (b *OrderBook) Remove(id domain.OrderID) (*domain.Order, bool) {
	e, ok := b.orders[id]
	if !ok {
		return nil, false
	}
	b.unlink(e)
	return e.order, true
}

func (b *OrderBook) unlink(e *bookEntry) {
	e.level.orders.Remove(e.elem)
	e.level.total = e.level.total.Sub(e.order.Remaining())
	if e.level.orders.Len() == 0 {
		b.sideOf(e.order.Side).drop(e.level)
	}
	delete(b.orders, e.order.ID)
}

func (b *OrderBook) Get(id domain.OrderID) (*domain.Order, bool) {
	e, ok := b.orders[id]
	if !ok {
		return nil, false
	}
	return e.order, true
}

// AmendQuantity lowers a resting order's total in place, keeping its queue position.
func (b *OrderBook) AmendQuantity(id domain.OrderID, qty domain.Quantity, now time.Time) error {
	e, ok := b.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	before := e.order.Remaining()
	if err := e.order.Amend(qty, now); err != nil {
		return err
	}
	e.level.total = e.level.total.Sub(before).Add(e.order.Remaining())
	return nil
}

func (b *OrderBook) BestBid() (domain.Price, bool) {
	if lvl := b.bids.best(); lvl != nil {
		return lvl.price, true
	}
	return 0, false
}

func (b *OrderBook) BestAsk() (domain.Price, bool) {
	if lvl := b.asks.best(); lvl != nil {
		return lvl.price, true
	}
	return 0, false
}

func (b *OrderBook) Len() int { return len(b.orders) }

func (b *OrderBook) LevelCount(side domain.Side) int { return len(b.sideOf(side).levels) }

// OppositeLevels iterates the levels an incoming order on side would match against, best first.
func (b *OrderBook) OppositeLevels(side domain.Side) iter.Seq[domain.DepthLevel] {
	return func(yield func(domain.DepthLevel) bool) {
		for lvl := range b.sideOf(side.Opposite()).byPriority() {
			if !yield(domain.DepthLevel{Price: lvl.price, Quantity: lvl.total, Orders: lvl.orders.Len()}) {
				return
			}
		}
	}
}

func admissible(taker *domain.Order, levelPrice domain.Price) bool {
	if taker.Type == domain.Market {
		return true
	}
	if taker.Side == domain.Buy {
		return levelPrice <= taker.Price
	}
	return levelPrice >= taker.Price
}

// Crosses reports whether taker would trade on arrival.
func (b *OrderBook) Crosses(taker *domain.Order) bool {
	lvl := b.sideOf(taker.Side.Opposite()).best()
	return lvl != nil && admissible(taker, lvl.price)
}

// Simulate walks the opposite side exactly as Match would and returns the fillable
// quantity and its notional, without mutating anything.
func (b *OrderBook) Simulate(taker *domain.Order) (domain.Quantity, domain.Amount) {
	remaining := taker.Remaining()
	var filled domain.Quantity
	var notional domain.Amount
	for lvl := range b.sideOf(taker.Side.Opposite()).byPriority() {
		if remaining == 0 || !admissible(taker, lvl.price) {
			break
		}
		for el := lvl.orders.Front(); el != nil && remaining > 0; el = el.Next() {
			qty := domain.MinQuantity(remaining, el.Value.(*domain.Order).Remaining())
			filled = filled.Add(qty)
			notional = notional.Add(domain.Notional(lvl.price, qty))
			remaining = remaining.Sub(qty)
		}
	}
	return filled, notional
}

// Match executes taker against the opposite side in price-time priority. Makers that
// fill completely leave the book. The taker is never inserted here.
func (b *OrderBook) Match(taker *domain.Order, now time.Time) []Fill {
	var fills []Fill
	opposite := b.sideOf(taker.Side.Opposite())
	for taker.Remaining() > 0 {
		lvl := opposite.best()
		if lvl == nil || !admissible(taker, lvl.price) {
			break
		}
		for taker.Remaining() > 0 && lvl.orders.Len() > 0 {
			maker := lvl.orders.Front().Value.(*domain.Order)
			qty := domain.MinQuantity(taker.Remaining(), maker.Remaining())

			taker.Fill(qty, now)
			maker.Fill(qty, now)
			lvl.total = lvl.total.Sub(qty)
			fills = append(fills, Fill{Maker: maker, Price: lvl.price, Quantity: qty})

			if maker.Remaining() == 0 {
				lvl.orders.Remove(lvl.orders.Front())
				delete(b.orders, maker.ID)
			}
		}
		if lvl.orders.Len() == 0 {
			opposite.drop(lvl)
		}
	}
	return fills
}

// Expired returns resting GTD orders whose expiry is at or before now, oldest id first.
func (b *OrderBook) Expired(now time.Time) []*domain.Order {
	var out []*domain.Order
	for _, e := range b.orders {
		o := e.order
		if o.TimeInForce == domain.GTD && !o.ExpireAt.IsZero() && !o.ExpireAt.After(now) {
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b *domain.Order) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Filter returns the resting orders matching keep, by id.
func (b *OrderBook) Filter(keep func(*domain.Order) bool) []*domain.Order {
	var out []*domain.Order
	for _, e := range b.orders {
		if keep(e.order) {
			out = append(out, e.order)
		}
	}
	slices.SortFunc(out, func(a, b *domain.Order) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Depth aggregates up to n levels per side; n <= 0 means all levels.
func (b *OrderBook) Depth(n int) (bids, asks []domain.DepthLevel) {
	collect := func(l *ladder) []domain.DepthLevel {
		out := make([]domain.DepthLevel, 0, len(l.levels))
		for lvl := range l.byPriority() {
			if n > 0 && len(out) == n {
				break
			}
			out = append(out, domain.DepthLevel{Price: lvl.price, Quantity: lvl.total, Orders: lvl.orders.Len()})
		}
		return out
	}
	return collect(&b.bids), collect(&b.asks)
}

// assertUncrossed panics if the best bid reaches the best ask.
func (b *OrderBook) assertUncrossed() {
	bid, okb := b.BestBid()
	ask, oka := b.BestAsk()
	domain.Assert(!(okb && oka) || bid < ask, "%s: crossed book bid=%s ask=%s", b.Symbol, bid, ask)
}
