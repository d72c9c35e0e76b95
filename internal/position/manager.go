package position

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/olyamironova/perp-engine/internal/domain"
	"github.com/olyamironova/perp-engine/internal/port"
)

type Config struct {
	Params
	DefaultLeverage int
	MinLeverage     int
	MaxLeverage     int
}

func DefaultConfig() Config {
	return Config{
		Params:          DefaultParams(),
		DefaultLeverage: 10,
		MinLeverage:     1,
		MaxLeverage:     125,
	}
}

// record is one position slot. Its mutex serializes every update to that
// (account, symbol, side) key.
type record struct {
	mu    sync.Mutex
	pos   domain.Position
	asset string
}

type leverageKey struct {
	account string
	symbol  domain.Symbol
}

// Manager owns positions and margin. The matching engine and the liquidation
// processor are its only writers.
type Manager struct {
	cfg    Config
	ledger port.Ledger
	log    logrus.FieldLogger
	now    func() time.Time

	mu       sync.RWMutex
	byKey    map[domain.PositionKey]*record
	byID     map[string]*record
	leverage map[leverageKey]int
	marks    map[domain.Symbol]domain.Price
}

func NewManager(cfg Config, ledger port.Ledger, log logrus.FieldLogger) *Manager {
	return &Manager{
		cfg:      cfg,
		ledger:   ledger,
		log:      log.WithField("component", "positions"),
		now:      time.Now,
		byKey:    make(map[domain.PositionKey]*record),
		byID:     make(map[string]*record),
		leverage: make(map[leverageKey]int),
		marks:    make(map[domain.Symbol]domain.Price),
	}
}

func (m *Manager) ValidLeverage(lev int) bool {
	return lev >= m.cfg.MinLeverage && lev <= m.cfg.MaxLeverage
}

func (m *Manager) SetLeverage(account string, symbol domain.Symbol, lev int) error {
	if !m.ValidLeverage(lev) {
		return fmt.Errorf("%w: %d not in [%d, %d]", domain.ErrInvalidLeverage, lev, m.cfg.MinLeverage, m.cfg.MaxLeverage)
	}
	m.mu.Lock()
	m.leverage[leverageKey{account, symbol}] = lev
	m.mu.Unlock()
	return nil
}

func (m *Manager) Leverage(account string, symbol domain.Symbol) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if lev, ok := m.leverage[leverageKey{account, symbol}]; ok {
		return lev
	}
	return m.cfg.DefaultLeverage
}

func (m *Manager) lookup(key domain.PositionKey) *record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byKey[key]
}

func (m *Manager) lookupID(id string) *record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byID[id]
}

func (m *Manager) getOrCreate(key domain.PositionKey, asset string) *record {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byKey[key]
	if !ok {
		r = &record{asset: asset, pos: domain.Position{
			AccountID: key.AccountID,
			Symbol:    key.Symbol,
			Side:      key.Side,
			State:     domain.PositionClosed,
		}}
		m.byKey[key] = r
	}
	return r
}

func (m *Manager) index(r *record, previousID string) {
	m.mu.Lock()
	delete(m.byID, previousID)
	m.byID[r.pos.ID] = r
	m.mu.Unlock()
}

func (m *Manager) markOf(symbol domain.Symbol) domain.Price {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.marks[symbol]
}

func (m *Manager) Position(key domain.PositionKey) (domain.Position, bool) {
	r := m.lookup(key)
	if r == nil {
		return domain.Position{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pos, r.pos.ID != ""
}

func (m *Manager) ByID(id string) (domain.Position, bool) {
	r := m.lookupID(id)
	if r == nil {
		return domain.Position{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pos, r.pos.ID == id
}

// Positions lists an account's positions that have ever been opened.
func (m *Manager) Positions(account string) []domain.Position {
	m.mu.RLock()
	var recs []*record
	for k, r := range m.byKey {
		if k.AccountID == account {
			recs = append(recs, r)
		}
	}
	m.mu.RUnlock()

	out := make([]domain.Position, 0, len(recs))
	for _, r := range recs {
		r.mu.Lock()
		if r.pos.ID != "" {
			out = append(out, r.pos)
		}
		r.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Side < out[j].Side
	})
	return out
}

func (m *Manager) openOn(symbol domain.Symbol, side domain.PositionSide) []*record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var recs []*record
	for k, r := range m.byKey {
		if k.Symbol == symbol && (side == "" || k.Side == side) {
			recs = append(recs, r)
		}
	}
	return recs
}

// ApplyFill updates a position with one trade leg and returns the realized PnL.
// Opening margin is already frozen by the caller; reducing fills release margin
// pro-rata and settle PnL through the ledger.
func (m *Manager) ApplyFill(ctx context.Context, f domain.PositionFill) (domain.Amount, error) {
	if f.Opens {
		return 0, m.open(f)
	}
	r := m.lookup(f.Key())
	if r == nil {
		return 0, fmt.Errorf("%w: %s/%s/%s", domain.ErrPositionNotFound, f.AccountID, f.Symbol, f.Side)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pos.State != domain.PositionOpen {
		return 0, fmt.Errorf("%w: %s is %s", domain.ErrPositionFrozen, r.pos.ID, r.pos.State)
	}
	return m.reduceLocked(ctx, r, f.Quantity, f.Price)
}

func (m *Manager) open(f domain.PositionFill) error {
	r := m.getOrCreate(f.Key(), f.Asset)
	r.mu.Lock()
	defer r.mu.Unlock()

	now := m.now()
	p := &r.pos
	switch p.State {
	case domain.PositionLiquidating:
		return fmt.Errorf("%w: %s", domain.ErrPositionFrozen, p.ID)
	case domain.PositionClosed, domain.PositionLiquidated:
		previousID := p.ID
		*p = domain.Position{
			ID:        uuid.NewString(),
			AccountID: f.AccountID,
			Symbol:    f.Symbol,
			Side:      f.Side,
			State:     domain.PositionOpen,
			OpenedAt:  now,
		}
		r.asset = f.Asset
		defer m.index(r, previousID)
	}

	held := p.Quantity
	margin := RequiredMargin(f.Price, f.Quantity, f.Leverage)
	p.EntryPrice = WeightedEntry(p.EntryPrice, p.Quantity, f.Price, f.Quantity)
	p.Quantity = p.Quantity.Add(f.Quantity)
	p.Margin = p.Margin.Add(margin)
	p.InitialMargin = p.InitialMargin.Add(margin)
	if held > 0 && f.Leverage != p.Leverage {
		// margin was posted at different leverages
		p.Leverage = BlendedLeverage(p.EntryPrice, p.Quantity, p.Margin)
	} else {
		p.Leverage = f.Leverage
	}
	p.LiquidationPrice = LiquidationPrice(p.Side, p.EntryPrice, p.Leverage, m.cfg.Params)
	if mark := m.markOf(f.Symbol); mark > 0 {
		p.MarkPrice = mark
		p.UnrealizedPnL = PnL(p.Side, p.EntryPrice, mark, p.Quantity)
	}
	p.UpdatedAt = now
	return nil
}

func (m *Manager) reduceLocked(ctx context.Context, r *record, qty domain.Quantity, price domain.Price) (domain.Amount, error) {
	p := &r.pos
	if qty > p.Quantity {
		return 0, fmt.Errorf("%w: reduce %s exceeds %s", domain.ErrReduceOnlyViolation, qty, p.Quantity)
	}
	realized := PnL(p.Side, p.EntryPrice, price, qty)
	release := domain.Amount(domain.MulDiv(int64(p.Margin), int64(qty), int64(p.Quantity)))

	p.Quantity = p.Quantity.Sub(qty)
	p.Margin = p.Margin.Sub(release)
	p.RealizedPnL = p.RealizedPnL.Add(realized)
	p.UpdatedAt = m.now()
	if p.Quantity == 0 {
		p.State = domain.PositionClosed
		p.UnrealizedPnL = 0
	} else if p.MarkPrice > 0 {
		p.UnrealizedPnL = PnL(p.Side, p.EntryPrice, p.MarkPrice, p.Quantity)
	}

	if err := m.ledger.Release(ctx, p.AccountID, r.asset, release); err != nil {
		return realized, fmt.Errorf("release margin for %s: %w", p.ID, err)
	}
	if realized != 0 {
		if err := m.ledger.Settle(ctx, p.AccountID, r.asset, realized); err != nil {
			return realized, fmt.Errorf("settle pnl for %s: %w", p.ID, err)
		}
	}
	return realized, nil
}

// MarkToMarket re-marks every position on symbol and returns the open ones whose
// liquidation price the mark has crossed.
func (m *Manager) MarkToMarket(symbol domain.Symbol, mark domain.Price) []domain.Position {
	m.mu.Lock()
	m.marks[symbol] = mark
	m.mu.Unlock()

	var breached []domain.Position
	for _, r := range m.openOn(symbol, "") {
		r.mu.Lock()
		p := &r.pos
		if p.IsOpen() {
			p.MarkPrice = mark
			p.UnrealizedPnL = PnL(p.Side, p.EntryPrice, mark, p.Quantity)
			if Breached(*p, mark) {
				breached = append(breached, *p)
			}
		}
		r.mu.Unlock()
	}
	sort.Slice(breached, func(i, j int) bool { return breached[i].ID < breached[j].ID })
	return breached
}

// FindCounterparties returns open positions on side for symbol. It serves as the
// in-process source for auto-deleveraging.
func (m *Manager) FindCounterparties(_ context.Context, symbol domain.Symbol, side domain.PositionSide) ([]domain.Position, error) {
	var out []domain.Position
	for _, r := range m.openOn(symbol, side) {
		r.mu.Lock()
		if r.pos.IsOpen() {
			out = append(out, r.pos)
		}
		r.mu.Unlock()
	}
	return out, nil
}

// BeginLiquidation freezes an open position and returns its snapshot.
func (m *Manager) BeginLiquidation(id string) (domain.Position, error) {
	r := m.lookupID(id)
	if r == nil {
		return domain.Position{}, fmt.Errorf("%w: %s", domain.ErrPositionNotFound, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pos.ID != id {
		return domain.Position{}, fmt.Errorf("%w: %s", domain.ErrPositionNotFound, id)
	}
	switch r.pos.State {
	case domain.PositionOpen:
		if r.pos.Quantity == 0 {
			return r.pos, fmt.Errorf("%w: %s is flat", domain.ErrPositionNotFound, id)
		}
		r.pos.State = domain.PositionLiquidating
		r.pos.UpdatedAt = m.now()
		return r.pos, nil
	case domain.PositionLiquidating:
		return r.pos, nil
	}
	return r.pos, fmt.Errorf("%w: %s is %s", domain.ErrPositionNotFound, id, r.pos.State)
}

func (m *Manager) liquidating(id string) (*record, error) {
	r := m.lookupID(id)
	if r == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrPositionNotFound, id)
	}
	r.mu.Lock()
	if r.pos.ID != id || r.pos.State != domain.PositionLiquidating {
		state := r.pos.State
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrPositionNotFound, id, state)
	}
	return r, nil
}

// LiquidationFill settles the market close of a liquidating position. The loss
// over all trades is compared once with the margin share of the closed quantity:
// the account bears it up to that share and the rest is the insurance fund's part.
func (m *Manager) LiquidationFill(ctx context.Context, id string, trades []domain.Trade) (account, fund domain.Amount, err error) {
	r, err := m.liquidating(id)
	if err != nil {
		return 0, 0, err
	}
	defer r.mu.Unlock()

	p := &r.pos
	var qty domain.Quantity
	var pnl domain.Amount
	for _, t := range trades {
		qty = qty.Add(t.Quantity)
		pnl = pnl.Add(PnL(p.Side, p.EntryPrice, t.Price, t.Quantity))
	}
	domain.Assert(qty > 0 && qty <= p.Quantity, "liquidation fill %s outside (0, %s]", qty, p.Quantity)
	share := domain.Amount(domain.MulDiv(int64(p.Margin), int64(qty), int64(p.Quantity)))
	account, fund = SplitLoss(-pnl, share)

	p.Quantity = p.Quantity.Sub(qty)
	p.Margin = p.Margin.Sub(share)
	p.RealizedPnL = p.RealizedPnL.Sub(account)
	p.UpdatedAt = m.now()
	if p.Quantity == 0 {
		p.State = domain.PositionLiquidated
		p.UnrealizedPnL = 0
	}
	return account, fund, m.settleLoss(ctx, r, share, account)
}

// SplitLoss assigns loss to the account up to margin and the excess to the fund.
func SplitLoss(loss, margin domain.Amount) (account, fund domain.Amount) {
	if loss <= margin {
		return loss, 0
	}
	return margin, loss.Sub(margin)
}

// Forfeit closes what is left of a liquidating position with the account losing
// its full remaining margin. Used when the insurance fund takes the position over
// or when counterparties are deleveraged at the bankruptcy price.
func (m *Manager) Forfeit(ctx context.Context, id string) (domain.Amount, error) {
	r, err := m.liquidating(id)
	if err != nil {
		return 0, err
	}
	defer r.mu.Unlock()

	p := &r.pos
	lost := p.Margin
	p.Quantity = 0
	p.Margin = 0
	p.UnrealizedPnL = 0
	p.RealizedPnL = p.RealizedPnL.Sub(lost)
	p.State = domain.PositionLiquidated
	p.UpdatedAt = m.now()
	return lost, m.settleLoss(ctx, r, lost, lost)
}

func (m *Manager) settleLoss(ctx context.Context, r *record, release, loss domain.Amount) error {
	if err := m.ledger.Release(ctx, r.pos.AccountID, r.asset, release); err != nil {
		return fmt.Errorf("release margin for %s: %w", r.pos.ID, err)
	}
	if loss != 0 {
		if err := m.ledger.Settle(ctx, r.pos.AccountID, r.asset, -loss); err != nil {
			return fmt.Errorf("settle liquidation loss for %s: %w", r.pos.ID, err)
		}
	}
	return nil
}

// ForceReduce closes qty of an open position at price outside the book, as
// auto-deleveraging does to counterparties.
func (m *Manager) ForceReduce(ctx context.Context, id string, qty domain.Quantity, price domain.Price) (domain.Amount, error) {
	r := m.lookupID(id)
	if r == nil {
		return 0, fmt.Errorf("%w: %s", domain.ErrPositionNotFound, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pos.ID != id || !r.pos.IsOpen() {
		return 0, fmt.Errorf("%w: %s is %s", domain.ErrPositionNotFound, id, r.pos.State)
	}
	return m.reduceLocked(ctx, r, domain.MinQuantity(qty, r.pos.Quantity), price)
}

// SettleFunding applies one funding interval at rate to every open position on
// symbol. A positive rate has longs pay shorts.
func (m *Manager) SettleFunding(ctx context.Context, symbol domain.Symbol, rate domain.Rate, mark domain.Price) ([]domain.FundingPayment, error) {
	var payments []domain.FundingPayment
	for _, r := range m.openOn(symbol, "") {
		r.mu.Lock()
		p := r.pos
		asset := r.asset
		r.mu.Unlock()
		if !p.IsOpen() {
			continue
		}
		amt := domain.ApplyRate(domain.Notional(mark, p.Quantity), rate)
		if p.Side == domain.Long {
			amt = -amt
		}
		if amt == 0 {
			continue
		}
		if err := m.ledger.Settle(ctx, p.AccountID, asset, amt); err != nil {
			return payments, fmt.Errorf("funding for %s: %w", p.ID, err)
		}
		payments = append(payments, domain.FundingPayment{PositionID: p.ID, AccountID: p.AccountID, Amount: amt})
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].PositionID < payments[j].PositionID })
	m.log.WithFields(logrus.Fields{"symbol": symbol, "rate": rate.String(), "positions": len(payments)}).Info("funding settled")
	return payments, nil
}
