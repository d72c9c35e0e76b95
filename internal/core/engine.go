package core

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/olyamironova/perp-engine/internal/domain"
	"github.com/olyamironova/perp-engine/internal/metrics"
	"github.com/olyamironova/perp-engine/internal/port"
)

// Command is an order-entry request.
type Command struct {
	OrderID      domain.OrderID
	AccountID    string
	Symbol       domain.Symbol
	Side         domain.Side
	PositionSide domain.PositionSide
	Type         domain.OrderType
	TimeInForce  domain.TimeInForce
	Price        domain.Price
	Quantity     domain.Quantity
	Leverage     int
	ReduceOnly   bool
	PostOnly     bool
	ExpireAt     time.Time

	Trigger      domain.Trigger
	TriggerPrice domain.Price
	Algo         domain.Algo
	DisplayQty   domain.Quantity
	Slices       int

	// Liquidation marks internal orders submitted by the liquidation processor.
	Liquidation bool
}

func (c Command) Attributes() domain.OrderAttributes {
	return domain.OrderAttributes{
		Execution:    c.Type,
		TimeInForce:  c.TimeInForce,
		Trigger:      c.Trigger,
		TriggerPrice: c.TriggerPrice,
		Algo:         c.Algo,
		DisplayQty:   c.DisplayQty,
		Slices:       c.Slices,
		PostOnly:     c.PostOnly,
	}
}

// Amendment is a cancel/replace request. Zero Price or Quantity keeps the current value.
type Amendment struct {
	Symbol    domain.Symbol
	OrderID   domain.OrderID
	AccountID string
	Price     domain.Price
	Quantity  domain.Quantity
}

// Positions is the part of the position manager the engine drives.
type Positions interface {
	Leverage(account string, symbol domain.Symbol) int
	ValidLeverage(lev int) bool
	Position(key domain.PositionKey) (domain.Position, bool)
	ApplyFill(ctx context.Context, f domain.PositionFill) (domain.Amount, error)
	MarkToMarket(symbol domain.Symbol, mark domain.Price) []domain.Position
}

// EventSink receives events in per-symbol sequence order.
type EventSink interface {
	Enqueue(ev domain.Event)
}

// Engine is the order-entry service: validation, margin admission, matching,
// fees and position updates for every symbol in the registry.
type Engine struct {
	registry  *Registry
	positions Positions
	ledger    port.Ledger
	cache     port.Cache
	events    EventSink
	alerter   port.Alerter
	fees      FeeSchedule
	log       logrus.FieldLogger
	now       func() time.Time

	depthLevels int
	nextID      atomic.Uint64
}

type Option func(*Engine)

func WithCache(c port.Cache) Option         { return func(e *Engine) { e.cache = c } }
func WithEvents(s EventSink) Option         { return func(e *Engine) { e.events = s } }
func WithAlerter(a port.Alerter) Option     { return func(e *Engine) { e.alerter = a } }
func WithFees(f FeeSchedule) Option         { return func(e *Engine) { e.fees = f } }
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }
func WithDepthLevels(n int) Option          { return func(e *Engine) { e.depthLevels = n } }

func NewEngine(reg *Registry, positions Positions, ledger port.Ledger, log logrus.FieldLogger, opts ...Option) *Engine {
	e := &Engine{
		registry:    reg,
		positions:   positions,
		ledger:      ledger,
		fees:        DefaultFees(),
		log:         log.WithField("component", "engine"),
		now:         time.Now,
		depthLevels: 50,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Registry() *Registry { return e.registry }

// Submit validates, admits and matches one order.
func (e *Engine) Submit(ctx context.Context, cmd Command) (*domain.ExecutionReport, error) {
	defer e.guard(ctx, cmd.Symbol)

	o, err := e.validate(cmd)
	if err != nil {
		e.rejected(cmd, err)
		return nil, err
	}

	var rep *domain.ExecutionReport
	start := time.Now()
	err = e.registry.withMarket(ctx, o.Symbol, func(m *market) error {
		if err := e.checkPosition(m, o); err != nil {
			return err
		}
		if err := e.assignID(m, o); err != nil {
			return err
		}
		reserve, err := e.admit(ctx, m, o, 0)
		if err != nil {
			return err
		}
		rep, err = e.execute(ctx, m, o, reserve)
		return err
	})
	metrics.MatchDuration.WithLabelValues(string(o.Symbol)).Observe(time.Since(start).Seconds())
	if err != nil {
		e.rejected(cmd, err)
		return nil, err
	}
	metrics.OrdersTotal.WithLabelValues(string(o.Symbol), string(rep.Status)).Inc()
	return rep, nil
}

func (e *Engine) rejected(cmd Command, err error) {
	metrics.OrdersTotal.WithLabelValues(string(cmd.Symbol), domain.RejectReason(err)).Inc()
	e.log.WithFields(logrus.Fields{
		"symbol":  cmd.Symbol,
		"account": cmd.AccountID,
		"side":    cmd.Side,
		"reason":  domain.RejectReason(err),
	}).WithError(err).Debug("order rejected")
}

// guard reports invariant violations to the operator before letting the panic continue.
func (e *Engine) guard(ctx context.Context, symbol domain.Symbol) {
	r := recover()
	if r == nil {
		return
	}
	e.log.WithFields(logrus.Fields{"symbol": symbol, "panic": r}).Error("invariant violation")
	metrics.CriticalAlerts.WithLabelValues("invariant_violation").Inc()
	if e.alerter != nil {
		e.alerter.Critical(ctx, port.Alert{Kind: "invariant_violation", Symbol: symbol, Message: fmt.Sprint(r)})
	}
	panic(r)
}

func (e *Engine) validate(cmd Command) (*domain.Order, error) {
	spec, err := e.registry.Spec(cmd.Symbol)
	if err != nil {
		return nil, err
	}
	if cmd.AccountID == "" {
		return nil, fmt.Errorf("%w: account required", domain.ErrInvalidOrderKind)
	}
	if !cmd.Side.Valid() {
		return nil, fmt.Errorf("%w: side %q", domain.ErrInvalidOrderKind, cmd.Side)
	}
	if cmd.PositionSide == "" {
		cmd.PositionSide = domain.Long
		if cmd.Side == domain.Sell {
			cmd.PositionSide = domain.Short
		}
	}
	if !cmd.PositionSide.Valid() {
		return nil, fmt.Errorf("%w: position side %q", domain.ErrInvalidOrderKind, cmd.PositionSide)
	}
	if cmd.TimeInForce == "" {
		cmd.TimeInForce = domain.GTC
		if cmd.Type == domain.Market {
			cmd.TimeInForce = domain.IOC
		}
	}
	if cmd.Quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if err := cmd.Attributes().Validate(cmd.Quantity); err != nil {
		return nil, err
	}
	if !cmd.Attributes().Executable() {
		return nil, fmt.Errorf("%w: trigger=%q algo=%q", domain.ErrUnsupportedOrderKind, cmd.Trigger, cmd.Algo)
	}
	switch {
	case cmd.Type == domain.Market:
		cmd.Price = 0
	case cmd.Price == 0:
		return nil, domain.ErrMissingPrice
	case cmd.Price < 0:
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidPrice, cmd.Price)
	}
	now := e.now()
	if cmd.TimeInForce == domain.GTD && !cmd.ExpireAt.After(now) {
		return nil, fmt.Errorf("%w: GTD requires a future expiry", domain.ErrInvalidOrderKind)
	}

	lev := cmd.Leverage
	if lev == 0 {
		lev = e.positions.Leverage(cmd.AccountID, cmd.Symbol)
	}
	if !e.positions.ValidLeverage(lev) || (spec.MaxLeverage > 0 && lev > spec.MaxLeverage) {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidLeverage, lev)
	}

	o := &domain.Order{
		ID:           cmd.OrderID,
		AccountID:    cmd.AccountID,
		Symbol:       cmd.Symbol,
		Side:         cmd.Side,
		PositionSide: cmd.PositionSide,
		Type:         cmd.Type,
		TimeInForce:  cmd.TimeInForce,
		Price:        cmd.Price,
		Quantity:     cmd.Quantity,
		Leverage:     lev,
		ReduceOnly:   cmd.ReduceOnly,
		PostOnly:     cmd.PostOnly,
		Liquidation:  cmd.Liquidation,
		ExpireAt:     cmd.ExpireAt,
		Status:       domain.Pending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return o, nil
}

// checkPosition applies the position-side rules: reducing orders need an open
// position large enough to cover them together with the account's other resting
// reducing orders, and nothing trades against a position being liquidated.
func (e *Engine) checkPosition(m *market, o *domain.Order) error {
	if o.Liquidation {
		return nil
	}
	pos, ok := e.positions.Position(domain.PositionKey{AccountID: o.AccountID, Symbol: o.Symbol, Side: o.PositionSide})
	if ok && pos.State == domain.PositionLiquidating {
		return fmt.Errorf("%w: %s", domain.ErrPositionFrozen, pos.ID)
	}
	if o.Opens() {
		if o.ReduceOnly {
			return fmt.Errorf("%w: %s %s opens exposure", domain.ErrReduceOnlyViolation, o.Side, o.PositionSide)
		}
		return nil
	}
	if !ok || !pos.IsOpen() {
		return fmt.Errorf("%w: reduce %s without an open position", domain.ErrReduceOnlyViolation, o.Remaining())
	}
	if pending := restingReduce(m, o); o.Remaining().Add(pending) > pos.Quantity {
		return fmt.Errorf("%w: reduce %s with %s resting against open %s", domain.ErrReduceOnlyViolation, o.Remaining(), pending, pos.Quantity)
	}
	return nil
}

// restingReduce sums what is left of the account's other resting orders that
// reduce the same position.
func restingReduce(m *market, o *domain.Order) domain.Quantity {
	var total domain.Quantity
	for _, r := range m.book.Filter(func(r *domain.Order) bool {
		return r.ID != o.ID && r.AccountID == o.AccountID && r.PositionSide == o.PositionSide && !r.Opens()
	}) {
		total = total.Add(r.Remaining())
	}
	return total
}

func (e *Engine) assignID(m *market, o *domain.Order) error {
	if o.ID == 0 {
		o.ID = domain.OrderID(e.nextID.Add(1))
		return nil
	}
	if _, live := m.book.Get(o.ID); live {
		return fmt.Errorf("%w: %d", domain.ErrDuplicateOrderID, o.ID)
	}
	if _, done := m.terminal[o.ID]; done {
		return fmt.Errorf("%w: %d", domain.ErrDuplicateOrderID, o.ID)
	}
	return nil
}

// admit runs every check that can reject o without mutating state and returns
// the margin to freeze. credit is balance the caller is about to release.
func (e *Engine) admit(ctx context.Context, m *market, o *domain.Order, credit domain.Amount) (domain.Amount, error) {
	if o.PostOnly && m.book.Crosses(o) {
		return 0, domain.ErrPostOnlyWouldCross
	}
	filled, notional := m.book.Simulate(o)
	if o.TimeInForce == domain.FOK && filled < o.Remaining() {
		return 0, fmt.Errorf("%w: fillable %s of %s", domain.ErrInsufficientLiquidity, filled, o.Remaining())
	}
	if o.Liquidation || !o.Opens() {
		return 0, nil
	}

	var resting domain.Quantity
	if o.Type == domain.Limit && o.TimeInForce.Rests() {
		resting = o.Remaining().Sub(filled)
	}
	required := marginFor(notional.Add(domain.Notional(o.Price, resting)), o.Leverage)
	if o.Type == domain.Market && filled == 0 {
		if mark := domain.Price(m.mark.Load()); mark > 0 {
			required = marginFor(domain.Notional(mark, o.Remaining()), o.Leverage)
		}
	}
	if required == 0 {
		return 0, nil
	}

	avail, err := e.ledger.AvailableBalance(ctx, o.AccountID, m.spec.QuoteAsset)
	if err != nil {
		return 0, fmt.Errorf("available balance for %s: %w", o.AccountID, err)
	}
	if avail.Add(credit) < required {
		return 0, fmt.Errorf("%w: need %s, available %s", domain.ErrInsufficientBalance, required, avail.Add(credit))
	}
	return required, nil
}

// execute freezes the reservation and runs the order. It must only be called
// after admit succeeded; an error means the book was not touched.
func (e *Engine) execute(ctx context.Context, m *market, o *domain.Order, reserve domain.Amount) (*domain.ExecutionReport, error) {
	if reserve > 0 {
		if err := e.ledger.Freeze(ctx, o.AccountID, m.spec.QuoteAsset, reserve); err != nil {
			return nil, fmt.Errorf("freeze margin for %s: %w", o.AccountID, err)
		}
		m.reserved[o.ID] = reserve
	}
	return e.run(ctx, m, o), nil
}

// run matches o, then rests or retires the remainder. Its reservation is
// already frozen.
func (e *Engine) run(ctx context.Context, m *market, o *domain.Order) *domain.ExecutionReport {
	now := e.now()
	fills := m.book.Match(o, now)
	trades := make([]domain.Trade, 0, len(fills))
	for _, f := range fills {
		trades = append(trades, e.settleFill(ctx, m, o, f, now))
	}

	var status domain.ExecStatus
	switch {
	case o.Remaining() == 0:
		status = domain.ExecFilled
		e.finish(ctx, m, o)
	case o.Type == domain.Limit && o.TimeInForce.Rests():
		if err := m.book.Add(o); err != nil {
			panic(domain.InvariantViolation{Msg: "rest admitted order: " + err.Error()})
		}
		status = domain.ExecAccepted
		if len(trades) > 0 {
			status = domain.ExecPartiallyFilled
		}
	default:
		if err := o.Transition(domain.Cancelled, now); err != nil {
			panic(domain.InvariantViolation{Msg: err.Error()})
		}
		e.finish(ctx, m, o)
		status = domain.ExecCancelled
		if len(trades) > 0 {
			status = domain.ExecPartiallyFilled
		}
	}

	for i := range trades {
		t := trades[i]
		e.emit(domain.Event{
			ID:        uuid.NewString(),
			Type:      domain.EventTrade,
			Symbol:    t.Symbol,
			Seq:       t.Seq,
			Timestamp: t.Timestamp,
			Trade:     &t,
		})
	}

	return &domain.ExecutionReport{
		OrderID:        o.ID,
		Status:         status,
		OrderStatus:    o.Status,
		FilledQuantity: o.FilledQuantity,
		AveragePrice:   domain.AveragePrice(trades),
		Trades:         trades,
	}
}

func (e *Engine) settleFill(ctx context.Context, m *market, taker *domain.Order, f Fill, now time.Time) domain.Trade {
	notional := domain.Notional(f.Price, f.Quantity)
	t := domain.Trade{
		ID:           m.nextTradeID(),
		Symbol:       m.spec.Symbol,
		Seq:          m.nextEventSeq(),
		Price:        f.Price,
		Quantity:     f.Quantity,
		TakerOrderID: taker.ID,
		MakerOrderID: f.Maker.ID,
		TakerAccount: taker.AccountID,
		MakerAccount: f.Maker.AccountID,
		TakerSide:    taker.Side,
		MakerFee:     e.fees.fee(notional, false),
		FeeAsset:     m.spec.QuoteAsset,
		Timestamp:    now,
	}
	if !taker.Liquidation {
		t.TakerFee = e.fees.fee(notional, true)
	}
	e.applyLeg(ctx, m, taker, f, t.TakerFee)
	e.applyLeg(ctx, m, f.Maker, f, t.MakerFee)
	if f.Maker.Status == domain.Filled {
		e.finish(ctx, m, f.Maker)
	}
	metrics.TradesTotal.WithLabelValues(string(m.spec.Symbol)).Inc()
	return t
}

// applyLeg moves one side of a fill into positions, margin and fees. The book has
// already changed, so failures here are logged rather than returned.
func (e *Engine) applyLeg(ctx context.Context, m *market, o *domain.Order, f Fill, fee domain.Amount) {
	if o.Liquidation {
		return
	}
	if o.Opens() {
		used := marginFor(domain.Notional(f.Price, f.Quantity), o.Leverage)
		left := m.reserved[o.ID].Sub(used)
		domain.Assert(left >= 0, "order %d consumed %s beyond its reservation", o.ID, used)
		m.reserved[o.ID] = left
	}
	log := e.log.WithFields(logrus.Fields{"order_id": o.ID, "account": o.AccountID, "symbol": o.Symbol})
	_, err := e.positions.ApplyFill(ctx, domain.PositionFill{
		AccountID: o.AccountID,
		Symbol:    o.Symbol,
		Side:      o.PositionSide,
		Opens:     o.Opens(),
		Price:     f.Price,
		Quantity:  f.Quantity,
		Leverage:  o.Leverage,
		Asset:     m.spec.QuoteAsset,
	})
	if err != nil {
		log.WithError(err).Error("position update failed")
	}
	if fee != 0 {
		if err := e.ledger.Settle(ctx, o.AccountID, m.spec.QuoteAsset, -fee); err != nil {
			log.WithError(err).Error("fee settlement failed")
		}
	}
}

// finish releases whatever margin a terminal order did not consume.
func (e *Engine) finish(ctx context.Context, m *market, o *domain.Order) {
	if left, ok := m.reserved[o.ID]; ok {
		delete(m.reserved, o.ID)
		if left > 0 {
			if err := e.ledger.Release(ctx, o.AccountID, m.spec.QuoteAsset, left); err != nil {
				e.log.WithFields(logrus.Fields{"order_id": o.ID, "account": o.AccountID}).WithError(err).Error("release reservation failed")
			}
		}
	}
	m.retire(o)
}

func (e *Engine) emit(ev domain.Event) {
	if e.events != nil {
		e.events.Enqueue(ev)
	}
}

func (e *Engine) liveOrder(m *market, id domain.OrderID, account string) (*domain.Order, error) {
	o, ok := m.book.Get(id)
	if !ok {
		if _, done := m.terminal[id]; done {
			return nil, fmt.Errorf("%w: %d", domain.ErrOrderAlreadyTerminal, id)
		}
		return nil, fmt.Errorf("%w: %d", domain.ErrOrderNotFound, id)
	}
	if account != "" && o.AccountID != account {
		return nil, fmt.Errorf("%w: %d", domain.ErrOrderNotFound, id)
	}
	return o, nil
}

// Cancel removes a resting order. An empty account skips the ownership check.
func (e *Engine) Cancel(ctx context.Context, symbol domain.Symbol, id domain.OrderID, account string) (*domain.Order, error) {
	defer e.guard(ctx, symbol)
	var out *domain.Order
	err := e.registry.withMarket(ctx, symbol, func(m *market) error {
		o, err := e.liveOrder(m, id, account)
		if err != nil {
			return err
		}
		m.book.Remove(id)
		if err := o.Transition(domain.Cancelled, e.now()); err != nil {
			panic(domain.InvariantViolation{Msg: err.Error()})
		}
		e.finish(ctx, m, o)
		out = o.Clone()
		return nil
	})
	return out, err
}

// CancelAccountOrders cancels every resting order of account on symbol that
// touches the given position side.
func (e *Engine) CancelAccountOrders(ctx context.Context, symbol domain.Symbol, account string, side domain.PositionSide) ([]domain.OrderID, error) {
	defer e.guard(ctx, symbol)
	var ids []domain.OrderID
	err := e.registry.withMarket(ctx, symbol, func(m *market) error {
		for _, o := range m.book.Filter(func(o *domain.Order) bool {
			return o.AccountID == account && o.PositionSide == side
		}) {
			m.book.Remove(o.ID)
			if err := o.Transition(domain.Cancelled, e.now()); err != nil {
				panic(domain.InvariantViolation{Msg: err.Error()})
			}
			e.finish(ctx, m, o)
			ids = append(ids, o.ID)
		}
		return nil
	})
	return ids, err
}

// Replace amends a resting order. Lowering the quantity at the same price keeps
// time priority; any other change re-enters the order at the back of the queue.
func (e *Engine) Replace(ctx context.Context, a Amendment) (*domain.ExecutionReport, error) {
	defer e.guard(ctx, a.Symbol)
	var rep *domain.ExecutionReport
	err := e.registry.withMarket(ctx, a.Symbol, func(m *market) error {
		o, err := e.liveOrder(m, a.OrderID, a.AccountID)
		if err != nil {
			return err
		}
		price, qty := a.Price, a.Quantity
		if price == 0 {
			price = o.Price
		}
		if qty == 0 {
			qty = o.Quantity
		}
		if price < 0 {
			return fmt.Errorf("%w: %s", domain.ErrInvalidPrice, price)
		}
		if qty <= o.FilledQuantity {
			return fmt.Errorf("%w: new quantity must exceed filled %s", domain.ErrInvalidQuantity, o.FilledQuantity)
		}

		if price == o.Price && qty <= o.Quantity {
			rep, err = e.amendInPlace(ctx, m, o, qty)
			return err
		}

		next := o.Clone()
		next.Price = price
		next.Quantity = qty
		next.CreatedAt = e.now()
		if err := e.checkPosition(m, next); err != nil {
			return err
		}
		held := m.reserved[o.ID]
		reserve, err := e.admit(ctx, m, next, held)
		if err != nil {
			return err
		}
		// resized before the book changes: a ledger failure leaves o resting as it was
		if err := e.resize(ctx, m, o.AccountID, held, reserve); err != nil {
			return err
		}
		m.book.Remove(o.ID)
		delete(m.reserved, o.ID)
		if reserve > 0 {
			m.reserved[next.ID] = reserve
		}
		rep = e.run(ctx, m, next)
		return nil
	})
	return rep, err
}

// resize moves an account's frozen balance from held to want.
func (e *Engine) resize(ctx context.Context, m *market, account string, held, want domain.Amount) error {
	switch {
	case want > held:
		if err := e.ledger.Freeze(ctx, account, m.spec.QuoteAsset, want.Sub(held)); err != nil {
			return fmt.Errorf("freeze margin for %s: %w", account, err)
		}
	case want < held:
		if err := e.ledger.Release(ctx, account, m.spec.QuoteAsset, held.Sub(want)); err != nil {
			return fmt.Errorf("release margin for %s: %w", account, err)
		}
	}
	return nil
}

func (e *Engine) amendInPlace(ctx context.Context, m *market, o *domain.Order, qty domain.Quantity) (*domain.ExecutionReport, error) {
	before := o.Remaining()
	if qty != o.Quantity {
		if err := m.book.AmendQuantity(o.ID, qty, e.now()); err != nil {
			return nil, err
		}
	}
	if o.Opens() {
		freed := marginFor(domain.Notional(o.Price, before.Sub(o.Remaining())), o.Leverage)
		freed = domain.MinAmount(freed, m.reserved[o.ID])
		if freed > 0 {
			if err := e.ledger.Release(ctx, o.AccountID, m.spec.QuoteAsset, freed); err != nil {
				e.log.WithField("order_id", o.ID).WithError(err).Error("release amended reservation failed")
			} else {
				m.reserved[o.ID] = m.reserved[o.ID].Sub(freed)
			}
		}
	}
	status := domain.ExecAccepted
	if o.FilledQuantity > 0 {
		status = domain.ExecPartiallyFilled
	}
	return &domain.ExecutionReport{
		OrderID:        o.ID,
		Status:         status,
		OrderStatus:    o.Status,
		FilledQuantity: o.FilledQuantity,
	}, nil
}

// ExpireOrders retires resting GTD orders whose expiry has passed.
func (e *Engine) ExpireOrders(ctx context.Context, symbol domain.Symbol) ([]domain.OrderID, error) {
	defer e.guard(ctx, symbol)
	var ids []domain.OrderID
	err := e.registry.withMarket(ctx, symbol, func(m *market) error {
		now := e.now()
		for _, o := range m.book.Expired(now) {
			m.book.Remove(o.ID)
			if err := o.Transition(domain.Expired, now); err != nil {
				panic(domain.InvariantViolation{Msg: err.Error()})
			}
			e.finish(ctx, m, o)
			ids = append(ids, o.ID)
		}
		return nil
	})
	return ids, err
}

// Order returns a copy of a resting or recently finished order.
func (e *Engine) Order(ctx context.Context, symbol domain.Symbol, id domain.OrderID) (*domain.Order, error) {
	var out *domain.Order
	err := e.registry.viewMarket(ctx, symbol, func(m *market) error {
		if o, ok := m.book.Get(id); ok {
			out = o.Clone()
			return nil
		}
		if o, ok := m.terminal[id]; ok {
			out = o.Clone()
			return nil
		}
		return fmt.Errorf("%w: %d", domain.ErrOrderNotFound, id)
	})
	return out, err
}

// UpdateMarkPrice records the mark for symbol, re-marks its positions and returns
// those whose liquidation price has been crossed.
func (e *Engine) UpdateMarkPrice(ctx context.Context, symbol domain.Symbol, mark domain.Price) ([]domain.Position, error) {
	if mark <= 0 {
		return nil, fmt.Errorf("%w: mark %s", domain.ErrInvalidPrice, mark)
	}
	m, err := e.registry.market(symbol)
	if err != nil {
		return nil, err
	}
	m.mark.Store(int64(mark))
	return e.positions.MarkToMarket(symbol, mark), nil
}

// EmitLiquidation sequences a liquidation result into the symbol's event stream.
func (e *Engine) EmitLiquidation(ctx context.Context, r *domain.LiquidationResult) error {
	return e.registry.viewMarket(ctx, r.Symbol, func(m *market) error {
		e.emit(domain.Event{
			ID:          uuid.NewString(),
			Type:        domain.EventLiquidation,
			Symbol:      r.Symbol,
			Seq:         m.nextEventSeq(),
			Timestamp:   r.Timestamp,
			Liquidation: r,
		})
		return nil
	})
}
