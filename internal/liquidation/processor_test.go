package liquidation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olyamironova/perp-engine/internal/adapter/in_memory"
	"github.com/olyamironova/perp-engine/internal/core"
	"github.com/olyamironova/perp-engine/internal/domain"
	"github.com/olyamironova/perp-engine/internal/logging"
	"github.com/olyamironova/perp-engine/internal/position"
)

const (
	btc  = domain.Symbol("BTC-PERP")
	usdt = "USDT"
)

type fakeEngine struct {
	mu        sync.Mutex
	submits   []core.Command
	report    *domain.ExecutionReport
	block     bool
	emitted   []*domain.LiquidationResult
	cancelled []string
}

func (f *fakeEngine) Submit(ctx context.Context, cmd core.Command) (*domain.ExecutionReport, error) {
	f.mu.Lock()
	f.submits = append(f.submits, cmd)
	rep, block := f.report, f.block
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if rep == nil {
		return &domain.ExecutionReport{Status: domain.ExecCancelled, OrderStatus: domain.Cancelled}, nil
	}
	return rep, nil
}

func (f *fakeEngine) CancelAccountOrders(ctx context.Context, symbol domain.Symbol, account string, side domain.PositionSide) ([]domain.OrderID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, account+"/"+string(side))
	return nil, nil
}

func (f *fakeEngine) EmitLiquidation(ctx context.Context, r *domain.LiquidationResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = append(f.emitted, r)
	return nil
}

func (f *fakeEngine) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

type fixture struct {
	engine    *fakeEngine
	positions *position.Manager
	ledger    *in_memory.Ledger
	fund      *in_memory.InsuranceFund
	notifier  *in_memory.Notifier
	store     *in_memory.ResultStore
	alerter   *in_memory.Alerter
	proc      *Processor
}

func newFixture(t *testing.T, capacity int64) *fixture {
	t.Helper()
	f := &fixture{
		engine:   &fakeEngine{},
		ledger:   in_memory.NewLedger(),
		fund:     in_memory.NewInsuranceFund(domain.WholeAmount(capacity)),
		notifier: in_memory.NewNotifier(),
		store:    in_memory.NewResultStore(),
		alerter:  &in_memory.Alerter{},
	}
	f.positions = position.NewManager(position.DefaultConfig(), f.ledger, logging.Discard())
	f.proc = NewProcessor(Deps{
		Engine:         f.engine,
		Positions:      f.positions,
		Fund:           f.fund,
		Counterparties: f.positions,
		Notifier:       f.notifier,
		Store:          f.store,
		Alerter:        f.alerter,
	}, Config{MarketTimeout: 20 * time.Millisecond}, logging.Discard())
	return f
}

// open funds the account with exactly the margin and opens a position.
func (f *fixture) open(t *testing.T, account string, side domain.PositionSide, price, qty int64) domain.Position {
	t.Helper()
	ctx := context.Background()
	margin := position.RequiredMargin(domain.WholePrice(price), domain.WholeQuantity(qty), 10)
	f.ledger.Deposit(account, usdt, margin)
	require.NoError(t, f.ledger.Freeze(ctx, account, usdt, margin))
	_, err := f.positions.ApplyFill(ctx, domain.PositionFill{
		AccountID: account, Symbol: btc, Side: side, Opens: true,
		Price: domain.WholePrice(price), Quantity: domain.WholeQuantity(qty), Leverage: 10, Asset: usdt,
	})
	require.NoError(t, err)
	pos, ok := f.positions.Position(domain.PositionKey{AccountID: account, Symbol: btc, Side: side})
	require.True(t, ok)
	return pos
}

func TestCascadeFallsThroughToADL(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	f.engine.block = true

	alice := f.open(t, "alice", domain.Long, 50000, 1)
	bob := f.open(t, "bob", domain.Short, 60000, 1)
	f.open(t, "carol", domain.Short, 50000, 2)

	res, err := f.proc.ExecuteLiquidation(ctx, alice.ID, domain.WholePrice(45000))
	require.NoError(t, err)

	assert.Equal(t, domain.TierADL, res.Tier)
	assert.Equal(t, domain.WholePrice(45000), res.ClosePrice)
	assert.Equal(t, domain.WholeAmount(5000), res.MarginLoss)
	assert.Equal(t, domain.Amount(0), res.InsuranceFundLoss)
	require.Len(t, res.AffectedPositions, 1)
	assert.Equal(t, bob.ID, res.AffectedPositions[0].PositionID)
	assert.Equal(t, domain.WholeAmount(15000), res.AffectedPositions[0].RealizedPnL)

	require.Len(t, f.notifier.Events("bob"), 1)
	assert.Empty(t, f.notifier.Events("carol"))

	after, _ := f.positions.ByID(alice.ID)
	assert.Equal(t, domain.PositionLiquidated, after.State)
	bobAfter, _ := f.positions.ByID(bob.ID)
	assert.Equal(t, domain.PositionClosed, bobAfter.State)

	assert.Equal(t, []string{"alice/LONG", "bob/SHORT"}, f.engine.cancelled)

	require.Len(t, f.engine.submits, 1)
	cmd := f.engine.submits[0]
	assert.True(t, cmd.Liquidation)
	assert.Equal(t, domain.Sell, cmd.Side)
	assert.Equal(t, domain.IOC, cmd.TimeInForce)
}

func TestMarketTierFullFill(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	alice := f.open(t, "alice", domain.Long, 50000, 1)
	f.engine.report = &domain.ExecutionReport{
		Status:         domain.ExecFilled,
		FilledQuantity: domain.WholeQuantity(1),
		AveragePrice:   domain.WholePrice(45600),
		Trades:         []domain.Trade{{Price: domain.WholePrice(45600), Quantity: domain.WholeQuantity(1)}},
	}

	res, err := f.proc.ExecuteLiquidation(ctx, alice.ID, domain.WholePrice(45500))
	require.NoError(t, err)
	assert.Equal(t, domain.TierMarket, res.Tier)
	assert.Equal(t, domain.WholeAmount(4400), res.MarginLoss)
	assert.Equal(t, domain.Amount(0), res.InsuranceFundLoss)
	assert.Equal(t, domain.WholePrice(45600), res.ClosePrice)
	require.Len(t, f.engine.emitted, 1)

	avail, _ := f.ledger.AvailableBalance(ctx, "alice", usdt)
	assert.Equal(t, domain.WholeAmount(600), avail)
}

func TestMarketLossBeyondMarginGoesToFund(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	alice := f.open(t, "alice", domain.Long, 50000, 1)
	f.engine.report = &domain.ExecutionReport{
		Status:         domain.ExecFilled,
		FilledQuantity: domain.WholeQuantity(1),
		AveragePrice:   domain.WholePrice(44000),
		Trades:         []domain.Trade{{Price: domain.WholePrice(44000), Quantity: domain.WholeQuantity(1)}},
	}

	res, err := f.proc.ExecuteLiquidation(ctx, alice.ID, domain.WholePrice(45000))
	require.NoError(t, err)
	assert.Equal(t, domain.WholeAmount(5000), res.MarginLoss)
	assert.Equal(t, domain.WholeAmount(1000), res.InsuranceFundLoss)
}

func TestMarketTierSplitsLossAcrossAllTrades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	alice := f.open(t, "alice", domain.Long, 50000, 2)
	f.engine.report = &domain.ExecutionReport{
		Status:         domain.ExecFilled,
		FilledQuantity: domain.WholeQuantity(2),
		AveragePrice:   domain.WholePrice(44500),
		Trades: []domain.Trade{
			{Price: domain.WholePrice(40000), Quantity: domain.WholeQuantity(1)},
			{Price: domain.WholePrice(49000), Quantity: domain.WholeQuantity(1)},
		},
	}

	res, err := f.proc.ExecuteLiquidation(ctx, alice.ID, domain.WholePrice(45000))
	require.NoError(t, err)
	assert.Equal(t, domain.TierMarket, res.Tier)
	assert.Equal(t, domain.WholeAmount(10000), res.MarginLoss)
	assert.Equal(t, domain.WholeAmount(1000), res.InsuranceFundLoss)
}

func TestPartialMarketFillThenInsuranceFund(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3000)
	alice := f.open(t, "alice", domain.Long, 50000, 1)
	partial, err := domain.ParseQuantity("0.4")
	require.NoError(t, err)
	f.engine.report = &domain.ExecutionReport{
		Status:         domain.ExecPartiallyFilled,
		FilledQuantity: partial,
		AveragePrice:   domain.WholePrice(44000),
		Trades:         []domain.Trade{{Price: domain.WholePrice(44000), Quantity: partial}},
	}

	res, err := f.proc.ExecuteLiquidation(ctx, alice.ID, domain.WholePrice(45000))
	require.NoError(t, err)
	assert.Equal(t, domain.TierInsuranceFund, res.Tier)
	// 0.4 closed at a 2400 loss against a 2000 margin share, then 3000 forfeited.
	assert.Equal(t, domain.WholeAmount(5000), res.MarginLoss)
	assert.Equal(t, domain.WholeAmount(400), res.InsuranceFundLoss)
	assert.NotEmpty(t, res.TakeoverReceipt)

	takeovers := f.fund.Takeovers()
	require.Len(t, takeovers, 1)
	assert.Equal(t, domain.WholeAmount(3000), takeovers[0].Margin)
}

func TestInsuranceFundCapacityEqualToMarginSuffices(t *testing.T) {
	f := newFixture(t, 5000)
	f.engine.block = true
	alice := f.open(t, "alice", domain.Long, 50000, 1)

	res, err := f.proc.ExecuteLiquidation(context.Background(), alice.ID, domain.WholePrice(45000))
	require.NoError(t, err)
	assert.Equal(t, domain.TierInsuranceFund, res.Tier)
	assert.Equal(t, domain.Amount(0), res.InsuranceFundLoss)
	assert.Equal(t, domain.WholeAmount(5000), res.MarginLoss)
}

func TestADLShortfallAlertsAndKeepsPositionFrozen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	alice := f.open(t, "alice", domain.Long, 50000, 2)
	f.open(t, "bob", domain.Short, 60000, 1)

	_, err := f.proc.ExecuteLiquidation(ctx, alice.ID, domain.WholePrice(45000))
	require.ErrorIs(t, err, domain.ErrADLShortfall)

	alerts := f.alerter.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "adl_shortfall", alerts[0].Kind)

	pos, _ := f.positions.ByID(alice.ID)
	assert.Equal(t, domain.PositionLiquidating, pos.State)
	stored, err := f.store.Load(ctx, alice.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
	assert.Empty(t, f.notifier.Events("bob"))
}

func TestRepeatedLiquidationReturnsStoredResult(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100000)
	alice := f.open(t, "alice", domain.Long, 50000, 1)

	first, err := f.proc.ExecuteLiquidation(ctx, alice.ID, domain.WholePrice(45000))
	require.NoError(t, err)
	second, err := f.proc.ExecuteLiquidation(ctx, alice.ID, domain.WholePrice(44000))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.engine.submitCount())
	assert.Len(t, f.fund.Takeovers(), 1)
}

func TestConcurrentLiquidationsCollapse(t *testing.T) {
	f := newFixture(t, 100000)
	f.engine.block = true
	alice := f.open(t, "alice", domain.Long, 50000, 1)

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.proc.ExecuteLiquidation(context.Background(), alice.ID, domain.WholePrice(45000))
			if assert.NoError(t, err) {
				ids[i] = res.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, f.engine.submitCount())
	assert.Len(t, f.fund.Takeovers(), 1)
}

func TestUnknownPosition(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.proc.ExecuteLiquidation(context.Background(), "missing", domain.WholePrice(1))
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)
}

func TestRankCounterparties(t *testing.T) {
	liquidated := domain.Position{AccountID: "alice", Side: domain.Long}
	short := func(id, account string, entry int64, margin int64) domain.Position {
		return domain.Position{
			ID: id, AccountID: account, Side: domain.Short, State: domain.PositionOpen,
			Quantity: domain.WholeQuantity(1), EntryPrice: domain.WholePrice(entry), Margin: domain.WholeAmount(margin),
		}
	}
	ranked := rankCounterparties([]domain.Position{
		short("a", "x", 50000, 5000),
		short("b", "y", 60000, 6000),
		short("c", "z", 40000, 4000),
		short("d", "alice", 70000, 7000),
	}, liquidated, domain.WholePrice(45000))

	require.Len(t, ranked, 2)
	assert.Equal(t, "b", ranked[0].pos.ID)
	assert.Equal(t, "a", ranked[1].pos.ID)
}

func TestMarketTierThroughOrderBook(t *testing.T) {
	ctx := context.Background()
	log := logging.Discard()
	ledger := in_memory.NewLedger()
	for _, a := range []string{"alice", "bob", "mm"} {
		ledger.Deposit(a, usdt, domain.WholeAmount(100_000))
	}
	positions := position.NewManager(position.DefaultConfig(), ledger, log)
	reg := core.NewRegistry(core.SymbolSpec{Symbol: btc, QuoteAsset: usdt, MaxLeverage: 100})
	eng := core.NewEngine(reg, positions, ledger, log, core.WithFees(core.FeeSchedule{}))
	fund := in_memory.NewInsuranceFund(0)
	proc := NewProcessor(Deps{
		Engine:         eng,
		Positions:      positions,
		Fund:           fund,
		Counterparties: positions,
		Notifier:       in_memory.NewNotifier(),
		Store:          in_memory.NewResultStore(),
		Alerter:        &in_memory.Alerter{},
	}, Config{MarketTimeout: time.Second}, log)

	submit := func(account string, side domain.Side, ps domain.PositionSide, price, qty int64) *domain.ExecutionReport {
		t.Helper()
		rep, err := eng.Submit(ctx, core.Command{
			AccountID: account, Symbol: btc, Side: side, PositionSide: ps, Type: domain.Limit,
			Price: domain.WholePrice(price), Quantity: domain.WholeQuantity(qty), Leverage: 10,
		})
		require.NoError(t, err)
		return rep
	}
	submit("bob", domain.Sell, domain.Short, 50000, 2)
	submit("alice", domain.Buy, domain.Long, 50000, 2)
	resting := submit("alice", domain.Sell, domain.Long, 60000, 1)
	submit("mm", domain.Buy, domain.Long, 49000, 1)
	submit("mm", domain.Buy, domain.Long, 40000, 1)

	alice, ok := positions.Position(domain.PositionKey{AccountID: "alice", Symbol: btc, Side: domain.Long})
	require.True(t, ok)
	res, err := proc.ExecuteLiquidation(ctx, alice.ID, domain.WholePrice(45000))
	require.NoError(t, err)

	assert.Equal(t, domain.TierMarket, res.Tier)
	assert.Equal(t, domain.WholePrice(44500), res.ClosePrice)
	assert.Equal(t, domain.WholeAmount(10000), res.MarginLoss)
	assert.Equal(t, domain.WholeAmount(1000), res.InsuranceFundLoss)

	o, err := eng.Order(ctx, btc, resting.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.Cancelled, o.Status)

	after, _ := positions.ByID(alice.ID)
	assert.Equal(t, domain.PositionLiquidated, after.State)
	avail, _ := ledger.AvailableBalance(ctx, "alice", usdt)
	assert.Equal(t, domain.WholeAmount(90_000), avail)

	mm, ok := positions.Position(domain.PositionKey{AccountID: "mm", Symbol: btc, Side: domain.Long})
	require.True(t, ok)
	assert.Equal(t, domain.WholeQuantity(2), mm.Quantity)
	assert.Equal(t, domain.WholePrice(44500), mm.EntryPrice)
	bobPos, _ := positions.Position(domain.PositionKey{AccountID: "bob", Symbol: btc, Side: domain.Short})
	assert.Equal(t, mm.Quantity, bobPos.Quantity)

	_, ok = reg.BestBid(btc)
	assert.False(t, ok)
}
