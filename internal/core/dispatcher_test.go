package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olyamironova/perp-engine/internal/adapter/in_memory"
	"github.com/olyamironova/perp-engine/internal/domain"
	"github.com/olyamironova/perp-engine/internal/logging"
	"github.com/olyamironova/perp-engine/internal/port"
)

func tradeEvent(seq uint64) domain.Event {
	tr := domain.Trade{ID: "t", Symbol: btc, Seq: seq, Price: domain.WholePrice(100), Quantity: domain.WholeQuantity(1), Timestamp: t0}
	return domain.Event{ID: "e", Type: domain.EventTrade, Symbol: btc, Seq: seq, Timestamp: t0, Trade: &tr}
}

func TestDispatcherPersistsThenPublishesInOrder(t *testing.T) {
	repo := in_memory.NewMemoryRepo()
	pub := in_memory.NewPublisher()
	d := NewDispatcher(repo, pub, logging.Discard(), 16)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	for seq := uint64(1); seq <= 5; seq++ {
		d.Enqueue(tradeEvent(seq))
	}
	d.Enqueue(domain.Event{ID: "l", Type: domain.EventLiquidation, Symbol: btc, Seq: 6, Liquidation: &domain.LiquidationResult{ID: "liq-1", Symbol: btc}})

	require.Eventually(t, func() bool { return len(pub.Events()) == 6 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	for i, ev := range pub.Events() {
		assert.Equal(t, uint64(i+1), ev.Seq)
	}
	trades, err := repo.LoadTrades(context.Background(), btc, 0, 0)
	require.NoError(t, err)
	assert.Len(t, trades, 5)
	assert.Len(t, repo.Liquidations(), 1)
}

func TestDispatcherFlushesQueueOnShutdown(t *testing.T) {
	repo := in_memory.NewMemoryRepo()
	d := NewDispatcher(repo, nil, logging.Discard(), 16)
	for seq := uint64(1); seq <= 3; seq++ {
		d.Enqueue(tradeEvent(seq))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = d.Run(ctx)

	trades, err := repo.LoadTrades(context.Background(), btc, 0, 0)
	require.NoError(t, err)
	assert.Len(t, trades, 3)
}

type failingRepo struct {
	*in_memory.MemoryRepo
}

func (failingRepo) BeginTx(ctx context.Context) (port.Tx, error) {
	return nil, errors.New("database unavailable")
}

func TestDispatcherPublishesWhenPersistFails(t *testing.T) {
	pub := in_memory.NewPublisher()
	d := NewDispatcher(failingRepo{in_memory.NewMemoryRepo()}, pub, logging.Discard(), 4)
	d.Enqueue(tradeEvent(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = d.Run(ctx)
	assert.Len(t, pub.Events(), 1)
}

func TestEngineFeedsDispatcher(t *testing.T) {
	log := logging.Discard()
	ledger := in_memory.NewLedger()
	ledger.Deposit("alice", usdt, domain.WholeAmount(1_000))
	ledger.Deposit("bob", usdt, domain.WholeAmount(1_000))

	repo := in_memory.NewMemoryRepo()
	d := NewDispatcher(repo, nil, log, 16)
	reg := NewRegistry(SymbolSpec{Symbol: btc, QuoteAsset: usdt})
	positions := newTestPositions(ledger)
	e := NewEngine(reg, positions, ledger, log, WithEvents(d))

	ctx := context.Background()
	_, err := e.Submit(ctx, limit("bob", domain.Sell, 100, 1))
	require.NoError(t, err)
	_, err = e.Submit(ctx, marketOrder("alice", domain.Buy, 1))
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	cancel()
	_ = d.Run(runCtx)

	trades, err := repo.LoadTrades(ctx, btc, 1, 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, uint64(1), trades[0].Seq)
	assert.Equal(t, "alice", trades[0].TakerAccount)
}

func TestEnqueueAfterShutdownDoesNotBlock(t *testing.T) {
	d := NewDispatcher(nil, nil, logging.Discard(), 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = d.Run(ctx)

	done := make(chan struct{})
	go func() {
		for seq := uint64(1); seq <= 3; seq++ {
			d.Enqueue(tradeEvent(seq))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a stopped dispatcher")
	}
}
