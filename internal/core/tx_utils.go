package core

import (
	"context"
	"fmt"

	"github.com/olyamironova/perp-engine/internal/domain"
	"github.com/olyamironova/perp-engine/internal/port"
)

// withTx runs fn in one repository transaction, rolling back on any error.
func withTx(ctx context.Context, repo port.Repository, fn func(port.Tx) error) (err error) {
	tx, err := repo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// persistBatch writes one batch of events in a single transaction.
func persistBatch(ctx context.Context, repo port.Repository, batch []domain.Event) error {
	var trades []domain.Trade
	var liquidations []*domain.LiquidationResult
	for _, ev := range batch {
		switch ev.Type {
		case domain.EventTrade:
			trades = append(trades, *ev.Trade)
		case domain.EventLiquidation:
			liquidations = append(liquidations, ev.Liquidation)
		}
	}
	return withTx(ctx, repo, func(tx port.Tx) error {
		if len(trades) > 0 {
			if err := tx.SaveTrades(ctx, trades); err != nil {
				return err
			}
		}
		for _, r := range liquidations {
			if err := tx.SaveLiquidation(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
}
