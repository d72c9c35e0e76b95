package core

import (
	"context"

	"github.com/olyamironova/perp-engine/internal/domain"
)

// Depth returns aggregated levels for symbol. Cached snapshots are served only
// while they match the current book version.
func (e *Engine) Depth(ctx context.Context, symbol domain.Symbol, levels int) (*domain.DepthSnapshot, error) {
	m, err := e.registry.market(symbol)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		snap, err := e.cache.GetDepth(ctx, symbol)
		if err == nil && snap != nil && snap.Seq == m.version.Load() {
			return trimDepth(snap, levels), nil
		}
	}

	var snap *domain.DepthSnapshot
	err = e.registry.viewMarket(ctx, symbol, func(m *market) error {
		bids, asks := m.book.Depth(e.depthLevels)
		snap = &domain.DepthSnapshot{
			Symbol:    symbol,
			Bids:      bids,
			Asks:      asks,
			Seq:       m.version.Load(),
			Timestamp: e.now(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		if err := e.cache.SetDepth(ctx, symbol, snap.DeepCopy()); err != nil {
			e.log.WithField("symbol", symbol).WithError(err).Warn("depth cache write failed")
		}
	}
	return trimDepth(snap, levels), nil
}

// ResetDepthCache drops snapshots cached by an earlier process. Book versions
// restart at zero, so a stale snapshot could otherwise match a fresh version.
func (e *Engine) ResetDepthCache(ctx context.Context) error {
	if e.cache == nil {
		return nil
	}
	for _, symbol := range e.registry.Symbols() {
		if err := e.cache.Invalidate(ctx, symbol); err != nil {
			return err
		}
	}
	return nil
}

func trimDepth(snap *domain.DepthSnapshot, levels int) *domain.DepthSnapshot {
	out := snap.DeepCopy()
	if levels > 0 {
		if len(out.Bids) > levels {
			out.Bids = out.Bids[:levels]
		}
		if len(out.Asks) > levels {
			out.Asks = out.Asks[:levels]
		}
	}
	return out
}
