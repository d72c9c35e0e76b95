package liquidation

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/olyamironova/perp-engine/internal/domain"
	"github.com/olyamironova/perp-engine/internal/metrics"
	"github.com/olyamironova/perp-engine/internal/port"
	"github.com/olyamironova/perp-engine/internal/position"
)

type candidate struct {
	pos  domain.Position
	rank int64
}

// rankCounterparties keeps profitable opposite positions of other accounts,
// highest rank first. Ties go to the larger position, then the lower id.
func rankCounterparties(cands []domain.Position, liquidated domain.Position, mark domain.Price) []candidate {
	out := make([]candidate, 0, len(cands))
	for _, c := range cands {
		if c.AccountID == liquidated.AccountID || c.Side == liquidated.Side || !c.IsOpen() {
			continue
		}
		rank := position.ADLRank(c, mark)
		if rank <= 0 {
			continue
		}
		out = append(out, candidate{pos: c, rank: rank})
	}
	slices.SortFunc(out, func(a, b candidate) int {
		if c := cmp.Compare(b.rank, a.rank); c != 0 {
			return c
		}
		if c := cmp.Compare(b.pos.Quantity, a.pos.Quantity); c != 0 {
			return c
		}
		return cmp.Compare(a.pos.ID, b.pos.ID)
	})
	return out
}

// adlTier force-closes ranked counterparties at the liquidated position's
// bankruptcy price until its quantity is covered. Running out of counterparties
// is fatal and leaves the position frozen for manual handling.
func (p *Processor) adlTier(ctx context.Context, r *run) (step, error) {
	ctx, span := tracer.Start(ctx, "liquidation.tier.adl")
	defer span.End()

	bankrupt := position.BankruptcyPrice(r.pos.Side, r.pos.EntryPrice, r.pos.Leverage)
	found, err := p.Counterparties.FindCounterparties(ctx, r.pos.Symbol, r.pos.Side.Opposite())
	if err != nil {
		return advance, p.shortfall(ctx, r, r.pos.Quantity, fmt.Errorf("find counterparties: %w", err))
	}
	ranked := rankCounterparties(found, r.pos, r.res.MarkPrice)
	span.SetAttributes(attribute.Int("candidates", len(ranked)), attribute.String("bankruptcy_price", bankrupt.String()))

	var available domain.Quantity
	for _, c := range ranked {
		available = available.Add(c.pos.Quantity)
	}
	if available < r.pos.Quantity {
		return advance, p.shortfall(ctx, r, r.pos.Quantity.Sub(available), nil)
	}

	remaining := r.pos.Quantity
	for _, c := range ranked {
		if remaining == 0 {
			break
		}
		qty := domain.MinQuantity(remaining, c.pos.Quantity)
		realized, err := p.Positions.ForceReduce(ctx, c.pos.ID, qty, bankrupt)
		if err != nil {
			r.log.WithError(err).WithField("counterparty", c.pos.ID).Warn("deleverage counterparty failed, trying next")
			continue
		}
		remaining = remaining.Sub(qty)
		// resting reducing orders may now exceed what is left of the position
		if _, err := p.Engine.CancelAccountOrders(ctx, r.pos.Symbol, c.pos.AccountID, c.pos.Side); err != nil {
			r.log.WithError(err).WithField("counterparty", c.pos.ID).Warn("cancel orders of deleveraged account failed")
		}
		r.res.AffectedPositions = append(r.res.AffectedPositions, domain.AffectedPosition{
			PositionID:  c.pos.ID,
			AccountID:   c.pos.AccountID,
			Quantity:    qty,
			Price:       bankrupt,
			RealizedPnL: realized,
		})
		ev := domain.ADLEvent{
			PositionID:           c.pos.ID,
			LiquidatedPositionID: r.pos.ID,
			Symbol:               r.pos.Symbol,
			Quantity:             qty,
			Price:                bankrupt,
			RealizedPnL:          realized,
			At:                   p.now(),
		}
		if err := p.Notifier.Notify(ctx, c.pos.AccountID, ev); err != nil {
			r.log.WithError(err).WithField("counterparty", c.pos.ID).Warn("notify deleveraged account failed")
		}
	}
	if remaining > 0 {
		return advance, p.shortfall(ctx, r, remaining, nil)
	}

	lost, err := p.Positions.Forfeit(ctx, r.pos.ID)
	if err != nil {
		return advance, fmt.Errorf("forfeit margin of %s: %w", r.pos.ID, err)
	}
	r.res.MarginLoss = r.res.MarginLoss.Add(lost)
	r.res.Tier = domain.TierADL
	r.res.ClosePrice = bankrupt
	return done, nil
}

// shortfall raises the operator alert for an uncovered deleveraging and returns
// the error that aborts the cascade.
func (p *Processor) shortfall(ctx context.Context, r *run, uncovered domain.Quantity, cause error) error {
	err := fmt.Errorf("%w: %s of %s uncovered on %s", domain.ErrADLShortfall, uncovered, r.pos.Quantity, r.pos.ID)
	if cause != nil {
		err = fmt.Errorf("%w: %v", err, cause)
	}
	metrics.ADLShortfallTotal.WithLabelValues(string(r.pos.Symbol)).Inc()
	metrics.CriticalAlerts.WithLabelValues("adl_shortfall").Inc()
	r.log.WithFields(logrus.Fields{"uncovered": uncovered.String()}).WithError(err).Error("auto-deleveraging shortfall")
	if p.Alerter != nil {
		p.Alerter.Critical(ctx, port.Alert{
			Kind:    "adl_shortfall",
			Symbol:  r.pos.Symbol,
			Message: err.Error(),
			Fields: map[string]any{
				"position_id": r.pos.ID,
				"account":     r.pos.AccountID,
				"uncovered":   uncovered.String(),
			},
		})
	}
	return err
}
