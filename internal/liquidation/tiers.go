package liquidation

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/olyamironova/perp-engine/internal/core"
	"github.com/olyamironova/perp-engine/internal/domain"
)

// step tells the orchestrator whether a tier finished the liquidation or
// whether the next tier has to run.
type step int

const (
	advance step = iota
	done
)

type tierFunc func(ctx context.Context, r *run) (step, error)

// marketTier closes the position with an IOC market order. Whatever fills is
// settled against its pro-rata share of margin; the rest falls through.
func (p *Processor) marketTier(ctx context.Context, r *run) (step, error) {
	ctx, span := tracer.Start(ctx, "liquidation.tier.market")
	defer span.End()

	mctx, cancel := context.WithTimeout(ctx, p.cfg.MarketTimeout)
	defer cancel()

	rep, err := p.Engine.Submit(mctx, core.Command{
		AccountID:    r.pos.AccountID,
		Symbol:       r.pos.Symbol,
		Side:         r.pos.Side.OpeningSide().Opposite(),
		PositionSide: r.pos.Side,
		Type:         domain.Market,
		TimeInForce:  domain.IOC,
		Quantity:     r.pos.Quantity,
		Leverage:     r.pos.Leverage,
		ReduceOnly:   true,
		Liquidation:  true,
	})
	if err != nil {
		span.RecordError(err)
		r.log.WithError(err).Info("market liquidation did not execute, escalating")
		return advance, nil
	}
	span.SetAttributes(attribute.String("filled", rep.FilledQuantity.String()))
	if len(rep.Trades) == 0 {
		r.log.Info("no liquidity for market liquidation, escalating")
		return advance, nil
	}

	account, fund, err := p.Positions.LiquidationFill(ctx, r.pos.ID, rep.Trades)
	if err != nil {
		return advance, fmt.Errorf("settle market liquidation of %s: %w", r.pos.ID, err)
	}
	r.res.MarginLoss = r.res.MarginLoss.Add(account)
	r.res.InsuranceFundLoss = r.res.InsuranceFundLoss.Add(fund)
	r.res.Tier = domain.TierMarket
	r.res.ClosePrice = rep.AveragePrice

	if rep.FilledQuantity < r.pos.Quantity {
		r.log.WithFields(logrus.Fields{
			"filled":   rep.FilledQuantity.String(),
			"quantity": r.pos.Quantity.String(),
		}).Info("market liquidation partially filled, escalating remainder")
		return advance, nil
	}
	return done, nil
}

// insuranceTier hands the remaining position to the insurance fund when its
// capacity covers the remaining margin. The account forfeits that margin; the
// fund's own unwind is settled elsewhere.
func (p *Processor) insuranceTier(ctx context.Context, r *run) (step, error) {
	ctx, span := tracer.Start(ctx, "liquidation.tier.insurance_fund")
	defer span.End()

	capacity, err := p.Fund.CheckCapacity(ctx)
	if err != nil {
		span.RecordError(err)
		r.log.WithError(err).Warn("insurance fund capacity unavailable, escalating")
		return advance, nil
	}
	span.SetAttributes(attribute.String("capacity", capacity.String()), attribute.String("margin", r.pos.Margin.String()))
	if capacity < r.pos.Margin {
		r.log.WithField("capacity", capacity.String()).Info("insurance fund capacity insufficient, escalating")
		return advance, nil
	}

	receipt, err := p.Fund.Takeover(ctx, r.pos)
	if err != nil {
		span.RecordError(err)
		r.log.WithError(err).Warn("insurance fund takeover refused, escalating")
		return advance, nil
	}
	lost, err := p.Positions.Forfeit(ctx, r.pos.ID)
	if err != nil {
		return advance, fmt.Errorf("forfeit margin of %s: %w", r.pos.ID, err)
	}
	r.res.MarginLoss = r.res.MarginLoss.Add(lost)
	r.res.Tier = domain.TierInsuranceFund
	r.res.TakeoverReceipt = receipt.ID
	if r.res.ClosePrice == 0 {
		r.res.ClosePrice = r.res.MarkPrice
	}
	return done, nil
}
