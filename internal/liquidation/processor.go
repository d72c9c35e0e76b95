package liquidation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/olyamironova/perp-engine/internal/core"
	"github.com/olyamironova/perp-engine/internal/domain"
	"github.com/olyamironova/perp-engine/internal/metrics"
	"github.com/olyamironova/perp-engine/internal/port"
)

var tracer = otel.Tracer("liquidation")

// Engine is the order-entry side the cascade submits through.
type Engine interface {
	Submit(ctx context.Context, cmd core.Command) (*domain.ExecutionReport, error)
	CancelAccountOrders(ctx context.Context, symbol domain.Symbol, account string, side domain.PositionSide) ([]domain.OrderID, error)
	EmitLiquidation(ctx context.Context, r *domain.LiquidationResult) error
}

// Positions is the liquidation-facing part of the position manager.
type Positions interface {
	ByID(id string) (domain.Position, bool)
	BeginLiquidation(id string) (domain.Position, error)
	LiquidationFill(ctx context.Context, id string, trades []domain.Trade) (account, fund domain.Amount, err error)
	Forfeit(ctx context.Context, id string) (domain.Amount, error)
	ForceReduce(ctx context.Context, id string, qty domain.Quantity, price domain.Price) (domain.Amount, error)
}

type Config struct {
	// MarketTimeout bounds the Tier-1 market close.
	MarketTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{MarketTimeout: 5 * time.Second}
}

// Deps are the collaborators a Processor drives.
type Deps struct {
	Engine         Engine
	Positions      Positions
	Fund           port.InsuranceFund
	Counterparties port.CounterpartySource
	Notifier       port.Notifier
	Store          port.ResultStore
	Alerter        port.Alerter
}

// Processor runs the market -> insurance fund -> auto-deleveraging cascade.
type Processor struct {
	Deps
	cfg   Config
	log   logrus.FieldLogger
	now   func() time.Time
	group singleflight.Group
}

func NewProcessor(d Deps, cfg Config, log logrus.FieldLogger) *Processor {
	if cfg.MarketTimeout <= 0 {
		cfg.MarketTimeout = DefaultConfig().MarketTimeout
	}
	return &Processor{
		Deps: d,
		cfg:  cfg,
		log:  log.WithField("component", "liquidation"),
		now:  time.Now,
	}
}

// run is the state carried through the tiers.
type run struct {
	pos domain.Position
	res *domain.LiquidationResult
	log logrus.FieldLogger
}

// ExecuteLiquidation liquidates positionID at mark. Repeated calls for a position
// that has already been liquidated return the stored result.
func (p *Processor) ExecuteLiquidation(ctx context.Context, positionID string, mark domain.Price) (*domain.LiquidationResult, error) {
	if mark <= 0 {
		return nil, fmt.Errorf("%w: mark %s", domain.ErrInvalidPrice, mark)
	}
	if prior, err := p.Store.Load(ctx, positionID); err != nil {
		return nil, fmt.Errorf("load liquidation result %s: %w", positionID, err)
	} else if prior != nil {
		return prior, nil
	}

	v, err, _ := p.group.Do(positionID, func() (any, error) {
		return p.execute(ctx, positionID, mark)
	})
	if err != nil {
		return nil, err
	}
	out := *v.(*domain.LiquidationResult)
	return &out, nil
}

func (p *Processor) execute(ctx context.Context, positionID string, mark domain.Price) (*domain.LiquidationResult, error) {
	if prior, err := p.Store.Load(ctx, positionID); err == nil && prior != nil {
		return prior, nil
	}

	ctx, span := tracer.Start(ctx, "liquidation.execute", trace.WithAttributes(
		attribute.String("position.id", positionID),
		attribute.String("mark", mark.String()),
	))
	defer span.End()

	pos, err := p.Positions.BeginLiquidation(positionID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("symbol", string(pos.Symbol)), attribute.String("side", string(pos.Side)))

	r := &run{
		pos: pos,
		res: &domain.LiquidationResult{
			ID:               uuid.NewString(),
			PositionID:       pos.ID,
			AccountID:        pos.AccountID,
			Symbol:           pos.Symbol,
			Side:             pos.Side,
			MarkPrice:        mark,
			LiquidationPrice: pos.LiquidationPrice,
			Quantity:         pos.Quantity,
		},
		log: p.log.WithFields(logrus.Fields{
			"position_id": pos.ID,
			"account":     pos.AccountID,
			"symbol":      pos.Symbol,
			"side":        pos.Side,
		}),
	}

	if ids, err := p.Engine.CancelAccountOrders(ctx, pos.Symbol, pos.AccountID, pos.Side); err != nil {
		r.log.WithError(err).Warn("cancel resting orders before liquidation failed")
	} else if len(ids) > 0 {
		r.log.WithField("orders", len(ids)).Info("cancelled resting orders of liquidated position")
	}

	for _, tier := range []tierFunc{p.marketTier, p.insuranceTier, p.adlTier} {
		step, err := tier(ctx, r)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if step == done {
			break
		}
		if current, ok := p.Positions.ByID(pos.ID); ok {
			r.pos = current
		}
	}

	r.res.Timestamp = p.now()
	if err := p.Store.Save(ctx, r.res); err != nil {
		r.log.WithError(err).Error("store liquidation result failed")
	}
	if err := p.Engine.EmitLiquidation(ctx, r.res); err != nil {
		r.log.WithError(err).Error("emit liquidation event failed")
	}
	metrics.LiquidationsTotal.WithLabelValues(string(pos.Symbol), string(r.res.Tier)).Inc()
	r.log.WithFields(logrus.Fields{
		"tier":                r.res.Tier,
		"margin_loss":         r.res.MarginLoss.String(),
		"insurance_fund_loss": r.res.InsuranceFundLoss.String(),
	}).Info("position liquidated")
	return r.res, nil
}
