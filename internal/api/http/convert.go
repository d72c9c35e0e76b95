package http

import (
	"github.com/olyamironova/perp-engine/internal/api/dto"
	"github.com/olyamironova/perp-engine/internal/core"
	"github.com/olyamironova/perp-engine/internal/domain"
)

func toCommand(req *dto.SubmitOrderRequest) (core.Command, error) {
	price, err := domain.PriceFromDecimal(req.Price)
	if err != nil {
		return core.Command{}, err
	}
	qty, err := domain.QuantityFromDecimal(req.Quantity)
	if err != nil {
		return core.Command{}, err
	}
	trigger, err := domain.PriceFromDecimal(req.TriggerPrice)
	if err != nil {
		return core.Command{}, err
	}
	display, err := domain.QuantityFromDecimal(req.DisplayQty)
	if err != nil {
		return core.Command{}, err
	}
	cmd := core.Command{
		OrderID:      domain.OrderID(req.OrderID),
		AccountID:    req.AccountID,
		Symbol:       domain.Symbol(req.Symbol),
		Side:         domain.Side(req.Side),
		PositionSide: domain.PositionSide(req.PositionSide),
		Type:         domain.OrderType(req.Type),
		TimeInForce:  domain.TimeInForce(req.TimeInForce),
		Price:        price,
		Quantity:     qty,
		Leverage:     req.Leverage,
		ReduceOnly:   req.ReduceOnly,
		PostOnly:     req.PostOnly,
		Trigger:      domain.Trigger(req.Trigger),
		TriggerPrice: trigger,
		Algo:         domain.Algo(req.Algo),
		DisplayQty:   display,
		Slices:       req.Slices,
	}
	if req.ExpireAt != nil {
		cmd.ExpireAt = *req.ExpireAt
	}
	return cmd, nil
}

func convertTrade(t domain.Trade) dto.Trade {
	return dto.Trade{
		ID:           t.ID,
		Seq:          t.Seq,
		Symbol:       string(t.Symbol),
		Price:        t.Price.Decimal(),
		Quantity:     t.Quantity.Decimal(),
		TakerOrderID: uint64(t.TakerOrderID),
		MakerOrderID: uint64(t.MakerOrderID),
		TakerSide:    string(t.TakerSide),
		TakerFee:     t.TakerFee.Decimal(),
		MakerFee:     t.MakerFee.Decimal(),
		FeeAsset:     t.FeeAsset,
		Timestamp:    t.Timestamp,
	}
}

func convertReport(r *domain.ExecutionReport) dto.ExecutionReport {
	out := dto.ExecutionReport{
		OrderID:        uint64(r.OrderID),
		Status:         string(r.Status),
		OrderStatus:    string(r.OrderStatus),
		FilledQuantity: r.FilledQuantity.Decimal(),
		AveragePrice:   r.AveragePrice.Decimal(),
		Trades:         make([]dto.Trade, 0, len(r.Trades)),
	}
	for _, t := range r.Trades {
		out.Trades = append(out.Trades, convertTrade(t))
	}
	return out
}

func convertOrder(o *domain.Order) dto.Order {
	return dto.Order{
		ID:             uint64(o.ID),
		AccountID:      o.AccountID,
		Symbol:         string(o.Symbol),
		Side:           string(o.Side),
		PositionSide:   string(o.PositionSide),
		Type:           string(o.Type),
		TimeInForce:    string(o.TimeInForce),
		Price:          o.Price.Decimal(),
		Quantity:       o.Quantity.Decimal(),
		FilledQuantity: o.FilledQuantity.Decimal(),
		Leverage:       o.Leverage,
		Status:         string(o.Status),
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

func convertLevels(levels []domain.DepthLevel) []dto.Level {
	out := make([]dto.Level, len(levels))
	for i, l := range levels {
		out[i] = dto.Level{Price: l.Price.Decimal(), Quantity: l.Quantity.Decimal(), Orders: l.Orders}
	}
	return out
}

func convertDepth(s *domain.DepthSnapshot) dto.Depth {
	return dto.Depth{
		Symbol:    string(s.Symbol),
		Bids:      convertLevels(s.Bids),
		Asks:      convertLevels(s.Asks),
		Version:   s.Seq,
		Timestamp: s.Timestamp,
	}
}

func convertPositions(ps []domain.Position) []dto.Position {
	out := make([]dto.Position, 0, len(ps))
	for i := range ps {
		p := &ps[i]
		out = append(out, dto.Position{
			ID:               p.ID,
			AccountID:        p.AccountID,
			Symbol:           string(p.Symbol),
			Side:             string(p.Side),
			Quantity:         p.Quantity.Decimal(),
			EntryPrice:       p.EntryPrice.Decimal(),
			Leverage:         p.Leverage,
			Margin:           p.Margin.Decimal(),
			LiquidationPrice: p.LiquidationPrice.Decimal(),
			MarkPrice:        p.MarkPrice.Decimal(),
			UnrealizedPnL:    p.UnrealizedPnL.Decimal(),
			RealizedPnL:      p.RealizedPnL.Decimal(),
			ROI:              p.ROI().Decimal(),
			State:            string(p.State),
			UpdatedAt:        p.UpdatedAt,
		})
	}
	return out
}

func convertLiquidation(r *domain.LiquidationResult) dto.LiquidationResult {
	out := dto.LiquidationResult{
		ID:                r.ID,
		PositionID:        r.PositionID,
		Symbol:            string(r.Symbol),
		Tier:              string(r.Tier),
		LiquidationPrice:  r.LiquidationPrice.Decimal(),
		ClosePrice:        r.ClosePrice.Decimal(),
		MarginLoss:        r.MarginLoss.Decimal(),
		InsuranceFundLoss: r.InsuranceFundLoss.Decimal(),
		AffectedPositions: make([]dto.AffectedPosition, 0, len(r.AffectedPositions)),
		Timestamp:         r.Timestamp,
	}
	for _, a := range r.AffectedPositions {
		out.AffectedPositions = append(out.AffectedPositions, dto.AffectedPosition{
			PositionID:  a.PositionID,
			AccountID:   a.AccountID,
			Quantity:    a.Quantity.Decimal(),
			Price:       a.Price.Decimal(),
			RealizedPnL: a.RealizedPnL.Decimal(),
		})
	}
	return out
}
