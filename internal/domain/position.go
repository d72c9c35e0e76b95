package domain

import "time"

type PositionState string

const (
	PositionOpen        PositionState = "OPEN"
	PositionLiquidating PositionState = "LIQUIDATING"
	PositionLiquidated  PositionState = "LIQUIDATED"
	PositionClosed      PositionState = "CLOSED"
)

type PositionKey struct {
	AccountID string
	Symbol    Symbol
	Side      PositionSide
}

type Position struct {
	ID               string        `json:"id"`
	AccountID        string        `json:"account_id"`
	Symbol           Symbol        `json:"symbol"`
	Side             PositionSide  `json:"side"`
	Quantity         Quantity      `json:"quantity"`
	EntryPrice       Price         `json:"entry_price"`
	Leverage         int           `json:"leverage"`
	Margin           Amount        `json:"margin"`
	InitialMargin    Amount        `json:"initial_margin"`
	LiquidationPrice Price         `json:"liquidation_price"`
	RealizedPnL      Amount        `json:"realized_pnl"`
	UnrealizedPnL    Amount        `json:"unrealized_pnl"`
	MarkPrice        Price         `json:"mark_price"`
	State            PositionState `json:"state"`
	OpenedAt         time.Time     `json:"opened_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

func (p *Position) Key() PositionKey {
	return PositionKey{AccountID: p.AccountID, Symbol: p.Symbol, Side: p.Side}
}

func (p *Position) IsOpen() bool { return p.State == PositionOpen && p.Quantity > 0 }

// ROI is realized PnL over the margin originally posted, as a Rate.
func (p *Position) ROI() Rate {
	if p.InitialMargin == 0 {
		return 0
	}
	return Rate(MulDiv(int64(p.RealizedPnL), RateScale, int64(p.InitialMargin)))
}

// PositionFill is one trade leg applied to a position.
type PositionFill struct {
	AccountID string
	Symbol    Symbol
	Side      PositionSide
	Opens     bool
	Price     Price
	Quantity  Quantity
	Leverage  int
	Asset     string
}

func (f PositionFill) Key() PositionKey {
	return PositionKey{AccountID: f.AccountID, Symbol: f.Symbol, Side: f.Side}
}

// FundingPayment is the signed amount credited to an account by one funding settlement.
type FundingPayment struct {
	PositionID string
	AccountID  string
	Amount     Amount
}
