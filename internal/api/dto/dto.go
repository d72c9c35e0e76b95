package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type SubmitOrderRequest struct {
	OrderID      uint64          `json:"order_id,omitempty"`
	AccountID    string          `json:"account_id" binding:"required"`
	Symbol       string          `json:"symbol" binding:"required"`
	Side         string          `json:"side" binding:"required"`
	PositionSide string          `json:"position_side,omitempty"`
	Type         string          `json:"type" binding:"required"`
	TimeInForce  string          `json:"time_in_force,omitempty"`
	Price        decimal.Decimal `json:"price"` // for limit orders
	Quantity     decimal.Decimal `json:"quantity"`
	Leverage     int             `json:"leverage,omitempty"`
	ReduceOnly   bool            `json:"reduce_only,omitempty"`
	PostOnly     bool            `json:"post_only,omitempty"`
	ExpireAt     *time.Time      `json:"expire_at,omitempty"`

	Trigger      string          `json:"trigger,omitempty"`
	TriggerPrice decimal.Decimal `json:"trigger_price"`
	Algo         string          `json:"algo,omitempty"`
	DisplayQty   decimal.Decimal `json:"display_qty"`
	Slices       int             `json:"slices,omitempty"`
}

type ReplaceOrderRequest struct {
	AccountID string          `json:"account_id" binding:"required"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
}

type ExecutionReport struct {
	OrderID        uint64          `json:"order_id"`
	Status         string          `json:"status"`
	OrderStatus    string          `json:"order_status"`
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
	AveragePrice   decimal.Decimal `json:"average_price"`
	Trades         []Trade         `json:"trades"`
}

type Trade struct {
	ID           string          `json:"id"`
	Seq          uint64          `json:"seq"`
	Symbol       string          `json:"symbol"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	TakerOrderID uint64          `json:"taker_order_id"`
	MakerOrderID uint64          `json:"maker_order_id"`
	TakerSide    string          `json:"taker_side"`
	TakerFee     decimal.Decimal `json:"taker_fee"`
	MakerFee     decimal.Decimal `json:"maker_fee"`
	FeeAsset     string          `json:"fee_asset"`
	Timestamp    time.Time       `json:"timestamp"`
}

type Order struct {
	ID             uint64          `json:"id"`
	AccountID      string          `json:"account_id"`
	Symbol         string          `json:"symbol"`
	Side           string          `json:"side"`
	PositionSide   string          `json:"position_side"`
	Type           string          `json:"type"`
	TimeInForce    string          `json:"time_in_force"`
	Price          decimal.Decimal `json:"price"`
	Quantity       decimal.Decimal `json:"quantity"`
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
	Leverage       int             `json:"leverage"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type Level struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Orders   int             `json:"orders"`
}

type Depth struct {
	Symbol    string    `json:"symbol"`
	Bids      []Level   `json:"bids"`
	Asks      []Level   `json:"asks"`
	Version   uint64    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

type LeverageRequest struct {
	AccountID string `json:"account_id" binding:"required"`
	Symbol    string `json:"symbol" binding:"required"`
	Leverage  int    `json:"leverage" binding:"required"`
}

type Position struct {
	ID               string          `json:"id"`
	AccountID        string          `json:"account_id"`
	Symbol           string          `json:"symbol"`
	Side             string          `json:"side"`
	Quantity         decimal.Decimal `json:"quantity"`
	EntryPrice       decimal.Decimal `json:"entry_price"`
	Leverage         int             `json:"leverage"`
	Margin           decimal.Decimal `json:"margin"`
	LiquidationPrice decimal.Decimal `json:"liquidation_price"`
	MarkPrice        decimal.Decimal `json:"mark_price"`
	UnrealizedPnL    decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnL      decimal.Decimal `json:"realized_pnl"`
	ROI              decimal.Decimal `json:"roi"`
	State            string          `json:"state"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type MarkRequest struct {
	Symbol string          `json:"symbol" binding:"required"`
	Price  decimal.Decimal `json:"price"`
}

type MarkResponse struct {
	Symbol   string     `json:"symbol"`
	Breached []Position `json:"breached"`
}

type LiquidationRequest struct {
	PositionID string          `json:"position_id" binding:"required"`
	MarkPrice  decimal.Decimal `json:"mark_price"`
}

type AffectedPosition struct {
	PositionID  string          `json:"position_id"`
	AccountID   string          `json:"account_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
}

type LiquidationResult struct {
	ID                string             `json:"id"`
	PositionID        string             `json:"position_id"`
	Symbol            string             `json:"symbol"`
	Tier              string             `json:"tier"`
	LiquidationPrice  decimal.Decimal    `json:"liquidation_price"`
	ClosePrice        decimal.Decimal    `json:"close_price"`
	MarginLoss        decimal.Decimal    `json:"margin_loss"`
	InsuranceFundLoss decimal.Decimal    `json:"insurance_fund_loss"`
	AffectedPositions []AffectedPosition `json:"affected_positions"`
	Timestamp         time.Time          `json:"timestamp"`
}

type FundingRequest struct {
	Symbol    string          `json:"symbol" binding:"required"`
	Rate      decimal.Decimal `json:"rate"`
	MarkPrice decimal.Decimal `json:"mark_price"`
}

type FundingPayment struct {
	PositionID string          `json:"position_id"`
	AccountID  string          `json:"account_id"`
	Amount     decimal.Decimal `json:"amount"`
}

type FundingResponse struct {
	Symbol   string           `json:"symbol"`
	Payments []FundingPayment `json:"payments"`
}
