package domain

import "time"

type LiquidationTier string

const (
	TierMarket        LiquidationTier = "MARKET"
	TierInsuranceFund LiquidationTier = "INSURANCE_FUND"
	TierADL           LiquidationTier = "ADL"
)

type AffectedPosition struct {
	PositionID  string   `json:"position_id"`
	AccountID   string   `json:"account_id"`
	Quantity    Quantity `json:"quantity"`
	Price       Price    `json:"price"`
	RealizedPnL Amount   `json:"realized_pnl"`
}

type LiquidationResult struct {
	ID                string             `json:"id"`
	PositionID        string             `json:"position_id"`
	AccountID         string             `json:"account_id"`
	Symbol            Symbol             `json:"symbol"`
	Side              PositionSide       `json:"side"`
	Tier              LiquidationTier    `json:"tier"`
	MarkPrice         Price              `json:"mark_price"`
	LiquidationPrice  Price              `json:"liquidation_price"`
	ClosePrice        Price              `json:"close_price"`
	Quantity          Quantity           `json:"quantity"`
	MarginLoss        Amount             `json:"margin_loss"`
	InsuranceFundLoss Amount             `json:"insurance_fund_loss"`
	AffectedPositions []AffectedPosition `json:"affected_positions,omitempty"`
	TakeoverReceipt   string             `json:"takeover_receipt,omitempty"`
	Timestamp         time.Time          `json:"timestamp"`
}

type TakeoverReceipt struct {
	ID         string
	PositionID string
	Quantity   Quantity
	Margin     Amount
	At         time.Time
}

// ADLEvent is sent to a counterparty whose position was reduced by auto-deleveraging.
type ADLEvent struct {
	PositionID           string    `json:"position_id"`
	LiquidatedPositionID string    `json:"liquidated_position_id"`
	Symbol               Symbol    `json:"symbol"`
	Quantity             Quantity  `json:"quantity"`
	Price                Price     `json:"price"`
	RealizedPnL          Amount    `json:"realized_pnl"`
	At                   time.Time `json:"at"`
}
