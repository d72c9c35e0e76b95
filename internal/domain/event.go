package domain

import "time"

type EventType string

const (
	EventTrade       EventType = "TRADE"
	EventLiquidation EventType = "LIQUIDATION"
)

// Event envelopes everything the core emits downstream. Seq is monotonic per symbol.
type Event struct {
	ID          string             `json:"id"`
	Type        EventType          `json:"type"`
	Symbol      Symbol             `json:"symbol"`
	Seq         uint64             `json:"seq"`
	Timestamp   time.Time          `json:"timestamp"`
	Trade       *Trade             `json:"trade,omitempty"`
	Liquidation *LiquidationResult `json:"liquidation,omitempty"`
}
