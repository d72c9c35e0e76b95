package domain

import "time"

// Trade is the immutable record of one match. Price is always the maker's price.
type Trade struct {
	ID           string    `json:"id"`
	Symbol       Symbol    `json:"symbol"`
	Seq          uint64    `json:"seq"`
	Price        Price     `json:"price"`
	Quantity     Quantity  `json:"quantity"`
	TakerOrderID OrderID   `json:"taker_order_id"`
	MakerOrderID OrderID   `json:"maker_order_id"`
	TakerAccount string    `json:"taker_account"`
	MakerAccount string    `json:"maker_account"`
	TakerSide    Side      `json:"taker_side"`
	TakerFee     Amount    `json:"taker_fee"`
	MakerFee     Amount    `json:"maker_fee"`
	FeeAsset     string    `json:"fee_asset"`
	Timestamp    time.Time `json:"timestamp"`
}

type ExecStatus string

const (
	ExecAccepted        ExecStatus = "ACCEPTED"
	ExecPartiallyFilled ExecStatus = "PARTIALLY_FILLED"
	ExecFilled          ExecStatus = "FILLED"
	ExecCancelled       ExecStatus = "CANCELLED"
)

type ExecutionReport struct {
	OrderID        OrderID
	Status         ExecStatus
	OrderStatus    OrderStatus
	FilledQuantity Quantity
	AveragePrice   Price
	Trades         []Trade
}

// AveragePrice is the quantity-weighted price of trades, or 0 without trades.
func AveragePrice(trades []Trade) Price {
	var qty Quantity
	var notional Amount
	for _, t := range trades {
		qty = qty.Add(t.Quantity)
		notional = notional.Add(Notional(t.Price, t.Quantity))
	}
	if qty == 0 {
		return 0
	}
	return Price(MulDiv(int64(notional), QtyScale, int64(qty)))
}
