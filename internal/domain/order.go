package domain

import (
	"fmt"
	"time"
)

type OrderType string
type TimeInForce string
type OrderStatus string

const (
	Limit  OrderType = "LIMIT"
	Market OrderType = "MARKET"

	GTC TimeInForce = "GTC"
	IOC TimeInForce = "IOC"
	FOK TimeInForce = "FOK"
	GTD TimeInForce = "GTD"

	Pending         OrderStatus = "PENDING"
	PartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	Filled          OrderStatus = "FILLED"
	Cancelled       OrderStatus = "CANCELLED"
	Rejected        OrderStatus = "REJECTED"
	Expired         OrderStatus = "EXPIRED"
)

// Rests reports whether an unfilled remainder of this time-in-force may sit on the book.
func (t TimeInForce) Rests() bool { return t == GTC || t == GTD }

func (s OrderStatus) Terminal() bool {
	switch s {
	case Filled, Cancelled, Rejected, Expired:
		return true
	}
	return false
}

var transitions = map[OrderStatus][]OrderStatus{
	Pending:         {PartiallyFilled, Filled, Cancelled, Rejected, Expired},
	PartiallyFilled: {Filled, Cancelled, Expired},
}

type Order struct {
	ID             OrderID
	AccountID      string
	Symbol         Symbol
	Side           Side
	PositionSide   PositionSide
	Type           OrderType
	TimeInForce    TimeInForce
	Price          Price
	Quantity       Quantity
	FilledQuantity Quantity
	Leverage       int
	ReduceOnly     bool
	PostOnly       bool
	Liquidation    bool
	ExpireAt       time.Time
	Status         OrderStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (o *Order) Remaining() Quantity { return o.Quantity - o.FilledQuantity }

// Opens reports whether fills of this order add exposure to its position side.
func (o *Order) Opens() bool { return o.Side == o.PositionSide.OpeningSide() }

// Transition is the only way to change an order's status.
func (o *Order) Transition(to OrderStatus, now time.Time) error {
	if o.Status.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	allowed := false
	for _, s := range transitions[o.Status] {
		if s == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	switch to {
	case PartiallyFilled:
		if o.FilledQuantity <= 0 || o.FilledQuantity >= o.Quantity {
			return fmt.Errorf("%w: partial fill requires 0 < filled < total", ErrInvalidTransition)
		}
	case Filled:
		if o.FilledQuantity != o.Quantity {
			return fmt.Errorf("%w: filled requires filled == total", ErrInvalidTransition)
		}
	}
	o.Status = to
	o.UpdatedAt = now
	return nil
}

// Fill records an execution of qty against the order.
func (o *Order) Fill(qty Quantity, now time.Time) {
	Assert(qty > 0, "order %d: non-positive fill %d", o.ID, qty)
	Assert(o.FilledQuantity+qty <= o.Quantity, "order %d: filled %d + %d exceeds total %d", o.ID, o.FilledQuantity, qty, o.Quantity)
	o.FilledQuantity += qty
	target := PartiallyFilled
	if o.FilledQuantity == o.Quantity {
		target = Filled
	}
	if o.Status == target {
		o.UpdatedAt = now
		return
	}
	if err := o.Transition(target, now); err != nil {
		panic(InvariantViolation{Msg: err.Error()})
	}
}

// Amend lowers the total quantity in place. The new total must stay above the filled quantity.
func (o *Order) Amend(qty Quantity, now time.Time) error {
	if o.Status.Terminal() {
		return ErrOrderAlreadyTerminal
	}
	if qty <= o.FilledQuantity {
		return fmt.Errorf("%w: new quantity must exceed filled %s", ErrInvalidQuantity, o.FilledQuantity)
	}
	o.Quantity = qty
	o.UpdatedAt = now
	return nil
}

func (o *Order) Clone() *Order {
	c := *o
	return &c
}
