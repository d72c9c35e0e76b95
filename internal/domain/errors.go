package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidNumber         = errors.New("invalid number")
	ErrInvalidQuantity       = errors.New("quantity must be > 0")
	ErrMissingPrice          = errors.New("limit order requires a price")
	ErrInvalidPrice          = errors.New("price must be > 0")
	ErrInvalidLeverage       = errors.New("leverage out of bounds")
	ErrInvalidOrderKind      = errors.New("invalid order attribute combination")
	ErrUnsupportedOrderKind  = errors.New("order kind not executed by the matching engine")
	ErrUnknownSymbol         = errors.New("unknown symbol")
	ErrDuplicateOrderID      = errors.New("duplicate order id")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientLiquidity = errors.New("insufficient book liquidity")
	ErrPostOnlyWouldCross    = errors.New("post-only order would cross the book")
	ErrReduceOnlyViolation   = errors.New("reduce-only order exceeds open position")
	ErrPositionFrozen        = errors.New("position is being liquidated")
	ErrOrderNotFound         = errors.New("order not found")
	ErrOrderAlreadyTerminal  = errors.New("order already in a terminal state")
	ErrInvalidTransition     = errors.New("invalid order status transition")
	ErrPositionNotFound      = errors.New("position not found")
	ErrADLShortfall          = errors.New("auto-deleveraging exhausted counterparties with a shortfall")
)

var reasons = []struct {
	err    error
	reason string
}{
	{ErrInvalidNumber, "INVALID_NUMBER"},
	{ErrInvalidQuantity, "INVALID_QUANTITY"},
	{ErrMissingPrice, "MISSING_PRICE"},
	{ErrInvalidPrice, "INVALID_PRICE"},
	{ErrInvalidLeverage, "INVALID_LEVERAGE"},
	{ErrInvalidOrderKind, "INVALID_ORDER_KIND"},
	{ErrUnsupportedOrderKind, "UNSUPPORTED_ORDER_KIND"},
	{ErrUnknownSymbol, "UNKNOWN_SYMBOL"},
	{ErrDuplicateOrderID, "DUPLICATE_ID"},
	{ErrInsufficientBalance, "INSUFFICIENT_BALANCE"},
	{ErrInsufficientLiquidity, "INSUFFICIENT_LIQUIDITY"},
	{ErrPostOnlyWouldCross, "POST_ONLY_WOULD_CROSS"},
	{ErrReduceOnlyViolation, "REDUCE_ONLY_VIOLATION"},
	{ErrPositionFrozen, "POSITION_FROZEN"},
	{ErrOrderNotFound, "ORDER_NOT_FOUND"},
	{ErrOrderAlreadyTerminal, "ORDER_ALREADY_TERMINAL"},
	{ErrInvalidTransition, "INVALID_TRANSITION"},
	{ErrPositionNotFound, "POSITION_NOT_FOUND"},
	{ErrADLShortfall, "ADL_SHORTFALL"},
}

// RejectReason maps an error to a stable reason code. Unknown errors map to "INTERNAL".
func RejectReason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "INTERNAL"
}

// InvariantViolation is the panic payload for states that correct code never reaches.
type InvariantViolation struct {
	Msg string
}

func (v InvariantViolation) Error() string { return "invariant violation: " + v.Msg }

func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(InvariantViolation{Msg: fmt.Sprintf(format, args...)})
	}
}
