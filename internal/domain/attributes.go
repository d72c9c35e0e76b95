package domain

import "fmt"

type Trigger string
type Algo string

const (
	NoTrigger  Trigger = ""
	StopLoss   Trigger = "STOP_LOSS"
	TakeProfit Trigger = "TAKE_PROFIT"

	NoAlgo  Algo = ""
	TWAP    Algo = "TWAP"
	VWAP    Algo = "VWAP"
	Iceberg Algo = "ICEBERG"
)

// OrderAttributes describes an order kind as independent dimensions rather than one enum.
type OrderAttributes struct {
	Execution    OrderType
	TimeInForce  TimeInForce
	Trigger      Trigger
	TriggerPrice Price
	Algo         Algo
	DisplayQty   Quantity
	Slices       int
	PostOnly     bool
}

// Validate checks that the attribute combination is meaningful. total is the order quantity.
func (a OrderAttributes) Validate(total Quantity) error {
	switch a.Execution {
	case Limit, Market:
	default:
		return fmt.Errorf("%w: execution %q", ErrInvalidOrderKind, a.Execution)
	}
	switch a.TimeInForce {
	case GTC, IOC, FOK, GTD:
	default:
		return fmt.Errorf("%w: time in force %q", ErrInvalidOrderKind, a.TimeInForce)
	}
	if a.Execution == Market && !(a.TimeInForce == IOC || a.TimeInForce == FOK) {
		return fmt.Errorf("%w: market orders must be IOC or FOK", ErrInvalidOrderKind)
	}
	if a.PostOnly && !a.TimeInForce.Rests() {
		return fmt.Errorf("%w: post-only requires a resting time in force", ErrInvalidOrderKind)
	}
	if a.PostOnly && a.Execution == Market {
		return fmt.Errorf("%w: post-only market order", ErrInvalidOrderKind)
	}

	switch a.Trigger {
	case NoTrigger:
	case StopLoss, TakeProfit:
		if a.TriggerPrice <= 0 {
			return fmt.Errorf("%w: %s requires a trigger price", ErrInvalidOrderKind, a.Trigger)
		}
	default:
		return fmt.Errorf("%w: trigger %q", ErrInvalidOrderKind, a.Trigger)
	}

	switch a.Algo {
	case NoAlgo:
	case Iceberg:
		if a.Execution != Limit {
			return fmt.Errorf("%w: iceberg requires a limit order", ErrInvalidOrderKind)
		}
		if a.DisplayQty <= 0 || a.DisplayQty >= total {
			return fmt.Errorf("%w: iceberg display quantity must be in (0, total)", ErrInvalidOrderKind)
		}
	case TWAP, VWAP:
		if a.Execution != Market {
			return fmt.Errorf("%w: %s slices are market orders", ErrInvalidOrderKind, a.Algo)
		}
		if a.Slices <= 0 {
			return fmt.Errorf("%w: %s requires a slice count", ErrInvalidOrderKind, a.Algo)
		}
	default:
		return fmt.Errorf("%w: algo %q", ErrInvalidOrderKind, a.Algo)
	}
	if a.Trigger != NoTrigger && a.Algo != NoAlgo {
		return fmt.Errorf("%w: triggered algo orders", ErrInvalidOrderKind)
	}
	return nil
}

// Executable reports whether the matching engine runs this kind directly. Triggered and
// algorithmic orders are scheduled by an external service that submits plain child orders.
func (a OrderAttributes) Executable() bool {
	return a.Trigger == NoTrigger && a.Algo == NoAlgo
}
