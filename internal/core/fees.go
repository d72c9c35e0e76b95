package core

import "github.com/olyamironova/perp-engine/internal/domain"

// FeeSchedule holds maker and taker rates, charged on trade notional.
type FeeSchedule struct {
	Maker domain.Rate
	Taker domain.Rate
}

func DefaultFees() FeeSchedule {
	return FeeSchedule{Maker: domain.BasisPoints(2), Taker: domain.BasisPoints(5)}
}

func (f FeeSchedule) fee(notional domain.Amount, taker bool) domain.Amount {
	if taker {
		return domain.ApplyRate(notional, f.Taker)
	}
	return domain.ApplyRate(notional, f.Maker)
}

// marginFor is notional/leverage, the same rounding the position manager uses.
func marginFor(notional domain.Amount, leverage int) domain.Amount {
	if leverage <= 0 {
		return notional
	}
	return domain.Amount(int64(notional) / int64(leverage))
}
