package position

import (
	"math"
	"math/bits"

	"github.com/olyamironova/perp-engine/internal/domain"
)

// Params are the risk constants used by the margin formulas.
type Params struct {
	MaintenanceRate    domain.Rate
	LiquidationFeeRate domain.Rate
}

func DefaultParams() Params {
	return Params{
		MaintenanceRate:    domain.BasisPoints(50),
		LiquidationFeeRate: domain.BasisPoints(50),
	}
}

// RequiredMargin is price*qty/leverage.
func RequiredMargin(price domain.Price, qty domain.Quantity, leverage int) domain.Amount {
	return domain.Amount(int64(domain.Notional(price, qty)) / int64(leverage))
}

// BlendedLeverage is the leverage actually carried by a position: notional at
// entry over posted margin, rounded to the nearest whole step and at least 1.
func BlendedLeverage(entry domain.Price, qty domain.Quantity, margin domain.Amount) int {
	if margin <= 0 {
		return 1
	}
	n := int64(domain.Notional(entry, qty))
	return max(1, int((n+int64(margin)/2)/int64(margin)))
}

// LiquidationPrice is entry*(1 - 1/lev + mmr + fee) for longs and
// entry*(1 + 1/lev - mmr - fee) for shorts, evaluated over a common denominator.
func LiquidationPrice(side domain.PositionSide, entry domain.Price, leverage int, p Params) domain.Price {
	rs := domain.RateScale
	lev := int64(leverage)
	var num int64
	if side == domain.Long {
		num = lev*(rs+int64(p.MaintenanceRate)+int64(p.LiquidationFeeRate)) - rs
	} else {
		num = lev*(rs-int64(p.MaintenanceRate)-int64(p.LiquidationFeeRate)) + rs
	}
	return domain.Price(domain.MulDiv(int64(entry), num, lev*rs))
}

// BankruptcyPrice is where the loss equals the posted margin exactly.
func BankruptcyPrice(side domain.PositionSide, entry domain.Price, leverage int) domain.Price {
	lev := int64(leverage)
	if side == domain.Long {
		return domain.Price(domain.MulDiv(int64(entry), lev-1, lev))
	}
	return domain.Price(domain.MulDiv(int64(entry), lev+1, lev))
}

// PnL is (price-entry)*qty for longs and (entry-price)*qty for shorts.
func PnL(side domain.PositionSide, entry, price domain.Price, qty domain.Quantity) domain.Amount {
	diff := domain.Price(domain.SafeSub(int64(price), int64(entry)))
	if side == domain.Short {
		diff = -diff
	}
	return domain.Notional(diff, qty)
}

// WeightedEntry averages the entry price by quantity.
func WeightedEntry(entry domain.Price, qty domain.Quantity, fillPrice domain.Price, fillQty domain.Quantity) domain.Price {
	total := qty.Add(fillQty)
	if total == 0 {
		return 0
	}
	notional := domain.Notional(entry, qty).Add(domain.Notional(fillPrice, fillQty))
	return domain.Price(domain.MulDiv(int64(notional), domain.QtyScale, int64(total)))
}

// ProfitRate is (mark-entry)/entry, sign-adjusted by side, in ppm.
func ProfitRate(side domain.PositionSide, entry, mark domain.Price) domain.Rate {
	if entry == 0 {
		return 0
	}
	diff := domain.SafeSub(int64(mark), int64(entry))
	if side == domain.Short {
		diff = -diff
	}
	return domain.Rate(domain.MulDiv(diff, domain.RateScale, int64(entry)))
}

// EffectiveLeverage is notional/(margin+unrealized) in ppm. A position with no
// remaining equity ranks as infinitely leveraged.
func EffectiveLeverage(notional, margin, unrealized domain.Amount) domain.Rate {
	equity := margin.Add(unrealized)
	if equity <= 0 {
		return domain.Rate(math.MaxInt64)
	}
	return domain.Rate(saturatingMulDiv(int64(notional), domain.RateScale, int64(equity)))
}

// ADLRank orders deleveraging candidates: profit_rate * effective_leverage, in ppm.
// Losing positions rank 0 and saturated ranks clamp to MaxInt64.
func ADLRank(p domain.Position, mark domain.Price) int64 {
	pr := ProfitRate(p.Side, p.EntryPrice, mark)
	if pr <= 0 {
		return 0
	}
	lev := EffectiveLeverage(domain.Notional(mark, p.Quantity), p.Margin, PnL(p.Side, p.EntryPrice, mark, p.Quantity))
	if lev == math.MaxInt64 {
		return math.MaxInt64
	}
	return saturatingMulDiv(int64(pr), int64(lev), domain.RateScale)
}

// saturatingMulDiv is a*b/c for non-negative a, b and positive c, clamped to MaxInt64.
func saturatingMulDiv(a, b, c int64) int64 {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi >= uint64(c) {
		return math.MaxInt64
	}
	q, _ := bits.Div64(hi, lo, uint64(c))
	if q > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(q)
}

// Breached reports whether mark has crossed the liquidation price.
func Breached(p domain.Position, mark domain.Price) bool {
	if p.Side == domain.Long {
		return mark <= p.LiquidationPrice
	}
	return mark >= p.LiquidationPrice
}
