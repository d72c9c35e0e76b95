package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Fixed-point scales. Price and Amount share a scale so notional = price*qty/QtyScale
// lands directly in quote-asset units.
const (
	PriceScale  int64 = 100_000_000
	QtyScale    int64 = 100_000_000
	AmountScale int64 = 100_000_000
	RateScale   int64 = 1_000_000

	priceDecimals  int32 = 8
	qtyDecimals    int32 = 8
	amountDecimals int32 = 8
	rateDecimals   int32 = 6
)

type (
	Symbol  string
	OrderID uint64

	Price    int64
	Quantity int64
	Amount   int64
	// Rate is expressed in parts per million: 5000 == 0.5%.
	Rate int64
)

type Side string
type PositionSide string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"

	Long  PositionSide = "LONG"
	Short PositionSide = "SHORT"
)

func (s Side) Valid() bool { return s == Buy || s == Sell }

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s PositionSide) Valid() bool { return s == Long || s == Short }

func (s PositionSide) Opposite() PositionSide {
	if s == Long {
		return Short
	}
	return Long
}

// OpeningSide is the order side that adds exposure to a position of this side.
func (s PositionSide) OpeningSide() Side {
	if s == Long {
		return Buy
	}
	return Sell
}

func WholePrice(n int64) Price       { return Price(SafeMul(n, PriceScale)) }
func WholeQuantity(n int64) Quantity { return Quantity(SafeMul(n, QtyScale)) }
func WholeAmount(n int64) Amount     { return Amount(SafeMul(n, AmountScale)) }

// BasisPoints builds a Rate from hundredths of a percent.
func BasisPoints(bp int64) Rate { return Rate(SafeMul(bp, RateScale/10_000)) }

func ParsePrice(s string) (Price, error) {
	v, err := parseScaled(s, priceDecimals)
	return Price(v), err
}

func ParseQuantity(s string) (Quantity, error) {
	v, err := parseScaled(s, qtyDecimals)
	return Quantity(v), err
}

func ParseAmount(s string) (Amount, error) {
	v, err := parseScaled(s, amountDecimals)
	return Amount(v), err
}

func ParseRate(s string) (Rate, error) {
	v, err := parseScaled(s, rateDecimals)
	return Rate(v), err
}

func PriceFromDecimal(d decimal.Decimal) (Price, error) {
	v, err := fromDecimal(d, priceDecimals)
	return Price(v), err
}

func QuantityFromDecimal(d decimal.Decimal) (Quantity, error) {
	v, err := fromDecimal(d, qtyDecimals)
	return Quantity(v), err
}

func AmountFromDecimal(d decimal.Decimal) (Amount, error) {
	v, err := fromDecimal(d, amountDecimals)
	return Amount(v), err
}

func RateFromDecimal(d decimal.Decimal) (Rate, error) {
	v, err := fromDecimal(d, rateDecimals)
	return Rate(v), err
}

func parseScaled(s string, places int32) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	return fromDecimal(d, places)
}

func fromDecimal(d decimal.Decimal, places int32) (int64, error) {
	if !d.Equal(d.Truncate(places)) {
		return 0, fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidNumber, d, places)
	}
	bi := d.Shift(places).BigInt()
	if !bi.IsInt64() {
		return 0, fmt.Errorf("%w: %s out of range", ErrInvalidNumber, d)
	}
	return bi.Int64(), nil
}

func (p Price) Decimal() decimal.Decimal    { return decimal.New(int64(p), -priceDecimals) }
func (q Quantity) Decimal() decimal.Decimal { return decimal.New(int64(q), -qtyDecimals) }
func (a Amount) Decimal() decimal.Decimal   { return decimal.New(int64(a), -amountDecimals) }
func (r Rate) Decimal() decimal.Decimal     { return decimal.New(int64(r), -rateDecimals) }

func (p Price) String() string    { return p.Decimal().String() }
func (q Quantity) String() string { return q.Decimal().String() }
func (a Amount) String() string   { return a.Decimal().String() }
func (r Rate) String() string     { return r.Decimal().String() }

// Text encoding keeps JSON payloads (events, cache entries) in exact decimal form.

func (p Price) MarshalText() ([]byte, error) { return []byte(p.String()), nil }
func (p *Price) UnmarshalText(b []byte) error {
	v, err := ParsePrice(string(b))
	*p = v
	return err
}

func (q Quantity) MarshalText() ([]byte, error) { return []byte(q.String()), nil }
func (q *Quantity) UnmarshalText(b []byte) error {
	v, err := ParseQuantity(string(b))
	*q = v
	return err
}

func (a Amount) MarshalText() ([]byte, error) { return []byte(a.String()), nil }
func (a *Amount) UnmarshalText(b []byte) error {
	v, err := ParseAmount(string(b))
	*a = v
	return err
}

func (r Rate) MarshalText() ([]byte, error) { return []byte(r.String()), nil }
func (r *Rate) UnmarshalText(b []byte) error {
	v, err := ParseRate(string(b))
	*r = v
	return err
}
