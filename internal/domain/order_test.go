package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrder(qty int64) *Order {
	return &Order{
		ID:          1,
		Symbol:      "BTC-PERP",
		Side:        Buy,
		Type:        Limit,
		TimeInForce: GTC,
		Price:       WholePrice(100),
		Quantity:    WholeQuantity(qty),
		Status:      Pending,
	}
}

func TestFillTransitions(t *testing.T) {
	o := newOrder(10)
	now := time.Now()

	o.Fill(WholeQuantity(4), now)
	assert.Equal(t, PartiallyFilled, o.Status)
	assert.Equal(t, WholeQuantity(6), o.Remaining())
	assert.Equal(t, now, o.UpdatedAt)

	later := now.Add(time.Second)
	o.Fill(WholeQuantity(3), later)
	assert.Equal(t, PartiallyFilled, o.Status)
	assert.Equal(t, later, o.UpdatedAt)

	o.Fill(WholeQuantity(3), later)
	assert.Equal(t, Filled, o.Status)
	assert.Zero(t, o.Remaining())
}

func TestFilledToPartiallyFilledIsRejected(t *testing.T) {
	o := newOrder(1)
	o.Fill(WholeQuantity(1), time.Now())
	require.Equal(t, Filled, o.Status)

	before := *o
	err := o.Transition(PartiallyFilled, time.Now().Add(time.Hour))
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, before, *o)
}

func TestTransitionGuards(t *testing.T) {
	o := newOrder(10)
	assert.ErrorIs(t, o.Transition(PartiallyFilled, time.Now()), ErrInvalidTransition)
	assert.ErrorIs(t, o.Transition(Filled, time.Now()), ErrInvalidTransition)

	require.NoError(t, o.Transition(Cancelled, time.Now()))
	assert.ErrorIs(t, o.Transition(Expired, time.Now()), ErrInvalidTransition)
}

func TestOverfillPanics(t *testing.T) {
	o := newOrder(1)
	assert.Panics(t, func() { o.Fill(WholeQuantity(2), time.Now()) })
}

func TestAmend(t *testing.T) {
	o := newOrder(10)
	o.Fill(WholeQuantity(2), time.Now())

	assert.ErrorIs(t, o.Amend(WholeQuantity(2), time.Now()), ErrInvalidQuantity)
	require.NoError(t, o.Amend(WholeQuantity(5), time.Now()))
	assert.Equal(t, WholeQuantity(3), o.Remaining())
}

func TestOpens(t *testing.T) {
	o := newOrder(1)
	o.PositionSide = Long
	assert.True(t, o.Opens())
	o.Side = Sell
	assert.False(t, o.Opens())
	o.PositionSide = Short
	assert.True(t, o.Opens())
}
