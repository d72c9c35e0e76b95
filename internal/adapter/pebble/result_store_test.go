package pebble

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olyamironova/perp-engine/internal/domain"
)

func TestResultStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := OpenInMemory()
	require.NoError(t, err)
	defer s.Close()

	missing, err := s.Load(ctx, "p-1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	res := &domain.LiquidationResult{
		ID:         "r-1",
		PositionID: "p-1",
		Symbol:     "BTC-PERP",
		Tier:       domain.TierADL,
		MarginLoss: domain.WholeAmount(5000),
		AffectedPositions: []domain.AffectedPosition{
			{PositionID: "p-2", AccountID: "bob", Quantity: domain.WholeQuantity(1), Price: domain.WholePrice(45000)},
		},
		Timestamp: time.Unix(1700000000, 0).UTC(),
	}
	require.NoError(t, s.Save(ctx, res))

	got, err := s.Load(ctx, "p-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, res.ID, got.ID)
	assert.Equal(t, domain.TierADL, got.Tier)
	assert.Equal(t, domain.WholeAmount(5000), got.MarginLoss)
	require.Len(t, got.AffectedPositions, 1)
	assert.Equal(t, "bob", got.AffectedPositions[0].AccountID)
	assert.True(t, res.Timestamp.Equal(got.Timestamp))
}
