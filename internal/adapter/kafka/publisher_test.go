package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olyamironova/perp-engine/internal/domain"
)

func TestEncodeKeysBySymbol(t *testing.T) {
	ev := domain.Event{
		ID:        "e-1",
		Type:      domain.EventTrade,
		Symbol:    "BTC-PERP",
		Seq:       7,
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Trade:     &domain.Trade{ID: "BTC-PERP-1", Price: domain.WholePrice(50000), Quantity: domain.WholeQuantity(1)},
	}
	msg, err := encode(ev)
	require.NoError(t, err)

	assert.Equal(t, []byte("BTC-PERP"), msg.Key)
	assert.Equal(t, ev.Timestamp, msg.Time)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "event-id", msg.Headers[0].Key)
	assert.Equal(t, []byte("TRADE"), msg.Headers[1].Value)

	var decoded domain.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, uint64(7), decoded.Seq)
	assert.Equal(t, domain.WholePrice(50000), decoded.Trade.Price)
}
