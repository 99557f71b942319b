package redis

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestDecodeEvent(t *testing.T) {
	e := DecodeEvent(redis.XMessage{
		ID: "1-0",
		Values: map[string]any{
			"event_id":     "e1",
			"event_type":   "payout.failed",
			"aggregate_id": "p1",
			"payload":      `{"reason":"invalid IBAN","amount":"120.00"}`,
		},
	})

	assert.Equal(t, "1-0", e.MessageID)
	assert.Equal(t, "e1", e.EventID)
	assert.Equal(t, "payout.failed", e.EventType)
	assert.Equal(t, "p1", e.AggregateID)
	assert.Equal(t, map[string]any{"reason": "invalid IBAN", "amount": "120.00"}, e.Payload)
}

func TestDecodeEvent_MalformedPayload(t *testing.T) {
	e := DecodeEvent(redis.XMessage{ID: "2-0", Values: map[string]any{"payload": "{not json"}})

	assert.Equal(t, "2-0", e.MessageID)
	assert.Nil(t, e.Payload)
	assert.Empty(t, e.EventType)
}
