package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cassiomorais/payouts/internal/domain/outbox"
	"github.com/redis/go-redis/v9"
)

// AlertStream is the default stream carrying payout failure alerts.
const AlertStream = "payouts:alerts"

// Event is an outbox entry as carried on a stream.
type Event struct {
	MessageID   string
	EventID     string
	EventType   string
	AggregateID string
	Payload     map[string]any
}

type StreamProducer struct {
	client *redis.Client
	stream string
}

func NewStreamProducer(client *redis.Client, stream string) *StreamProducer {
	if stream == "" {
		stream = AlertStream
	}
	return &StreamProducer{client: client, stream: stream}
}

// Publish appends an outbox entry to the stream.
func (p *StreamProducer) Publish(ctx context.Context, entry *outbox.Entry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"event_id":     entry.ID.String(),
			"event_type":   entry.EventType,
			"aggregate_id": entry.AggregateID.String(),
			"payload":      string(payload),
			"timestamp":    time.Now().Unix(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", entry.EventType, err)
	}
	return nil
}

type StreamConsumer struct {
	client        *redis.Client
	stream        string
	group         string
	consumer      string
	batchSize     int64
	blockDuration time.Duration
}

func NewStreamConsumer(
	client *redis.Client,
	stream string,
	group string,
	consumer string,
	batchSize int64,
	blockDuration time.Duration,
) *StreamConsumer {
	return &StreamConsumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		batchSize:     batchSize,
		blockDuration: blockDuration,
	}
}

func (c *StreamConsumer) CreateGroup(ctx context.Context) error {
	const busyGroupMsg = "BUSYGROUP"
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), busyGroupMsg) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Read blocks for new messages. No messages yields an empty slice and nil error.
func (c *StreamConsumer) Read(ctx context.Context) ([]Event, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    c.batchSize,
		Block:    c.blockDuration,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var events []Event
	for _, s := range streams {
		for _, msg := range s.Messages {
			events = append(events, DecodeEvent(msg))
		}
	}
	return events, nil
}

// ClaimStale takes over messages another consumer read but never acked.
func (c *StreamConsumer) ClaimStale(ctx context.Context, minIdle time.Duration) ([]Event, error) {
	msgs, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    c.batchSize,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to claim messages: %w", err)
	}

	events := make([]Event, 0, len(msgs))
	for _, msg := range msgs {
		events = append(events, DecodeEvent(msg))
	}
	return events, nil
}

func (c *StreamConsumer) Ack(ctx context.Context, messageID string) error {
	if err := c.client.XAck(ctx, c.stream, c.group, messageID).Err(); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

// DecodeEvent converts a raw stream message. A malformed payload leaves Payload nil.
func DecodeEvent(msg redis.XMessage) Event {
	e := Event{MessageID: msg.ID}
	e.EventID, _ = msg.Values["event_id"].(string)
	e.EventType, _ = msg.Values["event_type"].(string)
	e.AggregateID, _ = msg.Values["aggregate_id"].(string)
	if raw, ok := msg.Values["payload"].(string); ok {
		var payload map[string]any
		if err := json.Unmarshal([]byte(raw), &payload); err == nil {
			e.Payload = payload
		}
	}
	return e
}
