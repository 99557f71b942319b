package notification

import (
	"context"
	"time"

	"github.com/cassiomorais/payouts/internal/domain/outbox"
	infraRedis "github.com/cassiomorais/payouts/internal/infrastructure/redis"
	"github.com/rs/zerolog"
)

// EventSource is the consumer side of the alert stream.
type EventSource interface {
	Read(ctx context.Context) ([]infraRedis.Event, error)
	ClaimStale(ctx context.Context, minIdle time.Duration) ([]infraRedis.Event, error)
	Ack(ctx context.Context, messageID string) error
}

// Recorder receives alert delivery outcomes.
type Recorder interface {
	AlertSent(result string)
}

// Notifier turns payout.failed stream events into operator emails.
// Every event is acked, whether or not the email went out.
type Notifier struct {
	source  EventSource
	mailer  Mailer
	metrics Recorder
	logger  zerolog.Logger
	minIdle time.Duration
}

func NewNotifier(source EventSource, mailer Mailer, metrics Recorder, logger zerolog.Logger) *Notifier {
	return &Notifier{
		source:  source,
		mailer:  mailer,
		metrics: metrics,
		logger:  logger.With().Str("component", "alert_notifier").Logger(),
		minIdle: time.Minute,
	}
}

// Run consumes the stream until ctx is done.
func (n *Notifier) Run(ctx context.Context) error {
	if stale, err := n.source.ClaimStale(ctx, n.minIdle); err != nil {
		n.logger.Warn().Err(err).Msg("Failed to claim stale alerts")
	} else {
		n.Handle(ctx, stale)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		events, err := n.source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			n.logger.Error().Err(err).Msg("Failed to read alert stream")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		n.Handle(ctx, events)
	}
}

// Handle sends one email per payout.failed event and acks each event.
func (n *Notifier) Handle(ctx context.Context, events []infraRedis.Event) {
	for _, ev := range events {
		n.handleOne(ctx, ev)
		if err := n.source.Ack(ctx, ev.MessageID); err != nil {
			n.logger.Error().Err(err).Str("message_id", ev.MessageID).Msg("Failed to ack alert")
		}
	}
}

func (n *Notifier) handleOne(ctx context.Context, ev infraRedis.Event) {
	if ev.EventType != outbox.EventPayoutFailed {
		n.logger.Debug().Str("event_type", ev.EventType).Msg("Ignoring non-alert event")
		return
	}

	a, err := AlertFromPayload(ev.Payload)
	if err != nil {
		n.record("invalid")
		n.logger.Error().Err(err).Str("event_id", ev.EventID).Msg("Malformed alert event")
		return
	}

	if err := n.mailer.Send(ctx, a); err != nil {
		n.record("error")
		n.logger.Error().Err(err).
			Str("payout_id", a.PayoutID).
			Str("event_id", ev.EventID).
			Msg("Failed to send payout failure alert")
		return
	}
	n.record("sent")
	n.logger.Info().Str("payout_id", a.PayoutID).Msg("Payout failure alert sent")
}

func (n *Notifier) record(result string) {
	if n.metrics != nil {
		n.metrics.AlertSent(result)
	}
}
