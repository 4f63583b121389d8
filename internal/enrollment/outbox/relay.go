// Package outbox relays enrollment events from the outbox table to Kafka for
// the settlement layer.
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"crowdfund/internal/enrollment/metrics"
	"crowdfund/internal/platform/kafka"
	id "crowdfund/pkg/domain"
)

// Store is the outbox persistence the relay drains.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	FetchUnpublished(ctx context.Context, limit int) ([]Entry, error)
	MarkPublished(ctx context.Context, ids []id.OutboxID, at time.Time) error
}

// Producer publishes relay messages.
type Producer interface {
	Publish(ctx context.Context, msgs ...kafka.Message) error
}

// Relay polls the outbox and publishes pending events. Delivery is
// at-least-once: a crash between publish and stamp re-sends the batch.
type Relay struct {
	store     Store
	producer  Producer
	logger    *slog.Logger
	metrics   *metrics.Metrics
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets the relay logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics records relayed events and failed ticks.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithBatchSize caps how many rows one tick publishes.
func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithClock overrides the published_at timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRelay builds a relay with a 2s interval and batches of 100.
func NewRelay(store Store, producer Producer, opts ...Option) *Relay {
	r := &Relay{
		store:     store,
		producer:  producer,
		logger:    slog.Default(),
		interval:  2 * time.Second,
		batchSize: 100,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until ctx is cancelled. Failed ticks are logged and retried on
// the next tick.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "outbox relay started",
		"interval", r.interval.String(),
		"batch_size", r.batchSize,
	)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "outbox relay stopped")
			return nil
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
				r.metrics.IncrementRelayFailure()
				r.logger.ErrorContext(ctx, "outbox relay tick failed", "error", err)
			}
		}
	}
}

// Flush publishes one batch and returns how many events were sent.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	var sent int
	err := r.store.RunInTx(ctx, func(ctx context.Context) error {
		entries, err := r.store.FetchUnpublished(ctx, r.batchSize)
		if err != nil {
			return err
		}
		r.metrics.SetBatchSize(len(entries))
		if len(entries) == 0 {
			return nil
		}

		msgs := make([]kafka.Message, 0, len(entries))
		ids := make([]id.OutboxID, 0, len(entries))
		for _, e := range entries {
			msgs = append(msgs, toMessage(e))
			ids = append(ids, e.ID)
		}
		if err := r.producer.Publish(ctx, msgs...); err != nil {
			return fmt.Errorf("publishing %d events: %w", len(msgs), err)
		}
		if err := r.store.MarkPublished(ctx, ids, r.now().UTC()); err != nil {
			return err
		}
		sent = len(entries)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if sent > 0 {
		r.metrics.AddRelayed(sent)
		r.logger.DebugContext(ctx, "outbox batch relayed", "count", sent)
	}
	return sent, nil
}

func toMessage(e Entry) kafka.Message {
	return kafka.Message{
		Key:   e.AggregateID,
		Value: e.Payload,
		Headers: map[string]string{
			"event_type": e.EventType,
			"event_id":   e.ID.String(),
		},
	}
}
