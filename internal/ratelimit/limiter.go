package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"crowdfund/pkg/platform/circuit"
)

// Store records requests in a sliding window.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// Limiter checks rules against a primary store. Primary errors trip a
// breaker; while it is open, answers come from the in-memory fallback.
// The primary is still consulted on every call so the breaker can close.
type Limiter struct {
	primary  Store
	fallback Store
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(l *Limiter) {
		if b != nil {
			l.breaker = b
		}
	}
}

// NewLimiter returns a Limiter over primary. A nil primary limits in memory only.
func NewLimiter(primary Store, opts ...Option) *Limiter {
	fallback := NewInMemoryStore()
	if primary == nil {
		primary = fallback
	}
	l := &Limiter{
		primary:  primary,
		fallback: fallback,
		breaker:  circuit.New("ratelimit"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow records one request by client against rule.
func (l *Limiter) Allow(ctx context.Context, rule Rule, client string) (*Result, error) {
	key := bucketKey(rule.Name, client)
	if l.primary == l.fallback {
		return l.fallback.Allow(ctx, key, rule.Limit, rule.Window)
	}

	res, err := l.primary.Allow(ctx, key, rule.Limit, rule.Window)
	if err != nil {
		_, change := l.breaker.RecordFailure()
		if change.Opened {
			l.logger.WarnContext(ctx, "rate limit store unavailable, limiting in memory",
				"breaker", l.breaker.Name(),
				"error", err,
			)
		} else {
			l.logger.DebugContext(ctx, "rate limit store error", "error", err)
		}
		return l.fallback.Allow(ctx, key, rule.Limit, rule.Window)
	}

	usePrimary, change := l.breaker.RecordSuccess()
	if change.Closed {
		l.logger.InfoContext(ctx, "rate limit store recovered", "breaker", l.breaker.Name())
	}
	if !usePrimary {
		return l.fallback.Allow(ctx, key, rule.Limit, rule.Window)
	}
	return res, nil
}
