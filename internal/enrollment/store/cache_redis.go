package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"crowdfund/internal/enrollment/models"
	id "crowdfund/pkg/domain"
)

// Backend is the directory store contract the cache decorates.
type Backend interface {
	Insert(ctx context.Context, v models.Validated) (*models.Enrollment, error)
	FindByID(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error)
	HandleExists(ctx context.Context, handle string) (bool, error)
	Scan(ctx context.Context, p models.ScanParams) ([]*models.Enrollment, error)
	MarkPublished(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error)
	Ping(ctx context.Context) error
}

// CacheObserver receives cache hit and miss signals.
type CacheObserver interface {
	IncrementCacheHit()
	IncrementCacheMiss()
}

// Cached is a read-through Redis cache in front of a Backend. Only detail
// lookups are cached; listings always hit the backend. Redis failures fall
// back to the backend and are logged, never returned.
//
// Fills use SET NX and MarkPublished writes the updated record through, so a
// fill racing a publish cannot replace the published copy with the older one.
// This holds because published_on_chain only moves from false to true.
type Cached struct {
	next     Backend
	rdb      redis.Cmdable
	ttl      time.Duration
	logger   *slog.Logger
	observer CacheObserver
}

// CacheOption configures a Cached store.
type CacheOption func(*Cached)

// WithCacheLogger sets the logger used for Redis failures.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *Cached) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCacheObserver records hits and misses.
func WithCacheObserver(o CacheObserver) CacheOption {
	return func(c *Cached) {
		c.observer = o
	}
}

// NewCached wraps next with a Redis cache of the given TTL.
func NewCached(next Backend, rdb redis.Cmdable, ttl time.Duration, opts ...CacheOption) *Cached {
	c := &Cached{
		next:   next,
		rdb:    rdb,
		ttl:    ttl,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func cacheKey(enrollmentID id.EnrollmentID) string {
	return "enrollment:" + enrollmentID.String()
}

// Insert passes through. New records are not pre-warmed.
func (c *Cached) Insert(ctx context.Context, v models.Validated) (*models.Enrollment, error) {
	return c.next.Insert(ctx, v)
}

// FindByID serves from Redis when possible and fills the cache on a miss
// unless another writer got there first. Not-found results are not cached.
func (c *Cached) FindByID(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error) {
	key := cacheKey(enrollmentID)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var e models.Enrollment
		if jsonErr := json.Unmarshal(raw, &e); jsonErr == nil {
			c.hit()
			return &e, nil
		}
		c.logger.WarnContext(ctx, "discarding corrupt cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "cache read failed", "key", key, "error", err)
	}
	c.miss()

	e, err := c.next.FindByID(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if payload, jsonErr := json.Marshal(e); jsonErr == nil {
		if setErr := c.rdb.SetNX(ctx, key, payload, c.ttl).Err(); setErr != nil {
			c.logger.WarnContext(ctx, "cache write failed", "key", key, "error", setErr)
		}
	}
	return e, nil
}

// HandleExists passes through; uniqueness must see committed state.
func (c *Cached) HandleExists(ctx context.Context, handle string) (bool, error) {
	return c.next.HandleExists(ctx, handle)
}

// Scan passes through.
func (c *Cached) Scan(ctx context.Context, p models.ScanParams) ([]*models.Enrollment, error) {
	return c.next.Scan(ctx, p)
}

// MarkPublished updates the backend and writes the published record through.
// If the write fails the entry is evicted instead.
func (c *Cached) MarkPublished(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error) {
	e, err := c.next.MarkPublished(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	key := cacheKey(enrollmentID)
	payload, err := json.Marshal(e)
	if err == nil {
		err = c.rdb.Set(ctx, key, payload, c.ttl).Err()
	}
	if err == nil {
		return e, nil
	}
	c.logger.WarnContext(ctx, "cache write-through failed", "key", key, "error", err)
	if delErr := c.rdb.Del(ctx, key).Err(); delErr != nil {
		c.logger.WarnContext(ctx, "cache eviction failed", "enrollment_id", enrollmentID.String(), "error", delErr)
	}
	return e, nil
}

// Ping checks both Redis and the backend.
func (c *Cached) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return err
	}
	return c.next.Ping(ctx)
}

func (c *Cached) hit() {
	if c.observer != nil {
		c.observer.IncrementCacheHit()
	}
}

func (c *Cached) miss() {
	if c.observer != nil {
		c.observer.IncrementCacheMiss()
	}
}
