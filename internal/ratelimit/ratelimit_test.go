package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdfund/pkg/platform/circuit"
	"crowdfund/pkg/platform/middleware/metadata"
	"crowdfund/pkg/requestcontext"
	"crowdfund/pkg/testutil"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type steppedClock struct{ t time.Time }

func (c *steppedClock) now() time.Time          { return c.t }
func (c *steppedClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newMemory(clock *steppedClock) *InMemoryStore {
	s := NewInMemoryStore()
	s.now = clock.now
	return s
}

func TestInMemorySlidingWindow(t *testing.T) {
	ctx := context.Background()
	clock := &steppedClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := newMemory(clock)

	for i := range 3 {
		res, err := store.Allow(ctx, "k", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 2-i, res.Remaining)
		clock.advance(10 * time.Second)
	}

	res, err := store.Allow(ctx, "k", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 30, res.RetryAfter, "oldest request leaves the window 30s from now")

	other, err := store.Allow(ctx, "other", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are independent")

	clock.advance(31 * time.Second)
	res, err = store.Allow(ctx, "k", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "first request slid out of the window")
}

func TestInMemoryPrunesIdleWindows(t *testing.T) {
	ctx := context.Background()
	clock := &steppedClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := newMemory(clock)

	_, err := store.Allow(ctx, "idle", 5, time.Second)
	require.NoError(t, err)
	clock.advance(time.Minute)
	for range sweepEvery {
		_, err = store.Allow(ctx, "busy", 1<<20, time.Second)
		require.NoError(t, err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.NotContains(t, store.windows, "idle")
	assert.Contains(t, store.windows, "busy")
}

func TestBucketKeySanitizesClient(t *testing.T) {
	assert.Equal(t, "ratelimit:writes:2001_db8__1", bucketKey("writes", "2001:db8::1"))
}

type flakyStore struct {
	err   error
	calls int
}

func (f *flakyStore) Allow(_ context.Context, _ string, limit int, _ time.Duration) (*Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &Result{Allowed: true, Limit: limit, Remaining: limit - 1}, nil
}

func TestLimiterFallsBackWhileBreakerOpen(t *testing.T) {
	ctx := context.Background()
	primary := &flakyStore{err: errors.New("connection refused")}
	breaker := circuit.New("ratelimit-test", circuit.WithFailureThreshold(2), circuit.WithSuccessThreshold(2))
	limiter := NewLimiter(primary, WithLogger(discard), WithBreaker(breaker))
	rule := Rule{Name: "writes", Limit: 2, Window: time.Minute}

	for range 2 {
		res, err := limiter.Allow(ctx, rule, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	assert.True(t, breaker.IsOpen())

	res, err := limiter.Allow(ctx, rule, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed, "fallback keeps enforcing the limit")

	primary.err = nil
	res, err = limiter.Allow(ctx, rule, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.True(t, breaker.IsOpen(), "one success is not enough to close")

	_, err = limiter.Allow(ctx, rule, "10.0.0.2")
	require.NoError(t, err)
	assert.False(t, breaker.IsOpen())
	assert.Equal(t, 5, primary.calls, "primary is tried on every call")
}

func TestLimiterWithoutPrimaryUsesMemory(t *testing.T) {
	limiter := NewLimiter(nil)
	rule := Rule{Name: "writes", Limit: 1, Window: time.Minute}

	res, err := limiter.Allow(context.Background(), rule, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = limiter.Allow(context.Background(), rule, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func newRouter(checker Checker, rule Rule) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithClientMetadata(r.Context(), r.Header.Get("X-Test-IP"), "")
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	r.Use(PerClient(checker, rule, discard))
	ok := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }
	r.Post("/enrollments", ok)
	r.Get("/enrollments", ok)
	return r
}

func post(t *testing.T, h http.Handler, ip string) int {
	t.Helper()
	req := testutil.NewRequestWithBody(t, http.MethodPost, "/enrollments", "{}")
	req.Header.Set("X-Test-IP", ip)
	return testutil.DoRequest(h, req).Code
}

func TestPerClientMiddleware(t *testing.T) {
	rule := Rule{Name: "writes", Limit: 2, Window: time.Minute}

	t.Run("throttles writes per client", func(t *testing.T) {
		h := newRouter(NewLimiter(nil), rule)
		assert.Equal(t, http.StatusNoContent, post(t, h, "10.0.0.1"))
		assert.Equal(t, http.StatusNoContent, post(t, h, "10.0.0.1"))

		req := testutil.NewRequestWithBody(t, http.MethodPost, "/enrollments", "{}")
		req.Header.Set("X-Test-IP", "10.0.0.1")
		rr := testutil.DoRequest(h, req)
		testutil.AssertStatusAndError(t, rr, http.StatusTooManyRequests, TypeRateLimited)
		assert.NotEmpty(t, rr.Header().Get("Retry-After"))
		assert.Equal(t, "2", rr.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))

		assert.Equal(t, http.StatusNoContent, post(t, h, "10.0.0.2"), "other clients are unaffected")
	})

	t.Run("reads are not counted", func(t *testing.T) {
		h := newRouter(NewLimiter(nil), Rule{Name: "writes", Limit: 1, Window: time.Minute})
		for range 5 {
			req := testutil.NewRequest(t, http.MethodGet, "/enrollments")
			req.Header.Set("X-Test-IP", "10.0.0.1")
			assert.Equal(t, http.StatusNoContent, testutil.DoRequest(h, req).Code)
		}
		assert.Equal(t, http.StatusNoContent, post(t, h, "10.0.0.1"))
	})

	t.Run("disabled rule passes through", func(t *testing.T) {
		h := newRouter(NewLimiter(nil), Rule{Name: "writes"})
		for range 5 {
			assert.Equal(t, http.StatusNoContent, post(t, h, "10.0.0.1"))
		}
	})

	t.Run("checker errors fail open", func(t *testing.T) {
		h := newRouter(failingChecker{}, rule)
		for range 5 {
			assert.Equal(t, http.StatusNoContent, post(t, h, "10.0.0.1"))
		}
	})
}

type failingChecker struct{}

func (failingChecker) Allow(context.Context, Rule, string) (*Result, error) {
	return nil, errors.New("boom")
}

func newProxiedRouter(trusted []netip.Prefix, rule Rule) http.Handler {
	r := chi.NewRouter()
	r.Use(metadata.ClientMetadata(trusted))
	r.Use(PerClient(NewLimiter(nil), rule, discard))
	r.Post("/enrollments", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusCreated) })
	return r
}

func postFrom(t *testing.T, h http.Handler, remote, forwardedFor string) int {
	t.Helper()
	req := testutil.NewRequestWithBody(t, http.MethodPost, "/enrollments", "{}")
	req.RemoteAddr = remote
	req.Header.Set("X-Forwarded-For", forwardedFor)
	return testutil.DoRequest(h, req).Code
}

func TestPerClientKeysOnSocketUnlessProxyTrusted(t *testing.T) {
	rule := Rule{Name: "writes", Limit: 1, Window: time.Minute}

	t.Run("rotating forwarded header from one socket is throttled", func(t *testing.T) {
		h := newProxiedRouter(nil, rule)
		codes := make([]int, 0, 5)
		for i := range 5 {
			codes = append(codes, postFrom(t, h, "203.0.113.7:40000", fmt.Sprintf("10.0.0.%d", i)))
		}
		assert.Equal(t, []int{
			http.StatusCreated,
			http.StatusTooManyRequests,
			http.StatusTooManyRequests,
			http.StatusTooManyRequests,
			http.StatusTooManyRequests,
		}, codes)
	})

	t.Run("new source port is the same client", func(t *testing.T) {
		h := newProxiedRouter(nil, rule)
		assert.Equal(t, http.StatusCreated, postFrom(t, h, "203.0.113.7:40000", ""))
		assert.Equal(t, http.StatusTooManyRequests, postFrom(t, h, "203.0.113.7:40001", ""))
	})

	t.Run("trusted proxy forwards distinct clients", func(t *testing.T) {
		h := newProxiedRouter([]netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}, rule)
		assert.Equal(t, http.StatusCreated, postFrom(t, h, "10.0.0.2:8080", "198.51.100.1"))
		assert.Equal(t, http.StatusCreated, postFrom(t, h, "10.0.0.2:8080", "198.51.100.2"))
		assert.Equal(t, http.StatusTooManyRequests, postFrom(t, h, "10.0.0.2:8080", "spoofed, 198.51.100.1"))
	})
}
