// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"crowdfund/pkg/platform/httputil"
)

// Check reports whether a dependency can serve traffic.
type Check func(ctx context.Context) error

// Handler serves /healthz and /readyz.
type Handler struct {
	checks  map[string]Check
	timeout time.Duration
	logger  *slog.Logger
}

// NewHandler builds a Handler. Each readiness check gets timeout to answer.
func NewHandler(logger *slog.Logger, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Handler{checks: map[string]Check{}, timeout: timeout, logger: logger}
}

// AddCheck registers a named readiness check.
func (h *Handler) AddCheck(name string, check Check) {
	h.checks[name] = check
}

// Response is the probe body.
type Response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Register registers the probe routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/healthz", h.Live)
	r.Get("/readyz", h.Ready)
}

// Live always answers 200 while the process runs.
func (h *Handler) Live(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, Response{Status: "ok"})
}

// Ready runs every check in parallel and answers 503 if any fails.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make(map[string]string, len(h.checks))
		failed  bool
	)
	g, gctx := errgroup.WithContext(ctx)
	for name, check := range h.checks {
		g.Go(func() error {
			err := check(gctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = true
				results[name] = "unavailable"
				h.logger.WarnContext(ctx, "readiness check failed", "check", name, "error", err)
				return nil
			}
			results[name] = "ok"
			return nil
		})
	}
	_ = g.Wait()

	if failed {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, Response{Status: "unavailable", Checks: results})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, Response{Status: "ready", Checks: results})
}
