package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	dErrors "crowdfund/pkg/domain-errors"
	"crowdfund/pkg/platform/httputil"
	"crowdfund/pkg/platform/middleware/metadata"
	"crowdfund/pkg/requestcontext"
)

// Checker is what the middleware needs from a Limiter.
type Checker interface {
	Allow(ctx context.Context, rule Rule, client string) (*Result, error)
}

// PerClient limits write requests per client IP under rule. The IP comes
// from metadata.ClientMetadata, which only believes forwarding headers from
// trusted proxies. Safe methods are not counted. A nil checker or a disabled
// rule passes everything through. Store errors fail open.
func PerClient(checker Checker, rule Rule, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if checker == nil || !rule.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafe(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			client := requestcontext.ClientIP(ctx)
			if client == "" {
				client = metadata.RemoteIP(r)
			}

			result, err := checker.Allow(ctx, rule, client)
			if err != nil {
				logger.ErrorContext(ctx, "failed to check rate limit",
					"request_id", requestcontext.RequestID(ctx),
					"rule", rule.Name,
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			addHeaders(w, result)
			if !result.Allowed {
				logger.WarnContext(ctx, "rate limit exceeded",
					"request_id", requestcontext.RequestID(ctx),
					"rule", rule.Name,
					"client_ip", client,
				)
				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
				httputil.WriteError(w, dErrors.New(dErrors.CodeTooManyRequests, "Too many requests, please try again later").WithType(TypeRateLimited))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func addHeaders(w http.ResponseWriter, result *Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func isSafe(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
