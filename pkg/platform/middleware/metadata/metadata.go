package metadata

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/mssola/useragent"

	"crowdfund/pkg/requestcontext"
)

// ClientMetadata extracts client IP address and User-Agent from the request
// and adds them to the context for use by handlers and services.
// Forwarding headers are honored only when the direct peer is inside one of
// the trusted proxy prefixes. This middleware should be applied early in the chain.
func ClientMetadata(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r, trusted), r.Header.Get("User-Agent"))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientAttrs summarizes a raw User-Agent into log attributes. Bots are
// flagged so enrollment spam is easy to filter in logs.
func ClientAttrs(rawUA string) []any {
	if rawUA == "" {
		return []any{slog.String("client", "unknown")}
	}
	ua := useragent.New(rawUA)
	browser, version := ua.Browser()
	return []any{
		slog.String("client", strings.TrimSpace(browser+" "+version)),
		slog.String("platform", ua.OS()),
		slog.Bool("mobile", ua.Mobile()),
		slog.Bool("bot", ua.Bot()),
	}
}

// ClientIPFromRequest returns the client address. X-Forwarded-For and
// X-Real-IP are read only when the socket peer is a trusted proxy; the
// forwarded chain is walked from the right and the first untrusted hop wins,
// so hops a client prepends itself are never reached.
func ClientIPFromRequest(r *http.Request, trusted []netip.Prefix) string {
	remote := RemoteIP(r)
	if !isTrusted(remote, trusted) {
		return remote
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if i == 0 || !isTrusted(hop, trusted) {
				return hop
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return remote
}

// RemoteIP is the socket peer address without its port.
func RemoteIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if addr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}

func isTrusted(ip string, trusted []netip.Prefix) bool {
	if len(trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
