// Package ratelimit throttles write endpoints per client IP with a sliding
// window. Windows live in Redis when configured and in process memory
// otherwise, or while Redis is unreachable.
package ratelimit

import (
	"strings"
	"time"
)

// TypeRateLimited is the public error type of a throttled request.
const TypeRateLimited = "RATE_LIMITED"

// Rule is one named limit: at most Limit requests per Window per client.
type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Enabled reports whether the rule limits anything.
func (r Rule) Enabled() bool { return r.Limit > 0 && r.Window > 0 }

// Result is the outcome of one check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter int // seconds, only set when not allowed
}

// bucketKey builds the window key for a rule and client. Client segments are
// sanitized so a crafted value cannot address another rule's bucket.
func bucketKey(rule, client string) string {
	return "ratelimit:" + rule + ":" + strings.ReplaceAll(client, ":", "_")
}

func retryAfter(resetAt, now time.Time) int {
	secs := int(resetAt.Sub(now).Round(time.Second) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
