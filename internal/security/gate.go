package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"safeguardai/internal/contextutil"
)

var (
	// ErrTooLong is returned when an inbound message exceeds the length cap.
	ErrTooLong = errors.New("message too long")
	// ErrRateLimited is returned when a sender exceeds the request cap.
	ErrRateLimited = errors.New("rate limited")
)

// Rejection carries the user-facing text for a failed security check.
// It wraps one of the sentinel errors above.
type Rejection struct {
	Err         error
	UserMessage string
}

func (r *Rejection) Error() string { return r.Err.Error() }
func (r *Rejection) Unwrap() error { return r.Err }

// Gate runs the inbound message checks: length cap, prompt-injection
// sanitisation, and per-sender rate limiting, in that order, short-circuiting
// on the first failure.
type Gate struct {
	maxLength int
	patterns  []string
	limiter   *RateLimiter
	rateMax   int
}

// NewGate creates a gate with the given message length cap, injection
// patterns to strip, and rate-limit window/cap.
func NewGate(maxLength int, patterns []string, window time.Duration, rateMax int) *Gate {
	lowered := make([]string, len(patterns))
	for i, p := range patterns {
		lowered[i] = strings.ToLower(p)
	}
	return &Gate{
		maxLength: maxLength,
		patterns:  lowered,
		limiter:   NewRateLimiter(window, rateMax),
		rateMax:   rateMax,
	}
}

// Check validates and sanitises an inbound message. On success it returns
// the sanitised message. On failure it returns a *Rejection whose
// UserMessage is sent back to the sender verbatim.
func (g *Gate) Check(ctx context.Context, sender, message string, skipRateLimit bool) (string, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if len(message) > g.maxLength {
		logger.WarnContext(ctx, "message rejected, too long",
			"length", len(message), "limit", g.maxLength)
		return "", &Rejection{
			Err: ErrTooLong,
			UserMessage: fmt.Sprintf(
				"Your message is too long (%d characters).\nPlease keep your question under %d characters.",
				len(message), g.maxLength),
		}
	}

	sanitised := g.Sanitise(ctx, message)

	if !skipRateLimit {
		if !g.limiter.Allow(sender) {
			logger.WarnContext(ctx, "rate limit exceeded",
				"sender", sender, "limit", g.rateMax)
			return "", &Rejection{
				Err: ErrRateLimited,
				UserMessage: fmt.Sprintf(
					"You have exceeded the message limit.\nYou have sent %d messages in the last hour.\nYou can try again in about an hour.\nFor urgent safety concerns, contact your HSE officer directly.",
					g.rateMax),
			}
		}
	}

	logger.InfoContext(ctx, "security checks passed", "sender", sender)
	return sanitised, nil
}

// Sanitise trims the message, drops control characters (keeping newline and
// tab), and removes known prompt-injection phrases case-insensitively,
// logging each removal.
func (g *Gate) Sanitise(ctx context.Context, message string) string {
	logger := contextutil.LoggerFromContext(ctx)

	var b strings.Builder
	for _, r := range strings.TrimSpace(message) {
		if r >= 32 || r == '\n' || r == '\t' {
			b.WriteRune(r)
		}
	}
	sanitised := b.String()

	for _, pattern := range g.patterns {
		for {
			idx := strings.Index(strings.ToLower(sanitised), pattern)
			if idx < 0 {
				break
			}
			preview := sanitised
			if len(preview) > 60 {
				preview = preview[:60]
			}
			logger.WarnContext(ctx, "prompt injection attempt detected",
				"pattern", pattern, "message", preview)
			sanitised = sanitised[:idx] + sanitised[idx+len(pattern):]
		}
	}

	return strings.TrimSpace(sanitised)
}
