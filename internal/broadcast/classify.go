package broadcast

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Classification sorts a raw send failure into the retry policy buckets.
type Classification int

const (
	// ClassTransient is a generic I/O hiccup, worth one retry after a
	// short delay.
	ClassTransient Classification = iota
	// ClassRateLimited means the transport asked the whole engine to back
	// off before the next send.
	ClassRateLimited
	// ClassPermanent means this recipient can never be reached (blocked
	// the bot, account gone). No retry.
	ClassPermanent
	// ClassUnknown is everything else; counted as failed and logged.
	ClassUnknown
)

func (c Classification) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassRateLimited:
		return "rate_limited"
	case ClassPermanent:
		return "permanent"
	case ClassUnknown:
		return "unknown"
	}
	return "invalid"
}

// RateLimitedError carries the transport's back-off request.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// ErrRecipientGone marks a permanently unreachable recipient. Transports
// wrap their "blocked"/"deactivated"/"forbidden" failures with it.
var ErrRecipientGone = errors.New("recipient unreachable")

// ErrTransport marks a generic transport failure worth a single retry.
var ErrTransport = errors.New("transport error")

// ErrDirectory marks a failure to enumerate recipients; it aborts a
// broadcast before any send.
var ErrDirectory = errors.New("recipient directory unavailable")

// Classify maps a send failure into its Classification.
func Classify(err error) Classification {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return ClassRateLimited
	}
	if errors.Is(err, ErrRecipientGone) {
		return ClassPermanent
	}
	if errors.Is(err, ErrTransport) {
		return ClassTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ClassTransient
	}
	return ClassUnknown
}

// retryAfter extracts the back-off duration from a rate-limit failure,
// with a floor so a zero answer still backs off a little.
func retryAfter(err error) time.Duration {
	var rl *RateLimitedError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}
	return time.Second
}
