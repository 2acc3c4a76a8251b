package broadcast

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SendGate is the single synchronization point every worker passes before a
// send. It combines a steady rate limit with a shared "resume not before"
// timestamp set when the transport signals a throttle. Two workers must
// never decide "not throttled" off stale state, so the timestamp lives
// behind one mutex.
type SendGate struct {
	lim *rate.Limiter

	mu       sync.Mutex
	resumeAt time.Time
}

func NewSendGate(perSec int) *SendGate {
	if perSec <= 0 {
		perSec = defaultRatePerSec
	}
	return &SendGate{lim: rate.NewLimiter(rate.Limit(perSec), perSec)}
}

// SetRate adjusts the steady rate. Used on config reload.
func (g *SendGate) SetRate(perSec int) {
	if perSec <= 0 {
		perSec = defaultRatePerSec
	}
	g.lim.SetLimit(rate.Limit(perSec))
	g.lim.SetBurst(perSec)
}

// Wait blocks until a send is allowed: any shared pause must have elapsed
// AND the steady limiter must admit the send, checked in a loop because a
// pause can be signalled (or extended) while this worker is parked inside
// the limiter, and the limiter state moves on while a pause is slept off.
func (g *SendGate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		d := time.Until(g.resumeAt)
		g.mu.Unlock()
		if d > 0 {
			tmr := time.NewTimer(d)
			select {
			case <-ctx.Done():
				tmr.Stop()
				return ctx.Err()
			case <-tmr.C:
			}
			continue
		}

		if err := g.lim.Wait(ctx); err != nil {
			return err
		}

		g.mu.Lock()
		paused := time.Now().Before(g.resumeAt)
		g.mu.Unlock()
		if !paused {
			return nil
		}
	}
}

// Pause blocks all sends for at least d from now. Extensions only; a later
// shorter pause never shortens an earlier longer one.
func (g *SendGate) Pause(d time.Duration) {
	if d <= 0 {
		return
	}
	until := time.Now().Add(d)
	g.mu.Lock()
	if until.After(g.resumeAt) {
		g.resumeAt = until
	}
	g.mu.Unlock()
}
