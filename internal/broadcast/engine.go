package broadcast

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"kinobot/pkg/logx"
)

// Engine orchestrates one broadcast at a time per Trigger call. It owns the
// in-flight job and all per-recipient scratch state for the duration of a
// run; callers only ever see the final Summary.
type Engine struct {
	mu  sync.Mutex
	cfg Config

	dir       RecipientDirectory
	transport Transport
	ledger    Ledger
	gate      *SendGate
	log       logx.Logger
}

func NewEngine(cfg Config, dir RecipientDirectory, transport Transport, ledger Ledger, log logx.Logger) *Engine {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		cfg:       cfg,
		dir:       dir,
		transport: transport,
		ledger:    ledger,
		gate:      NewSendGate(cfg.RatePerSec),
		log:       log,
	}
}

// Apply swaps the tuning. Worker count takes effect on the next Trigger;
// the rate change applies immediately to the shared gate.
func (e *Engine) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
	e.gate.SetRate(cfg.RatePerSec)
}

func (e *Engine) config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Trigger fans the payload out to every recipient in the directory.
//
// The capability check belongs to the caller; the engine trusts that
// boundary. The only failure that aborts is the directory snapshot; every
// per-recipient error is absorbed into the counts. If ctx is cancelled
// mid-run, recipients never attempted are counted as failed so
// Sent+Failed == Total still holds.
func (e *Engine) Trigger(ctx context.Context, initiator int64, p Payload) (Summary, error) {
	recipients, err := e.dir.ListRecipients(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: %v", ErrDirectory, err)
	}

	cfg := e.config()
	job := Job{
		ID:        uuid.NewString(),
		Initiator: initiator,
		Kind:      p.Kind,
		State:     StatePending,
		Total:     len(recipients),
	}

	job.State = StateRunning
	job.StartedAt = time.Now()
	e.log.Info("broadcast started",
		logx.String("job", job.ID),
		logx.Int64("initiator", initiator),
		logx.String("kind", p.Kind.String()),
		logx.Int("total", job.Total))

	var sent, failed atomic.Int64

	feed := make(chan int64)
	go func() {
		defer close(feed)
		for _, id := range recipients {
			select {
			case feed <- id:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go func() {
			defer wg.Done()
			for id := range feed {
				if e.deliver(ctx, job.ID, id, p, cfg.RetryDelay) {
					sent.Add(1)
				} else {
					failed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	job.Sent = int(sent.Load())
	job.Failed = int(failed.Load())
	if skipped := job.Total - job.Sent - job.Failed; skipped > 0 {
		// cancelled mid-run; unattempted recipients count as failed
		job.Failed += skipped
		e.log.Warn("broadcast cancelled before completion",
			logx.String("job", job.ID), logx.Int("skipped", skipped))
	}
	job.FinishedAt = time.Now()
	job.State = StateCompleted

	sum := Summary{
		JobID:    job.ID,
		Total:    job.Total,
		Sent:     job.Sent,
		Failed:   job.Failed,
		Duration: job.FinishedAt.Sub(job.StartedAt),
	}

	if e.ledger != nil {
		// The job is already complete; a ledger failure is a warning, not
		// a broadcast failure.
		if err := e.ledger.RecordJob(context.WithoutCancel(ctx), job); err != nil {
			e.log.Warn("failed to record broadcast job",
				logx.String("job", job.ID), logx.Err(err))
		}
	}

	if job.Failed > 0 {
		e.log.Warn("broadcast finished with failures",
			logx.String("job", job.ID),
			logx.Int("total", sum.Total), logx.Int("sent", sum.Sent),
			logx.Int("failed", sum.Failed), logx.Duration("dur", sum.Duration))
	} else {
		e.log.Info("broadcast finished",
			logx.String("job", job.ID),
			logx.Int("total", sum.Total), logx.Duration("dur", sum.Duration))
	}

	return sum, nil
}

// deliver makes up to two attempts for one recipient and reports success.
func (e *Engine) deliver(ctx context.Context, jobID string, recipient int64, p Payload, retryDelay time.Duration) bool {
	if err := e.gate.Wait(ctx); err != nil {
		return false
	}
	err := e.transport.Send(ctx, recipient, p)
	if err == nil {
		return true
	}

	switch Classify(err) {
	case ClassPermanent:
		return false

	case ClassRateLimited:
		// The throttle is global: park every worker, then retry this
		// recipient exactly once.
		e.gate.Pause(retryAfter(err))
		return e.retry(ctx, recipient, p)

	case ClassTransient:
		if !sleep(ctx, retryDelay) {
			return false
		}
		return e.retry(ctx, recipient, p)

	default:
		e.log.Warn("unclassified delivery failure",
			logx.String("job", jobID), logx.Int64("recipient", recipient), logx.Err(err))
		return false
	}
}

func (e *Engine) retry(ctx context.Context, recipient int64, p Payload) bool {
	if err := e.gate.Wait(ctx); err != nil {
		return false
	}
	return e.transport.Send(ctx, recipient, p) == nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-tmr.C:
		return true
	}
}
