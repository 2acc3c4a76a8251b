package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kinobot/pkg/logx"
)

type fakeDirectory struct {
	ids []int64
	err error
}

func (f *fakeDirectory) ListRecipients(context.Context) ([]int64, error) {
	return f.ids, f.err
}

// scriptedTransport pops one scripted error per send attempt for a
// recipient; an exhausted (or absent) script means success.
type scriptedTransport struct {
	mu       sync.Mutex
	script   map[int64][]error
	sendTime map[int64][]time.Time
}

func newScriptedTransport(script map[int64][]error) *scriptedTransport {
	return &scriptedTransport{script: script, sendTime: map[int64][]time.Time{}}
}

func (f *scriptedTransport) Send(_ context.Context, id int64, _ Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendTime[id] = append(f.sendTime[id], time.Now())
	q := f.script[id]
	if len(q) == 0 {
		return nil
	}
	err := q[0]
	f.script[id] = q[1:]
	return err
}

func (f *scriptedTransport) attempts(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sendTime[id])
}

type recordingLedger struct {
	mu   sync.Mutex
	jobs []Job
	err  error
}

func (l *recordingLedger) RecordJob(_ context.Context, job Job) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.jobs = append(l.jobs, job)
	return l.err
}

func ids(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(i + 1)
	}
	return out
}

func testConfig() Config {
	return Config{Workers: 3, RatePerSec: 1000, RetryDelay: 5 * time.Millisecond}
}

func TestTrigger_AllSucceed(t *testing.T) {
	tr := newScriptedTransport(nil)
	led := &recordingLedger{}
	e := NewEngine(testConfig(), &fakeDirectory{ids: ids(10)}, tr, led, logx.Nop())

	sum, err := e.Trigger(context.Background(), 1, TextPayload("hi"))
	require.NoError(t, err)
	assert.Equal(t, 10, sum.Total)
	assert.Equal(t, 10, sum.Sent)
	assert.Equal(t, 0, sum.Failed)

	require.Len(t, led.jobs, 1)
	job := led.jobs[0]
	assert.Equal(t, StateCompleted, job.State)
	assert.Equal(t, 10, job.Total)
	assert.False(t, job.FinishedAt.IsZero())
}

func TestTrigger_PermanentFailuresCounted(t *testing.T) {
	// N recipients, K permanently gone: sent == N-K, failed == K.
	script := map[int64][]error{
		2: {ErrRecipientGone},
		5: {ErrRecipientGone},
		7: {ErrRecipientGone},
	}
	tr := newScriptedTransport(script)
	e := NewEngine(testConfig(), &fakeDirectory{ids: ids(9)}, tr, nil, logx.Nop())

	sum, err := e.Trigger(context.Background(), 1, TextPayload("hi"))
	require.NoError(t, err)
	assert.Equal(t, 9, sum.Total)
	assert.Equal(t, 6, sum.Sent)
	assert.Equal(t, 3, sum.Failed)
	assert.Equal(t, sum.Total, sum.Sent+sum.Failed)
	// No retry for permanent failures.
	assert.Equal(t, 1, tr.attempts(2))
}

func TestTrigger_TransientRetriedOnce(t *testing.T) {
	script := map[int64][]error{
		1: {ErrTransport},               // succeeds on retry
		2: {ErrTransport, ErrTransport}, // fails both attempts
	}
	tr := newScriptedTransport(script)
	e := NewEngine(testConfig(), &fakeDirectory{ids: ids(2)}, tr, nil, logx.Nop())

	sum, err := e.Trigger(context.Background(), 1, TextPayload("hi"))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Sent)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 2, tr.attempts(1))
	assert.Equal(t, 2, tr.attempts(2))
}

func TestTrigger_UnknownFailsImmediately(t *testing.T) {
	script := map[int64][]error{
		1: {errors.New("weird response")},
	}
	tr := newScriptedTransport(script)
	e := NewEngine(testConfig(), &fakeDirectory{ids: ids(1)}, tr, nil, logx.Nop())

	sum, err := e.Trigger(context.Background(), 1, TextPayload("hi"))
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Sent)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, tr.attempts(1))
}

func TestTrigger_RateLimitPausesWholeEngine(t *testing.T) {
	// Scenario: 5 recipients, #3 is gone, #5 gets throttled then succeeds
	// on retry. Expect {total:5, sent:4, failed:1} and no send anywhere
	// after the throttle signal until retryAfter elapsed.
	const backoff = 120 * time.Millisecond
	script := map[int64][]error{
		3: {ErrRecipientGone},
		5: {&RateLimitedError{RetryAfter: backoff}},
	}
	tr := newScriptedTransport(script)
	cfg := testConfig()
	// One worker keeps attempt order deterministic for the timing check.
	cfg.Workers = 1
	e := NewEngine(cfg, &fakeDirectory{ids: ids(5)}, tr, nil, logx.Nop())

	sum, err := e.Trigger(context.Background(), 1, TextPayload("hi"))
	require.NoError(t, err)
	assert.Equal(t, 5, sum.Total)
	assert.Equal(t, 4, sum.Sent)
	assert.Equal(t, 1, sum.Failed)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	throttledAt := tr.sendTime[5][0]
	resume := throttledAt.Add(backoff)
	for id, times := range tr.sendTime {
		for i, ts := range times {
			if ts.After(throttledAt) {
				assert.False(t, ts.Before(resume),
					"recipient %d attempt %d sent during the pause", id, i)
			}
		}
	}
}

func TestTrigger_DirectoryFailureAborts(t *testing.T) {
	tr := newScriptedTransport(nil)
	led := &recordingLedger{}
	e := NewEngine(testConfig(), &fakeDirectory{err: errors.New("connrefused")}, tr, led, logx.Nop())

	_, err := e.Trigger(context.Background(), 1, TextPayload("hi"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDirectory)
	assert.Empty(t, led.jobs, "aborted job must not reach the ledger")
}

func TestTrigger_LedgerFailureDoesNotChangeSummary(t *testing.T) {
	tr := newScriptedTransport(nil)
	led := &recordingLedger{err: errors.New("disk full")}
	e := NewEngine(testConfig(), &fakeDirectory{ids: ids(3)}, tr, led, logx.Nop())

	sum, err := e.Trigger(context.Background(), 1, TextPayload("hi"))
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Sent)
}

func TestTrigger_CancellationKeepsAccounting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := newScriptedTransport(nil)
	e := NewEngine(testConfig(), &fakeDirectory{ids: ids(50)}, tr, nil, logx.Nop())

	sum, err := e.Trigger(ctx, 1, TextPayload("hi"))
	require.NoError(t, err)
	assert.Equal(t, 50, sum.Total)
	assert.Equal(t, sum.Total, sum.Sent+sum.Failed)
}

func TestTrigger_EmptyDirectory(t *testing.T) {
	tr := newScriptedTransport(nil)
	led := &recordingLedger{}
	e := NewEngine(testConfig(), &fakeDirectory{}, tr, led, logx.Nop())

	sum, err := e.Trigger(context.Background(), 1, TextPayload("hi"))
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Total)
	require.Len(t, led.jobs, 1)
}

func TestApply_ChangesTakeEffect(t *testing.T) {
	e := NewEngine(testConfig(), &fakeDirectory{ids: ids(1)}, newScriptedTransport(nil), nil, logx.Nop())
	e.Apply(Config{Workers: 8, RatePerSec: 50})
	assert.Equal(t, 8, e.config().Workers)
	assert.Equal(t, 50, e.config().RatePerSec)
	// Zero values fall back to defaults.
	e.Apply(Config{})
	assert.Equal(t, defaultWorkers, e.config().Workers)
}
