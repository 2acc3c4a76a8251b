package broadcast

import (
	"context"
	"time"
)

// PayloadKind enumerates the supported broadcast media.
type PayloadKind int

const (
	KindText PayloadKind = iota
	KindPhoto
	KindVideo
	KindDocument
)

func (k PayloadKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindPhoto:
		return "photo"
	case KindVideo:
		return "video"
	case KindDocument:
		return "document"
	}
	return "unknown"
}

// Payload is one immutable broadcast message. Text carries the body for
// KindText; FileID references the stored medium for the other kinds, with
// Caption optional.
type Payload struct {
	Kind    PayloadKind
	Text    string
	FileID  string
	Caption string
}

func TextPayload(text string) Payload { return Payload{Kind: KindText, Text: text} }

func PhotoPayload(fileID, caption string) Payload {
	return Payload{Kind: KindPhoto, FileID: fileID, Caption: caption}
}

func VideoPayload(fileID, caption string) Payload {
	return Payload{Kind: KindVideo, FileID: fileID, Caption: caption}
}

func DocumentPayload(fileID, caption string) Payload {
	return Payload{Kind: KindDocument, FileID: fileID, Caption: caption}
}

// JobState tracks a job through its lifecycle. There is no failed or
// cancelled terminal state: a job that started always completes with
// whatever split resulted.
type JobState int

const (
	StatePending JobState = iota
	StateRunning
	StateCompleted
)

// Job is the record of one broadcast run. Mutated only by the engine while
// running; immutable once completed.
type Job struct {
	ID         string
	Initiator  int64
	Kind       PayloadKind
	State      JobState
	Total      int
	Sent       int
	Failed     int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Summary is what the triggering operator gets back.
type Summary struct {
	JobID    string
	Total    int
	Sent     int
	Failed   int
	Duration time.Duration
}

// Config tunes the engine. Zero values fall back to defaults.
type Config struct {
	Workers    int
	RatePerSec int
	RetryDelay time.Duration // wait before the single transient retry
}

const (
	defaultWorkers    = 4
	defaultRatePerSec = 25
	defaultRetryDelay = 250 * time.Millisecond
)

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = defaultRatePerSec
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	return c
}

// RecipientDirectory enumerates every registered recipient.
type RecipientDirectory interface {
	ListRecipients(ctx context.Context) ([]int64, error)
}

// Transport is the single send primitive the engine depends on. Failures
// should be wrapped so Classify can sort them; see classify.go.
type Transport interface {
	Send(ctx context.Context, recipientID int64, p Payload) error
}

// Ledger persists finished jobs. A Record failure never fails the job.
type Ledger interface {
	RecordJob(ctx context.Context, job Job) error
}
