// Package gate evaluates a recipient's membership against the configured
// set of required channels.
//
// The gate is a soft gate, not a security boundary: any requirement that
// cannot be resolved or probed is treated as satisfied (fail-open). This
// mirrors the long-standing production behavior; hardening it to
// fail-closed would lock every user out on the first misconfigured private
// channel. Unresolvable requirements are logged so operators can spot them.
package gate

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"kinobot/pkg/logx"
)

// Requirement identifies one external channel a recipient may be asked to
// join. Public channels are identified by handle (@username); private ones
// must carry the stable ChatID. Position orders display only, never
// evaluation outcome.
type Requirement struct {
	ID       int64
	Title    string
	Handle   string
	ChatID   int64
	Private  bool
	Required bool
	Position int
}

// Membership is the result of one membership probe.
type Membership int

const (
	NotMember Membership = iota
	Member
)

// Result is the outcome of one gate evaluation. Unsatisfied preserves the
// stored requirement order.
type Result struct {
	Allowed     bool
	Unsatisfied []Requirement
}

// RequirementStore lists the configured requirements ordered by position.
type RequirementStore interface {
	ListRequirements(ctx context.Context) ([]Requirement, error)
}

// MembershipProbe checks whether a recipient belongs to a channel.
type MembershipProbe interface {
	GetStatus(ctx context.Context, chatID int64, recipientID int64) (Membership, error)
}

// HandleResolver resolves a public @handle to its stable chat id.
type HandleResolver interface {
	ResolveHandle(ctx context.Context, handle string) (int64, error)
}

const (
	resolveCacheSize = 128
	resolveCacheTTL  = 10 * time.Minute
)

// Evaluator is the channel gate. Stateless across evaluations except for
// the handle resolution cache; gate results themselves are never cached,
// so a requirement added a moment ago applies to the very next call.
type Evaluator struct {
	store    RequirementStore
	probe    MembershipProbe
	resolver HandleResolver
	log      logx.Logger

	handleCache *lru.LRU[string, int64]
}

func NewEvaluator(store RequirementStore, probe MembershipProbe, resolver HandleResolver, log logx.Logger) *Evaluator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Evaluator{
		store:       store,
		probe:       probe,
		resolver:    resolver,
		log:         log,
		handleCache: lru.NewLRU[string, int64](resolveCacheSize, nil, resolveCacheTTL),
	}
}

// Evaluate checks the recipient against every required channel.
//
// Allowed is true iff no required channel probed NotMember. The only error
// returned is a requirement-store failure; probe and resolution failures
// fail open per the package policy.
func (e *Evaluator) Evaluate(ctx context.Context, recipientID int64) (Result, error) {
	reqs, err := e.store.ListRequirements(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(reqs) == 0 {
		return Result{Allowed: true}, nil
	}

	var unsatisfied []Requirement
	for _, r := range reqs {
		if !r.Required {
			continue
		}
		chatID, ok := e.target(ctx, r)
		if !ok {
			// fail-open: unresolvable requirement does not block
			continue
		}
		status, err := e.probe.GetStatus(ctx, chatID, recipientID)
		if err != nil {
			e.log.Warn("membership probe failed; treating as satisfied",
				logx.Int64("chat", chatID), logx.Int64("recipient", recipientID), logx.Err(err))
			continue
		}
		if status != Member {
			unsatisfied = append(unsatisfied, r)
		}
	}

	return Result{Allowed: len(unsatisfied) == 0, Unsatisfied: unsatisfied}, nil
}

// target resolves the effective probe identity for a requirement.
func (e *Evaluator) target(ctx context.Context, r Requirement) (int64, bool) {
	if r.ChatID != 0 {
		return r.ChatID, true
	}
	if r.Private {
		e.log.Warn("private requirement has no chat id; cannot enforce",
			logx.Int64("requirement", r.ID), logx.String("title", r.Title))
		return 0, false
	}
	if r.Handle == "" {
		e.log.Warn("requirement has no handle or chat id; cannot enforce",
			logx.Int64("requirement", r.ID), logx.String("title", r.Title))
		return 0, false
	}
	if id, ok := e.handleCache.Get(r.Handle); ok {
		return id, true
	}
	if e.resolver == nil {
		return 0, false
	}
	id, err := e.resolver.ResolveHandle(ctx, r.Handle)
	if err != nil {
		e.log.Warn("handle resolution failed; treating as satisfied",
			logx.String("handle", r.Handle), logx.Err(err))
		return 0, false
	}
	e.handleCache.Add(r.Handle, id)
	return id, true
}
