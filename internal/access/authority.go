// Package access decides which operator may perform which privileged action.
//
// A Principal holds either a FullAccess flag or an explicit capability Set;
// configured owners bypass the store entirely. Store failures are treated as
// "not authorized" so a storage blip can never widen access.
package access

import (
	"context"
	"errors"
	"sync"

	"kinobot/pkg/logx"
)

// ErrNotFound is returned by PrincipalStore when no principal row exists.
var ErrNotFound = errors.New("principal not found")

// ErrNotAuthorized is surfaced by callers when a capability check fails.
var ErrNotAuthorized = errors.New("not authorized")

// Principal is an actor whose authorization is evaluated.
type Principal struct {
	ID         int64
	FullAccess bool
	Caps       Set
}

// Can reports whether the principal holds a capability on its own record
// (owner bypass is applied by Authority, not here).
func (p Principal) Can(c Capability) bool {
	if p.FullAccess {
		return true
	}
	return p.Caps.Has(c)
}

// PrincipalStore loads principal records from persistence.
type PrincipalStore interface {
	LoadPrincipal(ctx context.Context, id int64) (Principal, error)
}

// Authority answers "does principal P hold capability C".
type Authority struct {
	mu     sync.RWMutex
	owners map[int64]struct{}

	store PrincipalStore
	log   logx.Logger
}

// NewAuthority builds an Authority. Owners are passed explicitly from
// configuration; they hold every capability implicitly.
func NewAuthority(owners []int64, store PrincipalStore, log logx.Logger) *Authority {
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Authority{store: store, log: log}
	a.SetOwners(owners)
	return a
}

// SetOwners replaces the owner list. Safe during config hot-reload.
func (a *Authority) SetOwners(owners []int64) {
	m := make(map[int64]struct{}, len(owners))
	for _, id := range owners {
		m[id] = struct{}{}
	}
	a.mu.Lock()
	a.owners = m
	a.mu.Unlock()
}

// IsOwner reports whether id is a configured owner.
func (a *Authority) IsOwner(id int64) bool {
	a.mu.RLock()
	_, ok := a.owners[id]
	a.mu.RUnlock()
	return ok
}

// Authorize reports whether the principal holds the capability.
//
// Owner -> true. Missing record -> false. Store failure -> false (fail
// closed), logged but never surfaced as a crash.
func (a *Authority) Authorize(ctx context.Context, principalID int64, c Capability) bool {
	if a.IsOwner(principalID) {
		return true
	}
	if a.store == nil {
		return false
	}
	p, err := a.store.LoadPrincipal(ctx, principalID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			a.log.Error("principal lookup failed; denying",
				logx.Int64("principal", principalID), logx.Err(err))
		}
		return false
	}
	return p.Can(c)
}

// IsPrivileged reports whether the principal may open the operator surface
// at all: an owner, or any principal with at least one capability.
func (a *Authority) IsPrivileged(ctx context.Context, principalID int64) bool {
	if a.IsOwner(principalID) {
		return true
	}
	if a.store == nil {
		return false
	}
	p, err := a.store.LoadPrincipal(ctx, principalID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			a.log.Error("principal lookup failed; denying",
				logx.Int64("principal", principalID), logx.Err(err))
		}
		return false
	}
	return p.FullAccess || !p.Caps.IsEmpty()
}
