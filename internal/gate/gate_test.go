package gate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kinobot/pkg/logx"
)

type fakeStore struct {
	reqs []Requirement
	err  error
}

func (f *fakeStore) ListRequirements(context.Context) ([]Requirement, error) {
	return f.reqs, f.err
}

type fakeProbe struct {
	member map[int64]bool // chatID -> membership for the probed recipient
	err    map[int64]error
	calls  []int64
}

func (f *fakeProbe) GetStatus(_ context.Context, chatID, _ int64) (Membership, error) {
	f.calls = append(f.calls, chatID)
	if err := f.err[chatID]; err != nil {
		return NotMember, err
	}
	if f.member[chatID] {
		return Member, nil
	}
	return NotMember, nil
}

type fakeResolver struct {
	handles map[string]int64
	err     error
	calls   int
}

func (f *fakeResolver) ResolveHandle(_ context.Context, handle string) (int64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	id, ok := f.handles[handle]
	if !ok {
		return 0, errors.New("unknown handle")
	}
	return id, nil
}

func newEvaluator(store *fakeStore, probe *fakeProbe, resolver *fakeResolver) *Evaluator {
	return NewEvaluator(store, probe, resolver, logx.Nop())
}

func TestEvaluate_EmptyRequirementsAllows(t *testing.T) {
	e := newEvaluator(&fakeStore{}, &fakeProbe{}, &fakeResolver{})
	res, err := e.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Empty(t, res.Unsatisfied)
}

func TestEvaluate_RequiredMemberOptionalIgnored(t *testing.T) {
	// Scenario: member of the one required channel, not of the optional one.
	store := &fakeStore{reqs: []Requirement{
		{ID: 1, ChatID: 100, Required: true, Position: 1},
		{ID: 2, ChatID: 200, Required: false, Position: 2},
	}}
	probe := &fakeProbe{member: map[int64]bool{100: true}}
	e := newEvaluator(store, probe, &fakeResolver{})

	res, err := e.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Empty(t, res.Unsatisfied)
	// Optional channels are never probed.
	assert.Equal(t, []int64{100}, probe.calls)
}

func TestEvaluate_MissingRequiredChannelBlocks(t *testing.T) {
	store := &fakeStore{reqs: []Requirement{
		{ID: 1, ChatID: 100, Required: true, Position: 1},
		{ID: 2, ChatID: 200, Required: true, Position: 2},
	}}
	probe := &fakeProbe{member: map[int64]bool{100: true}}
	e := newEvaluator(store, probe, &fakeResolver{})

	res, err := e.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	require.Len(t, res.Unsatisfied, 1)
	assert.Equal(t, int64(2), res.Unsatisfied[0].ID)
}

func TestEvaluate_OrderDoesNotChangeOutcome(t *testing.T) {
	probe := &fakeProbe{member: map[int64]bool{100: true}}
	forward := &fakeStore{reqs: []Requirement{
		{ID: 1, ChatID: 100, Required: true},
		{ID: 2, ChatID: 200, Required: true},
	}}
	reversed := &fakeStore{reqs: []Requirement{
		{ID: 2, ChatID: 200, Required: true},
		{ID: 1, ChatID: 100, Required: true},
	}}

	a, err := newEvaluator(forward, probe, &fakeResolver{}).Evaluate(context.Background(), 1)
	require.NoError(t, err)
	b, err := newEvaluator(reversed, probe, &fakeResolver{}).Evaluate(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, a.Allowed, b.Allowed)
}

func TestEvaluate_ProbeErrorFailsOpen(t *testing.T) {
	store := &fakeStore{reqs: []Requirement{
		{ID: 1, ChatID: 100, Required: true},
	}}
	probe := &fakeProbe{err: map[int64]error{100: errors.New("api down")}}
	e := newEvaluator(store, probe, &fakeResolver{})

	res, err := e.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestEvaluate_PrivateWithoutChatIDFailsOpen(t *testing.T) {
	store := &fakeStore{reqs: []Requirement{
		{ID: 1, Title: "vip", Private: true, Required: true},
	}}
	probe := &fakeProbe{}
	e := newEvaluator(store, probe, &fakeResolver{})

	res, err := e.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Empty(t, probe.calls)
}

func TestEvaluate_PublicHandleResolvedAndCached(t *testing.T) {
	store := &fakeStore{reqs: []Requirement{
		{ID: 1, Handle: "@movies", Required: true},
	}}
	probe := &fakeProbe{member: map[int64]bool{500: true}}
	resolver := &fakeResolver{handles: map[string]int64{"@movies": 500}}
	e := newEvaluator(store, probe, resolver)

	res, err := e.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	_, err = e.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, resolver.calls, "second evaluation should hit the cache")
}

func TestEvaluate_UnresolvableHandleFailsOpen(t *testing.T) {
	store := &fakeStore{reqs: []Requirement{
		{ID: 1, Handle: "@gone", Required: true},
	}}
	e := newEvaluator(store, &fakeProbe{}, &fakeResolver{err: errors.New("not found")})

	res, err := e.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestEvaluate_DuplicateRequirementsEvaluatedIndependently(t *testing.T) {
	store := &fakeStore{reqs: []Requirement{
		{ID: 1, ChatID: 100, Required: true},
		{ID: 2, ChatID: 100, Required: true},
	}}
	probe := &fakeProbe{}
	e := newEvaluator(store, probe, &fakeResolver{})

	res, err := e.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Len(t, res.Unsatisfied, 2)
	assert.Equal(t, []int64{100, 100}, probe.calls)
}

func TestEvaluate_Idempotent(t *testing.T) {
	store := &fakeStore{reqs: []Requirement{
		{ID: 1, ChatID: 100, Required: true},
		{ID: 2, ChatID: 200, Required: true},
	}}
	probe := &fakeProbe{member: map[int64]bool{100: true}}
	e := newEvaluator(store, probe, &fakeResolver{})

	first, err := e.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	second, err := e.Evaluate(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEvaluate_StoreErrorPropagates(t *testing.T) {
	e := newEvaluator(&fakeStore{err: errors.New("db closed")}, &fakeProbe{}, &fakeResolver{})
	_, err := e.Evaluate(context.Background(), 1)
	assert.Error(t, err)
}
