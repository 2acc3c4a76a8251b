package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kinobot/internal/access"
	"kinobot/internal/broadcast"
	"kinobot/internal/gate"
	"kinobot/pkg/logx"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestRecipients(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.EnsureRecipient(ctx, 1))
	require.NoError(t, st.EnsureRecipient(ctx, 2))
	// Registering twice is a no-op.
	require.NoError(t, st.EnsureRecipient(ctx, 1))

	ids, err := st.ListRecipients(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)

	// Blocked recipients leave the directory but keep their row.
	require.NoError(t, st.SetRecipientActive(ctx, 1, false))
	ids, err = st.ListRecipients(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids)

	stats, err := st.RecipientStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Today)
}

func TestPrincipals(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	_, err := st.LoadPrincipal(ctx, 42)
	assert.ErrorIs(t, err, access.ErrNotFound)

	p := access.Principal{ID: 42, Caps: access.NewSet(access.CapBroadcast, access.CapManageChannels)}
	require.NoError(t, st.SavePrincipal(ctx, p))

	got, err := st.LoadPrincipal(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, p.Caps, got.Caps)
	assert.False(t, got.FullAccess)

	// Upsert replaces the record.
	require.NoError(t, st.SavePrincipal(ctx, access.Principal{ID: 42, FullAccess: true}))
	got, err = st.LoadPrincipal(ctx, 42)
	require.NoError(t, err)
	assert.True(t, got.FullAccess)

	all, err := st.ListPrincipals(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, st.DeletePrincipal(ctx, 42))
	assert.ErrorIs(t, st.DeletePrincipal(ctx, 42), access.ErrNotFound)
}

func TestRequirements(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.AddRequirement(ctx, gate.Requirement{
		Title: "news", Handle: "@news", Required: true,
	}))
	require.NoError(t, st.AddRequirement(ctx, gate.Requirement{
		Title: "vip", ChatID: -100200, Private: true, Required: true,
	}))
	// Identifier is mandatory.
	assert.Error(t, st.AddRequirement(ctx, gate.Requirement{Title: "empty"}))

	reqs, err := st.ListRequirements(ctx)
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, "@news", reqs[0].Handle)
	assert.Equal(t, 1, reqs[0].Position)
	assert.Equal(t, int64(-100200), reqs[1].ChatID)
	assert.True(t, reqs[1].Private)
	assert.Equal(t, 2, reqs[1].Position)

	require.NoError(t, st.DeleteRequirement(ctx, 1))
	assert.ErrorIs(t, st.DeleteRequirement(ctx, 1), ErrNotFound)
}

func TestJobLedger(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	job := broadcast.Job{
		ID: "job-1", Initiator: 7, Kind: broadcast.KindPhoto,
		Total: 10, Sent: 8, Failed: 2,
		StartedAt: now.Add(-time.Minute), FinishedAt: now,
	}
	require.NoError(t, st.RecordJob(ctx, job))

	jobs, err := st.ListJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-1", jobs[0].ID)
	assert.Equal(t, broadcast.KindPhoto, jobs[0].Kind)
	assert.Equal(t, 8, jobs[0].Sent)

	n, err := st.PruneJobs(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	jobs, err = st.ListJobs(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestCatalog(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.AddEntry(ctx, Entry{Code: "GOT", Title: "Game of Thrones"}))
	// Codes are unique.
	assert.Error(t, st.AddEntry(ctx, Entry{Code: "GOT", Title: "dup"}))

	e, err := st.GetEntry(ctx, "GOT")
	require.NoError(t, err)
	assert.Equal(t, "Game of Thrones", e.Title)

	_, err = st.GetEntry(ctx, "NOPE")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, st.AddPart(ctx, "GOT", "s01e01", "file-1"))
	require.NoError(t, st.AddPart(ctx, "GOT", "s01e02", "file-2"))
	assert.ErrorIs(t, st.AddPart(ctx, "NOPE", "x", "f"), ErrNotFound)

	parts, err := st.ListParts(ctx, "GOT")
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, "s01e01", parts[0].Name)

	require.NoError(t, st.LogView(ctx, "GOT", 1, "s01e01"))
	require.NoError(t, st.LogView(ctx, "GOT", 2, ""))
	top, err := st.TopEntries(ctx, 5)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, 2, top[0].Views)

	n, err := st.CountEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, st.DeleteEntry(ctx, "GOT"))
	parts, err = st.ListParts(ctx, "GOT")
	require.NoError(t, err)
	assert.Empty(t, parts, "cascade should remove parts")
}
