package gate

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moshesimon/OpenWork-sub000/internal/store"
	"github.com/moshesimon/OpenWork-sub000/internal/testutil"
)

func TestDedupClaim_WinnerThenLoser(t *testing.T) {
	s := testutil.NewTestStore(t)
	g := NewActionDedup(s)
	ctx := context.Background()

	task := testutil.SeedAgentTask(t, s, "u1", store.SourceInboundDMMessage, "message:m1")

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	res, err := g.Claim(ctx, tx, "u1", "c1", "m1", store.KindSendMessage, task.ID)
	require.NoError(t, err)
	require.True(t, res.Claimed)
	require.NoError(t, g.SetOutput(ctx, tx, res.ClaimID, "msg_out"))
	require.NoError(t, tx.Commit())

	tx2, err := s.BeginTx(ctx)
	require.NoError(t, err)
	defer tx2.Rollback()
	res2, err := g.Claim(ctx, tx2, "u1", "c1", "m1", store.KindSendMessage, "task_other")
	require.NoError(t, err)
	assert.False(t, res2.Claimed)
	assert.Equal(t, task.ID, res2.ExistingTaskID)
	assert.Equal(t, "msg_out", res2.ExistingOutputID)
}

func TestDedupClaim_KindsAreIndependent(t *testing.T) {
	s := testutil.NewTestStore(t)
	g := NewActionDedup(s)
	ctx := context.Background()

	task := testutil.SeedAgentTask(t, s, "u1", store.SourceInboundDMMessage, "message:m1")

	for _, kind := range []store.ActionKind{store.KindSendMessage, store.KindCreateBriefing, store.KindAIChatNote} {
		tx, err := s.BeginTx(ctx)
		require.NoError(t, err)
		res, err := g.Claim(ctx, tx, "u1", "c1", "m1", kind, task.ID)
		require.NoError(t, err)
		assert.True(t, res.Claimed, "kind %s should claim independently", kind)
		require.NoError(t, tx.Commit())
	}
}

// A crash between claim and effect persists a claim with no output. A later
// claim attempt must surface it as already-claimed with an empty output id.
func TestDedupClaim_NullOutputSurfacedToLoser(t *testing.T) {
	s := testutil.NewTestStore(t)
	g := NewActionDedup(s)
	ctx := context.Background()

	task := testutil.SeedAgentTask(t, s, "u1", store.SourceInboundDMMessage, "message:m1")

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	res, err := g.Claim(ctx, tx, "u1", "c1", "m1", store.KindSendMessage, task.ID)
	require.NoError(t, err)
	require.True(t, res.Claimed)
	require.NoError(t, tx.Commit()) // committed claim, no SetOutput: simulated crash window

	tx2, err := s.BeginTx(ctx)
	require.NoError(t, err)
	defer tx2.Rollback()
	res2, err := g.Claim(ctx, tx2, "u1", "c1", "m1", store.KindSendMessage, "task_retry")
	require.NoError(t, err)
	assert.False(t, res2.Claimed)
	assert.Empty(t, res2.ExistingOutputID)
}

func TestDedupClaim_ConcurrentSingleWinner(t *testing.T) {
	s := testutil.NewTestStore(t)
	g := NewActionDedup(s)
	ctx := context.Background()

	task := testutil.SeedAgentTask(t, s, "u1", store.SourceInboundDMMessage, "message:m1")

	const n = 8
	claimed := make([]bool, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx, err := s.BeginTx(ctx)
			if err != nil {
				errs[i] = err
				return
			}
			res, err := g.Claim(ctx, tx, "u1", "c1", "m1", store.KindSendMessage, task.ID)
			if err != nil {
				errs[i] = err
				tx.Rollback()
				return
			}
			claimed[i] = res.Claimed
			if res.Claimed {
				if err := g.SetOutput(ctx, tx, res.ClaimID, "out"); err != nil {
					errs[i] = err
					tx.Rollback()
					return
				}
				errs[i] = tx.Commit()
			} else {
				tx.Rollback()
			}
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		if claimed[i] {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}
