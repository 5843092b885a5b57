package redisjobs

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/kestrelsupply/replenisher-agent/core"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb)
}

func TestCreateAndGet_RoundTrips(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	job := core.Job{ID: uuid.New(), Status: core.JobQueued}
	require.NoError(t, s.Create(ctx, job))

	got, ok, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, core.JobQueued, got.Status)
}

func TestGet_MissingJobReturnsFalseNotError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, ok, err := s.Get(ctx, uuid.New())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCreate_AddsToIndexForList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Create(ctx, core.Job{ID: uuid.New()}))
	require.NoError(t, s.Create(ctx, core.Job{ID: uuid.New()}))

	jobs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
}

func TestUpdate_OverwritesStoredJob(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	job := core.Job{ID: uuid.New(), Status: core.JobQueued}
	require.NoError(t, s.Create(ctx, job))

	job.Status = core.JobCompleted
	require.NoError(t, s.Update(ctx, job))

	got, _, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, core.JobCompleted, got.Status)
}

func TestList_PrunesIndexEntriesForExpiredJobs(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := New(rdb)

	job := core.Job{ID: uuid.New()}
	require.NoError(t, s.Create(ctx, job))
	mr.Del(key(job.ID)) // simulate TTL expiry without removing the index entry

	jobs, err := s.List(ctx)
	require.NoError(t, err)
	require.Empty(t, jobs)

	members, err := rdb.SMembers(ctx, indexKey).Result()
	require.NoError(t, err)
	require.Empty(t, members)
}

func TestMarkOrphansFailed_OnlyTouchesRunningJobs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	running := core.Job{ID: uuid.New(), Status: core.JobRunning}
	queued := core.Job{ID: uuid.New(), Status: core.JobQueued}
	require.NoError(t, s.Create(ctx, running))
	require.NoError(t, s.Create(ctx, queued))

	require.NoError(t, s.MarkOrphansFailed(ctx))

	got, _, err := s.Get(ctx, running.ID)
	require.NoError(t, err)
	require.Equal(t, core.JobFailed, got.Status)
	require.Equal(t, "interrupted by restart", got.Error)

	gotQueued, _, err := s.Get(ctx, queued.ID)
	require.NoError(t, err)
	require.Equal(t, core.JobQueued, gotQueued.Status)
}
