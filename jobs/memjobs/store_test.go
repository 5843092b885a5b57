package memjobs

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/kestrelsupply/replenisher-agent/core"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGet_RoundTrips(t *testing.T) {
	ctx := context.Background()
	s := New()
	job := core.Job{ID: uuid.New(), Status: core.JobQueued}
	require.NoError(t, s.Create(ctx, job))

	got, ok, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, core.JobQueued, got.Status)
}

func TestCreate_RejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	s := New()
	job := core.Job{ID: uuid.New()}
	require.NoError(t, s.Create(ctx, job))
	require.Error(t, s.Create(ctx, job))
}

func TestGet_MissingJobReturnsFalseNotError(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, ok, err := s.Get(ctx, uuid.New())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUpdate_RejectsUnknownJob(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.Error(t, s.Update(ctx, core.Job{ID: uuid.New()}))
}

func TestUpdate_OverwritesExistingJob(t *testing.T) {
	ctx := context.Background()
	s := New()
	job := core.Job{ID: uuid.New(), Status: core.JobQueued}
	require.NoError(t, s.Create(ctx, job))

	job.Status = core.JobCompleted
	require.NoError(t, s.Update(ctx, job))

	got, _, _ := s.Get(ctx, job.ID)
	require.Equal(t, core.JobCompleted, got.Status)
}

func TestList_ReturnsEveryJob(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Create(ctx, core.Job{ID: uuid.New()}))
	require.NoError(t, s.Create(ctx, core.Job{ID: uuid.New()}))

	jobs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
}

func TestMarkOrphansFailed_OnlyTouchesRunningJobs(t *testing.T) {
	ctx := context.Background()
	s := New()
	running := core.Job{ID: uuid.New(), Status: core.JobRunning}
	queued := core.Job{ID: uuid.New(), Status: core.JobQueued}
	completed := core.Job{ID: uuid.New(), Status: core.JobCompleted}
	require.NoError(t, s.Create(ctx, running))
	require.NoError(t, s.Create(ctx, queued))
	require.NoError(t, s.Create(ctx, completed))

	require.NoError(t, s.MarkOrphansFailed(ctx))

	got, _, _ := s.Get(ctx, running.ID)
	require.Equal(t, core.JobFailed, got.Status)
	require.Equal(t, "interrupted by restart", got.Error)

	gotQueued, _, _ := s.Get(ctx, queued.ID)
	require.Equal(t, core.JobQueued, gotQueued.Status)

	gotCompleted, _, _ := s.Get(ctx, completed.ID)
	require.Equal(t, core.JobCompleted, gotCompleted.Status)
}
