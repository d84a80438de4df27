package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/rohankatakam/elemgraph/internal/cache"
	"github.com/rohankatakam/elemgraph/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTracker() *Tracker {
	t := NewTracker(cache.NewMemoryCache[JobDetail](), nil)
	clock := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	t.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return t
}

func TestTracker_Lifecycle(t *testing.T) {
	ctx := context.Background()
	tr := newTracker()

	d, err := tr.Start(ctx, JobDetail{User: "alice", Chain: `{"class":"OperationChain"}`})
	require.NoError(t, err)
	assert.NotEmpty(t, d.JobID)
	assert.Equal(t, StatusRunning, d.Status)
	assert.False(t, d.StartTime.IsZero())

	done, err := tr.Finish(ctx, d.JobID, StatusFinished, "")
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, done.Status)
	require.NotNil(t, done.EndTime)
	assert.True(t, done.EndTime.After(done.StartTime))

	_, err = tr.Finish(ctx, d.JobID, StatusFailed, "too late")
	assert.ErrorIs(t, err, errors.ErrValidation)

	_, err = tr.Finish(ctx, d.JobID, StatusRunning, "")
	assert.ErrorIs(t, err, errors.ErrValidation)

	got, err := tr.Get(ctx, d.JobID)
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, got.Status)
}

func TestTracker_Duplicate(t *testing.T) {
	ctx := context.Background()
	tr := newTracker()
	_, err := tr.Start(ctx, JobDetail{JobID: "j1"})
	require.NoError(t, err)
	_, err = tr.Start(ctx, JobDetail{JobID: "j1"})
	assert.ErrorIs(t, err, cache.ErrAlreadyExists)
}

func TestTracker_Cancel(t *testing.T) {
	ctx := context.Background()
	tr := newTracker()

	parent, err := tr.Start(ctx, JobDetail{Status: StatusScheduledParent, Repeat: &Repeat{Period: time.Minute}})
	require.NoError(t, err)
	run, err := tr.Start(ctx, JobDetail{ParentJobID: parent.JobID})
	require.NoError(t, err)

	_, err = tr.Cancel(ctx, run.JobID)
	assert.ErrorIs(t, err, errors.ErrValidation)

	cancelled, err := tr.Cancel(ctx, parent.JobID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	_, err = tr.Cancel(ctx, "missing")
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestTracker_GetAllByUser(t *testing.T) {
	ctx := context.Background()
	tr := newTracker()
	for _, u := range []string{"alice", "bob", "alice"} {
		_, err := tr.Start(ctx, JobDetail{User: u})
		require.NoError(t, err)
	}

	all, err := tr.GetAll(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	alice, err := tr.GetAll(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, alice, 2)
	for _, d := range alice {
		assert.Equal(t, "alice", d.User)
	}
}
