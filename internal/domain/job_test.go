package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitionGraph(t *testing.T) {
	all := []JobStatus{
		JobStatusQueued,
		JobStatusProcessing,
		JobStatusCompleted,
		JobStatusFailed,
		JobStatusCancelled,
	}
	legal := map[JobStatus][]JobStatus{
		JobStatusQueued:     {JobStatusProcessing, JobStatusCancelled},
		JobStatusProcessing: {JobStatusCompleted, JobStatusFailed},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, n := range legal[from] {
				if n == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestTerminal(t *testing.T) {
	assert.False(t, JobStatusQueued.Terminal())
	assert.False(t, JobStatusProcessing.Terminal())
	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
	assert.True(t, JobStatusCancelled.Terminal())
}

func TestSetStatusRejectsIllegalTransition(t *testing.T) {
	now := time.Now()
	j := &Job{Status: JobStatusProcessing, CreatedAt: now, UpdatedAt: now}

	require.False(t, j.SetStatus(JobStatusCancelled, now.Add(time.Second)))
	assert.Equal(t, JobStatusProcessing, j.Status)
	assert.Equal(t, now, j.UpdatedAt)

	require.True(t, j.SetStatus(JobStatusFailed, now.Add(time.Second)))
	assert.Equal(t, JobStatusFailed, j.Status)
}

func TestTouchNeverPrecedesCreation(t *testing.T) {
	created := time.Now()
	j := &Job{Status: JobStatusQueued, CreatedAt: created, UpdatedAt: created}

	j.Touch(created.Add(-time.Minute))
	assert.False(t, j.UpdatedAt.Before(j.CreatedAt))

	j.Touch(created.Add(time.Minute))
	assert.Equal(t, created.Add(time.Minute), j.UpdatedAt)
}
