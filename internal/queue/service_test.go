package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vividflow/internal/domain"
	"vividflow/internal/providers/video"
)

func newTestService(store *memStore) (*Service, *AdmissionController, *Worker) {
	admission := NewAdmissionController(5, testLogger())
	factory := &fakeFactory{clients: map[string]video.Client{}}
	worker := NewWorker(store, admission, factory, newFakeStorage(), testLogger(), time.Hour, time.Hour)
	return NewService(store, admission, worker, testLogger()), admission, worker
}

func TestSubmitCreatesQueuedJob(t *testing.T) {
	store := newMemStore()
	svc, _, worker := newTestService(store)
	defer worker.Stop()

	job, err := svc.Submit(context.Background(), SubmitRequest{
		UserID:         "user-1",
		Model:          "wan2.1",
		Prompt:         "a red fox in the snow",
		InputImagePath: "/tmp/fox.jpg",
		Parameters:     map[string]any{"num_frames": 121},
	})
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)
	assert.Equal(t, domain.JobStatusQueued, job.Status)
	assert.Equal(t, job.CreatedAt, job.UpdatedAt)

	stored, err := store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", stored.UserID)
	assert.True(t, worker.Running(), "submission must start the worker")
}

func TestGetPrefersActiveCopy(t *testing.T) {
	store := newMemStore()
	svc, _, worker := newTestService(store)

	job := queuedJob("job-1", "user-1")
	require.NoError(t, store.Create(context.Background(), job))

	inFlight := clone(job)
	inFlight.Status = domain.JobStatusProcessing
	worker.trackActive(inFlight)

	got, err := svc.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, got.Status)

	worker.untrackActive("job-1")
	got, err = svc.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, got.Status)
}

func TestGetUnknownJob(t *testing.T) {
	store := newMemStore()
	svc, _, _ := newTestService(store)

	_, err := svc.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCancelQueuedJob(t *testing.T) {
	store := newMemStore()
	svc, _, _ := newTestService(store)

	job := queuedJob("job-1", "user-1")
	require.NoError(t, store.Create(context.Background(), job))

	ok, err := svc.Cancel(context.Background(), "job-1")
	require.NoError(t, err)
	assert.True(t, ok)

	got, _ := store.Get(context.Background(), "job-1")
	assert.Equal(t, domain.JobStatusCancelled, got.Status)
}

func TestCancelRejectsNonQueued(t *testing.T) {
	store := newMemStore()
	svc, _, _ := newTestService(store)

	for _, status := range []domain.JobStatus{
		domain.JobStatusProcessing, domain.JobStatusCompleted,
		domain.JobStatusFailed, domain.JobStatusCancelled,
	} {
		job := queuedJob("job-"+string(status), "user-1")
		job.Status = status
		require.NoError(t, store.Create(context.Background(), job))

		ok, err := svc.Cancel(context.Background(), job.ID)
		require.NoError(t, err)
		assert.False(t, ok, "cancel must be rejected for %s", status)

		got, _ := store.Get(context.Background(), job.ID)
		assert.Equal(t, status, got.Status, "rejected cancel must not change state")
	}
}

func TestStatsMergesCountsAndAdmission(t *testing.T) {
	store := newMemStore()
	svc, admission, _ := newTestService(store)

	base := time.Now().UTC()
	for i, status := range []domain.JobStatus{
		domain.JobStatusQueued, domain.JobStatusQueued,
		domain.JobStatusCompleted, domain.JobStatusFailed,
	} {
		job := queuedJob("job-"+string(rune('a'+i)), "user-1")
		job.Status = status
		job.CreatedAt = base.Add(time.Duration(i) * time.Millisecond)
		require.NoError(t, store.Create(context.Background(), job))
	}
	require.True(t, admission.TryAcquire("user-9", "job-live"))

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalJobs)
	assert.Equal(t, 2, stats.CountsByStatus[domain.JobStatusQueued])
	assert.Equal(t, 1, stats.CountsByStatus[domain.JobStatusCompleted])
	assert.Equal(t, 1, stats.CountsByStatus[domain.JobStatusFailed])
	assert.Equal(t, 1, stats.GlobalActive)
	assert.Equal(t, 5, stats.GlobalLimit)
	assert.Equal(t, 1, stats.ActiveUserCount)
}

func TestListForUserDefaultsLimit(t *testing.T) {
	store := newMemStore()
	svc, _, _ := newTestService(store)

	base := time.Now().UTC()
	for i := 0; i < 15; i++ {
		job := queuedJob(string(rune('a'+i)), "user-1")
		job.CreatedAt = base.Add(time.Duration(i) * time.Millisecond)
		require.NoError(t, store.Create(context.Background(), job))
	}

	jobs, err := svc.ListForUser(context.Background(), "user-1", 0)
	require.NoError(t, err)
	assert.Len(t, jobs, 10)
}

func TestRecoverOrphans(t *testing.T) {
	store := newMemStore()
	svc, _, _ := newTestService(store)

	stuck := queuedJob("job-stuck", "user-1")
	stuck.Status = domain.JobStatusProcessing
	require.NoError(t, store.Create(context.Background(), stuck))

	fine := queuedJob("job-fine", "user-2")
	require.NoError(t, store.Create(context.Background(), fine))

	n, err := svc.RecoverOrphans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := store.Get(context.Background(), "job-stuck")
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Equal(t, "processing interrupted by service restart", got.ErrorMessage)

	got, _ = store.Get(context.Background(), "job-fine")
	assert.Equal(t, domain.JobStatusQueued, got.Status)
}
