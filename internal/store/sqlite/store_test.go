package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vividflow/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func sampleJob(id, userID string, created time.Time) *domain.Job {
	return &domain.Job{
		ID:             id,
		UserID:         userID,
		Model:          "wan2.1",
		Status:         domain.JobStatusQueued,
		CreatedAt:      created,
		UpdatedAt:      created,
		InputImageURL:  "https://example.com/in.jpg",
		Prompt:         "a ship in a storm",
		NegativePrompt: "blurry",
		Parameters:     map[string]any{"num_frames": float64(121), "seed": float64(42)},
	}
}

func TestCreateGetRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 8, 20, 10, 30, 0, 123456000, time.UTC)
	job := sampleJob("job-1", "user-1", created)
	job.ResultURL = "https://cdn.example.com/out.mp4"
	job.ErrorMessage = ""
	job.Metrics = map[string]float64{"generation_time": 42.5}
	require.NoError(t, st.Create(ctx, job))

	got, err := st.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, job.UserID, got.UserID)
	assert.Equal(t, job.Model, got.Model)
	assert.Equal(t, job.Status, got.Status)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.True(t, got.UpdatedAt.Equal(created))
	assert.Equal(t, job.InputImageURL, got.InputImageURL)
	assert.Equal(t, job.Prompt, got.Prompt)
	assert.Equal(t, job.NegativePrompt, got.NegativePrompt)
	assert.Equal(t, job.Parameters, got.Parameters)
	assert.Equal(t, job.ResultURL, got.ResultURL)
	assert.Equal(t, job.Metrics, got.Metrics)
}

func TestCreateDuplicate(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	job := sampleJob("job-1", "user-1", time.Now().UTC())
	require.NoError(t, st.Create(ctx, job))
	assert.ErrorIs(t, st.Create(ctx, job), domain.ErrDuplicateJob)
}

func TestGetNotFound(t *testing.T) {
	st := openTestStore(t)
	_, err := st.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSaveUpdatesExisting(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	job := sampleJob("job-1", "user-1", time.Now().UTC().Truncate(time.Millisecond))
	require.NoError(t, st.Create(ctx, job))

	require.True(t, job.SetStatus(domain.JobStatusProcessing, time.Now()))
	require.True(t, job.SetStatus(domain.JobStatusFailed, time.Now()))
	job.ErrorMessage = "endpoint timed out"
	require.NoError(t, st.Save(ctx, job))

	got, err := st.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Equal(t, "endpoint timed out", got.ErrorMessage)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func TestNilMapsRoundTripAsNil(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	job := sampleJob("job-1", "user-1", time.Now().UTC())
	job.Parameters = nil
	job.Metrics = nil
	require.NoError(t, st.Create(ctx, job))

	got, err := st.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Nil(t, got.Parameters)
	assert.Nil(t, got.Metrics)
}

func TestListOldestQueuedOrderAndFilter(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	newest := sampleJob("job-newest", "user-1", base.Add(2*time.Second))
	oldest := sampleJob("job-oldest", "user-2", base)
	middle := sampleJob("job-middle", "user-3", base.Add(time.Second))
	done := sampleJob("job-done", "user-4", base.Add(-time.Second))
	done.Status = domain.JobStatusCompleted
	cancelled := sampleJob("job-cancelled", "user-5", base.Add(-2*time.Second))
	cancelled.Status = domain.JobStatusCancelled

	for _, j := range []*domain.Job{newest, oldest, middle, done, cancelled} {
		require.NoError(t, st.Create(ctx, j))
	}

	jobs, err := st.ListOldestQueued(ctx, 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-oldest", jobs[0].ID)
	assert.Equal(t, "job-middle", jobs[1].ID)
}

func TestListByUserNewestFirst(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		j := sampleJob(string(rune('a'+i)), "user-1", base.Add(time.Duration(i)*time.Second))
		require.NoError(t, st.Create(ctx, j))
	}
	require.NoError(t, st.Create(ctx, sampleJob("other", "user-2", base)))

	jobs, err := st.ListByUser(ctx, "user-1", 3)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "e", jobs[0].ID)
	assert.Equal(t, "d", jobs[1].ID)
	assert.Equal(t, "c", jobs[2].ID)
	for _, j := range jobs {
		assert.Equal(t, "user-1", j.UserID)
	}
}

func TestListProcessing(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	stuck := sampleJob("job-stuck", "user-1", base)
	stuck.Status = domain.JobStatusProcessing
	require.NoError(t, st.Create(ctx, stuck))
	require.NoError(t, st.Create(ctx, sampleJob("job-queued", "user-2", base)))

	jobs, err := st.ListProcessing(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-stuck", jobs[0].ID)
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.db")

	st, err := Open(path)
	require.NoError(t, err)
	job := sampleJob("job-1", "user-1", time.Now().UTC())
	require.NoError(t, st.Create(context.Background(), job))
	require.NoError(t, st.Close())

	// Reopening must keep existing rows and not re-run destructive DDL.
	st, err = Open(path)
	require.NoError(t, err)
	defer st.Close()
	got, err := st.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", got.ID)
}
