package domain

import "context"

// JobStore defines durable persistence for jobs. It is the single source of
// truth; callers persist after every field mutation.
type JobStore interface {
	// Create inserts a new record and fails on a duplicate identifier.
	Create(ctx context.Context, job *Job) error
	// Get returns ErrNotFound when no record exists for the identifier.
	Get(ctx context.Context, jobID string) (*Job, error)
	// Save upserts the full record.
	Save(ctx context.Context, job *Job) error
	// ListOldestQueued returns queued jobs ordered oldest first. This
	// ordering is the sole scheduling policy.
	ListOldestQueued(ctx context.Context, limit int) ([]*Job, error)
	// ListByUser returns the user's jobs, most recent first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*Job, error)
	// ListAll returns the most recent jobs across all users, bounded by
	// limit. Used only for aggregate stats.
	ListAll(ctx context.Context, limit int) ([]*Job, error)
	// ListProcessing returns jobs stuck in the processing state; used by
	// startup recovery to fail jobs orphaned by a crash.
	ListProcessing(ctx context.Context) ([]*Job, error)
}
