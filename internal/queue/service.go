package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vividflow/internal/domain"
	"vividflow/internal/infra"
)

const statsScanLimit = 100

// Service is the externally visible surface of the queue: submission,
// lookup, cancellation, history and aggregate stats. The HTTP layer talks
// only to this type.
type Service struct {
	store     domain.JobStore
	admission *AdmissionController
	worker    *Worker
	logger    infra.Logger
}

// NewService wires the facade to its collaborators.
func NewService(store domain.JobStore, admission *AdmissionController, worker *Worker, logger infra.Logger) *Service {
	return &Service{store: store, admission: admission, worker: worker, logger: logger}
}

// SubmitRequest describes a new generation job. Exactly one of
// InputImagePath and InputImageURL must be set; the HTTP layer validates
// that before calling Submit.
type SubmitRequest struct {
	UserID         string
	Model          string
	Prompt         string
	NegativePrompt string
	Parameters     map[string]any
	InputImagePath string
	InputImageURL  string
}

// Stats merges store counts with the admission controller snapshot.
type Stats struct {
	TotalJobs       int                      `json:"total_jobs"`
	CountsByStatus  map[domain.JobStatus]int `json:"counts_by_status"`
	GlobalActive    int                      `json:"global_active"`
	GlobalLimit     int                      `json:"global_limit"`
	ActiveUserCount int                      `json:"active_user_count"`
}

// Submit persists a new queued job and makes sure the worker loop is
// running. It never blocks on processing.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*domain.Job, error) {
	if (req.InputImageURL == "") == (req.InputImagePath == "") {
		return nil, fmt.Errorf("%w: exactly one of input image path and url must be set", domain.ErrInvalidInput)
	}

	now := time.Now()
	job := &domain.Job{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		Model:          req.Model,
		Status:         domain.JobStatusQueued,
		CreatedAt:      now,
		UpdatedAt:      now,
		InputImageURL:  req.InputImageURL,
		InputImagePath: req.InputImagePath,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Parameters:     req.Parameters,
	}

	if err := s.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("user_id", job.UserID).
		Str("model", job.Model).
		Msg("queue: job submitted")

	s.worker.Start()
	return job, nil
}

// Get returns the job, preferring the worker's in-flight copy.
func (s *Service) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	if job, ok := s.worker.ActiveJob(jobID); ok {
		return job, nil
	}
	return s.store.Get(ctx, jobID)
}

// Cancel moves a queued job to cancelled. It returns false when the job is
// in any other state; a job already processing cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, jobID string) (bool, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return false, err
	}
	if !job.SetStatus(domain.JobStatusCancelled, time.Now()) {
		return false, nil
	}
	if err := s.store.Save(ctx, job); err != nil {
		return false, fmt.Errorf("save cancelled job: %w", err)
	}
	s.logger.Info().Str("job_id", jobID).Msg("queue: job cancelled")
	return true, nil
}

// ListForUser returns the user's most recent jobs.
func (s *Service) ListForUser(ctx context.Context, userID string, limit int) ([]*domain.Job, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.store.ListByUser(ctx, userID, limit)
}

// Stats aggregates status counts over the most recent jobs together with
// the live admission snapshot.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	jobs, err := s.store.ListAll(ctx, statsScanLimit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	counts := make(map[domain.JobStatus]int)
	for _, job := range jobs {
		counts[job.Status]++
	}

	snap := s.admission.Status()
	return &Stats{
		TotalJobs:       len(jobs),
		CountsByStatus:  counts,
		GlobalActive:    snap.GlobalActive,
		GlobalLimit:     snap.GlobalLimit,
		ActiveUserCount: len(snap.ActiveUsers),
	}, nil
}

// AdmissionStatus exposes the controller snapshot for callers that only
// need the ledger.
func (s *Service) AdmissionStatus() AdmissionStatus {
	return s.admission.Status()
}

// RecoverOrphans fails jobs left in processing by a previous run. The
// admission ledger is not persisted, so after a restart those jobs have no
// slot and nobody will ever finish them; failing them keeps the status
// a user sees truthful.
func (s *Service) RecoverOrphans(ctx context.Context) (int, error) {
	orphans, err := s.store.ListProcessing(ctx)
	if err != nil {
		return 0, fmt.Errorf("list processing jobs: %w", err)
	}
	for _, job := range orphans {
		job.ErrorMessage = "processing interrupted by service restart"
		job.SetStatus(domain.JobStatusFailed, time.Now())
		if err := s.store.Save(ctx, job); err != nil {
			return 0, fmt.Errorf("fail orphaned job %s: %w", job.ID, err)
		}
		s.logger.Warn().Str("job_id", job.ID).Msg("queue: orphaned processing job failed on startup")
	}
	return len(orphans), nil
}
