// Package postgres provides the pgx-backed job store used by multi-node
// friendly deployments.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"vividflow/internal/domain"
)

// Store implements domain.JobStore on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a job store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const selectColumns = `job_id, user_id, model, status, created_at, updated_at,
	input_image_url, input_image_path, prompt, negative_prompt,
	parameters, result_url, error_message, metrics`

func (s *Store) Create(ctx context.Context, job *domain.Job) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO jobs (job_id, user_id, model, status, created_at, updated_at,
	input_image_url, input_image_path, prompt, negative_prompt,
	parameters, result_url, error_message, metrics)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		writeArgs(job)...)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("job %s: %w", job.ID, domain.ErrDuplicateJob)
	}
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *Store) Save(ctx context.Context, job *domain.Job) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO jobs (job_id, user_id, model, status, created_at, updated_at,
	input_image_url, input_image_path, prompt, negative_prompt,
	parameters, result_url, error_message, metrics)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (job_id) DO UPDATE SET
	status = EXCLUDED.status,
	updated_at = EXCLUDED.updated_at,
	result_url = EXCLUDED.result_url,
	error_message = EXCLUDED.error_message,
	metrics = EXCLUDED.metrics`,
		writeArgs(job)...)
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM jobs WHERE job_id = $1`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}
	return job, err
}

func (s *Store) ListOldestQueued(ctx context.Context, limit int) ([]*domain.Job, error) {
	return s.list(ctx, `SELECT `+selectColumns+` FROM jobs
		WHERE status = $1 ORDER BY created_at ASC LIMIT $2`, domain.JobStatusQueued, limit)
}

func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Job, error) {
	return s.list(ctx, `SELECT `+selectColumns+` FROM jobs
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
}

func (s *Store) ListAll(ctx context.Context, limit int) ([]*domain.Job, error) {
	return s.list(ctx, `SELECT `+selectColumns+` FROM jobs
		ORDER BY created_at DESC LIMIT $1`, limit)
}

func (s *Store) ListProcessing(ctx context.Context) ([]*domain.Job, error) {
	return s.list(ctx, `SELECT `+selectColumns+` FROM jobs
		WHERE status = $1 ORDER BY created_at ASC`, domain.JobStatusProcessing)
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]*domain.Job, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func writeArgs(job *domain.Job) []any {
	return []any{
		job.ID,
		job.UserID,
		job.Model,
		string(job.Status),
		job.CreatedAt,
		job.UpdatedAt,
		nullable(job.InputImageURL),
		nullable(job.InputImagePath),
		job.Prompt,
		job.NegativePrompt,
		nullableMap(job.Parameters),
		nullable(job.ResultURL),
		nullable(job.ErrorMessage),
		nullableMap(job.Metrics),
	}
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job                 domain.Job
		status              string
		inputURL, inputPath *string
		resultURL, errMsg   *string
		params              map[string]any
		metrics             map[string]float64
	)
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Model,
		&status,
		&job.CreatedAt,
		&job.UpdatedAt,
		&inputURL,
		&inputPath,
		&job.Prompt,
		&job.NegativePrompt,
		&params,
		&resultURL,
		&errMsg,
		&metrics,
	); err != nil {
		return nil, err
	}

	job.Status = domain.JobStatus(status)
	job.InputImageURL = deref(inputURL)
	job.InputImagePath = deref(inputPath)
	job.ResultURL = deref(resultURL)
	job.ErrorMessage = deref(errMsg)
	job.Parameters = params
	job.Metrics = metrics
	return &job, nil
}

// nullableMap keeps empty maps out of the jsonb columns so a round trip
// reproduces nil.
func nullableMap[V any](m map[string]V) map[string]V {
	if len(m) == 0 {
		return nil
	}
	return m
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ domain.JobStore = (*Store)(nil)
