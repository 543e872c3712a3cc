// Package sqlite provides the embedded, zero-configuration job store. It is
// the default persistence medium for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"vividflow/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    job_id           TEXT PRIMARY KEY,
    user_id          TEXT NOT NULL,
    model            TEXT NOT NULL,
    status           TEXT NOT NULL,
    created_at       TEXT NOT NULL,
    updated_at       TEXT NOT NULL,
    input_image_url  TEXT,
    input_image_path TEXT,
    prompt           TEXT NOT NULL DEFAULT '',
    negative_prompt  TEXT NOT NULL DEFAULT '',
    parameters       TEXT,
    result_url       TEXT,
    error_message    TEXT,
    metrics          TEXT
);
CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs(status, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_user_created ON jobs(user_id, created_at DESC);
`

// Store implements domain.JobStore on an SQLite database file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite allows a single writer; one connection keeps lock contention
	// out of the picture entirely.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for diagnostics tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

const insertColumns = `job_id, user_id, model, status, created_at, updated_at,
	input_image_url, input_image_path, prompt, negative_prompt,
	parameters, result_url, error_message, metrics`

func (s *Store) Create(ctx context.Context, job *domain.Job) error {
	args, err := writeArgs(job)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO jobs (`+insertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("job %s: %w", job.ID, domain.ErrDuplicateJob)
	}
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *Store) Save(ctx context.Context, job *domain.Job) error {
	args, err := writeArgs(job)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO jobs (`+insertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+insertColumns+` FROM jobs WHERE job_id = ?`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}
	return job, err
}

func (s *Store) ListOldestQueued(ctx context.Context, limit int) ([]*domain.Job, error) {
	return s.list(ctx, `SELECT `+insertColumns+` FROM jobs
		WHERE status = ? ORDER BY created_at ASC LIMIT ?`, domain.JobStatusQueued, limit)
}

func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Job, error) {
	return s.list(ctx, `SELECT `+insertColumns+` FROM jobs
		WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
}

func (s *Store) ListAll(ctx context.Context, limit int) ([]*domain.Job, error) {
	return s.list(ctx, `SELECT `+insertColumns+` FROM jobs
		ORDER BY created_at DESC LIMIT ?`, limit)
}

func (s *Store) ListProcessing(ctx context.Context) ([]*domain.Job, error) {
	return s.list(ctx, `SELECT `+insertColumns+` FROM jobs
		WHERE status = ? ORDER BY created_at ASC`, domain.JobStatusProcessing)
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]*domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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

type scanner interface {
	Scan(dest ...any) error
}

func writeArgs(job *domain.Job) ([]any, error) {
	params, err := marshalMap(job.Parameters)
	if err != nil {
		return nil, fmt.Errorf("encode parameters: %w", err)
	}
	metrics, err := marshalMap(job.Metrics)
	if err != nil {
		return nil, fmt.Errorf("encode metrics: %w", err)
	}
	return []any{
		job.ID,
		job.UserID,
		job.Model,
		string(job.Status),
		job.CreatedAt.UTC().Format(time.RFC3339Nano),
		job.UpdatedAt.UTC().Format(time.RFC3339Nano),
		nullable(job.InputImageURL),
		nullable(job.InputImagePath),
		job.Prompt,
		job.NegativePrompt,
		params,
		nullable(job.ResultURL),
		nullable(job.ErrorMessage),
		metrics,
	}, nil
}

func scanJob(row scanner) (*domain.Job, error) {
	var (
		job                  domain.Job
		status               string
		createdAt, updatedAt string
		inputURL, inputPath  sql.NullString
		params, metrics      sql.NullString
		resultURL, errMsg    sql.NullString
	)
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Model,
		&status,
		&createdAt,
		&updatedAt,
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
	var err error
	if job.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if job.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	job.InputImageURL = inputURL.String
	job.InputImagePath = inputPath.String
	job.ResultURL = resultURL.String
	job.ErrorMessage = errMsg.String

	if params.Valid && params.String != "" {
		if err := json.Unmarshal([]byte(params.String), &job.Parameters); err != nil {
			return nil, fmt.Errorf("decode parameters: %w", err)
		}
	}
	if metrics.Valid && metrics.String != "" {
		if err := json.Unmarshal([]byte(metrics.String), &job.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics: %w", err)
		}
	}
	return &job, nil
}

func marshalMap[V any](m map[string]V) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ domain.JobStore = (*Store)(nil)
