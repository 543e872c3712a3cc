package domain

import "time"

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is a legal successor of s.
// The graph is queued -> processing -> {completed, failed} and
// queued -> cancelled; nothing else.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return next == JobStatusProcessing || next == JobStatusCancelled
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed
	}
	return false
}

// Job encapsulates one requested video generation and its lifecycle.
// Exactly one of InputImagePath and InputImageURL is set at creation and
// stays immutable afterwards; the caller enforces this before submission.
type Job struct {
	ID             string
	UserID         string
	Model          string
	Status         JobStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
	InputImageURL  string
	InputImagePath string
	Prompt         string
	NegativePrompt string
	Parameters     map[string]any
	ResultURL      string
	ErrorMessage   string
	Metrics        map[string]float64
}

// Touch advances UpdatedAt; every state transition goes through it so the
// updated_at >= created_at invariant holds.
func (j *Job) Touch(now time.Time) {
	if now.Before(j.CreatedAt) {
		now = j.CreatedAt
	}
	j.UpdatedAt = now
}

// SetStatus applies a transition and touches the job. It returns false and
// leaves the job unchanged when the transition is not on the legal graph.
func (j *Job) SetStatus(next JobStatus, now time.Time) bool {
	if !j.Status.CanTransitionTo(next) {
		return false
	}
	j.Status = next
	j.Touch(now)
	return true
}
