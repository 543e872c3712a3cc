package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"vividflow/internal/domain"
	"vividflow/internal/middleware"
	"vividflow/internal/queue"
)

type generateRequest struct {
	Model          string         `json:"model" validate:"required,oneof=wan2.1 veo3.1"`
	Prompt         string         `json:"prompt" validate:"required,max=2000"`
	NegativePrompt string         `json:"negative_prompt" validate:"max=2000"`
	Parameters     map[string]any `json:"parameters"`
	InputImageURL  string         `json:"input_image_url" validate:"omitempty,url"`
	InputImagePath string         `json:"input_image_path"`
	EnhancePrompt  bool           `json:"enhance_prompt"`
}

type jobView struct {
	JobID        string             `json:"job_id"`
	UserID       string             `json:"user_id"`
	Model        string             `json:"model"`
	Status       string             `json:"status"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	Prompt       string             `json:"prompt"`
	ResultURL    string             `json:"result_url,omitempty"`
	ErrorMessage string             `json:"error_message,omitempty"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
}

func viewOf(job *domain.Job) jobView {
	return jobView{
		JobID:        job.ID,
		UserID:       job.UserID,
		Model:        job.Model,
		Status:       string(job.Status),
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
		Prompt:       job.Prompt,
		ResultURL:    job.ResultURL,
		ErrorMessage: job.ErrorMessage,
		Metrics:      job.Metrics,
	}
}

// Generate accepts a new video-generation request, screens the prompt and
// queues the job. It never waits for processing.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.validate.Struct(req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if (req.InputImageURL == "") == (req.InputImagePath == "") {
		a.error(w, http.StatusBadRequest, "bad_request", "exactly one of input_image_url and input_image_path is required")
		return
	}

	if report := a.Safety.CheckPrompt(req.Prompt); !report.Safe {
		a.json(w, http.StatusBadRequest, map[string]any{
			"error":   "unsafe_prompt",
			"message": "prompt is likely to be rejected by the generation backend",
			"report":  report,
		})
		return
	}

	promptText := req.Prompt
	if req.EnhancePrompt && a.Enhancer != nil {
		enhanced, err := a.Enhancer.Enhance(r.Context(), promptText)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("handlers: prompt enhancement failed, using original")
		} else {
			promptText = enhanced
		}
	}

	job, err := a.Jobs.Submit(r.Context(), queue.SubmitRequest{
		UserID:         userID,
		Model:          req.Model,
		Prompt:         promptText,
		NegativePrompt: req.NegativePrompt,
		Parameters:     req.Parameters,
		InputImagePath: req.InputImagePath,
		InputImageURL:  req.InputImageURL,
	})
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to queue job")
		return
	}

	msg := "Job queued."
	snap := a.Jobs.AdmissionStatus()
	if _, busy := snap.ActiveUsers[userID]; busy {
		msg = "Job queued. You have an active job. Waiting for it to finish."
	} else if snap.GlobalActive >= snap.GlobalLimit {
		msg = "Job queued. Server capacity full. Waiting for slot."
	}

	a.json(w, http.StatusAccepted, map[string]any{
		"job_id":  job.ID,
		"status":  string(job.Status),
		"message": msg,
	})
}

// JobStatus returns the caller's job.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadOwnJob(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, viewOf(job))
}

// CancelJob cancels a queued job; anything past queued is too late.
func (a *App) CancelJob(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadOwnJob(w, r)
	if !ok {
		return
	}
	cancelled, err := a.Jobs.Cancel(r.Context(), job.ID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to cancel job")
		return
	}
	if !cancelled {
		a.error(w, http.StatusConflict, "conflict", "job is no longer queued and cannot be cancelled")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"job_id": job.ID, "status": string(domain.JobStatusCancelled)})
}

// History lists the caller's recent jobs.
func (a *App) History(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	jobs, err := a.Jobs.ListForUser(r.Context(), userID, limit)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load history")
		return
	}
	views := make([]jobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, viewOf(job))
	}
	a.json(w, http.StatusOK, map[string]any{"jobs": views})
}

func (a *App) loadOwnJob(w http.ResponseWriter, r *http.Request) (*domain.Job, bool) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return nil, false
	}
	job, err := a.Jobs.Get(r.Context(), jobID)
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return nil, false
	}
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return nil, false
	}
	// Jobs are private to their owner; a foreign id looks like a miss.
	if job.UserID != middleware.UserID(r.Context()) {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return nil, false
	}
	return job, true
}
