package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"vividflow/internal/domain"
	"vividflow/internal/infra"
	"vividflow/internal/providers/prompt"
	"vividflow/internal/queue"
	"vividflow/internal/safety"
)

// JobService is the slice of the queue facade the HTTP layer needs.
type JobService interface {
	Submit(ctx context.Context, req queue.SubmitRequest) (*domain.Job, error)
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	Cancel(ctx context.Context, jobID string) (bool, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]*domain.Job, error)
	Stats(ctx context.Context) (*queue.Stats, error)
	AdmissionStatus() queue.AdmissionStatus
}

// App bundles the handler dependencies.
type App struct {
	Jobs     JobService
	Enhancer prompt.Enhancer
	Safety   *safety.Checker
	Logger   infra.Logger

	validate *validator.Validate
}

// NewApp wires the handlers.
func NewApp(jobs JobService, enhancer prompt.Enhancer, checker *safety.Checker, logger infra.Logger) *App {
	return &App{
		Jobs:     jobs,
		Enhancer: enhancer,
		Safety:   checker,
		Logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, msg string) {
	a.json(w, code, map[string]string{"error": kind, "message": msg})
}
