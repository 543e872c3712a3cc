package queue

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"vividflow/internal/domain"
	"vividflow/internal/infra"
	"vividflow/internal/providers/video"
	"vividflow/internal/storage"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultErrorBackoff = 5 * time.Second
)

// Worker is the single background loop that drives queued jobs to a
// terminal state. It polls the store for the oldest queued job, asks the
// admission controller for a slot, and on grant runs the job end to end:
// resolve input, call the generation back-end, upload the output. One job
// is processed at a time.
type Worker struct {
	store     domain.JobStore
	admission *AdmissionController
	clients   video.Factory
	storage   storage.Store
	logger    infra.Logger

	pollInterval time.Duration
	errorBackoff time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	// active is a fast point-lookup shortcut for jobs currently in flight;
	// any lookup may safely go to the store instead.
	active map[string]*domain.Job
}

// NewWorker wires the loop to its collaborators. Zero intervals fall back
// to the defaults (2s poll, 5s error backoff).
func NewWorker(store domain.JobStore, admission *AdmissionController, clients video.Factory, st storage.Store, logger infra.Logger, pollInterval, errorBackoff time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if errorBackoff <= 0 {
		errorBackoff = defaultErrorBackoff
	}
	return &Worker{
		store:        store,
		admission:    admission,
		clients:      clients,
		storage:      st,
		logger:       logger,
		pollInterval: pollInterval,
		errorBackoff: errorBackoff,
		active:       make(map[string]*domain.Job),
	}
}

// Start launches the loop goroutine. Starting an already-running worker is
// a no-op, so callers may invoke it on every submission.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true
	go w.run(ctx)
	w.logger.Info().Msg("worker: started")
}

// Stop cancels the loop and waits for it to drain.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	w.logger.Info().Msg("worker: stopped")
}

// Running reports whether the loop goroutine is alive.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// ActiveJob returns the in-memory copy of a job currently being processed.
func (w *Worker) ActiveJob(jobID string) (*domain.Job, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	j, ok := w.active[jobID]
	return j, ok
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		jobs, err := w.store.ListOldestQueued(ctx, 1)
		if err != nil {
			// Transient store trouble must never kill the loop.
			w.logger.Error().Err(err).Msg("worker: queue scan failed")
			if !sleep(ctx, w.errorBackoff) {
				return
			}
			continue
		}
		if len(jobs) == 0 {
			if !sleep(ctx, w.pollInterval) {
				return
			}
			continue
		}

		admitted, err := w.processJob(ctx, jobs[0])
		if err != nil {
			// The store broke mid-handoff; retrying immediately would spin
			// the loop hot against a down database.
			if !sleep(ctx, w.errorBackoff) {
				return
			}
			continue
		}
		if !admitted {
			// Denied: leave the job queued and retry on a later iteration.
			if !sleep(ctx, w.pollInterval) {
				return
			}
		}
	}
}

// processJob drives a single job. It reports whether a slot was acquired;
// a denial leaves the job untouched. A non-nil error means the store failed
// during the handoff and the caller should back off before rescanning.
func (w *Worker) processJob(ctx context.Context, job *domain.Job) (bool, error) {
	if !w.admission.TryAcquire(job.UserID, job.ID) {
		w.logger.Debug().
			Str("job_id", job.ID).
			Str("user_id", job.UserID).
			Msg("worker: admission denied, job stays queued")
		return false, nil
	}
	defer w.admission.Release(job.UserID, job.ID)

	// Re-read after the grant: a cancellation may have landed between the
	// queue scan and here.
	fresh, err := w.store.Get(ctx, job.ID)
	if err != nil {
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: reload failed")
		return true, err
	}
	if fresh.Status != domain.JobStatusQueued {
		w.logger.Info().
			Str("job_id", job.ID).
			Str("status", string(fresh.Status)).
			Msg("worker: job no longer queued, releasing slot")
		return true, nil
	}
	job = fresh

	job.SetStatus(domain.JobStatusProcessing, time.Now())
	if err := w.store.Save(ctx, job); err != nil {
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: mark processing failed")
		return true, err
	}
	w.trackActive(job)

	w.logger.Info().
		Str("job_id", job.ID).
		Str("user_id", job.UserID).
		Str("model", job.Model).
		Msg("worker: processing job")

	var tempPath string
	defer func() {
		if tempPath != "" {
			if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
				w.logger.Warn().Err(err).Str("job_id", job.ID).Msg("worker: temp input cleanup failed")
			}
		}
		job.Touch(time.Now())
		if err := w.store.Save(context.WithoutCancel(ctx), job); err != nil {
			w.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: persist final state failed")
		}
		w.untrackActive(job.ID)
	}()

	imagePath := job.InputImagePath
	if job.InputImageURL != "" {
		localPath, err := w.storage.DownloadToLocal(ctx, job.InputImageURL)
		if err != nil {
			w.fail(job, fmt.Sprintf("download input image: %v", err))
			return true, nil
		}
		tempPath = localPath
		imagePath = localPath
	}
	if imagePath == "" {
		w.fail(job, "no valid image source provided")
		return true, nil
	}

	client, err := w.clients.ClientFor(job.Model)
	if err != nil {
		w.fail(job, err.Error())
		return true, nil
	}

	start := time.Now()
	result, err := client.CreateVideoFromImage(ctx, video.GenerateRequest{
		ImagePath:      imagePath,
		Prompt:         job.Prompt,
		NegativePrompt: job.NegativePrompt,
		Parameters:     job.Parameters,
	})
	generationTime := time.Since(start).Seconds()
	if err != nil {
		w.fail(job, err.Error())
		return true, nil
	}

	if result.Status != video.StatusCompleted {
		msg := result.Error
		if msg == "" {
			msg = "unknown error"
		}
		w.fail(job, msg)
		return true, nil
	}
	if len(result.Output) == 0 {
		w.fail(job, "no video data in result")
		return true, nil
	}

	key := fmt.Sprintf("jobs/%s_%s_%s.mp4", job.ID, job.Model, time.Now().Format("20060102_150405"))
	resultURL, err := w.storage.UploadBytes(ctx, key, result.Output)
	if err != nil {
		w.fail(job, fmt.Sprintf("upload video: %v", err))
		return true, nil
	}

	metrics := map[string]float64{"generation_time": generationTime}
	for k, v := range result.Metrics {
		metrics[k] = v
	}
	job.ResultURL = resultURL
	job.Metrics = metrics
	job.SetStatus(domain.JobStatusCompleted, time.Now())

	w.logger.Info().
		Str("job_id", job.ID).
		Float64("generation_time", generationTime).
		Msg("worker: job completed")
	return true, nil
}

func (w *Worker) fail(job *domain.Job, msg string) {
	job.ErrorMessage = msg
	job.SetStatus(domain.JobStatusFailed, time.Now())
	w.logger.Error().
		Str("job_id", job.ID).
		Str("error", msg).
		Msg("worker: job failed")
}

// trackActive publishes a snapshot of the job, never the live pointer the
// loop keeps mutating. A shallow copy is enough: the loop replaces the
// Parameters and Metrics maps wholesale instead of writing into them.
func (w *Worker) trackActive(job *domain.Job) {
	snapshot := *job
	w.mu.Lock()
	w.active[job.ID] = &snapshot
	w.mu.Unlock()
}

func (w *Worker) untrackActive(jobID string) {
	w.mu.Lock()
	delete(w.active, jobID)
	w.mu.Unlock()
}

// sleep waits for d or until ctx is done; it reports false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
