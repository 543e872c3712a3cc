package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"vividflow/internal/domain"
	vividhttp "vividflow/internal/http"
	"vividflow/internal/http/handlers"
	"vividflow/internal/infra"
	"vividflow/internal/providers/prompt"
	"vividflow/internal/providers/video"
	"vividflow/internal/queue"
	"vividflow/internal/safety"
	"vividflow/internal/storage"
	"vividflow/internal/store/postgres"
	"vividflow/internal/store/sqlite"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobStore, closeStore, err := openJobStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("server: job store init failed")
	}
	defer closeStore()

	mediaStore, err := openMediaStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("server: storage init failed")
	}

	admission := queue.NewAdmissionController(cfg.GlobalConcurrencyLimit, logger)
	clients := video.NewClientFactory(cfg, logger)
	worker := queue.NewWorker(jobStore, admission, clients, mediaStore, logger, cfg.WorkerPollInterval, cfg.WorkerErrorBackoff)
	service := queue.NewService(jobStore, admission, worker, logger)

	if n, err := service.RecoverOrphans(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server: orphan recovery failed")
	} else if n > 0 {
		logger.Warn().Int("count", n).Msg("server: failed orphaned processing jobs from previous run")
	}

	worker.Start()
	defer worker.Stop()

	app := handlers.NewApp(service, newEnhancer(cfg, logger), safety.NewChecker(), logger)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      vividhttp.NewRouter(app, cfg, logger),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server: shutdown failed")
		}
	}()

	logger.Info().Str("port", cfg.Port).Msg("server: listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server: stopped with error")
	}
	logger.Info().Msg("server: stopped")
}

// openJobStore picks Postgres when DATABASE_URL is set and falls back to
// the embedded SQLite file otherwise.
func openJobStore(ctx context.Context, cfg *infra.Config, logger infra.Logger) (domain.JobStore, func(), error) {
	if cfg.DatabaseURL != "" {
		if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
			return nil, nil, err
		}
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Msg("server: using postgres job store")
		return postgres.NewStore(pool), pool.Close, nil
	}

	st, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	logger.Info().Str("path", cfg.SQLitePath).Msg("server: using sqlite job store")
	return st, func() { _ = st.Close() }, nil
}

func openMediaStore(ctx context.Context, cfg *infra.Config) (storage.Store, error) {
	if cfg.StorageBackend == "gcs" {
		return storage.NewGCSStore(ctx, cfg.GCSBucketName)
	}
	return storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
}

func newEnhancer(cfg *infra.Config, logger infra.Logger) prompt.Enhancer {
	if cfg.GroqAPIKey != "" {
		return prompt.NewGroqEnhancer(cfg.GroqAPIKey, cfg.GroqModel, cfg.GroqBaseURL, logger)
	}
	logger.Warn().Msg("server: GROQ_API_KEY missing, using static prompt enhancer")
	return prompt.NewStaticEnhancer()
}
