package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ovolkov/expenseflow/internal/api/handlers"
	"github.com/ovolkov/expenseflow/internal/api/middleware"
	"github.com/ovolkov/expenseflow/internal/backend"
	"github.com/ovolkov/expenseflow/internal/backup"
	"github.com/ovolkov/expenseflow/internal/config"
	"github.com/ovolkov/expenseflow/internal/jobs"
	"github.com/ovolkov/expenseflow/internal/jobs/inmemory"
	"github.com/ovolkov/expenseflow/internal/logger"
	"github.com/ovolkov/expenseflow/internal/normalizer"
	"github.com/ovolkov/expenseflow/internal/pipeline"
)

func main() {
	envFile := flag.String("env", ".env", "Path to environment file")
	flag.Parse()

	log := logger.New("expenseflow-api")

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx := context.Background()

	expenseStore, err := backend.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StorageBackend).Msg("Failed to initialize storage backend")
	}
	defer expenseStore.Close()

	// The mapping oracle is optional; without an API key every import
	// falls through to the heuristic mapper.
	var oracle normalizer.Oracle
	if cfg.GeminiAPIKey != "" {
		oracle = normalizer.NewGeminiOracle(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.OracleTimeout)
	} else {
		log.Warn().Msg("No Gemini API key configured - using heuristic column mapping only")
	}
	norm := normalizer.New(oracle, log)

	// Job infrastructure for spreadsheet backups.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	var publisher jobs.Publisher
	if cfg.GCSBucket != "" {
		publisher = jobQueue
		uploader := backup.NewGCSUploader(cfg.GCSBucket)

		jobHandler := func(ctx context.Context, job jobs.Job) error {
			backupJob, ok := job.(*jobs.BackupFileJob)
			if !ok {
				return fmt.Errorf("unexpected job type: %T", job)
			}

			uri, err := uploader.Upload(ctx, backupJob.Year, backupJob.Filename, backupJob.Data)
			if err != nil {
				log.Error().Err(err).Str("job_id", backupJob.JobID).Msg("Backup upload failed")
				return err
			}
			backupJob.BackupURI = uri

			log.Info().Str("job_id", backupJob.JobID).Str("backup_uri", uri).Msg("File archived")
			return nil
		}

		go func() {
			log.Info().Msg("Starting backup worker")
			if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
				log.Error().Err(err).Msg("Backup worker stopped with error")
			}
		}()
	} else {
		log.Warn().Msg("No GCS bucket configured - file backups are disabled")
	}

	importer := pipeline.New(norm, expenseStore, publisher, log)

	expensesHandler := handlers.NewExpensesHandler(importer, expenseStore, cfg.MaxUploadBytes, log)
	yearsHandler := handlers.NewYearsHandler(expenseStore, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/expenses/upload", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			expensesHandler.UploadExpenses(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/expenses/preview", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			expensesHandler.PreviewExpenses(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/expenses/search", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			expensesHandler.Search(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Year-scoped routes: /api/expenses/{year} and /api/expenses/{year}/statistics
	mux.HandleFunc("/api/expenses/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/expenses/")
		year, sub, _ := strings.Cut(rest, "/")
		if year == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Year is required")
			return
		}

		switch {
		case sub == "" && r.Method == http.MethodGet:
			expensesHandler.ListByYear(w, r, year)
		case sub == "" && r.Method == http.MethodDelete:
			expensesHandler.DeleteByYear(w, r, year)
		case sub == "statistics" && r.Method == http.MethodGet:
			expensesHandler.Statistics(w, r, year)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/years", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			yearsHandler.ListYears(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"backend": cfg.StorageBackend,
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("backend", cfg.StorageBackend).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}
