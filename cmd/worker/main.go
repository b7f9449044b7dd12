package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jemadeira/extrato/internal/audit"
	"github.com/jemadeira/extrato/internal/classify"
	"github.com/jemadeira/extrato/internal/config"
	"github.com/jemadeira/extrato/internal/jobs"
	"github.com/jemadeira/extrato/internal/jobs/inmemory"
	"github.com/jemadeira/extrato/internal/logger"
	"github.com/jemadeira/extrato/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "", "Path to pipeline config JSON (optional)")
	auditDir := flag.String("audit-dir", "audit", "Directory for classification decision logs")
	flag.Parse()

	log := logger.New("extrato-worker")

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadFile(*configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load config")
		}
	}

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore)

	log.Info().Msg("Starting worker service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	handler := func(ctx context.Context, job *jobs.ProcessUploadJob) error {
		log.Info().
			Str("job_id", job.JobID).
			Str("upload_id", job.UploadID).
			Int("files", len(job.Paths)).
			Msg("Processing upload job")

		if err := processUpload(ctx, cfg, *auditDir, job); err != nil {
			log.Error().
				Err(err).
				Str("job_id", job.JobID).
				Str("upload_id", job.UploadID).
				Msg("Pipeline execution failed")
			return err
		}

		log.Info().
			Str("job_id", job.JobID).
			Str("upload_id", job.UploadID).
			Msg("Pipeline execution completed")
		return nil
	}

	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Msg("Worker service started, waiting for jobs...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
}

// processUpload runs one upload batch end to end: read the statement files
// off disk, execute the pipeline, flush the audit log.
func processUpload(ctx context.Context, cfg config.Pipeline, auditDir string, job *jobs.ProcessUploadJob) error {
	auditLog, err := audit.NewFileLog(auditDir)
	if err != nil {
		return err
	}
	defer auditLog.Close()

	files := make([]pipeline.File, 0, len(job.Paths))
	for _, path := range job.Paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files = append(files, pipeline.File{
			Name: filepath.Base(path),
			Bank: job.Bank,
			Data: data,
		})
	}

	reasoner := classify.NewGeminiReasoner(cfg.Model)
	p, err := pipeline.New(cfg, reasoner, auditLog)
	if err != nil {
		return err
	}

	state, err := p.Execute(ctx, files)
	if err != nil {
		return err
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("upload_id", job.UploadID).
		Int("parsed", state.Run.TotalParsed).
		Int("normalized", state.Run.TotalNormalized).
		Int("rule", state.Run.RuleCount).
		Int("ai", state.Run.AICount).
		Int("fallback", state.Run.FallbackCount).
		Int("skipped", len(state.Run.SkippedRecords)).
		Msg("Upload processed")
	return nil
}
