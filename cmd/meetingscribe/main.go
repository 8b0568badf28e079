package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/nvoss/meetingscribe/internal/archive"
	"github.com/nvoss/meetingscribe/internal/audio"
	"github.com/nvoss/meetingscribe/internal/config"
	"github.com/nvoss/meetingscribe/internal/engine"
	"github.com/nvoss/meetingscribe/internal/finalize"
	"github.com/nvoss/meetingscribe/internal/httpapi"
	"github.com/nvoss/meetingscribe/internal/ingest"
	"github.com/nvoss/meetingscribe/internal/minutes"
	"github.com/nvoss/meetingscribe/internal/observability"
	"github.com/nvoss/meetingscribe/internal/record"
	"github.com/nvoss/meetingscribe/internal/session"
	"github.com/nvoss/meetingscribe/internal/transcribe"
)

const sampleRate = 16000

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config error", zap.Error(err))
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	records, err := record.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("record store init failed", zap.Error(err))
	}
	defer records.Close()
	if cfg.DatabaseURL == "" {
		logger.Info("record store: in-memory (DATABASE_URL not set)")
	} else {
		logger.Info("record store: postgres")
	}

	transcriber := pickTranscriber(cfg, logger)
	logger.Info("transcriber selected", zap.String("provider", transcriber.Name()))

	var generator minutes.Generator
	if cfg.GroqAPIKey != "" {
		generator = minutes.NewGroqGenerator(cfg.GroqAPIKey, cfg.GroqAPIURL, cfg.GroqModel)
		logger.Info("minutes generator: groq", zap.String("model", cfg.GroqModel))
	} else {
		logger.Info("minutes generator: template only (GROQ_API_KEY not set)")
	}

	audioStore, err := audio.NewStore(filepath.Join(cfg.DataDir, "audio"), sampleRate)
	if err != nil {
		logger.Fatal("audio store init failed", zap.Error(err))
	}

	audioArchive, err := archive.New(ctx, archive.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	}, logger)
	if err != nil {
		logger.Fatal("audio archive init failed", zap.Error(err))
	}
	if audioArchive != nil {
		logger.Info("audio archive: minio", zap.String("bucket", cfg.MinioBucket))
	}

	registry := session.NewRegistry(cfg.SessionIdleTimeout, logger)
	registry.SetCloseHook(func(_ *session.Session, reason string) {
		metrics.SessionEvents.WithLabelValues("closed_" + reason).Inc()
		metrics.ActiveSessions.Set(float64(registry.Count()))
	})

	finalizer, err := finalize.New(finalize.Options{
		Registry:    registry,
		Transcriber: transcriber,
		Generator:   generator,
		Records:     records,
		Archive:     audioArchive,
		Metrics:     metrics,
		Logger:      logger,
		MinutesDir:  filepath.Join(cfg.DataDir, "minutes"),
		RetryMax:    cfg.MinutesRetryMax,
		Workers:     cfg.FinalizeWorkers,
	})
	if err != nil {
		logger.Fatal("finalizer init failed", zap.Error(err))
	}

	eng := engine.New(engine.Options{
		Registry:    registry,
		AudioStore:  audioStore,
		Transcriber: transcriber,
		Finalizer:   finalizer,
		FlushPolicy: ingest.FlushPolicy{
			MinBytes:       cfg.FlushMinBytes,
			MinChunks:      cfg.FlushMinChunks,
			MinInterval:    cfg.FlushMinInterval,
			ForcedInterval: cfg.FlushForcedInterval,
		},
		Limits: ingest.Limits{
			MaxBytes:  cfg.BufferMaxBytes,
			MaxChunks: cfg.BufferMaxChunks,
		},
		Metrics: metrics,
		Logger:  logger,
	})

	api := httpapi.New(cfg, registry, eng, metrics, logger)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	registry.StartSweeper(runCtx, cfg.SweepInterval)

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
}

func pickTranscriber(cfg config.Config, logger *zap.Logger) transcribe.Transcriber {
	mode := strings.ToLower(strings.TrimSpace(cfg.TranscriberProvider))
	if mode == "" {
		mode = "auto"
	}
	switch mode {
	case "assemblyai":
		if cfg.AssemblyAIAPIKey == "" {
			logger.Fatal("TRANSCRIBER_PROVIDER=assemblyai but ASSEMBLYAI_API_KEY is not set")
		}
		return transcribe.NewAssemblyAITranscriber(cfg.AssemblyAIAPIKey, sampleRate, logger)
	case "mock":
		return transcribe.NewMockTranscriber()
	case "auto":
		if cfg.AssemblyAIAPIKey != "" {
			return transcribe.NewAssemblyAITranscriber(cfg.AssemblyAIAPIKey, sampleRate, logger)
		}
		logger.Info("no ASSEMBLYAI_API_KEY, falling back to mock transcriber")
		return transcribe.NewMockTranscriber()
	default:
		logger.Fatal("invalid TRANSCRIBER_PROVIDER",
			zap.String("value", cfg.TranscriberProvider),
			zap.String("expected", "auto|assemblyai|mock"))
		return nil
	}
}
