package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"etaengine/config"
	"etaengine/db"
	qhttp "etaengine/http"
	"etaengine/logging"
	"etaengine/ml"
	"etaengine/monitoring"
)

func main() {
	configPath := flag.String("config", "config.yaml", "config file path")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Logging
	logger, sync, err := logging.Setup(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer sync()

	// 3. Initialize database (training run log)
	if err := db.InitDB(cfg.Database.Path); err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("database initialized", zap.String("path", cfg.Database.Path))

	// 4. Load model and column list together
	art, err := ml.LoadArtifacts(cfg.Artifacts.ModelPath, cfg.Artifacts.ColumnsPath)
	if err != nil {
		logger.Fatal("failed to load artifacts", zap.Error(err))
	}
	predictor, err := ml.NewPredictor(art, cfg.Cache.Size)
	if err != nil {
		logger.Fatal("failed to create predictor", zap.Error(err))
	}
	logger.Info("artifacts loaded",
		zap.String("model", cfg.Artifacts.ModelPath),
		zap.Int("features", art.Schema.Len()),
		zap.Int("trees", art.Model.NumTrees()),
		zap.String("fingerprint", art.Schema.Fingerprint()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Artifacts.Watch {
		go func() {
			if err := ml.WatchArtifacts(ctx, predictor, cfg.Artifacts.ModelPath, cfg.Artifacts.ColumnsPath); err != nil {
				logger.Error("artifact watcher stopped", zap.Error(err))
			}
		}()
	}

	// 5. Start HTTP server
	server, err := qhttp.NewServer(qhttp.ServerConfig{
		Port:           cfg.Http.Port,
		Timeout:        cfg.Http.Timeout,
		AllowedOrigins: cfg.Http.AllowedOrigins,
		MaxBodyBytes:   cfg.Http.MaxBodyBytes,
	}, qhttp.Deps{
		Predictor:    predictor,
		Metrics:      monitoring.NewMetricsCollector(),
		TrainingRuns: db.QueryTrainingRuns,
	})
	if err != nil {
		logger.Fatal("failed to create server", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 6. Handle graceful shutdown
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}

	logger.Info("exiting")
}
