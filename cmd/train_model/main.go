package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"sort"
	"syscall"

	"go.uber.org/zap"

	"etaengine/config"
	"etaengine/db"
	"etaengine/logging"
	"etaengine/ml"
	"etaengine/training"
)

func main() {
	configPath := flag.String("config", "config.yaml", "config file path")
	csvPath := flag.String("csv", "", "training CSV path (overrides config)")
	encoding := flag.String("encoding", "", "CSV text encoding (overrides config)")
	modelPath := flag.String("model_path", "", "model output path (overrides config)")
	columnsPath := flag.String("columns_path", "", "column list output path (overrides config)")
	nEstimators := flag.Int("n_estimators", 0, "number of trees (overrides config)")
	maxDepth := flag.Int("max_depth", 0, "max tree depth (overrides config)")
	seed := flag.Int64("seed", -1, "random seed (overrides config)")
	workers := flag.Int("workers", -1, "parallel tree builders, 0 = all CPUs (overrides config)")
	lenient := flag.Bool("lenient", false, "drop rows with unparseable targets instead of aborting")
	skipRunLog := flag.Bool("no_db", false, "do not record the run in the database")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, sync, err := logging.Setup(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		log.Fatalf("failed to set up logging: %v", err)
	}
	defer sync()

	opts := training.Options{
		CSVPath:      override(*csvPath, cfg.Training.CSVPath),
		Encoding:     override(*encoding, cfg.Training.Encoding),
		ModelPath:    override(*modelPath, cfg.Artifacts.ModelPath),
		ColumnsPath:  override(*columnsPath, cfg.Artifacts.ColumnsPath),
		StrictTarget: cfg.Training.StrictTarget && !*lenient,
		DropColumns:  cfg.Training.DropColumns,
		Forest:       ml.DefaultForestParams(),
	}
	opts.Forest.NEstimators = cfg.Training.NEstimators
	opts.Forest.MaxDepth = cfg.Training.MaxDepth
	opts.Forest.Seed = cfg.Training.Seed
	opts.Forest.Workers = cfg.Training.Workers
	if *nEstimators > 0 {
		opts.Forest.NEstimators = *nEstimators
	}
	if *maxDepth > 0 {
		opts.Forest.MaxDepth = *maxDepth
	}
	if *seed >= 0 {
		opts.Forest.Seed = *seed
	}
	if *workers >= 0 {
		opts.Forest.Workers = *workers
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := training.Run(ctx, opts)
	if err != nil {
		logger.Fatal("training failed", zap.Error(err))
	}

	if !*skipRunLog {
		recordRun(cfg.Database.Path, report, logger)
	}

	printReport(report)
}

// recordRun 写入训练记录；失败不影响已保存的模型
func recordRun(path string, report *training.Report, logger *zap.Logger) {
	if err := db.InitDB(path); err != nil {
		logger.Warn("training run not recorded", zap.Error(err))
		return
	}
	defer db.Close()
	if err := db.SaveTrainingRun(report); err != nil {
		logger.Warn("training run not recorded", zap.Error(err))
	}
}

func override(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

func printReport(r *training.Report) {
	fmt.Printf("run %s finished in %s\n", r.RunID, r.Duration)
	fmt.Printf("rows: %d read, %d used, %d dropped\n", r.Rows, r.RowsUsed, r.RowsDropped)
	if len(r.Imputed) > 0 {
		cols := make([]string, 0, len(r.Imputed))
		for col := range r.Imputed {
			cols = append(cols, col)
		}
		sort.Strings(cols)
		for _, col := range cols {
			fmt.Printf("  imputed %-28s %d\n", col, r.Imputed[col])
		}
	}
	fmt.Printf("features: %d (fingerprint %s)\n", r.FeatureCount, r.Fingerprint)
	fmt.Printf("training fit: R2=%.4f MAE=%.3f RMSE=%.3f\n", r.Metrics.R2, r.Metrics.MAE, r.Metrics.RMSE)
	fmt.Printf("model saved to %s\ncolumns saved to %s\n", r.ModelPath, r.ColumnsPath)
}
