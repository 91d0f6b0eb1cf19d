// Package training runs one batch training job from CSV to artifacts.
package training

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"etaengine/ml"
	"etaengine/pipeline"
	"etaengine/schema"
)

// Options 训练选项
type Options struct {
	CSVPath      string
	Encoding     string
	ModelPath    string
	ColumnsPath  string
	Forest       ml.ForestParams
	StrictTarget bool
	DropColumns  []string
}

// Report 训练报告
type Report struct {
	RunID        string                  `json:"run_id"`
	CSVPath      string                  `json:"csv_path"`
	ModelPath    string                  `json:"model_path"`
	ColumnsPath  string                  `json:"columns_path"`
	Rows         int                     `json:"rows"`
	RowsUsed     int                     `json:"rows_used"`
	RowsDropped  int                     `json:"rows_dropped"`
	Imputed      map[string]int          `json:"imputed"`
	Issues       []pipeline.QualityIssue `json:"issues,omitempty"`
	FeatureCount int                     `json:"feature_count"`
	Fingerprint  string                  `json:"fingerprint"`
	Params       ml.ForestParams         `json:"params"`
	Metrics      ml.Metrics              `json:"metrics"`
	StartedAt    time.Time               `json:"started_at"`
	Duration     time.Duration           `json:"duration"`
}

// maxReportedIssues bounds the issues copied into a report.
const maxReportedIssues = 100

func (o Options) validate() error {
	if o.CSVPath == "" {
		return errors.New("csv path is required")
	}
	if o.ModelPath == "" || o.ColumnsPath == "" {
		return errors.New("model and columns paths are required")
	}
	if o.ModelPath == o.ColumnsPath {
		return errors.New("model and columns paths must differ")
	}
	return nil
}

// Run 执行一次完整训练，任何错误都会中止且不写出任何产物
func Run(ctx context.Context, opts Options) (*Report, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	report := &Report{
		RunID:       uuid.NewString(),
		CSVPath:     opts.CSVPath,
		ModelPath:   opts.ModelPath,
		ColumnsPath: opts.ColumnsPath,
		StartedAt:   time.Now(),
	}
	logger := zap.L().With(zap.String("run_id", report.RunID))

	frame, err := pipeline.LoadCSV(opts.CSVPath, opts.Encoding)
	if err != nil {
		return nil, err
	}

	cleaner := pipeline.NewDataCleaner(pipeline.CleanerOptions{
		StrictTarget: opts.StrictTarget,
		DropColumns:  opts.DropColumns,
	})
	dataset, err := cleaner.Prepare(frame)
	if err != nil {
		return nil, fmt.Errorf("prepare dataset: %w", err)
	}
	if len(dataset.Y) == 0 {
		return nil, errors.New("no usable rows after cleaning")
	}

	stats := cleaner.GetStats()
	report.Rows = stats.RowsRead
	report.RowsUsed = stats.RowsUsed
	report.RowsDropped = stats.RowsDropped
	report.Imputed = stats.Imputed
	report.Issues = cleaner.GetIssues(maxReportedIssues)
	logger.Info("dataset prepared",
		zap.Int("rows", stats.RowsRead),
		zap.Int("used", stats.RowsUsed),
		zap.Int("dropped", stats.RowsDropped),
		zap.Int("features", len(dataset.Columns)),
		zap.Any("imputed", stats.Imputed))

	featureSchema, err := schema.New(dataset.Columns)
	if err != nil {
		return nil, err
	}

	forest := ml.NewRandomForest(opts.Forest)
	fitStart := time.Now()
	if err := forest.Fit(ctx, dataset.X, dataset.Y); err != nil {
		return nil, err
	}
	logger.Info("forest fitted",
		zap.Int("trees", forest.NumTrees()),
		zap.Duration("elapsed", time.Since(fitStart)))

	metrics, err := ml.Evaluate(forest, dataset.X, dataset.Y)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ml.SaveArtifacts(forest, featureSchema, opts.ModelPath, opts.ColumnsPath); err != nil {
		return nil, err
	}

	report.FeatureCount = featureSchema.Len()
	report.Fingerprint = featureSchema.Fingerprint()
	report.Params = forest.Params()
	report.Metrics = metrics
	report.Duration = time.Since(report.StartedAt)

	logger.Info("training finished",
		zap.Float64("r2", metrics.R2),
		zap.Float64("mae", metrics.MAE),
		zap.Float64("rmse", metrics.RMSE),
		zap.Duration("duration", report.Duration))
	return report, nil
}
