package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"etaengine/training"
)

var database *sql.DB

var ErrNotInitialized = errors.New("database not initialized")

// InitDB initializes the SQLite database
func InitDB(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return err
	}

	query := `
	CREATE TABLE IF NOT EXISTS training_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id VARCHAR(36) UNIQUE,
		csv_path TEXT,
		model_path TEXT,
		columns_path TEXT,
		rows_read INTEGER,
		rows_used INTEGER,
		rows_dropped INTEGER,
		imputed TEXT,
		feature_count INTEGER,
		fingerprint VARCHAR(64),
		n_estimators INTEGER,
		max_depth INTEGER,
		seed INTEGER,
		r2 REAL,
		mae REAL,
		rmse REAL,
		started_at DATETIME,
		duration_ms INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_training_runs_started ON training_runs(started_at);
	`

	if _, err := conn.Exec(query); err != nil {
		conn.Close()
		return err
	}
	database = conn
	return nil
}

// Close closes the database if it was opened
func Close() error {
	if database == nil {
		return nil
	}
	err := database.Close()
	database = nil
	return err
}

type TrainingRun struct {
	RunID        string         `json:"run_id"`
	CSVPath      string         `json:"csv_path"`
	ModelPath    string         `json:"model_path"`
	ColumnsPath  string         `json:"columns_path"`
	RowsRead     int            `json:"rows_read"`
	RowsUsed     int            `json:"rows_used"`
	RowsDropped  int            `json:"rows_dropped"`
	Imputed      map[string]int `json:"imputed"`
	FeatureCount int            `json:"feature_count"`
	Fingerprint  string         `json:"fingerprint"`
	NEstimators  int            `json:"n_estimators"`
	MaxDepth     int            `json:"max_depth"`
	Seed         int64          `json:"seed"`
	R2           float64        `json:"r2"`
	MAE          float64        `json:"mae"`
	RMSE         float64        `json:"rmse"`
	StartedAt    time.Time      `json:"started_at"`
	DurationMS   int64          `json:"duration_ms"`
}

// SaveTrainingRun records a finished training run
func SaveTrainingRun(report *training.Report) error {
	if database == nil {
		return ErrNotInitialized
	}
	if report == nil || report.RunID == "" {
		return errors.New("training report with run id required")
	}

	imputed, err := json.Marshal(report.Imputed)
	if err != nil {
		return fmt.Errorf("encode imputed counts: %w", err)
	}

	_, err = database.Exec(`
		INSERT INTO training_runs (
			run_id, csv_path, model_path, columns_path,
			rows_read, rows_used, rows_dropped, imputed,
			feature_count, fingerprint, n_estimators, max_depth, seed,
			r2, mae, rmse, started_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.RunID,
		report.CSVPath,
		report.ModelPath,
		report.ColumnsPath,
		report.Rows,
		report.RowsUsed,
		report.RowsDropped,
		string(imputed),
		report.FeatureCount,
		report.Fingerprint,
		report.Params.NEstimators,
		report.Params.MaxDepth,
		report.Params.Seed,
		report.Metrics.R2,
		report.Metrics.MAE,
		report.Metrics.RMSE,
		report.StartedAt.UTC(),
		report.Duration.Milliseconds(),
	)
	return err
}

// QueryTrainingRuns returns the most recent runs first
func QueryTrainingRuns(limit int) ([]TrainingRun, error) {
	if database == nil {
		return nil, ErrNotInitialized
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := database.Query(`
		SELECT run_id, csv_path, model_path, columns_path,
			   rows_read, rows_used, rows_dropped, imputed,
			   feature_count, fingerprint, n_estimators, max_depth, seed,
			   r2, mae, rmse, started_at, duration_ms
		FROM training_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]TrainingRun, 0)
	for rows.Next() {
		var r TrainingRun
		var imputed sql.NullString
		if err := rows.Scan(&r.RunID, &r.CSVPath, &r.ModelPath, &r.ColumnsPath,
			&r.RowsRead, &r.RowsUsed, &r.RowsDropped, &imputed,
			&r.FeatureCount, &r.Fingerprint, &r.NEstimators, &r.MaxDepth, &r.Seed,
			&r.R2, &r.MAE, &r.RMSE, &r.StartedAt, &r.DurationMS); err != nil {
			return nil, err
		}
		if imputed.Valid && imputed.String != "" {
			if err := json.Unmarshal([]byte(imputed.String), &r.Imputed); err != nil {
				return nil, fmt.Errorf("decode imputed counts for %s: %w", r.RunID, err)
			}
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
