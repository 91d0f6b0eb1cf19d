// Package config loads the shared configuration of the server and the trainer.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"

	"etaengine/schema"
)

// Config 应用配置
type Config struct {
	Http struct {
		Port           int           `yaml:"port"`
		Timeout        time.Duration `yaml:"timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
		MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	} `yaml:"http"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Artifacts struct {
		ModelPath   string `yaml:"model_path"`
		ColumnsPath string `yaml:"columns_path"`
		Watch       bool   `yaml:"watch"`
	} `yaml:"artifacts"`
	Cache struct {
		Size int `yaml:"size"`
	} `yaml:"cache"`
	Training struct {
		CSVPath      string   `yaml:"csv_path"`
		Encoding     string   `yaml:"encoding"`
		NEstimators  int      `yaml:"n_estimators"`
		MaxDepth     int      `yaml:"max_depth"`
		Seed         int64    `yaml:"seed"`
		Workers      int      `yaml:"workers"`
		StrictTarget bool     `yaml:"strict_target"`
		DropColumns  []string `yaml:"drop_columns"`
	} `yaml:"training"`
}

// Default 默认配置
func Default() *Config {
	var c Config
	c.Http.Port = 8080
	c.Http.Timeout = 30 * time.Second
	c.Http.AllowedOrigins = []string{"*"}
	c.Http.MaxBodyBytes = 1 << 20
	c.Log.Level = "info"
	c.Log.MaxSizeMB = 50
	c.Log.MaxBackups = 3
	c.Log.MaxAgeDays = 7
	c.Database.Path = "data/eta.db"
	c.Artifacts.ModelPath = "models/model.json.gz"
	c.Artifacts.ColumnsPath = "models/columns.json"
	c.Cache.Size = 1024
	c.Training.CSVPath = "Zomato Dataset.csv"
	c.Training.Encoding = "utf-8"
	c.Training.NEstimators = 50
	c.Training.MaxDepth = 15
	c.Training.Seed = 42
	c.Training.StrictTarget = true
	c.Training.DropColumns = append([]string(nil), schema.DefaultDropColumns...)
	return &c
}

// Load 读取配置：默认值 -> YAML文件 -> .env -> ETA_* 环境变量
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// defaults only
		case err != nil:
			return nil, err
		default:
			defer file.Close()
			if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs error
	if v, ok := lookup("ETA_HTTP_PORT"); ok {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("ETA_HTTP_PORT: %w", err))
		} else {
			c.Http.Port = port
		}
	}
	if v, ok := lookup("ETA_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := lookup("ETA_LOG_FILE"); ok {
		c.Log.File = v
	}
	if v, ok := lookup("ETA_DB_PATH"); ok {
		c.Database.Path = v
	}
	if v, ok := lookup("ETA_MODEL_PATH"); ok {
		c.Artifacts.ModelPath = v
	}
	if v, ok := lookup("ETA_COLUMNS_PATH"); ok {
		c.Artifacts.ColumnsPath = v
	}
	if v, ok := lookup("ETA_WATCH_ARTIFACTS"); ok {
		watch, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("ETA_WATCH_ARTIFACTS: %w", err))
		} else {
			c.Artifacts.Watch = watch
		}
	}
	if v, ok := lookup("ETA_TRAINING_CSV"); ok {
		c.Training.CSVPath = v
	}
	return errs
}

// Validate 校验配置，返回所有问题
func (c *Config) Validate() error {
	var errs error
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("http.port %d out of range", c.Http.Port))
	}
	if c.Http.Timeout <= 0 {
		errs = multierr.Append(errs, errors.New("http.timeout must be positive"))
	}
	if c.Artifacts.ModelPath == "" {
		errs = multierr.Append(errs, errors.New("artifacts.model_path is required"))
	}
	if c.Artifacts.ColumnsPath == "" {
		errs = multierr.Append(errs, errors.New("artifacts.columns_path is required"))
	}
	if c.Artifacts.ModelPath != "" && c.Artifacts.ModelPath == c.Artifacts.ColumnsPath {
		errs = multierr.Append(errs, errors.New("artifacts.model_path and artifacts.columns_path must differ"))
	}
	if c.Cache.Size < 0 {
		errs = multierr.Append(errs, errors.New("cache.size must not be negative"))
	}
	if c.Training.NEstimators <= 0 {
		errs = multierr.Append(errs, errors.New("training.n_estimators must be positive"))
	}
	if c.Training.MaxDepth <= 0 {
		errs = multierr.Append(errs, errors.New("training.max_depth must be positive"))
	}
	return errs
}
