package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 50, cfg.Training.NEstimators)
	assert.Equal(t, 15, cfg.Training.MaxDepth)
	assert.Equal(t, int64(42), cfg.Training.Seed)
	assert.True(t, cfg.Training.StrictTarget)
	assert.Equal(t, []string{"ID", "Delivery_person_ID", "Order_Date"}, cfg.Training.DropColumns)
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
http:
  port: 9090
  timeout: 5s
artifacts:
  model_path: out/model.json.gz
  columns_path: out/columns.json
  watch: true
training:
  n_estimators: 10
  strict_target: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Http.Port)
	assert.Equal(t, 5*time.Second, cfg.Http.Timeout)
	assert.Equal(t, "out/model.json.gz", cfg.Artifacts.ModelPath)
	assert.True(t, cfg.Artifacts.Watch)
	assert.Equal(t, 10, cfg.Training.NEstimators)
	assert.False(t, cfg.Training.StrictTarget)
	// untouched sections keep defaults
	assert.Equal(t, 15, cfg.Training.MaxDepth)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Http.Port, cfg.Http.Port)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"ETA_HTTP_PORT":       "7000",
		"ETA_MODEL_PATH":      "/tmp/m.json.gz",
		"ETA_WATCH_ARTIFACTS": "true",
	}
	cfg := Default()
	err := cfg.applyEnv(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Http.Port)
	assert.Equal(t, "/tmp/m.json.gz", cfg.Artifacts.ModelPath)
	assert.True(t, cfg.Artifacts.Watch)

	env = map[string]string{"ETA_HTTP_PORT": "abc", "ETA_WATCH_ARTIFACTS": "maybe"}
	err = cfg.applyEnv(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
	assert.Len(t, multierr.Errors(err), 2)
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Http.Port = 0
	cfg.Artifacts.ColumnsPath = cfg.Artifacts.ModelPath
	cfg.Training.NEstimators = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 3)
}
