package ml

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"etaengine/schema"
)

const (
	artifactFormat  = "eta-random-forest"
	artifactVersion = 1

	compressionLevel = 3
)

// ErrSchemaMismatch reports a model artifact paired with a column list it
// was not trained on.
var ErrSchemaMismatch = errors.New("model and column list do not match")

type forestArtifact struct {
	Format            string       `json:"format"`
	Version           int          `json:"version"`
	Params            ForestParams `json:"params"`
	NumFeatures       int          `json:"num_features"`
	SchemaFingerprint string       `json:"schema_fingerprint"`
	Trees             [][]TreeNode `json:"trees"`
}

// Artifacts is a model loaded together with the schema it was trained on.
type Artifacts struct {
	Model       *RandomForest
	Schema      schema.Schema
	ModelPath   string
	ColumnsPath string
	LoadedAt    time.Time
}

// EncodeModel serializes a fitted forest as gzip-compressed JSON bound to
// the schema fingerprint.
func EncodeModel(w io.Writer, model *RandomForest, s schema.Schema) error {
	if model.NumTrees() == 0 {
		return ErrNotTrained
	}
	if model.NumFeatures() != s.Len() {
		return fmt.Errorf("%w: model has %d features, schema has %d columns",
			ErrSchemaMismatch, model.NumFeatures(), s.Len())
	}

	art := forestArtifact{
		Format:            artifactFormat,
		Version:           artifactVersion,
		Params:            model.Params(),
		NumFeatures:       model.NumFeatures(),
		SchemaFingerprint: s.Fingerprint(),
		Trees:             make([][]TreeNode, 0, model.NumTrees()),
	}
	for _, tree := range model.trees {
		art.Trees = append(art.Trees, tree.Nodes())
	}

	zw, err := gzip.NewWriterLevel(w, compressionLevel)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(zw).Encode(&art); err != nil {
		zw.Close()
		return fmt.Errorf("encode model: %w", err)
	}
	return zw.Close()
}

// DecodeModel reads a model written by EncodeModel and returns it with the
// fingerprint of the schema it was trained on.
func DecodeModel(r io.Reader) (*RandomForest, string, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, "", fmt.Errorf("open model: %w", err)
	}
	defer zr.Close()

	var art forestArtifact
	if err := json.NewDecoder(zr).Decode(&art); err != nil {
		return nil, "", fmt.Errorf("decode model: %w", err)
	}
	if art.Format != artifactFormat {
		return nil, "", fmt.Errorf("unexpected model format %q", art.Format)
	}
	if art.Version != artifactVersion {
		return nil, "", fmt.Errorf("unsupported model version %d", art.Version)
	}

	model, err := forestFromTrees(art.Params, art.NumFeatures, art.Trees)
	if err != nil {
		return nil, "", fmt.Errorf("decode model: %w", err)
	}
	return model, art.SchemaFingerprint, nil
}

// SaveArtifacts writes the model and its column list. Both are fully
// encoded before either file is replaced.
func SaveArtifacts(model *RandomForest, s schema.Schema, modelPath, columnsPath string) error {
	var modelBuf bytes.Buffer
	if err := EncodeModel(&modelBuf, model, s); err != nil {
		return err
	}
	columns, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode columns: %w", err)
	}

	if err := writeFileAtomic(modelPath, modelBuf.Bytes()); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	if err := writeFileAtomic(columnsPath, append(columns, '\n')); err != nil {
		return fmt.Errorf("write columns: %w", err)
	}

	zap.L().Info("artifacts saved",
		zap.String("model", modelPath),
		zap.String("columns", columnsPath),
		zap.Int("features", s.Len()),
		zap.String("fingerprint", s.Fingerprint()))
	return nil
}

// LoadArtifacts loads the model and column list together and rejects a pair
// that was not produced by the same training run.
func LoadArtifacts(modelPath, columnsPath string) (*Artifacts, error) {
	raw, err := os.ReadFile(columnsPath)
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	var s schema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode columns %s: %w", columnsPath, err)
	}

	f, err := os.Open(modelPath)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	defer f.Close()

	model, fingerprint, err := DecodeModel(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", modelPath, err)
	}
	if model.NumFeatures() != s.Len() {
		return nil, fmt.Errorf("%w: model expects %d features, %s lists %d",
			ErrSchemaMismatch, model.NumFeatures(), columnsPath, s.Len())
	}
	if fingerprint != s.Fingerprint() {
		return nil, fmt.Errorf("%w: fingerprint %s != %s", ErrSchemaMismatch, fingerprint, s.Fingerprint())
	}

	return &Artifacts{
		Model:       model,
		Schema:      s,
		ModelPath:   modelPath,
		ColumnsPath: columnsPath,
		LoadedAt:    time.Now(),
	}, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
