package ml

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"etaengine/schema"
)

func TestArtifacts_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	modelPath, columnsPath := saveTestArtifacts(t, dir, testColumns, 0)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "temporary files must not be left behind")

	art, err := LoadArtifacts(modelPath, columnsPath)
	require.NoError(t, err)
	assert.Equal(t, testColumns, art.Schema.Columns())
	assert.Equal(t, 8, art.Model.NumTrees())

	original := fitForest(t, 0)
	row := []float64{25, 200, 1}
	want, err := original.Predict(row)
	require.NoError(t, err)
	got, err := art.Model.Predict(row)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	raw, err := os.ReadFile(columnsPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"distance_km"`)
}

func TestLoadArtifacts_MismatchedPair(t *testing.T) {
	dirA := t.TempDir()
	modelA, _ := saveTestArtifacts(t, dirA, testColumns, 0)

	dirB := t.TempDir()
	renamed := []string{schema.RiderAge, schema.DistanceKM, "City_Metropolitian"}
	_, columnsB := saveTestArtifacts(t, dirB, renamed, 0)

	_, err := LoadArtifacts(modelA, columnsB)
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	shorter := filepath.Join(dirB, "short.json")
	require.NoError(t, os.WriteFile(shorter, []byte(`["Delivery_person_Age"]`), 0o644))
	_, err = LoadArtifacts(modelA, shorter)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestLoadArtifacts_BadFiles(t *testing.T) {
	dir := t.TempDir()
	modelPath, columnsPath := saveTestArtifacts(t, dir, testColumns, 0)

	_, err := LoadArtifacts(filepath.Join(dir, "missing.gz"), columnsPath)
	assert.Error(t, err)

	garbage := filepath.Join(dir, "garbage.gz")
	require.NoError(t, os.WriteFile(garbage, []byte("not gzip"), 0o644))
	_, err = LoadArtifacts(garbage, columnsPath)
	assert.Error(t, err)

	dup := filepath.Join(dir, "dup.json")
	require.NoError(t, os.WriteFile(dup, []byte(`["a","a","b"]`), 0o644))
	_, err = LoadArtifacts(modelPath, dup)
	assert.ErrorIs(t, err, schema.ErrDuplicateColumn)
}

func TestEncodeModel_Errors(t *testing.T) {
	s, err := schema.New([]string{"only"})
	require.NoError(t, err)

	var buf bytes.Buffer
	assert.ErrorIs(t, EncodeModel(&buf, NewRandomForest(DefaultForestParams()), s), ErrNotTrained)
	assert.ErrorIs(t, EncodeModel(&buf, fitForest(t, 0), s), ErrSchemaMismatch)
}

func TestDecodeModel_PreservesParams(t *testing.T) {
	forest := fitForest(t, 0)
	var buf bytes.Buffer
	s, err := schema.New(testColumns)
	require.NoError(t, err)
	require.NoError(t, EncodeModel(&buf, forest, s))

	decoded, fingerprint, err := DecodeModel(&buf)
	require.NoError(t, err)
	assert.Equal(t, s.Fingerprint(), fingerprint)
	assert.Equal(t, forest.Params().MaxDepth, decoded.Params().MaxDepth)
	assert.Equal(t, forest.Params().Seed, decoded.Params().Seed)
	assert.Zero(t, decoded.Params().Workers)
}
