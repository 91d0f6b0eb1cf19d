package ml

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"etaengine/schema"
)

var testColumns = []string{schema.RiderAge, schema.DistanceKM, "City_Urban"}

// syntheticData returns rows laid out as testColumns, with a target that
// grows with distance and rider age.
func syntheticData(n int, shift float64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(7))
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		age := float64(18 + rng.Intn(40))
		dist := rng.Float64() * 400
		urban := float64(rng.Intn(2))
		X[i] = []float64{age, dist, urban}
		y[i] = 15 + dist/10 + age/5 + 3*urban + shift
	}
	return X, y
}

func fitForest(t *testing.T, shift float64) *RandomForest {
	t.Helper()
	X, y := syntheticData(80, shift)
	params := DefaultForestParams()
	params.NEstimators = 8
	params.MaxDepth = 6
	forest := NewRandomForest(params)
	require.NoError(t, forest.Fit(context.Background(), X, y))
	return forest
}

func saveTestArtifacts(t *testing.T, dir string, columns []string, shift float64) (string, string) {
	t.Helper()
	s, err := schema.New(columns)
	require.NoError(t, err)

	modelPath := filepath.Join(dir, "model.json.gz")
	columnsPath := filepath.Join(dir, "columns.json")
	require.NoError(t, SaveArtifacts(fitForest(t, shift), s, modelPath, columnsPath))
	return modelPath, columnsPath
}
