package http

import (
	"context"
	"math/rand"
	"net/http"
	"path/filepath"
	"testing"

	"etaengine/ml"
	"etaengine/monitoring"
	"etaengine/schema"
)

var testColumns = []string{schema.RiderAge, schema.DistanceKM, "City_Urban"}

func newTestArtifacts(t *testing.T) *ml.Artifacts {
	t.Helper()

	rng := rand.New(rand.NewSource(1))
	X := make([][]float64, 60)
	y := make([]float64, 60)
	for i := range X {
		age := float64(18 + rng.Intn(40))
		dist := rng.Float64() * 400
		X[i] = []float64{age, dist, float64(i % 2)}
		y[i] = 15 + dist/10 + age/5
	}

	params := ml.DefaultForestParams()
	params.NEstimators = 5
	params.MaxDepth = 6
	forest := ml.NewRandomForest(params)
	if err := forest.Fit(context.Background(), X, y); err != nil {
		t.Fatalf("fit: %v", err)
	}

	s, err := schema.New(testColumns)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.json.gz")
	columnsPath := filepath.Join(dir, "columns.json")
	if err := ml.SaveArtifacts(forest, s, modelPath, columnsPath); err != nil {
		t.Fatalf("save artifacts: %v", err)
	}
	art, err := ml.LoadArtifacts(modelPath, columnsPath)
	if err != nil {
		t.Fatalf("load artifacts: %v", err)
	}
	return art
}

func newTestPredictor(t *testing.T) *ml.Predictor {
	t.Helper()
	p, err := ml.NewPredictor(newTestArtifacts(t), 32)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

// fakePredictor 返回固定结果
type fakePredictor struct {
	art   *ml.Artifacts
	pred  ml.Prediction
	err   error
	calls int
}

func (f *fakePredictor) Predict(ctx context.Context, req ml.Request) (ml.Prediction, error) {
	f.calls++
	return f.pred, f.err
}

func (f *fakePredictor) Validate(req ml.Request) error {
	return nil
}

func (f *fakePredictor) Artifacts() *ml.Artifacts {
	return f.art
}

func newTestHandler(t *testing.T, deps Deps) (http.Handler, *monitoring.MetricsCollector) {
	t.Helper()
	if deps.Predictor == nil {
		deps.Predictor = newTestPredictor(t)
	}
	if deps.Metrics == nil {
		deps.Metrics = monitoring.NewMetricsCollector()
	}
	handler, err := NewHandler(DefaultServerConfig(), deps)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return handler, deps.Metrics
}
