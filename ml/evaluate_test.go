package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// firstFeature predicts the first feature value unchanged.
type firstFeature struct{}

func (firstFeature) Predict(features []float64) (float64, error) {
	return features[0], nil
}

func TestEvaluate(t *testing.T) {
	X := [][]float64{{1}, {2}, {3}, {4}}

	tests := []struct {
		name    string
		targets []float64
		r2      float64
		mae     float64
		rmse    float64
	}{
		{name: "perfect fit", targets: []float64{1, 2, 3, 4}, r2: 1, mae: 0, rmse: 0},
		{name: "constant offset", targets: []float64{2, 3, 4, 5}, r2: 0.2, mae: 1, rmse: 1},
		{name: "constant target", targets: []float64{3, 3, 3, 3}, r2: 0, mae: 1, rmse: 1.224744871391589},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Evaluate(firstFeature{}, X, tt.targets)
			require.NoError(t, err)
			assert.InDelta(t, tt.r2, m.R2, 1e-9)
			assert.InDelta(t, tt.mae, m.MAE, 1e-9)
			assert.InDelta(t, tt.rmse, m.RMSE, 1e-9)
			assert.Equal(t, 4, m.Samples)
		})
	}
}

func TestEvaluate_ConstantTargetPerfectFit(t *testing.T) {
	m, err := Evaluate(firstFeature{}, [][]float64{{7}, {7}}, []float64{7, 7})
	require.NoError(t, err)
	assert.Equal(t, 1.0, m.R2)

	tree := NewRegressionTree(15, 2, 1)
	flatX := [][]float64{{1}, {2}}
	flatY := []float64{5, 5}
	require.NoError(t, tree.Fit(flatX, flatY))
	m, err = Evaluate(tree, flatX, flatY)
	require.NoError(t, err)
	assert.Equal(t, 1.0, m.R2)
	assert.Zero(t, m.MAE)
}

func TestEvaluate_RejectsBadInput(t *testing.T) {
	_, err := Evaluate(firstFeature{}, nil, nil)
	assert.Error(t, err)

	_, err = Evaluate(firstFeature{}, [][]float64{{1}, {2}}, []float64{1})
	assert.Error(t, err)
}

func TestEvaluate_Forest(t *testing.T) {
	forest := fitForest(t, 0)
	X, y := syntheticData(80, 0)

	m, err := Evaluate(forest, X, y)
	require.NoError(t, err)
	assert.Greater(t, m.R2, 0.8)
	assert.GreaterOrEqual(t, m.RMSE, m.MAE)
	assert.Equal(t, 80, m.Samples)
}
