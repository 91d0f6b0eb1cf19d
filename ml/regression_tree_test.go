package ml

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegressionTree_SplitsOnMidpoint(t *testing.T) {
	X := [][]float64{{1}, {2}, {3}, {4}}
	y := []float64{10, 10, 20, 20}

	tree := NewRegressionTree(5, 2, 1)
	require.NoError(t, tree.Fit(X, y))

	nodes := tree.Nodes()
	require.Len(t, nodes, 3)
	assert.False(t, nodes[0].IsLeaf)
	assert.Equal(t, 0, nodes[0].FeatureIdx)
	assert.Equal(t, 2.5, nodes[0].Threshold)
	assert.Equal(t, 1, tree.Depth())

	for _, tc := range []struct {
		x    float64
		want float64
	}{
		{1, 10}, {2.5, 10}, {2.6, 20}, {100, 20}, {-5, 10},
	} {
		got, err := tree.Predict([]float64{tc.x})
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "x=%v", tc.x)
	}
}

func TestRegressionTree_MaxDepth(t *testing.T) {
	X := [][]float64{{1}, {2}, {3}, {4}}
	y := []float64{1, 2, 3, 4}

	tree := NewRegressionTree(1, 2, 1)
	require.NoError(t, tree.Fit(X, y))
	assert.Equal(t, 1, tree.Depth())

	low, _ := tree.Predict([]float64{1})
	high, _ := tree.Predict([]float64{4})
	assert.Equal(t, 1.5, low)
	assert.Equal(t, 3.5, high)

	deep := NewRegressionTree(15, 2, 1)
	require.NoError(t, deep.Fit(X, y))
	for i, row := range X {
		got, _ := deep.Predict(row)
		assert.Equal(t, y[i], got)
	}
}

func TestRegressionTree_MinSamplesLeaf(t *testing.T) {
	X := [][]float64{{1}, {2}, {3}}
	y := []float64{0, 0, 10}

	tree := NewRegressionTree(5, 2, 2)
	require.NoError(t, tree.Fit(X, y))
	assert.Len(t, tree.Nodes(), 1)

	got, err := tree.Predict([]float64{3})
	require.NoError(t, err)
	assert.InDelta(t, 10.0/3, got, 1e-12)
}

func TestRegressionTree_PicksInformativeFeature(t *testing.T) {
	X := [][]float64{{5, 1}, {5, 2}, {5, 3}, {5, 4}}
	y := []float64{1, 1, 9, 9}

	tree := NewRegressionTree(3, 2, 1)
	require.NoError(t, tree.Fit(X, y))
	assert.Equal(t, 1, tree.Nodes()[0].FeatureIdx)
}

func TestRegressionTree_RejectsBadInput(t *testing.T) {
	tree := NewRegressionTree(3, 2, 1)

	assert.Error(t, tree.Fit(nil, nil))
	assert.Error(t, tree.Fit([][]float64{{1}, {2}}, []float64{1}))
	assert.Error(t, tree.Fit([][]float64{{1, 2}, {2}}, []float64{1, 2}))
	assert.Error(t, tree.Fit([][]float64{{math.NaN()}, {2}}, []float64{1, 2}))
	assert.Error(t, tree.Fit([][]float64{{1}, {2}}, []float64{1, math.Inf(1)}))
}

func TestRegressionTree_PredictErrors(t *testing.T) {
	tree := NewRegressionTree(3, 2, 1)
	_, err := tree.Predict([]float64{1})
	assert.ErrorIs(t, err, ErrNotTrained)

	require.NoError(t, tree.Fit([][]float64{{1, 1}, {2, 2}}, []float64{1, 2}))
	_, err = tree.Predict([]float64{1})
	assert.Error(t, err)
}

func TestTreeFromNodes_Validates(t *testing.T) {
	_, err := treeFromNodes(nil, 1)
	assert.ErrorIs(t, err, ErrNotTrained)

	cyclic := []TreeNode{{FeatureIdx: 0, LeftChild: 0, RightChild: 1}, {IsLeaf: true}}
	_, err = treeFromNodes(cyclic, 1)
	assert.Error(t, err)

	badFeature := []TreeNode{{FeatureIdx: 3, LeftChild: 1, RightChild: 2}, {IsLeaf: true}, {IsLeaf: true}}
	_, err = treeFromNodes(badFeature, 1)
	assert.Error(t, err)
}
