package ml

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
)

var ErrNotTrained = errors.New("model not trained")

type RegressionTree struct {
	nodes           []TreeNode
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	numFeatures     int
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Value      float64 `json:"value"`
	Samples    int     `json:"samples"`
	IsLeaf     bool    `json:"is_leaf"`
}

func NewRegressionTree(maxDepth, minSamplesSplit, minSamplesLeaf int) *RegressionTree {
	if maxDepth <= 0 {
		maxDepth = 3
	}
	if minSamplesSplit < 2 {
		minSamplesSplit = 2
	}
	if minSamplesLeaf < 1 {
		minSamplesLeaf = 1
	}
	return &RegressionTree{
		maxDepth:        maxDepth,
		minSamplesSplit: minSamplesSplit,
		minSamplesLeaf:  minSamplesLeaf,
	}
}

func (t *RegressionTree) Fit(features [][]float64, targets []float64) error {
	if err := validateTrainingSet(features, targets); err != nil {
		return err
	}
	sample := make([]int, len(features))
	for i := range sample {
		sample[i] = i
	}
	t.fitSample(features, targets, sample)
	return nil
}

// fitSample grows the tree on the rows listed in sample. Rows may repeat
// (bootstrap draws); inputs are assumed validated.
func (t *RegressionTree) fitSample(features [][]float64, targets []float64, sample []int) {
	t.numFeatures = len(features[0])
	t.nodes = t.nodes[:0]
	t.build(features, targets, sample, 0)
}

func (t *RegressionTree) Predict(features []float64) (float64, error) {
	if len(t.nodes) == 0 {
		return 0, ErrNotTrained
	}
	if len(features) != t.numFeatures {
		return 0, fmt.Errorf("expected %d features, got %d", t.numFeatures, len(features))
	}
	idx := 0
	for {
		node := t.nodes[idx]
		if node.IsLeaf {
			return node.Value, nil
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx <= 0 || idx >= len(t.nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
}

func (t *RegressionTree) Nodes() []TreeNode {
	return append([]TreeNode(nil), t.nodes...)
}

func (t *RegressionTree) Depth() int {
	if len(t.nodes) == 0 {
		return 0
	}
	return t.depthAt(0)
}

func (t *RegressionTree) depthAt(idx int) int {
	node := t.nodes[idx]
	if node.IsLeaf {
		return 0
	}
	return 1 + max(t.depthAt(node.LeftChild), t.depthAt(node.RightChild))
}

func treeFromNodes(nodes []TreeNode, numFeatures int) (*RegressionTree, error) {
	if len(nodes) == 0 {
		return nil, ErrNotTrained
	}
	for i, node := range nodes {
		if node.IsLeaf {
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= numFeatures {
			return nil, fmt.Errorf("node %d: feature index %d out of range", i, node.FeatureIdx)
		}
		if node.LeftChild <= i || node.LeftChild >= len(nodes) || node.RightChild <= i || node.RightChild >= len(nodes) {
			return nil, fmt.Errorf("node %d: invalid children", i)
		}
	}
	return &RegressionTree{nodes: nodes, numFeatures: numFeatures}, nil
}

func (t *RegressionTree) build(features [][]float64, targets []float64, sample []int, depth int) int {
	nodeIdx := len(t.nodes)
	t.nodes = append(t.nodes, TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		Value:      meanOf(targets, sample),
		Samples:    len(sample),
		IsLeaf:     true,
	})

	if depth >= t.maxDepth || len(sample) < t.minSamplesSplit || len(sample) < 2*t.minSamplesLeaf || isConstant(targets, sample) {
		return nodeIdx
	}

	featureIdx, threshold, ok := t.findBestSplit(features, targets, sample)
	if !ok {
		return nodeIdx
	}
	left, right := partition(features, sample, featureIdx, threshold)
	if len(left) == 0 || len(right) == 0 {
		return nodeIdx
	}

	leftIdx := t.build(features, targets, left, depth+1)
	rightIdx := t.build(features, targets, right, depth+1)

	node := &t.nodes[nodeIdx]
	node.FeatureIdx = featureIdx
	node.Threshold = threshold
	node.LeftChild = leftIdx
	node.RightChild = rightIdx
	node.IsLeaf = false
	return nodeIdx
}

// findBestSplit maximizes sum(left)²/nLeft + sum(right)²/nRight, which is the
// same as minimizing the children's squared error.
func (t *RegressionTree) findBestSplit(features [][]float64, targets []float64, sample []int) (int, float64, bool) {
	n := len(sample)
	total := 0.0
	for _, i := range sample {
		total += targets[i]
	}

	bestFeature := -1
	bestThreshold := 0.0
	bestScore := math.Inf(-1)
	sorted := make([]int, n)

	for featureIdx := 0; featureIdx < t.numFeatures; featureIdx++ {
		copy(sorted, sample)
		slices.SortStableFunc(sorted, func(a, b int) int {
			return cmp.Compare(features[a][featureIdx], features[b][featureIdx])
		})
		if features[sorted[0]][featureIdx] == features[sorted[n-1]][featureIdx] {
			continue
		}

		leftSum := 0.0
		for k := 1; k < n; k++ {
			leftSum += targets[sorted[k-1]]
			lo := features[sorted[k-1]][featureIdx]
			hi := features[sorted[k]][featureIdx]
			if lo == hi || k < t.minSamplesLeaf || n-k < t.minSamplesLeaf {
				continue
			}
			rightSum := total - leftSum
			score := leftSum*leftSum/float64(k) + rightSum*rightSum/float64(n-k)
			if score > bestScore {
				bestScore = score
				bestFeature = featureIdx
				bestThreshold = midpoint(lo, hi)
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func midpoint(lo, hi float64) float64 {
	mid := lo/2 + hi/2
	if mid >= hi || math.IsInf(mid, 0) {
		return lo
	}
	return mid
}

func partition(features [][]float64, sample []int, featureIdx int, threshold float64) ([]int, []int) {
	left := make([]int, 0, len(sample)/2)
	right := make([]int, 0, len(sample)/2)
	for _, i := range sample {
		if features[i][featureIdx] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}

func meanOf(targets []float64, sample []int) float64 {
	if len(sample) == 0 {
		return 0
	}
	sum := 0.0
	for _, i := range sample {
		sum += targets[i]
	}
	return sum / float64(len(sample))
}

func isConstant(targets []float64, sample []int) bool {
	first := targets[sample[0]]
	for _, i := range sample[1:] {
		if targets[i] != first {
			return false
		}
	}
	return true
}

func validateTrainingSet(features [][]float64, targets []float64) error {
	if len(features) == 0 || len(targets) == 0 {
		return errors.New("features or targets empty")
	}
	if len(features) != len(targets) {
		return errors.New("features and targets size mismatch")
	}
	width := len(features[0])
	if width == 0 {
		return errors.New("feature rows are empty")
	}
	for i, row := range features {
		if len(row) != width {
			return fmt.Errorf("row %d has %d features, expected %d", i, len(row), width)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("row %d feature %d is not finite", i, j)
			}
		}
		if math.IsNaN(targets[i]) || math.IsInf(targets[i], 0) {
			return fmt.Errorf("row %d target is not finite", i)
		}
	}
	return nil
}
