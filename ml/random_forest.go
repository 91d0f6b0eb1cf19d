package ml

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ForestParams are the hyperparameters of a RandomForest. Workers only
// controls fitting parallelism and does not change the fitted model.
type ForestParams struct {
	NEstimators     int   `json:"n_estimators" yaml:"n_estimators"`
	MaxDepth        int   `json:"max_depth" yaml:"max_depth"`
	MinSamplesSplit int   `json:"min_samples_split" yaml:"min_samples_split"`
	MinSamplesLeaf  int   `json:"min_samples_leaf" yaml:"min_samples_leaf"`
	Seed            int64 `json:"seed" yaml:"seed"`
	Workers         int   `json:"-" yaml:"workers"`
}

func DefaultForestParams() ForestParams {
	return ForestParams{
		NEstimators:     50,
		MaxDepth:        15,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Seed:            42,
	}
}

// RandomForest averages regression trees fitted on bootstrap samples.
type RandomForest struct {
	params      ForestParams
	trees       []*RegressionTree
	numFeatures int
}

func NewRandomForest(params ForestParams) *RandomForest {
	if params.NEstimators <= 0 {
		params.NEstimators = DefaultForestParams().NEstimators
	}
	if params.MaxDepth <= 0 {
		params.MaxDepth = DefaultForestParams().MaxDepth
	}
	if params.MinSamplesSplit < 2 {
		params.MinSamplesSplit = 2
	}
	if params.MinSamplesLeaf < 1 {
		params.MinSamplesLeaf = 1
	}
	return &RandomForest{params: params}
}

// Fit trains every tree from its own seed, drawn in order from params.Seed,
// so the result is independent of scheduling and worker count.
func (rf *RandomForest) Fit(ctx context.Context, features [][]float64, targets []float64) error {
	if err := validateTrainingSet(features, targets); err != nil {
		return err
	}

	master := rand.New(rand.NewSource(rf.params.Seed))
	seeds := make([]int64, rf.params.NEstimators)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	workers := rf.params.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	trees := make([]*RegressionTree, rf.params.NEstimators)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range trees {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seeds[i]))
			tree := NewRegressionTree(rf.params.MaxDepth, rf.params.MinSamplesSplit, rf.params.MinSamplesLeaf)
			tree.fitSample(features, targets, bootstrap(rng, len(features)))
			trees[i] = tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("fit forest: %w", err)
	}

	rf.trees = trees
	rf.numFeatures = len(features[0])
	return nil
}

func (rf *RandomForest) Predict(features []float64) (float64, error) {
	if len(rf.trees) == 0 {
		return 0, ErrNotTrained
	}
	if len(features) != rf.numFeatures {
		return 0, fmt.Errorf("expected %d features, got %d", rf.numFeatures, len(features))
	}
	sum := 0.0
	for _, tree := range rf.trees {
		v, err := tree.Predict(features)
		if err != nil {
			return 0, err
		}
		sum += v
	}
	return sum / float64(len(rf.trees)), nil
}

func (rf *RandomForest) Params() ForestParams {
	return rf.params
}

func (rf *RandomForest) NumFeatures() int {
	return rf.numFeatures
}

func (rf *RandomForest) NumTrees() int {
	return len(rf.trees)
}

func forestFromTrees(params ForestParams, numFeatures int, nodes [][]TreeNode) (*RandomForest, error) {
	if len(nodes) == 0 {
		return nil, errors.New("forest has no trees")
	}
	trees := make([]*RegressionTree, len(nodes))
	for i, treeNodes := range nodes {
		tree, err := treeFromNodes(treeNodes, numFeatures)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		tree.maxDepth = params.MaxDepth
		tree.minSamplesSplit = params.MinSamplesSplit
		tree.minSamplesLeaf = params.MinSamplesLeaf
		trees[i] = tree
	}
	return &RandomForest{params: params, trees: trees, numFeatures: numFeatures}, nil
}

func bootstrap(rng *rand.Rand, n int) []int {
	sample := make([]int, n)
	for i := range sample {
		sample[i] = rng.Intn(n)
	}
	return sample
}
