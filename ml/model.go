package ml

import "context"

// Regressor predicts a single continuous target from a feature row laid out
// in schema order.
type Regressor interface {
	Predict(features []float64) (float64, error)
}

type Model interface {
	Regressor
	Fit(ctx context.Context, features [][]float64, targets []float64) error
}

// Estimator answers inference requests; *Predictor is the production
// implementation.
type Estimator interface {
	Predict(ctx context.Context, req Request) (Prediction, error)
}

var (
	_ Model     = (*RandomForest)(nil)
	_ Regressor = (*RegressionTree)(nil)
	_ Estimator = (*Predictor)(nil)
)
