package ml

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Metrics summarizes how well a model fits a dataset.
type Metrics struct {
	R2      float64 `json:"r2"`
	MAE     float64 `json:"mae"`
	RMSE    float64 `json:"rmse"`
	Samples int     `json:"samples"`
}

func Evaluate(model Regressor, features [][]float64, targets []float64) (Metrics, error) {
	if len(features) == 0 || len(features) != len(targets) {
		return Metrics{}, errors.New("evaluate: features and targets must be non-empty and equal length")
	}

	predicted := make([]float64, len(features))
	for i, row := range features {
		v, err := model.Predict(row)
		if err != nil {
			return Metrics{}, err
		}
		predicted[i] = v
	}

	r2 := stat.RSquaredFrom(predicted, targets, nil)
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		// constant targets
		r2 = 0
		if floats.Equal(predicted, targets) {
			r2 = 1
		}
	}

	n := float64(len(targets))
	return Metrics{
		R2:      r2,
		MAE:     floats.Distance(predicted, targets, 1) / n,
		RMSE:    floats.Distance(predicted, targets, 2) / math.Sqrt(n),
		Samples: len(targets),
	}, nil
}
