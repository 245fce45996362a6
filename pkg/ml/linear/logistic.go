// Package linear scores and attributes logistic-regression weights.
package linear

import (
	"errors"
	"fmt"
	"math"
)

type Weights struct {
	Bias         float64   `json:"bias"`
	Coefficients []float64 `json:"coefficients"`
}

// Validate checks that the weights are finite and sized for featureCount.
func (w Weights) Validate(featureCount int) error {
	if len(w.Coefficients) == 0 {
		return errors.New("no coefficients")
	}
	if len(w.Coefficients) != featureCount {
		return fmt.Errorf("%d coefficients for %d features", len(w.Coefficients), featureCount)
	}
	if !finite(w.Bias) {
		return errors.New("bias is not finite")
	}
	for i, c := range w.Coefficients {
		if !finite(c) {
			return fmt.Errorf("coefficient %d is not finite", i)
		}
	}
	return nil
}

// Margin is the log-odds bias + w·x.
func (w Weights) Margin(sample []float64) float64 {
	return dot(w.Coefficients, sample) + w.Bias
}

func Predict(weights Weights, sample []float64) float64 {
	return sigmoid(weights.Margin(sample))
}

// Contributions returns w_i*(x_i - mean_i) per feature together with the
// margin at the means. A nil means slice treats every mean as zero.
func Contributions(weights Weights, means, sample []float64) ([]float64, float64) {
	phi := make([]float64, len(weights.Coefficients))
	base := weights.Bias
	for i, coeff := range weights.Coefficients {
		var mean float64
		if i < len(means) {
			mean = means[i]
		}
		phi[i] = coeff * (sample[i] - mean)
		base += coeff * mean
	}
	return phi, base
}

func dot(weights []float64, sample []float64) float64 {
	var sum float64
	for i := 0; i < len(weights); i++ {
		sum += weights[i] * sample[i]
	}
	return sum
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
