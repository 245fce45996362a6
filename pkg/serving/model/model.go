// Package model loads classifier artifacts and exposes them through a small
// capability interface so serving code never depends on a concrete backend.
package model

import (
	"github.com/synaptica-ai/heartrisk/pkg/ml/linear"
	"github.com/synaptica-ai/heartrisk/pkg/ml/tree"
)

const (
	AlgorithmGBTree   = "gbtree"
	AlgorithmLogistic = "logistic"
)

// Classifier is a binary classifier over an ordered feature vector.
// Implementations must be safe for concurrent reads.
type Classifier interface {
	FeatureNames() []string
	Predict(x []float64) (int, error)
	PredictProbability(x []float64) (float64, error)
	// RawScore is the untransformed model output (log-odds for the built-in
	// models) that attributions are measured against.
	RawScore(x []float64) (float64, error)
}

// TreeModel is implemented by classifiers backed by a tree ensemble.
type TreeModel interface {
	Classifier
	Ensemble() *tree.Ensemble
}

// LinearModel is implemented by classifiers backed by a linear score.
type LinearModel interface {
	Classifier
	Weights() linear.Weights
	FeatureMeans() []float64
}

// Describer is implemented by classifiers that can name their algorithm.
type Describer interface {
	Algorithm() string
	Threshold() float64
}

type base struct {
	names     []string
	threshold float64
}

func (b base) FeatureNames() []string {
	return append([]string(nil), b.names...)
}

func (b base) Threshold() float64 {
	return b.threshold
}

func (b base) label(p float64) int {
	if p >= b.threshold {
		return 1
	}
	return 0
}

// GBTree is a gradient-boosted tree classifier with a logistic link.
type GBTree struct {
	base
	ensemble *tree.Ensemble
}

func NewGBTree(names []string, ensemble *tree.Ensemble, threshold float64) *GBTree {
	return &GBTree{base: base{names: names, threshold: threshold}, ensemble: ensemble}
}

func (m *GBTree) Algorithm() string { return AlgorithmGBTree }

func (m *GBTree) Ensemble() *tree.Ensemble { return m.ensemble }

func (m *GBTree) RawScore(x []float64) (float64, error) {
	return m.ensemble.Margin(x)
}

func (m *GBTree) PredictProbability(x []float64) (float64, error) {
	margin, err := m.ensemble.Margin(x)
	if err != nil {
		return 0, err
	}
	return tree.Sigmoid(margin), nil
}

func (m *GBTree) Predict(x []float64) (int, error) {
	p, err := m.PredictProbability(x)
	if err != nil {
		return 0, err
	}
	return m.label(p), nil
}

// Logistic is a logistic-regression classifier.
type Logistic struct {
	base
	weights linear.Weights
	means   []float64
}

func NewLogistic(names []string, weights linear.Weights, means []float64, threshold float64) *Logistic {
	return &Logistic{base: base{names: names, threshold: threshold}, weights: weights, means: means}
}

func (m *Logistic) Algorithm() string { return AlgorithmLogistic }

func (m *Logistic) Weights() linear.Weights { return m.weights }

func (m *Logistic) FeatureMeans() []float64 {
	return append([]float64(nil), m.means...)
}

func (m *Logistic) RawScore(x []float64) (float64, error) {
	if err := m.checkWidth(x); err != nil {
		return 0, err
	}
	return m.weights.Margin(x), nil
}

func (m *Logistic) PredictProbability(x []float64) (float64, error) {
	if err := m.checkWidth(x); err != nil {
		return 0, err
	}
	return linear.Predict(m.weights, x), nil
}

func (m *Logistic) Predict(x []float64) (int, error) {
	p, err := m.PredictProbability(x)
	if err != nil {
		return 0, err
	}
	return m.label(p), nil
}

func (m *Logistic) checkWidth(x []float64) error {
	if len(x) != len(m.weights.Coefficients) {
		return errWidth(len(m.weights.Coefficients), len(x))
	}
	return nil
}
