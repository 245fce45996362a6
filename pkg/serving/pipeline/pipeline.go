// Package pipeline composes alignment, inference and attribution into one
// synchronous risk assessment.
package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/synaptica-ai/heartrisk/pkg/common/logger"
	"github.com/synaptica-ai/heartrisk/pkg/observability/metrics"
	"github.com/synaptica-ai/heartrisk/pkg/serving/explain"
	"github.com/synaptica-ai/heartrisk/pkg/serving/features"
	"github.com/synaptica-ai/heartrisk/pkg/serving/inference"
	"github.com/synaptica-ai/heartrisk/pkg/serving/model"
)

const (
	HighRisk = "High Risk"
	LowRisk  = "Low Risk"
)

// Pipeline stages, as reported in failure metrics.
const (
	StagePredict     = "predict"
	StageProbability = "probability"
	StageExplain     = "explain"
)

// PredictionResult is the outcome of one inference.
type PredictionResult struct {
	Label       int     `json:"label"`
	Probability float64 `json:"probability"`
}

func (p PredictionResult) RiskLabel() string {
	if p.Label == 1 {
		return HighRisk
	}
	return LowRisk
}

// Summary renders the result the way the assessment form shows it, e.g.
// "Low Risk (Probability: 0.23)".
func (p PredictionResult) Summary() string {
	return fmt.Sprintf("%s (Probability: %.2f)", p.RiskLabel(), p.Probability)
}

// Result bundles everything produced for one raw record.
type Result struct {
	Aligned     features.AlignedRecord
	Prediction  PredictionResult
	Attribution explain.Result
}

type Pipeline struct {
	model       model.Classifier
	inference   *inference.Service
	attribution *explain.Service

	specOnce sync.Once
	spec     features.FeatureSpec
}

func New(m model.Classifier, inf *inference.Service, attribution *explain.Service) *Pipeline {
	return &Pipeline{model: m, inference: inf, attribution: attribution}
}

// Spec returns the model's feature order, fetched on first use.
func (p *Pipeline) Spec() features.FeatureSpec {
	p.specOnce.Do(func() {
		p.spec = features.FeatureSpec(p.model.FeatureNames())
	})
	return p.spec
}

// Run aligns, scores and explains raw. Stage errors are returned unchanged
// and nothing is retried.
func (p *Pipeline) Run(raw features.RawRecord) (Result, error) {
	start := time.Now()
	aligned := features.Align(raw, p.Spec())
	if len(aligned.Defaulted) > 0 {
		logger.Log.WithFields(logrus.Fields{
			"defaulted": aligned.Defaulted,
			"supplied":  len(raw),
		}).Warn("Features missing from input were filled with 0")
		metrics.ObserveDefaulted(aligned.Defaulted)
	}

	label, err := p.inference.Predict(aligned)
	if err != nil {
		return Result{}, p.fail(StagePredict, start, err)
	}
	probability, err := p.inference.PredictProbability(aligned)
	if err != nil {
		return Result{}, p.fail(StageProbability, start, err)
	}
	attribution, err := p.attribution.Explain(aligned)
	if err != nil {
		return Result{}, p.fail(StageExplain, start, err)
	}

	prediction := PredictionResult{Label: label, Probability: probability}
	metrics.ObservePrediction(prediction.RiskLabel(), time.Since(start))
	logger.Log.WithFields(logrus.Fields{
		"label":       label,
		"probability": probability,
		"method":      attribution.Method,
	}).Debug("Risk assessment completed")

	return Result{Aligned: aligned, Prediction: prediction, Attribution: attribution}, nil
}

func (p *Pipeline) fail(stage string, start time.Time, err error) error {
	metrics.ObserveFailure(stage, time.Since(start))
	logger.Log.WithError(err).WithField("stage", stage).Warn("Risk assessment failed")
	return err
}
