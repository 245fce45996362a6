// Package serving exposes the risk pipeline over HTTP and Kafka.
package serving

import (
	"context"
	"time"

	"github.com/synaptica-ai/heartrisk/pkg/common/logger"
	"github.com/synaptica-ai/heartrisk/pkg/common/models"
	"github.com/synaptica-ai/heartrisk/pkg/ingestion"
	"github.com/synaptica-ai/heartrisk/pkg/serving/explain"
	"github.com/synaptica-ai/heartrisk/pkg/serving/features"
	"github.com/synaptica-ai/heartrisk/pkg/serving/model"
	"github.com/synaptica-ai/heartrisk/pkg/serving/pipeline"
)

// Assessor validates a request, runs the pipeline and shapes the response.
type Assessor struct {
	validator *ingestion.Validator
	pipeline  *pipeline.Pipeline
}

func NewAssessor(validator *ingestion.Validator, p *pipeline.Pipeline) *Assessor {
	return &Assessor{validator: validator, pipeline: p}
}

// Assess scores one request. Nothing about the outcome is stored.
func (a *Assessor) Assess(ctx context.Context, req models.AssessmentRequest) (pipeline.Result, models.AssessmentResponse, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.Result{}, models.AssessmentResponse{}, err
	}
	start := time.Now()
	raw := features.RawRecord(req.Features)
	if err := a.validator.Validate(raw); err != nil {
		return pipeline.Result{}, models.AssessmentResponse{}, err
	}

	result, err := a.pipeline.Run(raw)
	if err != nil {
		return pipeline.Result{}, models.AssessmentResponse{}, err
	}

	resp := NewAssessmentResponse(req, result, time.Since(start))
	logger.Log.WithFields(map[string]interface{}{
		"patient_id":     req.PatientID,
		"correlation_id": req.CorrelationID,
		"risk":           resp.Risk,
		"defaulted":      len(resp.Defaulted),
	}).Debug("Assessment ready")
	return result, resp, nil
}

func NewAssessmentResponse(req models.AssessmentRequest, result pipeline.Result, latency time.Duration) models.AssessmentResponse {
	ranked := result.Attribution.Ranked()
	contributions := make([]models.Contribution, len(ranked))
	for i, c := range ranked {
		contributions[i] = models.Contribution{Feature: c.Feature, Value: c.Value}
	}
	return models.AssessmentResponse{
		PatientID:     req.PatientID,
		CorrelationID: req.CorrelationID,
		Label:         result.Prediction.Label,
		Risk:          result.Prediction.RiskLabel(),
		Probability:   result.Prediction.Probability,
		Summary:       result.Prediction.Summary(),
		Method:        result.Attribution.Method,
		BaseValue:     result.Attribution.BaseValue,
		Contributions: contributions,
		Features:      result.Aligned.Map(),
		Defaulted:     result.Aligned.Defaulted,
		Latency:       latency,
	}
}

// DescribeModel summarises the loaded model for the metadata endpoint.
func DescribeModel(m model.Classifier, attribution *explain.Service) models.ModelInfo {
	info := models.ModelInfo{
		FeatureNames:      m.FeatureNames(),
		AttributionMethod: attribution.Method(),
	}
	if d, ok := m.(model.Describer); ok {
		info.Algorithm = d.Algorithm()
		info.Threshold = d.Threshold()
	}
	if err := attribution.Err(); err != nil {
		info.AttributionError = err.Error()
	}
	return info
}
