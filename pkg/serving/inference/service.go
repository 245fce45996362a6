package inference

import (
	"errors"
	"fmt"
	"math"

	"github.com/synaptica-ai/heartrisk/pkg/serving/features"
	"github.com/synaptica-ai/heartrisk/pkg/serving/model"
)

// InferenceError reports a record the model cannot score.
type InferenceError struct {
	reason error
}

func (e *InferenceError) Error() string {
	return "inference: " + e.reason.Error()
}

func (e *InferenceError) Unwrap() error {
	return e.reason
}

func IsInferenceError(err error) bool {
	var ie *InferenceError
	return errors.As(err, &ie)
}

// Service scores aligned records with a loaded classifier.
type Service struct {
	model model.Classifier
	names []string
}

func New(m model.Classifier) *Service {
	return &Service{model: m, names: m.FeatureNames()}
}

// Predict returns the binary label, 1 meaning high risk.
func (s *Service) Predict(aligned features.AlignedRecord) (int, error) {
	if err := s.check(aligned); err != nil {
		return 0, err
	}
	label, err := s.model.Predict(aligned.Values)
	if err != nil {
		return 0, &InferenceError{reason: err}
	}
	if label != 0 && label != 1 {
		return 0, &InferenceError{reason: fmt.Errorf("model returned non-binary label %d", label)}
	}
	return label, nil
}

// PredictProbability returns the probability of the positive class.
func (s *Service) PredictProbability(aligned features.AlignedRecord) (float64, error) {
	if err := s.check(aligned); err != nil {
		return 0, err
	}
	p, err := s.model.PredictProbability(aligned.Values)
	if err != nil {
		return 0, &InferenceError{reason: err}
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, &InferenceError{reason: fmt.Errorf("model returned probability %v outside [0,1]", p)}
	}
	return p, nil
}

func (s *Service) check(aligned features.AlignedRecord) error {
	if len(aligned.Values) != len(s.names) {
		return &InferenceError{reason: fmt.Errorf("record has %d values, model expects %d", len(aligned.Values), len(s.names))}
	}
	if len(aligned.Spec) != len(aligned.Values) {
		return &InferenceError{reason: fmt.Errorf("record has %d names for %d values", len(aligned.Spec), len(aligned.Values))}
	}
	for i, name := range s.names {
		if aligned.Spec[i] != name {
			return &InferenceError{reason: fmt.Errorf("feature %d is %q, model expects %q", i, aligned.Spec[i], name)}
		}
	}
	return nil
}
