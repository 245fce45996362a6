package explain

import (
	"fmt"

	"github.com/synaptica-ai/heartrisk/pkg/ml/linear"
	"github.com/synaptica-ai/heartrisk/pkg/serving/model"
)

// LinearExplainer attributes a linear score relative to the training means,
// assuming independent features.
type LinearExplainer struct {
	weights linear.Weights
	means   []float64
}

func NewLinearExplainer(m model.Classifier) (*LinearExplainer, error) {
	lm, ok := m.(model.LinearModel)
	if !ok {
		return nil, &AttributionError{Method: MethodLinear, reason: fmt.Errorf("model %T is not linear", m)}
	}
	return &LinearExplainer{weights: lm.Weights(), means: lm.FeatureMeans()}, nil
}

func (e *LinearExplainer) Method() string { return MethodLinear }

func (e *LinearExplainer) Explain(x []float64) ([]float64, float64, error) {
	if len(x) != len(e.weights.Coefficients) {
		return nil, 0, fmt.Errorf("expected %d features, got %d", len(e.weights.Coefficients), len(x))
	}
	phi, base := linear.Contributions(e.weights, e.means, x)
	return phi, base, nil
}
