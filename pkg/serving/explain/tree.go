package explain

import (
	"fmt"

	"github.com/synaptica-ai/heartrisk/pkg/ml/tree"
	"github.com/synaptica-ai/heartrisk/pkg/serving/model"
)

// TreeExplainer computes exact TreeSHAP values for tree ensembles.
type TreeExplainer struct {
	ensemble *tree.Ensemble
	expected float64
}

func NewTreeExplainer(m model.Classifier) (*TreeExplainer, error) {
	tm, ok := m.(model.TreeModel)
	if !ok {
		return nil, &AttributionError{Method: MethodTree, reason: fmt.Errorf("model %T is not tree-structured", m)}
	}
	ensemble := tm.Ensemble()
	return &TreeExplainer{ensemble: ensemble, expected: ensemble.ExpectedValue()}, nil
}

func (e *TreeExplainer) Method() string { return MethodTree }

func (e *TreeExplainer) Explain(x []float64) ([]float64, float64, error) {
	phi, err := e.ensemble.Contributions(x)
	if err != nil {
		return nil, 0, err
	}
	return phi, e.expected, nil
}
