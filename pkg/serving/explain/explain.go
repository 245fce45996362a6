// Package explain computes additive per-feature attributions for a bound
// classifier. For every record, the contributions plus the base value equal
// the model's raw score.
package explain

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/synaptica-ai/heartrisk/pkg/serving/features"
	"github.com/synaptica-ai/heartrisk/pkg/serving/model"
)

const (
	MethodAuto   = "auto"
	MethodTree   = "tree"
	MethodLinear = "linear"
)

// AttributionError reports an explainer that cannot serve the bound model.
type AttributionError struct {
	Method string
	reason error
}

func (e *AttributionError) Error() string {
	return fmt.Sprintf("attribution (%s): %v", e.Method, e.reason)
}

func (e *AttributionError) Unwrap() error {
	return e.reason
}

func IsAttributionError(err error) bool {
	var ae *AttributionError
	return errors.As(err, &ae)
}

// Result holds one signed contribution per feature, in feature order.
type Result struct {
	Method    string    `json:"method"`
	Features  []string  `json:"features"`
	Values    []float64 `json:"values"`
	BaseValue float64   `json:"base_value"`
}

// Contribution is a single feature's share of a Result.
type Contribution struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
}

// Sum returns BaseValue plus every contribution, which approximates the
// model's raw score for the explained record.
func (r Result) Sum() float64 {
	total := r.BaseValue
	for _, v := range r.Values {
		total += v
	}
	return total
}

func (r Result) Map() map[string]float64 {
	out := make(map[string]float64, len(r.Features))
	for i, name := range r.Features {
		out[name] = r.Values[i]
	}
	return out
}

// Ranked orders contributions by absolute value, largest first. Ties keep
// feature order.
func (r Result) Ranked() []Contribution {
	ranked := make([]Contribution, len(r.Features))
	for i, name := range r.Features {
		ranked[i] = Contribution{Feature: name, Value: r.Values[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return math.Abs(ranked[i].Value) > math.Abs(ranked[j].Value)
	})
	return ranked
}

// Explainer computes contributions for a vector in model feature order.
type Explainer interface {
	Explain(x []float64) ([]float64, float64, error)
	Method() string
}

// Bind selects and prepares an explainer for m. Binding may walk the whole
// model, so it should happen once per process.
func Bind(m model.Classifier, method string) (Explainer, error) {
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" {
		method = MethodAuto
	}
	switch method {
	case MethodTree:
		return bindTree(m)
	case MethodLinear:
		return bindLinear(m)
	case MethodAuto:
		if _, ok := m.(model.TreeModel); ok {
			return bindTree(m)
		}
		if _, ok := m.(model.LinearModel); ok {
			return bindLinear(m)
		}
		return nil, &AttributionError{Method: method, reason: fmt.Errorf("no explainer supports model %T", m)}
	default:
		return nil, &AttributionError{Method: method, reason: errors.New("unknown attribution method")}
	}
}

func bindTree(m model.Classifier) (Explainer, error) {
	e, err := NewTreeExplainer(m)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func bindLinear(m model.Classifier) (Explainer, error) {
	e, err := NewLinearExplainer(m)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Service explains aligned records with an explainer bound at construction.
// A binding failure is kept and returned from every Explain call.
type Service struct {
	names     []string
	method    string
	explainer Explainer
	bindErr   error
}

func New(m model.Classifier, method string) *Service {
	explainer, err := Bind(m, method)
	s := &Service{names: m.FeatureNames(), method: method, explainer: explainer, bindErr: err}
	if explainer != nil {
		s.method = explainer.Method()
	}
	return s
}

// NewWithExplainer wraps an already bound explainer.
func NewWithExplainer(names []string, explainer Explainer) *Service {
	return &Service{names: append([]string(nil), names...), method: explainer.Method(), explainer: explainer}
}

// Err returns the binding failure, if any.
func (s *Service) Err() error {
	return s.bindErr
}

// Method names the bound explainer, or the requested method when binding
// failed.
func (s *Service) Method() string {
	return s.method
}

func (s *Service) Explain(aligned features.AlignedRecord) (Result, error) {
	if s.bindErr != nil {
		return Result{}, s.bindErr
	}
	method := s.method
	if len(aligned.Values) != len(s.names) {
		return Result{}, &AttributionError{Method: method, reason: fmt.Errorf("record has %d values, explainer expects %d", len(aligned.Values), len(s.names))}
	}
	values, baseValue, err := s.explainer.Explain(aligned.Values)
	if err != nil {
		if IsAttributionError(err) {
			return Result{}, err
		}
		return Result{}, &AttributionError{Method: method, reason: err}
	}
	if len(values) != len(s.names) {
		return Result{}, &AttributionError{Method: method, reason: fmt.Errorf("explainer returned %d values for %d features", len(values), len(s.names))}
	}
	return Result{
		Method:    method,
		Features:  append([]string(nil), s.names...),
		Values:    values,
		BaseValue: baseValue,
	}, nil
}
