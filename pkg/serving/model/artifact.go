package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/synaptica-ai/heartrisk/pkg/ml/linear"
	"github.com/synaptica-ai/heartrisk/pkg/ml/tree"
)

// Artifact is the on-disk model description produced by the training pipeline.
type Artifact struct {
	Model struct {
		Type         string         `json:"type"`
		Algorithm    string         `json:"algorithm"`
		FeatureNames []string       `json:"feature_names"`
		Threshold    *float64       `json:"threshold,omitempty"`
		BaseScore    *float64       `json:"base_score,omitempty"`
		Trees        []tree.Tree    `json:"trees,omitempty"`
		Weights      linear.Weights `json:"weights"`
		FeatureMeans []float64      `json:"feature_means,omitempty"`
	} `json:"model"`
}

// Load reads and validates the artifact at path. Any failure is returned as an
// *ArtifactLoadError.
func Load(path string) (Classifier, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &ArtifactLoadError{Path: path, reason: err}
	}
	var artifact Artifact
	if err := json.Unmarshal(content, &artifact); err != nil {
		return nil, &ArtifactLoadError{Path: path, reason: fmt.Errorf("decode: %w", err)}
	}
	m, err := artifact.Build()
	if err != nil {
		return nil, &ArtifactLoadError{Path: path, reason: err}
	}
	return m, nil
}

// Build turns a decoded artifact into a classifier.
func (a Artifact) Build() (Classifier, error) {
	spec := a.Model
	if spec.Type != "" && spec.Type != "classification" {
		return nil, fmt.Errorf("unsupported model type %q", spec.Type)
	}
	names, err := checkNames(spec.FeatureNames)
	if err != nil {
		return nil, err
	}

	threshold := 0.5
	if spec.Threshold != nil {
		threshold = *spec.Threshold
	}
	if math.IsNaN(threshold) || threshold <= 0 || threshold >= 1 {
		return nil, fmt.Errorf("threshold %v outside (0,1)", threshold)
	}

	switch strings.ToLower(spec.Algorithm) {
	case AlgorithmGBTree, "xgboost":
		baseScore := 0.5
		if spec.BaseScore != nil {
			baseScore = *spec.BaseScore
		}
		if math.IsNaN(baseScore) || baseScore <= 0 || baseScore >= 1 {
			return nil, fmt.Errorf("base_score %v outside (0,1)", baseScore)
		}
		ensemble, err := tree.NewEnsemble(tree.Logit(baseScore), spec.Trees, len(names))
		if err != nil {
			return nil, err
		}
		return NewGBTree(names, ensemble, threshold), nil
	case AlgorithmLogistic:
		if err := spec.Weights.Validate(len(names)); err != nil {
			return nil, fmt.Errorf("weights: %w", err)
		}
		if spec.FeatureMeans != nil && len(spec.FeatureMeans) != len(names) {
			return nil, fmt.Errorf("%d feature means for %d features", len(spec.FeatureMeans), len(names))
		}
		return NewLogistic(names, spec.Weights, spec.FeatureMeans, threshold), nil
	case "":
		return nil, errors.New("artifact missing algorithm")
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", spec.Algorithm)
	}
}

func checkNames(names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, errors.New("artifact missing feature names")
	}
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			return nil, errors.New("artifact has an empty feature name")
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate feature name %q", name)
		}
		seen[name] = struct{}{}
	}
	return append([]string(nil), names...), nil
}
