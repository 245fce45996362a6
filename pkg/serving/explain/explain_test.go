package explain

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synaptica-ai/heartrisk/pkg/serving/features"
	"github.com/synaptica-ai/heartrisk/pkg/serving/model"
)

func loadModel(t *testing.T, name string) model.Classifier {
	t.Helper()
	m, err := model.Load(filepath.Join("..", "model", "testdata", name))
	require.NoError(t, err)
	return m
}

func randomRecord(rng *rand.Rand) features.RawRecord {
	return features.RawRecord{
		features.Age:               20 + rng.Intn(71),
		features.SerumCreatinine:   0.1 + rng.Float64()*9.9,
		features.SerumSodium:       100 + rng.Intn(51),
		features.EjectionFraction:  10 + rng.Intn(71),
		features.HighBloodPressure: rng.Intn(2),
		features.Diabetes:          rng.Intn(2),
		features.Anaemia:           rng.Intn(2),
	}
}

func TestAttributionsAreAdditive(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for _, tc := range []struct {
		artifact string
		method   string
	}{
		{"heart_gbtree.json", MethodTree},
		{"heart_gbtree.json", MethodAuto},
		{"heart_logistic.json", MethodLinear},
		{"heart_logistic.json", MethodAuto},
	} {
		m := loadModel(t, tc.artifact)
		svc := New(m, tc.method)
		require.NoError(t, svc.Err())

		for i := 0; i < 200; i++ {
			aligned := features.Align(randomRecord(rng), m.FeatureNames())
			result, err := svc.Explain(aligned)
			require.NoError(t, err)
			raw, err := m.RawScore(aligned.Values)
			require.NoError(t, err)

			tolerance := 1e-4 * math.Max(1, math.Abs(raw))
			assert.InDelta(t, raw, result.Sum(), tolerance, "%s/%s", tc.artifact, tc.method)
			assert.Equal(t, m.FeatureNames(), result.Features)
		}
	}
}

func TestTreeExplainerPicksDrivingFeatures(t *testing.T) {
	m := loadModel(t, "heart_gbtree.json")
	svc := New(m, MethodTree)

	raw := features.RawRecord{
		features.Age:              55,
		features.SerumCreatinine:  3.1,
		features.SerumSodium:      137,
		features.EjectionFraction: 20,
	}
	result, err := svc.Explain(features.Align(raw, m.FeatureNames()))
	require.NoError(t, err)

	contributions := result.Map()
	assert.Greater(t, contributions[features.EjectionFraction], 0.0)
	assert.Greater(t, contributions[features.SerumCreatinine], 0.0)
	assert.Equal(t, 0.0, contributions[features.Diabetes])

	ranked := result.Ranked()
	top := []string{ranked[0].Feature, ranked[1].Feature}
	assert.ElementsMatch(t, []string{features.EjectionFraction, features.SerumCreatinine}, top)
}

func TestTreeMethodOnLinearModelFails(t *testing.T) {
	m := loadModel(t, "heart_logistic.json")
	svc := New(m, MethodTree)
	require.Error(t, svc.Err())
	assert.Equal(t, MethodTree, svc.Method())

	_, err := svc.Explain(features.Align(features.DefaultInputs().Record(), m.FeatureNames()))
	require.Error(t, err)
	assert.True(t, IsAttributionError(err))
	assert.Contains(t, err.Error(), "not tree-structured")
}

func TestLinearMethodOnTreeModelFails(t *testing.T) {
	_, err := Bind(loadModel(t, "heart_gbtree.json"), MethodLinear)
	assert.True(t, IsAttributionError(err))
}

func TestUnknownMethod(t *testing.T) {
	_, err := Bind(loadModel(t, "heart_gbtree.json"), "kernel")
	assert.True(t, IsAttributionError(err))
}

func TestExplainRejectsWrongWidth(t *testing.T) {
	m := loadModel(t, "heart_gbtree.json")
	svc := New(m, MethodAuto)
	_, err := svc.Explain(features.Align(features.RawRecord{}, features.FeatureSpec{features.Age}))
	assert.True(t, IsAttributionError(err))
}

func TestRankedOrdersByMagnitude(t *testing.T) {
	r := Result{
		Features: []string{"a", "b", "c", "d"},
		Values:   []float64{0.1, -0.7, 0.4, 0.1},
	}
	ranked := r.Ranked()
	names := make([]string, len(ranked))
	for i, c := range ranked {
		names[i] = c.Feature
	}
	assert.Equal(t, []string{"b", "c", "a", "d"}, names)
}
