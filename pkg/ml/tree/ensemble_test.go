package tree

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stump() Tree {
	return Tree{Nodes: []Node{
		{FeatureIdx: 0, Threshold: 5, Left: 1, Right: 2, Cover: 40},
		{IsLeaf: true, Value: -1, Cover: 30},
		{IsLeaf: true, Value: 2, Cover: 10},
	}}
}

func deepTree() Tree {
	return Tree{Nodes: []Node{
		{FeatureIdx: 0, Threshold: 50, Left: 1, Right: 2, Cover: 100},
		{FeatureIdx: 1, Threshold: 1.5, Left: 3, Right: 4, Cover: 60},
		{FeatureIdx: 0, Threshold: 70, Left: 5, Right: 6, Cover: 40},
		{IsLeaf: true, Value: 0.2, Cover: 35},
		{IsLeaf: true, Value: -0.4, Cover: 25},
		{IsLeaf: true, Value: 0.5, Cover: 25},
		{IsLeaf: true, Value: 1.1, Cover: 15},
	}}
}

func TestStumpContributions(t *testing.T) {
	e, err := NewEnsemble(0, []Tree{stump()}, 2)
	require.NoError(t, err)

	assert.InDelta(t, -0.25, e.ExpectedValue(), 1e-12)

	phi, err := e.Contributions([]float64{3, 9})
	require.NoError(t, err)
	assert.InDelta(t, -0.75, phi[0], 1e-12)
	assert.Equal(t, 0.0, phi[1])

	phi, err = e.Contributions([]float64{8, 9})
	require.NoError(t, err)
	assert.InDelta(t, 2.25, phi[0], 1e-12)
}

func TestContributionsAreAdditive(t *testing.T) {
	e, err := NewEnsemble(Logit(0.4), []Tree{deepTree(), stump(), deepTree()}, 3)
	require.NoError(t, err)

	samples := [][]float64{
		{20, 0, 0},
		{20, 3, 1},
		{55, 1, 7},
		{65, 2, 2},
		{80, 0, 4},
		{50, 1.5, 5},
	}
	for _, x := range samples {
		phi, err := e.Contributions(x)
		require.NoError(t, err)
		margin, err := e.Margin(x)
		require.NoError(t, err)

		sum := e.ExpectedValue()
		for _, v := range phi {
			sum += v
		}
		assert.InDelta(t, margin, sum, 1e-9, "sample %v", x)
		assert.Equal(t, 0.0, phi[2], "unused feature must not contribute")
	}
}

func TestMarginFollowsStrictLessThan(t *testing.T) {
	e, err := NewEnsemble(0, []Tree{stump()}, 1)
	require.NoError(t, err)

	below, err := e.Margin([]float64{4.999})
	require.NoError(t, err)
	at, err := e.Margin([]float64{5})
	require.NoError(t, err)
	assert.Equal(t, -1.0, below)
	assert.Equal(t, 2.0, at)
}

func TestNewEnsembleRejectsBrokenTrees(t *testing.T) {
	cases := map[string]Tree{
		"empty":         {},
		"feature range": {Nodes: []Node{{FeatureIdx: 4, Left: 1, Right: 2}, {IsLeaf: true, Cover: 1}, {IsLeaf: true, Cover: 1}}},
		"child range":   {Nodes: []Node{{FeatureIdx: 0, Left: 1, Right: 9}, {IsLeaf: true, Cover: 1}}},
		"self loop":     {Nodes: []Node{{FeatureIdx: 0, Left: 0, Right: 1}, {IsLeaf: true, Cover: 1}}},
		"shared child":  {Nodes: []Node{{FeatureIdx: 0, Left: 1, Right: 1}, {IsLeaf: true, Cover: 1}}},
		"zero cover":    {Nodes: []Node{{FeatureIdx: 0, Left: 1, Right: 2}, {IsLeaf: true, Cover: 0}, {IsLeaf: true, Cover: 1}}},
		"nan leaf":      {Nodes: []Node{{IsLeaf: true, Value: math.NaN()}}},
	}
	for name, tr := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewEnsemble(0, []Tree{tr}, 2)
			assert.Error(t, err)
		})
	}
}

func TestContributionsRejectWrongWidth(t *testing.T) {
	e, err := NewEnsemble(0, []Tree{stump()}, 2)
	require.NoError(t, err)
	_, err = e.Contributions([]float64{1})
	assert.Error(t, err)
}

func TestSigmoidLogitRoundTrip(t *testing.T) {
	for _, p := range []float64{0.01, 0.23, 0.5, 0.81} {
		assert.InDelta(t, p, Sigmoid(Logit(p)), 1e-12)
	}
	assert.False(t, math.IsInf(Logit(0), 0))
}
