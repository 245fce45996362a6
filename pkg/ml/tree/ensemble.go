package tree

import (
	"errors"
	"fmt"
	"math"
)

// Node is one entry of a flattened regression tree. Internal nodes route a
// sample left when x[FeatureIdx] < Threshold. Cover is the training weight
// (hessian sum) that reached the node.
type Node struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	Left       int     `json:"left"`
	Right      int     `json:"right"`
	Value      float64 `json:"value"`
	Cover      float64 `json:"cover"`
	IsLeaf     bool    `json:"is_leaf"`
}

type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Ensemble is an additive set of regression trees on the log-odds scale.
type Ensemble struct {
	BaseMargin float64
	Trees      []Tree

	featureCount int
	depths       []int
	means        []float64
	covers       [][]float64
}

// NewEnsemble validates the trees against featureCount and precomputes the
// per-tree depth and expected value used by attribution.
func NewEnsemble(baseMargin float64, trees []Tree, featureCount int) (*Ensemble, error) {
	if featureCount <= 0 {
		return nil, errors.New("feature count must be positive")
	}
	if len(trees) == 0 {
		return nil, errors.New("ensemble has no trees")
	}
	e := &Ensemble{
		BaseMargin:   baseMargin,
		Trees:        trees,
		featureCount: featureCount,
		depths:       make([]int, len(trees)),
		means:        make([]float64, len(trees)),
		covers:       make([][]float64, len(trees)),
	}
	for i := range trees {
		if err := trees[i].validate(featureCount); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		e.depths[i] = trees[i].depth(0)
		e.means[i], _ = trees[i].meanValue(0)
		e.covers[i] = make([]float64, len(trees[i].Nodes))
		trees[i].fillCovers(0, e.covers[i])
	}
	return e, nil
}

// Margin returns the raw log-odds score for x.
func (e *Ensemble) Margin(x []float64) (float64, error) {
	if len(x) != e.featureCount {
		return 0, fmt.Errorf("expected %d features, got %d", e.featureCount, len(x))
	}
	sum := e.BaseMargin
	for i := range e.Trees {
		sum += e.Trees[i].leafValue(x)
	}
	return sum, nil
}

// ExpectedValue is the cover-weighted mean margin over the training data.
func (e *Ensemble) ExpectedValue() float64 {
	sum := e.BaseMargin
	for _, m := range e.means {
		sum += m
	}
	return sum
}

func (t *Tree) leafValue(x []float64) float64 {
	idx := 0
	for {
		node := t.Nodes[idx]
		if node.IsLeaf {
			return node.Value
		}
		idx = node.next(x)
	}
}

func (n Node) next(x []float64) int {
	if x[n.FeatureIdx] < n.Threshold {
		return n.Left
	}
	return n.Right
}

// validate walks the tree from the root, rejecting bad indices, cycles,
// shared children and internal nodes without cover.
func (t *Tree) validate(featureCount int) error {
	if len(t.Nodes) == 0 {
		return errors.New("tree has no nodes")
	}
	seen := make([]bool, len(t.Nodes))
	stack := []int{0}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[idx] {
			return fmt.Errorf("node %d reached twice", idx)
		}
		seen[idx] = true

		node := t.Nodes[idx]
		if node.IsLeaf {
			if math.IsNaN(node.Value) || math.IsInf(node.Value, 0) {
				return fmt.Errorf("leaf %d has non-finite value", idx)
			}
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= featureCount {
			return fmt.Errorf("node %d splits on feature %d outside [0,%d)", idx, node.FeatureIdx, featureCount)
		}
		for _, child := range []int{node.Left, node.Right} {
			if child <= 0 || child >= len(t.Nodes) {
				return fmt.Errorf("node %d has child index %d out of range", idx, child)
			}
			if t.Nodes[child].Cover <= 0 {
				return fmt.Errorf("node %d has non-positive cover", child)
			}
		}
		stack = append(stack, node.Left, node.Right)
	}
	return nil
}

func (t *Tree) depth(idx int) int {
	node := t.Nodes[idx]
	if node.IsLeaf {
		return 0
	}
	left := t.depth(node.Left)
	right := t.depth(node.Right)
	if left > right {
		return left + 1
	}
	return right + 1
}

// meanValue returns the cover-weighted leaf mean below idx and the summed
// leaf cover. Stored covers of internal nodes are ignored.
func (t *Tree) meanValue(idx int) (float64, float64) {
	node := t.Nodes[idx]
	if node.IsLeaf {
		return node.Value, node.Cover
	}
	leftMean, leftCover := t.meanValue(node.Left)
	rightMean, rightCover := t.meanValue(node.Right)
	total := leftCover + rightCover
	return (leftMean*leftCover + rightMean*rightCover) / total, total
}

// fillCovers records, for every node reachable from idx, the cover seen by
// its parent's split: the sum of the leaf covers below it.
func (t *Tree) fillCovers(idx int, covers []float64) float64 {
	node := t.Nodes[idx]
	if node.IsLeaf {
		covers[idx] = node.Cover
		return node.Cover
	}
	covers[idx] = t.fillCovers(node.Left, covers) + t.fillCovers(node.Right, covers)
	return covers[idx]
}

func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Logit converts a probability to log-odds, clamping away from 0 and 1.
func Logit(p float64) float64 {
	const eps = 1e-15
	if p < eps {
		p = eps
	}
	if p > 1-eps {
		p = 1 - eps
	}
	return math.Log(p / (1 - p))
}
