package tree

import "fmt"

// pathElement tracks one feature on the current root-to-node path.
// zeroFraction is the share of training cover that flows down this path when
// the feature is unknown, oneFraction is 1 when the sample itself follows it.
type pathElement struct {
	featureIndex int
	zeroFraction float64
	oneFraction  float64
	pweight      float64
}

// Contributions computes exact path-dependent SHAP values (Lundberg et al.,
// "Consistent Individualized Feature Attribution for Tree Ensembles") for x.
// The result satisfies sum(phi) + ExpectedValue() == Margin(x) up to rounding.
func (e *Ensemble) Contributions(x []float64) ([]float64, error) {
	if len(x) != e.featureCount {
		return nil, fmt.Errorf("expected %d features, got %d", e.featureCount, len(x))
	}
	phi := make([]float64, e.featureCount)
	for i := range e.Trees {
		maxd := e.depths[i] + 2
		buffer := make([]pathElement, maxd*(maxd+1)/2)
		w := walker{tree: &e.Trees[i], covers: e.covers[i], x: x, phi: phi}
		w.recurse(0, 0, buffer, 1, 1, -1)
	}
	return phi, nil
}

type walker struct {
	tree   *Tree
	covers []float64
	x      []float64
	phi    []float64
}

func (w *walker) recurse(nodeIdx, uniqueDepth int, parentPath []pathElement, parentZero, parentOne float64, parentFeature int) {
	path := parentPath[uniqueDepth+1:]
	copy(path[:uniqueDepth+1], parentPath[:uniqueDepth+1])
	extendPath(path, uniqueDepth, parentZero, parentOne, parentFeature)

	node := w.tree.Nodes[nodeIdx]
	if node.IsLeaf {
		for i := 1; i <= uniqueDepth; i++ {
			weight := unwoundPathSum(path, uniqueDepth, i)
			el := path[i]
			w.phi[el.featureIndex] += weight * (el.oneFraction - el.zeroFraction) * node.Value
		}
		return
	}

	hot := node.next(w.x)
	cold := node.Right
	if hot == node.Right {
		cold = node.Left
	}
	cover := w.covers[nodeIdx]
	hotZero := w.covers[hot] / cover
	coldZero := w.covers[cold] / cover

	incomingZero, incomingOne := 1.0, 1.0
	pathIndex := 0
	for ; pathIndex <= uniqueDepth; pathIndex++ {
		if path[pathIndex].featureIndex == node.FeatureIdx {
			break
		}
	}
	if pathIndex != uniqueDepth+1 {
		incomingZero = path[pathIndex].zeroFraction
		incomingOne = path[pathIndex].oneFraction
		unwindPath(path, uniqueDepth, pathIndex)
		uniqueDepth--
	}

	w.recurse(hot, uniqueDepth+1, path, hotZero*incomingZero, incomingOne, node.FeatureIdx)
	w.recurse(cold, uniqueDepth+1, path, coldZero*incomingZero, 0, node.FeatureIdx)
}

func extendPath(path []pathElement, uniqueDepth int, zeroFraction, oneFraction float64, featureIndex int) {
	path[uniqueDepth] = pathElement{
		featureIndex: featureIndex,
		zeroFraction: zeroFraction,
		oneFraction:  oneFraction,
	}
	if uniqueDepth == 0 {
		path[uniqueDepth].pweight = 1
	}
	denom := float64(uniqueDepth + 1)
	for i := uniqueDepth - 1; i >= 0; i-- {
		path[i+1].pweight += oneFraction * path[i].pweight * float64(i+1) / denom
		path[i].pweight = zeroFraction * path[i].pweight * float64(uniqueDepth-i) / denom
	}
}

func unwindPath(path []pathElement, uniqueDepth, pathIndex int) {
	oneFraction := path[pathIndex].oneFraction
	zeroFraction := path[pathIndex].zeroFraction
	nextOnePortion := path[uniqueDepth].pweight
	denom := float64(uniqueDepth + 1)

	for i := uniqueDepth - 1; i >= 0; i-- {
		if oneFraction != 0 {
			tmp := path[i].pweight
			path[i].pweight = nextOnePortion * denom / (float64(i+1) * oneFraction)
			nextOnePortion = tmp - path[i].pweight*zeroFraction*float64(uniqueDepth-i)/denom
		} else {
			path[i].pweight = path[i].pweight * denom / (zeroFraction * float64(uniqueDepth-i))
		}
	}
	for i := pathIndex; i < uniqueDepth; i++ {
		path[i].featureIndex = path[i+1].featureIndex
		path[i].zeroFraction = path[i+1].zeroFraction
		path[i].oneFraction = path[i+1].oneFraction
	}
}

// unwoundPathSum is the total permutation weight of the path with pathIndex
// removed, without mutating the path.
func unwoundPathSum(path []pathElement, uniqueDepth, pathIndex int) float64 {
	oneFraction := path[pathIndex].oneFraction
	zeroFraction := path[pathIndex].zeroFraction
	nextOnePortion := path[uniqueDepth].pweight
	denom := float64(uniqueDepth + 1)

	var total float64
	for i := uniqueDepth - 1; i >= 0; i-- {
		switch {
		case oneFraction != 0:
			tmp := nextOnePortion * denom / (float64(i+1) * oneFraction)
			total += tmp
			nextOnePortion = path[i].pweight - tmp*zeroFraction*(float64(uniqueDepth-i)/denom)
		case zeroFraction != 0:
			total += (path[i].pweight / zeroFraction) / (float64(uniqueDepth-i) / denom)
		}
	}
	return total
}
