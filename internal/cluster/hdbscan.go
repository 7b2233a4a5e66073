// Package cluster implements density clustering of reduced document vectors.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/pipeline"
)

const Noise = -1

var ErrInvalidParams = errors.New("invalid clustering parameters")

// minDistance keeps lambdas finite for duplicate points.
const minDistance = 1e-10

type Result struct {
	// Labels holds a cluster id per point, Noise for unclustered points. Ids are
	// contiguous from 0.
	Labels []int
	// Probabilities holds the membership strength of each point in its cluster; 0 for
	// noise.
	Probabilities []float64
}

type distanceFunc func(a, b []float64) float64

func metricFunc(name string) (distanceFunc, error) {
	switch name {
	case "euclidean":
		return func(a, b []float64) float64 { return floats.Distance(a, b, 2) }, nil
	case "manhattan":
		return func(a, b []float64) float64 { return floats.Distance(a, b, 1) }, nil
	case "cosine":
		return func(a, b []float64) float64 {
			na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
			if na == 0 || nb == 0 {
				return 1
			}
			return math.Max(0, 1-floats.Dot(a, b)/(na*nb))
		}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported metric %q", ErrInvalidParams, name)
	}
}

// AllNoise labels n points as noise.
func AllNoise(n int) *Result {
	res := &Result{Labels: make([]int, n), Probabilities: make([]float64, n)}
	for i := range res.Labels {
		res.Labels[i] = Noise
	}
	return res
}

// HDBSCAN clusters points with min_samples equal to the minimum cluster size and
// excess-of-mass cluster selection. The root cluster is never selected, so a corpus
// without density structure comes back as all noise.
func HDBSCAN(ctx context.Context, points [][]float64, p pipeline.ClusteringParams) (*Result, error) {
	if p.MinClusterSize < 2 {
		return nil, fmt.Errorf("%w: minClusterSize must be at least 2, got %d", ErrInvalidParams, p.MinClusterSize)
	}
	dist, err := metricFunc(p.Metric)
	if err != nil {
		return nil, err
	}

	n := len(points)
	res := AllNoise(n)
	if n < 2 {
		return res, nil
	}
	for i, pt := range points {
		if len(pt) != len(points[0]) {
			return nil, fmt.Errorf("point %d has %d dimensions, expected %d", i, len(pt), len(points[0]))
		}
	}

	minSamples := min(p.MinClusterSize, n-1)
	core, err := coreDistances(ctx, points, dist, minSamples)
	if err != nil {
		return nil, err
	}
	edges, err := mutualReachabilityMST(ctx, points, dist, core)
	if err != nil {
		return nil, err
	}

	merges := singleLinkage(n, edges)
	tree := condense(n, merges, p.MinClusterSize)
	selected := tree.selectClusters()
	tree.label(selected, res)
	return res, nil
}

func coreDistances(ctx context.Context, points [][]float64, dist distanceFunc, k int) ([]float64, error) {
	n := len(points)
	core := make([]float64, n)
	row := make([]float64, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := 0; j < n; j++ {
			row[j] = dist(points[i], points[j])
		}
		row[i] = 0
		sort.Float64s(row)
		// row[0] is the point itself
		core[i] = row[k]
	}
	return core, nil
}

type edge struct {
	a, b   int
	weight float64
}

// mutualReachabilityMST runs Prim's algorithm over the implicit complete graph.
func mutualReachabilityMST(ctx context.Context, points [][]float64, dist distanceFunc, core []float64) ([]edge, error) {
	n := len(points)
	inTree := make([]bool, n)
	best := make([]float64, n)
	from := make([]int, n)
	for i := range best {
		best[i] = math.Inf(1)
	}

	edges := make([]edge, 0, n-1)
	current := 0
	inTree[0] = true
	for len(edges) < n-1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next := -1
		for j := 0; j < n; j++ {
			if inTree[j] {
				continue
			}
			d := math.Max(dist(points[current], points[j]), math.Max(core[current], core[j]))
			if d < best[j] {
				best[j] = d
				from[j] = current
			}
			if next == -1 || best[j] < best[next] {
				next = j
			}
		}
		edges = append(edges, edge{a: from[next], b: next, weight: best[next]})
		inTree[next] = true
		current = next
	}

	sort.SliceStable(edges, func(i, j int) bool { return edges[i].weight < edges[j].weight })
	return edges, nil
}

// merge is one step of the single-linkage dendrogram. Node ids below n are points; the
// i-th merge creates node n+i.
type merge struct {
	left, right int
	distance    float64
	size        int
}

func singleLinkage(n int, edges []edge) []merge {
	parent := make([]int, 2*n-1)
	size := make([]int, 2*n-1)
	for i := range parent {
		parent[i] = i
		if i < n {
			size[i] = 1
		}
	}
	find := func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	merges := make([]merge, 0, n-1)
	for _, e := range edges {
		ra, rb := find(e.a), find(e.b)
		node := n + len(merges)
		merges = append(merges, merge{left: ra, right: rb, distance: e.weight, size: size[ra] + size[rb]})
		parent[ra], parent[rb] = node, node
		size[node] = size[ra] + size[rb]
	}
	return merges
}

// condensedEdge links a cluster to a child cluster or to a point that falls out of it.
type condensedEdge struct {
	parent  int
	child   int
	isPoint bool
	lambda  float64
	size    int
}

type condensedTree struct {
	n             int
	edges         []condensedEdge
	clusterCount  int
	clusterParent []int
	birth         []float64
}

func condense(n int, merges []merge, minClusterSize int) *condensedTree {
	t := &condensedTree{n: n, clusterCount: 1, clusterParent: []int{-1}, birth: []float64{0}}

	sizeOf := func(node int) int {
		if node < n {
			return 1
		}
		return merges[node-n].size
	}
	pointsUnder := func(node int, visit func(int)) {
		stack := []int{node}
		for len(stack) > 0 {
			x := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if x < n {
				visit(x)
				continue
			}
			stack = append(stack, merges[x-n].left, merges[x-n].right)
		}
	}

	root := n + len(merges) - 1
	clusterOf := map[int]int{root: 0}
	queue := []int{root}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		m := merges[node-n]
		c := clusterOf[node]
		lambda := 1 / math.Max(m.distance, minDistance)

		fallOut := func(child int) {
			pointsUnder(child, func(pt int) {
				t.edges = append(t.edges, condensedEdge{parent: c, child: pt, isPoint: true, lambda: lambda, size: 1})
			})
		}

		leftBig := sizeOf(m.left) >= minClusterSize
		rightBig := sizeOf(m.right) >= minClusterSize
		switch {
		case leftBig && rightBig:
			for _, child := range []int{m.left, m.right} {
				id := t.clusterCount
				t.clusterCount++
				t.clusterParent = append(t.clusterParent, c)
				t.birth = append(t.birth, lambda)
				clusterOf[child] = id
				t.edges = append(t.edges, condensedEdge{parent: c, child: id, lambda: lambda, size: sizeOf(child)})
				queue = append(queue, child)
			}
		case leftBig:
			fallOut(m.right)
			clusterOf[m.left] = c
			queue = append(queue, m.left)
		case rightBig:
			fallOut(m.left)
			clusterOf[m.right] = c
			queue = append(queue, m.right)
		default:
			fallOut(m.left)
			fallOut(m.right)
		}
	}
	return t
}

// selectClusters applies excess-of-mass selection. Child cluster ids are always larger
// than their parent's, so a reverse scan visits children first.
func (t *condensedTree) selectClusters() []bool {
	stability := make([]float64, t.clusterCount)
	children := make([][]int, t.clusterCount)
	for _, e := range t.edges {
		stability[e.parent] += (e.lambda - t.birth[e.parent]) * float64(e.size)
		if !e.isPoint {
			children[e.parent] = append(children[e.parent], e.child)
		}
	}

	selected := make([]bool, t.clusterCount)
	for c := t.clusterCount - 1; c >= 1; c-- {
		var childSum float64
		for _, ch := range children[c] {
			childSum += stability[ch]
		}
		if childSum > stability[c] {
			stability[c] = childSum
			continue
		}
		selected[c] = true
		stack := append([]int(nil), children[c]...)
		for len(stack) > 0 {
			d := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			selected[d] = false
			stack = append(stack, children[d]...)
		}
	}
	return selected
}

func (t *condensedTree) label(selected []bool, res *Result) {
	ids := make([]int, t.clusterCount)
	next := 0
	for c := range ids {
		ids[c] = Noise
		if selected[c] {
			ids[c] = next
			next++
		}
	}

	deaths := make([]float64, t.clusterCount)
	for _, e := range t.edges {
		deaths[e.parent] = math.Max(deaths[e.parent], e.lambda)
	}

	for _, e := range t.edges {
		if !e.isPoint {
			continue
		}
		c := e.parent
		for c > 0 && !selected[c] {
			c = t.clusterParent[c]
		}
		if c <= 0 {
			continue
		}
		res.Labels[e.child] = ids[c]
		if deaths[c] == 0 || math.IsInf(deaths[c], 0) {
			res.Probabilities[e.child] = 1
			continue
		}
		res.Probabilities[e.child] = math.Min(e.lambda, deaths[c]) / deaths[c]
	}
}
