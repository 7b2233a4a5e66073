package visualization

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"math"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// merge is one step of an agglomerative clustering over topics. Leaves are numbered
// 0..k-1 and the cluster created by step i is k+i.
type merge struct {
	Left, Right int
	Distance    float64
	Size        int
}

// averageLinkage clusters k items given a symmetric distance matrix, joining the pair
// with the smallest mean pairwise distance at each step.
func averageLinkage(dist [][]float64) []merge {
	k := len(dist)
	members := make(map[int][]int, k)
	for i := 0; i < k; i++ {
		members[i] = []int{i}
	}

	mean := func(a, b []int) float64 {
		var sum float64
		for _, i := range a {
			for _, j := range b {
				sum += dist[i][j]
			}
		}
		return sum / float64(len(a)*len(b))
	}

	merges := make([]merge, 0, max(k-1, 0))
	for next := k; len(members) > 1; next++ {
		active := make([]int, 0, len(members))
		for id := range members {
			active = append(active, id)
		}
		sort.Ints(active)

		bi, bj, best := -1, -1, math.Inf(1)
		for x := 0; x < len(active); x++ {
			for y := x + 1; y < len(active); y++ {
				if d := mean(members[active[x]], members[active[y]]); d < best {
					bi, bj, best = active[x], active[y], d
				}
			}
		}
		joined := append(append([]int(nil), members[bi]...), members[bj]...)
		merges = append(merges, merge{Left: bi, Right: bj, Distance: best, Size: len(joined)})
		delete(members, bi)
		delete(members, bj)
		members[next] = joined
	}
	return merges
}

// renderHierarchy draws the topic dendrogram as a tree, with distances 1 - cosine
// similarity between c-TF-IDF rows.
func renderHierarchy(_ context.Context, in *Input) (string, map[string]any, error) {
	if in.State == nil {
		return "", nil, errNoState
	}
	sim := in.State.Similarity()
	k := len(sim)
	if k < 2 {
		return "", nil, fmt.Errorf("hierarchy needs at least 2 fitted topics, have %d", k)
	}
	dist := make([][]float64, k)
	for i := range sim {
		dist[i] = make([]float64, k)
		for j := range sim[i] {
			if i != j {
				dist[i][j] = 1 - sim[i][j]
			}
		}
	}
	merges := averageLinkage(dist)

	labels := make([]string, k)
	for id := range labels {
		labels[id] = in.topicLabel(id)
	}
	var node func(id int) *opts.TreeData
	node = func(id int) *opts.TreeData {
		if id < k {
			return &opts.TreeData{Name: labels[id]}
		}
		m := merges[id-k]
		return &opts.TreeData{
			Name:     fmt.Sprintf("%.3f", m.Distance),
			Children: []*opts.TreeData{node(m.Left), node(m.Right)},
		}
	}
	root := node(k + len(merges) - 1)

	tree := charts.NewTree()
	tree.SetGlobalOptions(
		pageOpts("Hierarchical Clustering"),
		charts.WithTitleOpts(opts.Title{Title: "Hierarchical Clustering"}),
	)
	tree.AddSeries("topics", []opts.TreeData{*root})

	html, err := renderHTML(tree)
	if err != nil {
		return "", nil, err
	}

	steps := make([]any, len(merges))
	for i, m := range merges {
		steps[i] = map[string]any{
			"left":     m.Left,
			"right":    m.Right,
			"distance": m.Distance,
			"size":     m.Size,
		}
	}
	return html, map[string]any{"labels": labels, "merges": steps}, nil
}

var treeTemplate = template.Must(template.New("tree").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Topic Hierarchy</title>
<style>
body { font-family: Arial, sans-serif; margin: 40px; }
.tree { display: flex; flex-wrap: wrap; width: 800px; min-height: 400px; }
.node { box-sizing: border-box; border: 2px solid #fff; background: #4a7fb5; color: #fff; padding: 8px; min-width: 60px; }
.node b { display: block; font-size: 1.4em; }
</style>
</head>
<body>
<h2>Topic Hierarchy</h2>
<div class="tree">
{{- range .}}
<div class="node" style="flex: {{.Count}} 1 0"><span>{{.Label}}</span><b>{{.Count}}</b></div>
{{- end}}
</div>
</body>
</html>
`))

type treeNode struct {
	Label string
	Count int
}

// renderHierarchyTree is the fallback: a flat tree of topics weighted by document count,
// noise included.
func renderHierarchyTree(_ context.Context, in *Input) (string, map[string]any, error) {
	counts := make(map[int]int)
	var ids []int
	for _, t := range in.Topics {
		if _, ok := counts[t]; !ok {
			ids = append(ids, t)
		}
		counts[t]++
	}
	sort.Ints(ids)

	nodes := make([]treeNode, len(ids))
	labels := make([]string, len(ids))
	values := make([]int, len(ids))
	parents := make([]string, len(ids))
	for i, id := range ids {
		labels[i] = fmt.Sprintf("Topic %d", id)
		values[i] = counts[id]
		nodes[i] = treeNode{Label: labels[i], Count: values[i]}
	}

	var buf bytes.Buffer
	if err := treeTemplate.Execute(&buf, nodes); err != nil {
		return "", nil, err
	}
	return buf.String(), map[string]any{
		"labels":   labels,
		"values":   values,
		"parents":  parents,
		"fallback": true,
	}, nil
}
