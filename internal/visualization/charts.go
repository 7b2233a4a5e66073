package visualization

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/pipeline"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/reduce"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/topicmodel"
)

const (
	barchartTopics = 8
	barchartWords  = 5
	hoverTextRunes = 100
)

type renderer interface {
	Render(w io.Writer) error
}

func renderHTML(r renderer) (string, error) {
	var buf bytes.Buffer
	if err := r.Render(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func pageOpts(title string) charts.GlobalOpts {
	return charts.WithInitializationOpts(opts.Initialization{
		PageTitle: title,
		Width:     "900px",
		Height:    "640px",
	})
}

// planar projects rows onto two dimensions with PCA, padding when fewer exist.
func planar(ctx context.Context, rows [][]float64) ([][]float64, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	if len(rows[0]) <= 2 {
		out := make([][]float64, len(rows))
		for i, r := range rows {
			out[i] = make([]float64, 2)
			copy(out[i], r)
		}
		return out, nil
	}
	return reduce.PCA{}.Reduce(ctx, rows, pipeline.ReductionParams{
		NeighborCount:  2,
		ComponentCount: 2,
		Metric:         "euclidean",
	})
}

func sizes(topics []int, k int) []int {
	counts := make([]int, k)
	for _, t := range topics {
		if t >= 0 && t < k {
			counts[t]++
		}
	}
	return counts
}

// renderTopics draws the intertopic distance map: each topic's c-TF-IDF row projected
// to the plane, sized by document count.
func renderTopics(ctx context.Context, in *Input) (string, map[string]any, error) {
	if in.State == nil {
		return "", nil, errNoState
	}
	k := in.State.TopicCount()
	coords, err := reduce.PCA{}.Reduce(ctx, in.State.Weights, pipeline.ReductionParams{
		NeighborCount:  2,
		ComponentCount: 2,
		Metric:         "cosine",
	})
	if err != nil {
		return "", nil, fmt.Errorf("project topics: %w", err)
	}
	counts := sizes(in.Topics, k)

	ids := make([]int, k)
	names := make([]string, k)
	xs := make([]float64, k)
	ys := make([]float64, k)
	points := make([]opts.ScatterData, k)
	for id := 0; id < k; id++ {
		ids[id] = id
		names[id] = in.topicLabel(id)
		xs[id], ys[id] = coords[id][0], coords[id][1]
		points[id] = opts.ScatterData{
			Name:       names[id],
			Value:      []float64{xs[id], ys[id]},
			SymbolSize: bubble(counts[id], len(in.Topics)),
		}
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		pageOpts("Intertopic Distance Map"),
		charts.WithTitleOpts(opts.Title{Title: "Intertopic Distance Map"}),
	)
	scatter.AddSeries("topics", points)

	html, err := renderHTML(scatter)
	if err != nil {
		return "", nil, err
	}
	return html, map[string]any{
		"topics": ids,
		"names":  names,
		"x":      xs,
		"y":      ys,
		"sizes":  counts,
	}, nil
}

func bubble(count, total int) int {
	if total == 0 {
		return 10
	}
	return 10 + 60*count/total
}

func renderBarchart(_ context.Context, in *Input) (string, map[string]any, error) {
	if in.State == nil {
		return "", nil, errNoState
	}
	topics := in.State.Topics
	if len(topics) > barchartTopics {
		topics = topics[:barchartTopics]
	}

	page := components.NewPage()
	page.PageTitle = "Topic Word Scores"
	rows := make([]any, 0, len(topics))
	for _, t := range topics {
		n := min(barchartWords, len(t.Words))
		words := t.Words[:n]
		scores := make([]float64, n)
		copy(scores, t.Scores)

		bars := make([]opts.BarData, n)
		for i := range words {
			bars[i] = opts.BarData{Value: scores[i]}
		}
		bar := charts.NewBar()
		bar.SetGlobalOptions(charts.WithTitleOpts(opts.Title{Title: t.Name}))
		bar.SetXAxis(words).AddSeries("c-TF-IDF", bars)
		page.AddCharts(bar)

		rows = append(rows, map[string]any{
			"topic":  t.ID,
			"name":   t.Name,
			"words":  words,
			"scores": scores,
		})
	}

	html, err := renderHTML(page)
	if err != nil {
		return "", nil, err
	}
	return html, map[string]any{"topics": rows}, nil
}

func renderHeatmap(_ context.Context, in *Input) (string, map[string]any, error) {
	if in.State == nil {
		return "", nil, errNoState
	}
	sim := in.State.Similarity()
	k := len(sim)
	labels := make([]string, k)
	for id := range labels {
		labels[id] = in.topicLabel(id)
	}

	cells := make([]opts.HeatMapData, 0, k*k)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			cells = append(cells, opts.HeatMapData{Value: [3]any{i, j, round3(sim[i][j])}})
		}
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		pageOpts("Similarity Matrix"),
		charts.WithTitleOpts(opts.Title{Title: "Similarity Matrix"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: labels}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Min:     0,
			Max:     1,
			InRange: &opts.VisualMapInRange{Color: []string{"#f7fbff", "#08306b"}},
		}),
	)
	hm.SetXAxis(labels).AddSeries("similarity", cells)

	html, err := renderHTML(hm)
	if err != nil {
		return "", nil, err
	}
	matrix := make([]any, k)
	for i := range sim {
		row := make([]float64, k)
		copy(row, sim[i])
		matrix[i] = row
	}
	return html, map[string]any{"labels": labels, "matrix": matrix}, nil
}

func round3(v float64) float64 {
	return float64(int64(v*1000+0.5)) / 1000
}

// renderDocuments scatters every document in the reduced space, one series per topic.
func renderDocuments(ctx context.Context, in *Input) (string, map[string]any, error) {
	if in.State == nil || len(in.State.Reduced) == 0 {
		return "", nil, errNoState
	}
	coords, err := planar(ctx, in.State.Reduced)
	if err != nil {
		return "", nil, fmt.Errorf("project documents: %w", err)
	}
	n := min(len(coords), len(in.Topics))

	xs := make([]float64, n)
	ys := make([]float64, n)
	hover := make([]string, n)
	series := make(map[int][]opts.ScatterData)
	var order []int
	for i := 0; i < n; i++ {
		xs[i], ys[i] = coords[i][0], coords[i][1]
		if i < len(in.Texts) {
			hover[i] = truncate(in.Texts[i], hoverTextRunes)
		}
		t := in.Topics[i]
		if _, ok := series[t]; !ok {
			order = append(order, t)
		}
		series[t] = append(series[t], opts.ScatterData{Name: hover[i], Value: []float64{xs[i], ys[i]}, SymbolSize: 6})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		pageOpts("Documents and Topics"),
		charts.WithTitleOpts(opts.Title{Title: "Documents and Topics"}),
	)
	sort.Ints(order)
	for _, t := range order {
		name := in.topicLabel(t)
		if t == topicmodel.NoiseTopic {
			name = "Outliers"
		}
		scatter.AddSeries(name, series[t])
	}

	html, err := renderHTML(scatter)
	if err != nil {
		return "", nil, err
	}
	data := map[string]any{
		"x":      xs,
		"y":      ys,
		"topics": append([]int(nil), in.Topics[:n]...),
		"texts":  hover,
	}
	if len(in.Probabilities) >= n {
		data["probabilities"] = append([]float64(nil), in.Probabilities[:n]...)
	}
	return html, data, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// renderTopicsOverTime counts documents per topic at each distinct timestamp.
func renderTopicsOverTime(_ context.Context, in *Input) (string, map[string]any, error) {
	buckets, index := timeBuckets(in.Timestamps)

	counts := make(map[int][]int)
	var ids []int
	for doc, t := range in.Topics {
		if t == topicmodel.NoiseTopic || doc >= len(in.Timestamps) {
			continue
		}
		if _, ok := counts[t]; !ok {
			counts[t] = make([]int, len(buckets))
			ids = append(ids, t)
		}
		counts[t][index[in.Timestamps[doc]]]++
	}
	sort.Ints(ids)

	line := charts.NewLine()
	line.SetGlobalOptions(
		pageOpts("Topics over Time"),
		charts.WithTitleOpts(opts.Title{Title: "Topics over Time"}),
	)
	line.SetXAxis(buckets)

	series := make([]any, 0, len(ids))
	for _, id := range ids {
		points := make([]opts.LineData, len(buckets))
		for b, c := range counts[id] {
			points[b] = opts.LineData{Value: c}
		}
		line.AddSeries(in.topicLabel(id), points)
		series = append(series, map[string]any{
			"topic":  id,
			"name":   in.topicLabel(id),
			"counts": counts[id],
		})
	}

	html, err := renderHTML(line)
	if err != nil {
		return "", nil, err
	}
	return html, map[string]any{"timestamps": buckets, "topics": series}, nil
}
