// Package pipeline turns loosely-typed request configuration into typed stage parameters.
package pipeline

import (
	"github.com/spf13/cast"
)

type ReductionParams struct {
	NeighborCount  int     `json:"neighborCount"`
	ComponentCount int     `json:"componentCount"`
	MinDistance    float64 `json:"minDistance"`
	Metric         string  `json:"distanceMetric"`
}

type ClusteringParams struct {
	MinClusterSize int    `json:"minClusterSize"`
	Metric         string `json:"distanceMetric"`
}

type TopicParams struct {
	MinTopicSize int `json:"minTopicSize"`
	// TargetTopicCount is nil when clustering decides the number of topics.
	TargetTopicCount       *int `json:"targetTopicCount,omitempty"`
	TopNWords              int  `json:"topNWords"`
	CalculateProbabilities bool `json:"calculateProbabilities"`
}

type Params struct {
	EmbeddingModel string           `json:"embeddingModel"`
	Reduction      ReductionParams  `json:"reduction"`
	Clustering     ClusteringParams `json:"clustering"`
	Topic          TopicParams      `json:"topic"`
	// Cleaning carries preprocessing overrides embedded in the model config.
	Cleaning map[string]any `json:"-"`
}

// Defaults is the single declaration of every default.
func Defaults() Params {
	return Params{
		EmbeddingModel: "auto",
		Reduction: ReductionParams{
			NeighborCount:  15,
			ComponentCount: 5,
			MinDistance:    0.0,
			Metric:         "cosine",
		},
		Clustering: ClusteringParams{
			MinClusterSize: 15,
			Metric:         "euclidean",
		},
		Topic: TopicParams{
			MinTopicSize:           10,
			TargetTopicCount:       nil,
			TopNWords:              10,
			CalculateProbabilities: false,
		},
	}
}

// Build applies raw over Defaults. Both the nested form (basic, umap, hdbscan, advanced)
// and the descriptive form (reduction, clustering, top-level topic knobs) are accepted;
// the nested form wins when both are present. Values that do not coerce count as absent.
// Ranges are not checked here.
func Build(raw map[string]any) Params {
	p := Defaults()

	if v, ok := str(raw, "basic.embeddingModel", "embedding.model", "embeddingModel"); ok {
		p.EmbeddingModel = v
	}

	if v, ok := integer(raw, "umap.nNeighbors", "reduction.neighborCount", "neighborCount"); ok {
		p.Reduction.NeighborCount = v
	}
	if v, ok := integer(raw, "umap.nComponents", "reduction.componentCount", "componentCount"); ok {
		p.Reduction.ComponentCount = v
	}
	if v, ok := float(raw, "umap.minDist", "reduction.minDistance", "minDistance"); ok {
		p.Reduction.MinDistance = v
	}
	if v, ok := str(raw, "umap.metric", "reduction.distanceMetric", "reduction.metric"); ok {
		p.Reduction.Metric = v
	}

	if v, ok := integer(raw, "hdbscan.minClusterSize", "clustering.minClusterSize", "minClusterSize"); ok {
		p.Clustering.MinClusterSize = v
	}
	if v, ok := str(raw, "hdbscan.metric", "clustering.distanceMetric", "clustering.metric"); ok {
		p.Clustering.Metric = v
	}

	if v, ok := integer(raw, "basic.minTopicSize", "minTopicSize"); ok {
		p.Topic.MinTopicSize = v
	}
	if v, ok := integer(raw, "advanced.nrTopics", "targetTopicCount"); ok {
		p.Topic.TargetTopicCount = &v
	}
	if v, ok := integer(raw, "advanced.topNWords", "topNWords"); ok {
		p.Topic.TopNWords = v
	}
	if v, ok := boolean(raw, "advanced.calculateProbabilities", "calculateProbabilities"); ok {
		p.Topic.CalculateProbabilities = v
	}

	if v := lookup(raw, "cleaning"); v != nil {
		if m, err := cast.ToStringMapE(v); err == nil {
			p.Cleaning = m
		}
	}

	return p
}

// lookup returns the first non-nil value among dotted paths.
func lookup(raw map[string]any, paths ...string) any {
	for _, path := range paths {
		if v := walk(raw, path); v != nil {
			return v
		}
	}
	return nil
}

func walk(m map[string]any, path string) any {
	var cur any = m
	start := 0
	for i := 0; i <= len(path); i++ {
		if i < len(path) && path[i] != '.' {
			continue
		}
		node, err := cast.ToStringMapE(cur)
		if err != nil {
			return nil
		}
		cur = node[path[start:i]]
		if cur == nil {
			return nil
		}
		start = i + 1
	}
	return cur
}

func integer(raw map[string]any, paths ...string) (int, bool) {
	for _, path := range paths {
		if v := walk(raw, path); v != nil {
			if n, err := cast.ToIntE(v); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func float(raw map[string]any, paths ...string) (float64, bool) {
	for _, path := range paths {
		if v := walk(raw, path); v != nil {
			if f, err := cast.ToFloat64E(v); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func str(raw map[string]any, paths ...string) (string, bool) {
	for _, path := range paths {
		if v := walk(raw, path); v != nil {
			if s, err := cast.ToStringE(v); err == nil && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

func boolean(raw map[string]any, paths ...string) (bool, bool) {
	for _, path := range paths {
		if v := walk(raw, path); v != nil {
			if b, err := cast.ToBoolE(v); err == nil {
				return b, true
			}
		}
	}
	return false, false
}
