// Package visualization renders charts from a fitted topic model. Each requested chart
// yields an Artifact whose status is ok, unavailable or failed; no chart failure ever
// escapes Generate.
package visualization

import (
	"strconv"
	"strings"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/topicmodel"
)

type Chart string

const (
	ChartTopics         Chart = "topics"
	ChartBarchart       Chart = "barchart"
	ChartHeatmap        Chart = "heatmap"
	ChartDocuments      Chart = "documents"
	ChartHierarchy      Chart = "hierarchy"
	ChartTopicsOverTime Chart = "topics_over_time"
)

// Charts lists every supported chart in display order.
var Charts = []Chart{ChartTopics, ChartBarchart, ChartHeatmap, ChartDocuments, ChartHierarchy, ChartTopicsOverTime}

const (
	StatusOK = "ok"

	ReasonInsufficientTopics = "insufficient_topics"
	ReasonNoTimestamps       = "no_timestamps"
	ReasonUnknownChart       = "unknown_chart_type"
)

func unavailable(reason string) string { return "unavailable:" + reason }

func failed(reason string) string { return "failed:" + reason }

// Artifact is one rendered chart. HTML is a complete page; Data holds the same chart as
// plain maps, slices and scalars.
type Artifact struct {
	Type   string         `json:"type"`
	Status string         `json:"status"`
	HTML   string         `json:"html,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
}

func (a Artifact) OK() bool { return a.Status == StatusOK }

// Outcome is "ok", "unavailable" or "failed".
func (a Artifact) Outcome() string {
	kind, _, _ := strings.Cut(a.Status, ":")
	return kind
}

// Input is everything a chart may draw on. State may be nil when only the
// document-level charts are requested.
type Input struct {
	State         *topicmodel.FittedState
	Texts         []string
	Topics        []int
	Probabilities []float64
	Timestamps    []string
}

func (in *Input) distinctTopics() int {
	seen := make(map[int]struct{})
	for _, t := range in.Topics {
		if t != topicmodel.NoiseTopic {
			seen[t] = struct{}{}
		}
	}
	return len(seen)
}

// topicLabel prefers the fitted topic name and falls back to "Topic <id>".
func (in *Input) topicLabel(id int) string {
	if in.State != nil && id >= 0 && id < len(in.State.Topics) {
		return in.State.Topics[id].Name
	}
	return "Topic " + strconv.Itoa(id)
}
