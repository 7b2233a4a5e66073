package analysis

import (
	"github.com/EvianLUO/bertopic-analysis-tool/internal/topicmodel"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/visualization"
)

const (
	SourceTexts = "texts"
	SourceFile  = "file"
)

type Request struct {
	Texts                []string       `json:"texts"`
	Timestamps           []string       `json:"timestamps,omitempty"`
	Config               map[string]any `json:"config"`
	VisualizationOptions []string       `json:"visualization_options"`
	PreprocessingConfig  map[string]any `json:"preprocessing_config"`
	Stopwords            map[string]any `json:"stopwords"`

	// TotalRows is the row count of the source file before empty cells were dropped.
	// Zero means the texts were submitted directly.
	TotalRows int    `json:"-"`
	Source    string `json:"-"`
}

func (r Request) source() string {
	if r.Source == "" {
		return SourceTexts
	}
	return r.Source
}

func (r Request) totalRows() int {
	if r.TotalRows == 0 {
		return len(r.Texts)
	}
	return r.TotalRows
}

type TopicInfo struct {
	topicmodel.Topic
	Representation []string `json:"Representation"`
}

type ModelInfo struct {
	topicmodel.ModelInfo
	EmbeddingModel string `json:"embedding_model"`
	Segmenter      string `json:"segmenter"`
}

type DocumentStats struct {
	TotalDocuments     int `json:"total_documents"`
	TotalRows          int `json:"total_rows"`
	ProcessedDocuments int `json:"processed_documents"`
}

type Response struct {
	Success bool     `json:"success"`
	RunID   string   `json:"run_id"`
	Texts   []string `json:"texts"`
	Topics  []int    `json:"topics"`
	// Probabilities is null unless calculateProbabilities was requested.
	Probabilities  []float64                         `json:"probabilities"`
	TopicInfo      []TopicInfo                       `json:"topic_info"`
	Visualizations map[string]visualization.Artifact `json:"visualizations"`
	ModelInfo      ModelInfo                         `json:"model_info"`
	DocumentStats  DocumentStats                     `json:"document_stats"`
	DurationMS     int64                             `json:"duration_ms"`
}
