package models

import "time"

type StopwordCategory struct {
	Name      string
	Words     []string
	UpdatedAt time.Time
}

const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// AnalysisRun is the history record of one analysis request.
type AnalysisRun struct {
	ID             string    `json:"id"`
	Source         string    `json:"source"`
	EmbeddingModel string    `json:"embedding_model"`
	Segmenter      string    `json:"segmenter"`
	NumDocuments   int       `json:"num_documents"`
	NumTopics      int       `json:"num_topics"`
	NumNoise       int       `json:"num_noise"`
	DurationMS     int64     `json:"duration_ms"`
	Status         string    `json:"status"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
