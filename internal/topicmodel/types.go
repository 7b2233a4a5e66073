package topicmodel

import (
	"math"
)

const NoiseTopic = -1

type Stage string

const (
	StageEmbedding      Stage = "embedding"
	StageReduction      Stage = "reduction"
	StageClustering     Stage = "clustering"
	StageRepresentation Stage = "representation"
	StageTopicReduction Stage = "topic_reduction"
)

type Topic struct {
	ID         int       `json:"Topic"`
	Count      int       `json:"Count"`
	Name       string    `json:"Name"`
	Words      []string  `json:"Words"`
	Scores     []float64 `json:"-"`
	Percentage float64   `json:"Percentage"`
}

type Result struct {
	Topics []int
	// Probabilities is nil unless calculateProbabilities was requested.
	Probabilities []float64
	// TopicInfo lists the noise topic first when present, then topics by id.
	TopicInfo []Topic
	State     *FittedState
}

type ModelInfo struct {
	NumTopics    int `json:"num_topics"`
	NumDocuments int `json:"num_documents"`
	NumNoise     int `json:"num_noise"`
}

func (r *Result) ModelInfo() ModelInfo {
	distinct := make(map[int]struct{})
	noise := 0
	for _, t := range r.Topics {
		if t == NoiseTopic {
			noise++
			continue
		}
		distinct[t] = struct{}{}
	}
	return ModelInfo{NumTopics: len(distinct), NumDocuments: len(r.Topics), NumNoise: noise}
}

// FittedState is what a fit leaves behind for visualization. It is written once at the
// end of Fit and only read afterwards.
type FittedState struct {
	Embeddings [][]float64
	Reduced    [][]float64
	Labels     []int
	Vocabulary []string
	// Weights holds the c-TF-IDF row of topic i at index i; noise is excluded.
	Weights [][]float64
	Topics  []Topic
}

// TopicCount is the number of non-noise topics.
func (s *FittedState) TopicCount() int { return len(s.Weights) }

// Centroids returns the mean reduced vector of each non-noise topic, indexed by id.
func (s *FittedState) Centroids() [][]float64 {
	k := s.TopicCount()
	if k == 0 || len(s.Reduced) == 0 {
		return nil
	}
	dim := len(s.Reduced[0])
	sums := make([][]float64, k)
	counts := make([]int, k)
	for i := range sums {
		sums[i] = make([]float64, dim)
	}
	for doc, label := range s.Labels {
		if label < 0 || label >= k {
			continue
		}
		for j, x := range s.Reduced[doc] {
			sums[label][j] += x
		}
		counts[label]++
	}
	for i := range sums {
		if counts[i] == 0 {
			continue
		}
		for j := range sums[i] {
			sums[i][j] /= float64(counts[i])
		}
	}
	return sums
}

// Similarity returns the cosine similarity between c-TF-IDF rows of non-noise topics.
func (s *FittedState) Similarity() [][]float64 {
	k := s.TopicCount()
	sim := make([][]float64, k)
	for i := 0; i < k; i++ {
		sim[i] = make([]float64, k)
		for j := 0; j < k; j++ {
			sim[i][j] = cosine(s.Weights[i], s.Weights[j])
		}
	}
	return sim
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / math.Sqrt(na*nb)
}
