package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/apperr"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/embedding"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/metrics"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/preprocess"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/reduce"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/storage/models"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/topicmodel"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/visualization"
)

var themes = []struct {
	size  int
	words string
}{
	{12, "cat dog pet"},
	{10, "stock market trade"},
	{8, "rain cloud storm"},
}

// rawCorpus interleaves the themes and dresses each document with noise the cleaner
// removes.
func rawCorpus() []string {
	var texts []string
	for i := 0; i < themes[0].size; i++ {
		for _, th := range themes {
			if i < th.size {
				texts = append(texts, fmt.Sprintf("%s %d!!", strings.ToUpper(th.words[:1])+th.words[1:], 2020+i))
			}
		}
	}
	return texts
}

type themeEmbedder struct {
	mu   sync.Mutex
	seen []string
}

func (*themeEmbedder) Name() string { return "theme" }

func (e *themeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float64, error) {
	e.mu.Lock()
	e.seen = append(e.seen, texts...)
	e.mu.Unlock()

	out := make([][]float64, len(texts))
	for i, t := range texts {
		v := make([]float64, 4)
		for axis, th := range themes {
			if strings.HasPrefix(t, th.words) {
				v[axis] = 10 + 4*float64(axis)
			}
		}
		v[3] = float64(i%5) * 0.01
		out[i] = v
	}
	return out, nil
}

type failingEmbedder struct{}

func (failingEmbedder) Name() string { return "failing" }

func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float64, error) {
	return nil, errors.New("inference server unreachable")
}

type fakeEmbedders struct {
	provider  embedding.Provider
	err       error
	requested []string
}

func (f *fakeEmbedders) Resolve(_ context.Context, model string) (embedding.Provider, error) {
	f.requested = append(f.requested, model)
	if f.err != nil {
		return nil, f.err
	}
	return f.provider, nil
}

type fakeStopwords struct {
	words []string
	calls int
}

func (f *fakeStopwords) Get() (preprocess.Stopwords, error) {
	f.calls++
	return preprocess.Stopwords{Categories: map[string][]string{"custom": f.words}, Final: f.words}, nil
}

type runLog struct{ runs []*models.AnalysisRun }

func (r *runLog) InsertRun(run *models.AnalysisRun) error {
	r.runs = append(r.runs, run)
	return nil
}

type fixture struct {
	svc       *Service
	embedders *fakeEmbedders
	embedder  *themeEmbedder
	stopwords *fakeStopwords
	runs      *runLog
}

func newFixture() *fixture {
	f := &fixture{
		embedder:  &themeEmbedder{},
		stopwords: &fakeStopwords{},
		runs:      &runLog{},
	}
	f.embedders = &fakeEmbedders{provider: f.embedder}
	pool := topicmodel.NewPool(1, time.Minute, func(onStage func(topicmodel.Stage)) *topicmodel.Engine {
		return topicmodel.NewEngine(topicmodel.Options{Reducer: reduce.PCA{}, OnStage: onStage})
	}, nil)
	f.svc = NewService(preprocess.New(nil), f.embedders, pool, visualization.NewGenerator(nil), f.stopwords, f.runs, nil)
	return f
}

func request() Request {
	return Request{
		Texts: rawCorpus(),
		Config: map[string]any{
			"basic":    map[string]any{"embeddingModel": "theme", "minTopicSize": 4},
			"umap":     map[string]any{"nComponents": 2, "metric": "euclidean"},
			"hdbscan":  map[string]any{"minClusterSize": 4},
			"advanced": map[string]any{"topNWords": 3, "calculateProbabilities": true},
		},
		PreprocessingConfig:  map[string]any{"segmenter": "default"},
		VisualizationOptions: []string{"barchart", "topics_over_time"},
	}
}

func observations(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, h.Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func TestAnalyze_ObservesTopicCountOncePerRun(t *testing.T) {
	f := newFixture()
	before := observations(t, metrics.TopicsDiscovered)

	_, err := f.svc.Analyze(context.Background(), request(), func(string) {})
	require.NoError(t, err)
	assert.Equal(t, before+1, observations(t, metrics.TopicsDiscovered))
}

func TestAnalyze_RunsEveryStage(t *testing.T) {
	f := newFixture()
	req := request()
	req.Source = SourceFile
	req.TotalRows = 33

	var stages []string
	resp, err := f.svc.Analyze(context.Background(), req, func(s string) { stages = append(stages, s) })
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, req.Texts, resp.Texts)
	require.Len(t, resp.Topics, 30)
	require.Len(t, resp.Probabilities, 30)

	assert.Equal(t, 3, resp.ModelInfo.NumTopics)
	assert.Equal(t, 30, resp.ModelInfo.NumDocuments)
	assert.Equal(t, "theme", resp.ModelInfo.EmbeddingModel)
	assert.Equal(t, preprocess.SegmenterDefault, resp.ModelInfo.Segmenter)
	assert.Equal(t, DocumentStats{TotalDocuments: 30, TotalRows: 33, ProcessedDocuments: 30}, resp.DocumentStats)

	require.Len(t, resp.TopicInfo, 3)
	assert.Equal(t, 12, resp.TopicInfo[0].Count)
	assert.ElementsMatch(t, []string{"cat", "dog", "pet"}, resp.TopicInfo[0].Representation)

	assert.Equal(t, visualization.StatusOK, resp.Visualizations["barchart"].Status)
	assert.Equal(t, "unavailable:no_timestamps", resp.Visualizations["topics_over_time"].Status)

	assert.Equal(t, []string{"theme"}, f.embedders.requested)
	for _, text := range f.embedder.seen {
		assert.Equal(t, strings.ToLower(text), text)
		assert.NotContains(t, text, "!")
		assert.NotContains(t, text, "20")
	}

	assert.Equal(t, []string{
		StagePreprocessing, StageModelSelection,
		"embedding", "reduction", "clustering", "representation", "topic_reduction",
		StageVisualization,
	}, stages)

	require.Len(t, f.runs.runs, 1)
	run := f.runs.runs[0]
	assert.Equal(t, resp.RunID, run.ID)
	assert.Equal(t, models.RunSucceeded, run.Status)
	assert.Equal(t, SourceFile, run.Source)
	assert.Equal(t, 3, run.NumTopics)
}

func TestAnalyze_RequestStopwordsOverrideStore(t *testing.T) {
	f := newFixture()
	f.stopwords.words = []string{"cat"}
	req := request()
	req.Stopwords = map[string]any{"custom": []any{"pet"}, "final": []any{"pet"}}

	resp, err := f.svc.Analyze(context.Background(), req, nil)
	require.NoError(t, err)

	assert.Zero(t, f.stopwords.calls)
	for _, text := range f.embedder.seen {
		assert.NotContains(t, text, "pet")
	}
	for _, ti := range resp.TopicInfo {
		assert.NotContains(t, ti.Words, "pet")
	}
}

func TestAnalyze_StoreStopwordsByDefault(t *testing.T) {
	f := newFixture()
	f.stopwords.words = []string{"storm"}

	_, err := f.svc.Analyze(context.Background(), request(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, f.stopwords.calls)
	for _, text := range f.embedder.seen {
		assert.NotContains(t, text, "storm")
	}
}

func TestAnalyze_NoTexts(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Analyze(context.Background(), Request{}, nil)
	require.Error(t, err)
	assert.True(t, apperr.IsInput(err))
	assert.Empty(t, f.runs.runs)
}

func TestAnalyze_ResolutionFailureIsRecorded(t *testing.T) {
	f := newFixture()
	f.embedders.err = fmt.Errorf("%w: every provider failed", embedding.ErrModelResolution)

	_, err := f.svc.Analyze(context.Background(), request(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, embedding.ErrModelResolution)

	require.Len(t, f.runs.runs, 1)
	assert.Equal(t, models.RunFailed, f.runs.runs[0].Status)
	assert.Contains(t, f.runs.runs[0].Error, "every provider failed")
}

func TestAnalyze_FitFailureNamesStage(t *testing.T) {
	f := newFixture()
	f.embedders.provider = failingEmbedder{}

	_, err := f.svc.Analyze(context.Background(), request(), nil)
	require.Error(t, err)

	var fe *apperr.FitError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "embedding", fe.Stage)
	assert.Contains(t, err.Error(), "inference server unreachable")
	assert.Equal(t, "failing", f.runs.runs[0].EmbeddingModel)
}

func TestResponse_JSONShape(t *testing.T) {
	f := newFixture()
	req := request()
	req.Config["advanced"] = map[string]any{"topNWords": 3}

	resp, err := f.svc.Analyze(context.Background(), req, nil)
	require.NoError(t, err)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))

	assert.Nil(t, out["probabilities"])
	for _, key := range []string{"success", "run_id", "texts", "topics", "topic_info", "visualizations", "model_info", "document_stats", "duration_ms"} {
		assert.Contains(t, out, key)
	}
	info := out["model_info"].(map[string]any)
	assert.Equal(t, 3.0, info["num_topics"])
	assert.Equal(t, "theme", info["embedding_model"])

	first := out["topic_info"].([]any)[0].(map[string]any)
	for _, key := range []string{"Topic", "Count", "Name", "Representation", "Words", "Percentage"} {
		assert.Contains(t, first, key)
	}
}
