package topicmodel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/apperr"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/embedding"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/pipeline"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/reduce"
)

var groups = []struct {
	size  int
	words string
	axis  int
}{
	{25, "cat dog pet", 0},
	{20, "stock market trade", 1},
	{15, "rain cloud storm", 2},
}

// corpus interleaves the groups so that document order differs from group order.
func corpus() (texts []string, group []int) {
	remaining := make([]int, len(groups))
	for i, g := range groups {
		remaining[i] = g.size
	}
	for {
		added := false
		for gi, g := range groups {
			if remaining[gi] == 0 {
				continue
			}
			remaining[gi]--
			texts = append(texts, fmt.Sprintf("%s %s", g.words, strings.Fields(g.words)[remaining[gi]%3]))
			group = append(group, gi)
			added = true
		}
		if !added {
			return texts, group
		}
	}
}

// axisEmbedder places each group on its own axis with a tiny per-document offset.
type axisEmbedder struct{}

func (axisEmbedder) Name() string { return "axis" }

func (axisEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v := make([]float64, 4)
		for _, g := range groups {
			if strings.HasPrefix(t, g.words) {
				v[g.axis] = 10 + 4*float64(g.axis)
			}
		}
		v[3] = float64(i%5) * 0.01
		out[i] = v
	}
	return out, nil
}

type failingEmbedder struct {
	err   error
	panic bool
}

func (failingEmbedder) Name() string { return "failing" }

func (f failingEmbedder) EmbedBatch(context.Context, []string) ([][]float64, error) {
	if f.panic {
		panic("model weights corrupted")
	}
	return nil, f.err
}

func testParams() pipeline.Params {
	p := pipeline.Defaults()
	p.Reduction.ComponentCount = 2
	p.Reduction.Metric = "euclidean"
	p.Clustering.MinClusterSize = 5
	p.Topic.MinTopicSize = 5
	p.Topic.TopNWords = 3
	p.Topic.CalculateProbabilities = true
	return p
}

func newTestEngine() *Engine {
	return NewEngine(Options{Reducer: reduce.PCA{}})
}

func TestFit_DiscoversGroups(t *testing.T) {
	texts, group := corpus()
	res, err := newTestEngine().Fit(context.Background(), texts, testParams(), axisEmbedder{})
	require.NoError(t, err)

	require.Len(t, res.Topics, len(texts))
	require.Len(t, res.Probabilities, len(res.Topics))

	byGroup := map[int]int{}
	for doc, topic := range res.Topics {
		if prev, ok := byGroup[group[doc]]; ok {
			assert.Equal(t, prev, topic, "doc %d", doc)
		}
		byGroup[group[doc]] = topic
	}
	// ids follow descending topic size
	assert.Equal(t, map[int]int{0: 0, 1: 1, 2: 2}, byGroup)

	info := res.ModelInfo()
	assert.Equal(t, ModelInfo{NumTopics: 3, NumDocuments: 60, NumNoise: 0}, info)

	require.Len(t, res.TopicInfo, 3)
	first := res.TopicInfo[0]
	assert.Equal(t, 0, first.ID)
	assert.Equal(t, 25, first.Count)
	assert.InDelta(t, 25.0/60*100, first.Percentage, 1e-9)
	assert.ElementsMatch(t, []string{"cat", "dog", "pet"}, first.Words)
	assert.True(t, strings.HasPrefix(first.Name, "0_"))

	for _, p := range res.Probabilities {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}

	state := res.State
	require.NotNil(t, state)
	assert.Equal(t, 3, state.TopicCount())
	assert.Len(t, state.Centroids(), 3)
	sim := state.Similarity()
	assert.InDelta(t, 1.0, sim[1][1], 1e-9)
	assert.InDelta(t, 0.0, sim[0][1], 1e-9)
}

func TestFit_ProbabilitiesOnlyWhenRequested(t *testing.T) {
	texts, _ := corpus()
	p := testParams()
	p.Topic.CalculateProbabilities = false

	res, err := newTestEngine().Fit(context.Background(), texts, p, axisEmbedder{})
	require.NoError(t, err)
	assert.Nil(t, res.Probabilities)
}

func TestFit_TargetTopicCount(t *testing.T) {
	texts, _ := corpus()
	p := testParams()
	target := 2
	p.Topic.TargetTopicCount = &target

	res, err := newTestEngine().Fit(context.Background(), texts, p, axisEmbedder{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.ModelInfo().NumTopics)
	assert.Len(t, res.Topics, len(texts))
	require.Len(t, res.TopicInfo, 2)
	assert.Equal(t, 60, res.TopicInfo[0].Count+res.TopicInfo[1].Count)
	assert.GreaterOrEqual(t, res.TopicInfo[0].Count, res.TopicInfo[1].Count)
}

func TestFit_SmallTopicsMerged(t *testing.T) {
	texts, _ := corpus()
	p := testParams()
	p.Topic.MinTopicSize = 18

	res, err := newTestEngine().Fit(context.Background(), texts, p, axisEmbedder{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.ModelInfo().NumTopics)
}

func TestFit_StageErrorsNameTheStage(t *testing.T) {
	texts, _ := corpus()

	cases := []struct {
		name     string
		embedder interface {
			Name() string
			EmbedBatch(context.Context, []string) ([][]float64, error)
		}
		mutate func(*pipeline.Params)
		stage  string
	}{
		{"embedding error", failingEmbedder{err: errors.New("connection reset")}, nil, "embedding"},
		{"embedding panic", failingEmbedder{panic: true}, nil, "embedding"},
		{"reduction", axisEmbedder{}, func(p *pipeline.Params) { p.Reduction.NeighborCount = 1 }, "reduction"},
		{"clustering", axisEmbedder{}, func(p *pipeline.Params) { p.Clustering.Metric = "hamming" }, "clustering"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := testParams()
			if tc.mutate != nil {
				tc.mutate(&p)
			}
			_, err := newTestEngine().Fit(context.Background(), texts, p, tc.embedder)
			var fe *apperr.FitError
			require.True(t, errors.As(err, &fe), "got %v", err)
			assert.Equal(t, tc.stage, fe.Stage)
			assert.Contains(t, err.Error(), tc.stage)
		})
	}
}

func TestFit_EngineIsSingleUse(t *testing.T) {
	texts, _ := corpus()
	e := newTestEngine()
	_, err := e.Fit(context.Background(), texts, testParams(), axisEmbedder{})
	require.NoError(t, err)
	require.NotNil(t, e.State())

	_, err = e.Fit(context.Background(), texts, testParams(), axisEmbedder{})
	assert.ErrorIs(t, err, ErrAlreadyFitted)
}

func TestFit_EmptyInput(t *testing.T) {
	_, err := newTestEngine().Fit(context.Background(), nil, testParams(), axisEmbedder{})
	assert.True(t, apperr.IsInput(err))
}

func TestFit_BlankCorpusIsAllNoise(t *testing.T) {
	params := pipeline.Defaults()
	params.Topic.CalculateProbabilities = true

	res, err := NewEngine(Options{}).Fit(context.Background(), []string{"", " ", ""}, params, embedding.NewLSA(100))
	require.NoError(t, err)
	assert.Equal(t, []int{NoiseTopic, NoiseTopic, NoiseTopic}, res.Topics)
	assert.Equal(t, []float64{0, 0, 0}, res.Probabilities)

	info := res.ModelInfo()
	assert.Equal(t, 0, info.NumTopics)
	assert.Equal(t, 3, info.NumNoise)
}

func TestFit_ReportsStages(t *testing.T) {
	texts, _ := corpus()
	var stages []Stage
	e := NewEngine(Options{Reducer: reduce.PCA{}, OnStage: func(s Stage) { stages = append(stages, s) }})
	_, err := e.Fit(context.Background(), texts, testParams(), axisEmbedder{})
	require.NoError(t, err)
	assert.Equal(t, []Stage{StageEmbedding, StageReduction, StageClustering, StageRepresentation, StageTopicReduction}, stages)
}

func TestModelInfo_CountsDistinctTopicsAndNoise(t *testing.T) {
	r := &Result{Topics: []int{0, -1, 1, 0, -1}}
	assert.Equal(t, ModelInfo{NumTopics: 2, NumDocuments: 5, NumNoise: 2}, r.ModelInfo())
}

func TestTopicName(t *testing.T) {
	assert.Equal(t, "0_a_b_c_d", topicName(0, []string{"a", "b", "c", "d", "e"}))
	assert.Equal(t, "3_x", topicName(3, []string{"x"}))
	assert.Equal(t, "-1", topicName(-1, nil))
}

func TestClassWeights_DistinctTermsOutrankShared(t *testing.T) {
	classes := []*class{
		{docs: []int{0}, counts: []float64{2, 1, 0}},
		{docs: []int{1}, counts: []float64{0, 1, 2}},
	}
	w := classWeights(classes, 3)
	assert.Greater(t, w[0][0], w[0][1])
	assert.Zero(t, w[0][2])
	assert.Greater(t, w[1][2], w[1][1])
}

func TestOrderBySize_TiesByFirstDocument(t *testing.T) {
	a := &class{docs: []int{4, 5}}
	b := &class{docs: []int{1, 9}}
	c := &class{docs: []int{0, 2, 3}}
	topics := []*class{a, b, c}
	orderBySize(topics)
	assert.Equal(t, []*class{c, b, a}, topics)
}

func TestPool_BoundsConcurrencyAndIsolatesEngines(t *testing.T) {
	pool := NewPool(1, time.Second, func(onStage func(Stage)) *Engine {
		return NewEngine(Options{Reducer: reduce.PCA{}, OnStage: onStage})
	}, nil)

	var (
		active, peak atomic.Int32
		mu           sync.Mutex
		engines      = map[*Engine]bool{}
		wg           sync.WaitGroup
	)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pool.Run(context.Background(), nil, func(ctx context.Context, e *Engine) error {
				n := active.Add(1)
				if n > peak.Load() {
					peak.Store(n)
				}
				mu.Lock()
				engines[e] = true
				mu.Unlock()
				time.Sleep(10 * time.Millisecond)
				active.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	assert.Len(t, engines, 3)
}

func TestPool_AppliesRunTimeout(t *testing.T) {
	pool := NewPool(2, 20*time.Millisecond, func(func(Stage)) *Engine { return newTestEngine() }, nil)
	err := pool.Run(context.Background(), nil, func(ctx context.Context, _ *Engine) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
