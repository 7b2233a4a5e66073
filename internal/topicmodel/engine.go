// Package topicmodel fits topics over a cleaned corpus: embed, reduce, cluster, then
// describe each cluster by its class-based TF-IDF terms.
package topicmodel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/apperr"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/cluster"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/embedding"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/metrics"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/pipeline"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/reduce"
)

var (
	ErrAlreadyFitted = errors.New("engine already fitted; use a new engine per run")
	ErrNoDocuments   = errors.New("no documents to fit")
)

// Engine holds the fitted state of exactly one run. It is not safe to share between
// concurrent runs; Pool hands out a fresh Engine per run.
type Engine struct {
	reducer reduce.Reducer
	logger  *zap.Logger
	onStage func(Stage)

	state *FittedState
}

type Options struct {
	Reducer reduce.Reducer
	Logger  *zap.Logger
	// OnStage is called as each stage starts.
	OnStage func(Stage)
}

func NewEngine(opts Options) *Engine {
	if opts.Reducer == nil {
		opts.Reducer = reduce.NewTSNE(reduce.Options{})
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{reducer: opts.Reducer, logger: opts.Logger, onStage: opts.OnStage}
}

// State returns the fitted state, or nil before a successful Fit.
func (e *Engine) State() *FittedState { return e.state }

func (e *Engine) Fit(ctx context.Context, texts []string, params pipeline.Params, embedder embedding.Provider) (*Result, error) {
	if e.state != nil {
		return nil, ErrAlreadyFitted
	}
	if len(texts) == 0 {
		return nil, apperr.Input("texts", ErrNoDocuments.Error())
	}

	var (
		embeddings [][]float64
		reduced    [][]float64
		clusters   *cluster.Result
		counts     *termCounts
	)
	// A corpus that cleaned down to nothing has no structure to find; every
	// document is noise.
	blank := isBlank(texts)

	err := e.stage(ctx, StageEmbedding, func() error {
		var err error
		embeddings, err = embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		if len(embeddings) != len(texts) {
			return fmt.Errorf("provider %s returned %d vectors for %d documents", embedder.Name(), len(embeddings), len(texts))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = e.stage(ctx, StageReduction, func() error {
		if blank {
			if err := reduce.Validate(params.Reduction); err != nil {
				return err
			}
			reduced = make([][]float64, len(texts))
			for i := range reduced {
				reduced[i] = make([]float64, params.Reduction.ComponentCount)
			}
			return nil
		}
		var err error
		reduced, err = e.reducer.Reduce(ctx, embeddings, params.Reduction)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = e.stage(ctx, StageClustering, func() error {
		if blank {
			clusters = cluster.AllNoise(len(texts))
			return nil
		}
		var err error
		clusters, err = cluster.HDBSCAN(ctx, reduced, params.Clustering)
		return err
	})
	if err != nil {
		return nil, err
	}

	err = e.stage(ctx, StageRepresentation, func() error {
		var err error
		counts, err = countTerms(texts)
		return err
	})
	if err != nil {
		return nil, err
	}

	var (
		noise  *class
		topics []*class
	)
	err = e.stage(ctx, StageTopicReduction, func() error {
		vocabSize := len(counts.vocab)
		noise, topics = groupClasses(clusters.Labels, counts)
		topics = mergeSmallTopics(noise, topics, vocabSize, params.Topic.MinTopicSize)
		if target := params.Topic.TargetTopicCount; target != nil {
			var err error
			if topics, err = reduceToTarget(noise, topics, vocabSize, *target); err != nil {
				return err
			}
		}
		orderBySize(topics)
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := e.assemble(texts, params.Topic, clusters, counts, noise, topics)
	result.State.Embeddings = embeddings
	result.State.Reduced = reduced
	e.state = result.State

	info := result.ModelInfo()
	e.logger.Info("Topic model fitted",
		zap.Int("documents", info.NumDocuments),
		zap.Int("topics", info.NumTopics),
		zap.Int("noise", info.NumNoise),
	)
	return result, nil
}

func isBlank(texts []string) bool {
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			return false
		}
	}
	return true
}

// stage runs fn, timing it and converting errors and panics into a FitError naming the
// stage.
func (e *Engine) stage(ctx context.Context, s Stage, fn func() error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.onStage != nil {
		e.onStage(s)
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		metrics.StageDuration.WithLabelValues(string(s)).Observe(time.Since(start).Seconds())
		if err == nil {
			e.logger.Debug("Stage completed", zap.String("stage", string(s)), zap.Duration("duration", time.Since(start)))
			return
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		e.logger.Error("Stage failed", zap.String("stage", string(s)), zap.Error(err))
		err = apperr.Fit(string(s), err)
	}()

	return fn()
}

func (e *Engine) assemble(texts []string, tp pipeline.TopicParams, clusters *cluster.Result, counts *termCounts, noise *class, topics []*class) *Result {
	n := len(texts)
	vocabSize := len(counts.vocab)
	topN := tp.TopNWords
	if topN <= 0 {
		topN = pipeline.Defaults().Topic.TopNWords
	}

	assigned := make([]int, n)
	for i := range assigned {
		assigned[i] = NoiseTopic
	}
	for id, c := range topics {
		for _, doc := range c.docs {
			assigned[doc] = id
		}
	}

	weights := classWeights(allClasses(noise, topics), vocabSize)
	topicWeightRows := weights
	var info []Topic
	if noise != nil {
		topicWeightRows = weights[1:]
		words, scores := topWords(weights[0], counts.vocab, topN)
		info = append(info, newTopic(NoiseTopic, len(noise.docs), n, words, scores))
	}
	for id, c := range topics {
		words, scores := topWords(topicWeightRows[id], counts.vocab, topN)
		info = append(info, newTopic(id, len(c.docs), n, words, scores))
	}

	var probs []float64
	if tp.CalculateProbabilities {
		probs = make([]float64, n)
		for doc, topic := range assigned {
			if topic != NoiseTopic {
				probs[doc] = clusters.Probabilities[doc]
			}
		}
	}

	var topicOnly []Topic
	for _, t := range info {
		if t.ID != NoiseTopic {
			topicOnly = append(topicOnly, t)
		}
	}

	return &Result{
		Topics:        assigned,
		Probabilities: probs,
		TopicInfo:     info,
		State: &FittedState{
			Labels:     assigned,
			Vocabulary: counts.vocab,
			Weights:    topicWeightRows,
			Topics:     topicOnly,
		},
	}
}

func newTopic(id, count, total int, words []string, scores []float64) Topic {
	return Topic{
		ID:         id,
		Count:      count,
		Name:       topicName(id, words),
		Words:      words,
		Scores:     scores,
		Percentage: float64(count) / float64(total) * 100,
	}
}
