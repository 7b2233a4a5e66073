// Package analysis runs one topic analysis request end to end: clean, resolve the
// embedding model, fit on a pooled engine, then render the requested charts.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/apperr"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/embedding"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/metrics"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/pipeline"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/preprocess"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/storage/models"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/topicmodel"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/visualization"
)

// Stages reported in addition to the engine's own.
const (
	StagePreprocessing  = "preprocessing"
	StageModelSelection = "model_selection"
	StageVisualization  = "visualization"
)

type Embedders interface {
	Resolve(ctx context.Context, model string) (embedding.Provider, error)
}

type StopwordSource interface {
	Get() (preprocess.Stopwords, error)
}

type RunRecorder interface {
	InsertRun(run *models.AnalysisRun) error
}

type Service struct {
	preprocessor *preprocess.Preprocessor
	embedders    Embedders
	pool         *topicmodel.Pool
	charts       *visualization.Generator
	stopwords    StopwordSource
	runs         RunRecorder
	logger       *zap.Logger
	now          func() time.Time
}

// NewService wires the stages together. stopwords and runs may be nil.
func NewService(
	preprocessor *preprocess.Preprocessor,
	embedders Embedders,
	pool *topicmodel.Pool,
	charts *visualization.Generator,
	stopwords StopwordSource,
	runs RunRecorder,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		preprocessor: preprocessor,
		embedders:    embedders,
		pool:         pool,
		charts:       charts,
		stopwords:    stopwords,
		runs:         runs,
		logger:       logger,
		now:          time.Now,
	}
}

// Analyze runs the full pipeline over req.Texts. progress, when set, is called with the
// name of each stage as it starts; it must not block.
func (s *Service) Analyze(ctx context.Context, req Request, progress func(stage string)) (*Response, error) {
	if progress == nil {
		progress = func(string) {}
	}
	if len(req.Texts) == 0 {
		return nil, apperr.Input("texts", "no documents to analyze")
	}

	start := s.now()
	runID := uuid.New().String()
	log := s.logger.With(zap.String("run_id", runID))
	log.Info("Analysis started",
		zap.String("source", req.source()),
		zap.Int("documents", len(req.Texts)),
		zap.Strings("visualizations", req.VisualizationOptions),
	)

	params := pipeline.Build(req.Config)
	cleaning := preprocess.ConfigFromMaps(req.PreprocessingConfig, params.Cleaning)
	stopwords, err := s.resolveStopwords(req.Stopwords)
	if err != nil {
		log.Warn("Stopwords unavailable, continuing without", zap.Error(err))
	}
	cleaning.Stopwords = stopwords

	progress(StagePreprocessing)
	seg := s.preprocessor.ResolveSegmenter(ctx, cleaning.Segmenter)
	segmenter := seg.Name()
	processed := s.preprocessor.PreprocessWith(ctx, req.Texts, cleaning, seg)
	if err := ctx.Err(); err != nil {
		return nil, s.fail(runID, req, start, segmenter, "", err)
	}

	progress(StageModelSelection)
	embedder, err := s.embedders.Resolve(ctx, params.EmbeddingModel)
	if err != nil {
		return nil, s.fail(runID, req, start, segmenter, params.EmbeddingModel, err)
	}

	var fitted *topicmodel.Result
	onStage := func(st topicmodel.Stage) { progress(string(st)) }
	err = s.pool.Run(ctx, onStage, func(ctx context.Context, e *topicmodel.Engine) error {
		var err error
		fitted, err = e.Fit(ctx, processed, params, embedder)
		return err
	})
	if err != nil {
		return nil, s.fail(runID, req, start, segmenter, embedder.Name(), err)
	}

	progress(StageVisualization)
	charts := s.charts.Generate(ctx, req.VisualizationOptions, visualization.Input{
		State:         fitted.State,
		Texts:         processed,
		Topics:        fitted.Topics,
		Probabilities: fitted.Probabilities,
		Timestamps:    req.Timestamps,
	})

	info := fitted.ModelInfo()
	duration := s.now().Sub(start)
	resp := &Response{
		Success:        true,
		RunID:          runID,
		Texts:          req.Texts,
		Topics:         fitted.Topics,
		Probabilities:  fitted.Probabilities,
		TopicInfo:      topicInfo(fitted.TopicInfo),
		Visualizations: charts,
		ModelInfo: ModelInfo{
			ModelInfo:      info,
			EmbeddingModel: embedder.Name(),
			Segmenter:      segmenter,
		},
		DocumentStats: DocumentStats{
			TotalDocuments:     len(req.Texts),
			TotalRows:          req.totalRows(),
			ProcessedDocuments: len(processed),
		},
		DurationMS: duration.Milliseconds(),
	}

	metrics.AnalysisTotal.WithLabelValues(models.RunSucceeded).Inc()
	metrics.DocumentsProcessed.Add(float64(len(processed)))
	metrics.TopicsDiscovered.Observe(float64(info.NumTopics))

	s.record(&models.AnalysisRun{
		ID:             runID,
		Source:         req.source(),
		EmbeddingModel: embedder.Name(),
		Segmenter:      segmenter,
		NumDocuments:   info.NumDocuments,
		NumTopics:      info.NumTopics,
		NumNoise:       info.NumNoise,
		DurationMS:     duration.Milliseconds(),
		Status:         models.RunSucceeded,
		CreatedAt:      start,
	})

	log.Info("Analysis completed",
		zap.Int("topics", info.NumTopics),
		zap.Int("noise", info.NumNoise),
		zap.String("embedding_model", embedder.Name()),
		zap.Duration("duration", duration),
	)
	return resp, nil
}

// resolveStopwords prefers the request's own lists and falls back to the store.
func (s *Service) resolveStopwords(raw map[string]any) (preprocess.Stopwords, error) {
	if len(raw) > 0 {
		return preprocess.StopwordsFromMap(raw), nil
	}
	if s.stopwords == nil {
		return preprocess.Stopwords{}, nil
	}
	return s.stopwords.Get()
}

func (s *Service) fail(runID string, req Request, start time.Time, segmenter, model string, err error) error {
	duration := s.now().Sub(start)
	metrics.AnalysisTotal.WithLabelValues(models.RunFailed).Inc()
	s.logger.Error("Analysis failed",
		zap.String("run_id", runID),
		zap.Duration("duration", duration),
		zap.Error(err),
	)
	s.record(&models.AnalysisRun{
		ID:             runID,
		Source:         req.source(),
		EmbeddingModel: model,
		Segmenter:      segmenter,
		NumDocuments:   len(req.Texts),
		DurationMS:     duration.Milliseconds(),
		Status:         models.RunFailed,
		Error:          err.Error(),
		CreatedAt:      start,
	})
	return fmt.Errorf("analysis %s: %w", runID, err)
}

func (s *Service) record(run *models.AnalysisRun) {
	if s.runs == nil {
		return
	}
	if err := s.runs.InsertRun(run); err != nil {
		s.logger.Warn("Failed to record analysis run", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func topicInfo(topics []topicmodel.Topic) []TopicInfo {
	out := make([]TopicInfo, len(topics))
	for i, t := range topics {
		words := t.Words
		if words == nil {
			words = []string{}
		}
		out[i] = TopicInfo{Topic: t, Representation: words}
	}
	return out
}
