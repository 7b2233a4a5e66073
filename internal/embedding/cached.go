package embedding

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/metrics"
	"github.com/EvianLUO/bertopic-analysis-tool/pkg/utils"
)

// Cache stores vectors by key. GetEmbeddings returns nil entries for misses.
type Cache interface {
	GetEmbeddings(ctx context.Context, keys []string) ([][]float64, error)
	SetEmbeddings(ctx context.Context, keys []string, vectors [][]float64, ttl time.Duration) error
}

// Cached wraps a deterministic provider and only sends cache misses to it. Cache errors
// are treated as misses.
type Cached struct {
	inner  Provider
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

func NewCached(inner Provider, cache Cache, ttl time.Duration, logger *zap.Logger) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{inner: inner, cache: cache, ttl: ttl, logger: logger}
}

func (c *Cached) Name() string { return c.inner.Name() }

func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = utils.HashText(c.inner.Name(), t)
	}

	out, err := c.cache.GetEmbeddings(ctx, keys)
	if err != nil || len(out) != len(texts) {
		if err != nil {
			c.logger.Warn("Embedding cache unavailable", zap.Error(err))
		}
		out = make([][]float64, len(texts))
	}

	var (
		missIdx   []int
		missTexts []string
	)
	for i, v := range out {
		if v == nil {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, texts[i])
		}
	}

	hits := len(texts) - len(missIdx)
	metrics.CacheHits.WithLabelValues("embedding").Add(float64(hits))
	metrics.CacheMisses.WithLabelValues("embedding").Add(float64(len(missIdx)))

	if len(missIdx) == 0 {
		return out, nil
	}

	fresh, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	missKeys := make([]string, len(missIdx))
	for j, i := range missIdx {
		out[i] = fresh[j]
		missKeys[j] = keys[i]
	}

	if err := c.cache.SetEmbeddings(ctx, missKeys, fresh, c.ttl); err != nil {
		c.logger.Warn("Failed to store embeddings in cache", zap.Error(err))
	}
	return out, nil
}
