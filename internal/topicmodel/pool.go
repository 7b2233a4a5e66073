package topicmodel

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/metrics"
)

// Pool bounds the number of concurrent fits. Every run gets its own Engine, so fitted
// state is never shared.
type Pool struct {
	sem       *semaphore.Weighted
	workers   int
	timeout   time.Duration
	newEngine func(onStage func(Stage)) *Engine
	logger    *zap.Logger
}

func NewPool(workers int, timeout time.Duration, newEngine func(onStage func(Stage)) *Engine, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		sem:       semaphore.NewWeighted(int64(workers)),
		workers:   workers,
		timeout:   timeout,
		newEngine: newEngine,
		logger:    logger,
	}
}

func (p *Pool) Workers() int { return p.workers }

// Run waits for a free slot, then calls fn with a fresh engine under the per-run
// timeout. onStage may be nil.
func (p *Pool) Run(ctx context.Context, onStage func(Stage), fn func(ctx context.Context, e *Engine) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for analysis worker: %w", err)
	}
	defer p.sem.Release(1)

	metrics.AnalysisInFlight.Inc()
	defer metrics.AnalysisInFlight.Dec()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	err := fn(ctx, p.newEngine(onStage))
	if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
		p.logger.Warn("Analysis run abandoned", zap.Error(ctxErr))
	}
	return err
}
