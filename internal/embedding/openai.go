package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/metrics"
	"github.com/EvianLUO/bertopic-analysis-tool/pkg/circuitbreaker"
	"github.com/EvianLUO/bertopic-analysis-tool/pkg/retry"
)

type RemoteConfig struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	BatchSize   int
	Concurrency int
}

// Remote calls an OpenAI-compatible /embeddings endpoint.
type Remote struct {
	client      *openai.Client
	model       string
	timeout     time.Duration
	batchSize   int
	concurrency int
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
	logger      *zap.Logger
}

// breakers are shared per model so that concurrent runs see the same endpoint health.
var (
	breakersMu sync.Mutex
	breakers   = make(map[string]*circuitbreaker.CircuitBreaker)
)

func NewRemote(model string, cfg RemoteConfig, logger *zap.Logger) *Remote {
	if logger == nil {
		logger = zap.NewNop()
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	return &Remote{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       model,
		timeout:     cfg.Timeout,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		cb:          breakerFor(model, logger),
		retryConfig: retry.Config{
			MaxAttempts:    3,
			InitialDelay:   500 * time.Millisecond,
			MaxDelay:       5 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
			ShouldRetry:    isRetryable,
			Logger:         logger,
		},
		logger: logger,
	}
}

func breakerFor(model string, logger *zap.Logger) *circuitbreaker.CircuitBreaker {
	breakersMu.Lock()
	defer breakersMu.Unlock()

	if cb, ok := breakers[model]; ok {
		return cb
	}
	cb := circuitbreaker.NewCircuitBreaker("embedding:"+model, circuitbreaker.Config{
		MaxRequests:      2,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		IsFailure:        isRetryable,
		OnStateChange: func(name string, _ circuitbreaker.State, to circuitbreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
		Logger: logger,
	})
	breakers[model] = cb
	return cb
}

func (r *Remote) Name() string { return r.model }

// Ping embeds one short string to check that the model is reachable.
func (r *Remote) Ping(ctx context.Context) error {
	_, err := r.embed(ctx, []string{"ping"})
	return err
}

func (r *Remote) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float64, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for start := 0; start < len(texts); start += r.batchSize {
		start := start
		end := min(start+r.batchSize, len(texts))
		g.Go(func() error {
			vecs, err := r.embed(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.logger.Debug("Remote embeddings generated",
		zap.String("model", r.model),
		zap.Int("documents", len(texts)),
	)
	return out, nil
}

func (r *Remote) embed(ctx context.Context, batch []string) ([][]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// the endpoint rejects empty strings; a single space embeds as a neutral input
	input := make([]string, len(batch))
	for i, s := range batch {
		if s == "" {
			s = " "
		}
		input[i] = s
	}

	var vectors [][]float64
	err := r.cb.Execute(ctx, func() error {
		return retry.Do(ctx, r.retryConfig, func() error {
			resp, err := r.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Input: input,
				Model: openai.EmbeddingModel(r.model),
			})
			if err != nil {
				return fmt.Errorf("failed to generate embeddings: %w", err)
			}
			if len(resp.Data) != len(input) {
				return retry.Permanent(fmt.Errorf("expected %d embeddings, got %d", len(input), len(resp.Data)))
			}

			vectors = make([][]float64, len(input))
			for pos, data := range resp.Data {
				idx := data.Index
				if idx < 0 || idx >= len(input) {
					idx = pos
				}
				v := make([]float64, len(data.Embedding))
				for j, x := range data.Embedding {
					v[j] = float64(x)
				}
				vectors[idx] = normalize(v)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

// isRetryable treats 4xx responses other than 429 as permanent.
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return true
}
