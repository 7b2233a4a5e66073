package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/fallback"
	"github.com/EvianLUO/bertopic-analysis-tool/pkg/config"
)

const ModelAuto = "auto"

var errRemoteNotConfigured = errors.New("no remote embedding endpoint configured")

// Resolver maps a model selector to a working Provider through an ordered chain: the
// pinned local model, the requested model, then the multilingual default.
type Resolver struct {
	cfg    config.EmbeddingConfig
	cache  Cache
	logger *zap.Logger

	mu    sync.Mutex
	local map[string]*WordVectors

	// newRemote is replaced in tests.
	newRemote func(model string) (Provider, error)
}

func NewResolver(cfg config.EmbeddingConfig, cache Cache, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = ModelLSA
	}
	r := &Resolver{
		cfg:    cfg,
		cache:  cache,
		logger: logger,
		local:  make(map[string]*WordVectors),
	}
	r.newRemote = r.remote
	return r
}

func (r *Resolver) DefaultModel() string { return r.cfg.DefaultModel }

// Resolve returns the first provider in the chain that loads. It only fails when every
// candidate failed, with an error wrapping ErrModelResolution.
func (r *Resolver) Resolve(ctx context.Context, model string) (Provider, error) {
	chain := fallback.New[Provider]("embedding", r.logger)

	if path := r.cfg.LocalModelPath; path != "" {
		chain.Append(fallback.Provider[Provider]{
			Name: "local:" + path,
			Load: func(context.Context) (Provider, error) { return r.loadLocal(path) },
		})
	}

	requested := strings.TrimSpace(model)
	if requested == "" || requested == ModelAuto {
		requested = r.cfg.DefaultModel
	}
	chain.Append(r.named(requested))
	chain.Append(r.named(r.cfg.DefaultModel))

	p, name, err := chain.Resolve(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrModelResolution, err)
	}

	r.logger.Info("Embedding model resolved",
		zap.String("requested", model),
		zap.String("provider", name),
	)
	return p, nil
}

func (r *Resolver) named(model string) fallback.Provider[Provider] {
	return fallback.Provider[Provider]{
		Name: model,
		Load: func(ctx context.Context) (Provider, error) {
			if model == ModelLSA {
				return NewLSA(r.cfg.LSADimensions), nil
			}
			if strings.HasPrefix(model, "local:") {
				return r.loadLocal(strings.TrimPrefix(model, "local:"))
			}

			p, err := r.newRemote(model)
			if err != nil {
				return nil, err
			}
			if pinger, ok := p.(interface{ Ping(context.Context) error }); ok {
				if err := pinger.Ping(ctx); err != nil {
					return nil, fmt.Errorf("ping %s: %w", model, err)
				}
			}
			if r.cache != nil {
				p = NewCached(p, r.cache, r.cfg.CacheTTL(), r.logger)
			}
			return p, nil
		},
	}
}

func (r *Resolver) remote(model string) (Provider, error) {
	if r.cfg.BaseURL == "" && r.cfg.APIKey == "" {
		return nil, errRemoteNotConfigured
	}
	return NewRemote(model, RemoteConfig{
		BaseURL:   r.cfg.BaseURL,
		APIKey:    r.cfg.APIKey,
		Timeout:   r.cfg.Timeout(),
		BatchSize: r.cfg.BatchSize,
	}, r.logger), nil
}

// loadLocal caches parsed word-vector files by path.
func (r *Resolver) loadLocal(path string) (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if wv, ok := r.local[path]; ok {
		return wv, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("local model %s: %w", path, err)
	}
	wv, err := LoadWordVectors(path)
	if err != nil {
		return nil, err
	}
	r.local[path] = wv
	return wv, nil
}
