// Package fallback implements ordered provider chains: providers are tried in order and
// the first one that loads wins.
package fallback

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/apperr"
	"github.com/EvianLUO/bertopic-analysis-tool/internal/metrics"
)

var ErrExhausted = errors.New("fallback chain exhausted")

type Provider[T any] struct {
	Name string
	Load func(ctx context.Context) (T, error)
}

type Chain[T any] struct {
	name      string
	providers []Provider[T]
	logger    *zap.Logger
}

func New[T any](name string, logger *zap.Logger, providers ...Provider[T]) *Chain[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain[T]{name: name, providers: providers, logger: logger}
}

// Append adds p unless a provider with the same name is already present.
func (c *Chain[T]) Append(p Provider[T]) {
	for _, existing := range c.providers {
		if existing.Name == p.Name {
			return
		}
	}
	c.providers = append(c.providers, p)
}

func (c *Chain[T]) Names() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name
	}
	return names
}

// Resolve returns the first provider value that loads and the provider name. Each skipped
// provider is logged at warn level. When all fail, the error wraps ErrExhausted and every
// attempt's ResolutionError.
func (c *Chain[T]) Resolve(ctx context.Context) (T, string, error) {
	var (
		zero T
		errs error
	)

	for i, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return zero, "", err
		}

		v, err := c.load(ctx, p)
		if err == nil {
			if i > 0 {
				c.logger.Info("Fallback provider selected",
					zap.String("chain", c.name),
					zap.String("provider", p.Name),
					zap.Int("position", i),
				)
			}
			return v, p.Name, nil
		}

		errs = multierr.Append(errs, &apperr.ResolutionError{Chain: c.name, Provider: p.Name, Err: err})
		metrics.FallbackTransitions.WithLabelValues(c.name, p.Name).Inc()
		c.logger.Warn("Provider unavailable, falling back",
			zap.String("chain", c.name),
			zap.String("provider", p.Name),
			zap.Error(err),
		)
	}

	if errs == nil {
		errs = errors.New("no providers configured")
	}
	return zero, "", fmt.Errorf("%s: %w: %w", c.name, ErrExhausted, errs)
}

func (c *Chain[T]) load(ctx context.Context, p Provider[T]) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panicked: %v", r)
		}
	}()
	return p.Load(ctx)
}
