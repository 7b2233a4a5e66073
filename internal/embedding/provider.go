// Package embedding resolves a configured model name to a working embedding provider.
package embedding

import (
	"context"
	"errors"
	"math"
)

var ErrModelResolution = errors.New("embedding model resolution failed")

// Provider turns cleaned documents into dense vectors, one row per input in input order.
// Empty documents are valid input.
type Provider interface {
	Name() string
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

func normalize(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] /= norm
	}
	return v
}
