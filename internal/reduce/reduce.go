// Package reduce projects document embeddings into a low-dimensional space for clustering.
package reduce

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/pipeline"
)

const (
	MethodTSNE = "tsne"
	MethodPCA  = "pca"
)

var ErrInvalidParams = errors.New("invalid reduction parameters")

type Reducer interface {
	Name() string
	Reduce(ctx context.Context, rows [][]float64, p pipeline.ReductionParams) ([][]float64, error)
}

type Options struct {
	Iterations   int
	LearningRate float64
}

func New(method string, opts Options) (Reducer, error) {
	switch method {
	case MethodTSNE, "":
		return NewTSNE(opts), nil
	case MethodPCA:
		return PCA{}, nil
	default:
		return nil, fmt.Errorf("unknown reduction method %q", method)
	}
}

func Validate(p pipeline.ReductionParams) error {
	switch {
	case p.NeighborCount < 2:
		return fmt.Errorf("%w: neighborCount must be at least 2, got %d", ErrInvalidParams, p.NeighborCount)
	case p.ComponentCount < 1:
		return fmt.Errorf("%w: componentCount must be at least 1, got %d", ErrInvalidParams, p.ComponentCount)
	case p.MinDistance < 0 || p.MinDistance > 1 || math.IsNaN(p.MinDistance):
		return fmt.Errorf("%w: minDistance must be within [0, 1], got %g", ErrInvalidParams, p.MinDistance)
	}
	switch p.Metric {
	case "cosine", "euclidean", "manhattan":
		return nil
	default:
		return fmt.Errorf("%w: unsupported metric %q", ErrInvalidParams, p.Metric)
	}
}

// prepare validates rows and returns them as a dense matrix. Rows are L2-normalised for
// the cosine metric so that euclidean geometry matches cosine similarity.
func prepare(rows [][]float64, metric string) (*mat.Dense, error) {
	n := len(rows)
	d := len(rows[0])
	if d == 0 {
		return nil, errors.New("embeddings have zero dimensions")
	}
	data := make([]float64, 0, n*d)
	for i, r := range rows {
		if len(r) != d {
			return nil, fmt.Errorf("embedding %d has %d dimensions, expected %d", i, len(r), d)
		}
		var norm float64
		for _, x := range r {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return nil, fmt.Errorf("embedding %d contains non-finite values", i)
			}
			norm += x * x
		}
		norm = math.Sqrt(norm)
		for _, x := range r {
			if metric == "cosine" && norm > 0 {
				x /= norm
			}
			data = append(data, x)
		}
	}
	return mat.NewDense(n, d, data), nil
}

// trivial handles corpora too small to project: every row maps to the origin.
func trivial(n, k int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, k)
	}
	return out
}

func toRows(m mat.Matrix, k int) [][]float64 {
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := 0; i < r; i++ {
		row := make([]float64, k)
		for j := 0; j < c && j < k; j++ {
			row[j] = m.At(i, j)
		}
		out[i] = row
	}
	return out
}
