package reduce

import (
	"context"
	"math"

	"github.com/danaugrs/go-tsne/tsne"
	"gonum.org/v1/gonum/mat"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/pipeline"
)

// TSNE uses neighborCount as the perplexity, clamped so that small corpora still have
// a valid neighbourhood. minDistance has no t-SNE counterpart and is only validated.
type TSNE struct {
	iterations   int
	learningRate float64
}

// NewTSNE fills unset options with 300 iterations and a learning rate of 200.
func NewTSNE(opts Options) *TSNE {
	if opts.Iterations <= 0 {
		opts.Iterations = 300
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = 200
	}
	return &TSNE{iterations: opts.Iterations, learningRate: opts.LearningRate}
}

func (t *TSNE) Name() string { return MethodTSNE }

func (t *TSNE) Reduce(ctx context.Context, rows [][]float64, p pipeline.ReductionParams) ([][]float64, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}
	n := len(rows)
	if n < 3 {
		return trivial(n, p.ComponentCount), nil
	}

	X, err := prepare(rows, p.Metric)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	model := tsne.NewTSNE(p.ComponentCount, Perplexity(p.NeighborCount, n), t.learningRate, t.iterations, false)
	Y := model.EmbedData(X, func(_ int, _ float64, _ mat.Matrix) bool {
		return ctx.Err() != nil
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return toRows(Y, p.ComponentCount), nil
}

// Perplexity clamps the neighbour count to (n-1)/3, the largest perplexity the binary
// search can reach for n points.
func Perplexity(neighbors, n int) float64 {
	limit := math.Floor(float64(n-1) / 3)
	return math.Max(1, math.Min(float64(neighbors), limit))
}
