package reduce

import (
	"context"
	"errors"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/pipeline"
)

// PCA projects centred rows onto the leading principal components. Components beyond the
// rank of the data are zero.
type PCA struct{}

func (PCA) Name() string { return MethodPCA }

func (PCA) Reduce(ctx context.Context, rows [][]float64, p pipeline.ReductionParams) ([][]float64, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}
	n := len(rows)
	if n < 2 {
		return trivial(n, p.ComponentCount), nil
	}

	X, err := prepare(rows, p.Metric)
	if err != nil {
		return nil, err
	}
	_, d := X.Dims()

	for j := 0; j < d; j++ {
		col := mat.Col(nil, j, X)
		mean := stat.Mean(col, nil)
		for i := 0; i < n; i++ {
			X.Set(i, j, X.At(i, j)-mean)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(X, nil); !ok {
		return nil, errors.New("principal component analysis did not converge")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)

	_, available := vecs.Dims()
	k := min(p.ComponentCount, available)

	var proj mat.Dense
	proj.Mul(X, vecs.Slice(0, d, 0, k))
	return toRows(&proj, p.ComponentCount), nil
}
