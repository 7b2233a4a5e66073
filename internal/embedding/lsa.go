package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/james-bowman/nlp"
)

const ModelLSA = "lsa"

// LSA embeds a corpus by fitting TF-IDF and a truncated SVD on that same corpus. It has
// no external artifact and works for any script once text is whitespace-tokenised.
type LSA struct {
	dims int
}

func NewLSA(dims int) *LSA {
	if dims <= 0 {
		dims = 100
	}
	return &LSA{dims: dims}
}

func (l *LSA) Name() string { return ModelLSA }

func (l *LSA) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	hasTerms := false
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			hasTerms = true
			break
		}
	}
	if !hasTerms {
		return l.zeros(len(texts)), nil
	}

	vectoriser := nlp.NewCountVectoriser()
	vectoriser.Tokeniser = whitespaceTokeniser{}

	counts, err := vectoriser.FitTransform(texts...)
	if err != nil {
		return nil, fmt.Errorf("count terms: %w", err)
	}
	terms := len(vectoriser.Vocabulary)
	if terms == 0 {
		return l.zeros(len(texts)), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	weighted, err := nlp.NewTfidfTransformer().FitTransform(counts)
	if err != nil {
		return nil, fmt.Errorf("tf-idf: %w", err)
	}

	k := min(l.dims, terms, len(texts))
	reduced, err := nlp.NewTruncatedSVD(k).FitTransform(weighted)
	if err != nil {
		return nil, fmt.Errorf("truncated svd: %w", err)
	}

	// reduced is components x documents
	rows, cols := reduced.Dims()
	out := make([][]float64, cols)
	for doc := 0; doc < cols; doc++ {
		v := make([]float64, rows)
		for c := 0; c < rows; c++ {
			v[c] = reduced.At(c, doc)
		}
		out[doc] = normalize(v)
	}
	return out, nil
}

// zeros embeds a corpus without terms: every document sits at the origin.
func (l *LSA) zeros(n int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, l.dims)
	}
	return out
}

// whitespaceTokeniser splits on whitespace only; text reaching the vectoriser has
// already been cleaned and segmented.
type whitespaceTokeniser struct{}

func (whitespaceTokeniser) ForEachIn(text string, f func(token string)) {
	for _, tok := range strings.Fields(text) {
		f(tok)
	}
}

func (whitespaceTokeniser) Tokenise(text string) []string {
	return strings.Fields(text)
}
