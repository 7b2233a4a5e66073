package embedding

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// WordVectors is a static word-vector model in the word2vec/fastText text format. A
// document vector is the normalised mean of its known token vectors.
type WordVectors struct {
	name    string
	dim     int
	vectors map[string][]float64
}

func LoadWordVectors(path string) (*WordVectors, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open word vectors: %w", err)
	}
	defer f.Close()

	wv := &WordVectors{name: "local:" + path, vectors: make(map[string][]float64)}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		// optional "<count> <dim>" header
		if line == 1 && len(fields) == 2 {
			if _, err := strconv.Atoi(fields[0]); err == nil {
				if d, err := strconv.Atoi(fields[1]); err == nil {
					wv.dim = d
					continue
				}
			}
		}

		vec := make([]float64, len(fields)-1)
		for i, s := range fields[1:] {
			x, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			vec[i] = x
		}
		if wv.dim == 0 {
			wv.dim = len(vec)
		}
		if len(vec) != wv.dim {
			return nil, fmt.Errorf("line %d: expected %d dimensions, got %d", line, wv.dim, len(vec))
		}
		wv.vectors[fields[0]] = vec
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read word vectors: %w", err)
	}
	if len(wv.vectors) == 0 || wv.dim == 0 {
		return nil, fmt.Errorf("word vector file %s has no vectors", path)
	}
	return wv, nil
}

func (w *WordVectors) Name() string { return w.name }

func (w *WordVectors) Dimension() int { return w.dim }

func (w *WordVectors) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if i%512 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		v := make([]float64, w.dim)
		n := 0
		for _, tok := range strings.Fields(text) {
			wordVec, ok := w.vectors[tok]
			if !ok {
				continue
			}
			for j, x := range wordVec {
				v[j] += x
			}
			n++
		}
		if n > 0 {
			for j := range v {
				v[j] /= float64(n)
			}
		}
		out[i] = normalize(v)
	}
	return out, nil
}
