package topicmodel

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/james-bowman/nlp"
	"gonum.org/v1/gonum/mat"
)

// termCounts is a sparse document-term count table.
type termCounts struct {
	vocab []string
	docs  []map[int]float64
}

func countTerms(texts []string) (*termCounts, error) {
	tc := &termCounts{docs: make([]map[int]float64, len(texts))}
	for i := range tc.docs {
		tc.docs[i] = make(map[int]float64)
	}

	empty := true
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			empty = false
			break
		}
	}
	if empty {
		return tc, nil
	}

	vectoriser := nlp.NewCountVectoriser()
	vectoriser.Tokeniser = whitespaceTokeniser{}
	m, err := vectoriser.FitTransform(texts...)
	if err != nil {
		return nil, fmt.Errorf("count terms: %w", err)
	}

	tc.vocab = make([]string, len(vectoriser.Vocabulary))
	for term, idx := range vectoriser.Vocabulary {
		tc.vocab[idx] = term
	}

	// m is terms x documents
	add := func(term, doc int, v float64) {
		if v != 0 {
			tc.docs[doc][term] += v
		}
	}
	if nz, ok := m.(mat.NonZeroDoer); ok {
		nz.DoNonZero(add)
	} else {
		r, c := m.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				add(i, j, m.At(i, j))
			}
		}
	}
	return tc, nil
}

type whitespaceTokeniser struct{}

func (whitespaceTokeniser) ForEachIn(text string, f func(token string)) {
	for _, tok := range strings.Fields(text) {
		f(tok)
	}
}

func (whitespaceTokeniser) Tokenise(text string) []string {
	return strings.Fields(text)
}

// class is a group of documents sharing a topic, with summed term counts.
type class struct {
	docs   []int
	counts []float64
}

func (c *class) absorb(other *class) {
	c.docs = append(c.docs, other.docs...)
	sort.Ints(c.docs)
	for t, v := range other.counts {
		c.counts[t] += v
	}
}

func (c *class) firstDoc() int {
	if len(c.docs) == 0 {
		return math.MaxInt
	}
	return c.docs[0]
}

// classWeights computes class-based TF-IDF: w(t,c) = tf(t,c) * log(1 + A/f(t)) where
// tf is L1-normalised within the class, f(t) is the frequency of t over all classes and
// A is the average number of words per class.
func classWeights(classes []*class, vocabSize int) [][]float64 {
	freq := make([]float64, vocabSize)
	var total float64
	for _, c := range classes {
		for t, v := range c.counts {
			freq[t] += v
			total += v
		}
	}
	weights := make([][]float64, len(classes))
	if len(classes) == 0 {
		return weights
	}
	avg := total / float64(len(classes))

	for i, c := range classes {
		w := make([]float64, vocabSize)
		var rowSum float64
		for _, v := range c.counts {
			rowSum += v
		}
		if rowSum > 0 {
			for t, v := range c.counts {
				if v == 0 || freq[t] == 0 {
					continue
				}
				w[t] = (v / rowSum) * math.Log(1+avg/freq[t])
			}
		}
		weights[i] = w
	}
	return weights
}

// topWords returns up to n terms with positive weight, by descending weight and then
// alphabetically.
func topWords(weights []float64, vocab []string, n int) ([]string, []float64) {
	idx := make([]int, 0, len(weights))
	for t, w := range weights {
		if w > 0 {
			idx = append(idx, t)
		}
	}
	sort.Slice(idx, func(a, b int) bool {
		wa, wb := weights[idx[a]], weights[idx[b]]
		if wa != wb {
			return wa > wb
		}
		return vocab[idx[a]] < vocab[idx[b]]
	})
	if len(idx) > n {
		idx = idx[:n]
	}
	words := make([]string, len(idx))
	scores := make([]float64, len(idx))
	for i, t := range idx {
		words[i] = vocab[t]
		scores[i] = weights[t]
	}
	return words, scores
}

// topicName joins the id with the first four words, e.g. "0_cat_dog_pet_food".
func topicName(id int, words []string) string {
	parts := []string{strconv.Itoa(id)}
	parts = append(parts, words[:min(4, len(words))]...)
	return strings.Join(parts, "_")
}
