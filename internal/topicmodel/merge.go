package topicmodel

import (
	"fmt"
	"sort"
)

// groupClasses builds one class per cluster label plus the noise class, if any.
func groupClasses(labels []int, tc *termCounts) (noise *class, topics []*class) {
	vocabSize := len(tc.vocab)
	byLabel := make(map[int]*class)
	var order []int
	for doc, label := range labels {
		c, ok := byLabel[label]
		if !ok {
			c = &class{counts: make([]float64, vocabSize)}
			byLabel[label] = c
			if label != NoiseTopic {
				order = append(order, label)
			}
		}
		c.docs = append(c.docs, doc)
		for t, v := range tc.docs[doc] {
			c.counts[t] += v
		}
	}
	sort.Ints(order)
	for _, label := range order {
		topics = append(topics, byLabel[label])
	}
	return byLabel[NoiseTopic], topics
}

func allClasses(noise *class, topics []*class) []*class {
	if noise == nil {
		return topics
	}
	return append([]*class{noise}, topics...)
}

// topicWeights returns the c-TF-IDF rows of the non-noise topics. The noise class takes
// part in the term frequencies when present.
func topicWeights(noise *class, topics []*class, vocabSize int) [][]float64 {
	w := classWeights(allClasses(noise, topics), vocabSize)
	if noise != nil {
		return w[1:]
	}
	return w
}

// mergeSmallTopics folds every topic smaller than minSize into its most similar topic,
// smallest first, until all remaining topics are large enough or only one remains.
func mergeSmallTopics(noise *class, topics []*class, vocabSize, minSize int) []*class {
	for len(topics) > 1 {
		smallest := 0
		for i, c := range topics {
			if len(c.docs) < len(topics[smallest].docs) {
				smallest = i
			}
		}
		if len(topics[smallest].docs) >= minSize {
			break
		}

		weights := topicWeights(noise, topics, vocabSize)
		target, best := -1, -2.0
		for i := range topics {
			if i == smallest {
				continue
			}
			if s := cosine(weights[smallest], weights[i]); s > best {
				target, best = i, s
			}
		}
		topics[target].absorb(topics[smallest])
		topics = append(topics[:smallest], topics[smallest+1:]...)
	}
	return topics
}

// reduceToTarget merges the most similar pair of topics until target topics remain. The
// smaller topic of the pair is folded into the larger.
func reduceToTarget(noise *class, topics []*class, vocabSize, target int) ([]*class, error) {
	if target < 1 {
		return nil, fmt.Errorf("targetTopicCount must be at least 1, got %d", target)
	}
	for len(topics) > target {
		weights := topicWeights(noise, topics, vocabSize)
		bi, bj, best := 0, 1, -2.0
		for i := 0; i < len(topics); i++ {
			for j := i + 1; j < len(topics); j++ {
				if s := cosine(weights[i], weights[j]); s > best {
					bi, bj, best = i, j, s
				}
			}
		}
		keep, drop := bi, bj
		if len(topics[bj].docs) > len(topics[bi].docs) {
			keep, drop = bj, bi
		}
		topics[keep].absorb(topics[drop])
		topics = append(topics[:drop], topics[drop+1:]...)
	}
	return topics, nil
}

// orderBySize sorts topics by descending size, ties broken by earliest document, so that
// identical groupings always get identical ids.
func orderBySize(topics []*class) {
	sort.SliceStable(topics, func(a, b int) bool {
		if len(topics[a].docs) != len(topics[b].docs) {
			return len(topics[a].docs) > len(topics[b].docs)
		}
		return topics[a].firstDoc() < topics[b].firstDoc()
	})
}
