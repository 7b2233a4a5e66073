package visualization

import (
	"sort"
	"time"

	"github.com/spf13/cast"
)

// timeBuckets returns the distinct timestamps in axis order and each one's position.
// When every value parses as a time the axis is chronological; otherwise it keeps first
// appearance order.
func timeBuckets(ts []string) ([]string, map[string]int) {
	var distinct []string
	seen := make(map[string]struct{})
	for _, t := range ts {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			distinct = append(distinct, t)
		}
	}

	parsed := make(map[string]time.Time, len(distinct))
	for _, t := range distinct {
		v, err := cast.ToTimeE(t)
		if err != nil {
			parsed = nil
			break
		}
		parsed[t] = v
	}
	if parsed != nil {
		sort.SliceStable(distinct, func(a, b int) bool {
			return parsed[distinct[a]].Before(parsed[distinct[b]])
		})
	}

	index := make(map[string]int, len(distinct))
	for i, t := range distinct {
		index[t] = i
	}
	return distinct, index
}
