package oracle

import (
	"context"
	"sort"
)

// Heuristic picks the Limit best options by descending score. Ties keep
// the option order.
type Heuristic struct {
	Limit int
}

func NewHeuristic(limit int) *Heuristic {
	return &Heuristic{Limit: limit}
}

func (h *Heuristic) Select(ctx context.Context, q Query) (Choice, error) {
	return Choice{Indexes: TopByScore(q.Options, h.Limit)}, nil
}

func TopByScore(options []Option, limit int) []int {
	idx := make([]int, len(options))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return options[idx[a]].Score > options[idx[b]].Score
	})
	if limit >= 0 && len(idx) > limit {
		idx = idx[:limit]
	}
	return idx
}
