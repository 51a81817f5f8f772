package core

import (
	"sort"

	"github.com/paulmach/orb/planar"

	"locker_siting/internal/domain/model"
)

// SelectTop greedily picks up to k candidates by descending score for the
// scenario at scoreIdx. A candidate is accepted only when it lies strictly
// farther than minSeparation from every site accepted so far. Equal scores
// keep their input order. The input slice is not modified.
func SelectTop(candidates []model.Candidate, scoreIdx, k int, minSeparation float64) []model.Candidate {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	score := func(i int) int {
		s := candidates[i].Scores
		if scoreIdx < 0 || scoreIdx >= len(s) {
			return 0
		}
		return s[scoreIdx]
	}
	sort.SliceStable(order, func(a, b int) bool {
		return score(order[a]) > score(order[b])
	})

	selected := make([]model.Candidate, 0, k)
	for _, i := range order {
		c := candidates[i]
		farEnough := true
		for _, s := range selected {
			if planar.Distance(c.Point, s.Point) <= minSeparation {
				farEnough = false
				break
			}
		}
		if !farEnough {
			continue
		}
		selected = append(selected, c)
		if len(selected) == k {
			break
		}
	}
	return selected
}
