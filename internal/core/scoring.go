package core

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"locker_siting/internal/domain/model"
)

// ScoringParams controls the competition bonus.
type ScoringParams struct {
	CompetitionRange float64 // meters
	CompetitionBonus int
}

// Scorer evaluates nodes against a precomputed Index.
type Scorer struct {
	index  *Index
	params ScoringParams
}

func NewScorer(index *Index, params ScoringParams) *Scorer {
	return &Scorer{index: index, params: params}
}

// Score sums the weights of all categories reachable within the horizon and
// adds the competition bonus when the site already scores above zero and a
// competitor locker lies within CompetitionRange.
func (s *Scorer) Score(node model.NodeID, horizonMinutes float64, competition bool) int {
	maxSeconds := horizonMinutes * 60
	score := 0
	for _, c := range s.index.categories {
		if c.access.Get(node) <= maxSeconds {
			score += c.weight
		}
	}
	return score + s.bonus(node, score, competition)
}

// ScoreDetailed returns the per-category breakdown behind Score.
func (s *Scorer) ScoreDetailed(node model.NodeID, horizonMinutes float64, competition bool) model.ScoreBreakdown {
	maxSeconds := horizonMinutes * 60
	bd := model.ScoreBreakdown{Contributions: make([]model.Contribution, 0, len(s.index.categories))}
	for _, c := range s.index.categories {
		contrib := model.Contribution{Category: c.name, Weight: c.weight}
		if c.access.Get(node) <= maxSeconds {
			contrib.Points = c.weight
		}
		bd.Contributions = append(bd.Contributions, contrib)
		bd.Total += contrib.Points
	}
	bd.CompetitionBonus = s.bonus(node, bd.Total, competition)
	bd.Total += bd.CompetitionBonus
	return bd
}

func (s *Scorer) bonus(node model.NodeID, base int, competition bool) int {
	if !competition || base <= 0 {
		return 0
	}
	if s.index.CompetitorDistance(node) <= s.params.CompetitionRange {
		return s.params.CompetitionBonus
	}
	return 0
}

// ScoreCandidate scores one candidate for a scenario. Candidates without a
// graph node score zero.
func (s *Scorer) ScoreCandidate(c model.Candidate, sc model.Scenario) int {
	if !c.HasNode {
		return 0
	}
	return s.Score(c.Node, sc.HorizonMinutes, sc.Competition)
}

// Breakdown is ScoreDetailed for a candidate.
func (s *Scorer) Breakdown(c model.Candidate, sc model.Scenario) model.ScoreBreakdown {
	if !c.HasNode {
		bd := model.ScoreBreakdown{}
		for _, cat := range s.index.categories {
			bd.Contributions = append(bd.Contributions, model.Contribution{Category: cat.name, Weight: cat.weight})
		}
		return bd
	}
	return s.ScoreDetailed(c.Node, sc.HorizonMinutes, sc.Competition)
}

// FilterCannibalized records each candidate's own-network distance and drops
// candidates closer than minOwnDistance to an existing own locker. Order is
// preserved. Candidates without a node have infinite distance and survive.
func FilterCannibalized(candidates []model.Candidate, index *Index, minOwnDistance float64) []model.Candidate {
	out := make([]model.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.HasNode {
			c.OwnDistance = index.OwnDistance(c.Node)
		}
		if c.OwnDistance < minOwnDistance {
			continue
		}
		out = append(out, c)
	}
	return out
}

// ScoreCandidates fills Candidate.Scores for every scenario, in scenario
// order. Work is split into contiguous chunks; each chunk writes only its own
// candidates.
func ScoreCandidates(ctx context.Context, s *Scorer, candidates []model.Candidate, scenarios []model.Scenario, workers int) error {
	if workers <= 0 {
		workers = 1
	}
	chunk := (len(candidates) + workers - 1) / workers
	if chunk == 0 {
		return nil
	}

	eg, ctx := errgroup.WithContext(ctx)
	for start := 0; start < len(candidates); start += chunk {
		start := start
		end := min(start+chunk, len(candidates))
		eg.Go(func() error {
			for i := start; i < end; i++ {
				if i%1024 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				scores := make([]int, len(scenarios))
				for k, sc := range scenarios {
					scores[k] = s.ScoreCandidate(candidates[i], sc)
				}
				candidates[i].Scores = scores
			}
			return nil
		})
	}
	return eg.Wait()
}

// FormatBreakdown renders a breakdown as human-readable text, one category
// per line.
func FormatBreakdown(bd model.ScoreBreakdown, competitionBonus int) string {
	var sb strings.Builder
	for _, c := range bd.Contributions {
		mark := "-"
		if c.Points > 0 {
			mark = "+"
		}
		fmt.Fprintf(&sb, "%s %-20s %2d pts (weight %d)\n", mark, c.Category, c.Points, c.Weight)
	}
	mark := "-"
	if bd.CompetitionBonus > 0 {
		mark = "+"
	}
	fmt.Fprintf(&sb, "%s %-20s %2d pts (weight %d)\n", mark, "competition_bonus", bd.CompetitionBonus, competitionBonus)
	fmt.Fprintf(&sb, "total: %d pts", bd.Total)
	return sb.String()
}
