package core

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/paulmach/orb"

	"locker_siting/internal/domain/model"
)

// lineIndex indexes a 5-node line (100 m spacing) with shops at node 0,
// offices at node 4, own lockers and competitors as given.
func lineIndex(t *testing.T, own, competitors []model.NodeID) (*Graph, *Index) {
	t.Helper()
	g := lineGraph(5, 100)
	idx, err := BuildIndex(context.Background(), g, IndexInput{
		Categories: []model.Category{
			{Name: "shops", Weight: 3, Points: []orb.Point{{0, 0}}},
			{Name: "offices", Weight: 4, Points: []orb.Point{{400, 0}}},
		},
		Own:         own,
		Competitors: competitors,
	}, 0)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	return g, idx
}

func TestScore_Horizon(t *testing.T) {
	_, idx := lineIndex(t, nil, nil)
	s := NewScorer(idx, ScoringParams{CompetitionRange: 250, CompetitionBonus: 5})

	// 3 min = 180 s = 240 m at 4.8 km/h
	want := []int{3, 3, 7, 4, 4}
	for i, w := range want {
		if got := s.Score(model.NodeID(i), 3, false); got != w {
			t.Errorf("Score(%d, 3min) = %d, want %d", i, got, w)
		}
	}
	for i := 0; i < 5; i++ {
		if got := s.Score(model.NodeID(i), 8, false); got != 7 {
			t.Errorf("Score(%d, 8min) = %d, want 7", i, got)
		}
	}
}

func TestScore_SingleCategoryLine(t *testing.T) {
	g := lineGraph(5, 100)
	idx, err := BuildIndex(context.Background(), g, IndexInput{
		Categories: []model.Category{{Name: "shops", Weight: 3, Points: []orb.Point{{0, 0}}}},
	}, 0)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	s := NewScorer(idx, ScoringParams{CompetitionRange: 250, CompetitionBonus: 5})

	want := []int{3, 3, 3, 0, 0}
	for i, w := range want {
		if got := s.Score(model.NodeID(i), 3, false); got != w {
			t.Errorf("Score(%d, 3min) = %d, want %d", i, got, w)
		}
	}
}

func TestScore_HorizonMonotone(t *testing.T) {
	_, idx := lineIndex(t, nil, []model.NodeID{2})
	s := NewScorer(idx, ScoringParams{CompetitionRange: 250, CompetitionBonus: 5})
	horizons := []float64{0.5, 1, 2, 3, 5, 8}
	for node := 0; node < 5; node++ {
		for _, comp := range []bool{false, true} {
			prev := -1
			for _, h := range horizons {
				got := s.Score(model.NodeID(node), h, comp)
				if got < prev {
					t.Errorf("node %d comp=%v: score dropped to %d at %v min", node, comp, got, h)
				}
				prev = got
			}
		}
	}
}

func TestScore_CompetitionBonus(t *testing.T) {
	_, idx := lineIndex(t, nil, []model.NodeID{2})

	tests := []struct {
		name    string
		rng     float64
		node    model.NodeID
		horizon float64
		want    int
	}{
		{"within range", 250, 0, 3, 3 + 5},
		{"exactly at range", 200, 0, 3, 3 + 5},
		{"beyond range", 199, 0, 3, 3},
		{"zero base score", 250, 1, 0.5, 0},
		{"competitor node itself", 0, 2, 3, 7 + 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScorer(idx, ScoringParams{CompetitionRange: tt.rng, CompetitionBonus: 5})
			if got := s.Score(tt.node, tt.horizon, true); got != tt.want {
				t.Errorf("Score = %d, want %d", got, tt.want)
			}
			if got := s.ScoreDetailed(tt.node, tt.horizon, true).Total; got != tt.want {
				t.Errorf("ScoreDetailed.Total = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScore_NoCompetitorsEqualsBasic(t *testing.T) {
	_, idx := lineIndex(t, nil, nil)
	s := NewScorer(idx, ScoringParams{CompetitionRange: 1e9, CompetitionBonus: 5})
	for node := 0; node < 5; node++ {
		for _, h := range []float64{3, 8} {
			if b, c := s.Score(model.NodeID(node), h, false), s.Score(model.NodeID(node), h, true); b != c {
				t.Errorf("node %d %v min: basic %d != competition %d", node, h, b, c)
			}
		}
	}
}

func TestScore_WeightMonotone(t *testing.T) {
	g := lineGraph(5, 100)
	build := func(w int) *Scorer {
		idx, err := BuildIndex(context.Background(), g, IndexInput{
			Categories: []model.Category{{Name: "shops", Weight: w, Points: []orb.Point{{0, 0}}}},
		}, 0)
		if err != nil {
			t.Fatalf("BuildIndex: %v", err)
		}
		return NewScorer(idx, ScoringParams{})
	}
	low, high := build(2), build(5)
	for node := 0; node < 5; node++ {
		if l, h := low.Score(model.NodeID(node), 3, false), high.Score(model.NodeID(node), 3, false); h < l {
			t.Errorf("node %d: raising weight lowered score %d -> %d", node, l, h)
		}
	}
}

func TestScoreCandidate_NoNode(t *testing.T) {
	_, idx := lineIndex(t, nil, []model.NodeID{0})
	s := NewScorer(idx, ScoringParams{CompetitionRange: 250, CompetitionBonus: 5})
	c := model.Candidate{Point: orb.Point{0, 0}}
	if got := s.ScoreCandidate(c, model.Scenario{HorizonMinutes: 8, Competition: true}); got != 0 {
		t.Errorf("ScoreCandidate = %d, want 0", got)
	}
	bd := s.Breakdown(c, model.Scenario{HorizonMinutes: 8})
	if bd.Total != 0 || len(bd.Contributions) != 2 {
		t.Errorf("Breakdown = %+v, want zero total over 2 categories", bd)
	}
}

func TestFilterCannibalized(t *testing.T) {
	_, idx := lineIndex(t, []model.NodeID{0}, nil)
	var cands []model.Candidate
	for i := 0; i < 5; i++ {
		cands = append(cands, model.Candidate{
			Index:       i,
			Point:       orb.Point{float64(i) * 100, 0},
			Node:        model.NodeID(i),
			HasNode:     true,
			OwnDistance: math.Inf(1),
		})
	}
	cands = append(cands, model.Candidate{Index: 5, OwnDistance: math.Inf(1)})

	got := FilterCannibalized(cands, idx, 300)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Index != 3 || got[1].Index != 4 || got[2].Index != 5 {
		t.Errorf("kept %d,%d,%d, want 3,4,5", got[0].Index, got[1].Index, got[2].Index)
	}
	if got[0].OwnDistance != 300 {
		t.Errorf("OwnDistance = %v, want 300", got[0].OwnDistance)
	}
	for _, c := range got {
		if c.OwnDistance < 300 {
			t.Errorf("candidate %d kept at %v m", c.Index, c.OwnDistance)
		}
	}
}

func TestFilterCannibalized_NoOwnLockers(t *testing.T) {
	_, idx := lineIndex(t, nil, nil)
	cands := []model.Candidate{{Node: 1, HasNode: true}, {Node: 2, HasNode: true}}
	got := FilterCannibalized(cands, idx, 300)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].OwnDistanceValue() != nil {
		t.Errorf("OwnDistanceValue = %v, want nil", *got[0].OwnDistanceValue())
	}
}

func TestScoreCandidates(t *testing.T) {
	_, idx := lineIndex(t, nil, []model.NodeID{2})
	s := NewScorer(idx, ScoringParams{CompetitionRange: 250, CompetitionBonus: 5})
	var cands []model.Candidate
	for i := 0; i < 5; i++ {
		cands = append(cands, model.Candidate{Index: i, Node: model.NodeID(i), HasNode: true})
	}
	scenarios := model.CrossScenarios([]float64{3, 8}, []bool{false, true})

	if err := ScoreCandidates(context.Background(), s, cands, scenarios, 3); err != nil {
		t.Fatalf("ScoreCandidates: %v", err)
	}
	for _, c := range cands {
		if len(c.Scores) != len(scenarios) {
			t.Fatalf("candidate %d has %d scores, want %d", c.Index, len(c.Scores), len(scenarios))
		}
		for k, sc := range scenarios {
			if want := s.ScoreCandidate(c, sc); c.Scores[k] != want {
				t.Errorf("candidate %d %s = %d, want %d", c.Index, sc.Key(), c.Scores[k], want)
			}
		}
	}
}

func TestFormatBreakdown(t *testing.T) {
	_, idx := lineIndex(t, nil, []model.NodeID{0})
	s := NewScorer(idx, ScoringParams{CompetitionRange: 250, CompetitionBonus: 5})
	out := FormatBreakdown(s.ScoreDetailed(0, 3, true), 5)

	for _, want := range []string{"+ shops", "- offices", "+ competition_bonus", "total: 8 pts"} {
		if !strings.Contains(out, want) {
			t.Errorf("breakdown missing %q:\n%s", want, out)
		}
	}
}
