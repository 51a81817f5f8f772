package model

import (
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
)

// NodeID identifies a pedestrian network node. Graphs built from OSM keep the
// original node ids.
type NodeID = osm.NodeID

// Category is a class of demand generators sharing one weight.
type Category struct {
	Name   string
	Weight int
	Points []orb.Point // metric
}

// CategoryWeight is a configured category with its Overpass selectors.
type CategoryWeight struct {
	Name      string   `json:"name"`
	Weight    int      `json:"weight"`
	Selectors []string `json:"selectors,omitempty"`
}

type LockerClass int

const (
	LockerUncategorized LockerClass = iota
	LockerOwn
	LockerCompetitor
)

func (c LockerClass) String() string {
	switch c {
	case LockerOwn:
		return "own"
	case LockerCompetitor:
		return "competitor"
	default:
		return "uncategorized"
	}
}

// Locker is an existing parcel locker with its free-text attributes.
type Locker struct {
	ID    int64
	Point orb.Point // metric
	Tags  osm.Tags
}

// Scenario is one (time horizon, competition mode) evaluation setting.
type Scenario struct {
	HorizonMinutes float64 `json:"horizon_minutes"`
	Competition    bool    `json:"competition"`
}

// Key is a stable identifier such as "basic_3min" or "competition_8min".
func (s Scenario) Key() string {
	mode := "basic"
	if s.Competition {
		mode = "competition"
	}
	return fmt.Sprintf("%s_%gmin", mode, s.HorizonMinutes)
}

// CrossScenarios pairs every competition mode with every horizon, modes
// outermost.
func CrossScenarios(horizons []float64, modes []bool) []Scenario {
	out := make([]Scenario, 0, len(horizons)*len(modes))
	for _, comp := range modes {
		for _, h := range horizons {
			out = append(out, Scenario{HorizonMinutes: h, Competition: comp})
		}
	}
	return out
}

// Candidate is a grid point considered for a new locker.
type Candidate struct {
	Index       int       `json:"index"`
	Point       orb.Point `json:"point"`
	Location    orb.Point `json:"location"` // WGS84, zero when inputs were metric only
	Node        NodeID    `json:"node"`
	HasNode     bool      `json:"has_node"`
	OwnDistance float64   `json:"-"` // meters, +Inf when no own locker is reachable
	Scores      []int     `json:"scores"`
}

// OwnDistanceValue returns the own-network distance, or nil when infinite.
func (c Candidate) OwnDistanceValue() *float64 {
	if math.IsInf(c.OwnDistance, 0) || math.IsNaN(c.OwnDistance) {
		return nil
	}
	d := c.OwnDistance
	return &d
}

// Contribution is one category's share of a score.
type Contribution struct {
	Category string `json:"category"`
	Weight   int    `json:"weight"`
	Points   int    `json:"points"`
}

type ScoreBreakdown struct {
	Contributions    []Contribution `json:"contributions"`
	CompetitionBonus int            `json:"competition_bonus"`
	Total            int            `json:"total"`
}

type SelectedSite struct {
	Rank      int            `json:"rank"`
	Candidate Candidate      `json:"candidate"`
	Score     int            `json:"score"`
	Breakdown ScoreBreakdown `json:"breakdown"`
	Summary   string         `json:"summary"`
}

type ScenarioSelection struct {
	Scenario Scenario       `json:"scenario"`
	Sites    []SelectedSite `json:"sites"`
}

// RunResult is the full output of one siting run.
type RunResult struct {
	ID             string              `json:"id"`
	CreatedAt      time.Time           `json:"created_at"`
	Scenarios      []Scenario          `json:"scenarios"`
	GeneratedCount int                 `json:"generated_count"`
	Candidates     []Candidate         `json:"candidates"`
	Selections     []ScenarioSelection `json:"selections"`
}

// SitingRequest asks for a run over an OSM area.
type SitingRequest struct {
	BBox     Bounds
	TopN     int
	Horizons []float64
}

// NodeLinkGraph is a street network exported in node-link JSON, as written by
// networkx/osmnx. Node x/y are lon/lat.
type NodeLinkGraph struct {
	Directed bool           `json:"directed"`
	Nodes    []NodeLinkNode `json:"nodes"`
	Links    []NodeLinkLink `json:"links"`
	// Edges is the key used by newer networkx releases.
	Edges []NodeLinkLink `json:"edges,omitempty"`
}

type NodeLinkNode struct {
	ID int64   `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

type NodeLinkLink struct {
	Source int64    `json:"source"`
	Target int64    `json:"target"`
	Length *float64 `json:"length,omitempty"` // meters
}
