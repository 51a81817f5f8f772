package core

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"

	"locker_siting/internal/domain/model"
)

func way(id int64, tags map[string]string, nodes ...int64) model.OSMElement {
	el := model.OSMElement{ID: id, Type: "way", Tags: tags}
	for _, n := range nodes {
		el.NodeIDs = append(el.NodeIDs, osm.NodeID(n))
		// node n sits n*0.001 degrees east of 21.0
		el.Coords = append(el.Coords, model.LatLon{Lat: 52.23, Lon: 21.0 + float64(n)*0.001})
	}
	return el
}

func TestBuildWalkGraph(t *testing.T) {
	proj := NewProjector(warsaw())
	g := BuildWalkGraph([]model.OSMElement{
		way(10, nil, 1, 2, 3),
		way(11, nil, 3, 4),
		way(12, nil, 9),
	}, proj, walkMPS)

	if g.NodeCount() != 4 {
		t.Errorf("NodeCount = %d, want 4", g.NodeCount())
	}
	if g.EdgeCount() != 6 {
		t.Errorf("EdgeCount = %d, want 6", g.EdgeCount())
	}
	step := haversine(52.23, 21.0, 52.23, 21.001)
	if got := g.EdgeCost(2, 3, MetricLength); math.Abs(got-step) > 1e-6 {
		t.Errorf("length(2->3) = %v, want %v", got, step)
	}
	if got := MultiSourceDistances(g, []model.NodeID{1}, MetricLength).Get(4); math.Abs(got-3*step) > 1e-6 {
		t.Errorf("d(1,4) = %v, want %v", got, 3*step)
	}
}

func TestGraphFromNodeLink(t *testing.T) {
	proj := NewProjector(warsaw())
	hundred := 100.0
	nl := model.NodeLinkGraph{
		Nodes: []model.NodeLinkNode{
			{ID: 1, X: 21.000, Y: 52.23},
			{ID: 2, X: 21.001, Y: 52.23},
			{ID: 3, X: 21.002, Y: 52.23},
		},
		Links: []model.NodeLinkLink{
			{Source: 1, Target: 2, Length: &hundred},
			{Source: 2, Target: 3},
			{Source: 3, Target: 99},
		},
	}

	g := GraphFromNodeLink(nl, proj, walkMPS)
	if g.EdgeCount() != 4 {
		t.Errorf("undirected EdgeCount = %d, want 4", g.EdgeCount())
	}
	if got := g.EdgeCost(2, 1, MetricLength); got != 100 {
		t.Errorf("length(2->1) = %v, want 100", got)
	}
	if got := g.EdgeCost(2, 3, MetricLength); got != 0 {
		t.Errorf("length(2->3) = %v, want 0 for a link without length", got)
	}
	if got := g.EdgeCost(3, 2, MetricTime); got != 0 {
		t.Errorf("time(3->2) = %v, want 0 for a link without length", got)
	}

	nl.Directed = true
	g = GraphFromNodeLink(nl, proj, walkMPS)
	if g.EdgeCount() != 2 {
		t.Errorf("directed EdgeCount = %d, want 2", g.EdgeCount())
	}
}

func TestGraphFromNodeLink_EdgesKey(t *testing.T) {
	nl := model.NodeLinkGraph{
		Nodes: []model.NodeLinkNode{{ID: 1, X: 21, Y: 52.23}, {ID: 2, X: 21.001, Y: 52.23}},
		Edges: []model.NodeLinkLink{{Source: 1, Target: 2}},
	}
	g := GraphFromNodeLink(nl, NewProjector(warsaw()), walkMPS)
	if g.EdgeCount() != 2 {
		t.Errorf("EdgeCount = %d, want 2", g.EdgeCount())
	}
	if got := g.EdgeCost(1, 2, MetricLength); got != 0 {
		t.Errorf("length(1->2) = %v, want 0", got)
	}
}

func TestExclusionFromElements(t *testing.T) {
	proj := NewProjector(warsaw())
	square := model.OSMElement{
		ID: 1, Type: "way",
		NodeIDs: []osm.NodeID{1, 2, 3, 4, 1},
		Coords: []model.LatLon{
			{Lat: 52.230, Lon: 21.000}, {Lat: 52.230, Lon: 21.002},
			{Lat: 52.232, Lon: 21.002}, {Lat: 52.232, Lon: 21.000},
			{Lat: 52.230, Lon: 21.000},
		},
	}
	rail := way(2, map[string]string{"railway": "rail"}, 10, 11)
	rail.Coords = []model.LatLon{{Lat: 52.240, Lon: 21.000}, {Lat: 52.240, Lon: 21.010}}

	mask := ExclusionFromElements([]model.OSMElement{square, rail}, proj, 10)
	if mask.Empty() {
		t.Fatal("mask is empty")
	}
	if !mask.Intersects(proj.ToMetric(orb.Point{21.001, 52.231})) {
		t.Error("point inside landuse polygon not excluded")
	}
	if !mask.Intersects(proj.ToMetric(orb.Point{21.005, 52.24004})) {
		t.Error("point next to railway not excluded")
	}
	if mask.Intersects(proj.ToMetric(orb.Point{21.005, 52.235})) {
		t.Error("free point excluded")
	}
}

func TestExclusionFromElements_RelationArea(t *testing.T) {
	proj := NewProjector(warsaw())
	outer := orb.Ring{{21.000, 52.220}, {21.010, 52.220}, {21.010, 52.226}, {21.000, 52.226}, {21.000, 52.220}}
	hole := orb.Ring{{21.004, 52.222}, {21.004, 52.224}, {21.006, 52.224}, {21.006, 52.222}, {21.004, 52.222}}
	park := model.OSMElement{
		ID: 900, Type: "relation",
		Tags: map[string]string{"type": "multipolygon", "leisure": "park"},
		Area: orb.MultiPolygon{{outer, hole}},
	}

	mask := ExclusionFromElements([]model.OSMElement{park}, proj, 10)
	if !mask.Intersects(proj.ToMetric(orb.Point{21.001, 52.221})) {
		t.Error("point inside relation area not excluded")
	}
	if mask.Intersects(proj.ToMetric(orb.Point{21.005, 52.223})) {
		t.Error("point inside inner ring excluded")
	}
}

func TestLockersFromElements(t *testing.T) {
	proj := NewProjector(warsaw())
	lockers := LockersFromElements([]model.OSMElement{
		{ID: 7, Type: "node", Lat: 52.23, Lon: 21.0, Tags: map[string]string{"operator": "InPost", "amenity": "parcel_locker"}},
		{ID: 8, Type: "node"},
	}, proj)
	if len(lockers) != 1 {
		t.Fatalf("len = %d, want 1", len(lockers))
	}
	if lockers[0].ID != 7 || lockers[0].Tags.Find("operator") != "InPost" {
		t.Errorf("locker = %+v", lockers[0])
	}
}
