package core

import (
	"github.com/paulmach/orb"

	"locker_siting/internal/domain/model"
)

// BuildWalkGraph turns OSM ways into a pedestrian graph. Consecutive way
// nodes are joined in both directions with their great-circle length; node
// positions are projected to the metric plane.
func BuildWalkGraph(ways []model.OSMElement, proj *Projector, walkSpeedMPS float64) *Graph {
	b := NewGraphBuilder()
	for _, w := range ways {
		if len(w.NodeIDs) < 2 || len(w.NodeIDs) != len(w.Coords) {
			continue
		}
		for i, id := range w.NodeIDs {
			c := w.Coords[i]
			b.AddNode(id, proj.ToMetric(orb.Point{c.Lon, c.Lat}))
		}
		for i := 1; i < len(w.NodeIDs); i++ {
			a, c := w.Coords[i-1], w.Coords[i]
			length := haversine(a.Lat, a.Lon, c.Lat, c.Lon)
			b.AddBidirectional(w.NodeIDs[i-1], w.NodeIDs[i], length)
		}
	}
	return b.Build(walkSpeedMPS)
}

// ElementPoints projects the representative point of each element.
func ElementPoints(elements []model.OSMElement, proj *Projector) []orb.Point {
	out := make([]orb.Point, 0, len(elements))
	for _, el := range elements {
		if el.Lat == 0 && el.Lon == 0 {
			continue
		}
		out = append(out, proj.ToMetric(orb.Point{el.Lon, el.Lat}))
	}
	return out
}

// ExclusionFromElements builds a mask from OSM features: relation areas and
// closed ways become polygons, open ways become corridors of the given buffer
// width.
func ExclusionFromElements(elements []model.OSMElement, proj *Projector, lineBuffer float64) *ExclusionMask {
	var polys orb.MultiPolygon
	var lines orb.MultiLineString
	for _, el := range elements {
		if len(el.Area) > 0 {
			polys = append(polys, proj.MultiPolygon(el.Area)...)
			continue
		}
		if len(el.Coords) < 2 {
			continue
		}
		if el.Closed() && len(el.Coords) >= 4 {
			ring := make(orb.Ring, len(el.Coords))
			for i, c := range el.Coords {
				ring[i] = proj.ToMetric(orb.Point{c.Lon, c.Lat})
			}
			polys = append(polys, orb.Polygon{ring})
			continue
		}
		line := make(orb.LineString, len(el.Coords))
		for i, c := range el.Coords {
			line[i] = proj.ToMetric(orb.Point{c.Lon, c.Lat})
		}
		lines = append(lines, line)
	}
	return NewExclusionMask(polys, lines, lineBuffer)
}

// LockersFromElements converts parcel locker features.
func LockersFromElements(elements []model.OSMElement, proj *Projector) []model.Locker {
	out := make([]model.Locker, 0, len(elements))
	for _, el := range elements {
		if el.Lat == 0 && el.Lon == 0 {
			continue
		}
		out = append(out, model.Locker{
			ID:    el.ID,
			Point: proj.ToMetric(orb.Point{el.Lon, el.Lat}),
			Tags:  el.OSMTags(),
		})
	}
	return out
}

// GraphFromNodeLink builds a graph from a node-link export. Undirected
// exports get both directions; links without a length count as zero.
func GraphFromNodeLink(nl model.NodeLinkGraph, proj *Projector, walkSpeedMPS float64) *Graph {
	b := NewGraphBuilder()
	known := make(map[int64]bool, len(nl.Nodes))
	for _, n := range nl.Nodes {
		known[n.ID] = true
		b.AddNode(model.NodeID(n.ID), proj.ToMetric(orb.Point{n.X, n.Y}))
	}
	links := nl.Links
	if len(links) == 0 {
		links = nl.Edges
	}
	for _, l := range links {
		if !known[l.Source] || !known[l.Target] {
			continue
		}
		length := 0.0
		if l.Length != nil {
			length = *l.Length
		}
		if nl.Directed {
			b.AddEdge(model.NodeID(l.Source), model.NodeID(l.Target), length)
		} else {
			b.AddBidirectional(model.NodeID(l.Source), model.NodeID(l.Target), length)
		}
	}
	return b.Build(walkSpeedMPS)
}
