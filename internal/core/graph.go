package core

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/quadtree"

	"locker_siting/internal/domain/model"
)

// Metric selects which edge cost a shortest-path search uses.
type Metric int

const (
	MetricTime   Metric = iota // seconds
	MetricLength               // meters
)

func (m Metric) String() string {
	if m == MetricLength {
		return "length"
	}
	return "time"
}

type edge struct {
	to     int
	length float64
	time   float64
}

func (e edge) cost(m Metric) float64 {
	if m == MetricLength {
		return e.length
	}
	return e.time
}

// Graph is an immutable pedestrian network. Nodes are stored densely; the
// NodeID mapping is kept for lookups.
type Graph struct {
	ids      []model.NodeID
	points   []orb.Point
	index    map[model.NodeID]int
	adj      [][]edge
	edges    int
	nearest  *quadtree.Quadtree
	speedMPS float64
}

// GraphBuilder collects nodes and edges before the one-time cost annotation.
type GraphBuilder struct {
	ids    []model.NodeID
	points []orb.Point
	index  map[model.NodeID]int
	adj    [][]edge
}

func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{index: make(map[model.NodeID]int)}
}

// AddNode registers a node. Re-adding an id updates its position.
func (b *GraphBuilder) AddNode(id model.NodeID, p orb.Point) {
	if i, ok := b.index[id]; ok {
		b.points[i] = p
		return
	}
	b.index[id] = len(b.ids)
	b.ids = append(b.ids, id)
	b.points = append(b.points, p)
	b.adj = append(b.adj, nil)
}

// AddEdge adds a directed edge. Unknown endpoints are ignored and reported as
// false. Missing, negative or non-finite lengths count as zero.
func (b *GraphBuilder) AddEdge(from, to model.NodeID, length float64) bool {
	u, ok := b.index[from]
	if !ok {
		return false
	}
	v, ok := b.index[to]
	if !ok {
		return false
	}
	if math.IsNaN(length) || math.IsInf(length, 0) || length < 0 {
		length = 0
	}
	b.adj[u] = append(b.adj[u], edge{to: v, length: length})
	return true
}

// AddBidirectional adds edges in both directions.
func (b *GraphBuilder) AddBidirectional(a, c model.NodeID, length float64) bool {
	return b.AddEdge(a, c, length) && b.AddEdge(c, a, length)
}

// Build annotates every edge with its walking time and freezes the graph.
// walkSpeedMPS must be positive.
func (b *GraphBuilder) Build(walkSpeedMPS float64) *Graph {
	g := &Graph{
		ids:      b.ids,
		points:   b.points,
		index:    b.index,
		adj:      b.adj,
		speedMPS: walkSpeedMPS,
	}
	for u := range g.adj {
		for i := range g.adj[u] {
			e := &g.adj[u][i]
			e.time = e.length / walkSpeedMPS
			g.edges++
		}
	}
	g.buildNearestIndex()

	// the builder must not mutate the frozen graph
	*b = GraphBuilder{index: make(map[model.NodeID]int)}
	return g
}

type nodePointer struct {
	idx int
	p   orb.Point
}

func (n nodePointer) Point() orb.Point { return n.p }

func (g *Graph) buildNearestIndex() {
	if len(g.points) == 0 {
		return
	}
	bound := g.points[0].Bound()
	for _, p := range g.points[1:] {
		bound = bound.Extend(p)
	}
	g.nearest = quadtree.New(bound.Pad(1))
	for i, p := range g.points {
		// points are inside the padded bound, Add cannot fail
		_ = g.nearest.Add(nodePointer{idx: i, p: p})
	}
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.ids) }

// EdgeCount returns the number of directed edges.
func (g *Graph) EdgeCount() int { return g.edges }

// WalkSpeedMPS returns the speed used for the time annotation.
func (g *Graph) WalkSpeedMPS() float64 { return g.speedMPS }

// Point returns the metric position of a node.
func (g *Graph) Point(id model.NodeID) (orb.Point, bool) {
	i, ok := g.index[id]
	if !ok {
		return orb.Point{}, false
	}
	return g.points[i], true
}

// NearestNode returns the node closest to p. It reports false when the graph
// has no nodes.
func (g *Graph) NearestNode(p orb.Point) (model.NodeID, bool) {
	if g == nil || g.nearest == nil {
		return 0, false
	}
	found := g.nearest.Find(p)
	if found == nil {
		return 0, false
	}
	return g.ids[found.(nodePointer).idx], true
}

// NearestNodes snaps points and returns the distinct node ids in first-seen
// order.
func (g *Graph) NearestNodes(points []orb.Point) []model.NodeID {
	seen := make(map[model.NodeID]bool, len(points))
	var out []model.NodeID
	for _, p := range points {
		id, ok := g.NearestNode(p)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// EdgeCost returns the cost of the cheapest edge from -> to, or +Inf.
func (g *Graph) EdgeCost(from, to model.NodeID, m Metric) float64 {
	u, ok := g.index[from]
	if !ok {
		return math.Inf(1)
	}
	v, ok := g.index[to]
	if !ok {
		return math.Inf(1)
	}
	best := math.Inf(1)
	for _, e := range g.adj[u] {
		if e.to == v && e.cost(m) < best {
			best = e.cost(m)
		}
	}
	return best
}
