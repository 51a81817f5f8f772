package core

import (
	"container/heap"
	"context"
	"math"

	"golang.org/x/sync/errgroup"

	"locker_siting/internal/domain/model"
)

// AccessMap maps a node to its minimum cost to the nearest source. Absent
// nodes are unreachable.
type AccessMap map[model.NodeID]float64

// Get returns the cost for node, or +Inf when unreachable.
func (m AccessMap) Get(node model.NodeID) float64 {
	if d, ok := m[node]; ok {
		return d
	}
	return math.Inf(1)
}

// MultiSourceDistances runs Dijkstra seeded with every source at cost zero,
// which is the same as a single search from a virtual super-source. Sources
// unknown to the graph are ignored.
func MultiSourceDistances(g *Graph, sources []model.NodeID, metric Metric) AccessMap {
	result := make(AccessMap)
	if g == nil || len(sources) == 0 {
		return result
	}

	dist := make([]float64, len(g.ids))
	for i := range dist {
		dist[i] = math.Inf(1)
	}

	pq := make(priorityQueue, 0, len(sources))
	for _, s := range sources {
		i, ok := g.index[s]
		if !ok || dist[i] == 0 {
			continue
		}
		dist[i] = 0
		pq = append(pq, pqItem{node: i, dist: 0})
	}
	heap.Init(&pq)

	for pq.Len() > 0 {
		item := heap.Pop(&pq).(pqItem)
		if item.dist > dist[item.node] {
			continue
		}
		for _, e := range g.adj[item.node] {
			nd := item.dist + e.cost(metric)
			if nd < dist[e.to] {
				dist[e.to] = nd
				heap.Push(&pq, pqItem{node: e.to, dist: nd})
			}
		}
	}

	for i, d := range dist {
		if !math.IsInf(d, 1) {
			result[g.ids[i]] = d
		}
	}
	return result
}

type pqItem struct {
	node int
	dist float64
}

type priorityQueue []pqItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].dist < pq[j].dist }
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x interface{}) { *pq = append(*pq, x.(pqItem)) }
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

type categoryAccess struct {
	name   string
	weight int
	access AccessMap
}

// Index is the read-only accessibility cache of one run: walking time to each
// demand-generator category and walking distance to own and competitor
// lockers. It is built once and shared by every scenario.
type Index struct {
	categories []categoryAccess
	own        AccessMap
	competitor AccessMap
}

// IndexInput is what BuildIndex precomputes over.
type IndexInput struct {
	Categories  []model.Category
	Own         []model.NodeID
	Competitors []model.NodeID
}

// BuildIndex computes every category map (time metric) and the own and
// competitor maps (length metric). Categories without points are skipped.
// The graph is only read, so the searches run concurrently.
func BuildIndex(ctx context.Context, g *Graph, in IndexInput, workers int) (*Index, error) {
	var cats []model.Category
	for _, c := range in.Categories {
		if len(c.Points) == 0 || c.Weight <= 0 {
			continue
		}
		cats = append(cats, c)
	}

	idx := &Index{categories: make([]categoryAccess, len(cats))}

	eg, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		eg.SetLimit(workers)
	}
	for i, c := range cats {
		i, c := i, c
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sources := g.NearestNodes(c.Points)
			idx.categories[i] = categoryAccess{
				name:   c.Name,
				weight: c.Weight,
				access: MultiSourceDistances(g, sources, MetricTime),
			}
			return nil
		})
	}
	eg.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		idx.own = MultiSourceDistances(g, in.Own, MetricLength)
		return nil
	})
	eg.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		idx.competitor = MultiSourceDistances(g, in.Competitors, MetricLength)
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return idx, nil
}

// NewIndex assembles an Index from precomputed maps. Intended for callers that
// already hold distance tables.
func NewIndex(categories []model.Category, access []AccessMap, own, competitor AccessMap) *Index {
	idx := &Index{own: own, competitor: competitor}
	for i, c := range categories {
		if i >= len(access) || len(access[i]) == 0 {
			continue
		}
		idx.categories = append(idx.categories, categoryAccess{name: c.Name, weight: c.Weight, access: access[i]})
	}
	if idx.own == nil {
		idx.own = AccessMap{}
	}
	if idx.competitor == nil {
		idx.competitor = AccessMap{}
	}
	return idx
}

// CategoryNames lists indexed categories in scoring order.
func (x *Index) CategoryNames() []string {
	names := make([]string, len(x.categories))
	for i, c := range x.categories {
		names[i] = c.name
	}
	return names
}

// OwnDistance is the network distance in meters to the nearest own locker.
func (x *Index) OwnDistance(node model.NodeID) float64 { return x.own.Get(node) }

// CompetitorDistance is the network distance in meters to the nearest
// competitor locker.
func (x *Index) CompetitorDistance(node model.NodeID) float64 { return x.competitor.Get(node) }
