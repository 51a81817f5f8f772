package core

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"locker_siting/internal/domain/model"
)

// ExclusionMask is the union of areas where no locker may be placed. Line
// features (rail corridors) exclude everything within LineBuffer meters.
type ExclusionMask struct {
	polygons   []orb.Polygon
	bounds     []orb.Bound
	lines      []orb.LineString
	lineBounds []orb.Bound
	lineBuffer float64
}

// NewExclusionMask prepares polygons and lines for repeated point queries.
func NewExclusionMask(polygons orb.MultiPolygon, lines orb.MultiLineString, lineBuffer float64) *ExclusionMask {
	m := &ExclusionMask{lineBuffer: math.Max(lineBuffer, 0)}
	for _, p := range polygons {
		if len(p) == 0 || len(p[0]) < 3 {
			continue
		}
		m.polygons = append(m.polygons, p)
		m.bounds = append(m.bounds, p.Bound())
	}
	for _, l := range lines {
		if len(l) < 2 {
			continue
		}
		m.lines = append(m.lines, l)
		m.lineBounds = append(m.lineBounds, l.Bound().Pad(m.lineBuffer))
	}
	return m
}

// Empty reports whether the mask excludes nothing.
func (m *ExclusionMask) Empty() bool {
	return m == nil || (len(m.polygons) == 0 && len(m.lines) == 0)
}

// Intersects reports whether p touches the mask. Polygon edges count as
// touching.
func (m *ExclusionMask) Intersects(p orb.Point) bool {
	if m == nil {
		return false
	}
	for i, poly := range m.polygons {
		if !m.bounds[i].Contains(p) {
			continue
		}
		if planar.PolygonContains(poly, p) {
			return true
		}
	}
	for i, l := range m.lines {
		if !m.lineBounds[i].Contains(p) {
			continue
		}
		if planar.DistanceFrom(l, p) <= m.lineBuffer {
			return true
		}
	}
	return false
}

// GenerateCandidates enumerates grid points at the given spacing over the
// boundary's bounding box, keeping points inside the boundary and outside the
// mask. Iteration is x ascending, then y ascending, starting at the minimum
// corner; the resulting order is the tie-break order used by the selector.
func GenerateCandidates(boundary orb.Polygon, mask *ExclusionMask, spacing float64, g *Graph) []model.Candidate {
	if len(boundary) == 0 || len(boundary[0]) < 3 || spacing <= 0 {
		return nil
	}
	b := boundary.Bound()
	nx := gridSteps(b.Min[0], b.Max[0], spacing)
	ny := gridSteps(b.Min[1], b.Max[1], spacing)

	var out []model.Candidate
	for i := 0; i < nx; i++ {
		x := b.Min[0] + float64(i)*spacing
		for j := 0; j < ny; j++ {
			p := orb.Point{x, b.Min[1] + float64(j)*spacing}
			if !planar.PolygonContains(boundary, p) || mask.Intersects(p) {
				continue
			}
			c := model.Candidate{
				Index:       len(out),
				Point:       p,
				OwnDistance: math.Inf(1),
			}
			c.Node, c.HasNode = g.NearestNode(p)
			out = append(out, c)
		}
	}
	return out
}

// gridSteps counts values min, min+step, ... strictly below max.
func gridSteps(min, max, step float64) int {
	if max <= min {
		return 0
	}
	return int(math.Ceil((max - min) / step))
}
