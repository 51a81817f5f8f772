package core

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"locker_siting/internal/domain/model"
)

const earthRadiusM = 6371008.8

// Projector maps WGS84 coordinates onto a local metric plane. It uses
// spherical mercator scaled by cos(reference latitude), which keeps planar
// distances within a fraction of a percent of ground distance over a city.
type Projector struct {
	scale float64
}

// NewProjector builds a projector centered on the bounds' mid latitude.
func NewProjector(b model.Bounds) *Projector {
	lat := (b.MinLat + b.MaxLat) / 2 * math.Pi / 180
	return &Projector{scale: math.Cos(lat)}
}

// ToMetric projects a lon/lat point.
func (p *Projector) ToMetric(pt orb.Point) orb.Point {
	m := project.Point(pt, project.WGS84.ToMercator)
	return orb.Point{m[0] * p.scale, m[1] * p.scale}
}

// ToWGS84 inverts ToMetric.
func (p *Projector) ToWGS84(pt orb.Point) orb.Point {
	m := orb.Point{pt[0] / p.scale, pt[1] / p.scale}
	return project.Point(m, project.Mercator.ToWGS84)
}

// Ring projects every vertex of a lon/lat ring.
func (p *Projector) Ring(r orb.Ring) orb.Ring {
	out := make(orb.Ring, len(r))
	for i, pt := range r {
		out[i] = p.ToMetric(pt)
	}
	return out
}

// Polygon projects a lon/lat polygon.
func (p *Projector) Polygon(poly orb.Polygon) orb.Polygon {
	out := make(orb.Polygon, len(poly))
	for i, r := range poly {
		out[i] = p.Ring(r)
	}
	return out
}

// BoundsPolygon returns the metric rectangle covering b.
func (p *Projector) BoundsPolygon(b model.Bounds) orb.Polygon {
	ring := orb.Ring{
		{b.MinLon, b.MinLat},
		{b.MaxLon, b.MinLat},
		{b.MaxLon, b.MaxLat},
		{b.MinLon, b.MaxLat},
		{b.MinLon, b.MinLat},
	}
	return p.Polygon(orb.Polygon{ring})
}

// haversine returns the great-circle distance in meters.
func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

// Points projects lon/lat points.
func (p *Projector) Points(pts []orb.Point) []orb.Point {
	out := make([]orb.Point, len(pts))
	for i, pt := range pts {
		out[i] = p.ToMetric(pt)
	}
	return out
}

func (p *Projector) MultiPolygon(mp orb.MultiPolygon) orb.MultiPolygon {
	out := make(orb.MultiPolygon, len(mp))
	for i, poly := range mp {
		out[i] = p.Polygon(poly)
	}
	return out
}

func (p *Projector) MultiLineString(ml orb.MultiLineString) orb.MultiLineString {
	out := make(orb.MultiLineString, len(ml))
	for i, ls := range ml {
		line := make(orb.LineString, len(ls))
		for j, pt := range ls {
			line[j] = p.ToMetric(pt)
		}
		out[i] = line
	}
	return out
}

// Lockers projects locker positions given in lon/lat.
func (p *Projector) Lockers(lockers []model.Locker) []model.Locker {
	out := make([]model.Locker, len(lockers))
	for i, l := range lockers {
		l.Point = p.ToMetric(l.Point)
		out[i] = l
	}
	return out
}

// BoundsOf returns the lon/lat bounds of a polygon.
func BoundsOf(poly orb.Polygon) model.Bounds {
	b := poly.Bound()
	return model.Bounds{MinLat: b.Min[1], MinLon: b.Min[0], MaxLat: b.Max[1], MaxLon: b.Max[0]}
}
