package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
)

// OSMElement is a node, way or multipolygon relation returned by the map data
// source. Ways carry the coordinates of their member nodes in order;
// relations carry their assembled area in WGS84. Lat/Lon is the node
// position or the centroid.
type OSMElement struct {
	ID      int64             `json:"id"`
	Type    string            `json:"type"`
	Lat     float64           `json:"lat"`
	Lon     float64           `json:"lon"`
	Tags    map[string]string `json:"tags"`
	Bounds  Bounds            `json:"bounds"`
	NodeIDs []osm.NodeID      `json:"node_ids,omitempty"`
	Coords  []LatLon          `json:"coords,omitempty"`
	Area    orb.MultiPolygon  `json:"-"`
}

// LatLon is a WGS84 coordinate pair.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Closed reports whether a way forms a ring.
func (e OSMElement) Closed() bool {
	n := len(e.NodeIDs)
	return n >= 4 && e.NodeIDs[0] == e.NodeIDs[n-1]
}

// OSMTags converts the element's tag map into sorted osm.Tags.
func (e OSMElement) OSMTags() osm.Tags {
	return TagsFromMap(e.Tags)
}

// TagsFromMap converts a tag map into osm.Tags sorted by key and value.
func TagsFromMap(m map[string]string) osm.Tags {
	tags := osm.Tags{}
	for k, v := range m {
		tags = append(tags, osm.Tag{Key: k, Value: v})
	}
	tags.SortByKeyValue()
	return tags
}

type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// String formats the bounds in Overpass bbox order (south,west,north,east).
func (b Bounds) String() string {
	return fmt.Sprintf("%f,%f,%f,%f", b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)
}

// ParseBBox parses a bbox string in format "lat1,lon1,lat2,lon2".
func ParseBBox(bbox string) (Bounds, error) {
	parts := strings.Split(bbox, ",")
	if len(parts) != 4 {
		return Bounds{}, fmt.Errorf("bbox must have 4 components, got %d", len(parts))
	}

	var vals [4]float64
	names := [4]string{"minLat", "minLon", "maxLat", "maxLon"}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Bounds{}, fmt.Errorf("invalid %s: %w", names[i], err)
		}
		vals[i] = v
	}
	b := Bounds{MinLat: vals[0], MinLon: vals[1], MaxLat: vals[2], MaxLon: vals[3]}

	if b.MinLat < -90 || b.MinLat > 90 || b.MaxLat < -90 || b.MaxLat > 90 {
		return Bounds{}, fmt.Errorf("latitude out of range [-90, 90]")
	}
	if b.MinLon < -180 || b.MinLon > 180 || b.MaxLon < -180 || b.MaxLon > 180 {
		return Bounds{}, fmt.Errorf("longitude out of range [-180, 180]")
	}
	if b.MinLat >= b.MaxLat || b.MinLon >= b.MaxLon {
		return Bounds{}, fmt.Errorf("minLat must be < maxLat and minLon must be < maxLon")
	}
	return b, nil
}
