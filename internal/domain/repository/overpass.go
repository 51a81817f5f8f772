package repository

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmgeojson"
	"github.com/serjvanilla/go-overpass"

	"locker_siting/internal/domain/model"
)

type OverpassRepository struct {
	client  *overpass.Client
	timeout time.Duration
}

// DefaultOverpassTimeout bounds queries when no positive timeout is given.
// The client has no context support, so an abandoned query runs until it.
const DefaultOverpassTimeout = 180 * time.Second

func NewOverpassRepository(endpoint string, timeout time.Duration) *OverpassRepository {
	if timeout <= 0 {
		timeout = DefaultOverpassTimeout
	}
	httpClient := &http.Client{
		Timeout: timeout,
	}
	client := overpass.NewWithSettings(endpoint, 2, httpClient)
	return &OverpassRepository{
		client:  &client,
		timeout: timeout,
	}
}

// GetWalkNetwork returns every way pedestrians may use, with member nodes.
func (r *OverpassRepository) GetWalkNetwork(ctx context.Context, bbox model.Bounds) ([]model.OSMElement, error) {
	query := fmt.Sprintf(`
		[out:json];
		(
			way["highway"]["area"!~"yes"]["highway"!~"motorway|motorway_link|trunk|trunk_link|construction|proposed|raceway|bus_guideway"]["foot"!~"no"]["access"!~"private|no"](%s);
		);
		out body;
		>;
		out skel qt;
	`, bbox)

	result, err := r.executeQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute walk network query: %w", err)
	}

	return waysOnly(convertToOSMElements(result)), nil
}

// GetFeatures returns nodes and ways matching any of the tag selectors.
func (r *OverpassRepository) GetFeatures(ctx context.Context, bbox model.Bounds, selectors []string) ([]model.OSMElement, error) {
	if len(selectors) == 0 {
		return nil, nil
	}
	result, err := r.executeQuery(ctx, featureQuery(bbox, selectors))
	if err != nil {
		return nil, fmt.Errorf("failed to execute feature query: %w", err)
	}

	return taggedOnly(convertToOSMElements(result)), nil
}

func (r *OverpassRepository) GetParcelLockers(ctx context.Context, bbox model.Bounds) ([]model.OSMElement, error) {
	result, err := r.executeQuery(ctx, featureQuery(bbox, []string{`["amenity"="parcel_locker"]`}))
	if err != nil {
		return nil, fmt.Errorf("failed to execute parcel locker query: %w", err)
	}

	return taggedOnly(convertToOSMElements(result)), nil
}

// GetExclusionFeatures returns areas where a locker cannot stand and railway
// lines. Multipolygon relations come back with their assembled area.
func (r *OverpassRepository) GetExclusionFeatures(ctx context.Context, bbox model.Bounds) ([]model.OSMElement, error) {
	result, err := r.executeQuery(ctx, areaQuery(bbox, exclusionSelectors))
	if err != nil {
		return nil, fmt.Errorf("failed to execute exclusion query: %w", err)
	}

	return taggedOnly(dropNodes(convertToOSMElements(result))), nil
}

var exclusionSelectors = []string{
	`["landuse"~"^(industrial|cemetery)$"]`,
	`["natural"~"^(water|wetland)$"]`,
	`["leisure"~"^(park|pitch)$"]`,
	`["railway"]`,
}

func featureQuery(bbox model.Bounds, selectors []string) string {
	var sb strings.Builder
	sb.WriteString("[out:json];\n(\n")
	for _, sel := range selectors {
		fmt.Fprintf(&sb, "\tnode%[1]s(%[2]s);\n\tway%[1]s(%[2]s);\n\trelation%[1]s(%[2]s);\n", sel, bbox)
	}
	sb.WriteString(");\nout body;\n>;\nout skel qt;\n")
	return sb.String()
}

// areaQuery is featureQuery without nodes.
func areaQuery(bbox model.Bounds, selectors []string) string {
	var sb strings.Builder
	sb.WriteString("[out:json];\n(\n")
	for _, sel := range selectors {
		fmt.Fprintf(&sb, "\tway%[1]s(%[2]s);\n\trelation%[1]s(%[2]s);\n", sel, bbox)
	}
	sb.WriteString(");\nout body;\n>;\nout skel qt;\n")
	return sb.String()
}

func (r *OverpassRepository) executeQuery(ctx context.Context, query string) (*overpass.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		result overpass.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := r.client.Query(query)
		done <- outcome{res, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("overpass query aborted: %w", ctx.Err())
	case o := <-done:
		if o.err != nil {
			return nil, fmt.Errorf("overpass query failed: %w", o.err)
		}
		return &o.result, nil
	}
}

func convertToOSMElements(result *overpass.Result) []model.OSMElement {
	var elements []model.OSMElement

	for _, node := range result.Nodes {
		elements = append(elements, model.OSMElement{
			ID:   node.ID,
			Type: string(overpass.ElementTypeNode),
			Lat:  node.Lat,
			Lon:  node.Lon,
			Tags: node.Tags,
		})
	}

	for _, way := range result.Ways {
		var lat, lon float64
		ids := make([]osm.NodeID, 0, len(way.Nodes))
		coords := make([]model.LatLon, 0, len(way.Nodes))
		for _, node := range way.Nodes {
			if node == nil {
				continue
			}
			ids = append(ids, osm.NodeID(node.ID))
			coords = append(coords, model.LatLon{Lat: node.Lat, Lon: node.Lon})
			lat += node.Lat
			lon += node.Lon
		}
		if n := len(coords); n > 0 {
			lat /= float64(n)
			lon /= float64(n)
		}

		var bounds model.Bounds
		if way.Bounds != nil {
			bounds = model.Bounds{
				MinLat: way.Bounds.Min.Lat,
				MinLon: way.Bounds.Min.Lon,
				MaxLat: way.Bounds.Max.Lat,
				MaxLon: way.Bounds.Max.Lon,
			}
		}

		elements = append(elements, model.OSMElement{
			ID:      way.ID,
			Type:    string(overpass.ElementTypeWay),
			Lat:     lat,
			Lon:     lon,
			Tags:    way.Tags,
			Bounds:  bounds,
			NodeIDs: ids,
			Coords:  coords,
		})
	}

	elements = append(elements, relationAreas(result)...)

	// Result maps iterate in random order.
	sort.Slice(elements, func(i, j int) bool {
		if elements[i].Type != elements[j].Type {
			return elements[i].Type < elements[j].Type
		}
		return elements[i].ID < elements[j].ID
	})
	return elements
}

// relationAreas assembles multipolygon relations into areas. Member ways are
// joined into rings by osmgeojson; relations without a closed outer ring are
// dropped.
func relationAreas(result *overpass.Result) []model.OSMElement {
	data := &osm.OSM{}
	added := make(map[int64]bool)
	for _, rel := range result.Relations {
		if t := rel.Tags["type"]; t != "multipolygon" && t != "boundary" {
			continue
		}
		relation := &osm.Relation{
			ID:   osm.RelationID(rel.ID),
			Tags: model.TagsFromMap(rel.Tags),
		}
		for _, m := range rel.Members {
			if m.Type != overpass.ElementTypeWay || m.Way == nil {
				continue
			}
			relation.Members = append(relation.Members, osm.Member{
				Type: osm.TypeWay,
				Ref:  m.Way.ID,
				Role: m.Role,
			})
			if added[m.Way.ID] {
				continue
			}
			added[m.Way.ID] = true
			way := &osm.Way{ID: osm.WayID(m.Way.ID), Tags: model.TagsFromMap(m.Way.Tags)}
			for _, n := range m.Way.Nodes {
				if n == nil {
					continue
				}
				way.Nodes = append(way.Nodes, osm.WayNode{ID: osm.NodeID(n.ID), Lat: n.Lat, Lon: n.Lon})
			}
			data.Ways = append(data.Ways, way)
		}
		data.Relations = append(data.Relations, relation)
	}
	if len(data.Relations) == 0 {
		return nil
	}

	fc, err := osmgeojson.Convert(data, osmgeojson.NoMeta(true), osmgeojson.NoRelationMembership(true))
	if err != nil {
		return nil
	}

	var out []model.OSMElement
	for _, f := range fc.Features {
		if f.Properties["type"] != string(osm.TypeRelation) {
			continue
		}
		var area orb.MultiPolygon
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			area = orb.MultiPolygon{g}
		case orb.MultiPolygon:
			area = g
		default:
			continue
		}
		id, _ := f.Properties["id"].(int)
		rel := result.Relations[int64(id)]
		if rel == nil {
			continue
		}
		center, _ := planar.CentroidArea(area)
		b := area.Bound()
		out = append(out, model.OSMElement{
			ID:   rel.ID,
			Type: string(overpass.ElementTypeRelation),
			Lat:  center[1],
			Lon:  center[0],
			Tags: rel.Tags,
			Bounds: model.Bounds{
				MinLat: b.Min[1],
				MinLon: b.Min[0],
				MaxLat: b.Max[1],
				MaxLon: b.Max[0],
			},
			Area: area,
		})
	}
	return out
}

func dropNodes(elements []model.OSMElement) []model.OSMElement {
	out := elements[:0]
	for _, el := range elements {
		if el.Type != string(overpass.ElementTypeNode) {
			out = append(out, el)
		}
	}
	return out
}

func waysOnly(elements []model.OSMElement) []model.OSMElement {
	out := elements[:0]
	for _, el := range elements {
		if el.Type == string(overpass.ElementTypeWay) {
			out = append(out, el)
		}
	}
	return out
}

// taggedOnly drops the skeleton nodes pulled in by way recursion.
func taggedOnly(elements []model.OSMElement) []model.OSMElement {
	out := elements[:0]
	for _, el := range elements {
		if len(el.Tags) > 0 {
			out = append(out, el)
		}
	}
	return out
}
