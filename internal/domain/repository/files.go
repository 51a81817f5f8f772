package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/osm"

	"locker_siting/internal/domain/model"
)

func readFeatureCollection(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return fc, nil
}

// LoadBoundary reads the analysis area. When the file holds several polygons
// the one with the largest area is used.
func LoadBoundary(path string) (orb.Polygon, error) {
	fc, err := readFeatureCollection(path)
	if err != nil {
		return nil, err
	}
	var best orb.Polygon
	bestArea := -1.0
	for _, f := range fc.Features {
		for _, poly := range polygonsOf(f.Geometry) {
			if a := planar.Area(poly); a > bestArea {
				best, bestArea = poly, a
			}
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%s: no polygon found", path)
	}
	return best, nil
}

// LoadExclusion reads forbidden areas and lines. Point features are ignored.
func LoadExclusion(path string) (orb.MultiPolygon, orb.MultiLineString, error) {
	fc, err := readFeatureCollection(path)
	if err != nil {
		return nil, nil, err
	}
	var polys orb.MultiPolygon
	var lines orb.MultiLineString
	for _, f := range fc.Features {
		polys = append(polys, polygonsOf(f.Geometry)...)
		switch g := f.Geometry.(type) {
		case orb.LineString:
			lines = append(lines, g)
		case orb.MultiLineString:
			lines = append(lines, g...)
		}
	}
	return polys, lines, nil
}

// LoadPoints reads representative points: areas contribute their centroid,
// other geometries the center of their bound.
func LoadPoints(path string) ([]orb.Point, error) {
	fc, err := readFeatureCollection(path)
	if err != nil {
		return nil, err
	}
	out := make([]orb.Point, 0, len(fc.Features))
	for _, f := range fc.Features {
		if p, ok := representativePoint(f.Geometry); ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// LoadCategoryDir reads <dir>/<category>.geojson for every category. A
// missing file yields a category without points.
func LoadCategoryDir(dir string, cats []model.CategoryWeight) ([]model.Category, error) {
	out := make([]model.Category, 0, len(cats))
	for _, c := range cats {
		pts, err := LoadPoints(filepath.Join(dir, c.Name+".geojson"))
		if errors.Is(err, fs.ErrNotExist) {
			pts = nil
		} else if err != nil {
			return nil, fmt.Errorf("category %s: %w", c.Name, err)
		}
		out = append(out, model.Category{Name: c.Name, Weight: c.Weight, Points: pts})
	}
	return out, nil
}

// LoadLockers reads existing lockers with their tags. Points stay lon/lat.
func LoadLockers(path string) ([]model.Locker, error) {
	fc, err := readFeatureCollection(path)
	if err != nil {
		return nil, err
	}
	out := make([]model.Locker, 0, len(fc.Features))
	for i, f := range fc.Features {
		p, ok := representativePoint(f.Geometry)
		if !ok {
			continue
		}
		var tags osm.Tags
		for k, v := range f.Properties {
			if s, ok := v.(string); ok && s != "" {
				tags = append(tags, osm.Tag{Key: k, Value: s})
			}
		}
		tags.SortByKeyValue()
		out = append(out, model.Locker{ID: featureID(f, int64(i)), Point: p, Tags: tags})
	}
	return out, nil
}

// LoadNodeLinkGraph reads a node-link street network export.
func LoadNodeLinkGraph(path string) (model.NodeLinkGraph, error) {
	var g model.NodeLinkGraph
	data, err := os.ReadFile(path)
	if err != nil {
		return g, err
	}
	if err := json.Unmarshal(data, &g); err != nil {
		return g, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return g, nil
}

func polygonsOf(g orb.Geometry) []orb.Polygon {
	switch g := g.(type) {
	case orb.Polygon:
		return []orb.Polygon{g}
	case orb.MultiPolygon:
		return g
	case orb.Collection:
		var out []orb.Polygon
		for _, sub := range g {
			out = append(out, polygonsOf(sub)...)
		}
		return out
	}
	return nil
}

func representativePoint(g orb.Geometry) (orb.Point, bool) {
	switch g := g.(type) {
	case nil:
		return orb.Point{}, false
	case orb.Point:
		return g, true
	case orb.Polygon, orb.MultiPolygon:
		c, _ := planar.CentroidArea(g)
		return c, true
	default:
		return g.Bound().Center(), true
	}
}

func featureID(f *geojson.Feature, fallback int64) int64 {
	switch id := f.ID.(type) {
	case float64:
		return int64(id)
	case string:
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			return n
		}
	}
	if v, ok := f.Properties["id"].(float64); ok {
		return int64(v)
	}
	return fallback
}

// GeoJSONWriter writes each run into <Dir>/<run id>/ as
// all_candidates_scored.geojson plus one best_<scenario>.geojson per scenario.
type GeoJSONWriter struct {
	Dir string
}

func NewGeoJSONWriter(dir string) *GeoJSONWriter {
	return &GeoJSONWriter{Dir: dir}
}

// RunDir is where a run's files are written.
func (w *GeoJSONWriter) RunDir(runID string) string {
	return filepath.Join(w.Dir, runID)
}

func (w *GeoJSONWriter) SaveRun(ctx context.Context, run *model.RunResult) error {
	dir := w.RunDir(run.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create results dir: %w", err)
	}

	all := geojson.NewFeatureCollection()
	for _, c := range run.Candidates {
		f := geojson.NewFeature(outputPoint(c))
		f.Properties["index"] = c.Index
		if c.HasNode {
			f.Properties["node"] = int64(c.Node)
		}
		if d := c.OwnDistanceValue(); d != nil {
			f.Properties["dist_to_own"] = math.Round(*d*10) / 10
		}
		for k, sc := range run.Scenarios {
			if k < len(c.Scores) {
				f.Properties["score_"+sc.Key()] = c.Scores[k]
			}
		}
		all.Append(f)
	}
	if err := writeCollection(filepath.Join(dir, "all_candidates_scored.geojson"), all); err != nil {
		return err
	}

	for _, sel := range run.Selections {
		if err := ctx.Err(); err != nil {
			return err
		}
		fc := geojson.NewFeatureCollection()
		for _, site := range sel.Sites {
			f := geojson.NewFeature(outputPoint(site.Candidate))
			f.Properties["rank"] = site.Rank
			f.Properties["score"] = site.Score
			f.Properties["competition_bonus"] = site.Breakdown.CompetitionBonus
			for _, contrib := range site.Breakdown.Contributions {
				f.Properties["pts_"+contrib.Category] = contrib.Points
			}
			f.Properties["summary"] = site.Summary
			fc.Append(f)
		}
		if err := writeCollection(filepath.Join(dir, "best_"+sel.Scenario.Key()+".geojson"), fc); err != nil {
			return err
		}
	}
	return nil
}

func outputPoint(c model.Candidate) orb.Point {
	if c.Location != (orb.Point{}) {
		return c.Location
	}
	return c.Point
}

func writeCollection(path string, fc *geojson.FeatureCollection) error {
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
