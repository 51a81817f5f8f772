package repository

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"locker_siting/internal/domain/model"
)

func overpassServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

var testBBox = model.Bounds{MinLat: 52.2, MinLon: 21.0, MaxLat: 52.3, MaxLon: 21.1}

func TestOverpass_WalkNetwork(t *testing.T) {
	srv := overpassServer(t, `{"elements":[
		{"type":"way","id":10,"nodes":[1,2,3],"tags":{"highway":"footway"}},
		{"type":"node","id":1,"lat":52.20,"lon":21.00},
		{"type":"node","id":2,"lat":52.21,"lon":21.00},
		{"type":"node","id":3,"lat":52.22,"lon":21.00}]}`)
	repo := NewOverpassRepository(srv.URL, 5*time.Second)

	ways, err := repo.GetWalkNetwork(context.Background(), testBBox)
	if err != nil {
		t.Fatalf("GetWalkNetwork: %v", err)
	}
	if len(ways) != 1 {
		t.Fatalf("ways = %d, want 1", len(ways))
	}
	w := ways[0]
	if len(w.NodeIDs) != 3 || w.NodeIDs[2] != 3 {
		t.Errorf("NodeIDs = %v", w.NodeIDs)
	}
	if len(w.Coords) != 3 || w.Coords[1].Lat != 52.21 {
		t.Errorf("Coords = %v", w.Coords)
	}
	if w.Lat < 52.209 || w.Lat > 52.211 {
		t.Errorf("centroid lat = %v, want 52.21", w.Lat)
	}
}

func TestOverpass_ParcelLockersDropsSkeletonNodes(t *testing.T) {
	srv := overpassServer(t, `{"elements":[
		{"type":"node","id":5,"lat":52.25,"lon":21.05,"tags":{"amenity":"parcel_locker","brand":"InPost"}},
		{"type":"node","id":6,"lat":52.26,"lon":21.06}]}`)
	repo := NewOverpassRepository(srv.URL, 5*time.Second)

	lockers, err := repo.GetParcelLockers(context.Background(), testBBox)
	if err != nil {
		t.Fatalf("GetParcelLockers: %v", err)
	}
	if len(lockers) != 1 || lockers[0].ID != 5 || lockers[0].Tags["brand"] != "InPost" {
		t.Errorf("lockers = %+v", lockers)
	}
}

// parkRelation is a multipolygon park whose outer ring is split over two
// untagged ways.
const parkRelation = `{"elements":[
	{"type":"relation","id":900,"members":[
		{"type":"way","ref":101,"role":"outer"},
		{"type":"way","ref":102,"role":"outer"}],
		"tags":{"type":"multipolygon","leisure":"park"}},
	{"type":"way","id":101,"nodes":[1,2,3]},
	{"type":"way","id":102,"nodes":[3,4,1]},
	{"type":"node","id":1,"lat":52.20,"lon":21.00},
	{"type":"node","id":2,"lat":52.20,"lon":21.01},
	{"type":"node","id":3,"lat":52.21,"lon":21.01},
	{"type":"node","id":4,"lat":52.21,"lon":21.00}]}`

func TestOverpass_ExclusionMultipolygonRelation(t *testing.T) {
	srv := overpassServer(t, parkRelation)
	repo := NewOverpassRepository(srv.URL, 5*time.Second)

	elements, err := repo.GetExclusionFeatures(context.Background(), testBBox)
	if err != nil {
		t.Fatalf("GetExclusionFeatures: %v", err)
	}
	if len(elements) != 1 {
		t.Fatalf("elements = %+v, want only the relation", elements)
	}
	park := elements[0]
	if park.Type != "relation" || park.ID != 900 || park.Tags["leisure"] != "park" {
		t.Errorf("element = %+v", park)
	}
	if len(park.Area) != 1 {
		t.Fatalf("area polygons = %d, want 1", len(park.Area))
	}
	if !planar.MultiPolygonContains(park.Area, orb.Point{21.005, 52.205}) {
		t.Error("park interior not covered by the assembled area")
	}
	if math.Abs(park.Lat-52.205) > 1e-6 || math.Abs(park.Lon-21.005) > 1e-6 {
		t.Errorf("centroid = %v,%v, want 52.205,21.005", park.Lat, park.Lon)
	}
}

func TestOverpass_FeaturesIncludeRelations(t *testing.T) {
	srv := overpassServer(t, parkRelation)
	repo := NewOverpassRepository(srv.URL, 5*time.Second)

	elements, err := repo.GetFeatures(context.Background(), testBBox, []string{`["landuse"="residential"]`})
	if err != nil {
		t.Fatalf("GetFeatures: %v", err)
	}
	if len(elements) != 1 || elements[0].ID != 900 {
		t.Errorf("elements = %+v, want the relation", elements)
	}
}

func TestOverpass_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()
	repo := NewOverpassRepository(srv.URL, 5*time.Second)

	if _, err := repo.GetExclusionFeatures(context.Background(), testBBox); err == nil {
		t.Error("want error on non-200 response")
	}
}

func TestOverpass_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)
	repo := NewOverpassRepository(srv.URL, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := repo.GetFeatures(ctx, testBBox, []string{`["shop"]`}); err == nil {
		t.Error("want error when the context expires")
	}
}

func TestOverpass_TimeoutBoundsQuery(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)
	repo := NewOverpassRepository(srv.URL, 50*time.Millisecond)

	start := time.Now()
	if _, err := repo.GetParcelLockers(context.Background(), testBBox); err == nil {
		t.Error("want error when the query outlives the timeout")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("query returned after %v", elapsed)
	}
}

func TestNewOverpassRepository_DefaultTimeout(t *testing.T) {
	repo := NewOverpassRepository("http://localhost", 0)
	if repo.timeout != DefaultOverpassTimeout {
		t.Errorf("timeout = %v, want %v", repo.timeout, DefaultOverpassTimeout)
	}
}

func TestFeatureQuery(t *testing.T) {
	q := featureQuery(testBBox, []string{`["shop"]`, `["amenity"="fuel"]`})
	for _, want := range []string{
		`node["shop"](52.200000,21.000000,52.300000,21.100000);`,
		`way["amenity"="fuel"](52.200000,21.000000,52.300000,21.100000);`,
		`relation["shop"](52.200000,21.000000,52.300000,21.100000);`,
		"out body;",
	} {
		if !strings.Contains(q, want) {
			t.Errorf("query missing %q:\n%s", want, q)
		}
	}

	q = areaQuery(testBBox, exclusionSelectors)
	if strings.Contains(q, "node[") {
		t.Errorf("area query selects nodes:\n%s", q)
	}
	for _, want := range []string{
		`way["railway"](52.200000,21.000000,52.300000,21.100000);`,
		`relation["leisure"~"^(park|pitch)$"](52.200000,21.000000,52.300000,21.100000);`,
	} {
		if !strings.Contains(q, want) {
			t.Errorf("area query missing %q:\n%s", want, q)
		}
	}
}
