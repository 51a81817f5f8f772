package publisher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"locker_siting/internal/domain/model"
)

func testRun() *model.RunResult {
	c := model.Candidate{Index: 3, Location: orb.Point{21.0, 52.2}}
	return &model.RunResult{
		ID:             "run-9",
		CreatedAt:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		GeneratedCount: 40,
		Candidates:     []model.Candidate{c, {Index: 4}},
		Selections: []model.ScenarioSelection{{
			Scenario: model.Scenario{HorizonMinutes: 8, Competition: true},
			Sites:    []model.SelectedSite{{Rank: 1, Candidate: c, Score: 17}},
		}},
	}
}

func TestPublish(t *testing.T) {
	var got RunNotification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("request = %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	if err := NewHTTPPublisher(srv.URL).Publish(context.Background(), testRun()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got.RunID != "run-9" || got.GeneratedCount != 40 || got.RetainedCount != 2 {
		t.Errorf("notification = %+v", got)
	}
	if len(got.Scenarios) != 1 || got.Scenarios[0].Key != "competition_8min" {
		t.Fatalf("scenarios = %+v", got.Scenarios)
	}
	site := got.Scenarios[0].Sites[0]
	if site.Score != 17 || site.Lat != 52.2 || site.Lon != 21.0 {
		t.Errorf("site = %+v", site)
	}
}

func TestPublish_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewHTTPPublisher(srv.URL).Publish(context.Background(), testRun()); err == nil {
		t.Error("want error on 502")
	}
}

func TestPublish_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if err := NewHTTPPublisher(url).Publish(context.Background(), testRun()); err == nil {
		t.Error("want error for a closed endpoint")
	}
}
