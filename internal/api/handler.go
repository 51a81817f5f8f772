package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"locker_siting/internal/core"
	"locker_siting/internal/domain/model"
	"locker_siting/internal/domain/repository"
	"locker_siting/internal/logging"
	"locker_siting/internal/observability"
)

// SiteRunner runs the siting pipeline for an OSM area.
type SiteRunner interface {
	RunArea(ctx context.Context, req model.SitingRequest) (*model.RunResult, error)
}

// RunReader loads stored runs.
type RunReader interface {
	GetRun(ctx context.Context, id string) (*model.RunResult, error)
}

type Handler struct {
	runner  SiteRunner
	runs    RunReader
	metrics *observability.SitingCollector
	log     logging.Logger
}

func NewHandler(runner SiteRunner, runs RunReader, metrics *observability.SitingCollector, log logging.Logger) *Handler {
	if log == nil {
		log = logging.Noop()
	}
	return &Handler{runner: runner, runs: runs, metrics: metrics, log: log}
}

// Routes registers every endpoint on a new router.
func (h *Handler) Routes() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/api/sites", h.metrics.Middleware("sites", http.HandlerFunc(h.Sites))).Methods(http.MethodPost)
	r.Handle("/api/runs/{id}", h.metrics.Middleware("runs", http.HandlerFunc(h.GetRun))).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", h.metrics.Handler()).Methods(http.MethodGet)
	return r
}

type SitesRequest struct {
	BBox              string    `json:"bbox"` // minLat,minLon,maxLat,maxLon
	TopN              int       `json:"top_n,omitempty"`
	Horizons          []float64 `json:"horizons,omitempty"`
	IncludeCandidates bool      `json:"include_candidates,omitempty"`
}

type RunResponse struct {
	ID             string              `json:"id"`
	CreatedAt      time.Time           `json:"created_at"`
	GeneratedCount int                 `json:"generated_count"`
	RetainedCount  int                 `json:"retained_count"`
	Scenarios      []ScenarioResponse  `json:"scenarios"`
	Candidates     []CandidateResponse `json:"candidates,omitempty"`
}

type ScenarioResponse struct {
	Key            string         `json:"key"`
	HorizonMinutes float64        `json:"horizon_minutes"`
	Competition    bool           `json:"competition"`
	Sites          []SiteResponse `json:"sites"`
}

type SiteResponse struct {
	Rank      int                  `json:"rank"`
	Score     int                  `json:"score"`
	Latitude  float64              `json:"latitude"`
	Longitude float64              `json:"longitude"`
	DistToOwn *float64             `json:"dist_to_own"`
	Breakdown model.ScoreBreakdown `json:"breakdown"`
	Summary   string               `json:"summary"`
}

type CandidateResponse struct {
	Index     int      `json:"index"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	DistToOwn *float64 `json:"dist_to_own"`
	Scores    []int    `json:"scores"`
}

func (h *Handler) Sites(w http.ResponseWriter, r *http.Request) {
	var req SitesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.BBox == "" {
		http.Error(w, "BBox is required", http.StatusBadRequest)
		return
	}
	bbox, err := model.ParseBBox(req.BBox)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid bbox: %v", err), http.StatusBadRequest)
		return
	}
	if req.TopN < 0 {
		http.Error(w, "top_n must not be negative", http.StatusBadRequest)
		return
	}
	for _, hz := range req.Horizons {
		if hz <= 0 {
			http.Error(w, "horizons must be positive", http.StatusBadRequest)
			return
		}
	}

	run, err := h.runner.RunArea(r.Context(), model.SitingRequest{
		BBox:     bbox,
		TopN:     req.TopN,
		Horizons: req.Horizons,
	})
	switch {
	case errors.Is(err, core.ErrNoGraph), errors.Is(err, core.ErrNoBoundary):
		http.Error(w, fmt.Sprintf("Area cannot be analysed: %v", err), http.StatusUnprocessableEntity)
		return
	case err != nil:
		h.log.Error(r.Context(), "siting run failed", logging.String("bbox", req.BBox), logging.Err(err))
		http.Error(w, fmt.Sprintf("Error running siting: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, NewRunResponse(run, req.IncludeCandidates))
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		http.Error(w, "Run storage is not configured", http.StatusNotImplemented)
		return
	}
	id := mux.Vars(r)["id"]
	run, err := h.runs.GetRun(r.Context(), id)
	switch {
	case errors.Is(err, repository.ErrRunNotFound):
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	case err != nil:
		h.log.Error(r.Context(), "failed to load run", logging.String("run_id", id), logging.Err(err))
		http.Error(w, fmt.Sprintf("Error loading run: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, NewRunResponse(run, r.URL.Query().Get("candidates") == "true"))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func NewRunResponse(run *model.RunResult, withCandidates bool) RunResponse {
	resp := RunResponse{
		ID:             run.ID,
		CreatedAt:      run.CreatedAt,
		GeneratedCount: run.GeneratedCount,
		RetainedCount:  len(run.Candidates),
		Scenarios:      make([]ScenarioResponse, 0, len(run.Selections)),
	}
	for _, sel := range run.Selections {
		sr := ScenarioResponse{
			Key:            sel.Scenario.Key(),
			HorizonMinutes: sel.Scenario.HorizonMinutes,
			Competition:    sel.Scenario.Competition,
			Sites:          make([]SiteResponse, 0, len(sel.Sites)),
		}
		for _, site := range sel.Sites {
			sr.Sites = append(sr.Sites, SiteResponse{
				Rank:      site.Rank,
				Score:     site.Score,
				Latitude:  site.Candidate.Location[1],
				Longitude: site.Candidate.Location[0],
				DistToOwn: site.Candidate.OwnDistanceValue(),
				Breakdown: site.Breakdown,
				Summary:   site.Summary,
			})
		}
		resp.Scenarios = append(resp.Scenarios, sr)
	}
	if withCandidates {
		for _, c := range run.Candidates {
			resp.Candidates = append(resp.Candidates, CandidateResponse{
				Index:     c.Index,
				Latitude:  c.Location[1],
				Longitude: c.Location[0],
				DistToOwn: c.OwnDistanceValue(),
				Scores:    c.Scores,
			})
		}
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
