package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SitingCollector bundles Prometheus metrics for the siting pipeline and its
// HTTP surface.
type SitingCollector struct {
	gatherer prometheus.Gatherer

	StageDurations *prometheus.HistogramVec
	Candidates     *prometheus.GaugeVec
	SitesSelected  *prometheus.CounterVec
	Runs           *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
}

// NewSitingCollector registers the metrics against reg, defaulting to the
// global registry when nil.
func NewSitingCollector(reg prometheus.Registerer) (*SitingCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	stages, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "siting_stage_duration_seconds",
		Help:    "Duration of siting pipeline stages in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	}, []string{"stage"}), "siting_stage_duration_seconds")
	if err != nil {
		return nil, err
	}
	candidates, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "siting_candidates",
		Help: "Candidates in the last run, by phase (generated, retained).",
	}, []string{"phase"}), "siting_candidates")
	if err != nil {
		return nil, err
	}
	sites, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "siting_sites_selected_total",
		Help: "Selected sites, by scenario.",
	}, []string{"scenario"}), "siting_sites_selected_total")
	if err != nil {
		return nil, err
	}
	runs, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "siting_runs_total",
		Help: "Completed siting runs, by status.",
	}, []string{"status"}), "siting_runs_total")
	if err != nil {
		return nil, err
	}
	requests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "siting_http_requests_total",
		Help: "Handled API requests, by route and status code.",
	}, []string{"route", "code"}), "siting_http_requests_total")
	if err != nil {
		return nil, err
	}

	return &SitingCollector{
		gatherer:       gatherer,
		StageDurations: stages,
		Candidates:     candidates,
		SitesSelected:  sites,
		Runs:           runs,
		HTTPRequests:   requests,
	}, nil
}

// ObserveStage records how long a stage took. Safe on a nil collector.
func (c *SitingCollector) ObserveStage(stage string, d time.Duration) {
	if c == nil {
		return
	}
	c.StageDurations.WithLabelValues(stage).Observe(d.Seconds())
}

// SetCandidates records the candidate count for a phase.
func (c *SitingCollector) SetCandidates(phase string, n int) {
	if c == nil {
		return
	}
	c.Candidates.WithLabelValues(phase).Set(float64(n))
}

// AddSites counts selected sites for a scenario.
func (c *SitingCollector) AddSites(scenario string, n int) {
	if c == nil {
		return
	}
	c.SitesSelected.WithLabelValues(scenario).Add(float64(n))
}

// RunFinished counts a run outcome.
func (c *SitingCollector) RunFinished(err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.Runs.WithLabelValues(status).Inc()
}

// Middleware counts requests per route name.
func (c *SitingCollector) Middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if c != nil {
			c.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		}
	})
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SitingCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// register adds a collector, returning the existing one when an identical
// collector was registered before.
func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return c, nil
}
