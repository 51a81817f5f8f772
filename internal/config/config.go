package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"locker_siting/internal/domain/model"
)

// Config holds every tunable of a siting run plus the service wiring.
type Config struct {
	WalkSpeedKMH     float64
	GridSpacing      float64 // meters
	TopN             int
	MinSeparation    float64 // meters between selected sites
	MinOwnDistance   float64 // meters to the nearest own locker
	Categories       []model.CategoryWeight
	Horizons         []float64 // minutes
	CompetitionModes []bool
	CompetitionRange float64 // meters
	CompetitionBonus int

	// OwnNetworkPattern matches operator/brand/name of own lockers.
	OwnNetworkPattern string
	RailCorridorWidth float64 // meters around railway lines treated as excluded

	Workers    int
	RunTimeout time.Duration // 0 = unlimited

	OverpassURL     string
	OverpassTimeout time.Duration
	PostgresURL     string
	SQLitePath      string
	WebhookURL      string
	HTTPAddr        string
	ResultsDir      string

	TracingEnabled  bool
	TracingExporter string // stdout | otlp
	OTLPEndpoint    string
}

// DefaultCategories mirrors the demand generators of the reference analysis.
func DefaultCategories() []model.CategoryWeight {
	return []model.CategoryWeight{
		{Name: "shops", Weight: 3, Selectors: []string{`["shop"]`}},
		{Name: "schools", Weight: 2, Selectors: []string{`["amenity"="school"]`}},
		{Name: "kindergartens", Weight: 2, Selectors: []string{`["amenity"="kindergarten"]`}},
		{Name: "offices", Weight: 4, Selectors: []string{`["office"]`}},
		{Name: "residential", Weight: 5, Selectors: []string{
			`["building"~"^(apartments|residential|house)$"]`,
			`["landuse"="residential"]`,
		}},
		{Name: "stops", Weight: 3, Selectors: []string{
			`["highway"="bus_stop"]`,
			`["public_transport"="platform"]`,
			`["railway"~"^(tram_stop|station)$"]`,
		}},
		{Name: "fuel", Weight: 1, Selectors: []string{`["amenity"="fuel"]`}},
	}
}

// Default returns a Config with the reference parameters.
func Default() *Config {
	return &Config{
		WalkSpeedKMH:      4.8,
		GridSpacing:       50,
		TopN:              3,
		MinSeparation:     300,
		MinOwnDistance:    300,
		Categories:        DefaultCategories(),
		Horizons:          []float64{3, 8},
		CompetitionModes:  []bool{false, true},
		CompetitionRange:  250,
		CompetitionBonus:  5,
		OwnNetworkPattern: "InPost|Paczkomat",
		Workers:           runtime.NumCPU(),
		OverpassURL:       "https://overpass-api.de/api/interpreter",
		OverpassTimeout:   180 * time.Second,
		HTTPAddr:          ":8080",
		ResultsDir:        "results",
		TracingExporter:   "stdout",
	}
}

// FromEnv loads an optional .env file and applies environment overrides on
// top of Default.
func FromEnv() (*Config, error) {
	_ = godotenv.Load()
	return Apply(Default(), os.Getenv)
}

// Apply overrides cfg with values found through getenv.
func Apply(cfg *Config, getenv func(string) string) (*Config, error) {
	var errs []error
	setFloat := func(key string, dst *float64) {
		if v := getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	setInt := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setString := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	setFloat("WALK_SPEED_KMH", &cfg.WalkSpeedKMH)
	setFloat("GRID_SIZE", &cfg.GridSpacing)
	setInt("TOP_N", &cfg.TopN)
	setFloat("MIN_DIST_BETWEEN", &cfg.MinSeparation)
	setFloat("MIN_DIST_OWN", &cfg.MinOwnDistance)
	setFloat("COMPETITION_RANGE", &cfg.CompetitionRange)
	setInt("COMPETITION_BONUS", &cfg.CompetitionBonus)
	setString("OWN_NETWORK_PATTERN", &cfg.OwnNetworkPattern)
	setFloat("RAIL_CORRIDOR_WIDTH", &cfg.RailCorridorWidth)
	setInt("WORKERS", &cfg.Workers)
	setDuration("RUN_TIMEOUT", &cfg.RunTimeout)
	setString("OVERPASS_URL", &cfg.OverpassURL)
	setDuration("OVERPASS_TIMEOUT", &cfg.OverpassTimeout)
	setString("POSTGRES_URL", &cfg.PostgresURL)
	setString("SQLITE_PATH", &cfg.SQLitePath)
	setString("WEBHOOK_URL", &cfg.WebhookURL)
	setString("HTTP_ADDR", &cfg.HTTPAddr)
	setString("RESULTS_DIR", &cfg.ResultsDir)
	setString("TRACING_EXPORTER", &cfg.TracingExporter)
	setString("OTLP_ENDPOINT", &cfg.OTLPEndpoint)
	if v := getenv("TRACING_ENABLED"); v != "" {
		cfg.TracingEnabled = strings.EqualFold(v, "true")
	}

	if v := getenv("HORIZONS"); v != "" {
		horizons, err := ParseHorizons(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("HORIZONS: %w", err))
		} else {
			cfg.Horizons = horizons
		}
	}
	if v := getenv("WEIGHTS"); v != "" {
		cats, err := ApplyWeights(cfg.Categories, v)
		if err != nil {
			errs = append(errs, fmt.Errorf("WEIGHTS: %w", err))
		} else {
			cfg.Categories = cats
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// ParseHorizons parses a comma separated list of minutes, e.g. "3,8".
func ParseHorizons(s string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid horizon %q: %w", part, err)
		}
		out = append(out, f)
	}
	return out, nil
}

// ApplyWeights overrides category weights from "name=weight" pairs. Unknown
// names are appended as categories without Overpass selectors.
func ApplyWeights(cats []model.CategoryWeight, pairs string) ([]model.CategoryWeight, error) {
	out := make([]model.CategoryWeight, len(cats))
	copy(out, cats)
	for _, pair := range strings.Split(pairs, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("expected name=weight, got %q", pair)
		}
		w, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("weight for %q: %w", name, err)
		}
		name = strings.TrimSpace(name)
		found := false
		for i := range out {
			if out[i].Name == name {
				out[i].Weight = w
				found = true
				break
			}
		}
		if !found {
			out = append(out, model.CategoryWeight{Name: name, Weight: w})
		}
	}
	return out, nil
}

// Validate checks the invariants the pipeline relies on.
func (c *Config) Validate() error {
	if c.WalkSpeedKMH <= 0 {
		return fmt.Errorf("walk speed must be positive, got %v", c.WalkSpeedKMH)
	}
	if c.GridSpacing <= 0 {
		return fmt.Errorf("grid spacing must be positive, got %v", c.GridSpacing)
	}
	if c.TopN < 0 {
		return fmt.Errorf("top_n must not be negative, got %d", c.TopN)
	}
	if c.MinSeparation < 0 || c.MinOwnDistance < 0 || c.CompetitionRange < 0 {
		return fmt.Errorf("distances must not be negative")
	}
	seen := make(map[string]bool, len(c.Categories))
	for _, cat := range c.Categories {
		if cat.Weight <= 0 {
			return fmt.Errorf("category %q: weight must be positive, got %d", cat.Name, cat.Weight)
		}
		if seen[cat.Name] {
			return fmt.Errorf("category %q listed twice", cat.Name)
		}
		seen[cat.Name] = true
	}
	if len(c.Horizons) == 0 {
		return fmt.Errorf("at least one time horizon is required")
	}
	for _, h := range c.Horizons {
		if h <= 0 {
			return fmt.Errorf("time horizon must be positive, got %v", h)
		}
	}
	if len(c.CompetitionModes) == 0 {
		return fmt.Errorf("at least one competition mode is required")
	}
	if c.OverpassTimeout <= 0 {
		return fmt.Errorf("overpass timeout must be positive, got %v", c.OverpassTimeout)
	}
	return nil
}

// Scenarios returns the competition-mode × horizon cross product, basic mode
// first.
func (c *Config) Scenarios() []model.Scenario {
	return model.CrossScenarios(c.Horizons, c.CompetitionModes)
}

// WalkSpeedMPS converts the walking speed to meters per second.
func (c *Config) WalkSpeedMPS() float64 {
	return c.WalkSpeedKMH * 1000 / 3600
}
