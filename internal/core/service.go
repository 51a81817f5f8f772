package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"locker_siting/internal/config"
	"locker_siting/internal/domain/model"
	"locker_siting/internal/logging"
	"locker_siting/internal/observability"
)

var (
	ErrNoGraph    = errors.New("pedestrian graph is empty")
	ErrNoBoundary = errors.New("analysis boundary is empty")
	ErrNoSource   = errors.New("no area source configured")
)

// AreaSource fetches the raw map layers of an area.
type AreaSource interface {
	GetWalkNetwork(ctx context.Context, bbox model.Bounds) ([]model.OSMElement, error)
	GetFeatures(ctx context.Context, bbox model.Bounds, selectors []string) ([]model.OSMElement, error)
	GetParcelLockers(ctx context.Context, bbox model.Bounds) ([]model.OSMElement, error)
	GetExclusionFeatures(ctx context.Context, bbox model.Bounds) ([]model.OSMElement, error)
}

// RunRecorder persists finished runs.
type RunRecorder interface {
	SaveRun(ctx context.Context, run *model.RunResult) error
}

// RunPublisher notifies an external system about finished runs.
type RunPublisher interface {
	Publish(ctx context.Context, run *model.RunResult) error
}

// Params are the tunables of a single run.
type Params struct {
	GridSpacing       float64
	TopN              int
	MinSeparation     float64
	MinOwnDistance    float64
	Horizons          []float64
	CompetitionModes  []bool
	Scoring           ScoringParams
	Categories        []model.CategoryWeight
	OwnNetworkPattern string
	RailCorridorWidth float64
	WalkSpeedMPS      float64
	Workers           int
	RunTimeout        time.Duration
}

func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		GridSpacing:       cfg.GridSpacing,
		TopN:              cfg.TopN,
		MinSeparation:     cfg.MinSeparation,
		MinOwnDistance:    cfg.MinOwnDistance,
		Horizons:          append([]float64(nil), cfg.Horizons...),
		CompetitionModes:  append([]bool(nil), cfg.CompetitionModes...),
		Scoring:           ScoringParams{CompetitionRange: cfg.CompetitionRange, CompetitionBonus: cfg.CompetitionBonus},
		Categories:        cfg.Categories,
		OwnNetworkPattern: cfg.OwnNetworkPattern,
		RailCorridorWidth: cfg.RailCorridorWidth,
		WalkSpeedMPS:      cfg.WalkSpeedMPS(),
		Workers:           cfg.Workers,
		RunTimeout:        cfg.RunTimeout,
	}
}

func (p Params) Scenarios() []model.Scenario {
	return model.CrossScenarios(p.Horizons, p.CompetitionModes)
}

// SitingInput is everything a run needs, already in metric coordinates.
type SitingInput struct {
	Boundary   orb.Polygon
	Exclusion  *ExclusionMask
	Graph      *Graph
	Categories []model.Category
	Lockers    []model.Locker
	// Projector, when set, fills Candidate.Location.
	Projector *Projector
}

type SitingService struct {
	params    Params
	classify  LockerClassifier
	source    AreaSource
	recorders []RunRecorder
	publisher RunPublisher
	metrics   *observability.SitingCollector
	log       logging.Logger
}

type Option func(*SitingService)

func WithAreaSource(src AreaSource) Option { return func(s *SitingService) { s.source = src } }

func WithRecorder(r RunRecorder) Option {
	return func(s *SitingService) {
		if r != nil {
			s.recorders = append(s.recorders, r)
		}
	}
}

func WithPublisher(p RunPublisher) Option { return func(s *SitingService) { s.publisher = p } }

func WithMetrics(m *observability.SitingCollector) Option {
	return func(s *SitingService) { s.metrics = m }
}

func WithLogger(l logging.Logger) Option {
	return func(s *SitingService) {
		if l != nil {
			s.log = l
		}
	}
}

func NewSitingService(params Params, opts ...Option) (*SitingService, error) {
	classify, err := NewPatternClassifier(params.OwnNetworkPattern)
	if err != nil {
		return nil, err
	}
	s := &SitingService{
		params:   params,
		classify: classify,
		log:      logging.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SitingService) Params() Params { return s.params }

// Run executes the pipeline on prepared inputs with the service parameters.
func (s *SitingService) Run(ctx context.Context, in SitingInput) (*model.RunResult, error) {
	return s.run(ctx, in, s.params)
}

// RunArea fetches an area from the configured source and runs it. Non-zero
// request fields override the service parameters.
func (s *SitingService) RunArea(ctx context.Context, req model.SitingRequest) (*model.RunResult, error) {
	params := s.params
	if req.TopN > 0 {
		params.TopN = req.TopN
	}
	if len(req.Horizons) > 0 {
		params.Horizons = req.Horizons
	}
	in, err := s.LoadArea(ctx, req.BBox)
	if err != nil {
		s.metrics.RunFinished(err)
		return nil, fmt.Errorf("failed to load area: %w", err)
	}
	return s.run(ctx, in, params)
}

// LoadArea downloads the walk network, demand generators, lockers and
// exclusion features of bbox and projects them.
func (s *SitingService) LoadArea(ctx context.Context, bbox model.Bounds) (SitingInput, error) {
	if s.source == nil {
		return SitingInput{}, ErrNoSource
	}
	ctx, span := observability.StartSpan(ctx, "siting.load_area", attribute.String("bbox", bbox.String()))
	defer span.End()
	start := time.Now()

	proj := NewProjector(bbox)
	var (
		ways      []model.OSMElement
		lockers   []model.OSMElement
		exclusion []model.OSMElement
		features  = make([][]model.OSMElement, len(s.params.Categories))
	)

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(2)
	eg.Go(func() error {
		var err error
		ways, err = s.source.GetWalkNetwork(gctx, bbox)
		if err != nil {
			return fmt.Errorf("walk network: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		var err error
		lockers, err = s.source.GetParcelLockers(gctx, bbox)
		if err != nil {
			return fmt.Errorf("parcel lockers: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		var err error
		exclusion, err = s.source.GetExclusionFeatures(gctx, bbox)
		if err != nil {
			return fmt.Errorf("exclusion features: %w", err)
		}
		return nil
	})
	for i, cat := range s.params.Categories {
		i, cat := i, cat
		eg.Go(func() error {
			els, err := s.source.GetFeatures(gctx, bbox, cat.Selectors)
			if err != nil {
				return fmt.Errorf("category %s: %w", cat.Name, err)
			}
			features[i] = els
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return SitingInput{}, err
	}

	in := SitingInput{
		Boundary:  proj.BoundsPolygon(bbox),
		Exclusion: ExclusionFromElements(exclusion, proj, s.params.RailCorridorWidth),
		Graph:     BuildWalkGraph(ways, proj, s.params.WalkSpeedMPS),
		Lockers:   LockersFromElements(lockers, proj),
		Projector: proj,
	}
	for i, cat := range s.params.Categories {
		in.Categories = append(in.Categories, model.Category{
			Name:   cat.Name,
			Weight: cat.Weight,
			Points: ElementPoints(features[i], proj),
		})
	}

	s.metrics.ObserveStage("load_area", time.Since(start))
	s.log.Info(ctx, "area loaded",
		logging.String("bbox", bbox.String()),
		logging.Int("nodes", in.Graph.NodeCount()),
		logging.Int("edges", in.Graph.EdgeCount()),
		logging.Int("lockers", len(in.Lockers)),
	)
	return in, nil
}

func (s *SitingService) run(ctx context.Context, in SitingInput, params Params) (result *model.RunResult, err error) {
	defer func() { s.metrics.RunFinished(err) }()

	if in.Graph == nil || in.Graph.NodeCount() == 0 {
		return nil, ErrNoGraph
	}
	if len(in.Boundary) == 0 || len(in.Boundary[0]) < 4 {
		return nil, ErrNoBoundary
	}
	if params.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, params.RunTimeout)
		defer cancel()
	}

	ctx, span := observability.StartSpan(ctx, "siting.run")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	runID := uuid.NewString()
	log := s.log.With(logging.String("run_id", runID))
	scenarios := params.Scenarios()

	own, competitors, other := PartitionLockers(in.Lockers, s.classify)
	log.Info(ctx, "lockers classified",
		logging.Int("own", len(own)),
		logging.Int("competitor", len(competitors)),
		logging.Int("uncategorized", len(other)),
	)

	start := time.Now()
	index, err := BuildIndex(ctx, in.Graph, IndexInput{
		Categories:  in.Categories,
		Own:         in.Graph.NearestNodes(lockerPoints(own)),
		Competitors: in.Graph.NearestNodes(lockerPoints(competitors)),
	}, params.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to build accessibility index: %w", err)
	}
	s.metrics.ObserveStage("index", time.Since(start))

	start = time.Now()
	generated := GenerateCandidates(in.Boundary, in.Exclusion, params.GridSpacing, in.Graph)
	candidates := FilterCannibalized(generated, index, params.MinOwnDistance)
	if in.Projector != nil {
		for i := range candidates {
			candidates[i].Location = in.Projector.ToWGS84(candidates[i].Point)
		}
	}
	s.metrics.ObserveStage("candidates", time.Since(start))
	s.metrics.SetCandidates("generated", len(generated))
	s.metrics.SetCandidates("retained", len(candidates))
	log.Info(ctx, "candidates generated",
		logging.Int("generated", len(generated)),
		logging.Int("retained", len(candidates)),
	)

	start = time.Now()
	scorer := NewScorer(index, params.Scoring)
	if err := ScoreCandidates(ctx, scorer, candidates, scenarios, params.Workers); err != nil {
		return nil, fmt.Errorf("failed to score candidates: %w", err)
	}
	s.metrics.ObserveStage("scoring", time.Since(start))

	start = time.Now()
	result = &model.RunResult{
		ID:             runID,
		CreatedAt:      time.Now().UTC(),
		Scenarios:      scenarios,
		GeneratedCount: len(generated),
		Candidates:     candidates,
	}
	for k, sc := range scenarios {
		picked := SelectTop(candidates, k, params.TopN, params.MinSeparation)
		sel := model.ScenarioSelection{Scenario: sc, Sites: make([]model.SelectedSite, 0, len(picked))}
		for rank, c := range picked {
			bd := scorer.Breakdown(c, sc)
			sel.Sites = append(sel.Sites, model.SelectedSite{
				Rank:      rank + 1,
				Candidate: c,
				Score:     c.Scores[k],
				Breakdown: bd,
				Summary:   FormatBreakdown(bd, params.Scoring.CompetitionBonus),
			})
		}
		result.Selections = append(result.Selections, sel)
		s.metrics.AddSites(sc.Key(), len(sel.Sites))
	}
	s.metrics.ObserveStage("selection", time.Since(start))
	span.SetAttributes(
		attribute.String("run_id", runID),
		attribute.Int("candidates", len(candidates)),
		attribute.Int("scenarios", len(scenarios)),
	)

	for _, r := range s.recorders {
		if err := r.SaveRun(ctx, result); err != nil {
			return nil, fmt.Errorf("failed to save run: %w", err)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, result); err != nil {
			log.Warn(ctx, "failed to publish run", logging.Err(err))
		}
	}

	log.Info(ctx, "run finished", logging.Int("scenarios", len(scenarios)))
	return result, nil
}

func lockerPoints(lockers []model.Locker) []orb.Point {
	out := make([]orb.Point, len(lockers))
	for i, l := range lockers {
		out[i] = l.Point
	}
	return out
}
