package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"locker_siting/internal/api"
	"locker_siting/internal/config"
	"locker_siting/internal/core"
	"locker_siting/internal/domain/model"
	"locker_siting/internal/domain/repository"
	"locker_siting/internal/infrastructure/publisher"
	"locker_siting/internal/logging"
	"locker_siting/internal/observability"
)

type flags struct {
	mode      string
	bbox      string
	graph     string
	boundary  string
	exclusion string
	pois      string
	lockers   string
}

func main() {
	var f flags
	flag.StringVar(&f.mode, "mode", "run", "run | serve")
	flag.StringVar(&f.bbox, "bbox", "", "minLat,minLon,maxLat,maxLon: fetch the area from Overpass")
	flag.StringVar(&f.graph, "graph", "", "street network in node-link JSON")
	flag.StringVar(&f.boundary, "boundary", "", "GeoJSON analysis boundary")
	flag.StringVar(&f.exclusion, "exclusion", "", "GeoJSON forbidden areas and lines")
	flag.StringVar(&f.pois, "pois", "", "directory of <category>.geojson demand generators")
	flag.StringVar(&f.lockers, "lockers", "", "GeoJSON existing parcel lockers")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, f, log); err != nil {
		log.Error(ctx, "fatal", logging.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, f flags, log logging.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:  cfg.TracingEnabled,
		Exporter: cfg.TracingExporter,
		Endpoint: cfg.OTLPEndpoint,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

	metrics, err := observability.NewSitingCollector(nil)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	opts := []core.Option{
		core.WithLogger(log),
		core.WithMetrics(metrics),
		core.WithAreaSource(repository.NewOverpassRepository(cfg.OverpassURL, cfg.OverpassTimeout)),
		core.WithRecorder(repository.NewGeoJSONWriter(cfg.ResultsDir)),
	}

	var runs api.RunReader
	if cfg.SQLitePath != "" {
		store, err := repository.NewSQLiteRepository(cfg.SQLitePath)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, core.WithRecorder(store))
		runs = store
	}
	if cfg.PostgresURL != "" {
		store, err := repository.NewPostgresRepository(cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		opts = append(opts, core.WithRecorder(store))
		runs = store
	}
	if cfg.WebhookURL != "" {
		opts = append(opts, core.WithPublisher(publisher.NewHTTPPublisher(cfg.WebhookURL)))
	}

	service, err := core.NewSitingService(core.ParamsFromConfig(cfg), opts...)
	if err != nil {
		return err
	}

	switch f.mode {
	case "serve":
		return serve(ctx, cfg, api.NewHandler(service, runs, metrics, log), log)
	case "run":
		result, err := runOnce(ctx, f, cfg, service)
		if err != nil {
			return err
		}
		printReport(result, cfg)
		fmt.Printf("\nresults written to %s\n", repository.NewGeoJSONWriter(cfg.ResultsDir).RunDir(result.ID))
		return nil
	default:
		return fmt.Errorf("unknown mode %q", f.mode)
	}
}

func runOnce(ctx context.Context, f flags, cfg *config.Config, service *core.SitingService) (*model.RunResult, error) {
	if f.bbox != "" {
		bbox, err := model.ParseBBox(f.bbox)
		if err != nil {
			return nil, err
		}
		return service.RunArea(ctx, model.SitingRequest{BBox: bbox})
	}
	if f.graph == "" || f.boundary == "" {
		return nil, errors.New("either -bbox or both -graph and -boundary are required")
	}

	boundary, err := repository.LoadBoundary(f.boundary)
	if err != nil {
		return nil, fmt.Errorf("failed to load boundary: %w", err)
	}
	proj := core.NewProjector(core.BoundsOf(boundary))

	nl, err := repository.LoadNodeLinkGraph(f.graph)
	if err != nil {
		return nil, fmt.Errorf("failed to load graph: %w", err)
	}

	in := core.SitingInput{
		Boundary:  proj.Polygon(boundary),
		Graph:     core.GraphFromNodeLink(nl, proj, cfg.WalkSpeedMPS()),
		Projector: proj,
	}

	if f.exclusion != "" {
		polys, lines, err := repository.LoadExclusion(f.exclusion)
		if err != nil {
			return nil, fmt.Errorf("failed to load exclusion: %w", err)
		}
		in.Exclusion = core.NewExclusionMask(proj.MultiPolygon(polys), proj.MultiLineString(lines), cfg.RailCorridorWidth)
	}

	if f.pois != "" {
		cats, err := repository.LoadCategoryDir(f.pois, cfg.Categories)
		if err != nil {
			return nil, fmt.Errorf("failed to load demand generators: %w", err)
		}
		for i := range cats {
			cats[i].Points = proj.Points(cats[i].Points)
		}
		in.Categories = cats
	}

	if f.lockers != "" {
		lockers, err := repository.LoadLockers(f.lockers)
		if err != nil {
			return nil, fmt.Errorf("failed to load lockers: %w", err)
		}
		in.Lockers = proj.Lockers(lockers)
	}

	return service.Run(ctx, in)
}

func serve(ctx context.Context, cfg *config.Config, handler *api.Handler, log logging.Logger) error {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting server", logging.String("addr", cfg.HTTPAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info(shutdownCtx, "shutting down server")
		return srv.Shutdown(shutdownCtx)
	}
}

func printReport(result *model.RunResult, cfg *config.Config) {
	fmt.Printf("run %s: %d candidates generated, %d after cannibalization filter (>= %.0f m from own lockers)\n",
		result.ID, result.GeneratedCount, len(result.Candidates), cfg.MinOwnDistance)
	for _, sel := range result.Selections {
		fmt.Printf("\n=== %s ===\n", sel.Scenario.Key())
		if len(sel.Sites) == 0 {
			fmt.Println("no sites selected")
			continue
		}
		for _, site := range sel.Sites {
			c := site.Candidate
			own := "n/a"
			if d := c.OwnDistanceValue(); d != nil {
				own = fmt.Sprintf("%.0f m", *d)
			}
			fmt.Printf("\n#%d  score %d  at %.6f, %.6f  (own network %s)\n",
				site.Rank, site.Score, c.Location[1], c.Location[0], own)
			fmt.Println(site.Summary)
		}
	}
}
