package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"locker_siting/internal/domain/model"
)

// PostGISRepository stores runs in PostgreSQL with point geometries for
// candidates and selected sites.
type PostGISRepository struct {
	DB    *sqlx.DB
	store runStore
}

const postgisSchema = `
CREATE EXTENSION IF NOT EXISTS postgis;
CREATE TABLE IF NOT EXISTS siting_runs (
	id              TEXT PRIMARY KEY,
	created_at      TEXT NOT NULL,
	generated_count INTEGER NOT NULL,
	scenarios       TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS siting_candidates (
	run_id       TEXT NOT NULL REFERENCES siting_runs(id) ON DELETE CASCADE,
	idx          INTEGER NOT NULL,
	x            DOUBLE PRECISION NOT NULL,
	y            DOUBLE PRECISION NOT NULL,
	lon          DOUBLE PRECISION NOT NULL,
	lat          DOUBLE PRECISION NOT NULL,
	node         BIGINT,
	own_distance DOUBLE PRECISION,
	scores       TEXT NOT NULL,
	geom         geometry(Point, 4326),
	PRIMARY KEY (run_id, idx)
);
CREATE TABLE IF NOT EXISTS siting_sites (
	run_id        TEXT NOT NULL REFERENCES siting_runs(id) ON DELETE CASCADE,
	scenario_pos  INTEGER NOT NULL,
	scenario      TEXT NOT NULL,
	rank          INTEGER NOT NULL,
	candidate_idx INTEGER NOT NULL,
	score         INTEGER NOT NULL,
	summary       TEXT NOT NULL,
	breakdown     TEXT NOT NULL,
	geom          geometry(Point, 4326),
	PRIMARY KEY (run_id, scenario_pos, rank)
);
CREATE INDEX IF NOT EXISTS siting_sites_geom_idx ON siting_sites USING GIST (geom);
`

func NewPostgresRepository(connStr string) (*PostGISRepository, error) {
	db, err := sqlx.Connect("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return NewPostGISRepositoryFromDB(db), nil
}

func NewPostGISRepositoryFromDB(db *sqlx.DB) *PostGISRepository {
	return &PostGISRepository{
		DB: db,
		store: newRunStore(db,
			`INSERT INTO siting_candidates (run_id, idx, x, y, lon, lat, node, own_distance, scores, geom)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CASE WHEN ? THEN ST_SetSRID(ST_MakePoint(?, ?), 4326) END)`,
			`INSERT INTO siting_sites (run_id, scenario_pos, scenario, rank, candidate_idx, score, summary, breakdown, geom)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, CASE WHEN ? THEN ST_SetSRID(ST_MakePoint(?, ?), 4326) END)`,
		),
	}
}

func (r *PostGISRepository) Migrate(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, postgisSchema); err != nil {
		return fmt.Errorf("failed to migrate postgis schema: %w", err)
	}
	return nil
}

func (r *PostGISRepository) SaveRun(ctx context.Context, run *model.RunResult) error {
	return r.store.saveRun(ctx, run, true)
}

func (r *PostGISRepository) GetRun(ctx context.Context, id string) (*model.RunResult, error) {
	return r.store.getRun(ctx, id)
}

func (r *PostGISRepository) Close() error { return r.DB.Close() }
