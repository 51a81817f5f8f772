package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"locker_siting/internal/domain/model"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// SQLiteRepository keeps runs in a local SQLite file.
type SQLiteRepository struct {
	db    *sqlx.DB
	store runStore
}

func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	if path == ":memory:" {
		dsn = ":memory:?_pragma=foreign_keys(1)"
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if path == ":memory:" {
		// Each connection would get its own in-memory database.
		db.SetMaxOpenConns(1)
	}

	r := &SQLiteRepository{
		db: db,
		store: newRunStore(db,
			`INSERT INTO siting_candidates (run_id, idx, x, y, lon, lat, node, own_distance, scores) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			`INSERT INTO siting_sites (run_id, scenario_pos, scenario, rank, candidate_idx, score, summary, breakdown) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		),
	}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLiteRepository) migrate() error {
	_, err := r.db.Exec(`
	CREATE TABLE IF NOT EXISTS siting_runs (
		id              TEXT PRIMARY KEY,
		created_at      TEXT NOT NULL,
		generated_count INTEGER NOT NULL,
		scenarios       TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS siting_candidates (
		run_id       TEXT NOT NULL REFERENCES siting_runs(id) ON DELETE CASCADE,
		idx          INTEGER NOT NULL,
		x            REAL NOT NULL,
		y            REAL NOT NULL,
		lon          REAL NOT NULL,
		lat          REAL NOT NULL,
		node         INTEGER,
		own_distance REAL,
		scores       TEXT NOT NULL,
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
		PRIMARY KEY (run_id, scenario_pos, rank)
	);
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate sqlite schema: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) SaveRun(ctx context.Context, run *model.RunResult) error {
	return r.store.saveRun(ctx, run, false)
}

func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (*model.RunResult, error) {
	return r.store.getRun(ctx, id)
}

func (r *SQLiteRepository) Close() error { return r.db.Close() }
