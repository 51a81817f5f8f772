package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/paulmach/orb"

	"locker_siting/internal/domain/model"
)

var ErrRunNotFound = errors.New("run not found")

type runRow struct {
	ID             string `db:"id"`
	CreatedAt      string `db:"created_at"`
	GeneratedCount int    `db:"generated_count"`
	Scenarios      string `db:"scenarios"`
}

type candidateRow struct {
	Idx         int             `db:"idx"`
	X           float64         `db:"x"`
	Y           float64         `db:"y"`
	Lon         float64         `db:"lon"`
	Lat         float64         `db:"lat"`
	Node        sql.NullInt64   `db:"node"`
	OwnDistance sql.NullFloat64 `db:"own_distance"`
	Scores      string          `db:"scores"`
}

type siteRow struct {
	ScenarioPos  int    `db:"scenario_pos"`
	Rank         int    `db:"rank"`
	CandidateIdx int    `db:"candidate_idx"`
	Score        int    `db:"score"`
	Summary      string `db:"summary"`
	Breakdown    string `db:"breakdown"`
}

// runStore holds the SQL shared by the Postgres and SQLite recorders. Queries
// are written with '?' placeholders and rebound for the driver.
type runStore struct {
	db              *sqlx.DB
	insertRun       string
	insertCandidate string
	insertSite      string
}

func newRunStore(db *sqlx.DB, candidateInsert, siteInsert string) runStore {
	return runStore{
		db:              db,
		insertRun:       db.Rebind(`INSERT INTO siting_runs (id, created_at, generated_count, scenarios) VALUES (?, ?, ?, ?)`),
		insertCandidate: db.Rebind(candidateInsert),
		insertSite:      db.Rebind(siteInsert),
	}
}

func (s runStore) saveRun(ctx context.Context, run *model.RunResult, withGeom bool) error {
	scenarios, err := json.Marshal(run.Scenarios)
	if err != nil {
		return fmt.Errorf("failed to marshal scenarios: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.insertRun,
		run.ID, run.CreatedAt.UTC().Format(time.RFC3339Nano), run.GeneratedCount, string(scenarios),
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	candStmt, err := tx.PreparexContext(ctx, s.insertCandidate)
	if err != nil {
		return fmt.Errorf("failed to prepare candidate insert: %w", err)
	}
	defer candStmt.Close()
	for _, c := range run.Candidates {
		row, err := toCandidateRow(c)
		if err != nil {
			return err
		}
		args := []any{run.ID, row.Idx, row.X, row.Y, row.Lon, row.Lat, row.Node, row.OwnDistance, row.Scores}
		if withGeom {
			args = append(args, hasLocation(c), row.Lon, row.Lat)
		}
		if _, err := candStmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert candidate %d: %w", c.Index, err)
		}
	}

	for pos, sel := range run.Selections {
		for _, site := range sel.Sites {
			bd, err := json.Marshal(site.Breakdown)
			if err != nil {
				return fmt.Errorf("failed to marshal breakdown: %w", err)
			}
			args := []any{run.ID, pos, sel.Scenario.Key(), site.Rank, site.Candidate.Index, site.Score, site.Summary, string(bd)}
			if withGeom {
				loc := site.Candidate.Location
				args = append(args, hasLocation(site.Candidate), loc[0], loc[1])
			}
			if _, err := tx.ExecContext(ctx, s.insertSite, args...); err != nil {
				return fmt.Errorf("failed to insert site: %w", err)
			}
		}
	}

	return tx.Commit()
}

func (s runStore) getRun(ctx context.Context, id string) (*model.RunResult, error) {
	var rr runRow
	err := s.db.GetContext(ctx, &rr, s.db.Rebind(
		`SELECT id, created_at, generated_count, scenarios FROM siting_runs WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	run := &model.RunResult{ID: rr.ID, GeneratedCount: rr.GeneratedCount}
	if run.CreatedAt, err = time.Parse(time.RFC3339Nano, rr.CreatedAt); err != nil {
		return nil, fmt.Errorf("invalid created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(rr.Scenarios), &run.Scenarios); err != nil {
		return nil, fmt.Errorf("invalid scenarios: %w", err)
	}

	var cands []candidateRow
	if err := s.db.SelectContext(ctx, &cands, s.db.Rebind(
		`SELECT idx, x, y, lon, lat, node, own_distance, scores FROM siting_candidates WHERE run_id = ? ORDER BY idx`), id); err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	byIndex := make(map[int]model.Candidate, len(cands))
	for _, row := range cands {
		c, err := fromCandidateRow(row)
		if err != nil {
			return nil, err
		}
		run.Candidates = append(run.Candidates, c)
		byIndex[c.Index] = c
	}

	var sites []siteRow
	if err := s.db.SelectContext(ctx, &sites, s.db.Rebind(
		`SELECT scenario_pos, rank, candidate_idx, score, summary, breakdown FROM siting_sites WHERE run_id = ? ORDER BY scenario_pos, rank`), id); err != nil {
		return nil, fmt.Errorf("failed to query sites: %w", err)
	}
	run.Selections = make([]model.ScenarioSelection, len(run.Scenarios))
	for i, sc := range run.Scenarios {
		run.Selections[i] = model.ScenarioSelection{Scenario: sc, Sites: []model.SelectedSite{}}
	}
	for _, row := range sites {
		if row.ScenarioPos < 0 || row.ScenarioPos >= len(run.Selections) {
			return nil, fmt.Errorf("site references unknown scenario %d", row.ScenarioPos)
		}
		site := model.SelectedSite{
			Rank:      row.Rank,
			Candidate: byIndex[row.CandidateIdx],
			Score:     row.Score,
			Summary:   row.Summary,
		}
		if err := json.Unmarshal([]byte(row.Breakdown), &site.Breakdown); err != nil {
			return nil, fmt.Errorf("invalid breakdown: %w", err)
		}
		run.Selections[row.ScenarioPos].Sites = append(run.Selections[row.ScenarioPos].Sites, site)
	}
	return run, nil
}

func toCandidateRow(c model.Candidate) (candidateRow, error) {
	scores, err := json.Marshal(c.Scores)
	if err != nil {
		return candidateRow{}, fmt.Errorf("failed to marshal scores: %w", err)
	}
	row := candidateRow{
		Idx:    c.Index,
		X:      c.Point[0],
		Y:      c.Point[1],
		Lon:    c.Location[0],
		Lat:    c.Location[1],
		Scores: string(scores),
	}
	if c.HasNode {
		row.Node = sql.NullInt64{Int64: int64(c.Node), Valid: true}
	}
	if d := c.OwnDistanceValue(); d != nil {
		row.OwnDistance = sql.NullFloat64{Float64: *d, Valid: true}
	}
	return row, nil
}

func fromCandidateRow(row candidateRow) (model.Candidate, error) {
	c := model.Candidate{
		Index:       row.Idx,
		Point:       orb.Point{row.X, row.Y},
		Location:    orb.Point{row.Lon, row.Lat},
		OwnDistance: math.Inf(1),
	}
	if row.Node.Valid {
		c.Node = model.NodeID(row.Node.Int64)
		c.HasNode = true
	}
	if row.OwnDistance.Valid {
		c.OwnDistance = row.OwnDistance.Float64
	}
	if err := json.Unmarshal([]byte(row.Scores), &c.Scores); err != nil {
		return model.Candidate{}, fmt.Errorf("invalid scores for candidate %d: %w", row.Idx, err)
	}
	return c, nil
}

func hasLocation(c model.Candidate) bool {
	return c.Location != (orb.Point{})
}
