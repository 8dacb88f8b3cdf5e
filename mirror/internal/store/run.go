package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/cdnmirror/assetpath"
	"github.com/hazyhaar/cdnmirror/dbopen"
)

// Run is one persisted discovery run.
type Run struct {
	ID             string `json:"id"`
	StartURL       string `json:"start_url"`
	MaxPages       int    `json:"max_pages"`
	IncludeRecords bool   `json:"include_records"`
	Quick          bool   `json:"quick,omitempty"`
	Pages          int    `json:"pages"`
	Failed         int    `json:"failed"`
	Blocked        int    `json:"blocked"`
	Products       int    `json:"products"`
	Categories     int    `json:"categories"`
	AssetCount     int    `json:"asset_count"`
	Error          string `json:"error,omitempty"`
	StartedAt      int64  `json:"started_at"`
	FinishedAt     int64  `json:"finished_at"`
}

// Asset is one discovered path of a run.
type Asset struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
}

// InsertRun stores r and its asset paths in one transaction. AssetCount
// is set from paths.
func (s *Store) InsertRun(ctx context.Context, r *Run, paths []string) error {
	if r.FinishedAt == 0 {
		r.FinishedAt = time.Now().UnixMilli()
	}
	if r.StartedAt == 0 {
		r.StartedAt = r.FinishedAt
	}
	r.AssetCount = len(paths)

	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO discovery_runs (id, start_url, max_pages, include_records, quick,
				pages, failed, blocked, products, categories, asset_count, error,
				started_at, finished_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			r.ID, r.StartURL, r.MaxPages, boolInt(r.IncludeRecords), boolInt(r.Quick),
			r.Pages, r.Failed, r.Blocked, r.Products, r.Categories, r.AssetCount,
			nullStr(r.Error), r.StartedAt, r.FinishedAt,
		)
		if err != nil {
			return fmt.Errorf("store: insert run: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR IGNORE INTO discovered_assets (run_id, path, kind) VALUES (?,?,?)`)
		if err != nil {
			return fmt.Errorf("store: prepare assets: %w", err)
		}
		defer stmt.Close()
		for _, p := range paths {
			kind := assetpath.Classify(p).Kind.String()
			if _, err := stmt.ExecContext(ctx, r.ID, p, kind); err != nil {
				return fmt.Errorf("store: insert asset %s: %w", p, err)
			}
		}
		return nil
	})
}

const runColumns = `id, start_url, max_pages, include_records, quick, pages, failed,
	blocked, products, categories, asset_count, error, started_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	r := &Run{}
	var records, quick int
	var errMsg sql.NullString
	err := sc.Scan(&r.ID, &r.StartURL, &r.MaxPages, &records, &quick, &r.Pages,
		&r.Failed, &r.Blocked, &r.Products, &r.Categories, &r.AssetCount, &errMsg,
		&r.StartedAt, &r.FinishedAt)
	if err != nil {
		return nil, err
	}
	r.IncludeRecords = records == 1
	r.Quick = quick == 1
	r.Error = errMsg.String
	return r, nil
}

// GetRun retrieves a run by ID. It returns nil, nil when there is none.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	r, err := scanRun(s.DB.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM discovery_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+runColumns+` FROM discovery_runs
		ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunAssets returns the assets of a run in path order. kind filters on
// "static" or "media" when non-empty.
func (s *Store) RunAssets(ctx context.Context, runID, kind string) ([]Asset, error) {
	q := `SELECT path, kind FROM discovered_assets WHERE run_id = ?`
	args := []any{runID}
	if kind != "" {
		q += ` AND kind = ?`
		args = append(args, kind)
	}
	q += ` ORDER BY path`

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: run assets: %w", err)
	}
	defer rows.Close()

	var out []Asset
	for rows.Next() {
		var a Asset
		if err := rows.Scan(&a.Path, &a.Kind); err != nil {
			return nil, fmt.Errorf("store: scan asset: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its assets.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM discovery_runs WHERE id = ?`, id)
	return err
}
