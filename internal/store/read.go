package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/qinfer/internal/ir"
)

const resolutionColumns = `seq, id, name, query_id, model_hash, query, snapshot, snapshot_hash, engine_version, ir_version`

// ReadResolutions returns every recorded resolution, ordered by seq ASC,
// id ASC. Returns an empty slice (not nil) when the log is empty.
func (s *Store) ReadResolutions(ctx context.Context) ([]ir.Resolution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+resolutionColumns+`
		FROM resolutions
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query resolutions: %w", err)
	}
	return collectResolutions(rows)
}

// ReadResolutionsForModel returns the resolutions recorded against one
// model hash, in the same order as ReadResolutions.
func (s *Store) ReadResolutionsForModel(ctx context.Context, modelHash string) ([]ir.Resolution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+resolutionColumns+`
		FROM resolutions
		WHERE model_hash = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, modelHash)
	if err != nil {
		return nil, fmt.Errorf("query resolutions for model: %w", err)
	}
	return collectResolutions(rows)
}

// ReadResolution retrieves the record of a query resolved against a model.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadResolution(ctx context.Context, queryID, modelHash string) (ir.Resolution, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+resolutionColumns+`
		FROM resolutions
		WHERE query_id = ? AND model_hash = ?
	`, queryID, modelHash)

	var r ir.Resolution
	if err := scanResolution(row, &r); err != nil {
		return ir.Resolution{}, err
	}
	return r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResolution(row scanner, r *ir.Resolution) error {
	return row.Scan(
		&r.Seq, &r.ID, &r.Name, &r.QueryID, &r.ModelHash,
		&r.Query, &r.Snapshot, &r.SnapshotHash, &r.EngineVersion, &r.IRVersion,
	)
}

func collectResolutions(rows *sql.Rows) ([]ir.Resolution, error) {
	defer rows.Close()

	resolutions := []ir.Resolution{}
	for rows.Next() {
		var r ir.Resolution
		if err := scanResolution(rows, &r); err != nil {
			return nil, fmt.Errorf("scan resolution: %w", err)
		}
		resolutions = append(resolutions, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resolutions: %w", err)
	}
	return resolutions, nil
}
