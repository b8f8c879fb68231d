package store

import (
	"context"
	"fmt"

	"github.com/roach88/qinfer/internal/ir"
)

// WriteResolution inserts a resolution record and reports whether it was
// new. Uses ON CONFLICT DO NOTHING for idempotency: a second record for the
// same query and model (or the same id) is silently ignored. Other
// constraint violations (e.g., NOT NULL) still return errors.
func (s *Store) WriteResolution(ctx context.Context, r ir.Resolution) (bool, error) {
	if r.ID == "" || r.QueryID == "" || r.ModelHash == "" {
		return false, fmt.Errorf("write resolution: id, query id and model hash are required")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO resolutions
		(id, name, query_id, model_hash, query, snapshot, snapshot_hash, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		r.ID,
		r.Name,
		r.QueryID,
		r.ModelHash,
		r.Query,
		r.Snapshot,
		r.SnapshotHash,
		r.EngineVersion,
		r.IRVersion,
	)
	if err != nil {
		return false, fmt.Errorf("write resolution: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write resolution: %w", err)
	}
	return n == 1, nil
}
