package store

import (
	"fmt"

	"github.com/roach88/qinfer/internal/cqn"
	"github.com/roach88/qinfer/internal/ir"
)

// NewResolution builds a record from a query and the canonical snapshot of
// its resolution. The query is stored in canonical form and identified by
// its content hash.
func NewResolution(id, name, modelHash string, q cqn.Query, snapshot []byte) (ir.Resolution, error) {
	canonical, err := cqn.Marshal(q)
	if err != nil {
		return ir.Resolution{}, fmt.Errorf("marshal query: %w", err)
	}
	return ir.Resolution{
		ID:            id,
		Name:          name,
		QueryID:       ir.QueryID(canonical),
		ModelHash:     modelHash,
		Query:         string(canonical),
		Snapshot:      string(snapshot),
		SnapshotHash:  ir.SnapshotHash(snapshot),
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}, nil
}

// DecodeQuery parses the stored canonical query of a record.
func DecodeQuery(r ir.Resolution) (cqn.Query, error) {
	q, err := cqn.Unmarshal([]byte(r.Query))
	if err != nil {
		return nil, fmt.Errorf("decode query %s: %w", r.QueryID, err)
	}
	return q, nil
}
