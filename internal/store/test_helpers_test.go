package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/qinfer/internal/ir"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestResolution creates a resolution record with minimal required fields.
func createTestResolution(id, queryID, modelHash, snapshot string) ir.Resolution {
	return ir.Resolution{
		ID:            id,
		QueryID:       queryID,
		ModelHash:     modelHash,
		Query:         `{"SELECT":{"from":{"ref":["Books"]}}}`,
		Snapshot:      snapshot,
		SnapshotHash:  ir.SnapshotHash([]byte(snapshot)),
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}
}
