package store

import (
	"context"
	"fmt"

	"github.com/roach88/qinfer/internal/ir"
)

// ReplayFunc re-resolves a recorded query and returns the canonical
// snapshot of the new result.
type ReplayFunc func(ctx context.Context, r ir.Resolution) ([]byte, error)

// ReplayReport summarizes a replay run.
type ReplayReport struct {
	Total      int              `json:"total"`
	Matched    int              `json:"matched"`
	Skipped    int              `json:"skipped"` // recorded against another model
	Mismatches []ReplayMismatch `json:"mismatches"`
}

// OK reports whether every replayed resolution matched its record.
func (r ReplayReport) OK() bool {
	return len(r.Mismatches) == 0
}

// ReplayMismatch is a recorded resolution whose replay differed.
type ReplayMismatch struct {
	Resolution ir.Resolution `json:"resolution"`
	Snapshot   string        `json:"snapshot,omitempty"` // new canonical snapshot
	Error      string        `json:"error,omitempty"`    // set when replay failed
}

// Replay re-resolves every record made against modelHash, in log order, and
// compares snapshots byte for byte. Records of other models are counted as
// skipped. Replay stops early only when ctx is canceled.
func (s *Store) Replay(ctx context.Context, modelHash string, fn ReplayFunc) (ReplayReport, error) {
	all, err := s.ReadResolutions(ctx)
	if err != nil {
		return ReplayReport{}, fmt.Errorf("replay: %w", err)
	}

	report := ReplayReport{Mismatches: []ReplayMismatch{}}
	for _, r := range all {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Total++
		if r.ModelHash != modelHash {
			report.Skipped++
			continue
		}

		snapshot, err := fn(ctx, r)
		switch {
		case err != nil:
			report.Mismatches = append(report.Mismatches, ReplayMismatch{Resolution: r, Error: err.Error()})
		case string(snapshot) != r.Snapshot:
			report.Mismatches = append(report.Mismatches, ReplayMismatch{Resolution: r, Snapshot: string(snapshot)})
		default:
			report.Matched++
		}
	}
	return report, nil
}
