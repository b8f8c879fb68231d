package ir

// NOTE: Resolution is a store-layer record, not part of the canonical
// documents it carries. Seq is assigned by the store on insert.

// Resolution is one recorded query resolution.
type Resolution struct {
	Seq           int64  `json:"seq"`            // Logical clock, store-assigned
	ID            string `json:"id"`             // Resolution correlation id
	Name          string `json:"name,omitempty"` // Named query or scenario case, if any
	QueryID       string `json:"query_id"`       // QueryID(Query)
	ModelHash     string `json:"model_hash"`
	Query         string `json:"query"`    // Canonical query JSON
	Snapshot      string `json:"snapshot"` // Canonical resolution snapshot JSON
	SnapshotHash  string `json:"snapshot_hash"`
	EngineVersion string `json:"engine_version"`
	IRVersion     string `json:"ir_version"`
}
