package ir

// Version constants recorded with every stored resolution.
const (
	// IRVersion is the canonical document version.
	IRVersion = "1"

	// EngineVersion is the resolver version.
	EngineVersion = "0.1.0"
)
