package ir

// Version constants for the catalog schema and the runtime.
const (
	// CatalogVersion is the catalog schema version.
	CatalogVersion = "1"

	// EngineVersion is the livestore runtime version.
	EngineVersion = "0.1.0"
)
