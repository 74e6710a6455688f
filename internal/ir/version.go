package ir

// Version constants for the block model and engine.
const (
	// IRVersion is the block model schema version.
	IRVersion = "1"

	// EngineVersion is the block renderer engine version.
	// Manifests may require a minimum engine version (semver).
	EngineVersion = "v0.3.0"
)
