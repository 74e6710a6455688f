package ir

// CompileRecord is one entry of the compile log: a block compiled on a
// cache miss. Seq comes from the engine's logical clock.
type CompileRecord struct {
	Seq        int64     `json:"seq"`
	Block      string    `json:"block"`
	ID         string    `json:"id"`
	ScopeID    ScopeID   `json:"scope_id,omitempty"`
	Reference  Reference `json:"reference"`
	Script     Reference `json:"script"`
	Template   Reference `json:"template"`
	BlockHash  string    `json:"block_hash"`  // BlockHash of the resolved definition
	SourceHash string    `json:"source_hash"` // SourceHash of the resolved source
	CSS        string    `json:"css,omitempty"`
}

// LinkRecord is a parent -> child substitution performed by the resolver.
type LinkRecord struct {
	Seq       int64     `json:"seq"`
	Parent    string    `json:"parent"`
	Child     string    `json:"child"`
	Reference Reference `json:"reference"`
}
