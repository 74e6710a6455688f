package store

import (
	"path/filepath"
	"testing"

	"github.com/wenmine/tiny-engine/internal/ir"
	"github.com/wenmine/tiny-engine/internal/module"
)

// createTestStore creates a new file-backed store with sequential references.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithRefGenerator(module.NewSequentialRefs("t")))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestCompile creates a compile record with minimal required fields.
func createTestCompile(block string, ref ir.Reference, seq int64) ir.CompileRecord {
	return ir.CompileRecord{
		Seq:        seq,
		Block:      block,
		ID:         "id-" + block,
		Reference:  ref,
		Script:     ref + "-script",
		Template:   ref + "-template",
		BlockHash:  "block-" + block,
		SourceHash: "hash-" + block,
	}
}
