package module

import (
	"context"
	"sync"

	"github.com/wenmine/tiny-engine/internal/ir"
)

// Table is an in-memory Host.
//
// It is the virtual module table a non-browser host uses in place of object
// URLs: Publish stores text under a fresh reference, Release forgets it.
//
// Thread-safety: all methods are safe for concurrent use.
type Table struct {
	mu       sync.RWMutex
	refs     RefGenerator
	sources  map[ir.Reference]string
	released map[ir.Reference]bool
}

// TableOption configures a Table.
type TableOption func(*Table)

// WithRefGenerator overrides the reference generator (default UUIDRefs).
func WithRefGenerator(g RefGenerator) TableOption {
	return func(t *Table) {
		t.refs = g
	}
}

// NewTable creates an empty module table.
func NewTable(opts ...TableOption) *Table {
	t := &Table{
		refs:     UUIDRefs{},
		sources:  make(map[ir.Reference]string),
		released: make(map[ir.Reference]bool),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Publish stores source under a fresh reference.
func (t *Table) Publish(ctx context.Context, source string) (ir.Reference, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref := t.refs.NewRef()

	t.mu.Lock()
	t.sources[ref] = source
	t.mu.Unlock()

	return ref, nil
}

// Load links ref and its imports.
func (t *Table) Load(ctx context.Context, ref ir.Reference) (*Module, error) {
	return Link(ctx, ref, t.fetch)
}

// Release revokes ref. Unknown references are ignored.
func (t *Table) Release(ctx context.Context, ref ir.Reference) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.sources[ref]; ok {
		delete(t.sources, ref)
		t.released[ref] = true
	}
	return nil
}

// Source returns the published text behind ref.
func (t *Table) Source(ref ir.Reference) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sources[ref]
	return s, ok
}

// Len returns the number of live references.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sources)
}

func (t *Table) fetch(_ context.Context, ref ir.Reference) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if s, ok := t.sources[ref]; ok {
		return s, nil
	}
	if t.released[ref] {
		return "", ErrReleased
	}
	return "", ErrNotFound
}
