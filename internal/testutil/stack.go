// Package testutil builds deterministic block renderer stacks for the
// conformance harness and command tests.
package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/wenmine/tiny-engine/internal/compiler"
	"github.com/wenmine/tiny-engine/internal/engine"
	"github.com/wenmine/tiny-engine/internal/ident"
	"github.com/wenmine/tiny-engine/internal/ir"
	"github.com/wenmine/tiny-engine/internal/module"
	"github.com/wenmine/tiny-engine/internal/store"
	"github.com/wenmine/tiny-engine/internal/style"
)

// Default deterministic settings.
const (
	DefaultOrigin   = "h"
	DefaultIDPrefix = "id"
)

// Stack is a complete engine wired for reproducible output:
//   - compile ids come from ident.Sequence ("id00000001", ...)
//   - references come from module.SequentialRefs ("blob:h/1", ...)
//   - modules and the compile log live in an in-memory SQLite store
//
// Two stacks fed the same requests produce byte-identical traces.
type Stack struct {
	Store    *store.Store
	Document *style.Document
	Styles   *style.Registrar
	Compiler *compiler.FragmentCompiler
	Engine   *engine.Engine
	Log      *Log
}

type stackConfig struct {
	origin   string
	idPrefix string
	database string
	logger   *slog.Logger
}

// StackOption configures NewStack.
type StackOption func(*stackConfig)

// WithOrigin sets the reference origin (default "h").
func WithOrigin(origin string) StackOption {
	return func(c *stackConfig) {
		c.origin = origin
	}
}

// WithIDPrefix sets the compile id prefix (default "id").
func WithIDPrefix(prefix string) StackOption {
	return func(c *stackConfig) {
		c.idPrefix = prefix
	}
}

// WithDatabase stores modules at path instead of in memory.
func WithDatabase(path string) StackOption {
	return func(c *stackConfig) {
		c.database = path
	}
}

// WithLogger sets the logger shared by every component (default: discard).
func WithLogger(l *slog.Logger) StackOption {
	return func(c *stackConfig) {
		c.logger = l
	}
}

// NewStack creates a deterministic stack. Close it when done.
func NewStack(opts ...StackOption) (*Stack, error) {
	cfg := &stackConfig{
		origin:   DefaultOrigin,
		idPrefix: DefaultIDPrefix,
		database: store.MemoryPath,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	st, err := store.Open(cfg.database,
		store.WithRefGenerator(module.NewSequentialRefs(cfg.origin)),
		store.WithLogger(cfg.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	s := &Stack{
		Store:    st,
		Document: style.NewDocument(),
		Log:      &Log{next: st},
	}
	s.Styles = style.NewRegistrar(s.Document, style.WithLogger(cfg.logger))
	s.Compiler = compiler.NewFragmentCompiler(st, s.Styles,
		compiler.WithIDGenerator(ident.NewSequence(cfg.idPrefix)),
		compiler.WithLogger(cfg.logger),
	)
	s.Engine = engine.New(st, s.Compiler,
		engine.WithRecorder(s.Log),
		engine.WithLogger(cfg.logger),
	)
	return s, nil
}

// Close releases the store.
func (s *Stack) Close() error {
	return s.Store.Close()
}

// Entry is one compile log record, in the order the engine emitted it.
// Exactly one of Compile and Link is set.
type Entry struct {
	Compile *ir.CompileRecord
	Link    *ir.LinkRecord
}

// Log records every compile log entry in emission order and forwards it to
// the next recorder. Unlike the store it keeps repeated links.
//
// Thread-safety: safe for concurrent use via internal mutex.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	next    engine.Recorder
}

// RecordCompile implements engine.Recorder.
func (l *Log) RecordCompile(ctx context.Context, rec ir.CompileRecord) error {
	l.mu.Lock()
	l.entries = append(l.entries, Entry{Compile: &rec})
	l.mu.Unlock()
	if l.next == nil {
		return nil
	}
	return l.next.RecordCompile(ctx, rec)
}

// RecordLink implements engine.Recorder.
func (l *Log) RecordLink(ctx context.Context, rec ir.LinkRecord) error {
	l.mu.Lock()
	l.entries = append(l.entries, Entry{Link: &rec})
	l.mu.Unlock()
	if l.next == nil {
		return nil
	}
	return l.next.RecordLink(ctx, rec)
}

// Entries returns a copy of the recorded entries.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Since returns the entries recorded after the first n.
func (l *Log) Since(n int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n >= len(l.entries) {
		return nil
	}
	return append([]Entry(nil), l.entries[n:]...)
}

// Len returns the number of recorded entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
