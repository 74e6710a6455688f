package engine

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/wenmine/tiny-engine/internal/compiler"
	"github.com/wenmine/tiny-engine/internal/ir"
	"github.com/wenmine/tiny-engine/internal/module"
)

// Compiler compiles one block whose children are already substituted.
// Implemented by *compiler.FragmentCompiler.
type Compiler interface {
	CompileFragments(ctx context.Context, block ir.BlockDefinition) (*compiler.Result, error)
}

// Invoker runs the entry behavior of a loaded block module.
type Invoker func(ctx context.Context, m *module.Module) (any, error)

// Instantiate is the default Invoker: it evaluates the module into a
// *module.Component tree.
func Instantiate(_ context.Context, m *module.Module) (any, error) {
	return module.Instantiate(m)
}

// Recorder receives the compile log. Implemented by *store.Store.
// Recording failures are logged and never fail a request.
type Recorder interface {
	RecordCompile(ctx context.Context, rec ir.CompileRecord) error
	RecordLink(ctx context.Context, rec ir.LinkRecord) error
}

// Engine resolves, compiles, loads and invokes blocks.
//
// Thread-safety model:
//   - LoadBlock, Compile, Resolve and Warm are safe from any goroutine
//   - the cache, style registry and module host carry their own locking
type Engine struct {
	host     module.Host
	compiler Compiler
	cache    *Cache
	clock    *Clock
	invoke   Invoker
	recorder Recorder
	logger   *slog.Logger
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithInvoker replaces the entry behavior (default Instantiate).
func WithInvoker(inv Invoker) EngineOption {
	return func(e *Engine) {
		e.invoke = inv
	}
}

// WithRecorder attaches a compile log recorder.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithCache shares an existing cache (default: a fresh one per engine).
func WithCache(c *Cache) EngineOption {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithClock sets the logical clock, e.g. to continue a stored compile log.
func WithClock(c *Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// New creates an Engine loading modules from host and compiling with c.
func New(host module.Host, c Compiler, opts ...EngineOption) *Engine {
	e := &Engine{
		host:     host,
		compiler: c,
		cache:    NewCache(),
		clock:    NewClock(),
		invoke:   Instantiate,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cache exposes the module cache.
func (e *Engine) Cache() *Cache {
	return e.cache
}

// Clock exposes the logical clock stamping compile records.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// Host exposes the module host.
func (e *Engine) Host() module.Host {
	return e.host
}

// LoadBlock compiles block (and its children), loads the resulting module
// and returns the result of its entry behavior.
//
// ParseError, CompileError, UnknownBlockError and CycleError propagate
// unchanged; a failure to load or invoke the module is a *ModuleLoadError.
func (e *Engine) LoadBlock(ctx context.Context, block ir.BlockDefinition, registry ir.BlockRegistry) (any, error) {
	ref, err := e.Compile(ctx, block, registry)
	if err != nil {
		return nil, err
	}

	m, err := e.host.Load(ctx, ref)
	if err != nil {
		e.logger.Error("module load failed", "block", block.Name, "ref", string(ref), "error", err)
		return nil, &ModuleLoadError{Reference: ref, Err: err}
	}

	result, err := e.invoke(ctx, m)
	if err != nil {
		e.logger.Error("module invoke failed", "block", block.Name, "ref", string(ref), "error", err)
		return nil, &ModuleLoadError{Reference: ref, Err: err}
	}

	e.logger.Info("block loaded", "block", block.Name, "ref", string(ref))
	return result, nil
}

// Compile resolves block's children and returns the block's reference,
// compiling it on a cache miss.
func (e *Engine) Compile(ctx context.Context, block ir.BlockDefinition, registry ir.BlockRegistry) (ir.Reference, error) {
	code, err := e.resolve(ctx, block, registry, resolutionPath{block.Name})
	if err != nil {
		return "", err
	}
	return e.getOrCompile(ctx, block.WithCode(code))
}

// Resolve returns block's source with every declared child path replaced
// by the child's reference. Children are compiled (through the cache) in
// declaration order, each after its own children. The registry is not
// modified.
func (e *Engine) Resolve(ctx context.Context, block ir.BlockDefinition, registry ir.BlockRegistry) (string, error) {
	return e.resolve(ctx, block, registry, resolutionPath{block.Name})
}

func (e *Engine) resolve(ctx context.Context, block ir.BlockDefinition, registry ir.BlockRegistry, path resolutionPath) (string, error) {
	code := block.Code
	for _, name := range block.ChildBlocks {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		child, ok := registry.Lookup(name)
		if !ok {
			return "", &UnknownBlockError{Parent: block.Name, Name: name}
		}
		if child.Name == "" {
			child.Name = name
		}

		childPath, err := path.enter(name)
		if err != nil {
			return "", err
		}

		childCode, err := e.resolve(ctx, child, registry, childPath)
		if err != nil {
			return "", err
		}

		ref, err := e.getOrCompile(ctx, child.WithCode(childCode))
		if err != nil {
			return "", err
		}

		code = strings.ReplaceAll(code, ir.ChildPath(name), string(ref))
		e.recordLink(ctx, block.Name, name, ref)
	}
	return code, nil
}

func (e *Engine) getOrCompile(ctx context.Context, block ir.BlockDefinition) (ir.Reference, error) {
	return e.cache.GetOrCompile(ctx, block.Name, func(ctx context.Context) (ir.Reference, error) {
		res, err := e.compiler.CompileFragments(ctx, block)
		if err != nil {
			e.logger.Warn("block compile failed", "block", block.Name, "error", err)
			return "", err
		}
		e.recordCompile(ctx, block, res)
		return res.Reference, nil
	})
}

// Warm compiles the named roots (all registry blocks when names is empty)
// concurrently. Shared children compile once through the cache.
func (e *Engine) Warm(ctx context.Context, registry ir.BlockRegistry, names ...string) error {
	if len(names) == 0 {
		names = registry.Names()
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, name := range names {
		block, ok := registry.Lookup(name)
		if !ok {
			return &UnknownBlockError{Name: name}
		}
		if block.Name == "" {
			block.Name = name
		}
		g.Go(func() error {
			_, err := e.Compile(ctx, block, registry)
			return err
		})
	}
	return g.Wait()
}

func (e *Engine) recordCompile(ctx context.Context, block ir.BlockDefinition, res *compiler.Result) {
	blockHash, err := ir.BlockHash(block)
	if err != nil {
		e.logger.Warn("block hash failed", "block", block.Name, "error", err)
	}
	rec := ir.CompileRecord{
		Seq:        e.clock.Next(),
		Block:      block.Name,
		ID:         res.ID,
		ScopeID:    res.ScopeID,
		Reference:  res.Reference,
		Script:     res.Script,
		Template:   res.Template,
		BlockHash:  blockHash,
		SourceHash: ir.SourceHash(block.Code),
		CSS:        res.Fragments.StyleCode,
	}
	e.logger.Debug("compile recorded", "seq", rec.Seq, "block", rec.Block, "ref", string(rec.Reference))
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordCompile(ctx, rec); err != nil {
		e.logger.Warn("record compile failed", "block", block.Name, "error", err)
	}
}

func (e *Engine) recordLink(ctx context.Context, parent, child string, ref ir.Reference) {
	if e.recorder == nil {
		return
	}
	rec := ir.LinkRecord{Seq: e.clock.Next(), Parent: parent, Child: child, Reference: ref}
	if err := e.recorder.RecordLink(ctx, rec); err != nil {
		e.logger.Warn("record link failed", "parent", parent, "child", child, "error", err)
	}
}
