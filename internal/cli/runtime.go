package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/wenmine/tiny-engine/internal/compiler"
	"github.com/wenmine/tiny-engine/internal/config"
	"github.com/wenmine/tiny-engine/internal/engine"
	"github.com/wenmine/tiny-engine/internal/ir"
	"github.com/wenmine/tiny-engine/internal/module"
	"github.com/wenmine/tiny-engine/internal/store"
	"github.com/wenmine/tiny-engine/internal/style"
)

// runtime is the production stack behind compile and load: a SQLite store
// for modules and the compile log, a style document, and an engine whose
// clock continues from the stored log.
type runtime struct {
	store    *store.Store
	document *style.Document
	styles   *style.Registrar
	engine   *engine.Engine
	logger   *slog.Logger
	startSeq int64 // last log seq before this process
}

func newRuntime(ctx context.Context, opts *RootOptions, logw io.Writer) (*runtime, error) {
	cfg, err := opts.LoadConfig()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return newRuntimeFromConfig(ctx, cfg, opts.logger(cfg, logw))
}

func newRuntimeFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	logger.Info("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database,
		store.WithRefGenerator(module.UUIDRefs{Origin: cfg.Origin}),
		store.WithLogger(logger),
	)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	state, err := st.GetLogState(ctx)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to read compile log", err)
	}

	rt := &runtime{
		store:    st,
		document: style.NewDocument(),
		logger:   logger,
		startSeq: state.LastSeq,
	}
	rt.styles = style.NewRegistrar(rt.document,
		style.WithLogger(logger),
		style.WithPagePrefix(cfg.Style.PagePrefix),
	)
	comp := compiler.NewFragmentCompiler(st, rt.styles, compiler.WithLogger(logger))
	rt.engine = engine.New(st, comp,
		engine.WithRecorder(st),
		engine.WithClock(engine.NewClockAt(state.LastSeq)),
		engine.WithLogger(logger),
	)

	logger.Debug("runtime ready", "origin", cfg.Origin, "last_seq", state.LastSeq)
	return rt, nil
}

// compiled returns the compilations recorded by this runtime, in seq order.
func (rt *runtime) compiled(ctx context.Context) ([]ir.CompileRecord, error) {
	all, err := rt.store.Compilations(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ir.CompileRecord, 0, len(all))
	for _, rec := range all {
		if rec.Seq > rt.startSeq {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (rt *runtime) Close() {
	if err := rt.store.Close(); err != nil {
		rt.logger.Error("error closing database", "error", err)
	}
}

// openStore opens the configured database for reading the compile log.
func openStore(opts *RootOptions, logw io.Writer) (*store.Store, error) {
	cfg, err := opts.LoadConfig()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	st, err := store.Open(cfg.Database, store.WithLogger(opts.logger(cfg, logw)))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", fmt.Errorf("%s: %w", cfg.Database, err))
	}
	return st, nil
}
