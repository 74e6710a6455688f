package compiler

import (
	"context"
	"log/slog"
	"strings"

	"github.com/wenmine/tiny-engine/internal/ident"
	"github.com/wenmine/tiny-engine/internal/ir"
	"github.com/wenmine/tiny-engine/internal/module"
	"github.com/wenmine/tiny-engine/internal/sfc"
)

// StyleSink receives a block's compiled CSS keyed by its compile id.
// Implemented by *style.Registrar.
type StyleSink interface {
	Register(key, css string)
}

// FragmentCompiler compiles one block into a published module.
//
// Thread-safety: safe for concurrent use when its Publisher, StyleSink and
// id generator are.
type FragmentCompiler struct {
	publisher module.Publisher
	styles    StyleSink
	ids       ident.Generator
	logger    *slog.Logger
}

// Option configures a FragmentCompiler.
type Option func(*FragmentCompiler)

// WithIDGenerator sets the compile id source (default ident.Random).
func WithIDGenerator(g ident.Generator) Option {
	return func(c *FragmentCompiler) {
		c.ids = g
	}
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(c *FragmentCompiler) {
		c.logger = l
	}
}

// NewFragmentCompiler creates a compiler publishing through pub and
// registering styles with styles. A nil styles discards CSS.
func NewFragmentCompiler(pub module.Publisher, styles StyleSink, opts ...Option) *FragmentCompiler {
	c := &FragmentCompiler{
		publisher: pub,
		styles:    styles,
		ids:       ident.Random{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result describes one compilation.
type Result struct {
	Block     string
	ID        string
	ScopeID   ir.ScopeID
	Reference ir.Reference // assembled block module
	Script    ir.Reference
	Template  ir.Reference
	Fragments ir.FragmentSet
}

// Compile compiles block and returns the reference of its assembled module.
func (c *FragmentCompiler) Compile(ctx context.Context, block ir.BlockDefinition) (ir.Reference, error) {
	res, err := c.CompileFragments(ctx, block)
	if err != nil {
		return "", err
	}
	return res.Reference, nil
}

// CompileFragments compiles block and reports every intermediate artifact.
//
// Steps:
//  1. Parse the source; any parser error is a *ParseError
//  2. Draw a compile id; the block is scoped only if a style is scoped
//  3. Compile script and template, inlining their source maps
//  4. Compile every style
//  5. Publish script and template, then the assembled module body
//  6. Register the compiled CSS under the compile id
func (c *FragmentCompiler) CompileFragments(ctx context.Context, block ir.BlockDefinition) (*Result, error) {
	file := block.FileName()

	desc, errs := sfc.Parse(block.Code, sfc.ParseOptions{Filename: file})
	if len(errs) > 0 {
		return nil, &ParseError{Block: block.Name, File: file, Errs: errs}
	}

	id := c.ids.NewID()
	hasScoped := false
	for _, s := range desc.Styles {
		if s.Scoped {
			hasScoped = true
			break
		}
	}
	res := &Result{Block: block.Name, ID: id}
	if hasScoped {
		res.ScopeID = ir.ScopeIDFor(id)
	}

	fail := func(stage string, err error) (*Result, error) {
		return nil, &CompileError{Block: block.Name, Stage: stage, Err: err}
	}

	script, err := sfc.CompileScript(desc, sfc.ScriptOptions{ID: id, SourceMap: true})
	if err != nil {
		return fail(StageScript, err)
	}
	scriptCode, err := module.InlineSourceMap(script.Content, script.Map)
	if err != nil {
		return fail(StageScript, err)
	}

	templateSource := ""
	if desc.Template != nil {
		templateSource = desc.Template.Content
	}
	template, err := sfc.CompileTemplate(sfc.TemplateOptions{
		ID:       id,
		Source:   templateSource,
		Filename: file,
		Scoped:   hasScoped,
		Slotted:  desc.Slotted,
		CompilerOptions: sfc.CompilerOptions{
			BindingMetadata: script.Bindings,
		},
		SourceMap: true,
	})
	if err != nil {
		return fail(StageTemplate, err)
	}
	if template.Map != nil && len(template.Map.Sources) > 0 {
		template.Map.Sources[0] += "?template"
	}
	templateCode, err := module.InlineSourceMap(template.Code, template.Map)
	if err != nil {
		return fail(StageTemplate, err)
	}

	var css strings.Builder
	for _, s := range desc.Styles {
		out, err := sfc.CompileStyle(sfc.StyleOptions{
			ID:             id,
			Source:         s.Content,
			Filename:       file,
			Scoped:         s.Scoped,
			PreprocessLang: s.Lang,
		})
		if err != nil {
			return fail(StageStyle, err)
		}
		css.WriteString(out.Code)
	}

	res.Fragments = ir.FragmentSet{
		ScriptCode:   scriptCode,
		ScriptMap:    script.Map,
		TemplateCode: templateCode,
		TemplateMap:  template.Map,
		StyleCode:    css.String(),
	}

	if res.Script, err = c.publisher.Publish(ctx, scriptCode); err != nil {
		return fail(StagePublish, err)
	}
	if res.Template, err = c.publisher.Publish(ctx, templateCode); err != nil {
		return fail(StagePublish, err)
	}
	body := module.AssembleBody(res.Script, res.Template, file, res.ScopeID)
	if res.Reference, err = c.publisher.Publish(ctx, body); err != nil {
		return fail(StagePublish, err)
	}

	if c.styles != nil && len(desc.Styles) > 0 {
		c.styles.Register(id, res.Fragments.StyleCode)
	}

	c.logger.Debug("block compiled",
		"block", block.Name,
		"id", id,
		"scope_id", string(res.ScopeID),
		"ref", string(res.Reference),
	)
	return res, nil
}
