package module

import (
	"fmt"
	"slices"
	"strings"

	"github.com/wenmine/tiny-engine/internal/ir"
	"github.com/wenmine/tiny-engine/internal/jslex"
)

// Block module clauses. An assembled block body imports its script's default
// export and its template's render function under these clauses.
const (
	ScriptClause = "script"
	RenderClause = "{ render }"
)

// Component is the result of instantiating a block module.
// It is the in-process stand-in for the component object a browser host
// would receive from the module's default export.
type Component struct {
	Reference ir.Reference `json:"reference"`
	File      string       `json:"file,omitempty"`
	ScopeID   ir.ScopeID   `json:"scope_id,omitempty"`
	Script    ir.Reference `json:"script"`
	Render    ir.Reference `json:"render"`
	Externals []string     `json:"externals,omitempty"` // bare specifiers of script and render
	Children  []*Component `json:"children,omitempty"`
}

// Count returns the number of components in the tree rooted at c.
func (c *Component) Count() int {
	n := 1
	for _, child := range c.Children {
		n += child.Count()
	}
	return n
}

// AssembleBody builds the module body that binds a script and a render
// function into one default-exported component.
//
// file and scopeID are attached as metadata only when non-empty.
func AssembleBody(script, render ir.Reference, file string, scopeID ir.ScopeID) string {
	var b strings.Builder
	fmt.Fprintf(&b, "import %s from '%s';\n", ScriptClause, script)
	fmt.Fprintf(&b, "import %s from '%s';\n", RenderClause, render)
	b.WriteString("script.render = render;\n")
	if file != "" {
		fmt.Fprintf(&b, "script.__file = '%s';\n", Quote(file))
	}
	if scopeID != "" {
		fmt.Fprintf(&b, "script.scopeId = '%s';\n", Quote(string(scopeID)))
	}
	b.WriteString("export default script;\n")
	return b.String()
}

// scriptMetadata returns the string literals a block module body assigns
// to properties of its script binding, such as script.__file.
func scriptMetadata(source string) map[string]string {
	meta := make(map[string]string)
	s := jslex.NewScanner(source)
	var run []jslex.Token
	for tok := s.Next(); !tok.EOF(); tok = s.Next() {
		run = append(run, tok)
		if len(run) > 5 {
			run = run[1:]
		}
		if len(run) == 5 && run[0].Is(ScriptClause) && run[1].Is(".") && run[2].Word() &&
			run[3].Is("=") && run[4].IsString() {
			meta[run[2].Text] = Unquote(run[4].Unquote())
		}
	}
	return meta
}

// IsBlockModule reports whether m was produced by AssembleBody.
func IsBlockModule(m *Module) bool {
	s, okS := m.ImportByClause(ScriptClause)
	r, okR := m.ImportByClause(RenderClause)
	return okS && okR && !s.External() && !r.External()
}

// Instantiate evaluates a linked block module into a Component tree.
//
// Children are the block modules imported (directly) by the script module.
// Import cycles between blocks are cut: a block already on the current path
// is not expanded again.
func Instantiate(m *Module) (*Component, error) {
	return instantiate(m, make(map[ir.Reference]bool))
}

func instantiate(m *Module, active map[ir.Reference]bool) (*Component, error) {
	if m == nil {
		return nil, fmt.Errorf("instantiate: nil module")
	}
	if !IsBlockModule(m) {
		return nil, fmt.Errorf("instantiate %s: not a block module", m.Reference)
	}
	active[m.Reference] = true
	defer delete(active, m.Reference)

	script, _ := m.ImportByClause(ScriptClause)
	render, _ := m.ImportByClause(RenderClause)

	c := &Component{
		Reference: m.Reference,
		Script:    script.Module.Reference,
		Render:    render.Module.Reference,
	}
	meta := scriptMetadata(m.Source)
	c.File = meta["__file"]
	c.ScopeID = ir.ScopeID(meta["scopeId"])

	seen := make(map[string]bool)
	for _, imp := range slices.Concat(script.Module.Imports, render.Module.Imports) {
		if imp.External() && !seen[imp.Specifier] {
			seen[imp.Specifier] = true
			c.Externals = append(c.Externals, imp.Specifier)
		}
	}

	for _, imp := range script.Module.Imports {
		if imp.External() {
			continue
		}
		if !IsBlockModule(imp.Module) || active[imp.Module.Reference] {
			continue
		}
		child, err := instantiate(imp.Module, active)
		if err != nil {
			return nil, err
		}
		c.Children = append(c.Children, child)
	}

	return c, nil
}

// Quote escapes s for a single-quoted script string literal.
func Quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", `\r`)
	return r.Replace(s)
}

// Unquote reverses Quote.
func Unquote(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
