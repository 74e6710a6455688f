package sfc

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/wenmine/tiny-engine/internal/ir"
	"github.com/wenmine/tiny-engine/internal/jslex"
)

// BindingType classifies a top-level script setup binding.
type BindingType string

const (
	BindingSetupConst    BindingType = "setup-const"
	BindingSetupLet      BindingType = "setup-let"
	BindingSetupMaybeRef BindingType = "setup-maybe-ref"
)

// ScriptOptions configures CompileScript.
type ScriptOptions struct {
	ID        string
	SourceMap bool
}

// ScriptResult is a compiled script module.
type ScriptResult struct {
	Content  string
	Map      *ir.SourceMap
	Bindings map[string]BindingType

	// BindingOrder lists Bindings keys in declaration order.
	BindingOrder []string
}

// CompileScript merges the script and script setup blocks into one module.
//
// A plain <script> passes through unchanged. A <script setup> body is
// wrapped in a setup() function whose returned object exposes every
// top-level binding; its imports are hoisted to module scope.
func CompileScript(d *Descriptor, opts ScriptOptions) (*ScriptResult, error) {
	for _, b := range []*Block{d.Script, d.ScriptSetup} {
		if b != nil && b.Lang != "" && b.Lang != "js" {
			return nil, fmt.Errorf("%s: script lang %q is not supported", d.Filename, b.Lang)
		}
	}

	res := &ScriptResult{Bindings: make(map[string]BindingType)}
	var out lineMap

	switch {
	case d.Script == nil && d.ScriptSetup == nil:
		out.synthetic("export default {}")
	case d.ScriptSetup == nil:
		emitBlock(&out, d.Script, "")
	default:
		if err := compileSetup(&out, d, res); err != nil {
			return nil, err
		}
	}

	res.Content = out.code()
	if opts.SourceMap {
		res.Map = out.sourceMap(d.Filename, d.Source)
	}
	return res, nil
}

func compileSetup(out *lineMap, d *Descriptor, res *ScriptResult) error {
	hasDefault := false
	if d.Script != nil {
		content, ok, err := renameDefaultExport(d.Script.Content)
		if err != nil {
			return fmt.Errorf("%s: <script>: %w", d.Filename, err)
		}
		hasDefault = ok
		for i, line := range strings.Split(content, "\n") {
			out.emit(line, d.Script.StartLine+i)
		}
	}

	setup := d.ScriptSetup
	ss, err := lexSetup(setup.Content)
	if err != nil {
		var unbalanced *unbalancedError
		if errors.As(err, &unbalanced) {
			return fmt.Errorf("%s: unbalanced braces in <script setup> at line %d", d.Filename, setup.StartLine+unbalanced.line+1)
		}
		return fmt.Errorf("%s: <script setup>: %w", d.Filename, err)
	}

	hoisted := make([]bool, len(ss.lines))
	for i := range ss.lines {
		t := ss.lead[i]
		if t < 0 || hoisted[i] || ss.depth[t] != 0 {
			continue
		}
		if last, names, ok := ss.importAt(t); ok {
			for j := i; j <= ss.lineOf(ss.toks[last].Offset); j++ {
				hoisted[j] = true
			}
			for _, name := range names {
				res.bind(name, BindingSetupMaybeRef)
			}
			continue
		}
		ss.declare(t, res)
	}

	for i, line := range ss.lines {
		if hoisted[i] {
			out.emit(line, setup.StartLine+i)
		}
	}
	out.synthetic("export default {")
	if hasDefault {
		out.synthetic("  ...__default__,")
	}
	out.synthetic("  setup(__props, { expose: __expose }) {")
	out.synthetic("    __expose();")
	for i, line := range ss.lines {
		switch {
		case hoisted[i]:
		case strings.TrimSpace(line) == "":
			out.emit("", setup.StartLine+i)
		default:
			out.emit("    "+line, setup.StartLine+i)
		}
	}
	out.synthetic("    return { " + strings.Join(res.BindingOrder, ", ") + " }")
	out.synthetic("  }")
	out.synthetic("}")
	return nil
}

// renameDefaultExport turns the first top-level "export default" of a
// plain script into "const __default__ =". Line breaks are kept.
func renameDefaultExport(src string) (string, bool, error) {
	s := jslex.NewScanner(src)
	var prev jslex.Token
	depth := 0
	for {
		tok := s.Next()
		if tok.EOF() {
			return src, false, s.Err()
		}
		if depth == 0 && tok.Is("export") && !prev.Is(".", "?.") {
			next := s.Next()
			if next.Is("default") {
				return src[:tok.Offset] + "const" + src[tok.End():next.Offset] + "__default__ =" + src[next.End():], true, nil
			}
			s.Unread(next)
		}
		depth += bracketDelta(tok)
		prev = tok
	}
}

func emitBlock(out *lineMap, b *Block, indent string) {
	for i, line := range strings.Split(b.Content, "\n") {
		if line != "" {
			line = indent + line
		}
		out.emit(line, b.StartLine+i)
	}
}

func (r *ScriptResult) bind(name string, t BindingType) {
	if _, ok := r.Bindings[name]; ok {
		return
	}
	r.Bindings[name] = t
	r.BindingOrder = append(r.BindingOrder, name)
}

// setupSource is a lexed <script setup> body.
type setupSource struct {
	lines  []string
	starts []int // offset of each line

	toks    []jslex.Token
	depth   []int  // bracket depth before each token
	leading []bool // the token is the first thing on its line
	lead    []int  // index of each line's leading token, or -1
}

type unbalancedError struct {
	line int
}

func (e *unbalancedError) Error() string {
	return fmt.Sprintf("unbalanced brackets at line %d", e.line+1)
}

func lexSetup(src string) (*setupSource, error) {
	ss := &setupSource{lines: strings.Split(src, "\n")}
	ss.starts = make([]int, len(ss.lines))
	ss.lead = make([]int, len(ss.lines))
	off := 0
	for i, line := range ss.lines {
		ss.starts[i] = off
		ss.lead[i] = -1
		off += len(line) + 1
	}

	s := jslex.NewScanner(src)
	depth := 0
	for {
		tok := s.Next()
		if tok.EOF() {
			return ss, s.Err()
		}
		line := ss.lineOf(tok.Offset)
		leading := ss.lead[line] < 0 && strings.TrimSpace(src[ss.starts[line]:tok.Offset]) == ""
		if leading {
			ss.lead[line] = len(ss.toks)
		}
		ss.toks = append(ss.toks, tok)
		ss.depth = append(ss.depth, depth)
		ss.leading = append(ss.leading, leading)

		depth += bracketDelta(tok)
		if depth < 0 {
			return nil, &unbalancedError{line: line}
		}
	}
}

// lineOf returns the line holding offset.
func (ss *setupSource) lineOf(offset int) int {
	return sort.Search(len(ss.starts), func(i int) bool { return ss.starts[i] > offset }) - 1
}

// closing returns the index of the bracket closing the one at i.
func (ss *setupSource) closing(i int) int {
	for j := i + 1; j < len(ss.toks); j++ {
		if ss.depth[j] == ss.depth[i]+1 && bracketDelta(ss.toks[j]) < 0 {
			return j
		}
	}
	return len(ss.toks) - 1
}

// importAt reads a static import statement starting at token t. It returns
// the index of the statement's last token and the local names it binds.
func (ss *setupSource) importAt(t int) (int, []string, bool) {
	toks := ss.toks
	if !toks[t].Is("import") || t+1 == len(toks) || toks[t+1].Is("(", ".") {
		return 0, nil, false
	}
	if toks[t+1].IsString() {
		return ss.withSemicolon(t + 1), nil, true
	}
	for i := t + 2; i+1 < len(toks); i++ {
		if ss.depth[i] != 0 {
			continue
		}
		if toks[i].Is(";", "import") {
			break
		}
		if toks[i].Is("from") && toks[i+1].IsString() {
			return ss.withSemicolon(i + 1), importedNames(toks[t+1 : i]), true
		}
	}
	return 0, nil, false
}

func (ss *setupSource) withSemicolon(i int) int {
	if i+1 < len(ss.toks) && ss.toks[i+1].Is(";") {
		return i + 1
	}
	return i
}

// importedNames lists the local names bound by an import clause.
func importedNames(clause []jslex.Token) []string {
	if len(clause) > 1 && clause[0].Is("type") && !clause[1].Is(",") {
		return nil
	}
	var names []string
	for i, tok := range clause {
		if !tok.Word() || i+1 < len(clause) && !clause[i+1].Is(",", "}") {
			continue
		}
		names = append(names, tok.Text)
	}
	return names
}

// declare records the bindings introduced by the statement starting at
// token t.
func (ss *setupSource) declare(t int, res *ScriptResult) {
	toks := ss.toks
	i := t
	if toks[i].Is("export") {
		i++
	}
	if i < len(toks) && toks[i].Is("async") {
		i++
	}
	if i >= len(toks) {
		return
	}
	switch {
	case toks[i].Is("function"):
		i++
		if i < len(toks) && toks[i].Is("*") {
			i++
		}
		if i < len(toks) && toks[i].Word() {
			res.bind(toks[i].Text, BindingSetupConst)
		}
	case toks[i].Is("class"):
		if i+1 < len(toks) && toks[i+1].Word() {
			res.bind(toks[i+1].Text, BindingSetupConst)
		}
	case toks[i].Is("const", "let", "var"):
		ss.declarators(i, res)
	}
}

// declarators binds every name declared by the const, let or var at kw.
func (ss *setupSource) declarators(kw int, res *ScriptResult) {
	toks := ss.toks
	for i := kw + 1; i < len(toks); i++ {
		var names []string
		switch {
		case toks[i].Is("{", "["):
			end := ss.closing(i)
			names = patternNames(toks[i : end+1])
			i = end + 1
		case toks[i].Word():
			names = []string{toks[i].Text}
			i++
		default:
			return
		}

		t := BindingSetupMaybeRef
		if toks[kw].Text != "const" {
			t = BindingSetupLet
		}
		if i < len(toks) && toks[i].Is("=") {
			if t == BindingSetupMaybeRef && ss.constInit(i+1) {
				t = BindingSetupConst
			}
			i = ss.skipExpr(i+1, ss.depth[kw])
		}
		for _, name := range names {
			res.bind(name, t)
		}
		if i >= len(toks) || !toks[i].Is(",") {
			return
		}
	}
}

// constInit reports whether the initializer starting at token i can never
// hold a ref.
func (ss *setupSource) constInit(i int) bool {
	if i >= len(ss.toks) {
		return false
	}
	tok := ss.toks[i]
	switch {
	case tok.IsString(), strings.HasPrefix(tok.Text, "`"):
		return true
	case tok.Is("true", "false", "function", "async", "class"):
		return true
	case tok.Is("("):
		end := ss.closing(i)
		return end+1 < len(ss.toks) && ss.toks[end+1].Is("=>")
	case tok.Word():
		return i+1 < len(ss.toks) && ss.toks[i+1].Is("=>")
	}
	c := tok.Text[0]
	return c >= '0' && c <= '9' || c == '.' && len(tok.Text) > 1
}

// skipExpr returns the index of the token ending the expression that starts
// at i: a ',' or ';' at depth, a bracket closing depth, or the first token
// of a statement on a following line.
func (ss *setupSource) skipExpr(i, depth int) int {
	for ; i < len(ss.toks); i++ {
		if ss.depth[i] != depth {
			continue
		}
		tok := ss.toks[i]
		if tok.Is(",", ";") || bracketDelta(tok) < 0 {
			return i
		}
		if ss.leading[i] && i > 0 && !continuesLine(ss.toks[i-1], tok) {
			return i
		}
	}
	return i
}

// continuesLine reports whether tok, first on its line, continues the
// expression ending with prev.
func continuesLine(prev, tok jslex.Token) bool {
	return jslex.ExpectsOperand(prev) || tok.Is(".", "?.", "?", ":", "=>", "&&", "||", "??")
}

// patternNames extracts declared identifiers from a destructuring pattern
// such as "{ a, b: c, d = 1, ...e }" or "[x, [y]]".
func patternNames(pattern []jslex.Token) []string {
	var names []string
	depth, defaultAt := 0, 0
	for i, tok := range pattern {
		if delta := bracketDelta(tok); delta != 0 {
			depth += delta
			if depth < defaultAt {
				defaultAt = 0
			}
			continue
		}
		switch {
		case defaultAt > 0:
			if tok.Is(",") && depth == defaultAt {
				defaultAt = 0
			}
		case tok.Is("="):
			defaultAt = depth
		case tok.Word() && (i+1 == len(pattern) || pattern[i+1].Is(",", "}", "]", "=")):
			names = append(names, tok.Text)
		}
	}
	return names
}

// bracketDelta returns the depth change of one token.
func bracketDelta(tok jslex.Token) int {
	switch tok.Text {
	case "{", "(", "[":
		return 1
	case "}", ")", "]":
		return -1
	}
	return 0
}
