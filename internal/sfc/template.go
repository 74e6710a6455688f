package sfc

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/wenmine/tiny-engine/internal/ir"
	"github.com/wenmine/tiny-engine/internal/jslex"
)

// CompilerOptions are forwarded to the template compiler proper.
type CompilerOptions struct {
	// BindingMetadata comes from CompileScript; listed names resolve
	// against $setup instead of the component proxy.
	BindingMetadata map[string]BindingType
}

// TemplateOptions configures CompileTemplate.
type TemplateOptions struct {
	ID              string
	Source          string
	Filename        string
	Scoped          bool
	Slotted         bool
	CompilerOptions CompilerOptions
	SourceMap       bool
}

// TemplateResult is a compiled template module exporting render.
type TemplateResult struct {
	Code string
	Map  *ir.SourceMap
}

// ScopeAttr returns the scope attribute for a compile id. Both the short id
// and the full "data-v-" form are accepted.
func ScopeAttr(id string) string {
	return "data-v-" + strings.TrimPrefix(id, "data-v-")
}

// CompileTemplate compiles template markup into a render module.
//
// The generated render function returns the markup as a string:
// interpolations and bound attributes are evaluated, event listeners are
// dropped and <template> wrappers are unwrapped. When scoped, every element
// carries the scope attribute; with slotted, <slot> outlets carry the
// "-s" slot scope attribute instead.
func CompileTemplate(opts TemplateOptions) (*TemplateResult, error) {
	tc := &templateCompiler{opts: opts, bindings: opts.CompilerOptions.BindingMetadata}
	if err := tc.run(); err != nil {
		return nil, err
	}

	var out lineMap
	out.synthetic("import { toDisplayString as _toDisplayString } from 'vue'")
	out.synthetic("export function render(_ctx, _cache, $props, $setup, $data, $options) {")
	out.synthetic(`  return ""`)
	for _, l := range tc.lines {
		out.emit("    + "+l.render(), l.origin)
	}
	out.synthetic("}")

	res := &TemplateResult{Code: out.code()}
	if opts.SourceMap {
		res.Map = out.sourceMap(opts.Filename, opts.Source)
	}
	return res, nil
}

// part is a piece of the render expression: static markup or a script
// expression.
type part struct {
	static string
	expr   string
}

type renderLine struct {
	origin int
	parts  []part
}

func (l renderLine) render() string {
	var pieces []string
	var static strings.Builder
	flush := func() {
		if static.Len() > 0 {
			pieces = append(pieces, jsString(static.String()))
			static.Reset()
		}
	}
	for _, p := range l.parts {
		if p.expr != "" {
			flush()
			pieces = append(pieces, "_toDisplayString("+p.expr+")")
			continue
		}
		static.WriteString(p.static)
	}
	flush()
	return strings.Join(pieces, " + ")
}

type templateCompiler struct {
	opts     TemplateOptions
	bindings map[string]BindingType
	lines    []renderLine
}

func (tc *templateCompiler) add(offset int, p part) {
	line := strings.Count(tc.opts.Source[:offset], "\n")
	if n := len(tc.lines); n > 0 && tc.lines[n-1].origin == line {
		tc.lines[n-1].parts = append(tc.lines[n-1].parts, p)
		return
	}
	tc.lines = append(tc.lines, renderLine{origin: line, parts: []part{p}})
}

func (tc *templateCompiler) errorf(offset int, format string, args ...any) error {
	line, col := position(tc.opts.Source, offset)
	return &SyntaxError{Filename: tc.opts.Filename, Line: line, Column: col, Msg: fmt.Sprintf(format, args...)}
}

func (tc *templateCompiler) run() error {
	src := tc.opts.Source
	s := newMarkupScanner(src, 0)
	for {
		switch s.next() {
		case html.ErrorToken:
			if !s.truncated() {
				return nil
			}
			name, end := s.truncatedTag()
			if end {
				return tc.errorf(s.off, "end tag </%s> is unterminated", name)
			}
			return tc.errorf(s.off, "element <%s> has an unterminated start tag", name)

		case html.CommentToken:
			if !commentClosed(s.raw) {
				return tc.errorf(s.off, "unterminated comment")
			}

		case html.TextToken:
			resume, err := tc.text(s.off, s.raw)
			if err != nil {
				return err
			}
			if resume >= 0 {
				s = newMarkupScanner(src, resume)
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			if err := tc.startTag(s); err != nil {
				return err
			}

		case html.EndTagToken:
			if name := s.tagName(); !strings.EqualFold(name, "template") {
				tc.add(s.off, part{static: "</" + name + ">"})
			}
		}
	}
}

// text emits a text token found at off. The first interpolation in it is
// read straight from the source, so its expression may contain markup
// characters; text then returns the offset to resume tokenizing at.
// Otherwise it returns -1.
func (tc *templateCompiler) text(off int, raw string) (int, error) {
	open := strings.Index(raw, "{{")
	if open < 0 {
		tc.static(off, raw)
		return -1, nil
	}
	tc.static(off, raw[:open])

	start := off + open
	end := interpolationEnd(tc.opts.Source, start+2)
	if end < 0 {
		return 0, tc.errorf(start, "interpolation is missing end delimiter")
	}
	expr := strings.TrimSpace(tc.opts.Source[start+2 : end])
	if expr == "" {
		return 0, tc.errorf(start, "interpolation is empty")
	}
	tc.add(start, part{expr: prefixIdentifiers(expr, tc.bindings)})
	return end + 2, nil
}

// static emits text split at newlines so that each render line maps to one
// source line.
func (tc *templateCompiler) static(off int, text string) {
	for _, chunk := range strings.SplitAfter(text, "\n") {
		if chunk != "" {
			tc.add(off, part{static: chunk})
			off += len(chunk)
		}
	}
}

// interpolationEnd returns the offset of the "}}" closing an interpolation
// whose expression starts at from, or -1. Braces inside string, template
// and regular expression literals do not count.
func interpolationEnd(src string, from int) int {
	s := jslex.NewScanner(src[from:])
	depth := 0
	for {
		tok := s.Next()
		switch {
		case tok.EOF():
			return -1
		case tok.Is("{"):
			depth++
		case tok.Is("}") && depth > 0:
			depth--
		case tok.Is("}"):
			next := s.Next()
			if next.Is("}") && next.Offset == tok.End() {
				return from + tok.Offset
			}
			s.Unread(next)
		}
	}
}

func (tc *templateCompiler) startTag(s *markupScanner) error {
	start := s.off
	name, attrs := s.tag()
	if strings.EqualFold(name, "template") {
		return nil
	}

	tc.add(start, part{static: "<" + name})
	for _, a := range attrs {
		switch {
		case strings.HasPrefix(a.name, "@"), strings.HasPrefix(a.name, "v-on:"):
			continue
		case strings.HasPrefix(a.name, ":"), strings.HasPrefix(a.name, "v-bind:"):
			attrName := strings.TrimPrefix(strings.TrimPrefix(a.name, ":"), "v-bind:")
			if strings.TrimSpace(a.value) == "" {
				return tc.errorf(start, "binding %q on <%s> has no expression", a.name, name)
			}
			tc.add(start, part{static: " " + attrName + `="`})
			tc.add(start, part{expr: prefixIdentifiers(a.value, tc.bindings)})
			tc.add(start, part{static: `"`})
		case a.value != "":
			tc.add(start, part{static: " " + a.name + `="` + html.EscapeString(a.value) + `"`})
		default:
			tc.add(start, part{static: " " + a.name})
		}
	}

	if tc.opts.Scoped {
		scope := ScopeAttr(tc.opts.ID)
		switch {
		case name == "slot" && tc.opts.Slotted:
			tc.add(start, part{static: " " + scope + "-s"})
		case name != "slot":
			tc.add(start, part{static: " " + scope})
		}
	}

	if s.tt == html.SelfClosingTagToken {
		tc.add(start, part{static: " />"})
	} else {
		tc.add(start, part{static: ">"})
	}
	return nil
}

var jsGlobals = map[string]bool{
	"true": true, "false": true, "null": true, "undefined": true, "this": true,
	"typeof": true, "instanceof": true, "in": true, "new": true, "void": true,
	"NaN": true, "Infinity": true, "Math": true, "Date": true, "JSON": true,
	"Number": true, "String": true, "Boolean": true, "Array": true, "Object": true,
	"parseInt": true, "parseFloat": true, "isNaN": true, "isFinite": true,
	"encodeURIComponent": true, "decodeURIComponent": true, "console": true,
	"Intl": true, "BigInt": true, "RegExp": true, "Map": true, "Set": true,
}

// prefixIdentifiers rewrites free identifiers in a template expression to
// $setup.x for setup bindings and _ctx.x for everything else.
func prefixIdentifiers(expr string, bindings map[string]BindingType) string {
	var b strings.Builder
	s := jslex.NewScanner(expr)
	last := 0
	var prev jslex.Token
	for tok := s.Next(); !tok.EOF(); tok = s.Next() {
		b.WriteString(expr[last:tok.Offset])
		last = tok.End()
		switch {
		case !tok.Word(), prev.Is(".", "?."), jsGlobals[tok.Text]:
			b.WriteString(tok.Text)
		case bindings[tok.Text] != "":
			b.WriteString("$setup." + tok.Text)
		default:
			b.WriteString("_ctx." + tok.Text)
		}
		prev = tok
	}
	b.WriteString(expr[last:])
	return b.String()
}

// jsString quotes s as a double-quoted script string literal.
func jsString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\u2028', '\u2029':
			fmt.Fprintf(&b, `\u%04x`, r)
		default:
			if r < 0x20 {
				fmt.Fprintf(&b, `\u%04x`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
