package sfc

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// ParseOptions configures Parse.
type ParseOptions struct {
	// Filename is reported in errors and source maps.
	Filename string
}

// Block is one top-level element of a single-file component.
type Block struct {
	Type    string
	Content string
	Attrs   map[string]string // valueless attributes map to ""
	Lang    string

	// StartLine is the zero-based line of the first content byte.
	StartLine int
}

// Has reports whether the block carries the attribute.
func (b *Block) Has(attr string) bool {
	_, ok := b.Attrs[attr]
	return ok
}

// StyleBlock is a <style> block.
type StyleBlock struct {
	Block
	Scoped bool
}

// Descriptor is the parsed form of a single-file component.
type Descriptor struct {
	Filename     string
	Source       string
	Template     *Block
	Script       *Block
	ScriptSetup  *Block
	Styles       []StyleBlock
	CustomBlocks []Block

	// Slotted is set when a scoped style targets slot content.
	Slotted bool
}

// SyntaxError is a malformed single-file component.
type SyntaxError struct {
	Filename string
	Line     int // 1-based
	Column   int // 1-based
	Msg      string
}

func (e *SyntaxError) Error() string {
	name := e.Filename
	if name == "" {
		name = "anonymous.vue"
	}
	return fmt.Sprintf("%s:%d:%d: %s", name, e.Line, e.Column, e.Msg)
}

// Parse splits source into its top-level blocks.
//
// Parsing continues past recoverable problems (duplicate blocks) so that all
// of them are reported; an unterminated element stops the scan.
func Parse(source string, opts ParseOptions) (*Descriptor, []error) {
	p := &parser{src: source, filename: opts.Filename}
	d := &Descriptor{Filename: opts.Filename, Source: source}

	for _, b := range p.blocks() {
		switch b.Type {
		case "template":
			if d.Template != nil {
				p.errorf(b.offset, "single file component can contain only one <template> element")
				continue
			}
			d.Template = &b.Block
		case "script":
			if b.Has("setup") {
				if d.ScriptSetup != nil {
					p.errorf(b.offset, "single file component can contain only one <script setup> element")
					continue
				}
				d.ScriptSetup = &b.Block
				continue
			}
			if d.Script != nil {
				p.errorf(b.offset, "single file component can contain only one <script> element")
				continue
			}
			d.Script = &b.Block
		case "style":
			d.Styles = append(d.Styles, StyleBlock{Block: b.Block, Scoped: b.Has("scoped")})
		default:
			d.CustomBlocks = append(d.CustomBlocks, b.Block)
		}
	}

	if d.Template == nil && d.Script == nil && d.ScriptSetup == nil && len(p.errs) == 0 {
		p.errorf(0, "at least one <template> or <script> is required in a single file component")
	}

	for _, s := range d.Styles {
		if s.Scoped && usesSlotted(s.Content) {
			d.Slotted = true
			break
		}
	}

	return d, p.errs
}

type parser struct {
	src      string
	filename string
	errs     []error
}

type rawBlock struct {
	Block
	offset int
}

func (p *parser) errorf(offset int, format string, args ...any) {
	line, col := position(p.src, offset)
	p.errs = append(p.errs, &SyntaxError{
		Filename: p.filename,
		Line:     line,
		Column:   col,
		Msg:      fmt.Sprintf(format, args...),
	})
}

func (p *parser) blocks() []rawBlock {
	var out []rawBlock
	s := newMarkupScanner(p.src, 0)
	for {
		switch s.next() {
		case html.ErrorToken:
			if s.truncated() {
				p.truncated(s)
			}
			return out
		case html.CommentToken:
			if !commentClosed(s.raw) {
				p.errorf(s.off, "unterminated comment")
				return out
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			b, ok := p.block(s)
			if !ok {
				return out
			}
			out = append(out, b)
		}
	}
}

// block reads the element whose start tag is the current token. Nested
// <template> elements are balanced; other blocks close at the first
// matching end tag.
func (p *parser) block(s *markupScanner) (rawBlock, bool) {
	start := s.off
	name, attrs := s.tag()

	b := rawBlock{offset: start}
	b.Type = name
	b.Attrs = make(map[string]string, len(attrs))
	for _, a := range attrs {
		b.Attrs[a.name] = a.value
	}
	b.Lang = b.Attrs["lang"]

	contentStart := s.end
	b.StartLine = strings.Count(p.src[:contentStart], "\n")
	if s.tt == html.SelfClosingTagToken {
		return b, true
	}

	nested := strings.EqualFold(name, "template")
	depth := 1
	for {
		switch s.next() {
		case html.ErrorToken:
			if s.truncated() {
				p.truncated(s)
			} else {
				p.errorf(start, "element <%s> is missing end tag", name)
			}
			return b, false
		case html.StartTagToken:
			if nested && strings.EqualFold(s.tagName(), name) {
				depth++
			}
		case html.EndTagToken:
			if !strings.EqualFold(s.tagName(), name) {
				continue
			}
			if depth--; nested && depth > 0 {
				continue
			}
			b.Content = p.src[contentStart:s.off]
			return b, true
		}
	}
}

func (p *parser) truncated(s *markupScanner) {
	name, end := s.truncatedTag()
	if end {
		p.errorf(s.off, "element <%s> has an unterminated end tag", name)
		return
	}
	p.errorf(s.off, "element <%s> has an unterminated start tag", name)
}

// position converts a byte offset to a 1-based line and column.
func position(src string, offset int) (line, col int) {
	if offset > len(src) {
		offset = len(src)
	}
	before := src[:offset]
	line = strings.Count(before, "\n") + 1
	col = offset - strings.LastIndexByte(before, '\n')
	return line, col
}
