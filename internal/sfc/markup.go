package sfc

import (
	"strings"

	"golang.org/x/net/html"
)

// attr is one attribute of a start tag, in source order. Names are
// lower-cased and values have character references decoded.
type attr struct {
	name  string
	value string
}

// markupScanner tokenizes markup with html.Tokenizer and tracks the source
// offset of every token.
type markupScanner struct {
	z   *html.Tokenizer
	src string
	tt  html.TokenType
	raw string // current token as written
	off int    // offset of the current token
	end int    // offset just past the current token
}

// newMarkupScanner starts tokenizing src at offset from.
func newMarkupScanner(src string, from int) *markupScanner {
	return &markupScanner{
		z:   html.NewTokenizer(strings.NewReader(src[from:])),
		src: src,
		off: from,
		end: from,
	}
}

// next advances to the next token. An ErrorToken ends the input.
func (s *markupScanner) next() html.TokenType {
	s.tt = s.z.Next()
	s.off = s.end
	if s.tt == html.ErrorToken {
		s.raw = ""
		return s.tt
	}
	s.raw = string(s.z.Raw())
	s.end += len(s.raw)
	return s.tt
}

// truncated reports whether tokenizing stopped inside an unterminated tag.
func (s *markupScanner) truncated() bool {
	return s.tt == html.ErrorToken && s.off < len(s.src)
}

// truncatedTag describes the unterminated tag at the current offset.
func (s *markupScanner) truncatedTag() (name string, end bool) {
	rest := strings.TrimPrefix(s.src[s.off:], "<")
	if strings.HasPrefix(rest, "/") {
		end = true
		rest = rest[1:]
	}
	if i := strings.IndexAny(rest, " \t\r\n\f/>"); i >= 0 {
		rest = rest[:i]
	}
	return rest, end
}

// tagName returns the current tag's name as written in the source.
func (s *markupScanner) tagName() string {
	name, _ := s.z.TagName()
	prefix := 1
	if s.tt == html.EndTagToken {
		prefix = 2
	}
	return s.raw[prefix : prefix+len(name)]
}

// tag returns the current start tag's name as written and its attributes.
func (s *markupScanner) tag() (string, []attr) {
	lower, more := s.z.TagName()
	name := s.raw[1 : 1+len(lower)]
	var attrs []attr
	for more {
		var key, val []byte
		key, val, more = s.z.TagAttr()
		attrs = append(attrs, attr{name: string(key), value: string(val)})
	}
	return name, attrs
}

// commentClosed reports whether a comment token was terminated.
func commentClosed(raw string) bool {
	if !strings.HasPrefix(raw, "<!--") {
		return strings.HasSuffix(raw, ">")
	}
	return raw == "<!-->" || raw == "<!--->" ||
		len(raw) >= len("<!---->") && (strings.HasSuffix(raw, "-->") || strings.HasSuffix(raw, "--!>"))
}
