// Package jslex scans script source into significant tokens.
//
// It wraps the tdewolff JavaScript lexer with byte offsets, a one-token
// pushback and the division/regular-expression decision the lexer leaves to
// its caller. Whitespace and comments are skipped; Token.Space records that
// some preceded a token.
package jslex

import (
	"errors"
	"io"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/js"
)

// Token is one significant token.
type Token struct {
	Type   js.TokenType
	Text   string
	Offset int  // byte offset of Text in the scanned source
	Space  bool // whitespace or a comment precedes the token
}

// End returns the offset just past the token.
func (t Token) End() int {
	return t.Offset + len(t.Text)
}

// EOF reports whether the token marks the end of input (or a lexing error).
func (t Token) EOF() bool {
	return t.Type == js.ErrorToken
}

// IsString reports whether the token is a quoted string literal.
func (t Token) IsString() bool {
	return t.Type == js.StringToken
}

// Unquote returns the text between a string literal's quotes.
// Escape sequences are kept as written.
func (t Token) Unquote() string {
	if len(t.Text) < 2 {
		return ""
	}
	return t.Text[1 : len(t.Text)-1]
}

// Is reports whether the token text is one of texts.
func (t Token) Is(texts ...string) bool {
	for _, s := range texts {
		if t.Text == s {
			return true
		}
	}
	return false
}

// Word reports whether the token is an identifier or keyword.
func (t Token) Word() bool {
	if t.Text == "" || t.IsString() {
		return false
	}
	c := t.Text[0]
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' || c == '$' || c >= 0x80
}

// Scanner yields the significant tokens of a script.
type Scanner struct {
	l      *js.Lexer
	off    int
	prev   Token
	pushed []Token
}

// NewScanner returns a scanner over src.
func NewScanner(src string) *Scanner {
	return &Scanner{l: js.NewLexer(parse.NewInputString(src))}
}

// Next returns the next significant token. At the end of input, and after
// a lexing error, it returns a token for which EOF reports true.
func (s *Scanner) Next() Token {
	if n := len(s.pushed); n > 0 {
		tok := s.pushed[n-1]
		s.pushed = s.pushed[:n-1]
		s.prev = tok
		return tok
	}

	space := false
	for {
		start := s.off
		tt, data := s.l.Next()
		switch tt {
		case js.ErrorToken:
			return Token{Type: js.ErrorToken, Offset: start}
		case js.WhitespaceToken, js.LineTerminatorToken, js.CommentToken, js.CommentLineTerminatorToken:
			s.off += len(data)
			space = true
			continue
		}
		if text := string(data); (text == "/" || text == "/=") && ExpectsOperand(s.prev) {
			tt, data = s.l.RegExp()
			if tt == js.ErrorToken {
				return Token{Type: js.ErrorToken, Offset: start}
			}
		}
		tok := Token{Type: tt, Text: string(data), Offset: start, Space: space}
		s.off = tok.End()
		s.prev = tok
		return tok
	}
}

// Unread pushes tok back; the next call to Next returns it again.
func (s *Scanner) Unread(tok Token) {
	s.pushed = append(s.pushed, tok)
}

// Err returns the lexing error that ended the scan, or nil at a clean end
// of input.
func (s *Scanner) Err() error {
	if err := s.l.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// operandKeywords are the keywords an expression may follow.
var operandKeywords = map[string]bool{
	"return": true, "typeof": true, "instanceof": true, "in": true, "of": true,
	"new": true, "delete": true, "void": true, "throw": true, "case": true,
	"do": true, "else": true, "yield": true, "await": true,
}

// ExpectsOperand reports whether an expression may start after prev: a '/'
// after it starts a regular expression rather than a division, and a line
// break after it cannot end a statement.
func ExpectsOperand(prev Token) bool {
	switch {
	case prev.Text == "":
		return true
	case prev.Word():
		return operandKeywords[prev.Text]
	}
	if c := prev.Text[0]; c >= '0' && c <= '9' || c == '.' && len(prev.Text) > 1 {
		return false // numeric literal
	}
	switch prev.Text[len(prev.Text)-1] {
	case ')', ']', '}', '\'', '"', '`':
		return false
	}
	return true
}
