package sfc

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// StyleOptions configures CompileStyle.
type StyleOptions struct {
	ID             string
	Source         string
	Filename       string
	Scoped         bool
	PreprocessLang string
}

// StyleResult is compiled CSS.
type StyleResult struct {
	Code string
}

// CompileStyle compiles one style block.
//
// Scoped styles get the scope attribute appended to the last compound of
// every selector. :deep(x) stops scoping at the point it appears,
// :slotted(x) scopes x with the slot attribute and :global(x) is left
// unscoped. Rules nested in @media, @supports, @container, @layer and
// @document are rewritten recursively; other at-rules pass through.
func CompileStyle(opts StyleOptions) (*StyleResult, error) {
	switch opts.PreprocessLang {
	case "", "css", "postcss":
	default:
		return nil, fmt.Errorf("%s: style preprocessor %q is not available", opts.Filename, opts.PreprocessLang)
	}
	if !opts.Scoped {
		return &StyleResult{Code: opts.Source}, nil
	}

	toks, err := lexCSS(opts.Source)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opts.Filename, err)
	}
	code, err := scopeRules(toks, ScopeAttr(opts.ID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opts.Filename, err)
	}
	return &StyleResult{Code: code}, nil
}

var nestingAtRules = map[string]bool{
	"@media": true, "@supports": true, "@container": true, "@layer": true, "@document": true,
}

// cssToken is a lexed token and its byte offset in the style source.
type cssToken struct {
	tt     css.TokenType
	text   string
	offset int
}

func lexCSS(src string) ([]cssToken, error) {
	l := css.NewLexer(parse.NewInputString(src))
	var toks []cssToken
	off := 0
	for {
		tt, data := l.Next()
		switch tt {
		case css.ErrorToken:
			if err := l.Err(); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("offset %d: %w", off, err)
			}
			return toks, nil
		case css.BadStringToken:
			return nil, fmt.Errorf("unterminated string at offset %d", off)
		}
		toks = append(toks, cssToken{tt: tt, text: string(data), offset: off})
		off += len(data)
	}
}

func scopeRules(toks []cssToken, scope string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(toks); {
		if isTrivia(toks[i]) {
			i++
			continue
		}

		start := i
		end := ruleEnd(toks, start)
		switch {
		case end == len(toks):
			return "", fmt.Errorf("unterminated rule %q", strings.TrimSpace(joinTokens(toks[start:])))
		case toks[end].tt == css.RightBraceToken:
			return "", fmt.Errorf("unexpected '}' at offset %d", toks[end].offset)
		case toks[end].tt == css.SemicolonToken:
			b.WriteString(strings.TrimSpace(joinTokens(toks[start : end+1])))
			b.WriteByte('\n')
			i = end + 1
			continue
		}

		prelude := trimTrivia(withoutComments(toks[start:end]))
		if len(prelude) == 0 {
			return "", fmt.Errorf("rule at offset %d has no selector", toks[end].offset)
		}
		closeAt := matchingBrace(toks, end)
		if closeAt < 0 {
			return "", fmt.Errorf("unbalanced '{' at offset %d", toks[end].offset)
		}
		body := toks[end+1 : closeAt]
		i = closeAt + 1

		switch head := prelude[0]; {
		case head.tt == css.AtKeywordToken && nestingAtRules[strings.ToLower(head.text)]:
			inner, err := scopeRules(body, scope)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "%s {\n%s}\n", joinTokens(prelude), inner)
		case head.tt == css.AtKeywordToken:
			fmt.Fprintf(&b, "%s {%s}\n", joinTokens(prelude), joinTokens(body))
		default:
			fmt.Fprintf(&b, "%s {%s}\n", scopeSelectorList(prelude, scope), joinTokens(body))
		}
	}
	return b.String(), nil
}

// ruleEnd returns the index of the first '{', ';' or '}' outside
// parentheses and brackets, or len(toks).
func ruleEnd(toks []cssToken, from int) int {
	depth := 0
	for i := from; i < len(toks); i++ {
		switch t := toks[i]; {
		case opensGroup(t):
			depth++
		case closesGroup(t):
			depth--
		case depth == 0 && (t.tt == css.LeftBraceToken || t.tt == css.SemicolonToken || t.tt == css.RightBraceToken):
			return i
		}
	}
	return len(toks)
}

// matchingBrace returns the index of the '}' closing the '{' at open, or -1.
func matchingBrace(toks []cssToken, open int) int {
	depth := 0
	for i := open; i < len(toks); i++ {
		switch toks[i].tt {
		case css.LeftBraceToken:
			depth++
		case css.RightBraceToken:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func scopeSelectorList(list []cssToken, scope string) string {
	var selectors []string
	depth, last := 0, 0
	for i, t := range list {
		switch {
		case opensGroup(t):
			depth++
		case closesGroup(t):
			depth--
		case depth == 0 && t.tt == css.CommaToken:
			selectors = append(selectors, scopeSelector(list[last:i], scope))
			last = i + 1
		}
	}
	selectors = append(selectors, scopeSelector(list[last:], scope))
	return strings.Join(selectors, ", ")
}

func scopeSelector(sel []cssToken, scope string) string {
	sel = trimTrivia(sel)
	attr := "[" + scope + "]"

	if before, inner, after, ok := pseudoFunc(sel, "global"); ok {
		return strings.TrimSpace(joinTokens(before) + joinTokens(inner) + joinTokens(after))
	}
	if _, inner, _, ok := pseudoFunc(sel, "slotted"); ok {
		return scopeLast(inner, "["+scope+"-s]")
	}
	if before, inner, after, ok := pseudoFunc(sel, "deep"); ok {
		return scopeBeforeDeep(before, joinTokens(inner)+joinTokens(after), attr)
	}
	if before, after, ok := deepCombinator(sel); ok {
		return scopeBeforeDeep(before, joinTokens(after), attr)
	}
	return scopeLast(sel, attr)
}

// scopeBeforeDeep scopes the selector part before a deep marker and leaves
// the rest unscoped.
func scopeBeforeDeep(before []cssToken, rest, attr string) string {
	rest = strings.TrimSpace(rest)
	if len(trimTrivia(before)) == 0 {
		return attr + " " + rest
	}
	return scopeLast(before, attr) + " " + rest
}

// pseudoFunc finds the pseudo-class function :name(...) (also written
// ::v-name(...)) in sel and splits sel around it.
func pseudoFunc(sel []cssToken, name string) (before, inner, after []cssToken, ok bool) {
	for i, t := range sel {
		if t.tt != css.FunctionToken || i == 0 || sel[i-1].tt != css.ColonToken {
			continue
		}
		fn := strings.ToLower(strings.TrimSuffix(t.text, "("))
		if fn != name && fn != "v-"+name {
			continue
		}
		start := i - 1
		if start > 0 && sel[start-1].tt == css.ColonToken {
			start--
		}
		depth := 0
		for j := i; j < len(sel); j++ {
			switch {
			case opensGroup(sel[j]):
				depth++
			case closesGroup(sel[j]):
				depth--
				if depth == 0 {
					return sel[:start], trimTrivia(sel[i+1 : j]), sel[j+1:], true
				}
			}
		}
		return nil, nil, nil, false
	}
	return nil, nil, nil, false
}

// deepCombinator finds a ">>>" or "/deep/" combinator in sel.
func deepCombinator(sel []cssToken) (before, after []cssToken, ok bool) {
	delim := func(i int, text string) bool {
		return i < len(sel) && sel[i].tt == css.DelimToken && sel[i].text == text
	}
	for i := range sel {
		switch {
		case delim(i, ">") && delim(i+1, ">") && delim(i+2, ">"):
			return sel[:i], sel[i+3:], true
		case delim(i, "/") && i+2 < len(sel) && sel[i+1].tt == css.IdentToken &&
			strings.EqualFold(sel[i+1].text, "deep") && delim(i+2, "/"):
			return sel[:i], sel[i+3:], true
		}
	}
	return nil, nil, false
}

// scopeLast inserts attr into the last compound selector of sel, before any
// pseudo-class or pseudo-element.
func scopeLast(sel []cssToken, attr string) string {
	sel = trimTrivia(sel)
	start, depth := 0, 0
	for i, t := range sel {
		switch {
		case opensGroup(t):
			depth++
		case closesGroup(t):
			depth--
		case depth == 0 && (t.tt == css.WhitespaceToken || isCombinator(t)):
			start = i + 1
		}
	}

	insert := len(sel)
	depth = 0
	for i := start; i < len(sel) && insert == len(sel); i++ {
		switch t := sel[i]; {
		case opensGroup(t):
			depth++
		case closesGroup(t):
			depth--
		case depth == 0 && t.tt == css.ColonToken:
			insert = i
		}
	}
	return joinTokens(sel[:insert]) + attr + joinTokens(sel[insert:])
}

// usesSlotted reports whether a stylesheet targets slot content.
func usesSlotted(src string) bool {
	toks, err := lexCSS(src)
	if err != nil {
		return false
	}
	_, _, _, ok := pseudoFunc(toks, "slotted")
	return ok
}

func opensGroup(t cssToken) bool {
	return t.tt == css.FunctionToken || t.tt == css.LeftParenthesisToken || t.tt == css.LeftBracketToken
}

func closesGroup(t cssToken) bool {
	return t.tt == css.RightParenthesisToken || t.tt == css.RightBracketToken
}

func isCombinator(t cssToken) bool {
	return t.tt == css.DelimToken && (t.text == ">" || t.text == "+" || t.text == "~")
}

func isTrivia(t cssToken) bool {
	return t.tt == css.WhitespaceToken || t.tt == css.CommentToken
}

func trimTrivia(toks []cssToken) []cssToken {
	for len(toks) > 0 && isTrivia(toks[0]) {
		toks = toks[1:]
	}
	for len(toks) > 0 && isTrivia(toks[len(toks)-1]) {
		toks = toks[:len(toks)-1]
	}
	return toks
}

func withoutComments(toks []cssToken) []cssToken {
	out := make([]cssToken, 0, len(toks))
	for _, t := range toks {
		if t.tt != css.CommentToken {
			out = append(out, t)
		}
	}
	return out
}

func joinTokens(toks []cssToken) string {
	var b strings.Builder
	for _, t := range toks {
		b.WriteString(t.text)
	}
	return b.String()
}
