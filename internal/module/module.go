package module

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wenmine/tiny-engine/internal/ir"
	"github.com/wenmine/tiny-engine/internal/jslex"
)

// Scheme prefixes every reference minted by a host in this repository.
const Scheme = "blob:"

// Publisher turns module text into a reference.
type Publisher interface {
	// Publish stores source and returns a fresh reference.
	// Publishing the same text twice returns two distinct references.
	Publish(ctx context.Context, source string) (ir.Reference, error)
}

// Loader resolves a reference into a linked module graph.
type Loader interface {
	Load(ctx context.Context, ref ir.Reference) (*Module, error)
}

// Host is the full publish/load/release capability.
type Host interface {
	Publisher
	Loader

	// Release revokes a reference. Releasing an unknown or already
	// released reference is a no-op.
	Release(ctx context.Context, ref ir.Reference) error
}

// Module is a loaded, linked module.
type Module struct {
	Reference ir.Reference
	Source    string
	Imports   []Import
}

// Import is one static import statement of a module.
type Import struct {
	Clause    string  // e.g. "script", "{ render }"
	Specifier string  // raw specifier between the quotes
	Export    bool    // an export ... from re-export
	Module    *Module // nil for externals
}

// External reports whether the import names a host-provided module.
func (i Import) External() bool {
	return i.Module == nil
}

// ImportByClause returns the first import with the given clause.
func (m *Module) ImportByClause(clause string) (Import, bool) {
	for _, imp := range m.Imports {
		if imp.Clause == clause {
			return imp, true
		}
	}
	return Import{}, false
}

// ErrNotFound is returned by fetch functions for unknown references.
var ErrNotFound = errors.New("reference not found")

// ErrReleased is returned by fetch functions for revoked references.
var ErrReleased = errors.New("reference released")

// LoadError reports a reference that could not be loaded.
type LoadError struct {
	Reference ir.Reference // module being loaded
	Specifier string       // offending import specifier, if any
	Err       error
}

func (e *LoadError) Error() string {
	if e.Specifier != "" {
		return fmt.Sprintf("load %s: import %q: %v", e.Reference, e.Specifier, e.Err)
	}
	return fmt.Sprintf("load %s: %v", e.Reference, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// ParseImports extracts the static imports and re-exports of source in
// source order:
//
//	import script from 'blob:x/1'
//	import { render }
//	  from "blob:x/2"
//	import 'blob:x/3'
//	export { default as C } from 'blob:x/4'
//
// Dynamic import() and import.meta are not module dependencies and are
// skipped. Clause whitespace is collapsed to single spaces.
func ParseImports(source string) ([]Import, error) {
	s := jslex.NewScanner(source)
	var imports []Import
	prev := jslex.Token{}
	for {
		tok := s.Next()
		switch {
		case tok.EOF():
			if err := s.Err(); err != nil {
				return nil, fmt.Errorf("scan imports: %w", err)
			}
			return imports, nil
		case prev.Is(".", "?."):
		case tok.Is("import"):
			if imp, ok := scanClause(s, false); ok {
				imports = append(imports, imp)
			}
		case tok.Is("export"):
			if imp, ok := scanClause(s, true); ok {
				imports = append(imports, imp)
			}
		}
		prev = tok
	}
}

// scanClause reads the rest of an import or export-from statement. On a
// statement that names no module it leaves the offending token unread and
// reports false.
func scanClause(s *jslex.Scanner, export bool) (Import, bool) {
	var clause strings.Builder
	depth := 0
	for first := true; ; first = false {
		tok := s.Next()
		switch {
		case tok.EOF(), tok.Is(";"):
			s.Unread(tok)
			return Import{}, false
		case first && !export && tok.IsString():
			return Import{Specifier: tok.Unquote()}, true
		case first && (tok.Is("(", ".") || export && !tok.Is("*", "{")):
			s.Unread(tok)
			return Import{}, false
		case depth == 0 && !first && tok.Is("import", "export"):
			s.Unread(tok)
			return Import{}, false
		case depth == 0 && tok.Is("from") && clause.Len() > 0:
			source := s.Next()
			if source.IsString() {
				return Import{Clause: clause.String(), Specifier: source.Unquote(), Export: export}, true
			}
			s.Unread(source)
		case tok.Is("{"):
			depth++
		case tok.Is("}"):
			depth--
			if depth < 0 {
				s.Unread(tok)
				return Import{}, false
			}
		}
		if tok.Space && clause.Len() > 0 {
			clause.WriteByte(' ')
		}
		clause.WriteString(tok.Text)
	}
}

// IsReference reports whether a specifier is a host reference.
func IsReference(specifier string) bool {
	return strings.HasPrefix(specifier, Scheme)
}

// IsRelative reports whether a specifier is a path relative to a source file.
func IsRelative(specifier string) bool {
	return strings.HasPrefix(specifier, "./") ||
		strings.HasPrefix(specifier, "../") ||
		strings.HasPrefix(specifier, "/")
}

// FetchFunc returns the published text behind a reference.
type FetchFunc func(ctx context.Context, ref ir.Reference) (string, error)

// Link loads ref and every reference it imports, depth first.
//
// Each reference is fetched once per Link call; import cycles resolve to the
// already-allocated Module. A relative specifier or a reference the fetch
// function cannot resolve fails the whole load with a *LoadError naming the
// module that contained the bad import.
func Link(ctx context.Context, ref ir.Reference, fetch FetchFunc) (*Module, error) {
	l := &linker{fetch: fetch, seen: make(map[ir.Reference]*Module)}
	return l.link(ctx, ref)
}

type linker struct {
	fetch FetchFunc
	seen  map[ir.Reference]*Module
}

func (l *linker) link(ctx context.Context, ref ir.Reference) (*Module, error) {
	if m, ok := l.seen[ref]; ok {
		return m, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, &LoadError{Reference: ref, Err: err}
	}

	source, err := l.fetch(ctx, ref)
	if err != nil {
		return nil, &LoadError{Reference: ref, Err: err}
	}

	m := &Module{Reference: ref, Source: source}
	l.seen[ref] = m

	imports, err := ParseImports(source)
	if err != nil {
		return nil, &LoadError{Reference: ref, Err: err}
	}
	for _, imp := range imports {
		switch {
		case IsReference(imp.Specifier):
			dep, err := l.link(ctx, ir.Reference(imp.Specifier))
			if err != nil {
				var le *LoadError
				if errors.As(err, &le) && le.Specifier == "" {
					// Attribute a direct fetch failure to the importing module.
					return nil, &LoadError{Reference: ref, Specifier: imp.Specifier, Err: le.Err}
				}
				return nil, err
			}
			imp.Module = dep
		case IsRelative(imp.Specifier):
			return nil, &LoadError{
				Reference: ref,
				Specifier: imp.Specifier,
				Err:       fmt.Errorf("unresolved relative import"),
			}
		}
		m.Imports = append(m.Imports, imp)
	}

	return m, nil
}
