package ir

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// BlockDefinition is a named, textual component definition.
//
// Code is single-file-component source. ChildBlocks lists the names of the
// blocks this block imports via ChildPath. A nil ChildBlocks means nothing was
// declared; an empty slice means "declared none". Both resolve the same way.
type BlockDefinition struct {
	Name        string   `json:"name" yaml:"name"`
	Code        string   `json:"code" yaml:"code"`
	ChildBlocks []string `json:"child_blocks,omitempty" yaml:"childBlocks,omitempty"`
	File        string   `json:"file,omitempty" yaml:"file,omitempty"` // declared file name, defaults to <name>.vue
}

// FileName returns the declared file name, or "<name>.vue" when unset.
func (b BlockDefinition) FileName() string {
	if b.File != "" {
		return b.File
	}
	return b.Name + ".vue"
}

// HasChildren reports whether the block declares at least one child.
func (b BlockDefinition) HasChildren() bool {
	return len(b.ChildBlocks) > 0
}

// WithCode returns a copy of the block with its source replaced.
// The child list is copied so the original definition is never aliased.
func (b BlockDefinition) WithCode(code string) BlockDefinition {
	out := b
	out.Code = code
	if b.ChildBlocks != nil {
		out.ChildBlocks = append([]string(nil), b.ChildBlocks...)
	}
	return out
}

// BlockRegistry maps block name to definition. Keys are unique.
// Supplied by the caller per request; the engine never mutates it.
type BlockRegistry map[string]BlockDefinition

// Lookup returns the definition for name.
func (r BlockRegistry) Lookup(name string) (BlockDefinition, bool) {
	b, ok := r[name]
	return b, ok
}

// Names returns the registry keys in sorted order.
func (r BlockRegistry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reference is an opaque, stable handle to a published module.
// The module host decides its shape (e.g. "blob:tiny-engine/<uuid>").
type Reference string

// String implements fmt.Stringer.
func (r Reference) String() string {
	return string(r)
}

// ScopeID correlates a block's template and style compilation.
// Format: "data-v-<id>". Empty when the block has no scoped style.
type ScopeID string

// ScopeIDFor returns the scope attribute for a compiled block id.
func ScopeIDFor(id string) ScopeID {
	return ScopeID("data-v-" + id)
}

// PageStyleKey returns the style registry key for page-level CSS.
func PageStyleKey(pageID string) string {
	return "data-te-page-" + pageID
}

// ChildPath returns the literal path a parent uses to import a child block.
func ChildPath(name string) string {
	return "./" + name + ".vue"
}

// FragmentSet holds the compiled fragments of one block.
// It lives only for the duration of a single compilation.
type FragmentSet struct {
	ScriptCode   string
	ScriptMap    *SourceMap
	TemplateCode string
	TemplateMap  *SourceMap
	StyleCode    string
}

// SourceMap is a revision 3 source map.
type SourceMap struct {
	Version        int      `json:"version"`
	File           string   `json:"file,omitempty"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent,omitempty"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

// NormalizeName NFC-normalises and trims a block name.
// Names that differ only in Unicode composition refer to the same block.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// ValidateName checks that a block name can be used as a ChildPath segment.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("block name is empty")
	}
	if strings.ContainsAny(name, "/\\'\"`") {
		return fmt.Errorf("block name %q contains a path or quote character", name)
	}
	if strings.TrimSpace(name) != name {
		return fmt.Errorf("block name %q has surrounding whitespace", name)
	}
	return nil
}

// childImportPattern matches an import of a sibling block file, e.g.
// `from './B.vue'` or `from "./B.vue"`.
var childImportPattern = regexp.MustCompile(`from\s*['"]\./([^'"/]+)\.vue['"]`)

// ChildImports returns the block names imported via ChildPath in code,
// in first-occurrence order without duplicates.
func ChildImports(code string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range childImportPattern.FindAllStringSubmatch(code, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}
