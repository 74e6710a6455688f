package compiler

import (
	"fmt"
	"strings"

	"github.com/wenmine/tiny-engine/internal/ir"
	"github.com/wenmine/tiny-engine/internal/sfc"
)

// Validation error codes (E100-E199)
const (
	// Registry errors (E100)
	ErrEmptyRegistry = "E100" // registry has no blocks

	// Block definition errors (E101-E109)
	ErrInvalidBlockName = "E101" // name cannot be used as a child path segment
	ErrNameMismatch     = "E102" // definition name differs from registry key
	ErrEmptyCode        = "E103" // block has no source
	ErrBlockSyntax      = "E104" // source does not parse as a single-file component

	// Child reference errors (E110-E119)
	ErrUnknownChild      = "E110" // childBlocks names a block missing from the registry
	ErrDuplicateChild    = "E111" // child listed twice
	ErrUndeclaredChild   = "E112" // source imports ./X.vue but X is not in childBlocks
	ErrUnreferencedChild = "E113" // child declared but its path never appears in source
)

// ValidationError represents a registry validation error.
type ValidationError struct {
	Block   string `json:"block,omitempty"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] %s line %d: %s: %s", e.Code, e.Block, e.Line, e.Field, e.Message)
	}
	if e.Block != "" {
		return fmt.Sprintf("[%s] %s: %s: %s", e.Code, e.Block, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a block registry before compilation.
// Returns all errors found (does not fail-fast), ordered by block name.
//
// Validation is diagnostic only: the engine compiles registries without
// calling it, and reports the same problems lazily as typed errors.
func Validate(registry ir.BlockRegistry) []ValidationError {
	if len(registry) == 0 {
		return []ValidationError{{
			Field:   "blocks",
			Message: "registry contains no blocks",
			Code:    ErrEmptyRegistry,
		}}
	}

	var errs []ValidationError
	for _, key := range registry.Names() {
		errs = append(errs, validateBlock(key, registry[key], registry)...)
	}
	return errs
}

// validateBlock validates one block definition against its registry.
func validateBlock(key string, block ir.BlockDefinition, registry ir.BlockRegistry) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{
			Block:   key,
			Field:   field,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
		})
	}

	// E101: name must be usable in ./<name>.vue
	if err := ir.ValidateName(key); err != nil {
		add("name", ErrInvalidBlockName, "%v", err)
	}

	// E102: key and name agree
	if block.Name != key {
		add("name", ErrNameMismatch, "definition name %q does not match registry key %q", block.Name, key)
	}

	// E103: source is required
	if strings.TrimSpace(block.Code) == "" {
		add("code", ErrEmptyCode, "block source is empty")
	} else if _, perrs := sfc.Parse(block.Code, sfc.ParseOptions{Filename: block.FileName()}); len(perrs) > 0 {
		// E104: source must parse
		for _, perr := range perrs {
			ve := ValidationError{Block: key, Field: "code", Message: perr.Error(), Code: ErrBlockSyntax}
			if se, ok := perr.(*sfc.SyntaxError); ok {
				ve.Message = se.Msg
				ve.Line = se.Line
			}
			errs = append(errs, ve)
		}
	}

	declared := make(map[string]bool, len(block.ChildBlocks))
	for i, child := range block.ChildBlocks {
		field := fmt.Sprintf("childBlocks[%d]", i)

		// E111: duplicate child
		if declared[child] {
			add(field, ErrDuplicateChild, "child %q listed more than once", child)
			continue
		}
		declared[child] = true

		// E110: child must exist
		if _, ok := registry.Lookup(child); !ok {
			add(field, ErrUnknownChild, "unknown child block %q", child)
		}

		// E113: declared child must be referenced
		if !strings.Contains(block.Code, ir.ChildPath(child)) {
			add(field, ErrUnreferencedChild, "child %q is declared but %s never appears in source", child, ir.ChildPath(child))
		}
	}

	// E112: every imported child path must be declared
	for _, name := range ir.ChildImports(block.Code) {
		if !declared[name] {
			add("childBlocks", ErrUndeclaredChild, "source imports %s but %q is not in childBlocks", ir.ChildPath(name), name)
		}
	}

	return errs
}
