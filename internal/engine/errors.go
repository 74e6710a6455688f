package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wenmine/tiny-engine/internal/compiler"
	"github.com/wenmine/tiny-engine/internal/ir"
)

// ErrorCode categorizes engine failures for callers that report them
// (CLI output, harness assertions).
type ErrorCode string

const (
	// ErrCodeParse indicates malformed block source.
	ErrCodeParse ErrorCode = "PARSE_ERROR"

	// ErrCodeCompile indicates a fragment failed to compile or publish.
	ErrCodeCompile ErrorCode = "COMPILE_ERROR"

	// ErrCodeUnknownBlock indicates a child name missing from the registry.
	ErrCodeUnknownBlock ErrorCode = "UNKNOWN_BLOCK"

	// ErrCodeModuleLoad indicates a published reference failed to load or run.
	ErrCodeModuleLoad ErrorCode = "MODULE_LOAD"

	// ErrCodeCycle indicates a block re-entered itself during resolution.
	ErrCodeCycle ErrorCode = "CYCLE_DETECTED"

	// ErrCodeInternal covers everything else (e.g. context cancellation).
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// UnknownBlockError reports a child name that is not in the registry.
// Parent is empty when a root name was requested directly.
type UnknownBlockError struct {
	Parent string
	Name   string
}

func (e *UnknownBlockError) Error() string {
	if e.Parent == "" {
		return fmt.Sprintf("unknown block %q", e.Name)
	}
	return fmt.Sprintf("block %q references unknown block %q", e.Parent, e.Name)
}

// ModuleLoadError reports a published reference that could not be loaded
// or whose entry behavior failed.
type ModuleLoadError struct {
	Reference ir.Reference
	Err       error
}

func (e *ModuleLoadError) Error() string {
	return fmt.Sprintf("load module %s: %v", e.Reference, e.Err)
}

func (e *ModuleLoadError) Unwrap() error {
	return e.Err
}

// CycleError reports a block reached again through its own children.
// Path starts and ends with the repeated block.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("block cycle: %s", strings.Join(e.Path, " -> "))
}

// IsUnknownBlock returns true if err is or wraps an *UnknownBlockError.
func IsUnknownBlock(err error) bool {
	var ue *UnknownBlockError
	return errors.As(err, &ue)
}

// IsModuleLoadError returns true if err is or wraps a *ModuleLoadError.
func IsModuleLoadError(err error) bool {
	var me *ModuleLoadError
	return errors.As(err, &me)
}

// IsCycleError returns true if err is or wraps a *CycleError.
func IsCycleError(err error) bool {
	var ce *CycleError
	return errors.As(err, &ce)
}

// IsParseError returns true if err is or wraps a *compiler.ParseError.
func IsParseError(err error) bool {
	return compiler.IsParseError(err)
}

// Code classifies err. Returns "" for nil.
func Code(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case IsParseError(err):
		return ErrCodeParse
	case compiler.IsCompileError(err):
		return ErrCodeCompile
	case IsUnknownBlock(err):
		return ErrCodeUnknownBlock
	case IsModuleLoadError(err):
		return ErrCodeModuleLoad
	case IsCycleError(err):
		return ErrCodeCycle
	default:
		return ErrCodeInternal
	}
}
