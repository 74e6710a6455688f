package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// Compile stages reported by CompileError.
const (
	StageScript   = "script"
	StageTemplate = "template"
	StageStyle    = "style"
	StagePublish  = "publish"
)

// ParseError reports a block whose source could not be parsed.
// It is fatal for the block: nothing is published or cached.
type ParseError struct {
	Block string
	File  string
	Errs  []error
}

func (e *ParseError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("parse block %q (%s): %s", e.Block, e.File, strings.Join(msgs, "; "))
}

// Unwrap exposes the individual parser errors to errors.Is/As.
func (e *ParseError) Unwrap() []error {
	return e.Errs
}

// CompileError reports a fragment that failed to compile or publish.
type CompileError struct {
	Block string
	Stage string
	Err   error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile block %q: %s: %v", e.Block, e.Stage, e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// IsParseError reports whether err is or wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsCompileError reports whether err is or wraps a *CompileError.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}
