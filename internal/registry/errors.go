package registry

import (
	"fmt"

	"cuelang.org/go/cue/token"
)

// Error code constants - shared with CLI output.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeScanError     = "E002" // Directory scan error
	ErrCodeNoBlocks      = "E003" // No blocks found
	ErrCodeLoadFailed    = "E004" // Manifest parse failed
	ErrCodeNotFound      = "E005" // Path not found
	ErrCodeBuildFailed   = "E006" // Manifest value or block entry invalid
	ErrCodeReadFailed    = "E007" // Block file read error
	ErrCodeEngineVersion = "E008" // Manifest requires a newer engine
)

// LoadError represents an error that occurred during registry loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func loadErrorf(code, format string, args ...any) *LoadError {
	return &LoadError{Code: code, Message: fmt.Sprintf(format, args...)}
}
