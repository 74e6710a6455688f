package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wenmine/tiny-engine/internal/compiler"
	"github.com/wenmine/tiny-engine/internal/registry"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Blocks   int                        `json:"blocks"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning    `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <blocks-dir>",
		Short: "Validate blocks without compiling",
		Long: `Validate a block directory without compiling it.

Checks block names, source syntax and child references, and reports
import cycles as warnings. Faster than compile for development feedback.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, blocksDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	loadResult, loadErrors := registry.LoadDir(blocksDir, registry.LoadModeCollectAll)

	// Directory-level failures (not found, no blocks) are command errors.
	if loadResult == nil || len(loadResult.Registry) == 0 {
		if len(loadErrors) == 0 {
			loadErrors = []error{fmt.Errorf("no blocks found in %s", blocksDir)}
		}
		cliErr := loadCLIError(loadErrors[0])
		_ = formatter.Error(cliErr.Code, cliErr.Message, nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", cliErr.Code, cliErr.Message))
	}

	formatter.VerboseLog("Found %d block file(s) in %s", loadResult.FileCount, blocksDir)
	for _, name := range loadResult.Registry.Names() {
		formatter.VerboseLog("Validating block: %s", name)
	}

	result := validateRegistry(loadResult, loadErrors)

	if len(result.Errors) > 0 {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// validateRegistry runs compiler.Validate and cycle analysis, folding
// per-block load errors into the validation errors.
func validateRegistry(loadResult *registry.LoadResult, loadErrors []error) ValidationResult {
	result := ValidationResult{Blocks: len(loadResult.Registry)}

	for _, err := range loadErrors {
		var loadErr *registry.LoadError
		if errors.As(err, &loadErr) {
			line := 0
			if loadErr.Pos.IsValid() {
				line = loadErr.Pos.Line()
			}
			result.Errors = append(result.Errors, compiler.ValidationError{
				Field:   "load",
				Message: loadErr.Message,
				Code:    loadErr.Code,
				Line:    line,
			})
			continue
		}
		result.Errors = append(result.Errors, compiler.ValidationError{
			Field:   "load",
			Message: err.Error(),
			Code:    registry.ErrCodeGeneric,
		})
	}

	result.Errors = append(result.Errors, compiler.Validate(loadResult.Registry)...)
	result.Warnings = compiler.AnalyzeCycles(loadResult.Registry)
	result.Valid = len(result.Errors) == 0
	return result
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	writeWarnings(formatter, result.Warnings)
	fmt.Fprintf(formatter.Writer, "%s All %d block(s) valid\n", markOK, result.Blocks)
	return nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}
		if err := encodeJSON(formatter.Writer, response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintf(formatter.Writer, "%s Validation failed\n", markFail)
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Block != "" {
			if err.Line > 0 {
				fmt.Fprintf(formatter.Writer, "%s line %d\n", err.Block, err.Line)
			} else {
				fmt.Fprintln(formatter.Writer, err.Block)
			}
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}
	writeWarnings(formatter, result.Warnings)

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

func writeWarnings(formatter *OutputFormatter, warnings []compiler.CycleWarning) {
	for _, w := range warnings {
		fmt.Fprintf(formatter.Writer, "warning: %s\n", w.Message)
	}
	if len(warnings) > 0 {
		fmt.Fprintln(formatter.Writer)
	}
}

// ValidateBlocksDir validates all blocks in a directory.
// This is a helper function for external callers.
func ValidateBlocksDir(blocksDir string) (ValidationResult, error) {
	loadResult, loadErrors := registry.LoadDir(blocksDir, registry.LoadModeCollectAll)
	if loadResult == nil {
		if len(loadErrors) > 0 {
			return ValidationResult{}, loadErrors[0]
		}
		return ValidationResult{}, fmt.Errorf("no blocks found in %s", blocksDir)
	}
	return validateRegistry(loadResult, loadErrors), nil
}
