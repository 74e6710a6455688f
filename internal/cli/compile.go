package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wenmine/tiny-engine/internal/ir"
	"github.com/wenmine/tiny-engine/internal/registry"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // JSON result file path
	CSS    string // style document file path
}

// CompiledBlock is one compiled block in the compile result.
type CompiledBlock struct {
	Name      string       `json:"name"`
	ID        string       `json:"id"`
	ScopeID   ir.ScopeID   `json:"scope_id,omitempty"`
	Reference ir.Reference `json:"reference"`
	Script    ir.Reference `json:"script"`
	Template  ir.Reference `json:"template"`
}

// CompilationResult holds the blocks compiled by one run, in compile order,
// and the resulting style document.
type CompilationResult struct {
	Blocks []CompiledBlock `json:"blocks"`
	CSS    string          `json:"css,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <blocks-dir> [block...]",
		Short: "Compile blocks to module references",
		Long: `Compile the named blocks (all blocks when none are named) from a block
directory. Children compile before their parents and every block compiles
at most once.

The block directory holds <Name>.vue files and an optional blocks.cue or
blocks.yaml manifest.

Examples:
  blockrender compile ./blocks
  blockrender compile ./blocks Card --css card.css
  blockrender compile ./blocks --db ./blocks.db --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the JSON result to a file")
	cmd.Flags().StringVar(&opts.CSS, "css", "", "write the style document to a file")

	return cmd
}

func runCompile(opts *CompileOptions, blocksDir string, names []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	loadResult, loadErrors := registry.LoadDir(blocksDir, registry.LoadModeCollectAll)
	if len(loadErrors) > 0 {
		return outputLoadErrors(formatter, loadErrors)
	}
	formatter.VerboseLog("Found %d block file(s) in %s", loadResult.FileCount, blocksDir)

	ctx := commandContext(cmd)
	rt, err := newRuntime(ctx, opts.RootOptions, formatter.GetErrWriter())
	if err != nil {
		return err
	}
	defer rt.Close()

	reg := loadResult.Registry
	if len(names) == 0 {
		names = reg.Names()
	}
	for _, name := range names {
		formatter.VerboseLog("Compiling block: %s", name)
	}

	if err := rt.engine.Warm(ctx, reg, names...); err != nil {
		_ = formatter.Error(errorCode(err), err.Error(), nil)
		return WrapExitError(ExitFailure, "compilation failed", err)
	}

	result, err := buildCompilationResult(ctx, rt)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read compile log", err)
	}

	if opts.Output != "" {
		if err := writeJSONFile(opts.Output, result); err != nil {
			_ = formatter.Error(registry.ErrCodeGeneric, fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitCommandError, "writing output file", err)
		}
	}
	if opts.CSS != "" {
		if err := os.WriteFile(opts.CSS, []byte(result.CSS), 0644); err != nil {
			_ = formatter.Error(registry.ErrCodeGeneric, fmt.Sprintf("writing css file: %v", err), nil)
			return WrapExitError(ExitCommandError, "writing css file", err)
		}
	}

	return outputCompileSuccess(formatter, result, opts)
}

func buildCompilationResult(ctx context.Context, rt *runtime) (*CompilationResult, error) {
	records, err := rt.compiled(ctx)
	if err != nil {
		return nil, err
	}

	result := &CompilationResult{
		Blocks: make([]CompiledBlock, 0, len(records)),
		CSS:    rt.document.CSS(),
	}
	for _, rec := range records {
		result.Blocks = append(result.Blocks, CompiledBlock{
			Name:      rec.Block,
			ID:        rec.ID,
			ScopeID:   rec.ScopeID,
			Reference: rec.Reference,
			Script:    rec.Script,
			Template:  rec.Template,
		})
	}
	return result, nil
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, opts *CompileOptions) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Compiled %d block(s)\n\n", len(result.Blocks))
	for _, b := range result.Blocks {
		if b.ScopeID != "" {
			fmt.Fprintf(w, "  %s: %s (%s)\n", b.Name, b.Reference, b.ScopeID)
		} else {
			fmt.Fprintf(w, "  %s: %s\n", b.Name, b.Reference)
		}
	}
	if len(result.Blocks) > 0 {
		fmt.Fprintln(w)
	}

	if opts.Output != "" {
		fmt.Fprintf(w, "Wrote compile result to %s\n", opts.Output)
	}
	if opts.CSS != "" {
		fmt.Fprintf(w, "Wrote style document to %s\n", opts.CSS)
	}
	return nil
}

// outputLoadErrors outputs registry load errors. These are command-level
// errors (exit code 2).
func outputLoadErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			cliErrors[i] = loadCLIError(err)
		}

		response := CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors, // Include all errors in data
		}
		if err := encodeJSON(formatter.Writer, response); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("loading blocks failed with %d error(s)", len(errs)))
	}

	fmt.Fprintf(formatter.Writer, "%s Loading blocks failed\n", markFail)
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %v\n", err)
	}
	fmt.Fprintln(formatter.Writer)

	return NewExitError(ExitCommandError, fmt.Sprintf("loading blocks failed with %d error(s)", len(errs)))
}

func loadCLIError(err error) CLIError {
	var loadErr *registry.LoadError
	if errors.As(err, &loadErr) {
		return CLIError{Code: loadErr.Code, Message: loadErr.Message}
	}
	return CLIError{Code: registry.ErrCodeGeneric, Message: err.Error()}
}

// writeJSONFile writes v to a file as indented JSON.
func writeJSONFile(filename string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute (tests).
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
