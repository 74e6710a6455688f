package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wenmine/tiny-engine/internal/engine"
	"github.com/wenmine/tiny-engine/internal/module"
	"github.com/wenmine/tiny-engine/internal/registry"
)

// LoadOptions holds flags for the load command.
type LoadOptions struct {
	*RootOptions
	Page    string // page id for page-level css
	PageCSS string // css file registered under Page
}

// LoadResult is the output of the load command.
type LoadResult struct {
	Block      string            `json:"block"`
	Components int               `json:"components"`
	Root       *module.Component `json:"root"`
	Styles     []string          `json:"styles"`
	CSS        string            `json:"css,omitempty"`
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "load <blocks-dir> <block>",
		Short: "Compile and load a block into a component tree",
		Long: `Compile a block with its children, load the resulting module and
instantiate it. Prints the component tree and the attached style sheets.

Examples:
  blockrender load ./blocks Card
  blockrender load ./blocks Card --page home --page-css home.css
  blockrender load ./blocks Card --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Page, "page", "", "page id for --page-css")
	cmd.Flags().StringVar(&opts.PageCSS, "page-css", "", "css file registered as page-level styles")

	return cmd
}

func runLoad(opts *LoadOptions, blocksDir, name string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if opts.PageCSS != "" && opts.Page == "" {
		return NewExitError(ExitCommandError, "--page-css requires --page")
	}

	loadResult, loadErrors := registry.LoadDir(blocksDir, registry.LoadModeFailFast)
	if len(loadErrors) > 0 {
		return outputLoadErrors(formatter, loadErrors)
	}

	block, ok := loadResult.Registry.Lookup(name)
	if !ok {
		err := &engine.UnknownBlockError{Name: name}
		_ = formatter.Error(errorCode(err), err.Error(), map[string]any{"blocks": loadResult.Registry.Names()})
		return WrapExitError(ExitFailure, "load failed", err)
	}

	// Cancel an in-flight compile on Ctrl-C.
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, opts.RootOptions, formatter.GetErrWriter())
	if err != nil {
		return err
	}
	defer rt.Close()

	if opts.PageCSS != "" {
		css, err := os.ReadFile(opts.PageCSS)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read page css", err)
		}
		rt.styles.RegisterPage(opts.Page, string(css))
		formatter.VerboseLog("Registered page styles: %s", rt.styles.PageKey(opts.Page))
	}

	formatter.VerboseLog("Loading block: %s", name)
	out, err := rt.engine.LoadBlock(ctx, block, loadResult.Registry)
	if err != nil {
		_ = formatter.Error(errorCode(err), err.Error(), nil)
		return WrapExitError(ExitFailure, "load failed", err)
	}

	root, ok := out.(*module.Component)
	if !ok {
		return WrapExitError(ExitFailure, "load failed", fmt.Errorf("unexpected module result %T", out))
	}

	result := &LoadResult{
		Block:      name,
		Components: root.Count(),
		Root:       root,
		Styles:     rt.styles.Keys(),
		CSS:        rt.document.CSS(),
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	return outputLoadText(formatter.Writer, result)
}

func outputLoadText(w io.Writer, result *LoadResult) error {
	fmt.Fprintf(w, "Loaded %s: %d component(s)\n\n", result.Block, result.Components)
	writeComponent(w, result.Root, 1)
	fmt.Fprintln(w)

	if len(result.Styles) > 0 {
		fmt.Fprintf(w, "Styles: %s\n", strings.Join(result.Styles, ", "))
	}
	return nil
}

func writeComponent(w io.Writer, c *module.Component, depth int) {
	indent := strings.Repeat("  ", depth)
	line := fmt.Sprintf("%s%s %s", indent, c.File, c.Reference)
	if c.ScopeID != "" {
		line += " [" + string(c.ScopeID) + "]"
	}
	fmt.Fprintln(w, line)
	if len(c.Externals) > 0 {
		fmt.Fprintf(w, "%s  imports: %s\n", indent, strings.Join(c.Externals, ", "))
	}
	for _, child := range c.Children {
		writeComponent(w, child, depth+1)
	}
}
