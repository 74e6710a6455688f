package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/wenmine/tiny-engine/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string // blockrender.yaml / blockrender.hcl; looked up in the working directory when empty
	Database   string // overrides config database
	Origin     string // overrides config origin
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the blockrender CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "blockrender",
		Short: "blockrender - runtime block compiler",
		Long: `Compile single-file component blocks into loadable modules.

Blocks reference each other through ./<Name>.vue imports. Children are
compiled first, their module references substituted into the parent,
and every compiled block is cached for the life of the process.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default: blockrender.yaml or blockrender.hcl if present)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "SQLite database for modules and the compile log (default from config, :memory:)")
	cmd.PersistentFlags().StringVar(&opts.Origin, "origin", "", "origin segment of module references (default from config)")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewLoadCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// LoadConfig reads the config file and applies flag overrides.
// --verbose raises the log level to debug.
func (o *RootOptions) LoadConfig() (*config.Config, error) {
	path := o.ConfigPath
	if path == "" {
		path = config.FindDefault(".")
	}

	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	if o.Database != "" {
		cfg.Database = o.Database
	}
	if o.Origin != "" {
		cfg.Origin = o.Origin
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// logger returns the diagnostic logger for cfg. Logs go to w only when
// --verbose is set, so text and JSON output stay clean.
func (o *RootOptions) logger(cfg *config.Config, w io.Writer) *slog.Logger {
	if !o.Verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return cfg.NewLogger(w)
}
