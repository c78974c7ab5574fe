package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/SacredTexts/huly/internal/config"
	"github.com/SacredTexts/huly/internal/logging"
)

// RootOptions holds the global flags and the loaded configuration.
type RootOptions struct {
	Verbose     bool
	Format      string // "json" | "text"
	ConfigPath  string
	Database    string
	Definitions string
	Actor       string

	// Config is set by the root command before any subcommand runs.
	Config *config.Config
}

// annotationNoConfig marks commands that run before a config file exists.
const annotationNoConfig = "procflow/no-config"

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the procflow command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "procflow",
		Short: "procflow - transactional processes for collaborative documents",
		Long: `procflow runs card processes inside the document transaction pipeline.

Edits submitted through the gate start executions, fire transitions and
request checkpoints in the same atomic bundle as the edit itself. Committed
steps can be rolled back with compensating transactions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output and debug logging")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVarP(&opts.ConfigPath, "config", "c", config.DefaultFile, "config file")
	flags.StringVar(&opts.Database, "db", "", "SQLite database (overrides config)")
	flags.StringVar(&opts.Definitions, "definitions", "", "CUE definitions directory (overrides config)")
	flags.StringVar(&opts.Actor, "actor", "procflow", "account recorded as modified_by")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewExecutionsCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewCompleteCommand(opts))
	cmd.AddCommand(NewRollbackCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// setup validates the global flags, loads the config file, applies flag
// overrides and installs the default logger. An explicit --config must
// exist; the default one is optional.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	if !isValidFormat(o.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}

	if _, ok := cmd.Annotations[annotationNoConfig]; ok {
		o.Config = config.Default()
		logging.Install(o.Config.Log.Level, o.Config.Log.Format)
		return nil
	}

	cfg, err := config.Load(o.ConfigPath, cmd.Flags().Changed("config"))
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}
	if o.Database != "" {
		cfg.Database = o.Database
	}
	if o.Definitions != "" {
		cfg.Definitions = o.Definitions
	}
	o.Config = cfg

	level := cfg.Log.Level
	if o.Verbose {
		level = "debug"
	}
	logging.Install(level, cfg.Log.Format)
	return nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
