package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/SacredTexts/huly/internal/config"
)

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default procflow.yaml",
		Long: `Write a commented configuration file holding the defaults to the --config
path. An existing file is kept unless --force is set.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(rootOpts, force, cmd)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	return cmd
}

func runInit(opts *RootOptions, force bool, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	path := opts.ConfigPath

	if _, err := os.Stat(path); err == nil && !force {
		return f.Fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("%s already exists (use --force)", path), nil)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return f.Fail(ExitCommandError, ErrCodeWriteFailed, err.Error(), nil)
	}

	if err := os.WriteFile(path, []byte(config.DefaultYAML()), 0o644); err != nil {
		return f.Fail(ExitCommandError, ErrCodeWriteFailed, err.Error(), nil)
	}

	return f.Success(map[string]string{"config": path}, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Wrote %s\n", path)
	})
}
