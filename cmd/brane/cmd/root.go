package cmd

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the brane root command, wiring logger into every
// subcommand through its RunE closures.
func NewRootCmd(logger zerolog.Logger) *cobra.Command {
	var indexPath string

	root := &cobra.Command{
		Use:           "brane",
		Short:         "Compile and execute BraneScript/Bakery programs",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVar(&indexPath, "index", "",
		"path to a YAML package index (required for import/pattern resolution)")

	root.AddCommand(newRunCmd(logger, &indexPath))
	root.AddCommand(newDisasmCmd(&indexPath))
	root.AddCommand(newReplCmd(logger, &indexPath))

	return root
}
