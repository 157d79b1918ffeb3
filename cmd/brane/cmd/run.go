package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kristofer/brane/pkg/executor"
	"github.com/kristofer/brane/pkg/value"
	"github.com/kristofer/brane/pkg/vm"
)

func newRunCmd(logger zerolog.Logger, indexPath *string) *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Parse, resolve, compile, and execute a source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filename := args[0]
			data, err := os.ReadFile(filename)
			if err != nil {
				return err
			}

			idx, err := loadIndex(*indexPath)
			if err != nil {
				return err
			}

			prog, err := compileProgram(filename, string(data), idx)
			if err != nil {
				return err
			}

			exec := executor.NewLocalExecutor(logger)
			machine := vm.New(prog.Heap, idx, exec)
			if debug {
				vm.NewDebugger(machine).Enable()
			}

			result, err := machine.Run(cmd.Context(), prog.Chunk)
			if err != nil {
				return fmt.Errorf("runtime error: %w", err)
			}
			logger.Debug().Str("result", result.String()).Msg("program finished")
			if result.Kind != value.KindUnit {
				fmt.Println(result.String())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "pause before every instruction in the interactive debugger")
	return cmd
}
