package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newDisasmCmd(indexPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "disasm <file>",
		Short: "Compile a source file and print its bytecode disassembly",
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

			fmt.Print(prog.Chunk.Disassemble())
			return nil
		},
	}
}
