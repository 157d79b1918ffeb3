package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kristofer/brane/pkg/bytecode"
	"github.com/kristofer/brane/pkg/executor"
	"github.com/kristofer/brane/pkg/packageindex"
	"github.com/kristofer/brane/pkg/value"
	"github.com/kristofer/brane/pkg/vm"
)

func newReplCmd(logger zerolog.Logger, indexPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive, line-at-a-time evaluation loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := loadIndex(*indexPath)
			if err != nil {
				return err
			}
			runRepl(cmd.Context(), logger, idx)
			return nil
		},
	}
}

// runRepl evaluates one line at a time against a single persistent VM and
// heap, the way the teacher's REPL keeps one VM (and one compiler's symbol
// table) alive across inputs. pkg/compiler.Compile allocates a fresh heap
// per call, so each line's chunk is rehomed into the session heap by
// re-serializing its constants through value.ToValue/value.FromValue — the
// same translation pkg/vm.execParallel uses to snapshot globals into a
// child branch's heap — before it runs. That keeps functions and classes
// declared on one line reachable by name from every line after it.
func runRepl(ctx context.Context, logger zerolog.Logger, idx *packageindex.Index) {
	fmt.Println("brane repl")
	fmt.Println("Type an expression or statement, or :quit to exit.")

	exec := executor.NewLocalExecutor(logger)
	machine := vm.New(value.NewHeap(), idx, exec)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("brane> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case ":quit", ":exit":
			return
		}

		if err := evalLine(ctx, machine, idx, line); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func evalLine(ctx context.Context, machine *vm.VM, idx *packageindex.Index, line string) error {
	prog, err := compileProgram("<repl>", line, idx)
	if err != nil {
		return err
	}

	sessionHeap := machine.Heap()
	constants := make([]value.Slot, len(prog.Chunk.Constants))
	for i, c := range prog.Chunk.Constants {
		constants[i] = value.FromValue(sessionHeap, value.ToValue(prog.Heap, c))
	}
	chunk := bytecode.Chunk{Code: prog.Chunk.Code, Constants: constants}

	result, err := machine.Run(ctx, chunk)
	if err != nil {
		return err
	}
	if result.Kind != value.KindUnit {
		fmt.Println(result.String())
	}
	return nil
}
