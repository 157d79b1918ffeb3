// Command brane is a test-harness CLI for the bytecode compiler and VM: it
// runs BraneScript/Bakery source files, prints their compiled
// disassembly, or drops into a line-at-a-time REPL. It is not the
// package-archive/Docker-build brane-cli the platform ships; this tool
// only exercises the pipeline in this module.
package main

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/kristofer/brane/cmd/brane/cmd"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		With().Timestamp().Logger()

	root := cmd.NewRootCmd(logger)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
