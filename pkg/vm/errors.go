// Package vm - error handling with stack traces
package vm

import (
	"fmt"
	"strings"
)

// StackFrame captures one call frame at the time a runtime error was
// raised: the callee's name and the instruction pointer within its chunk
// where execution stopped. Bytecode carries no source positions (spec.md
// §6), so unlike a compiler diagnostic this can only name the faulting
// opcode and frame, not a source line (spec.md §7).
type StackFrame struct {
	Name string
	IP   int
	Op   string
}

// RuntimeError is a fatal VM error annotated with the call stack active
// when it was raised.
type RuntimeError struct {
	Message    string
	StackTrace []StackFrame
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)

	if len(e.StackTrace) > 0 {
		b.WriteString("\n\nStack trace:")
		for i := len(e.StackTrace) - 1; i >= 0; i-- {
			frame := e.StackTrace[i]
			b.WriteString(fmt.Sprintf("\n  at %s", frame.Name))
			if frame.Op != "" {
				b.WriteString(fmt.Sprintf(" (%s)", frame.Op))
			}
			b.WriteString(fmt.Sprintf(" [IP: %d]", frame.IP))
		}
	}

	return b.String()
}

func newRuntimeError(message string, stack []StackFrame) *RuntimeError {
	return &RuntimeError{Message: message, StackTrace: stack}
}
