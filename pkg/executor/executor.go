// Package executor defines the ABI the VM calls out through for every
// external function invocation, log line, and detached-service wait
// (spec.md §4.8), plus two reference implementations used by the VM's own
// tests: LocalExecutor, an in-process stand-in for the ecosystem's "local
// Docker executor", and QueueExecutor, an in-memory stand-in for the
// orchestrated publish-a-Command/await-an-Event executor. Neither talks to
// a real container runtime or message bus; production wiring of either
// kind lives outside this module.
package executor

import (
	"context"
	"fmt"

	"github.com/kristofer/brane/pkg/value"
)

// FunctionMeta identifies the package function an OP_CALL against an
// ExternalFunctionObject is dispatching to. Field names mirror the
// function_meta tuple of spec.md §4.8 exactly.
type FunctionMeta struct {
	Name       string
	Package    string
	Version    string
	Kind       string
	Detached   bool
	Parameters []string
}

// State is a detached service's lifecycle stage, as awaited by
// Executor.WaitUntil and the Service.waitUntilStarted/waitUntilDone
// built-ins (spec.md §4.9).
type State int

const (
	StateStarted State = iota
	StateDone
)

func (s State) String() string {
	switch s {
	case StateStarted:
		return "started"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Executor is the four-operation interface the VM is parametric over
// (spec.md §4.8). Implementations MUST be safe for concurrent use: a
// parallel block runs each child on its own task against the same
// Executor.
type Executor interface {
	// Call blocks until the named external function completes and returns
	// its result. A non-nil error is fatal to the calling VM run.
	Call(ctx context.Context, meta FunctionMeta, args map[string]value.Value, location string) (value.Value, error)

	// Debug, Stderr, and Stdout are non-blocking log hooks; the print
	// built-in writes through Stdout rather than to a fixed stream.
	Debug(text string)
	Stderr(text string)
	Stdout(text string)

	// WaitUntil blocks until the named service reaches state, or ctx is
	// done.
	WaitUntil(ctx context.Context, serviceName string, state State) error
}

// ErrUnknownFunction is returned by both reference executors when no
// handler is registered for the requested package function.
type ErrUnknownFunction struct {
	Package  string
	Function string
}

func (e *ErrUnknownFunction) Error() string {
	return fmt.Sprintf("executor: no handler registered for %s.%s", e.Package, e.Function)
}
