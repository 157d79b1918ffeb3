package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kristofer/brane/pkg/builtins"
	"github.com/kristofer/brane/pkg/value"
)

var _ Executor = (*LocalExecutor)(nil)

// HandlerFunc implements one package function for LocalExecutor.
type HandlerFunc func(ctx context.Context, args map[string]value.Value) (value.Value, error)

// service tracks a detached call's lifecycle so WaitUntil can block a
// caller on either the Started or Done transition.
type service struct {
	started chan struct{}
	done    chan struct{}
	result  value.Value
	err     error
}

// LocalExecutor runs external calls against an in-process table of
// registered Go functions, the stand-in this module uses for the
// ecosystem's local Docker executor (spec.md §4.8). Before dispatching to
// the handler it resolves the call's declared parameters concurrently via
// errgroup, the same parallel-pre-fetch shape oriys-nova's
// internal/executor uses to gather a function's runtime config, layers,
// volumes, and code before acquiring a VM — here the independent pieces
// being gathered are the call's own arguments rather than pool state.
type LocalExecutor struct {
	logger   zerolog.Logger
	handlers map[string]HandlerFunc

	mu       sync.Mutex
	services map[string]*service
}

// NewLocalExecutor builds a LocalExecutor that logs through logger.
func NewLocalExecutor(logger zerolog.Logger) *LocalExecutor {
	return &LocalExecutor{
		logger:   logger,
		handlers: make(map[string]HandlerFunc),
		services: make(map[string]*service),
	}
}

// Register attaches handler as the implementation of pkg's fn function.
func (e *LocalExecutor) Register(pkg, fn string, handler HandlerFunc) {
	e.handlers[handlerKey(pkg, fn)] = handler
}

func handlerKey(pkg, fn string) string { return pkg + "." + fn }

// Call resolves meta's declared parameters out of args concurrently, then
// dispatches to the registered handler. Detached calls run the handler on
// its own goroutine and return a Service value immediately; WaitUntil
// observes its Started/Done transitions.
func (e *LocalExecutor) Call(ctx context.Context, meta FunctionMeta, args map[string]value.Value, location string) (value.Value, error) {
	key := handlerKey(meta.Package, meta.Name)
	handler, ok := e.handlers[key]
	if !ok {
		return value.Value{}, &ErrUnknownFunction{Package: meta.Package, Function: meta.Name}
	}

	resolved, err := e.resolveArguments(ctx, meta, args)
	if err != nil {
		return value.Value{}, err
	}

	e.logger.Debug().Str("function", key).Str("location", location).Msg("dispatching external call")

	if !meta.Detached {
		return handler(ctx, resolved)
	}

	return e.runDetached(ctx, key, handler, resolved), nil
}

// resolveArguments runs one goroutine per declared parameter to confirm it
// is present in args, mirroring the pre-fetch pipeline's errgroup fan-out:
// independent pieces of the call's input are gathered concurrently before
// any execution begins.
func (e *LocalExecutor) resolveArguments(ctx context.Context, meta FunctionMeta, args map[string]value.Value) (map[string]value.Value, error) {
	resolved := make(map[string]value.Value, len(meta.Parameters))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, param := range meta.Parameters {
		param := param
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			v, ok := args[param]
			if !ok {
				return fmt.Errorf("executor: missing argument %q for %s.%s", param, meta.Package, meta.Name)
			}
			mu.Lock()
			resolved[param] = v
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return resolved, nil
}

func (e *LocalExecutor) runDetached(ctx context.Context, key string, handler HandlerFunc, args map[string]value.Value) value.Value {
	identifier := uuid.New().String()
	svc := &service{started: make(chan struct{}), done: make(chan struct{})}

	e.mu.Lock()
	e.services[identifier] = svc
	e.mu.Unlock()

	go func() {
		close(svc.started)
		svc.result, svc.err = handler(ctx, args)
		close(svc.done)
	}()

	return value.Value{
		Kind:      value.ValueInstance,
		ClassName: builtins.ServiceClassName,
		Props: map[string]value.Value{
			"identifier": value.StringValue(identifier),
			"address":    value.StringValue("local://" + key + "/" + identifier),
		},
	}
}

// WaitUntil blocks until the service reaches state, or ctx is done.
func (e *LocalExecutor) WaitUntil(ctx context.Context, serviceName string, state State) error {
	e.mu.Lock()
	svc, ok := e.services[serviceName]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("executor: unknown service %q", serviceName)
	}

	var gate chan struct{}
	switch state {
	case StateStarted:
		gate = svc.started
	case StateDone:
		gate = svc.done
	default:
		return fmt.Errorf("executor: unknown service state %v", state)
	}

	select {
	case <-gate:
		if state == StateDone {
			return svc.err
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *LocalExecutor) Debug(text string)  { e.logger.Debug().Msg(text) }
func (e *LocalExecutor) Stderr(text string) { e.logger.Error().Msg(text) }
func (e *LocalExecutor) Stdout(text string) { e.logger.Info().Msg(text) }
