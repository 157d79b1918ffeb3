package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kristofer/brane/pkg/value"
)

var _ Executor = (*QueueExecutor)(nil)

// Command is one published unit of work: the orchestrated executor's
// analogue of a Kafka/gRPC Command message (spec.md §4.8, §6 "message
// bus"). CorrelationID is the key a later Resolve call must supply to
// unblock the waiting Call.
type Command struct {
	CorrelationID string
	Meta          FunctionMeta
	Args          map[string]value.Value
	Location      string
}

// Event is the resolution of a previously published Command.
type Event struct {
	CorrelationID string
	Result        value.Value
	Err           error
}

// QueueExecutor is an in-memory stand-in for "an orchestrated executor
// that publishes a Command on a message bus and awaits a correlating
// Event" (spec.md §4.8). Commands is a buffered channel a test-side
// consumer drains; that consumer calls Resolve once it has produced the
// matching Event, which unblocks the Call that published it. No real
// message bus is involved — this exercises the suspend/resume contract
// Call's blocking semantics require without standing up Kafka or a gRPC
// planner, both out of scope per spec.md §4.8.
type QueueExecutor struct {
	logger   zerolog.Logger
	Commands chan Command

	pending sync.Map // correlationID (string) -> chan Event

	mu       sync.Mutex
	services map[string]*service
}

// NewQueueExecutor builds a QueueExecutor whose command channel has the
// given buffer size.
func NewQueueExecutor(logger zerolog.Logger, bufferSize int) *QueueExecutor {
	return &QueueExecutor{
		logger:   logger,
		Commands: make(chan Command, bufferSize),
		services: make(map[string]*service),
	}
}

// Call publishes a Command carrying a fresh correlation ID and blocks
// until a consumer calls Resolve with a matching Event, or ctx is done.
func (e *QueueExecutor) Call(ctx context.Context, meta FunctionMeta, args map[string]value.Value, location string) (value.Value, error) {
	correlationID := uuid.New().String()
	waiter := make(chan Event, 1)
	e.pending.Store(correlationID, waiter)
	defer e.pending.Delete(correlationID)

	select {
	case e.Commands <- Command{CorrelationID: correlationID, Meta: meta, Args: args, Location: location}:
	case <-ctx.Done():
		return value.Value{}, ctx.Err()
	}

	select {
	case ev := <-waiter:
		return ev.Result, ev.Err
	case <-ctx.Done():
		return value.Value{}, ctx.Err()
	}
}

// Resolve delivers ev to the Call waiting on ev.CorrelationID. It is an
// error to resolve an ID that has no pending waiter (already resolved, or
// never published).
func (e *QueueExecutor) Resolve(ev Event) error {
	raw, ok := e.pending.Load(ev.CorrelationID)
	if !ok {
		return fmt.Errorf("executor: no pending call for correlation id %q", ev.CorrelationID)
	}
	waiter := raw.(chan Event)
	waiter <- ev
	return nil
}

// RegisterService seeds a service the consumer can later drive through
// Started/Done via ResolveServiceState, for WaitUntil to observe.
func (e *QueueExecutor) RegisterService(identifier string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.services[identifier] = &service{started: make(chan struct{}), done: make(chan struct{})}
}

// ResolveServiceState advances identifier's service to state, closing the
// corresponding gate WaitUntil blocks on.
func (e *QueueExecutor) ResolveServiceState(identifier string, state State) error {
	e.mu.Lock()
	svc, ok := e.services[identifier]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("executor: unknown service %q", identifier)
	}
	switch state {
	case StateStarted:
		closeOnce(svc.started)
	case StateDone:
		closeOnce(svc.done)
	default:
		return fmt.Errorf("executor: unknown service state %v", state)
	}
	return nil
}

func closeOnce(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}

// WaitUntil blocks until identifier's service reaches state, or ctx is
// done.
func (e *QueueExecutor) WaitUntil(ctx context.Context, serviceName string, state State) error {
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
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *QueueExecutor) Debug(text string)  { e.logger.Debug().Msg(text) }
func (e *QueueExecutor) Stderr(text string) { e.logger.Error().Msg(text) }
func (e *QueueExecutor) Stdout(text string) { e.logger.Info().Msg(text) }
