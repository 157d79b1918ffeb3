package executor_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/brane/pkg/executor"
	"github.com/kristofer/brane/pkg/value"
)

func TestLocalExecutorCallDispatchesRegisteredHandler(t *testing.T) {
	e := executor.NewLocalExecutor(zerolog.Nop())
	e.Register("math", "dbl", func(ctx context.Context, args map[string]value.Value) (value.Value, error) {
		return value.IntegerValue(args["n"].Int * 2), nil
	})

	meta := executor.FunctionMeta{Name: "dbl", Package: "math", Parameters: []string{"n"}}
	result, err := e.Call(context.Background(), meta, map[string]value.Value{"n": value.IntegerValue(3)}, "local")
	require.NoError(t, err)
	assert.Equal(t, int64(6), result.Int)
}

func TestLocalExecutorCallMissingArgumentFails(t *testing.T) {
	e := executor.NewLocalExecutor(zerolog.Nop())
	e.Register("math", "dbl", func(ctx context.Context, args map[string]value.Value) (value.Value, error) {
		return value.IntegerValue(args["n"].Int * 2), nil
	})

	meta := executor.FunctionMeta{Name: "dbl", Package: "math", Parameters: []string{"n"}}
	_, err := e.Call(context.Background(), meta, map[string]value.Value{}, "local")
	assert.Error(t, err)
}

func TestLocalExecutorCallUnknownFunctionFails(t *testing.T) {
	e := executor.NewLocalExecutor(zerolog.Nop())
	meta := executor.FunctionMeta{Name: "missing", Package: "math"}
	_, err := e.Call(context.Background(), meta, nil, "local")
	require.Error(t, err)
	var notFound *executor.ErrUnknownFunction
	assert.ErrorAs(t, err, &notFound)
}

func TestLocalExecutorDetachedCallReturnsServiceAndWaits(t *testing.T) {
	e := executor.NewLocalExecutor(zerolog.Nop())
	release := make(chan struct{})
	e.Register("docker", "run", func(ctx context.Context, args map[string]value.Value) (value.Value, error) {
		<-release
		return value.IntegerValue(42), nil
	})

	meta := executor.FunctionMeta{Name: "run", Package: "docker", Detached: true}
	svc, err := e.Call(context.Background(), meta, map[string]value.Value{}, "local")
	require.NoError(t, err)
	require.Equal(t, value.ValueInstance, svc.Kind)
	assert.Equal(t, "Service", svc.ClassName)
	identifier := svc.Props["identifier"].Str
	require.NotEmpty(t, identifier)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.WaitUntil(ctx, identifier, executor.StateStarted))

	close(release)
	require.NoError(t, e.WaitUntil(ctx, identifier, executor.StateDone))
}

func TestLocalExecutorWaitUntilUnknownServiceFails(t *testing.T) {
	e := executor.NewLocalExecutor(zerolog.Nop())
	err := e.WaitUntil(context.Background(), "nonexistent", executor.StateStarted)
	assert.Error(t, err)
}
