package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" authorization=Bearer abc , x-tenant=escrow,broken,=skip")
	require.Equal(t, map[string]string{
		"authorization": "Bearer abc",
		"x-tenant":      "escrow",
	}, headers)
}

func TestInitRequiresServiceName(t *testing.T) {
	_, err := Init(context.Background(), Config{})
	require.Error(t, err)
}

func TestInitWithoutExporters(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "escrow-test"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	_, span := Tracer("test").Start(context.Background(), "noop")
	span.End()
}

func TestSamplerRatioBounds(t *testing.T) {
	require.Contains(t, sampler(0).Description(), "AlwaysOnSampler")
	require.Contains(t, sampler(2).Description(), "AlwaysOnSampler")
	require.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestShutdownAllJoinsErrors(t *testing.T) {
	var order []int
	stop := func(i int, err error) ShutdownFunc {
		return func(context.Context) error {
			order = append(order, i)
			return err
		}
	}
	err := shutdownAll(context.Background(), []ShutdownFunc{
		stop(1, errors.New("first")),
		stop(2, nil),
		stop(3, errors.New("third")),
	})
	require.Equal(t, []int{3, 2, 1}, order)
	require.ErrorContains(t, err, "first")
	require.ErrorContains(t, err, "third")
}
