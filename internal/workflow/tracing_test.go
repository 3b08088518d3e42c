package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otelcodes "go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestOperationsOpenSpans(t *testing.T) {
	e := newTestEnv(t, 1, 1)
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	svc, err := New(&Config{
		Store:     e.store,
		Publisher: e.rec,
		Clock:     e.svc.clock,
		Tracer:    tp.Tracer(tracerName),
	})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.Create(ctx, e.admin.ID, e.request(e.dims[0], e.u1.ID, false))
	require.NoError(t, err)
	_, err = svc.Create(ctx, e.admin.ID, e.request(e.dims[0], e.u2.ID, false))
	require.Error(t, err)

	spans := exp.GetSpans()
	require.Len(t, spans, 2)
	for _, span := range spans {
		assert.Equal(t, "workflow.Create", span.Name)
	}
	assert.Equal(t, otelcodes.Unset, spans[0].Status.Code)
	assert.Equal(t, otelcodes.Error, spans[1].Status.Code)
	assert.NotEmpty(t, spans[1].Events, "error should be recorded on the span")
}
