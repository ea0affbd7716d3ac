package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartEnd_RecordsStatus(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	p := install(sdktrace.WithSpanProcessor(rec), "scanforge-test")
	defer func() { require.NoError(t, p.Shutdown(context.Background())) }()

	tr := Tracer("orchestrator")
	_, ok := Start(context.Background(), tr, "adapter.run", attribute.String("scanner", "bandit"))
	End(ok, nil)
	_, bad := Start(context.Background(), tr, "adapter.run", attribute.String("scanner", "semgrep"))
	End(bad, errors.New("crashed"))

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "crashed", spans[1].Status().Description)
	assert.Len(t, spans[1].Events(), 1, "error recorded as span event")
	assert.Contains(t, spans[0].Attributes(), attribute.String("scanner", "bandit"))
}

func TestStart_NilTracerUsesGlobal(t *testing.T) {
	ctx, span := Start(context.Background(), nil, "noop")
	assert.NotNil(t, ctx)
	End(span, nil)
}

func TestShutdown_NilProvider(t *testing.T) {
	var p *Provider
	assert.NoError(t, p.Shutdown(context.Background()))
}
