package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
)

func TestInitTracerProvider(t *testing.T) {
	var buf bytes.Buffer

	tp, err := InitTracerProvider("", stdouttrace.WithWriter(&buf))
	require.NoError(t, err)

	// Package tracers resolve through the global provider.
	_, span := otel.Tracer("go.pilab.hu/authcore/grant").Start(context.Background(), "token.issue")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, tp.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "token.issue")
	assert.Contains(t, buf.String(), defaultServiceName)
}
