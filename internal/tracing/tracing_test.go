package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/multimodal/internal/config"
)

func TestInitTracerDisabled(t *testing.T) {
	tracer, closer, err := InitTracer(config.TracingConfig{Enabled: false})
	require.NoError(t, err)
	defer closer.Close()

	assert.IsType(t, opentracing.NoopTracer{}, tracer)
	span, _ := StartSpan(context.Background(), "noop")
	LogError(span, errors.New("ignored"))
	FinishSpan(span)
}

func TestSpanHelpers(t *testing.T) {
	tracer := mocktracer.New()
	opentracing.SetGlobalTracer(tracer)
	defer opentracing.SetGlobalTracer(opentracing.NoopTracer{})

	parent, ctx := StartSpan(context.Background(), "job.ingest")
	child, _ := StartSpan(ctx, "ingest.audio")
	SetTag(child, "dataset", "clip.db")
	LogError(child, errors.New("decode failed"))
	FinishSpan(child)
	FinishSpan(parent)

	spans := tracer.FinishedSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "ingest.audio", spans[0].OperationName)
	assert.Equal(t, "clip.db", spans[0].Tag("dataset"))
	assert.Equal(t, true, spans[0].Tag("error"))
	require.Len(t, spans[0].Logs(), 1)
	assert.Equal(t, parent.Context().(mocktracer.MockSpanContext).SpanID, spans[0].ParentID)

	// nil spans are ignored
	SetTag(nil, "k", "v")
	LogError(nil, errors.New("x"))
	FinishSpan(nil)
}
