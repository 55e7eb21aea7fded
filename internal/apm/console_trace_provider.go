package apm

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ConsoleTraceProvider prints spans to stdout; also doubles as the empty
// provider when constructed without an exporter.
type ConsoleTraceProvider struct {
	tp *sdktrace.TracerProvider
}

// NewEmptyTraceProvider returns a no-op provider.
func NewEmptyTraceProvider() TraceProvider {
	return ConsoleTraceProvider{}
}

// NewConsoleTraceProvider installs a pretty-printing stdout provider.
func NewConsoleTraceProvider() TraceProvider {
	exporter, _ := stdouttrace.New(stdouttrace.WithPrettyPrint())
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)

	return ConsoleTraceProvider{tp}
}

// Stop implements TraceProvider.
func (ctp ConsoleTraceProvider) Stop() error {
	return nil
}
