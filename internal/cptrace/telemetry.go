// Package cptrace wires OpenTelemetry tracing. Tracing is gated on the
// telemetry.otlp_endpoint configuration value: refactord calls Init only
// when that value is non-empty, and spans started before (or without)
// Init go to a no-op tracer. StartProvisionStep and StartAgentRelayCall
// are span helpers for Provisioner steps and Agent Relay calls; neither
// package calls them, so the spans the server emits come from the
// otelhttp handler that wraps the HTTP surface.
package cptrace

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the tracer the span helpers below start spans on. It defaults to otel's no-op implementation until Init is called.
var Tracer trace.Tracer = otel.Tracer("refactorctl")

// Init configures the OTLP-over-gRPC exporter and sets Tracer to a real
// span-emitting implementation. Returns a shutdown func to flush on exit.
func Init(ctx context.Context, serviceName, otelEndpoint string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(otelEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	Tracer = otel.Tracer(serviceName)

	log.Printf("cptrace: exporting to %s", otelEndpoint)

	return func(shutdownCtx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(shutdownCtx, 5*time.Second)
		defer cancel()
		return provider.Shutdown(shutdownCtx)
	}, nil
}

// StartProvisionStep is a convenience wrapper spanning one step of the
// Provisioner's sequence (create, start, clone, health-wait, transition).
func StartProvisionStep(ctx context.Context, projectID, step string) (context.Context, trace.Span) {
	return Tracer.Start(ctx, "provision."+step, trace.WithAttributes(
		attribute.String("project_id", projectID),
	))
}

// StartAgentRelayCall spans one outbound call from the Agent Relay to
// the in-container agent.
func StartAgentRelayCall(ctx context.Context, projectID, endpoint string) (context.Context, trace.Span) {
	return Tracer.Start(ctx, "agent_relay."+endpoint, trace.WithAttributes(
		attribute.String("project_id", projectID),
		attribute.String("endpoint", endpoint),
	))
}
