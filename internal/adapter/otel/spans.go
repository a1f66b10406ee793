package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "pixelgate"

// StartDispatchSpan starts a span for one conversion dispatch attempt.
func StartDispatchSpan(ctx context.Context, tenantKey, eventName string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("tenant.key", tenantKey),
			attribute.String("event.name", eventName),
		),
	)
}

// StartWebhookSpan starts a span for processing one platform webhook.
func StartWebhookSpan(ctx context.Context, topic, tenantKey string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "webhook",
		trace.WithAttributes(
			attribute.String("webhook.topic", topic),
			attribute.String("tenant.key", tenantKey),
		),
	)
}
