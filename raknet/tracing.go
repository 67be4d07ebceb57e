package raknet

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Default tracer name, resolved from the global OpenTelemetry tracer provider.
const tracerName = "github.com/DaylightNebula/RakNet/raknet"

func defaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// Starts the span covering a connection from the offline handshake until it is closed.
func startSessionSpan(tracer trace.Tracer, c *Connection, now time.Time) trace.Span {
	_, span := tracer.Start(
		context.Background(),
		"raknet.session",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithTimestamp(now),
		trace.WithAttributes(
			attribute.String("raknet.peer", c.peerAddr.String()),
			attribute.Int64("raknet.client_guid", c.guid),
			attribute.Int("raknet.mtu", c.mtu),
		),
	)
	return span
}

// Ends the session span. Timeouts and protocol errors mark the span as failed.
func endSessionSpan(span trace.Span, reason DisconnectReason, now time.Time) {
	span.SetAttributes(attribute.String("raknet.disconnect_reason", reason.String()))

	switch reason {
	case ReasonTimeout, ReasonProtocolError:
		span.SetStatus(codes.Error, reason.String())
	default:
		span.SetStatus(codes.Ok, "")
	}

	span.End(trace.WithTimestamp(now))
}
