// Package instrumentation provides OpenTelemetry instrumentation for the
// mcp-oauth-client library.
//
// Instrumentation is off by default: without a configured provider every meter
// and tracer is a no-op.
//
// # Quick Start
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "my-mcp-client",
//		ServiceVersion: "1.0.0",
//		Enabled:        true,
//		TracerProvider: tp,
//		MeterProvider:  mp,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	inst.RegisterShutdown(tp.Shutdown)
//	defer inst.Shutdown(context.Background())
//
//	client, err := oauth.New(&oauth.Config{Instrumentation: inst, ...})
//
// # Available Metrics
//
// Fetch:
//   - oauth.fetch.blocked{policy, reason} - Fetches refused by URL policy
//   - oauth.fetch.rate_limited - Fetches rejected by the per-host limiter
//
// Discovery:
//   - oauth.discovery.attempts{tier, outcome} - Per-tier discovery attempts
//   - oauth.discovery.duration{found} - Full discovery duration in milliseconds
//
// Token lifecycle:
//   - oauth.token.refreshed{result, rotated} - Refresh attempts
//   - oauth.token.migration_required{source} - Legacy credentials flagged
//   - oauth.refresh.coalesced - Callers that waited on an in-flight refresh
//
// Storage:
//   - storage.operation.total{storage_type, operation, result}
//   - storage.operation.duration{storage_type, operation}
//
// Provider:
//   - provider.api.calls.total{provider, operation, status}
//   - provider.api.duration{provider, operation}
//
// # Traces
//
// Spans are created per layer ("fetch", "discovery", "token", "storage",
// "provider"). Discovery records one span event per tier attempted.
//
// # Security
//
// Token values are never recorded. Attributes carry metadata only: the
// credential source, whether a token rotated, OAuth error codes.
package instrumentation
