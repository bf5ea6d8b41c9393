/*
Package observability turns lifecycle events into Prometheus metrics and
OpenTelemetry spans.

Both Metrics and Tracing expose Hooks(), which plug into the engine, the
dispatcher and change detection through domain.LifecycleHooks. Combine them
with domain.CombineHooks.
*/
package observability
