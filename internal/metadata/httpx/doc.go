// Package httpx carries the outbound HTTP plumbing shared by every catalog
// adapter: bounded timeouts, the per-source rate gate, a circuit breaker per
// source, and uniform error classification.
//
// Adapters stay total functions from the engine's point of view: they catch
// these typed errors at their boundary and surface empty results. The typed
// errors exist so "empty because not found" and "empty because the upstream
// fell over" stay distinguishable in logs.
package httpx
