// Package ratelimit enforces the per-source outbound request budget shared by
// every catalog adapter in the process.
//
// Each source name maps to a token bucket plus a minimum inter-call interval
// floor. Adapters call Wait before every outbound request; acquiring budget
// may suspend the caller, which is the only cross-batch shared mutable state
// in the pipeline.
package ratelimit
