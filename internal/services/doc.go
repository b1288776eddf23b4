// Package services defines shared utilities consumed by the reconciliation
// engine, catalog adapters, and import drivers.
//
// Key responsibilities:
//   - Context helpers that stamp user IDs, batch run identifiers, and source
//     names for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent per-item outcomes (skipped vs failed vs aborted run).
//
// Use these helpers when wiring new drivers or adapters so operational
// behaviour (error handling, observability) stays uniform across the pipeline.
package services
