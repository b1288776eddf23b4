// Package config loads and validates the TOML configuration that drives the
// reconciliation pipeline: catalog credentials and endpoints, matching
// thresholds, per-source rate budgets, and batch pacing.
//
// Load starts from Default(), overlays the user's file, expands home-relative
// paths, then validates. An enabled integration with missing credentials is a
// load-time error so batches never start half-configured.
package config
