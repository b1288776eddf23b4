// Package cache provides the process-wide TTL cache shared by catalog
// adapters. Entries are keyed by (namespace, key) so a whole namespace, or a
// user-scoped prefix within one, can be invalidated after library mutations.
//
// Three standard TTL tiers cover the observed volatility of catalog data:
// search results churn quickly, detail records are stable for hours, and
// provider/offer listings barely move within a day.
package cache
