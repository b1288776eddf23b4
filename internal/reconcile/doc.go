// Package reconcile resolves raw entries from foreign sources into enriched
// canonical candidates by orchestrating the catalog adapters. The engine
// owns the search strategy: URL-as-title recovery, normalization, dual
// movie/tv search for sources that do not distinguish them, year-less retry,
// a spelling-correction fallback, and the final scoring pass that picks one
// candidate.
//
// Per-entry failures are classified so drivers can report them without
// aborting a batch: not found, detail fetch failed, or upstream unavailable.
package reconcile
