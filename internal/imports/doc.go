// Package imports adapts foreign media histories to the reconciliation
// pipeline.
//
// Each driver turns one source format into raw entries: Letterboxd diary
// CSV exports, RSS feeds and scraped watchlist pages, Notion database
// exports with mixed-locale headers, and the Kobo and Jellyfin platform
// syncs. The shared Runner walks entries in source order, one at a time,
// pacing between items so external catalogs are not hammered. Per-item
// failures are counted and the batch continues; only configuration errors
// abort a run. Committed work survives cancellation.
package imports
