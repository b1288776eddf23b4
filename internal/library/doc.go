// Package library persists each user's media collection in SQLite and
// deduplicates incoming entries against it.
//
// The store keeps one row per work per user. Works carry an external catalog
// id when reconciliation found one, and a database-level partial unique index
// on (user_id, type, external_id) is the final authority on duplicates. The
// upsert service layers two matching passes on top of that index, merges
// catalog metadata without disturbing user-authored fields, and resolves the
// duplicate-row situations that arise when the same work is imported twice
// under different spellings.
package library
