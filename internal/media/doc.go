// Package media defines the shared value types that flow through the
// reconciliation pipeline: raw entries produced by import drivers, candidate
// records produced by catalog adapters, and the batch counters returned to
// callers.
//
// Nothing in this package performs I/O. Candidates and raw entries have no
// persistent identity; they exist only while an entry moves through
// reconciliation and are discarded once a library row has (or has not) been
// written.
package media
