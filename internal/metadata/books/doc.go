// Package books merges two book catalogs into one adapter. Google Books is
// richer for recent printings, Open Library for older editions; neither is
// complete alone, so every lookup queries both and keeps the fields of the
// more complete record (a weighted score that values cover art highest).
//
// Edition substitution is deliberate: when the user's exact printing is
// poorly documented, a better-documented edition wins and the user's literal
// ISBN is preserved on the candidate instead of dropped.
package books
