// Package normalize canonicalizes raw identifying strings into search-ready
// forms: diary titles with year suffixes, ISBNs pasted with separators, and
// platform URLs hiding the actual catalog identifier.
//
// Everything here is a pure function. Malformed input is rejected by
// returning the zero value rather than guessed at; normalized titles are used
// only for matching, never for display.
package normalize
