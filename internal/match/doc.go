// Package match scores catalog candidates against a target title and picks
// the best one. It is pure: no I/O, no clock, no configuration reads, which
// keeps every heuristic unit-testable without network access.
//
// Two scales coexist. Title+year disambiguation between films and series runs
// on a 100-point scale (exact title 100, year bonuses, a fixed margin before
// switching type). Fuzzy re-enrichment uses a 0-1 sequence similarity with
// small year bonuses. Both scales surface a rationale alongside the score so
// rejected matches can be explained from logs.
package match
