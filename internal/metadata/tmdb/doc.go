// Package tmdb adapts The Movie Database API to the pipeline's candidate
// shape. Movie and TV are distinct search namespaces; both are queried for
// diary-style sources that do not distinguish them.
//
// Search responses keep the configured locale's title alongside the original
// title so the scorer can match either spelling. Detail lookups add genres,
// runtime, and directing credits, which search-level responses omit.
package tmdb
