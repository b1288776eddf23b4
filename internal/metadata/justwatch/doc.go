// Package justwatch fetches streaming deep links from the catalog's
// unofficial GraphQL API. A lookup first resolves the catalog's own URL path
// for a TMDB title, then asks for the offers under that path. Offers are
// keyed by TMDB watch-provider ID so user provider preferences apply
// directly.
//
// Availability data is decoration, not reconciliation input. The client
// never returns an error; anything that goes wrong produces an empty map.
package justwatch
