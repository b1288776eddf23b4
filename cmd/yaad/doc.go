// Command yaad imports, syncs, and maintains a personal media library. It
// reconciles film, series, book, and video histories from Letterboxd, Notion,
// Kobo, and Jellyfin against external catalogs and stores them in SQLite.
package main
