package normalize

import (
	"regexp"
	"strings"
)

// ISBN strips separators from a raw ISBN and validates its length. Only
// 10- and 13-character results (with an optional trailing X checksum) are
// accepted; anything else returns "".
func ISBN(raw string) string {
	var builder strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == 'x' || r == 'X':
			builder.WriteRune('X')
		}
	}
	cleaned := builder.String()
	switch len(cleaned) {
	case 10, 13:
		return cleaned
	default:
		return ""
	}
}

var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:v=|/v/)([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`youtu\.be/([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`/embed/([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`/shorts/([0-9A-Za-z_-]{11})`),
}

var bareVideoIDRe = regexp.MustCompile(`^[0-9A-Za-z_-]{11}$`)

// VideoID extracts the 11-character video identifier from a platform URL, or
// accepts an already-bare ID. Returns "" when no pattern matches.
func VideoID(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if bareVideoIDRe.MatchString(trimmed) {
		return trimmed
	}
	for _, pattern := range videoIDPatterns {
		if match := pattern.FindStringSubmatch(trimmed); match != nil {
			return match[1]
		}
	}
	return ""
}

var tmdbIDRe = regexp.MustCompile(`themoviedb\.org/(movie|tv)/(\d+)`)

// TMDBRef is a movie/TV catalog reference extracted from a URL.
type TMDBRef struct {
	ID   string
	Kind string // "movie" or "tv"
}

// TMDBID extracts a numeric catalog ID and namespace from a detail-page URL.
func TMDBID(raw string) (TMDBRef, bool) {
	match := tmdbIDRe.FindStringSubmatch(strings.TrimSpace(raw))
	if match == nil {
		return TMDBRef{}, false
	}
	return TMDBRef{ID: match[2], Kind: match[1]}, true
}

var letterboxdSlugRe = regexp.MustCompile(`/film/([^/]+)/?`)

// LetterboxdSlug extracts the film slug from a diary URI. Returns "" when the
// URL does not reference a film page.
func LetterboxdSlug(raw string) string {
	match := letterboxdSlugRe.FindStringSubmatch(strings.TrimSpace(raw))
	if match == nil {
		return ""
	}
	return match[1]
}
