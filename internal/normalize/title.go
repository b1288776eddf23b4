package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	trailingYearRe = regexp.MustCompile(`\s*\((?:19|20)\d{2}\)\s*$`)
	seasonSuffixRe = regexp.MustCompile(`(?i)\s*[-–—]\s*(?:season|saison)\s*\d+\s*$`)
	shortSeasonRe  = regexp.MustCompile(`(?i)\s+S\d{1,2}\s*$`)
	volumeSuffixRe = regexp.MustCompile(`(?i)\s*[-–—,]?\s*vol(?:\.|ume)?\s*\d+\s*$`)
	separatorRe    = regexp.MustCompile("[:\\-–—_/«»\"“”']+")
	whitespaceRe   = regexp.MustCompile(`\s+`)
)

// Title canonicalizes a raw title for matching. It strips trailing
// parenthetical years and season/volume suffixes, collapses
// punctuation-as-separator to spaces, and squeezes whitespace. Idempotent:
// Title(Title(x)) == Title(x).
func Title(raw string) string {
	title := strings.TrimSpace(raw)
	if title == "" {
		return ""
	}
	title = trailingYearRe.ReplaceAllString(title, "")
	title = seasonSuffixRe.ReplaceAllString(title, "")
	title = shortSeasonRe.ReplaceAllString(title, "")
	title = volumeSuffixRe.ReplaceAllString(title, "")
	title = separatorRe.ReplaceAllString(title, " ")
	title = whitespaceRe.ReplaceAllString(title, " ")
	return strings.TrimSpace(title)
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases a string and strips diacritics so accented and plain
// spellings compare equal ("Amélie" and "Amelie").
func Fold(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	if lowered == "" {
		return ""
	}
	folded, _, err := transform.String(foldTransformer, lowered)
	if err != nil {
		return lowered
	}
	return folded
}

// CompareKey reduces a title to the loosest comparable form: folded,
// normalized, and stripped to letters and digits. Used for equality checks
// where word boundaries do not matter.
func CompareKey(raw string) string {
	folded := Fold(Title(raw))
	var builder strings.Builder
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}
