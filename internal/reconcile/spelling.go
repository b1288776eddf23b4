package reconcile

import (
	"context"
	"html"
	"net/url"
	"regexp"
	"strings"

	"yaad/internal/media"
	"yaad/internal/metadata/httpx"
)

const duckDuckGoURL = "https://html.duckduckgo.com/html/"

var (
	ddgResultTitleRe = regexp.MustCompile(`class="result__a"[^>]*>([^<]+)<`)
	siteSuffixRe     = regexp.MustCompile(`(?i)\s*[-—–]\s*(?:AlloCiné|IMDB|IMDb|Wikipedia|Wikipédia|TMDB|Film|Série).*$`)
	parenYearRe      = regexp.MustCompile(`\s*\(\d{4}\)\s*`)
)

// speller corrects misspelled titles by reading what a web search thinks the
// user meant. Typos like "Bienvenu a Gattaca" or "Zero dark day" defeat
// catalog search but web search results name the real title.
type speller struct {
	doer     *httpx.Doer
	endpoint string
}

// correct returns a corrected title, or empty when no plausible correction
// was found. A correction identical to the input is reported as empty.
func (s *speller) correct(ctx context.Context, title string, kind media.Type) string {
	typeWord := "film"
	if kind == media.TypeSeries {
		typeWord = "série"
	}

	endpoint := s.endpoint
	if endpoint == "" {
		endpoint = duckDuckGoURL
	}
	params := url.Values{}
	params.Set("q", title+" "+typeWord)
	body, err := s.doer.Get(ctx, endpoint+"?"+params.Encode(), browserHeaders)
	if err != nil {
		return ""
	}

	firstWords := strings.Fields(strings.ToLower(title))
	if len(firstWords) > 2 {
		firstWords = firstWords[:2]
	}

	for _, m := range ddgResultTitleRe.FindAllStringSubmatch(string(body), 10) {
		candidate := html.UnescapeString(strings.TrimSpace(m[1]))
		candidate = siteSuffixRe.ReplaceAllString(candidate, "")
		candidate = strings.TrimSpace(parenYearRe.ReplaceAllString(candidate, " "))
		if len(candidate) <= 2 || len(candidate) >= 100 {
			continue
		}
		if strings.EqualFold(candidate, title) {
			continue
		}
		// A correction must still share vocabulary with the input, or the
		// search found something unrelated.
		lower := strings.ToLower(candidate)
		for _, word := range firstWords {
			if strings.Contains(lower, word) {
				return candidate
			}
		}
	}
	return ""
}
