package reconcile

import (
	"context"
	"html"
	"regexp"
	"strings"

	"yaad/internal/metadata/httpx"
)

// Diary exports sometimes store a catalog page URL where the title belongs.
// These patterns cover the catalogs observed in real exports.
var (
	allocineURLRe     = regexp.MustCompile(`(?i)(https?://[^\s]*allocine\.fr/(?:film|series)/[^\s]+\.html)`)
	allocineBareURLRe = regexp.MustCompile(`(?i)(https?://[^\s]*allocine\.fr/(?:film|series)/fichefilm[^\s]*cfilm=\d+)`)
	pageTitleRe       = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	metaOGTitleRe     = regexp.MustCompile(`(?i)<meta\s+property="og:title"\s+content="([^"]+)"`)
	wikipediaSuffixRe = regexp.MustCompile(`(?i)\s*[—–-]\s*Wikip[ée]dia.*$`)
	wikipediaQualifRe = regexp.MustCompile(`(?i)\s*\((?:film|série|série télévisée|movie|TV series)\).*$`)
	trailingParenYear = regexp.MustCompile(`\s*\(\d{4}\)\s*$`)
	firstHeadingRe    = regexp.MustCompile(`(?i)<h1[^>]*id="firstHeading"[^>]*>([^<]+)</h1>`)
	allocineHeadingRe = regexp.MustCompile(`(?i)<h1[^>]*class="[^"]*titlebar-title[^"]*"[^>]*>([^<]+)</h1>`)
	allocineEntityRe  = regexp.MustCompile(`data-entity-title="([^"]+)"`)
)

// browserHeaders makes catalog pages serve the same markup a browser gets.
var browserHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "fr-FR,fr;q=0.9,en;q=0.8",
}

// IsURLTitle reports whether the title field actually holds a URL.
func IsURLTitle(title string) bool {
	title = strings.TrimSpace(strings.ToLower(title))
	return strings.HasPrefix(title, "http://") || strings.HasPrefix(title, "https://")
}

// urlTitleResolver scrapes a real title out of a catalog detail page.
type urlTitleResolver struct {
	doer *httpx.Doer
}

// resolve extracts the media title from a supported catalog URL. An empty
// return means the page was unreachable, unparseable, or from an unknown
// site.
func (r *urlTitleResolver) resolve(ctx context.Context, rawURL string) string {
	lower := strings.ToLower(rawURL)
	switch {
	case strings.Contains(lower, "allocine.fr"):
		return r.fromAllocine(ctx, rawURL)
	case strings.Contains(lower, "imdb.com"):
		return r.fromIMDB(ctx, rawURL)
	case strings.Contains(lower, "wikipedia.org"):
		return r.fromWikipedia(ctx, rawURL)
	default:
		return ""
	}
}

func (r *urlTitleResolver) fetch(ctx context.Context, rawURL string) string {
	body, err := r.doer.Get(ctx, rawURL, browserHeaders)
	if err != nil {
		return ""
	}
	return string(body)
}

// fromAllocine handles pages titled "Film Name - Film 2024 - AlloCiné".
func (r *urlTitleResolver) fromAllocine(ctx context.Context, rawURL string) string {
	page := r.fetch(ctx, cleanAllocineURL(rawURL))
	if page == "" {
		return ""
	}
	if m := pageTitleRe.FindStringSubmatch(page); m != nil {
		if title := firstSegment(m[1], " - "); title != "" {
			return title
		}
	}
	if m := metaOGTitleRe.FindStringSubmatch(page); m != nil {
		if title := firstSegment(m[1], " - "); title != "" {
			return title
		}
	}
	if m := allocineHeadingRe.FindStringSubmatch(page); m != nil {
		return html.UnescapeString(strings.TrimSpace(m[1]))
	}
	if m := allocineEntityRe.FindStringSubmatch(page); m != nil {
		return html.UnescapeString(strings.TrimSpace(m[1]))
	}
	return ""
}

// fromIMDB handles pages titled "Movie Name (2024) - IMDb".
func (r *urlTitleResolver) fromIMDB(ctx context.Context, rawURL string) string {
	page := r.fetch(ctx, rawURL)
	if page == "" {
		return ""
	}
	m := pageTitleRe.FindStringSubmatch(page)
	if m == nil {
		return ""
	}
	title := html.UnescapeString(strings.TrimSpace(m[1]))
	title = strings.TrimSuffix(title, " - IMDb")
	title = trailingParenYear.ReplaceAllString(title, "")
	return strings.TrimSpace(title)
}

// fromWikipedia handles pages titled "Le Labyrinthe : La Terre brûlée — Wikipédia".
func (r *urlTitleResolver) fromWikipedia(ctx context.Context, rawURL string) string {
	page := r.fetch(ctx, rawURL)
	if page == "" {
		return ""
	}
	if m := pageTitleRe.FindStringSubmatch(page); m != nil {
		title := html.UnescapeString(strings.TrimSpace(m[1]))
		title = wikipediaSuffixRe.ReplaceAllString(title, "")
		title = wikipediaQualifRe.ReplaceAllString(title, "")
		if title = strings.TrimSpace(title); len(title) > 1 {
			return title
		}
	}
	if m := firstHeadingRe.FindStringSubmatch(page); m != nil {
		title := html.UnescapeString(strings.TrimSpace(m[1]))
		title = wikipediaQualifRe.ReplaceAllString(title, "")
		if title = strings.TrimSpace(title); len(title) > 1 {
			return title
		}
	}
	return ""
}

// cleanAllocineURL strips stray text a spreadsheet cell appended after the
// URL itself.
func cleanAllocineURL(raw string) string {
	if m := allocineURLRe.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	if m := allocineBareURLRe.FindStringSubmatch(raw); m != nil {
		return m[1] + ".html"
	}
	return raw
}

func firstSegment(s, sep string) string {
	title := strings.TrimSpace(strings.SplitN(html.UnescapeString(s), sep, 2)[0])
	if len(title) <= 1 {
		return ""
	}
	return title
}
