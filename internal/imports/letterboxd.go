package imports

import (
	"context"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"yaad/internal/logging"
	"yaad/internal/media"
	"yaad/internal/metadata/httpx"
	"yaad/internal/ratelimit"
	"yaad/internal/services"
)

const letterboxdBaseURL = "https://letterboxd.com"

var (
	posterRe     = regexp.MustCompile(`data-film-slug="([^"]+)"`)
	posterNameRe = regexp.MustCompile(`alt="([^"]+)"`)
)

// Letterboxd reads a member's film history from diary CSV exports, the RSS
// feed, or scraped watchlist pages.
type Letterboxd struct {
	doer        *httpx.Doer
	baseURL     string
	pageCeiling int
	logger      *slog.Logger
}

// LetterboxdOption customizes the driver.
type LetterboxdOption func(*Letterboxd)

// WithLetterboxdBaseURL points the driver at a different host.
func WithLetterboxdBaseURL(baseURL string) LetterboxdOption {
	return func(l *Letterboxd) { l.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithLetterboxdDoer replaces the HTTP client.
func WithLetterboxdDoer(doer *httpx.Doer) LetterboxdOption {
	return func(l *Letterboxd) { l.doer = doer }
}

// NewLetterboxd builds the driver. pageCeiling bounds watchlist pagination.
func NewLetterboxd(pageCeiling int, limiter *ratelimit.Limiter, logger *slog.Logger, opts ...LetterboxdOption) *Letterboxd {
	if logger == nil {
		logger = logging.NewNop()
	}
	if pageCeiling <= 0 {
		pageCeiling = 20
	}
	driver := &Letterboxd{
		baseURL:     letterboxdBaseURL,
		pageCeiling: pageCeiling,
		logger:      logging.NewComponentLogger(logger, "letterboxd"),
	}
	for _, opt := range opts {
		opt(driver)
	}
	if driver.doer == nil {
		driver.doer = httpx.New("letterboxd", 15*time.Second, limiter, logger)
	}
	return driver
}

// ParseDiaryCSV reads a diary or ratings export. Both share the same header
// vocabulary; the ratings export simply lacks the watched date column.
func (l *Letterboxd) ParseDiaryCSV(r io.Reader) ([]media.RawEntry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "letterboxd", "parse csv", "empty export", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := columns["name"]; !ok {
		return nil, services.Wrap(services.ErrValidation, "letterboxd", "parse csv", "missing Name column", nil)
	}

	field := func(record []string, name string) string {
		index, ok := columns[name]
		if !ok || index >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[index])
	}

	var entries []media.RawEntry
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "letterboxd", "parse csv", "malformed row", err)
		}
		name := field(record, "name")
		if name == "" {
			continue
		}

		entry := media.RawEntry{
			Name:     name,
			HintType: media.TypeFilm,
			HintURL:  field(record, "letterboxd uri"),
		}
		if year, err := strconv.Atoi(field(record, "year")); err == nil {
			entry.HintYear = year
		}
		if rating, err := strconv.ParseFloat(field(record, "rating"), 64); err == nil {
			entry.UserRating = media.ClampRating(rating)
		}
		if watched := field(record, "watched date"); watched != "" {
			if date, err := time.Parse("2006-01-02", watched); err == nil {
				entry.ConsumedAt = &date
			}
		}
		if tags := field(record, "tags"); tags != "" {
			for _, tag := range strings.Split(tags, ",") {
				if tag = strings.TrimSpace(tag); tag != "" {
					entry.Tags = append(entry.Tags, tag)
				}
			}
		}
		if isAffirmative(field(record, "rewatch")) {
			entry.Tags = append(entry.Tags, "rewatch")
		}
		if entry.UserRating > 0 || entry.ConsumedAt != nil {
			entry.Status = media.StatusFinished
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func isAffirmative(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "true", "1":
		return true
	}
	return false
}

// rssFeed mirrors the member RSS document. The film fields live in the
// letterboxd namespace but match by local name.
type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title        string `xml:"title"`
	Link         string `xml:"link"`
	FilmTitle    string `xml:"filmTitle"`
	FilmYear     string `xml:"filmYear"`
	MemberRating string `xml:"memberRating"`
	WatchedDate  string `xml:"watchedDate"`
	Rewatch      string `xml:"rewatch"`
}

// ParseRSS reads the member feed. Entries arrive newest first, matching the
// feed's order.
func (l *Letterboxd) ParseRSS(data []byte) ([]media.RawEntry, error) {
	var feed rssFeed
	if err := xml.Unmarshal(data, &feed); err != nil {
		return nil, services.Wrap(services.ErrValidation, "letterboxd", "parse rss", "malformed feed", err)
	}

	var entries []media.RawEntry
	for _, item := range feed.Channel.Items {
		name := strings.TrimSpace(item.FilmTitle)
		if name == "" {
			// List announcements and reviews without film data share the
			// feed; only diary entries carry a film title.
			continue
		}
		entry := media.RawEntry{
			Name:     name,
			HintType: media.TypeFilm,
			HintURL:  strings.TrimSpace(item.Link),
		}
		if year, err := strconv.Atoi(strings.TrimSpace(item.FilmYear)); err == nil {
			entry.HintYear = year
		}
		if rating, err := strconv.ParseFloat(strings.TrimSpace(item.MemberRating), 64); err == nil {
			entry.UserRating = media.ClampRating(rating)
		}
		if watched := strings.TrimSpace(item.WatchedDate); watched != "" {
			if date, err := time.Parse("2006-01-02", watched); err == nil {
				entry.ConsumedAt = &date
			}
		}
		if strings.EqualFold(strings.TrimSpace(item.Rewatch), "yes") {
			entry.Tags = append(entry.Tags, "rewatch")
		}
		if entry.UserRating > 0 || entry.ConsumedAt != nil {
			entry.Status = media.StatusFinished
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// FetchFeed downloads and parses the member RSS feed.
func (l *Letterboxd) FetchFeed(ctx context.Context, username string) ([]media.RawEntry, error) {
	body, err := l.doer.Get(ctx, fmt.Sprintf("%s/%s/rss/", l.baseURL, username), nil)
	if err != nil {
		return nil, err
	}
	return l.ParseRSS(body)
}

// FetchWatchlist scrapes the member's watchlist pages until a page comes back
// empty or the ceiling is reached, deduplicating films by slug.
func (l *Letterboxd) FetchWatchlist(ctx context.Context, username string) ([]media.RawEntry, error) {
	seen := make(map[string]bool)
	var entries []media.RawEntry

	for page := 1; page <= l.pageCeiling; page++ {
		pageURL := fmt.Sprintf("%s/%s/watchlist/page/%d/", l.baseURL, username, page)
		body, err := l.doer.Get(ctx, pageURL, nil)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			// Past the last page some deployments 404 instead of serving
			// an empty grid.
			l.logger.Debug("watchlist pagination stopped", "page", page, "error", err)
			break
		}

		pageEntries := parseWatchlistPage(string(body), seen)
		if len(pageEntries) == 0 {
			break
		}
		entries = append(entries, pageEntries...)
	}

	l.logger.Info("watchlist scraped", "username", username, "films", len(entries))
	return entries, nil
}

// parseWatchlistPage pulls film posters out of a watchlist grid page. Each
// poster carries the slug and the display name in its alt text.
func parseWatchlistPage(page string, seen map[string]bool) []media.RawEntry {
	var entries []media.RawEntry
	for _, block := range strings.Split(page, "<li") {
		slugMatch := posterRe.FindStringSubmatch(block)
		if slugMatch == nil {
			continue
		}
		slug := slugMatch[1]
		if seen[slug] {
			continue
		}
		seen[slug] = true

		name := slugToTitle(slug)
		if nameMatch := posterNameRe.FindStringSubmatch(block); nameMatch != nil {
			name = strings.TrimSpace(nameMatch[1])
		}
		entries = append(entries, media.RawEntry{
			Name:     name,
			HintType: media.TypeFilm,
			HintURL:  letterboxdBaseURL + "/film/" + slug + "/",
			Status:   media.StatusToConsume,
		})
	}
	return entries
}

// slugToTitle rebuilds a readable name from a slug when the poster has no
// alt text. Hyphenated year suffixes stay attached, which is fine for a
// search query.
func slugToTitle(slug string) string {
	return strings.ReplaceAll(slug, "-", " ")
}
