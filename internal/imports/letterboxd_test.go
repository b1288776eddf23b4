package imports

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"yaad/internal/metadata/httpx"
)

const diaryCSV = `Date,Name,Year,Letterboxd URI,Rating,Rewatch,Tags,Watched Date
2024-01-02,Inception,2010,https://boxd.it/1skk,4.5,,mind-benders,2024-01-01
2024-01-05,Fargo,1996,https://boxd.it/29me,5,Yes,,2024-01-04
2024-01-08,Work in Progress,,https://boxd.it/xxxx,,,,
`

func TestParseDiaryCSV(t *testing.T) {
	driver := NewLetterboxd(0, nil, nil)

	entries, err := driver.ParseDiaryCSV(strings.NewReader(diaryCSV))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	first := entries[0]
	if first.Name != "Inception" || first.HintYear != 2010 {
		t.Fatalf("unexpected entry: %+v", first)
	}
	if first.UserRating != 4.5 {
		t.Fatalf("rating mismatch: %v", first.UserRating)
	}
	if first.ConsumedAt == nil || first.ConsumedAt.Format("2006-01-02") != "2024-01-01" {
		t.Fatalf("watched date mismatch: %v", first.ConsumedAt)
	}
	if first.Status != "finished" {
		t.Fatalf("expected finished status, got %q", first.Status)
	}
	if len(first.Tags) != 1 || first.Tags[0] != "mind-benders" {
		t.Fatalf("tags mismatch: %v", first.Tags)
	}

	second := entries[1]
	if len(second.Tags) != 1 || second.Tags[0] != "rewatch" {
		t.Fatalf("rewatch flag not tagged: %v", second.Tags)
	}

	third := entries[2]
	if third.Status == "finished" {
		t.Fatalf("unwatched row should not be finished: %+v", third)
	}
	if third.HintYear != 0 {
		t.Fatalf("missing year should stay zero: %+v", third)
	}
}

func TestParseDiaryCSVRatingsExport(t *testing.T) {
	// The ratings export lacks the Watched Date column.
	csv := "Date,Name,Year,Letterboxd URI,Rating\n2024-01-02,Heat,1995,https://boxd.it/29pq,4\n"
	driver := NewLetterboxd(0, nil, nil)

	entries, err := driver.ParseDiaryCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].UserRating != 4 || entries[0].Status != "finished" {
		t.Fatalf("rating-only row should be finished: %+v", entries[0])
	}
}

func TestParseDiaryCSVMissingNameColumn(t *testing.T) {
	driver := NewLetterboxd(0, nil, nil)
	if _, err := driver.ParseDiaryCSV(strings.NewReader("Date,Rating\n2024-01-02,4\n")); err == nil {
		t.Fatal("expected error for missing Name column")
	}
}

const memberFeed = `<?xml version="1.0" encoding="utf-8"?>
<rss xmlns:letterboxd="https://letterboxd.com" version="2.0">
  <channel>
    <title>Letterboxd - someone</title>
    <item>
      <title>Inception, 2010 - ★★★★½</title>
      <link>https://letterboxd.com/someone/film/inception/</link>
      <letterboxd:watchedDate>2024-02-10</letterboxd:watchedDate>
      <letterboxd:rewatch>No</letterboxd:rewatch>
      <letterboxd:filmTitle>Inception</letterboxd:filmTitle>
      <letterboxd:filmYear>2010</letterboxd:filmYear>
      <letterboxd:memberRating>4.5</letterboxd:memberRating>
    </item>
    <item>
      <title>A list without film data</title>
      <link>https://letterboxd.com/someone/list/favourites/</link>
    </item>
  </channel>
</rss>`

func TestParseRSS(t *testing.T) {
	driver := NewLetterboxd(0, nil, nil)

	entries, err := driver.ParseRSS([]byte(memberFeed))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected the list item filtered out, got %d entries", len(entries))
	}
	entry := entries[0]
	if entry.Name != "Inception" || entry.HintYear != 2010 || entry.UserRating != 4.5 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.ConsumedAt == nil || entry.ConsumedAt.Format("2006-01-02") != "2024-02-10" {
		t.Fatalf("watched date mismatch: %v", entry.ConsumedAt)
	}
}

var posterNames = map[string]string{
	"inception": "Inception",
	"fargo":     "Fargo",
	"heat":      "Heat",
}

func watchlistPage(slugs ...string) string {
	var b strings.Builder
	b.WriteString(`<ul class="poster-list">`)
	for _, slug := range slugs {
		name := posterNames[slug]
		if name == "" {
			name = slug
		}
		fmt.Fprintf(&b, `<li class="poster-container"><div data-film-slug="%s"><img alt="%s"/></div></li>`,
			slug, name)
	}
	b.WriteString(`</ul>`)
	return b.String()
}

func TestFetchWatchlistPaginatesAndDedupes(t *testing.T) {
	pages := map[string]string{
		"/someone/watchlist/page/1/": watchlistPage("inception", "fargo"),
		"/someone/watchlist/page/2/": watchlistPage("fargo", "heat"),
		"/someone/watchlist/page/3/": `<ul class="poster-list"></ul>`,
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, page)
	}))
	defer server.Close()

	driver := NewLetterboxd(10, nil, nil,
		WithLetterboxdBaseURL(server.URL),
		WithLetterboxdDoer(httpx.New("letterboxd", 5*time.Second, nil, nil)))

	entries, err := driver.FetchWatchlist(context.Background(), "someone")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 deduplicated films, got %d", len(entries))
	}
	if entries[0].Name != "Inception" {
		t.Fatalf("alt text should name the film, got %q", entries[0].Name)
	}
	if entries[0].Status != "to_consume" {
		t.Fatalf("watchlist rows are unwatched, got %q", entries[0].Status)
	}
}

func TestFetchWatchlistHonorsPageCeiling(t *testing.T) {
	var served int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served++
		fmt.Fprint(w, watchlistPage(fmt.Sprintf("film-%d", served)))
	}))
	defer server.Close()

	driver := NewLetterboxd(2, nil, nil,
		WithLetterboxdBaseURL(server.URL),
		WithLetterboxdDoer(httpx.New("letterboxd", 5*time.Second, nil, nil)))

	entries, err := driver.FetchWatchlist(context.Background(), "someone")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if served != 2 {
		t.Fatalf("ceiling ignored, served %d pages", served)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 films, got %d", len(entries))
	}
}

func TestFetchWatchlistFirstPageFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	driver := NewLetterboxd(2, nil, nil,
		WithLetterboxdBaseURL(server.URL),
		WithLetterboxdDoer(httpx.New("letterboxd", 5*time.Second, nil, nil)))

	if _, err := driver.FetchWatchlist(context.Background(), "someone"); err == nil {
		t.Fatal("expected error when the first page is unreachable")
	}
}
