package youtube

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"yaad/internal/cache"
	"yaad/internal/logging"
	"yaad/internal/media"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := New(server.URL+"/oembed", server.URL+"/watch", nil, logging.NewNop(), opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return client
}

func TestLookupViaOEmbed(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oembed":
			if got := r.URL.Query().Get("url"); got != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" {
				t.Errorf("unexpected url param %q", got)
			}
			w.Write([]byte(`{"title":"Never Gonna Give You Up","author_name":"Rick Astley"}`))
		case "/watch":
			w.Write([]byte(`<html>{"videoDetails":{"lengthSeconds":"212"}}</html>`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	candidate, err := client.Lookup(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if candidate.Title != "Never Gonna Give You Up" {
		t.Fatalf("title = %q", candidate.Title)
	}
	if len(candidate.Authors) != 1 || candidate.Authors[0] != "Rick Astley" {
		t.Fatalf("authors = %v", candidate.Authors)
	}
	if candidate.ExternalID != "dQw4w9WgXcQ" {
		t.Fatalf("external id = %q", candidate.ExternalID)
	}
	if candidate.Type != media.TypeVideo || candidate.Source != media.SourceYouTube {
		t.Fatalf("unexpected classification: %+v", candidate)
	}
	if candidate.CoverURL != "https://img.youtube.com/vi/dQw4w9WgXcQ/maxresdefault.jpg" {
		t.Fatalf("cover = %q", candidate.CoverURL)
	}
	if candidate.DurationMinutes != 4 {
		t.Fatalf("duration = %d, want 4", candidate.DurationMinutes)
	}
}

func TestLookupFallsBackToWatchPage(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oembed":
			w.WriteHeader(http.StatusUnauthorized)
		case "/watch":
			w.Write([]byte(`<html><head><title>Some Unlisted Talk - YouTube</title></head>` +
				`<body><script>var ytInitialPlayerResponse = {"videoDetails":{"videoId":"dQw4w9WgXcQ","lengthSeconds":"212"}};</script></body></html>`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	candidate, err := client.Lookup(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if candidate.Title != "Some Unlisted Talk" {
		t.Fatalf("title = %q", candidate.Title)
	}
	if candidate.DurationMinutes != 4 {
		t.Fatalf("duration = %d, want 4 from lengthSeconds 212", candidate.DurationMinutes)
	}
	if len(candidate.Authors) != 0 {
		t.Fatalf("watch page scrape should not invent authors, got %v", candidate.Authors)
	}
}

func TestLookupRejectsNonVideoInput(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	if _, err := client.Lookup(context.Background(), "https://example.com/page"); err == nil {
		t.Fatal("expected an error for a non-youtube url")
	}
}

func TestLookupCachesResolvedVideos(t *testing.T) {
	calls := 0
	shared := cache.New()
	defer shared.Close()
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oembed" {
			calls++
			w.Write([]byte(`{"title":"Cached","author_name":"Someone"}`))
			return
		}
		w.Write([]byte(`{"videoDetails":{"lengthSeconds":"60"}}`))
	}), WithCache(shared))

	for i := 0; i < 3; i++ {
		if _, err := client.Lookup(context.Background(), "dQw4w9WgXcQ"); err != nil {
			t.Fatalf("Lookup %d failed: %v", i, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one upstream call, got %d", calls)
	}
}

func TestScrapeDurationMinutes(t *testing.T) {
	cases := []struct {
		name string
		page string
		want int
	}{
		{"rounds up past thirty seconds", `{"lengthSeconds":"212"}`, 4},
		{"rounds down under thirty seconds", `{"lengthSeconds":"149"}`, 2},
		{"short clip floors at one minute", `{"lengthSeconds":"15"}`, 1},
		{"spaced json", `"lengthSeconds" : "3600"`, 60},
		{"absent", `{"videoDetails":{}}`, 0},
		{"zero seconds", `{"lengthSeconds":"0"}`, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := scrapeDurationMinutes(tc.page); got != tc.want {
				t.Fatalf("scrapeDurationMinutes = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestScrapeTitle(t *testing.T) {
	cases := []struct {
		name string
		page string
		want string
	}{
		{"og title preferred", `<meta property="og:title" content="From OG"><title>From Title - YouTube</title>`, "From OG"},
		{"title suffix stripped", `<title>Plain Video - YouTube</title>`, "Plain Video"},
		{"entities decoded", `<title>Tom &amp; Jerry - YouTube</title>`, "Tom & Jerry"},
		{"no title", `<html><body>nothing</body></html>`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := scrapeTitle(tc.page); got != tc.want {
				t.Fatalf("scrapeTitle = %q, want %q", got, tc.want)
			}
		})
	}
}
