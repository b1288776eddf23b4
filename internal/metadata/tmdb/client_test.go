package tmdb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"yaad/internal/cache"
	"yaad/internal/logging"
	"yaad/internal/media"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New("test-key", server.URL, "fr-FR", nil, logging.NewNop(), WithCache(cache.New()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return client, server
}

func TestSearchMoviesMapsCandidates(t *testing.T) {
	var gotQuery, gotYear, gotLanguage string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/movie" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery = r.URL.Query().Get("query")
		gotYear = r.URL.Query().Get("primary_release_year")
		gotLanguage = r.URL.Query().Get("language")
		w.Write([]byte(`{"page":1,"results":[{
			"id":27205,"title":"Inception","original_title":"Inception",
			"overview":"A thief who steals corporate secrets.",
			"release_date":"2010-07-16","poster_path":"/poster.jpg",
			"vote_average":8.3,"popularity":90.5}],"total_results":1}`))
	})

	candidates, err := client.SearchMovies(context.Background(), "Inception", 2010)
	if err != nil {
		t.Fatalf("SearchMovies failed: %v", err)
	}
	if gotQuery != "Inception" || gotYear != "2010" || gotLanguage != "fr-FR" {
		t.Fatalf("unexpected request params: query=%q year=%q lang=%q", gotQuery, gotYear, gotLanguage)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	c := candidates[0]
	if c.ExternalID != "27205" || c.Type != media.TypeFilm || c.Year != 2010 {
		t.Fatalf("unexpected candidate: %+v", c)
	}
	if c.CoverURL != posterBaseURL+"/poster.jpg" {
		t.Fatalf("unexpected cover url %q", c.CoverURL)
	}
}

func TestSearchTVUsesNameFields(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/tv" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("first_air_date_year") != "2017" {
			t.Errorf("expected first_air_date_year param")
		}
		w.Write([]byte(`{"results":[{
			"id":70523,"name":"Dark","original_name":"Dark",
			"first_air_date":"2017-12-01","vote_average":8.4}]}`))
	})

	candidates, err := client.SearchTV(context.Background(), "Dark", 2017)
	if err != nil {
		t.Fatalf("SearchTV failed: %v", err)
	}
	if len(candidates) != 1 || candidates[0].Type != media.TypeSeries {
		t.Fatalf("unexpected candidates: %+v", candidates)
	}
	if candidates[0].Title != "Dark" || candidates[0].Year != 2017 {
		t.Fatalf("unexpected candidate fields: %+v", candidates[0])
	}
}

func TestSearchCachesResults(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"results":[]}`))
	})

	ctx := context.Background()
	if _, err := client.SearchMovies(ctx, "Solaris", 0); err != nil {
		t.Fatalf("first search failed: %v", err)
	}
	if _, err := client.SearchMovies(ctx, "Solaris", 0); err != nil {
		t.Fatalf("second search failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 upstream call, got %d", calls)
	}
}

func TestMovieDetailsCollectsCredits(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/movie/27205" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("append_to_response") != "credits" {
			t.Errorf("expected credits appended")
		}
		w.Write([]byte(`{
			"id":27205,"title":"Inception","release_date":"2010-07-16",
			"runtime":148,
			"genres":[{"id":28,"name":"Action"},{"id":878,"name":"Science-Fiction"}],
			"credits":{"crew":[
				{"name":"Christopher Nolan","job":"Director"},
				{"name":"Hans Zimmer","job":"Original Music Composer"}]}}`))
	})

	candidate, err := client.MovieDetails(context.Background(), "27205")
	if err != nil {
		t.Fatalf("MovieDetails failed: %v", err)
	}
	if candidate.DurationMinutes != 148 {
		t.Fatalf("runtime = %d", candidate.DurationMinutes)
	}
	if len(candidate.Genres) != 2 || candidate.Genres[0] != "Action" {
		t.Fatalf("genres = %v", candidate.Genres)
	}
	if len(candidate.Authors) != 1 || candidate.Authors[0] != "Christopher Nolan" {
		t.Fatalf("authors = %v", candidate.Authors)
	}
}

func TestTVDetailsUsesEpisodeRuntime(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"id":70523,"name":"Dark","first_air_date":"2017-12-01",
			"episode_run_time":[53],
			"created_by":[{"name":"Baran bo Odar"}]}`))
	})

	candidate, err := client.TVDetails(context.Background(), "70523")
	if err != nil {
		t.Fatalf("TVDetails failed: %v", err)
	}
	if candidate.DurationMinutes != 53 {
		t.Fatalf("episode runtime = %d", candidate.DurationMinutes)
	}
	if len(candidate.Authors) != 1 || candidate.Authors[0] != "Baran bo Odar" {
		t.Fatalf("authors = %v", candidate.Authors)
	}
}

func TestDetailsRejectsEmptyPayload(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	if _, err := client.MovieDetails(context.Background(), "1"); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestNewValidatesInput(t *testing.T) {
	if _, err := New("", "https://example.com", "", nil, logging.NewNop()); err == nil {
		t.Fatal("expected error for missing api key")
	}
	if _, err := New("key", "", "", nil, logging.NewNop()); err == nil {
		t.Fatal("expected error for missing base url")
	}
}
