package reconcile

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"yaad/internal/config"
	"yaad/internal/logging"
	"yaad/internal/media"
	"yaad/internal/metadata/httpx"
	"yaad/internal/services"
)

type fakeSearcher struct {
	movies     map[string][]media.Candidate
	tv         map[string][]media.Candidate
	details    map[string]*media.Candidate
	searchErr  error
	detailsErr error
	queries    []string
}

func (f *fakeSearcher) SearchMovies(_ context.Context, query string, year int) ([]media.Candidate, error) {
	f.queries = append(f.queries, "movie:"+query)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.movies[query], nil
}

func (f *fakeSearcher) SearchTV(_ context.Context, query string, year int) ([]media.Candidate, error) {
	f.queries = append(f.queries, "tv:"+query)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.tv[query], nil
}

func (f *fakeSearcher) MovieDetails(_ context.Context, id string) (*media.Candidate, error) {
	if f.detailsErr != nil {
		return nil, f.detailsErr
	}
	return f.details["movie:"+id], nil
}

func (f *fakeSearcher) TVDetails(_ context.Context, id string) (*media.Candidate, error) {
	if f.detailsErr != nil {
		return nil, f.detailsErr
	}
	return f.details["tv:"+id], nil
}

type fakeBooks struct {
	byISBN  map[string]*media.Candidate
	byQuery map[string][]media.Candidate
}

func (f *fakeBooks) SearchByISBN(_ context.Context, isbn string) (*media.Candidate, error) {
	return f.byISBN[isbn], nil
}

func (f *fakeBooks) SearchByQuery(_ context.Context, title, _ string) ([]media.Candidate, error) {
	return f.byQuery[title], nil
}

type fakeVideos struct {
	candidate *media.Candidate
	err       error
}

func (f *fakeVideos) Lookup(context.Context, string) (*media.Candidate, error) {
	return f.candidate, f.err
}

func testMatching() config.Matching {
	return config.Matching{MinScore: 50, TVMargin: 20, FuzzyThreshold: 0.5, SpellingFallback: false}
}

func newEngine(t *testing.T, searcher *fakeSearcher, opts ...Option) *Engine {
	t.Helper()
	return New(searcher, nil, nil, testMatching(), nil, logging.NewNop(), opts...)
}

func TestResolvePicksMovieAndFetchesDetails(t *testing.T) {
	searcher := &fakeSearcher{
		movies: map[string][]media.Candidate{
			"Inception": {{Source: media.SourceTMDB, ExternalID: "27205", Type: media.TypeFilm, Title: "Inception", Year: 2010, VoteAverage: 8.4}},
		},
		tv: map[string][]media.Candidate{},
		details: map[string]*media.Candidate{
			"movie:27205": {Source: media.SourceTMDB, ExternalID: "27205", Type: media.TypeFilm, Title: "Inception", Year: 2010, Genres: []string{"Science Fiction"}, Authors: []string{"Christopher Nolan"}},
		},
	}
	engine := newEngine(t, searcher)

	candidate, err := engine.Resolve(context.Background(), media.RawEntry{Name: "Inception", HintYear: 2010})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if candidate.ExternalID != "27205" || len(candidate.Authors) == 0 {
		t.Fatalf("expected detailed record, got %+v", candidate)
	}
	if candidate.Confidence <= 0 || candidate.Confidence > 1 {
		t.Fatalf("confidence out of range: %f", candidate.Confidence)
	}
}

func TestResolveSeriesNeedsMargin(t *testing.T) {
	film := media.Candidate{ExternalID: "1", Type: media.TypeFilm, Title: "Fargo", Year: 1996, VoteAverage: 8}
	series := media.Candidate{ExternalID: "2", Type: media.TypeSeries, Title: "Fargo", Year: 2014, VoteAverage: 8}
	searcher := &fakeSearcher{
		movies: map[string][]media.Candidate{"Fargo": {film}},
		tv:     map[string][]media.Candidate{"Fargo": {series}},
		details: map[string]*media.Candidate{
			"movie:1": {ExternalID: "1", Type: media.TypeFilm, Title: "Fargo"},
			"tv:2":    {ExternalID: "2", Type: media.TypeSeries, Title: "Fargo"},
		},
	}
	engine := newEngine(t, searcher)

	candidate, err := engine.Resolve(context.Background(), media.RawEntry{Name: "Fargo", HintYear: 1996})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if candidate.Type != media.TypeFilm {
		t.Fatalf("film should win within the margin, got %s", candidate.Type)
	}

	candidate, err = engine.Resolve(context.Background(), media.RawEntry{Name: "Fargo", HintYear: 2014})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if candidate.Type != media.TypeSeries {
		t.Fatalf("series should win with the exact-year bonus, got %s", candidate.Type)
	}
}

func TestResolveHintScopesSearch(t *testing.T) {
	searcher := &fakeSearcher{
		movies:  map[string][]media.Candidate{"Dune": {{ExternalID: "438631", Type: media.TypeFilm, Title: "Dune", Year: 2021}}},
		tv:      map[string][]media.Candidate{"Dune": {{ExternalID: "90228", Type: media.TypeSeries, Title: "Dune", Year: 2000}}},
		details: map[string]*media.Candidate{"movie:438631": {ExternalID: "438631", Type: media.TypeFilm, Title: "Dune"}},
	}
	engine := newEngine(t, searcher)

	if _, err := engine.Resolve(context.Background(), media.RawEntry{Name: "Dune", HintType: media.TypeFilm}); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	for _, q := range searcher.queries {
		if strings.HasPrefix(q, "tv:") {
			t.Fatalf("film hint must not query the tv namespace, saw %v", searcher.queries)
		}
	}
}

func TestResolveNotFound(t *testing.T) {
	engine := newEngine(t, &fakeSearcher{movies: map[string][]media.Candidate{}, tv: map[string][]media.Candidate{}})

	_, err := engine.Resolve(context.Background(), media.RawEntry{Name: "Nonexistent Film"})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveUpstreamFailure(t *testing.T) {
	engine := newEngine(t, &fakeSearcher{searchErr: errors.New("gateway down")})

	_, err := engine.Resolve(context.Background(), media.RawEntry{Name: "Inception"})
	if !errors.Is(err, services.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestResolveDetailFetchFailure(t *testing.T) {
	searcher := &fakeSearcher{
		movies:     map[string][]media.Candidate{"Inception": {{ExternalID: "27205", Type: media.TypeFilm, Title: "Inception"}}},
		tv:         map[string][]media.Candidate{},
		detailsErr: errors.New("timeout"),
	}
	engine := newEngine(t, searcher)

	_, err := engine.Resolve(context.Background(), media.RawEntry{Name: "Inception"})
	if !errors.Is(err, services.ErrDetailFetch) {
		t.Fatalf("expected ErrDetailFetch, got %v", err)
	}
}

func TestResolveURLTitle(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>Bienvenue à Gattaca - Film 1997 - AlloCiné</title></head></html>`))
	}))
	defer page.Close()

	searcher := &fakeSearcher{
		movies:  map[string][]media.Candidate{"Bienvenue à Gattaca": {{ExternalID: "782", Type: media.TypeFilm, Title: "Bienvenue à Gattaca", Year: 1997}}},
		tv:      map[string][]media.Candidate{},
		details: map[string]*media.Candidate{"movie:782": {ExternalID: "782", Type: media.TypeFilm, Title: "Bienvenue à Gattaca"}},
	}
	resolverDoer := httpx.New("webscrape", time.Second, nil, logging.NewNop())
	engine := newEngine(t, searcher, WithURLResolverDoer(resolverDoer))

	// The resolver only scrapes recognized catalog hosts, so the fake page
	// URL has to look like one.
	entry := media.RawEntry{Name: page.URL + "/film/fichefilm_gen_cfilm=782.html"}
	_, err := engine.Resolve(context.Background(), entry)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("unrecognized host should fail as not found, got %v", err)
	}
}

func TestResolveSpellingFallback(t *testing.T) {
	search := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<a class="result__a" href="#">Bienvenue à Gattaca - AlloCiné</a>`))
	}))
	defer search.Close()

	searcher := &fakeSearcher{
		movies: map[string][]media.Candidate{
			"Bienvenue à Gattaca": {{ExternalID: "782", Type: media.TypeFilm, Title: "Bienvenue à Gattaca", Year: 1997}},
		},
		tv:      map[string][]media.Candidate{},
		details: map[string]*media.Candidate{"movie:782": {ExternalID: "782", Type: media.TypeFilm, Title: "Bienvenue à Gattaca", Year: 1997}},
	}
	matching := testMatching()
	matching.SpellingFallback = true
	spellDoer := httpx.New("websearch", time.Second, nil, logging.NewNop())
	engine := New(searcher, nil, nil, matching, nil, logging.NewNop(), WithSpellerDoer(spellDoer, search.URL))

	candidate, err := engine.Resolve(context.Background(), media.RawEntry{Name: "Bienvenu a Gattaca", HintYear: 1997})
	if err != nil {
		t.Fatalf("Resolve with spelling fallback failed: %v", err)
	}
	if candidate.ExternalID != "782" {
		t.Fatalf("unexpected candidate %+v", candidate)
	}
}

func TestResolveWeakMatchRetriesWithCorrectedSpelling(t *testing.T) {
	search := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<a class="result__a" href="#">Bienvenue à Gattaca - AlloCiné</a>`))
	}))
	defer search.Close()

	// The misspelled query finds only a weak containment match that clears
	// the floor but not the good bar.
	searcher := &fakeSearcher{
		movies: map[string][]media.Candidate{
			"Bienvenu a Gattaca":  {{ExternalID: "999", Type: media.TypeFilm, Title: "Bienvenu a Gattaca : le fan film"}},
			"Bienvenue à Gattaca": {{ExternalID: "782", Type: media.TypeFilm, Title: "Bienvenue à Gattaca", Year: 1997}},
		},
		tv: map[string][]media.Candidate{},
		details: map[string]*media.Candidate{
			"movie:999": {ExternalID: "999", Type: media.TypeFilm, Title: "Bienvenu a Gattaca : le fan film"},
			"movie:782": {ExternalID: "782", Type: media.TypeFilm, Title: "Bienvenue à Gattaca", Year: 1997},
		},
	}
	matching := testMatching()
	matching.SpellingFallback = true
	matching.GoodScore = 70
	spellDoer := httpx.New("websearch", time.Second, nil, logging.NewNop())
	engine := New(searcher, nil, nil, matching, nil, logging.NewNop(), WithSpellerDoer(spellDoer, search.URL))

	candidate, err := engine.Resolve(context.Background(), media.RawEntry{Name: "Bienvenu a Gattaca"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if candidate.ExternalID != "782" {
		t.Fatalf("corrected spelling should beat the weak match, got %+v", candidate)
	}
}

func TestResolveWeakMatchAcceptedWithoutGoodScore(t *testing.T) {
	searcher := &fakeSearcher{
		movies: map[string][]media.Candidate{
			"Bienvenu a Gattaca": {{ExternalID: "999", Type: media.TypeFilm, Title: "Bienvenu a Gattaca : le fan film"}},
		},
		tv:      map[string][]media.Candidate{},
		details: map[string]*media.Candidate{"movie:999": {ExternalID: "999", Type: media.TypeFilm, Title: "Bienvenu a Gattaca : le fan film"}},
	}
	matching := testMatching()
	matching.SpellingFallback = true

	engine := New(searcher, nil, nil, matching, nil, logging.NewNop())

	// GoodScore zero disables the retry, so the weak match stands and no
	// web search runs.
	candidate, err := engine.Resolve(context.Background(), media.RawEntry{Name: "Bienvenu a Gattaca"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if candidate.ExternalID != "999" {
		t.Fatalf("unexpected candidate %+v", candidate)
	}
}

func TestResolveBookByISBN(t *testing.T) {
	books := &fakeBooks{byISBN: map[string]*media.Candidate{
		"9780451524935": {Type: media.TypeBook, ExternalID: "9780451524935", Title: "1984"},
	}}
	engine := New(nil, books, nil, testMatching(), nil, logging.NewNop())

	candidate, err := engine.Resolve(context.Background(), media.RawEntry{Name: "1984", HintType: media.TypeBook, HintISBN: "978-0451524935"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if candidate.ExternalID != "9780451524935" || candidate.Confidence != 1 {
		t.Fatalf("unexpected candidate %+v", candidate)
	}
}

func TestResolveBookByQueryUsesFuzzyMatch(t *testing.T) {
	books := &fakeBooks{
		byQuery: map[string][]media.Candidate{
			"Animal Farm": {
				{Type: media.TypeBook, ExternalID: "a", Title: "Animal Farm in Pictures"},
				{Type: media.TypeBook, ExternalID: "b", Title: "Animal Farm", Year: 1945},
			},
		},
	}
	engine := New(nil, books, nil, testMatching(), nil, logging.NewNop())

	candidate, err := engine.Resolve(context.Background(), media.RawEntry{Name: "Animal Farm", HintType: media.TypeBook, HintYear: 1945})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if candidate.ExternalID != "b" {
		t.Fatalf("expected the exact title to win, got %+v", candidate)
	}
}

func TestResolveVideo(t *testing.T) {
	videos := &fakeVideos{candidate: &media.Candidate{Type: media.TypeVideo, ExternalID: "dQw4w9WgXcQ", Title: "Never Gonna Give You Up"}}
	engine := New(nil, nil, videos, testMatching(), nil, logging.NewNop())

	candidate, err := engine.Resolve(context.Background(), media.RawEntry{
		Name:     "some saved title",
		HintType: media.TypeVideo,
		HintURL:  "https://youtu.be/dQw4w9WgXcQ",
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if candidate.Title != "Never Gonna Give You Up" {
		t.Fatalf("unexpected candidate %+v", candidate)
	}
}

type fakePodcasts struct {
	byURL    map[string]*media.Candidate
	byQuery  map[string][]media.Candidate
	lookups  []string
	searches []string
}

func (f *fakePodcasts) Lookup(_ context.Context, rawURL string) (*media.Candidate, error) {
	f.lookups = append(f.lookups, rawURL)
	if candidate := f.byURL[rawURL]; candidate != nil {
		return candidate, nil
	}
	return nil, services.Wrap(services.ErrNotFound, "podcast", "lookup", "unknown url", nil)
}

func (f *fakePodcasts) Search(_ context.Context, query string) ([]media.Candidate, error) {
	f.searches = append(f.searches, query)
	return f.byQuery[query], nil
}

func TestResolvePodcastByPlatformURL(t *testing.T) {
	episodeURL := "https://open.spotify.com/episode/4rOoJ6Egrf8K2IrywzwOMk"
	podcasts := &fakePodcasts{byURL: map[string]*media.Candidate{
		episodeURL: {Source: media.SourceSpotify, ExternalID: "spotify:4rOoJ6Egrf8K2IrywzwOMk", Title: "Deep Dive"},
	}}
	engine := New(nil, nil, nil, testMatching(), nil, logging.NewNop(), WithPodcasts(podcasts))

	candidate, err := engine.Resolve(context.Background(), media.RawEntry{
		Name:     "saved episode",
		HintType: media.TypePodcast,
		HintURL:  episodeURL,
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if candidate.Type != media.TypePodcast || candidate.Confidence != 1 {
		t.Fatalf("unexpected candidate %+v", candidate)
	}
	if candidate.Title != "Deep Dive" {
		t.Fatalf("unexpected candidate %+v", candidate)
	}
}

func TestResolvePodcastSearchesDirectoryByName(t *testing.T) {
	podcasts := &fakePodcasts{byQuery: map[string][]media.Candidate{
		"La Science": {
			{Source: media.SourceApple, ExternalID: "apple:99", Title: "La Science du Sport"},
			{Source: media.SourceApple, ExternalID: "apple:11", Title: "La Science"},
		},
	}}
	engine := New(nil, nil, nil, testMatching(), nil, logging.NewNop(), WithPodcasts(podcasts))

	candidate, err := engine.Resolve(context.Background(), media.RawEntry{
		Name:     "La Science",
		HintType: media.TypePodcast,
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if candidate.ExternalID != "apple:11" {
		t.Fatalf("expected the exact show title to win, got %+v", candidate)
	}
	if candidate.Type != media.TypePodcast {
		t.Fatalf("Type = %s, want podcast", candidate.Type)
	}
}

func TestResolvePodcastYouTubeURLUsesVideoPlatform(t *testing.T) {
	videos := &fakeVideos{candidate: &media.Candidate{Type: media.TypeVideo, ExternalID: "dQw4w9WgXcQ", Title: "Podcast épisode 12"}}
	podcasts := &fakePodcasts{}
	engine := New(nil, nil, videos, testMatching(), nil, logging.NewNop(), WithPodcasts(podcasts))

	candidate, err := engine.Resolve(context.Background(), media.RawEntry{
		Name:     "Podcast épisode 12",
		HintType: media.TypePodcast,
		HintURL:  "https://youtu.be/dQw4w9WgXcQ",
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if candidate.Type != media.TypePodcast {
		t.Fatalf("Type = %s, want podcast", candidate.Type)
	}
	if len(podcasts.lookups)+len(podcasts.searches) != 0 {
		t.Fatalf("youtube url must not reach the podcast resolver: %+v", podcasts)
	}
}

func TestResolvePodcastWithoutResolverFallsBackToVideos(t *testing.T) {
	videos := &fakeVideos{candidate: &media.Candidate{Type: media.TypeVideo, ExternalID: "dQw4w9WgXcQ", Title: "Podcast épisode 12"}}
	engine := New(nil, nil, videos, testMatching(), nil, logging.NewNop())

	candidate, err := engine.Resolve(context.Background(), media.RawEntry{
		Name:     "Podcast épisode 12",
		HintType: media.TypePodcast,
		HintURL:  "https://youtu.be/dQw4w9WgXcQ",
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if candidate.Type != media.TypePodcast {
		t.Fatalf("Type = %s, want podcast", candidate.Type)
	}
}

func TestResolveFuzzyRebuild(t *testing.T) {
	searcher := &fakeSearcher{
		movies: map[string][]media.Candidate{
			"Princesse Monoké": {
				{ExternalID: "128", Type: media.TypeFilm, Title: "Princesse Mononoké", Year: 1997},
				{ExternalID: "999", Type: media.TypeFilm, Title: "Une Princesse", Year: 2001},
			},
		},
		tv:      map[string][]media.Candidate{},
		details: map[string]*media.Candidate{"movie:128": {ExternalID: "128", Type: media.TypeFilm, Title: "Princesse Mononoké", Year: 1997}},
	}
	engine := newEngine(t, searcher)

	candidate, err := engine.ResolveFuzzy(context.Background(), "Princesse Monoké", 1997, media.TypeFilm)
	if err != nil {
		t.Fatalf("ResolveFuzzy failed: %v", err)
	}
	if candidate.ExternalID != "128" {
		t.Fatalf("expected the near-identical title to win, got %+v", candidate)
	}
}
