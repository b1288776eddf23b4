package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"yaad/internal/config"
	"yaad/internal/logging"
	"yaad/internal/match"
	"yaad/internal/media"
	"yaad/internal/metadata/httpx"
	"yaad/internal/metadata/tmdb"
	"yaad/internal/normalize"
	"yaad/internal/ratelimit"
	"yaad/internal/services"
)

// BookSearcher is the book catalog surface the engine consumes, satisfied by
// books.Merged.
type BookSearcher interface {
	SearchByISBN(ctx context.Context, isbn string) (*media.Candidate, error)
	SearchByQuery(ctx context.Context, title, author string) ([]media.Candidate, error)
}

// VideoResolver is the video platform surface, satisfied by youtube.Client.
type VideoResolver interface {
	Lookup(ctx context.Context, raw string) (*media.Candidate, error)
}

// PodcastResolver is the podcast platform surface, satisfied by
// podcast.Client. Lookup handles episode URLs; Search resolves bare show
// names against the directory.
type PodcastResolver interface {
	Lookup(ctx context.Context, rawURL string) (*media.Candidate, error)
	Search(ctx context.Context, query string) ([]media.Candidate, error)
}

// Engine resolves raw entries to enriched catalog candidates. It owns the
// search strategy; adapters own the wire formats.
type Engine struct {
	movies     tmdb.Searcher
	books      BookSearcher
	videos     VideoResolver
	podcasts   PodcastResolver
	resolver   *urlTitleResolver
	speller    *speller
	thresholds match.Thresholds
	goodScore  float64
	fuzzy      float64
	spelling   bool
	logger     *slog.Logger
}

// Option customizes the engine.
type Option func(*Engine)

// WithURLResolverDoer overrides the page-scraping HTTP layer, for tests.
func WithURLResolverDoer(doer *httpx.Doer) Option {
	return func(e *Engine) {
		e.resolver = &urlTitleResolver{doer: doer}
	}
}

// WithSpellerDoer overrides the spelling-search HTTP layer and endpoint, for
// tests.
func WithSpellerDoer(doer *httpx.Doer, endpoint string) Option {
	return func(e *Engine) {
		e.speller = &speller{doer: doer, endpoint: endpoint}
	}
}

// WithPodcasts attaches a podcast platform resolver. Without one, podcast
// entries fall back to the video platform, which only understands YouTube.
func WithPodcasts(podcasts PodcastResolver) Option {
	return func(e *Engine) {
		e.podcasts = podcasts
	}
}

// New assembles an engine from the catalog adapters and matching config. Any
// adapter may be nil; entries needing it then fail with a not-found reason.
func New(movies tmdb.Searcher, books BookSearcher, videos VideoResolver, matching config.Matching, limiter *ratelimit.Limiter, logger *slog.Logger, opts ...Option) *Engine {
	engine := &Engine{
		movies: movies,
		books:  books,
		videos: videos,
		thresholds: match.Thresholds{
			MinScore: matching.MinScore,
			TVMargin: matching.TVMargin,
		},
		goodScore: matching.GoodScore,
		fuzzy:     matching.FuzzyThreshold,
		spelling:  matching.SpellingFallback,
		logger:    logging.NewComponentLogger(logger, "reconcile"),
	}
	for _, opt := range opts {
		opt(engine)
	}
	if engine.resolver == nil {
		engine.resolver = &urlTitleResolver{doer: httpx.New("webscrape", 15*time.Second, limiter, logger)}
	}
	if engine.speller == nil {
		engine.speller = &speller{doer: httpx.New("websearch", 10*time.Second, limiter, logger)}
	}
	return engine
}

// Resolve turns one raw entry into an enriched candidate, or a classified
// failure. ErrNotFound, ErrDetailFetch, and ErrUpstream are per-entry
// failures a driver records and moves past.
func (e *Engine) Resolve(ctx context.Context, entry media.RawEntry) (*media.Candidate, error) {
	switch entry.HintType {
	case media.TypeBook:
		return e.resolveBook(ctx, entry)
	case media.TypePodcast:
		return e.resolvePodcast(ctx, entry)
	case media.TypeVideo:
		return e.resolveVideo(ctx, entry)
	default:
		return e.resolveScreen(ctx, entry)
	}
}

// resolveScreen handles films, series, and entries whose type the source
// does not distinguish.
func (e *Engine) resolveScreen(ctx context.Context, entry media.RawEntry) (*media.Candidate, error) {
	if e.movies == nil {
		return nil, services.Wrap(services.ErrConfiguration, "reconcile", "resolve", "no movie catalog configured", nil)
	}

	title := entry.Name
	if IsURLTitle(title) {
		resolved := e.resolver.resolve(ctx, title)
		if resolved == "" {
			return nil, services.Wrap(services.ErrNotFound, "reconcile", "url_title",
				fmt.Sprintf("could not extract a title from %q", title), nil)
		}
		e.logger.Debug("resolved url title",
			logging.String("url", entry.Name),
			logging.String("title", resolved))
		title = resolved
	}
	title = normalize.Title(title)
	if title == "" {
		return nil, services.Wrap(services.ErrValidation, "reconcile", "resolve", "empty title", nil)
	}

	candidates, upstreamErr := e.searchScreen(ctx, entry.HintType, title, entry.HintYear)

	spellTried := false
	if len(candidates) == 0 && e.spelling {
		spellTried = true
		if corrected := e.correctedTitle(ctx, title, entry.HintType); corrected != "" {
			candidates, upstreamErr = e.searchScreen(ctx, entry.HintType, corrected, entry.HintYear)
			if len(candidates) > 0 {
				title = corrected
			}
		}
	}

	if len(candidates) == 0 {
		if upstreamErr != nil {
			return nil, services.Wrap(services.ErrUpstream, "reconcile", "search", "all catalog searches failed", upstreamErr)
		}
		return nil, services.Wrap(services.ErrNotFound, "reconcile", "search",
			fmt.Sprintf("no candidates for %q", title), nil)
	}

	best, ok := match.SelectBest(match.Target{
		Title:    title,
		Year:     entry.HintYear,
		TypeHint: entry.HintType,
	}, candidates, e.thresholds)
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "reconcile", "score",
			fmt.Sprintf("no candidate cleared the threshold for %q", title), nil)
	}

	// A match that clears the floor but not the good bar is often a typo
	// landing on the wrong work. One corrected search gets a chance to
	// beat it before the weak match is accepted.
	if e.spelling && !spellTried && e.goodScore > 0 && best.Score < e.goodScore {
		if corrected := e.correctedTitle(ctx, title, entry.HintType); corrected != "" && corrected != title {
			if retry, _ := e.searchScreen(ctx, entry.HintType, corrected, entry.HintYear); len(retry) > 0 {
				if retryBest, retryOK := match.SelectBest(match.Target{
					Title:    corrected,
					Year:     entry.HintYear,
					TypeHint: entry.HintType,
				}, retry, e.thresholds); retryOK && retryBest.Score > best.Score {
					e.logger.Debug("corrected spelling beat the weak match",
						logging.String("title", title),
						logging.String("corrected", corrected),
						logging.Float64("score", retryBest.Score))
					best = retryBest
					title = corrected
				}
			}
		}
	}

	e.logger.Debug("selected candidate",
		logging.String("title", title),
		logging.String(logging.FieldExternalID, best.Candidate.ExternalID),
		logging.String(logging.FieldMediaType, string(best.Candidate.Type)),
		logging.Float64("score", best.Score),
		logging.String("rationale", best.Rationale))

	return e.fetchScreenDetails(ctx, best)
}

// correctedTitle runs the web-search speller and normalizes its answer.
// Empty means no usable correction.
func (e *Engine) correctedTitle(ctx context.Context, title string, hint media.Type) string {
	kind := hint
	if kind == "" {
		kind = media.TypeFilm
	}
	corrected := e.speller.correct(ctx, title, kind)
	if corrected == "" {
		return ""
	}
	e.logger.Debug("trying corrected spelling",
		logging.String("title", title),
		logging.String("corrected", corrected))
	return normalize.Title(corrected)
}

// searchScreen queries the movie and tv namespaces as the hint allows and
// retries without the year when the first pass is empty. Year hints are
// often off by one around regional release dates.
func (e *Engine) searchScreen(ctx context.Context, hint media.Type, title string, year int) ([]media.Candidate, error) {
	var candidates []media.Candidate
	var firstErr error

	search := func(fn func(context.Context, string, int) ([]media.Candidate, error)) {
		results, err := fn(ctx, title, year)
		if err == nil && len(results) == 0 && year > 0 {
			results, err = fn(ctx, title, 0)
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		candidates = append(candidates, results...)
	}

	if hint != media.TypeSeries {
		search(e.movies.SearchMovies)
	}
	if hint != media.TypeFilm {
		search(e.movies.SearchTV)
	}

	if len(candidates) > 0 {
		return candidates, nil
	}
	return nil, firstErr
}

func (e *Engine) fetchScreenDetails(ctx context.Context, best match.Scored) (*media.Candidate, error) {
	var details *media.Candidate
	var err error
	switch best.Candidate.Type {
	case media.TypeSeries:
		details, err = e.movies.TVDetails(ctx, best.Candidate.ExternalID)
	default:
		details, err = e.movies.MovieDetails(ctx, best.Candidate.ExternalID)
	}
	if err != nil || details == nil {
		return nil, services.Wrap(services.ErrDetailFetch, "reconcile", "details",
			fmt.Sprintf("details for %s %s", best.Candidate.Type, best.Candidate.ExternalID), err)
	}
	details.Confidence = confidence(best.Score)
	return details, nil
}

func (e *Engine) resolveBook(ctx context.Context, entry media.RawEntry) (*media.Candidate, error) {
	if e.books == nil {
		return nil, services.Wrap(services.ErrConfiguration, "reconcile", "resolve", "no book catalog configured", nil)
	}

	if isbn := normalize.ISBN(entry.HintISBN); isbn != "" {
		candidate, err := e.books.SearchByISBN(ctx, isbn)
		if err != nil {
			return nil, services.Wrap(services.ErrUpstream, "reconcile", "isbn", "book catalogs unavailable", err)
		}
		if candidate != nil {
			candidate.Confidence = 1
			return candidate, nil
		}
		// Fall through to a title search; a wrong or stale ISBN should not
		// doom an entry that also has a usable title.
	}

	title := normalize.Title(entry.Name)
	if title == "" {
		return nil, services.Wrap(services.ErrValidation, "reconcile", "resolve", "empty title", nil)
	}
	results, err := e.books.SearchByQuery(ctx, title, entry.HintAuthor)
	if err != nil {
		return nil, services.Wrap(services.ErrUpstream, "reconcile", "search", "book catalogs unavailable", err)
	}
	if len(results) == 0 {
		return nil, services.Wrap(services.ErrNotFound, "reconcile", "search",
			fmt.Sprintf("no book candidates for %q", title), nil)
	}

	if best, ok := match.BestFuzzy(title, entry.HintYear, results, e.fuzzy); ok {
		candidate := best.Candidate
		candidate.Confidence = best.Score
		return &candidate, nil
	}
	// Catalog relevance ordering is decent even when similarity is low, as
	// with translated titles. Take the top hit rather than failing.
	candidate := results[0]
	candidate.Confidence = match.FuzzyScore(title, entry.HintYear, candidate)
	return &candidate, nil
}

func (e *Engine) resolveVideo(ctx context.Context, entry media.RawEntry) (*media.Candidate, error) {
	if e.videos == nil {
		return nil, services.Wrap(services.ErrConfiguration, "reconcile", "resolve", "no video platform configured", nil)
	}

	source := entry.HintURL
	if source == "" {
		source = entry.Name
	}
	candidate, err := e.videos.Lookup(ctx, source)
	if err != nil {
		if errors.Is(err, services.ErrValidation) || errors.Is(err, services.ErrNotFound) {
			return nil, services.Wrap(services.ErrNotFound, "reconcile", "video",
				fmt.Sprintf("no video resolvable from %q", source), err)
		}
		return nil, services.Wrap(services.ErrUpstream, "reconcile", "video", "video platform unavailable", err)
	}
	candidate.Confidence = 1
	if entry.HintType == media.TypePodcast {
		candidate.Type = media.TypePodcast
	}
	return candidate, nil
}

// resolvePodcast routes episodes by where they live. YouTube-hosted shows go
// through the video platform; Spotify, Deezer, Apple and RSS URLs go through
// the podcast resolver; a bare show name searches the podcast directory.
func (e *Engine) resolvePodcast(ctx context.Context, entry media.RawEntry) (*media.Candidate, error) {
	source := entry.HintURL
	if source == "" {
		source = entry.Name
	}

	if e.podcasts == nil || normalize.VideoID(source) != "" {
		return e.resolveVideo(ctx, entry)
	}

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		candidate, err := e.podcasts.Lookup(ctx, source)
		if err != nil {
			if errors.Is(err, services.ErrNotFound) || errors.Is(err, services.ErrValidation) {
				return nil, services.Wrap(services.ErrNotFound, "reconcile", "podcast",
					fmt.Sprintf("no episode resolvable from %q", source), err)
			}
			return nil, services.Wrap(services.ErrUpstream, "reconcile", "podcast", "podcast platform unavailable", err)
		}
		candidate.Type = media.TypePodcast
		if candidate.Confidence == 0 {
			candidate.Confidence = 1
		}
		return candidate, nil
	}

	title := normalize.Title(source)
	if title == "" {
		return nil, services.Wrap(services.ErrValidation, "reconcile", "resolve", "empty title", nil)
	}
	results, err := e.podcasts.Search(ctx, title)
	if err != nil {
		return nil, services.Wrap(services.ErrUpstream, "reconcile", "podcast", "podcast directory unavailable", err)
	}
	if len(results) == 0 {
		return nil, services.Wrap(services.ErrNotFound, "reconcile", "podcast",
			fmt.Sprintf("no shows match %q", title), nil)
	}
	if best, ok := match.BestFuzzy(title, entry.HintYear, results, e.fuzzy); ok {
		candidate := best.Candidate
		candidate.Type = media.TypePodcast
		candidate.Confidence = best.Score
		return &candidate, nil
	}
	// Directory relevance ordering is the tiebreak, as in book search.
	candidate := results[0]
	candidate.Type = media.TypePodcast
	candidate.Confidence = match.FuzzyScore(title, entry.HintYear, candidate)
	return &candidate, nil
}

// ResolveFuzzy re-matches an existing library row against the catalog using
// similarity scoring. It backs the rebuild pass for rows imported before
// enrichment existed or whose lookup failed at import time.
func (e *Engine) ResolveFuzzy(ctx context.Context, title string, year int, kind media.Type) (*media.Candidate, error) {
	if e.movies == nil {
		return nil, services.Wrap(services.ErrConfiguration, "reconcile", "rebuild", "no movie catalog configured", nil)
	}
	if IsURLTitle(title) {
		resolved := e.resolver.resolve(ctx, title)
		if resolved == "" {
			return nil, services.Wrap(services.ErrNotFound, "reconcile", "url_title",
				fmt.Sprintf("could not extract a title from %q", title), nil)
		}
		title = resolved
	}
	title = normalize.Title(title)

	candidates, err := e.searchScreen(ctx, kind, title, year)
	if len(candidates) == 0 && e.spelling {
		if corrected := e.speller.correct(ctx, title, kind); corrected != "" {
			candidates, err = e.searchScreen(ctx, kind, normalize.Title(corrected), year)
		}
	}
	if len(candidates) == 0 {
		if err != nil {
			return nil, services.Wrap(services.ErrUpstream, "reconcile", "rebuild", "catalog searches failed", err)
		}
		return nil, services.Wrap(services.ErrNotFound, "reconcile", "rebuild",
			fmt.Sprintf("no candidates for %q", title), nil)
	}

	best, ok := match.BestFuzzy(title, year, candidates, e.fuzzy)
	if !ok {
		// Catalog ordering as last resort, mirroring the query path.
		best = match.Scored{Candidate: candidates[0], Score: match.FuzzyScore(title, year, candidates[0])}
	}
	return e.fetchScreenDetails(ctx, best)
}

// confidence maps the 100-ish point scale onto 0..1 for storage.
func confidence(score float64) float64 {
	c := score / match.MaxScore
	if c > 1 {
		c = 1
	}
	return c
}
