package tmdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"yaad/internal/cache"
	"yaad/internal/logging"
	"yaad/internal/media"
	"yaad/internal/metadata/httpx"
	"yaad/internal/ratelimit"
)

const posterBaseURL = "https://image.tmdb.org/t/p/w500"

// searchResult models one entry of a TMDB search response. Movie and TV
// payloads use different field names for the same concepts.
type searchResult struct {
	ID            int64   `json:"id"`
	Title         string  `json:"title"`
	Name          string  `json:"name"`
	OriginalTitle string  `json:"original_title"`
	OriginalName  string  `json:"original_name"`
	Overview      string  `json:"overview"`
	ReleaseDate   string  `json:"release_date"`
	FirstAirDate  string  `json:"first_air_date"`
	PosterPath    string  `json:"poster_path"`
	Popularity    float64 `json:"popularity"`
	VoteAverage   float64 `json:"vote_average"`
	VoteCount     int64   `json:"vote_count"`
}

type searchResponse struct {
	Page         int            `json:"page"`
	Results      []searchResult `json:"results"`
	TotalResults int            `json:"total_results"`
}

type genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type crewMember struct {
	Name string `json:"name"`
	Job  string `json:"job"`
}

type detailResponse struct {
	searchResult
	Genres         []genre `json:"genres"`
	Runtime        int     `json:"runtime"`
	EpisodeRunTime []int   `json:"episode_run_time"`
	Credits        struct {
		Crew []crewMember `json:"crew"`
	} `json:"credits"`
	CreatedBy []struct {
		Name string `json:"name"`
	} `json:"created_by"`
}

// Searcher is the subset of the client the reconciliation engine consumes.
type Searcher interface {
	SearchMovies(ctx context.Context, query string, year int) ([]media.Candidate, error)
	SearchTV(ctx context.Context, query string, year int) ([]media.Candidate, error)
	MovieDetails(ctx context.Context, id string) (*media.Candidate, error)
	TVDetails(ctx context.Context, id string) (*media.Candidate, error)
}

// Client provides access to the TMDB API.
type Client struct {
	apiKey   string
	baseURL  string
	language string
	doer     *httpx.Doer
	cache    *cache.Cache
	logger   *slog.Logger
}

var _ Searcher = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithCache attaches the shared TTL cache.
func WithCache(c *cache.Cache) Option {
	return func(client *Client) { client.cache = c }
}

// WithDoer overrides the HTTP plumbing, for tests.
func WithDoer(doer *httpx.Doer) Option {
	return func(client *Client) {
		if doer != nil {
			client.doer = doer
		}
	}
}

// New creates a TMDB client.
func New(apiKey, baseURL, language string, limiter *ratelimit.Limiter, logger *slog.Logger, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("tmdb api key required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("tmdb base url required")
	}
	client := &Client{
		apiKey:   apiKey,
		baseURL:  baseURL,
		language: strings.TrimSpace(language),
		doer:     httpx.New(string(media.SourceTMDB), 10*time.Second, limiter, logger),
		logger:   logging.NewComponentLogger(logger, "tmdb"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// SearchMovies queries the movie namespace.
func (c *Client) SearchMovies(ctx context.Context, query string, year int) ([]media.Candidate, error) {
	return c.search(ctx, "movie", query, year)
}

// SearchTV queries the TV namespace.
func (c *Client) SearchTV(ctx context.Context, query string, year int) ([]media.Candidate, error) {
	return c.search(ctx, "tv", query, year)
}

func (c *Client) search(ctx context.Context, kind, query string, year int) ([]media.Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query must not be empty")
	}

	cacheKey := fmt.Sprintf("%s|%s|%d|%s", kind, strings.ToLower(query), year, c.language)
	if cached, ok := c.cache.Get("tmdb_search", cacheKey); ok {
		if candidates, ok := cached.([]media.Candidate); ok {
			return candidates, nil
		}
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("api_key", c.apiKey)
	if c.language != "" {
		params.Set("language", c.language)
	}
	if year > 0 {
		if kind == "tv" {
			params.Set("first_air_date_year", strconv.Itoa(year))
		} else {
			params.Set("primary_release_year", strconv.Itoa(year))
		}
	}

	var payload searchResponse
	endpoint := fmt.Sprintf("%s/search/%s?%s", c.baseURL, kind, params.Encode())
	if err := c.doer.GetJSON(ctx, endpoint, nil, &payload); err != nil {
		return nil, err
	}

	candidates := make([]media.Candidate, 0, len(payload.Results))
	for _, result := range payload.Results {
		candidates = append(candidates, resultToCandidate(result, kind))
	}

	c.cache.Set("tmdb_search", cacheKey, candidates, cache.TTLShort)
	c.logger.Debug("search completed",
		logging.String(logging.FieldQuery, query),
		logging.String("namespace", kind),
		logging.Int("results", len(candidates)))
	return candidates, nil
}

// MovieDetails fetches the full movie record, credits included.
func (c *Client) MovieDetails(ctx context.Context, id string) (*media.Candidate, error) {
	return c.details(ctx, "movie", id)
}

// TVDetails fetches the full TV record.
func (c *Client) TVDetails(ctx context.Context, id string) (*media.Candidate, error) {
	return c.details(ctx, "tv", id)
}

func (c *Client) details(ctx context.Context, kind, id string) (*media.Candidate, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("id must not be empty")
	}

	cacheKey := kind + "|" + id + "|" + c.language
	if cached, ok := c.cache.Get("tmdb_details", cacheKey); ok {
		if candidate, ok := cached.(*media.Candidate); ok {
			copied := *candidate
			return &copied, nil
		}
	}

	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("append_to_response", "credits")
	if c.language != "" {
		params.Set("language", c.language)
	}

	var payload detailResponse
	endpoint := fmt.Sprintf("%s/%s/%s?%s", c.baseURL, kind, id, params.Encode())
	if err := c.doer.GetJSON(ctx, endpoint, nil, &payload); err != nil {
		return nil, err
	}
	if payload.ID == 0 {
		return nil, errors.New("tmdb details: empty payload")
	}

	candidate := resultToCandidate(payload.searchResult, kind)
	for _, g := range payload.Genres {
		if g.Name != "" {
			candidate.Genres = append(candidate.Genres, g.Name)
		}
	}
	switch kind {
	case "movie":
		candidate.DurationMinutes = payload.Runtime
		for _, member := range payload.Credits.Crew {
			if member.Job == "Director" && member.Name != "" {
				candidate.Authors = append(candidate.Authors, member.Name)
			}
		}
	case "tv":
		if len(payload.EpisodeRunTime) > 0 {
			candidate.DurationMinutes = payload.EpisodeRunTime[0]
		}
		for _, creator := range payload.CreatedBy {
			if creator.Name != "" {
				candidate.Authors = append(candidate.Authors, creator.Name)
			}
		}
	}

	c.cache.Set("tmdb_details", cacheKey, &candidate, cache.TTLMedium)
	copied := candidate
	return &copied, nil
}

func resultToCandidate(result searchResult, kind string) media.Candidate {
	mediaType := media.TypeFilm
	title := result.Title
	original := result.OriginalTitle
	date := result.ReleaseDate
	if kind == "tv" {
		mediaType = media.TypeSeries
		title = result.Name
		original = result.OriginalName
		date = result.FirstAirDate
	}

	candidate := media.Candidate{
		Source:        media.SourceTMDB,
		ExternalID:    strconv.FormatInt(result.ID, 10),
		Type:          mediaType,
		Title:         title,
		OriginalTitle: original,
		Description:   result.Overview,
		VoteAverage:   result.VoteAverage,
		Popularity:    result.Popularity,
	}
	if len(date) >= 4 {
		if year, err := strconv.Atoi(date[:4]); err == nil {
			candidate.Year = year
		}
	}
	if result.PosterPath != "" {
		candidate.CoverURL = posterBaseURL + result.PosterPath
	}
	return candidate
}
