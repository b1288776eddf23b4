package podcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"yaad/internal/cache"
	"yaad/internal/logging"
	"yaad/internal/media"
	"yaad/internal/metadata/httpx"
	"yaad/internal/ratelimit"
	"yaad/internal/services"
)

const (
	defaultSpotifyEmbedURL = "https://open.spotify.com/embed"
	defaultSpotifyOEmbed   = "https://open.spotify.com/oembed"
	defaultDeezerAPIURL    = "https://api.deezer.com"
	defaultITunesURL       = "https://itunes.apple.com"
)

var (
	spotifyPathRe  = regexp.MustCompile(`/(episode|show)/([a-zA-Z0-9]+)`)
	deezerPathRe   = regexp.MustCompile(`/(episode|show)/(\d+)`)
	applePathRe    = regexp.MustCompile(`/podcast/[^/]+/id(\d+)`)
	appleEpisodeRe = regexp.MustCompile(`i=(\d+)`)
	nextDataRe     = regexp.MustCompile(`(?s)<script id="__NEXT_DATA__"[^>]*>(.*?)</script>`)
	jsonDescRe     = regexp.MustCompile(`"description"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	titleDateRe    = regexp.MustCompile(` - \d{1,2}/\d{1,2}/\d{4}$`)
	yearRe         = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

// platformRef is the parsed identity of a podcast URL.
type platformRef struct {
	platform string
	kind     string
	id       string
	episode  string
}

// classify recognizes the hosting platform from a URL. Unknown URLs are
// treated as prospective RSS feeds, which is what they usually are.
func classify(raw string) platformRef {
	parsed, err := url.Parse(raw)
	if err != nil {
		return platformRef{platform: "unknown"}
	}
	host := strings.ToLower(parsed.Host)

	switch {
	case strings.Contains(host, "spotify.com"):
		if m := spotifyPathRe.FindStringSubmatch(parsed.Path); m != nil {
			return platformRef{platform: "spotify", kind: m[1], id: m[2]}
		}
	case strings.Contains(host, "link.deezer.com"):
		return platformRef{platform: "deezer_share"}
	case strings.Contains(host, "deezer.com"):
		if m := deezerPathRe.FindStringSubmatch(parsed.Path); m != nil {
			return platformRef{platform: "deezer", kind: m[1], id: m[2]}
		}
	case strings.Contains(host, "youtube.com"), strings.Contains(host, "youtu.be"):
		return platformRef{platform: "youtube"}
	case strings.Contains(host, "podcasts.apple.com"):
		if m := applePathRe.FindStringSubmatch(parsed.Path); m != nil {
			ref := platformRef{platform: "apple", id: m[1]}
			if em := appleEpisodeRe.FindStringSubmatch(raw); em != nil {
				ref.episode = em[1]
			}
			return ref
		}
	}
	if strings.HasSuffix(raw, ".xml") || strings.HasSuffix(raw, ".rss") ||
		strings.Contains(raw, "/feed") || strings.Contains(raw, "/rss") {
		return platformRef{platform: "rss"}
	}
	return platformRef{platform: "unknown"}
}

// Client resolves podcast episode metadata across the platforms people
// actually paste links from. Spotify is scraped through its embed page,
// Deezer has a public API, Apple links resolve through the iTunes directory
// to the show's feed, and anything else is tried as an RSS feed.
type Client struct {
	doer      *httpx.Doer
	embedURL  string
	oembedURL string
	deezerURL string
	itunesURL string
	cache     *cache.Cache
	logger    *slog.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithCache attaches a shared cache for resolved episodes.
func WithCache(shared *cache.Cache) Option {
	return func(c *Client) { c.cache = shared }
}

// WithDoer replaces the HTTP layer, mainly for tests.
func WithDoer(doer *httpx.Doer) Option {
	return func(c *Client) { c.doer = doer }
}

// WithEndpoints overrides the platform base URLs, for tests.
func WithEndpoints(spotifyEmbed, spotifyOEmbed, deezerAPI, itunes string) Option {
	return func(c *Client) {
		c.embedURL = strings.TrimRight(spotifyEmbed, "/")
		c.oembedURL = strings.TrimRight(spotifyOEmbed, "/")
		c.deezerURL = strings.TrimRight(deezerAPI, "/")
		c.itunesURL = strings.TrimRight(itunes, "/")
	}
}

// New builds a podcast metadata client. No credentials are needed; every
// platform here has a public surface.
func New(limiter *ratelimit.Limiter, logger *slog.Logger, opts ...Option) *Client {
	client := &Client{
		embedURL:  defaultSpotifyEmbedURL,
		oembedURL: defaultSpotifyOEmbed,
		deezerURL: defaultDeezerAPIURL,
		itunesURL: defaultITunesURL,
		logger:    logging.NewComponentLogger(logger, "podcast"),
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.doer == nil {
		client.doer = httpx.New("podcast", 30*time.Second, limiter, logger)
	}
	return client
}

// Lookup resolves an episode or show URL into a candidate.
func (c *Client) Lookup(ctx context.Context, raw string) (*media.Candidate, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, services.Wrap(services.ErrValidation, "podcast", "lookup", "empty url", nil)
	}

	if cached, ok := c.cache.Get("podcast", raw); ok {
		if candidate, ok := cached.(*media.Candidate); ok {
			copied := *candidate
			return &copied, nil
		}
	}

	ref := classify(raw)
	var candidate *media.Candidate
	var err error
	switch ref.platform {
	case "spotify":
		candidate, err = c.fromSpotify(ctx, raw, ref)
	case "youtube":
		return nil, services.Wrap(services.ErrValidation, "podcast", "lookup", "youtube urls resolve elsewhere", nil)
	case "deezer":
		candidate, err = c.fromDeezer(ctx, ref)
	case "deezer_share":
		candidate, err = c.fromDeezerShare(ctx, raw)
	case "apple":
		candidate, err = c.fromApple(ctx, ref)
	default:
		candidate, err = c.fromFeed(ctx, raw)
	}
	if err != nil {
		return nil, err
	}

	c.cache.Set("podcast", raw, candidate, cache.TTLLong)
	copied := *candidate
	return &copied, nil
}

// spotifyNextData is the slice of the embed page's hydration payload the
// client cares about.
type spotifyNextData struct {
	Props struct {
		PageProps struct {
			State struct {
				Data struct {
					Entity spotifyEntity `json:"entity"`
				} `json:"data"`
			} `json:"state"`
		} `json:"pageProps"`
	} `json:"props"`
}

type spotifyEntity struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle"`
	DurationMS  int64  `json:"duration"`
	ReleaseDate struct {
		ISOString string `json:"isoString"`
	} `json:"releaseDate"`
	CoverArt []spotifyImage `json:"relatedEntityCoverArt"`
	Video    []spotifyImage `json:"videoThumbnailImage"`
}

type spotifyImage struct {
	URL       string `json:"url"`
	MaxHeight int    `json:"maxHeight"`
}

func (c *Client) fromSpotify(ctx context.Context, raw string, ref platformRef) (*media.Candidate, error) {
	body, err := c.doer.Get(ctx, fmt.Sprintf("%s/%s/%s", c.embedURL, ref.kind, ref.id), browserHeaders)
	if err != nil {
		c.logger.Debug("spotify embed fetch failed, using oembed", logging.Error(err))
		return c.fromSpotifyOEmbed(ctx, raw)
	}
	m := nextDataRe.FindSubmatch(body)
	if m == nil {
		return c.fromSpotifyOEmbed(ctx, raw)
	}
	var payload spotifyNextData
	if err := json.Unmarshal(m[1], &payload); err != nil {
		return c.fromSpotifyOEmbed(ctx, raw)
	}
	entity := payload.Props.PageProps.State.Data.Entity

	title := entity.Name
	if title == "" {
		title = entity.Title
	}
	if title == "" {
		return c.fromSpotifyOEmbed(ctx, raw)
	}
	title = titleDateRe.ReplaceAllString(title, "")

	candidate := &media.Candidate{
		Source:     media.SourceSpotify,
		Type:       media.TypePodcast,
		ExternalID: "spotify:" + ref.id,
		Title:      strings.TrimSpace(title),
		Year:       yearFrom(entity.ReleaseDate.ISOString),
		CoverURL:   largestImage(entity.CoverArt, entity.Video),
	}
	if entity.DurationMS > 0 {
		candidate.DurationMinutes = int((entity.DurationMS + 30000) / 60000)
	}
	if entity.Subtitle != "" {
		candidate.Authors = []string{entity.Subtitle}
	}
	// The embed payload never carries the description; the public episode
	// page does, inside its own hydration JSON.
	pageURL := fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(c.embedURL, "/embed"), ref.kind, ref.id)
	if page, perr := c.doer.Get(ctx, pageURL, browserHeaders); perr == nil {
		if dm := jsonDescRe.FindSubmatch(page); dm != nil {
			if unquoted, uerr := strconv.Unquote(`"` + string(dm[1]) + `"`); uerr == nil {
				candidate.Description = unquoted
			}
		}
	}
	return candidate, nil
}

func (c *Client) fromSpotifyOEmbed(ctx context.Context, raw string) (*media.Candidate, error) {
	params := url.Values{}
	params.Set("url", raw)
	var payload struct {
		Title        string `json:"title"`
		ThumbnailURL string `json:"thumbnail_url"`
	}
	if err := c.doer.GetJSON(ctx, c.oembedURL+"?"+params.Encode(), nil, &payload); err != nil {
		return nil, err
	}
	if payload.Title == "" {
		return nil, services.Wrap(services.ErrNotFound, "podcast", "spotify", "episode has no resolvable title", nil)
	}
	ref := classify(raw)
	candidate := &media.Candidate{
		Source:     media.SourceSpotify,
		Type:       media.TypePodcast,
		ExternalID: "spotify:" + ref.id,
		CoverURL:   payload.ThumbnailURL,
	}
	title := payload.Title
	if m := titleDateRe.FindString(title); m != "" {
		candidate.Year = yearFrom(m)
		title = strings.TrimSuffix(title, m)
	}
	candidate.Title = strings.TrimSpace(title)
	return candidate, nil
}

type deezerEpisode struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Duration    int    `json:"duration"`
	ReleaseDate string `json:"release_date"`
	Link        string `json:"link"`
	PictureXL   string `json:"picture_xl"`
	PictureBig  string `json:"picture_big"`
	Picture     string `json:"picture"`
	Podcast     struct {
		Title     string `json:"title"`
		PictureXL string `json:"picture_xl"`
		Picture   string `json:"picture"`
	} `json:"podcast"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) fromDeezer(ctx context.Context, ref platformRef) (*media.Candidate, error) {
	resource := "episode"
	if ref.kind == "show" {
		resource = "podcast"
	}
	var payload deezerEpisode
	if err := c.doer.GetJSON(ctx, fmt.Sprintf("%s/%s/%s", c.deezerURL, resource, ref.id), nil, &payload); err != nil {
		return nil, err
	}
	if payload.Error != nil || payload.Title == "" {
		return nil, services.Wrap(services.ErrNotFound, "podcast", "deezer",
			fmt.Sprintf("%s %s not found", resource, ref.id), nil)
	}

	cover := firstNonEmpty(payload.PictureXL, payload.PictureBig, payload.Picture,
		payload.Podcast.PictureXL, payload.Podcast.Picture)
	candidate := &media.Candidate{
		Source:          media.SourceDeezer,
		Type:            media.TypePodcast,
		ExternalID:      "deezer:" + ref.id,
		Title:           payload.Title,
		Description:     payload.Description,
		Year:            yearFrom(payload.ReleaseDate),
		CoverURL:        cover,
		DurationMinutes: (payload.Duration + 30) / 60,
	}
	if payload.Podcast.Title != "" {
		candidate.Authors = []string{payload.Podcast.Title}
	}
	return candidate, nil
}

// fromDeezerShare follows the short link far enough to find the canonical
// episode URL in the landing page, then resolves that.
func (c *Client) fromDeezerShare(ctx context.Context, raw string) (*media.Candidate, error) {
	body, err := c.doer.Get(ctx, raw, browserHeaders)
	if err != nil {
		return nil, err
	}
	if m := deezerPathRe.FindStringSubmatch(string(body)); m != nil {
		return c.fromDeezer(ctx, platformRef{platform: "deezer", kind: m[1], id: m[2]})
	}
	return nil, services.Wrap(services.ErrNotFound, "podcast", "deezer", "share link resolves to nothing", nil)
}

type itunesLookup struct {
	Results []itunesShow `json:"results"`
}

type itunesShow struct {
	CollectionID   int64  `json:"collectionId"`
	CollectionName string `json:"collectionName"`
	ArtistName     string `json:"artistName"`
	FeedURL        string `json:"feedUrl"`
	Artwork600     string `json:"artworkUrl600"`
	Artwork100     string `json:"artworkUrl100"`
	Genre          string `json:"primaryGenreName"`
	TrackCount     int    `json:"trackCount"`
	ViewURL        string `json:"collectionViewUrl"`
}

// fromApple resolves the show through the iTunes directory and reads the
// episode out of its feed. Without an episode marker the latest one stands
// in, which matches how these links get shared.
func (c *Client) fromApple(ctx context.Context, ref platformRef) (*media.Candidate, error) {
	var payload itunesLookup
	if err := c.doer.GetJSON(ctx, fmt.Sprintf("%s/lookup?id=%s", c.itunesURL, ref.id), nil, &payload); err != nil {
		return nil, err
	}
	if len(payload.Results) == 0 || payload.Results[0].FeedURL == "" {
		return nil, services.Wrap(services.ErrNotFound, "podcast", "apple",
			fmt.Sprintf("show %s has no feed in the directory", ref.id), nil)
	}
	show := payload.Results[0]
	candidate, err := c.fromFeed(ctx, show.FeedURL)
	if err != nil {
		return nil, err
	}
	candidate.Source = media.SourceApple
	if candidate.CoverURL == "" {
		candidate.CoverURL = firstNonEmpty(show.Artwork600, show.Artwork100)
	}
	if show.Genre != "" {
		candidate.Genres = []string{show.Genre}
	}
	return candidate, nil
}

// Search queries the iTunes directory for shows by name. Results are
// show-level candidates; the directory has no per-episode search.
func (c *Client) Search(ctx context.Context, query string) ([]media.Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, services.Wrap(services.ErrValidation, "podcast", "search", "empty query", nil)
	}
	params := url.Values{}
	params.Set("term", query)
	params.Set("media", "podcast")
	params.Set("entity", "podcast")
	params.Set("limit", "10")

	var payload itunesLookup
	if err := c.doer.GetJSON(ctx, c.itunesURL+"/search?"+params.Encode(), nil, &payload); err != nil {
		return nil, err
	}

	candidates := make([]media.Candidate, 0, len(payload.Results))
	for _, show := range payload.Results {
		if show.CollectionName == "" {
			continue
		}
		candidate := media.Candidate{
			Source:     media.SourceApple,
			Type:       media.TypePodcast,
			ExternalID: "apple:" + strconv.FormatInt(show.CollectionID, 10),
			Title:      show.CollectionName,
			CoverURL:   firstNonEmpty(show.Artwork600, show.Artwork100),
		}
		if show.ArtistName != "" {
			candidate.Authors = []string{show.ArtistName}
		}
		if show.Genre != "" {
			candidate.Genres = []string{show.Genre}
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

func largestImage(sets ...[]spotifyImage) string {
	var all []spotifyImage
	for _, set := range sets {
		all = append(all, set...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].MaxHeight > all[j].MaxHeight })
	for _, img := range all {
		if img.URL != "" {
			return img.URL
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func yearFrom(date string) int {
	if m := yearRe.FindString(date); m != "" {
		year, _ := strconv.Atoi(m)
		return year
	}
	return 0
}

var browserHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.5",
}
