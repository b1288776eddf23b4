package youtube

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"yaad/internal/cache"
	"yaad/internal/logging"
	"yaad/internal/media"
	"yaad/internal/metadata/httpx"
	"yaad/internal/normalize"
	"yaad/internal/ratelimit"
	"yaad/internal/services"
)

var (
	watchTitleRe    = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	ogTitleRe       = regexp.MustCompile(`(?i)<meta\s+property="og:title"\s+content="([^"]+)"`)
	lengthSecondsRe = regexp.MustCompile(`"lengthSeconds"\s*:\s*"(\d+)"`)
)

type oembedResponse struct {
	Title      string `json:"title"`
	AuthorName string `json:"author_name"`
}

// Client resolves YouTube video metadata without an API key. It asks the
// oEmbed endpoint first and scrapes the watch page when oEmbed refuses.
type Client struct {
	oembedURL string
	watchURL  string
	doer      *httpx.Doer
	cache     *cache.Cache
	logger    *slog.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithCache attaches a shared cache for resolved videos.
func WithCache(shared *cache.Cache) Option {
	return func(c *Client) {
		c.cache = shared
	}
}

// WithDoer replaces the HTTP layer, mainly for tests.
func WithDoer(doer *httpx.Doer) Option {
	return func(c *Client) {
		c.doer = doer
	}
}

// New builds a YouTube metadata client.
func New(oembedURL, watchURL string, limiter *ratelimit.Limiter, logger *slog.Logger, opts ...Option) (*Client, error) {
	oembedURL = strings.TrimRight(strings.TrimSpace(oembedURL), "/")
	watchURL = strings.TrimRight(strings.TrimSpace(watchURL), "/")
	if oembedURL == "" || watchURL == "" {
		return nil, errors.New("youtube endpoints required")
	}
	client := &Client{
		oembedURL: oembedURL,
		watchURL:  watchURL,
		logger:    logging.NewComponentLogger(logger, "youtube"),
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.doer == nil {
		client.doer = httpx.New(string(media.SourceYouTube), 10*time.Second, limiter, logger)
	}
	return client, nil
}

// Lookup resolves a video URL or bare 11-character ID into a candidate. The
// thumbnail always points at the predictable maxresdefault image, which
// exists for every video that has one and 404s harmlessly otherwise.
func (c *Client) Lookup(ctx context.Context, raw string) (*media.Candidate, error) {
	videoID := normalize.VideoID(raw)
	if videoID == "" {
		return nil, services.Wrap(services.ErrValidation, string(media.SourceYouTube), "lookup",
			fmt.Sprintf("no video id in %q", raw), nil)
	}

	if cached, ok := c.cache.Get("youtube", videoID); ok {
		if candidate, ok := cached.(*media.Candidate); ok {
			copied := *candidate
			return &copied, nil
		}
	}

	candidate := &media.Candidate{
		Source:     media.SourceYouTube,
		Type:       media.TypeVideo,
		ExternalID: videoID,
		CoverURL:   fmt.Sprintf("https://img.youtube.com/vi/%s/maxresdefault.jpg", videoID),
	}

	var durationMinutes int
	title, author, err := c.fromOEmbed(ctx, videoID)
	if err != nil {
		c.logger.Debug("oembed lookup failed, scraping watch page",
			logging.String(logging.FieldExternalID, videoID),
			logging.Error(err))
		title, durationMinutes, err = c.fromWatchPage(ctx, videoID)
		if err != nil {
			return nil, err
		}
	} else if _, minutes, werr := c.fromWatchPage(ctx, videoID); werr == nil {
		// oEmbed carries no duration field at all; the watch page's player
		// payload is the only place to read it without an API key.
		durationMinutes = minutes
	}
	if strings.TrimSpace(title) == "" {
		return nil, services.Wrap(services.ErrNotFound, string(media.SourceYouTube), "lookup",
			"video has no resolvable title", nil)
	}

	candidate.Title = strings.TrimSpace(title)
	candidate.DurationMinutes = durationMinutes
	if author != "" {
		candidate.Authors = []string{author}
	}

	c.cache.Set("youtube", videoID, candidate, cache.TTLLong)
	copied := *candidate
	return &copied, nil
}

func (c *Client) fromOEmbed(ctx context.Context, videoID string) (title, author string, err error) {
	params := url.Values{}
	params.Set("url", "https://www.youtube.com/watch?v="+videoID)
	params.Set("format", "json")

	var payload oembedResponse
	endpoint := fmt.Sprintf("%s?%s", c.oembedURL, params.Encode())
	if err := c.doer.GetJSON(ctx, endpoint, nil, &payload); err != nil {
		return "", "", err
	}
	return payload.Title, payload.AuthorName, nil
}

// fromWatchPage scrapes the watch page. It is both the title fallback for
// private-adjacent videos that oEmbed rejects and the only source for the
// video duration, read from the embedded player response.
func (c *Client) fromWatchPage(ctx context.Context, videoID string) (string, int, error) {
	endpoint := fmt.Sprintf("%s?v=%s", c.watchURL, videoID)
	body, err := c.doer.Get(ctx, endpoint, map[string]string{
		"Accept-Language": "en-US,en;q=0.8",
	})
	if err != nil {
		return "", 0, err
	}
	page := string(body)
	title := scrapeTitle(page)
	minutes := scrapeDurationMinutes(page)
	if title == "" && minutes == 0 {
		return "", 0, services.Wrap(services.ErrNotFound, string(media.SourceYouTube), "watch_page",
			"nothing scrapeable in watch page", nil)
	}
	return title, minutes, nil
}

// scrapeDurationMinutes reads lengthSeconds out of the player payload and
// rounds to minutes, never below one for a non-empty duration.
func scrapeDurationMinutes(page string) int {
	m := lengthSecondsRe.FindStringSubmatch(page)
	if m == nil {
		return 0
	}
	seconds, err := strconv.Atoi(m[1])
	if err != nil || seconds <= 0 {
		return 0
	}
	minutes := (seconds + 30) / 60
	if minutes == 0 {
		minutes = 1
	}
	return minutes
}

func scrapeTitle(page string) string {
	if m := ogTitleRe.FindStringSubmatch(page); m != nil {
		return html.UnescapeString(strings.TrimSpace(m[1]))
	}
	m := watchTitleRe.FindStringSubmatch(page)
	if m == nil {
		return ""
	}
	title := html.UnescapeString(strings.TrimSpace(m[1]))
	title = strings.TrimSuffix(title, " - YouTube")
	return strings.TrimSpace(title)
}
