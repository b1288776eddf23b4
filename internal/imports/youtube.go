package imports

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"yaad/internal/config"
	"yaad/internal/library"
	"yaad/internal/logging"
	"yaad/internal/media"
	"yaad/internal/metadata/httpx"
	"yaad/internal/ratelimit"
	"yaad/internal/services"
)

const (
	defaultYouTubeAPIBase  = "https://www.googleapis.com/youtube/v3"
	defaultYouTubeTokenURL = "https://oauth2.googleapis.com/token"

	// playlistPageSize is the API's maximum page size.
	playlistPageSize = 50
	// descriptionLimit keeps video descriptions, which can run to essays,
	// from bloating rows.
	descriptionLimit = 2000
)

var isoDurationRe = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// playlistItem is one saved video in the playlist listing. The item id is
// what the removal endpoint wants, not the video id.
type playlistItem struct {
	ID      string `json:"id"`
	Snippet struct {
		Title             string `json:"title"`
		Description       string `json:"description"`
		VideoOwnerChannel string `json:"videoOwnerChannelTitle"`
		ResourceID        struct {
			Kind    string `json:"kind"`
			VideoID string `json:"videoId"`
		} `json:"resourceId"`
	} `json:"snippet"`
}

type playlistPage struct {
	Items         []playlistItem `json:"items"`
	NextPageToken string         `json:"nextPageToken"`
}

type videoDetails struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			PublishedAt string `json:"publishedAt"`
			Thumbnails  map[string]struct {
				URL string `json:"url"`
			} `json:"thumbnails"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}

// videoInfo is the per-video slice of the details response the driver keeps.
type videoInfo struct {
	durationMinutes int
	year            int
	thumbnail       string
}

// YouTubeSync mirrors a watch-later playlist into the library. New videos
// become to-watch rows; videos whose local row is already finished are
// removed from the remote playlist so both sides converge.
type YouTubeSync struct {
	doer     *httpx.Doer
	cfg      config.YouTubeSync
	store    *library.Store
	service  *library.Service
	apiBase  string
	tokenURL string
	logger   *slog.Logger
}

// YouTubeSyncOption customizes the driver.
type YouTubeSyncOption func(*YouTubeSync)

// WithYouTubeSyncDoer replaces the HTTP client.
func WithYouTubeSyncDoer(doer *httpx.Doer) YouTubeSyncOption {
	return func(y *YouTubeSync) { y.doer = doer }
}

// WithYouTubeSyncEndpoints overrides the API and token endpoints, for tests.
func WithYouTubeSyncEndpoints(apiBase, tokenURL string) YouTubeSyncOption {
	return func(y *YouTubeSync) {
		y.apiBase = strings.TrimRight(apiBase, "/")
		y.tokenURL = tokenURL
	}
}

// NewYouTubeSync builds the playlist sync driver.
func NewYouTubeSync(cfg config.YouTubeSync, store *library.Store, service *library.Service, limiter *ratelimit.Limiter, logger *slog.Logger, opts ...YouTubeSyncOption) (*YouTubeSync, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" || strings.TrimSpace(cfg.RefreshToken) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "youtube_sync", "new", "oauth credentials are required", nil)
	}
	if cfg.PlaylistID == "" {
		cfg.PlaylistID = "WL"
	}
	if cfg.MaxVideos <= 0 {
		cfg.MaxVideos = 100
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	driver := &YouTubeSync{
		cfg:      cfg,
		store:    store,
		service:  service,
		apiBase:  defaultYouTubeAPIBase,
		tokenURL: defaultYouTubeTokenURL,
		logger:   logging.NewComponentLogger(logger, "youtube_sync"),
	}
	for _, opt := range opts {
		opt(driver)
	}
	if driver.doer == nil {
		driver.doer = httpx.New("youtube", 15*time.Second, limiter, logger)
	}
	return driver, nil
}

// Sync pulls the playlist and folds it into the user's videos.
func (y *YouTubeSync) Sync(ctx context.Context, userID int64) (media.ImportResult, error) {
	var result media.ImportResult

	token, err := y.refreshAccessToken(ctx)
	if err != nil {
		return result, err
	}

	items, err := y.fetchPlaylist(ctx, token)
	if err != nil {
		return result, err
	}
	y.logger.Info("playlist fetched", "videos", len(items))

	details, err := y.fetchDetails(ctx, token, videoIDs(items))
	if err != nil {
		// Details make the rows richer but the playlist alone suffices.
		y.logger.Debug("video details unavailable", logging.Error(err))
		details = map[string]videoInfo{}
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := y.syncVideo(ctx, userID, token, item, details, &result); err != nil {
			if services.Fatal(err) {
				return result, err
			}
			result.RecordError(item.Snippet.Title, err)
		}
	}
	return result, nil
}

// refreshAccessToken trades the stored refresh token for a short-lived
// access token.
func (y *YouTubeSync) refreshAccessToken(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("client_id", y.cfg.ClientID)
	form.Set("client_secret", y.cfg.ClientSecret)
	form.Set("refresh_token", y.cfg.RefreshToken)
	form.Set("grant_type", "refresh_token")

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := y.doer.PostForm(ctx, y.tokenURL, form, &payload); err != nil {
		return "", err
	}
	if payload.AccessToken == "" {
		return "", services.Wrap(services.ErrConfiguration, "youtube_sync", "token", "refresh produced no access token", nil)
	}
	return payload.AccessToken, nil
}

func (y *YouTubeSync) fetchPlaylist(ctx context.Context, token string) ([]playlistItem, error) {
	var items []playlistItem
	pageToken := ""
	for len(items) < y.cfg.MaxVideos {
		remaining := y.cfg.MaxVideos - len(items)
		pageSize := remaining
		if pageSize > playlistPageSize {
			pageSize = playlistPageSize
		}

		params := url.Values{}
		params.Set("part", "snippet,contentDetails")
		params.Set("playlistId", y.cfg.PlaylistID)
		params.Set("maxResults", strconv.Itoa(pageSize))
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var page playlistPage
		endpoint := y.apiBase + "/playlistItems?" + params.Encode()
		if err := y.doer.GetJSON(ctx, endpoint, bearer(token), &page); err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			if item.Snippet.ResourceID.Kind != "youtube#video" {
				continue
			}
			items = append(items, item)
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}
	return items, nil
}

// fetchDetails batches video ids through the videos endpoint for durations,
// publish years, and thumbnails.
func (y *YouTubeSync) fetchDetails(ctx context.Context, token string, ids []string) (map[string]videoInfo, error) {
	details := make(map[string]videoInfo, len(ids))
	for start := 0; start < len(ids); start += playlistPageSize {
		end := start + playlistPageSize
		if end > len(ids) {
			end = len(ids)
		}

		params := url.Values{}
		params.Set("part", "snippet,contentDetails")
		params.Set("id", strings.Join(ids[start:end], ","))

		var page videoDetails
		endpoint := y.apiBase + "/videos?" + params.Encode()
		if err := y.doer.GetJSON(ctx, endpoint, bearer(token), &page); err != nil {
			return nil, err
		}
		for _, video := range page.Items {
			info := videoInfo{
				durationMinutes: parseISODuration(video.ContentDetails.Duration),
				thumbnail:       bestThumbnail(thumbnailURLs(video.Snippet.Thumbnails)),
			}
			if len(video.Snippet.PublishedAt) >= 4 {
				info.year, _ = strconv.Atoi(video.Snippet.PublishedAt[:4])
			}
			details[video.ID] = info
		}
	}
	return details, nil
}

func (y *YouTubeSync) syncVideo(ctx context.Context, userID int64, token string, item playlistItem, details map[string]videoInfo, result *media.ImportResult) error {
	videoID := item.Snippet.ResourceID.VideoID

	existing, err := y.store.GetByExternalID(ctx, userID, media.TypeVideo, videoID)
	if err != nil {
		return err
	}
	if existing != nil {
		// A locally finished video has no business staying in the
		// watch-later playlist.
		if existing.Status == media.StatusFinished {
			if err := y.removeFromPlaylist(ctx, token, item.ID); err != nil {
				return err
			}
			y.logger.Info("removed finished video from playlist", "title", existing.Title)
			result.Updated++
			return nil
		}
		result.Skipped++
		return nil
	}

	info := details[videoID]
	candidate := &media.Candidate{
		Source:          media.SourceYouTube,
		ExternalID:      videoID,
		Type:            media.TypeVideo,
		Title:           strings.TrimSpace(item.Snippet.Title),
		Description:     truncate(item.Snippet.Description, descriptionLimit),
		Year:            info.year,
		CoverURL:        info.thumbnail,
		DurationMinutes: info.durationMinutes,
		Confidence:      1,
	}
	if channel := strings.TrimSpace(item.Snippet.VideoOwnerChannel); channel != "" {
		candidate.Authors = []string{channel}
	}

	entry := media.RawEntry{
		Name:     candidate.Title,
		HintType: media.TypeVideo,
		Status:   media.StatusToConsume,
	}
	outcome, err := y.service.Upsert(ctx, userID, candidate, entry, library.UpsertOptions{SkipExisting: true})
	if err != nil {
		return err
	}
	switch outcome.Status {
	case library.StatusCreated:
		result.Imported++
	case library.StatusUpdated:
		result.Updated++
	default:
		result.Skipped++
	}
	return nil
}

func (y *YouTubeSync) removeFromPlaylist(ctx context.Context, token, playlistItemID string) error {
	params := url.Values{}
	params.Set("id", playlistItemID)
	return y.doer.Delete(ctx, y.apiBase+"/playlistItems?"+params.Encode(), bearer(token))
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func videoIDs(items []playlistItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.Snippet.ResourceID.VideoID)
	}
	return ids
}

// parseISODuration reads the API's ISO 8601 durations, PT1H2M3S and the
// shorter forms, into whole minutes with half-minute rounding. Anything
// nonzero rounds up to at least one minute.
func parseISODuration(raw string) int {
	m := isoDurationRe.FindStringSubmatch(raw)
	if m == nil {
		return 0
	}
	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])
	total := hours*60 + minutes
	if seconds >= 30 {
		total++
	}
	if total == 0 && seconds > 0 {
		total = 1
	}
	return total
}

// thumbnailOrder is the resolution preference for cover art.
var thumbnailOrder = []string{"maxres", "standard", "high", "medium", "default"}

func thumbnailURLs(thumbnails map[string]struct {
	URL string `json:"url"`
}) map[string]string {
	urls := make(map[string]string, len(thumbnails))
	for name, thumb := range thumbnails {
		urls[name] = thumb.URL
	}
	return urls
}

func bestThumbnail(urls map[string]string) string {
	for _, name := range thumbnailOrder {
		if u := urls[name]; u != "" {
			return u
		}
	}
	return ""
}

func truncate(text string, limit int) string {
	text = strings.TrimSpace(text)
	if len(text) <= limit {
		return text
	}
	return text[:limit]
}
