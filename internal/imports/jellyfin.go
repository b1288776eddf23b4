package imports

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
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

// jellyfinItem is one movie or series from the server library listing.
type jellyfinItem struct {
	ID             string            `json:"Id"`
	Name           string            `json:"Name"`
	Type           string            `json:"Type"`
	ProductionYear int               `json:"ProductionYear"`
	ProviderIDs    map[string]string `json:"ProviderIds"`
	UserData       struct {
		Played         bool   `json:"Played"`
		LastPlayedDate string `json:"LastPlayedDate"`
	} `json:"UserData"`
}

type jellyfinItemsResponse struct {
	Items []jellyfinItem `json:"Items"`
}

// Jellyfin syncs watched state with a media server in both directions:
// server plays pull into the library as finished rows, and locally finished
// films push back as played. Matching is by TMDB provider id.
type Jellyfin struct {
	doer    *httpx.Doer
	cfg     config.Jellyfin
	store   *library.Store
	service *library.Service
	logger  *slog.Logger
}

// JellyfinOption customizes the driver.
type JellyfinOption func(*Jellyfin)

// WithJellyfinDoer replaces the HTTP client.
func WithJellyfinDoer(doer *httpx.Doer) JellyfinOption {
	return func(j *Jellyfin) { j.doer = doer }
}

// NewJellyfin builds the sync driver.
func NewJellyfin(cfg config.Jellyfin, store *library.Store, service *library.Service, limiter *ratelimit.Limiter, logger *slog.Logger, opts ...JellyfinOption) (*Jellyfin, error) {
	if strings.TrimSpace(cfg.URL) == "" || strings.TrimSpace(cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "jellyfin", "new", "url and api_key are required", nil)
	}
	if strings.TrimSpace(cfg.UserID) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "jellyfin", "new", "user_id is required", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	driver := &Jellyfin{
		cfg:     cfg,
		store:   store,
		service: service,
		logger:  logging.NewComponentLogger(logger, "jellyfin"),
	}
	for _, opt := range opts {
		opt(driver)
	}
	if driver.doer == nil {
		driver.doer = httpx.New("jellyfin", 15*time.Second, limiter, logger)
	}
	return driver, nil
}

// Sync runs the pull phase then the push phase and merges their counts.
func (j *Jellyfin) Sync(ctx context.Context, userID int64) (media.ImportResult, error) {
	items, err := j.fetchItems(ctx)
	if err != nil {
		return media.ImportResult{}, err
	}
	j.logger.Info("server library fetched", "items", len(items))

	result, err := j.pull(ctx, userID, items)
	if err != nil {
		return result, err
	}
	pushed, err := j.push(ctx, userID, items)
	result.Merge(pushed)
	return result, err
}

func (j *Jellyfin) fetchItems(ctx context.Context) ([]jellyfinItem, error) {
	query := url.Values{}
	query.Set("IncludeItemTypes", "Movie,Series")
	query.Set("Recursive", "true")
	query.Set("Fields", "ProviderIds,ProductionYear")

	endpoint := fmt.Sprintf("%s/Users/%s/Items?%s",
		strings.TrimRight(j.cfg.URL, "/"), url.PathEscape(j.cfg.UserID), query.Encode())

	var response jellyfinItemsResponse
	if err := j.doer.GetJSON(ctx, endpoint, j.authHeaders(), &response); err != nil {
		return nil, err
	}
	return response.Items, nil
}

func (j *Jellyfin) authHeaders() map[string]string {
	return map[string]string{
		"Authorization": fmt.Sprintf(`MediaBrowser Token="%s"`, j.cfg.APIKey),
	}
}

// pull folds server plays into the library. Only watched state moves; rows
// the server does not know stay untouched.
func (j *Jellyfin) pull(ctx context.Context, userID int64, items []jellyfinItem) (media.ImportResult, error) {
	var result media.ImportResult

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !item.UserData.Played {
			continue
		}
		mediaType := serverItemType(item.Type)
		if mediaType == "" {
			continue
		}
		tmdbID := providerTMDBID(item)
		if tmdbID == "" {
			result.Skipped++
			continue
		}

		existing, err := j.store.GetByExternalID(ctx, userID, mediaType, tmdbID)
		if err != nil {
			result.RecordError(item.Name, err)
			continue
		}
		if existing == nil {
			if err := j.createFromServer(ctx, userID, item, mediaType, tmdbID, &result); err != nil {
				result.RecordError(item.Name, err)
			}
			continue
		}
		if existing.Status == media.StatusFinished {
			result.Skipped++
			continue
		}
		existing.Status = media.StatusFinished
		if existing.ConsumedAt == nil {
			if played := parsePlayedDate(item.UserData.LastPlayedDate); played != nil {
				existing.ConsumedAt = played
			}
		}
		if err := j.store.UpdateItem(ctx, existing); err != nil {
			result.RecordError(item.Name, err)
			continue
		}
		result.Updated++
	}
	return result, nil
}

func (j *Jellyfin) createFromServer(ctx context.Context, userID int64, item jellyfinItem, mediaType media.Type, tmdbID string, result *media.ImportResult) error {
	candidate := &media.Candidate{
		Source:     media.SourceJellyfin,
		ExternalID: tmdbID,
		Type:       mediaType,
		Title:      item.Name,
		Year:       item.ProductionYear,
	}
	entry := media.RawEntry{
		Name:       item.Name,
		HintType:   mediaType,
		HintYear:   item.ProductionYear,
		Status:     media.StatusFinished,
		ConsumedAt: parsePlayedDate(item.UserData.LastPlayedDate),
	}
	outcome, err := j.service.Upsert(ctx, userID, candidate, entry, library.UpsertOptions{})
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

// push marks locally finished films and series as played on the server when
// the server tracks them and does not know yet.
func (j *Jellyfin) push(ctx context.Context, userID int64, items []jellyfinItem) (media.ImportResult, error) {
	var result media.ImportResult

	serverByTMDB := make(map[string]jellyfinItem, len(items))
	for _, item := range items {
		if id := providerTMDBID(item); id != "" {
			serverByTMDB[id] = item
		}
	}

	finished, err := j.store.ListByUser(ctx, userID, media.TypeFilm, media.TypeSeries)
	if err != nil {
		return result, err
	}
	for _, row := range finished {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if row.Status != media.StatusFinished || row.ExternalID == "" {
			continue
		}
		serverItem, known := serverByTMDB[row.ExternalID]
		if !known || serverItem.UserData.Played {
			continue
		}
		if err := j.markPlayed(ctx, serverItem.ID); err != nil {
			result.RecordError(row.Title, err)
			continue
		}
		result.Updated++
	}
	return result, nil
}

func (j *Jellyfin) markPlayed(ctx context.Context, serverItemID string) error {
	endpoint := fmt.Sprintf("%s/Users/%s/PlayedItems/%s",
		strings.TrimRight(j.cfg.URL, "/"), url.PathEscape(j.cfg.UserID), url.PathEscape(serverItemID))
	return j.doer.PostJSON(ctx, endpoint, j.authHeaders(), struct{}{}, nil)
}

func serverItemType(raw string) media.Type {
	switch raw {
	case "Movie":
		return media.TypeFilm
	case "Series":
		return media.TypeSeries
	}
	return ""
}

func providerTMDBID(item jellyfinItem) string {
	for key, value := range item.ProviderIDs {
		if strings.EqualFold(key, "tmdb") {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func parsePlayedDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			parsed = parsed.UTC()
			return &parsed
		}
	}
	return nil
}
