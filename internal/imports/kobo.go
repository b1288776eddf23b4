package imports

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"yaad/internal/config"
	"yaad/internal/library"
	"yaad/internal/logging"
	"yaad/internal/media"
	"yaad/internal/metadata/httpx"
	"yaad/internal/normalize"
	"yaad/internal/ratelimit"
	"yaad/internal/services"
)

// koboIDPrefix marks rows whose only identifier is the device-native book id.
// A later sync that learns the ISBN replaces it.
const koboIDPrefix = "kobo:"

// koboBook is one entry in the device library listing.
type koboBook struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	ISBN        string  `json:"isbn"`
	PercentRead float64 `json:"percent_read"`
	LastRead    string  `json:"last_read"`
}

type koboLibraryResponse struct {
	Books []koboBook `json:"books"`
}

// Kobo syncs reading state from an e-reader's library listing. Matching
// widens progressively: device id, then ISBN, then exact title. Matched
// rows get only progress and status updates; a newly learned ISBN triggers
// one catalog re-enrichment.
type Kobo struct {
	doer     *httpx.Doer
	cfg      config.Kobo
	store    *library.Store
	service  *library.Service
	resolver Resolver
	logger   *slog.Logger
}

// KoboOption customizes the driver.
type KoboOption func(*Kobo)

// WithKoboDoer replaces the HTTP client.
func WithKoboDoer(doer *httpx.Doer) KoboOption {
	return func(k *Kobo) { k.doer = doer }
}

// NewKobo builds the sync driver.
func NewKobo(cfg config.Kobo, store *library.Store, service *library.Service, resolver Resolver, limiter *ratelimit.Limiter, logger *slog.Logger, opts ...KoboOption) (*Kobo, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "kobo", "new", "url is required", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	driver := &Kobo{
		cfg:      cfg,
		store:    store,
		service:  service,
		resolver: resolver,
		logger:   logging.NewComponentLogger(logger, "kobo"),
	}
	for _, opt := range opts {
		opt(driver)
	}
	if driver.doer == nil {
		driver.doer = httpx.New("kobo", 15*time.Second, limiter, logger)
	}
	return driver, nil
}

// Sync pulls the device library and folds it into the user's books.
func (k *Kobo) Sync(ctx context.Context, userID int64) (media.ImportResult, error) {
	var result media.ImportResult

	books, err := k.fetchLibrary(ctx)
	if err != nil {
		return result, err
	}
	k.logger.Info("device library fetched", "books", len(books))

	for _, book := range books {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if strings.TrimSpace(book.Title) == "" {
			continue
		}
		if err := k.syncBook(ctx, userID, book, &result); err != nil {
			if services.Fatal(err) {
				return result, err
			}
			result.RecordError(book.Title, err)
		}
	}
	return result, nil
}

func (k *Kobo) fetchLibrary(ctx context.Context) ([]koboBook, error) {
	headers := map[string]string{}
	if k.cfg.DeviceToken != "" {
		headers["Authorization"] = "Bearer " + k.cfg.DeviceToken
	}
	var response koboLibraryResponse
	endpoint := strings.TrimRight(k.cfg.URL, "/") + "/v1/library"
	if err := k.doer.GetJSON(ctx, endpoint, headers, &response); err != nil {
		return nil, err
	}
	return response.Books, nil
}

func (k *Kobo) syncBook(ctx context.Context, userID int64, book koboBook, result *media.ImportResult) error {
	isbn := normalize.ISBN(book.ISBN)

	item, err := k.findMatch(ctx, userID, book, isbn)
	if err != nil {
		return err
	}

	if item == nil {
		return k.createBook(ctx, userID, book, isbn, result)
	}

	changed := applyReadingState(item, book)

	// A row created before the device reported an ISBN can now be
	// re-enriched against the book catalogs.
	if isbn != "" && (item.ExternalID == "" || strings.HasPrefix(item.ExternalID, koboIDPrefix)) {
		if err := k.reEnrich(ctx, item, book, isbn); err != nil {
			k.logger.Debug("re-enrichment failed", "title", book.Title, "error", err)
		}
		changed = true
	}

	if !changed {
		result.Skipped++
		return nil
	}
	if err := k.store.UpdateItem(ctx, item); err != nil {
		return err
	}
	result.Updated++
	return nil
}

// findMatch widens from the device id to the ISBN to the exact title.
func (k *Kobo) findMatch(ctx context.Context, userID int64, book koboBook, isbn string) (*library.Item, error) {
	if book.ID != "" {
		item, err := k.store.GetByExternalID(ctx, userID, media.TypeBook, koboIDPrefix+book.ID)
		if err != nil || item != nil {
			return item, err
		}
	}
	if isbn != "" {
		item, err := k.store.GetByExternalID(ctx, userID, media.TypeBook, isbn)
		if err != nil || item != nil {
			return item, err
		}
	}
	return k.store.FindByTitleYear(ctx, userID, media.TypeBook, book.Title, 0)
}

func (k *Kobo) createBook(ctx context.Context, userID int64, book koboBook, isbn string, result *media.ImportResult) error {
	entry := media.RawEntry{
		Name:       book.Title,
		HintType:   media.TypeBook,
		HintAuthor: book.Author,
		HintISBN:   isbn,
		Status:     readingStatus(book),
	}
	if consumed := readingFinishedAt(book); consumed != nil {
		entry.ConsumedAt = consumed
	}

	candidate, err := k.resolver.Resolve(ctx, entry)
	if err != nil {
		if services.Fatal(err) {
			return err
		}
		k.logger.Debug("book unmatched in catalogs", "title", book.Title,
			"reason", services.FailureReason(err))
		candidate = nil
	}
	if candidate == nil && isbn == "" && book.ID != "" {
		// Without a catalog hit or an ISBN the device id keeps the row
		// findable on the next sync.
		candidate = &media.Candidate{
			Source:     media.SourceKobo,
			ExternalID: koboIDPrefix + book.ID,
			Type:       media.TypeBook,
			Title:      book.Title,
			Authors:    authorList(book.Author),
		}
	}

	outcome, err := k.service.Upsert(ctx, userID, candidate, entry, library.UpsertOptions{})
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

func (k *Kobo) reEnrich(ctx context.Context, item *library.Item, book koboBook, isbn string) error {
	candidate, err := k.resolver.Resolve(ctx, media.RawEntry{
		Name:     book.Title,
		HintType: media.TypeBook,
		HintISBN: isbn,
	})
	if err != nil {
		return err
	}
	if candidate == nil {
		item.ExternalID = isbn
		return nil
	}
	item.ExternalID = candidate.ExternalID
	if item.ExternalID == "" {
		item.ExternalID = isbn
	}
	fillCatalogFields(item, candidate)
	return nil
}

func fillCatalogFields(item *library.Item, candidate *media.Candidate) {
	if item.Description == "" {
		item.Description = candidate.Description
	}
	if item.CoverURL == "" {
		item.CoverURL = candidate.CoverURL
	}
	if item.PageCount == 0 {
		item.PageCount = candidate.PageCount
	}
	if item.Publisher == "" {
		item.Publisher = candidate.Publisher
	}
	if item.Year == 0 {
		item.Year = candidate.Year
	}
	if len(item.Authors) == 0 {
		item.Authors = candidate.Authors
	}
	if item.Source == "" {
		item.Source = candidate.Source
	}
}

// applyReadingState moves the row's status forward from device progress.
// Status never regresses from finished, and user dates set elsewhere stay.
func applyReadingState(item *library.Item, book koboBook) bool {
	status := readingStatus(book)
	changed := false
	if status == media.StatusFinished && item.Status != media.StatusFinished {
		item.Status = media.StatusFinished
		changed = true
	}
	if status == media.StatusInProgress && item.Status == media.StatusToConsume {
		item.Status = media.StatusInProgress
		changed = true
	}
	if item.ConsumedAt == nil {
		if consumed := readingFinishedAt(book); consumed != nil && item.Status == media.StatusFinished {
			item.ConsumedAt = consumed
			changed = true
		}
	}
	return changed
}

func readingStatus(book koboBook) media.Status {
	switch {
	case book.PercentRead >= 100:
		return media.StatusFinished
	case book.PercentRead > 0:
		return media.StatusInProgress
	default:
		return media.StatusToConsume
	}
}

func readingFinishedAt(book koboBook) *time.Time {
	if book.PercentRead < 100 || book.LastRead == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if parsed, err := time.Parse(layout, book.LastRead); err == nil {
			parsed = parsed.UTC()
			return &parsed
		}
	}
	return nil
}

func authorList(author string) []string {
	author = strings.TrimSpace(author)
	if author == "" {
		return nil
	}
	var authors []string
	for _, part := range strings.Split(author, ",") {
		if part = strings.TrimSpace(part); part != "" {
			authors = append(authors, part)
		}
	}
	return authors
}
