package books

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"yaad/internal/cache"
	"yaad/internal/logging"
	"yaad/internal/media"
	"yaad/internal/normalize"
)

// Completeness weights. Cover art dominates because it is the field users
// notice missing first.
const (
	weightCover       = 10
	weightAuthors     = 5
	weightDescription = 3
	weightYear        = 2
	weightPages       = 1
	weightPublisher   = 1

	// completeThreshold is the score at which a record is considered good
	// enough to skip the best-edition search.
	completeThreshold = weightCover + weightAuthors + weightDescription
)

// isbnSearcher is the per-catalog contract the merger drives.
type isbnSearcher interface {
	SearchByISBN(ctx context.Context, isbn string) (*media.Candidate, error)
	SearchByQuery(ctx context.Context, title, author string) ([]media.Candidate, error)
}

// Merged is the book adapter the reconciliation engine consumes. It fans out
// to both catalogs and merges their answers field by field.
type Merged struct {
	google      isbnSearcher
	openLibrary isbnSearcher
	cache       *cache.Cache
	logger      *slog.Logger
}

// NewMerged combines the two catalog clients. Either may be nil, in which
// case the other answers alone.
func NewMerged(google, openLibrary isbnSearcher, sharedCache *cache.Cache, logger *slog.Logger) *Merged {
	return &Merged{
		google:      google,
		openLibrary: openLibrary,
		cache:       sharedCache,
		logger:      logging.NewComponentLogger(logger, "books"),
	}
}

// Completeness scores how fully populated a book record is.
func Completeness(candidate media.Candidate) int {
	score := 0
	if strings.TrimSpace(candidate.CoverURL) != "" {
		score += weightCover
	}
	if len(candidate.Authors) > 0 {
		score += weightAuthors
	}
	if strings.TrimSpace(candidate.Description) != "" {
		score += weightDescription
	}
	if candidate.Year > 0 {
		score += weightYear
	}
	if candidate.PageCount > 0 {
		score += weightPages
	}
	if strings.TrimSpace(candidate.Publisher) != "" {
		score += weightPublisher
	}
	return score
}

// SearchByISBN queries both catalogs and merges the results, preferring the
// more complete record as the base. When the merged record is still thin, a
// best-edition query by title and author may substitute a better-documented
// edition; the caller's ISBN survives on UserISBN either way.
func (m *Merged) SearchByISBN(ctx context.Context, isbn string) (*media.Candidate, error) {
	isbn = normalize.ISBN(isbn)
	if isbn == "" {
		return nil, nil
	}

	if cached, ok := m.cache.Get("books_isbn", isbn); ok {
		if candidate, ok := cached.(*media.Candidate); ok {
			copied := *candidate
			return &copied, nil
		}
	}

	google := m.lookup(ctx, m.google, isbn)
	openLib := m.lookup(ctx, m.openLibrary, isbn)

	merged := mergeCandidates(google, openLib)
	if merged == nil {
		return nil, nil
	}
	merged.UserISBN = isbn
	if merged.ExternalID == "" {
		merged.ExternalID = isbn
	}

	if Completeness(*merged) < completeThreshold {
		if better := m.bestEdition(ctx, *merged); better != nil {
			m.logger.Debug("substituted better documented edition",
				logging.String("user_isbn", isbn),
				logging.String(logging.FieldExternalID, better.ExternalID))
			better.UserISBN = isbn
			merged = better
		}
	}

	m.cache.Set("books_isbn", isbn, merged, cache.TTLMedium)
	copied := *merged
	return &copied, nil
}

// SearchByQuery fans the query out to both catalogs and deduplicates the
// union by ISBN, falling back to a normalized title+year key.
func (m *Merged) SearchByQuery(ctx context.Context, title, author string) ([]media.Candidate, error) {
	var combined []media.Candidate
	for _, client := range []isbnSearcher{m.google, m.openLibrary} {
		if client == nil {
			continue
		}
		results, err := client.SearchByQuery(ctx, title, author)
		if err != nil {
			m.logger.Debug("catalog query failed", logging.Error(err))
			continue
		}
		combined = append(combined, results...)
	}
	return dedupe(combined), nil
}

func (m *Merged) lookup(ctx context.Context, client isbnSearcher, isbn string) *media.Candidate {
	if client == nil {
		return nil
	}
	candidate, err := client.SearchByISBN(ctx, isbn)
	if err != nil {
		m.logger.Debug("catalog lookup failed",
			logging.String("isbn", isbn),
			logging.Error(err))
		return nil
	}
	return candidate
}

// bestEdition searches both catalogs by title and author and returns the most
// complete candidate whose title still matches, or nil.
func (m *Merged) bestEdition(ctx context.Context, current media.Candidate) *media.Candidate {
	author := ""
	if len(current.Authors) > 0 {
		author = current.Authors[0]
	}
	results, err := m.SearchByQuery(ctx, current.Title, author)
	if err != nil || len(results) == 0 {
		return nil
	}

	currentKey := normalize.CompareKey(current.Title)
	currentScore := Completeness(current)
	var best *media.Candidate
	bestScore := currentScore
	for idx := range results {
		if normalize.CompareKey(results[idx].Title) != currentKey {
			continue
		}
		if score := Completeness(results[idx]); score > bestScore {
			best = &results[idx]
			bestScore = score
		}
	}
	if best == nil {
		return nil
	}
	merged := mergeCandidates(best, &current)
	return merged
}

// mergeCandidates keeps the more complete record as the base and fills its
// empty fields from the other.
func mergeCandidates(a, b *media.Candidate) *media.Candidate {
	if a == nil && b == nil {
		return nil
	}
	if a == nil {
		copied := *b
		return &copied
	}
	if b == nil {
		copied := *a
		return &copied
	}

	base, donor := *a, *b
	if Completeness(donor) > Completeness(base) {
		base, donor = donor, base
	}

	if base.CoverURL == "" {
		base.CoverURL = donor.CoverURL
	}
	if len(base.Authors) == 0 {
		base.Authors = donor.Authors
	}
	if base.Description == "" {
		base.Description = donor.Description
	}
	if base.Year == 0 {
		base.Year = donor.Year
	}
	if base.PageCount == 0 {
		base.PageCount = donor.PageCount
	}
	if base.Publisher == "" {
		base.Publisher = donor.Publisher
	}
	if base.Language == "" {
		base.Language = donor.Language
	}
	if base.ExternalID == "" {
		base.ExternalID = donor.ExternalID
	}
	if len(base.Genres) == 0 {
		base.Genres = donor.Genres
	}
	return &base
}

func dedupe(candidates []media.Candidate) []media.Candidate {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]media.Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		key := candidate.ExternalID
		if key == "" {
			key = normalize.CompareKey(candidate.Title) + "|" + yearKey(candidate.Year)
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, candidate)
	}
	return out
}

func yearKey(year int) string {
	if year <= 0 {
		return "?"
	}
	return strconv.Itoa(year)
}
