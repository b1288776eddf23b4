package library

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"yaad/internal/cache"
	"yaad/internal/logging"
	"yaad/internal/media"
)

// UpsertStatus labels the outcome of one upsert call.
type UpsertStatus string

const (
	StatusCreated UpsertStatus = "created"
	StatusUpdated UpsertStatus = "updated"
	StatusSkipped UpsertStatus = "skipped"
)

// UpsertOptions control how an upsert treats rows that already exist.
type UpsertOptions struct {
	// SkipExisting leaves matched rows untouched.
	SkipExisting bool
	// ForceOverwrite replaces catalog fields on matched rows wholesale.
	// User-authored fields are never replaced either way.
	ForceOverwrite bool
}

// UpsertOutcome reports what happened to the entry and which row holds it.
type UpsertOutcome struct {
	Status UpsertStatus
	ItemID int64
}

// Service applies reconciled entries to the library, deduplicating against
// rows that already exist.
type Service struct {
	store  *Store
	cache  *cache.Cache
	logger *slog.Logger
}

// cacheNamespace scopes list and search results that mutations invalidate.
const cacheNamespace = "library"

// NewService builds an upsert service. The cache may be nil.
func NewService(store *Store, cacheStore *cache.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{store: store, cache: cacheStore, logger: logger}
}

// Upsert records one reconciled entry for the user. The candidate may be nil
// when reconciliation found nothing; the entry's own fields still produce a
// row so the user's history is not silently dropped.
//
// Matching runs in two passes. The external id is authoritative when the
// candidate carries one. Otherwise a heuristic title and year lookup catches
// rows imported before they had an id. The database's unique index is the
// final word: a constraint violation on commit means another writer got
// there first and the entry is reported as skipped, not failed.
func (s *Service) Upsert(ctx context.Context, userID int64, candidate *media.Candidate, entry media.RawEntry, opts UpsertOptions) (UpsertOutcome, error) {
	incoming := buildItem(userID, candidate, entry)
	if strings.TrimSpace(incoming.Title) == "" {
		return UpsertOutcome{}, fmt.Errorf("entry has no title")
	}

	if incoming.ExternalID != "" {
		existing, err := s.store.GetByExternalID(ctx, userID, incoming.Type, incoming.ExternalID)
		if err != nil {
			return UpsertOutcome{}, err
		}
		if existing != nil {
			return s.applyToExisting(ctx, existing, incoming, opts)
		}
	}

	heuristic, err := s.store.FindByTitleYear(ctx, userID, incoming.Type, incoming.Title, incoming.Year)
	if err != nil {
		return UpsertOutcome{}, err
	}
	if heuristic != nil {
		if incoming.ExternalID != "" {
			target, err := s.store.GetByExternalID(ctx, userID, incoming.Type, incoming.ExternalID)
			if err != nil {
				return UpsertOutcome{}, err
			}
			if target != nil && target.ID != heuristic.ID {
				// The heuristic row and the id-holding row are the same
				// work imported twice under different spellings. Keep the
				// row that owns the id and retire the stray.
				s.logger.Info("merging duplicate rows",
					"stale_id", heuristic.ID,
					"target_id", target.ID,
					"external_id", incoming.ExternalID)
				if err := s.store.DeleteItem(ctx, heuristic.ID); err != nil {
					return UpsertOutcome{}, err
				}
				return s.applyToExisting(ctx, target, incoming, opts)
			}
		}
		return s.applyToExisting(ctx, heuristic, incoming, opts)
	}

	if err := s.store.CreateItem(ctx, incoming); err != nil {
		if IsUniqueViolation(err) {
			// A concurrent import committed the same key between our lookup
			// and this insert. The row exists, which is all the caller
			// wanted.
			s.logger.Debug("duplicate insert lost the race",
				"title", incoming.Title, "external_id", incoming.ExternalID)
			return UpsertOutcome{Status: StatusSkipped}, nil
		}
		return UpsertOutcome{}, err
	}
	s.invalidate(userID)
	return UpsertOutcome{Status: StatusCreated, ItemID: incoming.ID}, nil
}

func (s *Service) applyToExisting(ctx context.Context, existing, incoming *Item, opts UpsertOptions) (UpsertOutcome, error) {
	if opts.SkipExisting {
		return UpsertOutcome{Status: StatusSkipped, ItemID: existing.ID}, nil
	}

	if opts.ForceOverwrite {
		existing.overwriteFromItem(incoming)
	} else {
		existing.fillFromItem(incoming)
	}
	fillUserFields(existing, incoming)

	if err := s.store.UpdateItem(ctx, existing); err != nil {
		if IsUniqueViolation(err) {
			return UpsertOutcome{Status: StatusSkipped, ItemID: existing.ID}, nil
		}
		return UpsertOutcome{}, err
	}
	s.invalidate(existing.UserID)
	return UpsertOutcome{Status: StatusUpdated, ItemID: existing.ID}, nil
}

// ApplyRebuild folds a freshly resolved candidate into an existing
// incomplete row. When the candidate's external id already belongs to a
// different row the incomplete row is a duplicate: it is deleted and the
// candidate enriches the id-holding row instead.
func (s *Service) ApplyRebuild(ctx context.Context, item *Item, candidate *media.Candidate) (UpsertOutcome, error) {
	if item == nil {
		return UpsertOutcome{}, fmt.Errorf("item is nil")
	}
	if candidate == nil {
		return UpsertOutcome{Status: StatusSkipped, ItemID: item.ID}, nil
	}
	resolved := buildItem(item.UserID, candidate, media.RawEntry{HintType: item.Type})

	if resolved.ExternalID != "" && resolved.ExternalID != item.ExternalID {
		target, err := s.store.GetByExternalID(ctx, item.UserID, item.Type, resolved.ExternalID)
		if err != nil {
			return UpsertOutcome{}, err
		}
		if target != nil && target.ID != item.ID {
			s.logger.Info("incomplete row duplicates an existing one",
				"stale_id", item.ID, "target_id", target.ID,
				"external_id", resolved.ExternalID)
			if err := s.store.DeleteItem(ctx, item.ID); err != nil {
				return UpsertOutcome{}, err
			}
			return s.applyToExisting(ctx, target, resolved, UpsertOptions{})
		}
	}

	// URL-shaped titles are placeholders from a failed earlier import and
	// give way to the resolved name.
	if strings.HasPrefix(item.Title, "http://") || strings.HasPrefix(item.Title, "https://") {
		item.Title = resolved.Title
	}
	item.fillFromItem(resolved)
	item.ExternalID = resolved.ExternalID
	if resolved.Source != "" {
		item.Source = resolved.Source
		item.Confidence = resolved.Confidence
	}
	if err := s.store.UpdateItem(ctx, item); err != nil {
		if IsUniqueViolation(err) {
			return UpsertOutcome{Status: StatusSkipped, ItemID: item.ID}, nil
		}
		return UpsertOutcome{}, err
	}
	s.invalidate(item.UserID)
	return UpsertOutcome{Status: StatusUpdated, ItemID: item.ID}, nil
}

func (s *Service) invalidate(userID int64) {
	s.cache.InvalidatePrefix(cacheNamespace, fmt.Sprintf("%d|", userID))
}

// buildItem folds the candidate's catalog metadata and the entry's personal
// data into one prospective row.
func buildItem(userID int64, candidate *media.Candidate, entry media.RawEntry) *Item {
	item := &Item{
		UserID: userID,
		Type:   entry.HintType,
		Title:  strings.TrimSpace(entry.Name),
		Year:   entry.HintYear,
		Status: deriveStatus(entry),
		Rating: media.ClampRating(entry.UserRating),
	}
	if entry.ConsumedAt != nil {
		consumed := entry.ConsumedAt.UTC()
		item.ConsumedAt = &consumed
	}
	if len(entry.Tags) > 0 {
		item.Notes = strings.Join(entry.Tags, ", ")
	}
	if candidate != nil {
		if candidate.Type != "" {
			item.Type = candidate.Type
		}
		if title := candidate.DisplayTitle(); title != "" {
			item.Title = title
		}
		item.OriginalTitle = candidate.OriginalTitle
		item.ExternalID = candidate.ExternalID
		if candidate.Year > 0 {
			item.Year = candidate.Year
		}
		item.Description = candidate.Description
		item.CoverURL = candidate.CoverURL
		item.DurationMinutes = candidate.DurationMinutes
		item.PageCount = candidate.PageCount
		item.Publisher = candidate.Publisher
		item.Language = candidate.Language
		item.Source = candidate.Source
		item.Confidence = candidate.Confidence
		item.Authors = append([]string(nil), candidate.Authors...)
		item.Genres = append([]string(nil), candidate.Genres...)
	}
	return item
}

// deriveStatus picks a consumption status for a fresh row. An explicit status
// from the source wins; a rating or a consumption date implies the work was
// finished.
func deriveStatus(entry media.RawEntry) media.Status {
	if entry.Status.Valid() {
		return entry.Status
	}
	if entry.UserRating > 0 || entry.ConsumedAt != nil {
		return media.StatusFinished
	}
	return media.StatusToConsume
}

// fillUserFields copies the entry's personal data onto the row only where
// the row has none. Existing ratings, notes, statuses and dates always win.
func fillUserFields(existing, incoming *Item) {
	if existing.Rating == 0 && incoming.Rating > 0 {
		existing.Rating = incoming.Rating
	}
	if existing.Notes == "" && incoming.Notes != "" {
		existing.Notes = incoming.Notes
	}
	if existing.ConsumedAt == nil && incoming.ConsumedAt != nil {
		existing.ConsumedAt = incoming.ConsumedAt
	}
	if existing.Status == media.StatusToConsume && incoming.Status != media.StatusToConsume {
		existing.Status = incoming.Status
	}
}
