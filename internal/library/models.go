package library

import (
	"strings"
	"time"

	"yaad/internal/media"
)

// Item is one row of a user's library.
type Item struct {
	ID              int64
	UserID          int64
	Type            media.Type
	Title           string
	OriginalTitle   string
	ExternalID      string
	Year            int
	Description     string
	CoverURL        string
	DurationMinutes int
	PageCount       int
	Publisher       string
	Language        string
	Source          media.Source
	Confidence      float64

	// User-authored fields. Reconciliation never overwrites these.
	Status     media.Status
	Rating     float64
	Notes      string
	ConsumedAt *time.Time

	Authors []string
	Genres  []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Incomplete reports whether the row is missing metadata a successful
// reconciliation would have filled, making it a rebuild candidate.
func (i *Item) Incomplete() bool {
	if strings.TrimSpace(i.CoverURL) == "" || strings.TrimSpace(i.Description) == "" {
		return true
	}
	switch i.Type {
	case media.TypeFilm, media.TypeSeries:
		if i.Year == 0 || len(i.Authors) == 0 {
			return true
		}
	}
	if strings.HasPrefix(i.Title, "http://") || strings.HasPrefix(i.Title, "https://") {
		return true
	}
	return false
}

// fillFromItem copies catalog fields from other into empty fields only.
func (i *Item) fillFromItem(other *Item) {
	if i.Title == "" {
		i.Title = other.Title
	}
	if i.OriginalTitle == "" {
		i.OriginalTitle = other.OriginalTitle
	}
	if i.ExternalID == "" {
		i.ExternalID = other.ExternalID
	}
	if i.Year == 0 {
		i.Year = other.Year
	}
	if i.Description == "" {
		i.Description = other.Description
	}
	if i.CoverURL == "" {
		i.CoverURL = other.CoverURL
	}
	if i.DurationMinutes == 0 {
		i.DurationMinutes = other.DurationMinutes
	}
	if i.PageCount == 0 {
		i.PageCount = other.PageCount
	}
	if i.Publisher == "" {
		i.Publisher = other.Publisher
	}
	if i.Language == "" {
		i.Language = other.Language
	}
	if i.Source == "" {
		i.Source = other.Source
	}
	if i.Confidence == 0 {
		i.Confidence = other.Confidence
	}
	if len(i.Authors) == 0 {
		i.Authors = other.Authors
	}
	if len(i.Genres) == 0 {
		i.Genres = other.Genres
	}
}

// overwriteFromItem replaces catalog fields wholesale. User-authored fields
// are untouched.
func (i *Item) overwriteFromItem(other *Item) {
	i.Title = other.Title
	i.OriginalTitle = other.OriginalTitle
	i.ExternalID = other.ExternalID
	i.Year = other.Year
	i.Description = other.Description
	i.CoverURL = other.CoverURL
	i.DurationMinutes = other.DurationMinutes
	i.PageCount = other.PageCount
	i.Publisher = other.Publisher
	i.Language = other.Language
	i.Source = other.Source
	i.Confidence = other.Confidence
	i.Authors = other.Authors
	i.Genres = other.Genres
}
