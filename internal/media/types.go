package media

import (
	"strings"
	"time"
)

// Type identifies the kind of media a record describes.
type Type string

const (
	TypeFilm    Type = "film"
	TypeSeries  Type = "series"
	TypeBook    Type = "book"
	TypeVideo   Type = "video"
	TypePodcast Type = "podcast"
	TypeShow    Type = "show"
)

// ParseType maps a free-form type string to a known media type.
func ParseType(raw string) (Type, bool) {
	switch Type(strings.ToLower(strings.TrimSpace(raw))) {
	case TypeFilm:
		return TypeFilm, true
	case TypeSeries:
		return TypeSeries, true
	case TypeBook:
		return TypeBook, true
	case TypeVideo:
		return TypeVideo, true
	case TypePodcast:
		return TypePodcast, true
	case TypeShow:
		return TypeShow, true
	default:
		return "", false
	}
}

// Status tracks a user's consumption progress for a library item.
type Status string

const (
	StatusToConsume  Status = "to_consume"
	StatusInProgress Status = "in_progress"
	StatusFinished   Status = "finished"
	StatusAbandoned  Status = "abandoned"
)

// Valid reports whether the status is one of the known values.
func (s Status) Valid() bool {
	switch s {
	case StatusToConsume, StatusInProgress, StatusFinished, StatusAbandoned:
		return true
	default:
		return false
	}
}

// Source names the external catalog a candidate came from.
type Source string

const (
	SourceTMDB        Source = "tmdb"
	SourceGoogleBooks Source = "google_books"
	SourceOpenLibrary Source = "open_library"
	SourceYouTube     Source = "youtube"
	SourceJustWatch   Source = "justwatch"
	SourceLetterboxd  Source = "letterboxd"
	SourceKobo        Source = "kobo"
	SourceJellyfin    Source = "jellyfin"
	SourceSpotify     Source = "spotify"
	SourceDeezer      Source = "deezer"
	SourceApple       Source = "apple_podcasts"
	SourceRSS         Source = "rss"
)

// Candidate is a provisional metadata record produced by a catalog adapter
// during search or detail lookup. It competes with other candidates to become
// the accepted match for a raw entry.
type Candidate struct {
	Source        Source
	ExternalID    string
	Type          Type
	Title         string
	OriginalTitle string
	Year          int
	CoverURL      string
	Description   string
	// DurationMinutes applies to films, series episodes, and videos.
	DurationMinutes int
	PageCount       int
	Authors         []string
	Genres          []string
	Publisher       string
	Language        string
	// UserISBN preserves the identifier the user supplied when edition
	// substitution picked a better-documented printing (see books.Merged).
	UserISBN string
	// VoteAverage and Popularity are catalog-side quality signals used only
	// as scoring tiebreaks.
	VoteAverage float64
	Popularity  float64
	// Confidence is filled by the match scorer, 0 to 1.
	Confidence float64
}

// DisplayTitle prefers the localized title and falls back to the original.
func (c Candidate) DisplayTitle() string {
	if strings.TrimSpace(c.Title) != "" {
		return c.Title
	}
	return c.OriginalTitle
}

// RawEntry is one row or item from a foreign source, as handed to the
// reconciliation engine by an import driver.
type RawEntry struct {
	Name     string
	HintYear int
	HintType Type
	HintURL  string
	// HintAuthor narrows book queries when the source records one.
	HintAuthor string
	// HintISBN short-circuits book search to an identifier lookup.
	HintISBN   string
	UserRating float64
	ConsumedAt *time.Time
	Status     Status
	// Tags carries free-form labels from the source (diary tags, shelves).
	Tags []string
}
