package config

const (
	defaultDatabasePath        = "~/.local/share/yaad/library.db"
	defaultLogDir              = "~/.local/share/yaad/logs"
	defaultLockFile            = "~/.local/share/yaad/import.lock"
	defaultTMDBBaseURL         = "https://api.themoviedb.org/3"
	defaultTMDBLanguage        = "fr-FR"
	defaultGoogleBooksBaseURL  = "https://www.googleapis.com/books/v1"
	defaultOpenLibraryBaseURL  = "https://openlibrary.org"
	defaultBooksLanguage       = "fr"
	defaultOEmbedURL           = "https://www.youtube.com/oembed"
	defaultWatchURL            = "https://www.youtube.com/watch"
	defaultJustWatchBaseURL    = "https://apis.justwatch.com"
	defaultJustWatchCountry    = "FR"
	defaultSyncPlaylistID      = "WL"
	defaultSyncMaxVideos       = 100
	defaultMinScore            = 50.0
	defaultGoodScore           = 70.0
	defaultTVMargin            = 20.0
	defaultFuzzyThreshold      = 0.5
	defaultMinIntervalMS       = 100
	defaultImportPacingMS      = 500
	defaultImportPageCeiling   = 20
	defaultRequestTimeoutSecs  = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultSourcePerSecond     = 2.0
	defaultSourceBurst         = 5
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			Database: defaultDatabasePath,
			LogDir:   defaultLogDir,
			LockFile: defaultLockFile,
		},
		TMDB: TMDB{
			BaseURL:  defaultTMDBBaseURL,
			Language: defaultTMDBLanguage,
		},
		Books: Books{
			GoogleBaseURL:      defaultGoogleBooksBaseURL,
			OpenLibraryBaseURL: defaultOpenLibraryBaseURL,
			Language:           defaultBooksLanguage,
		},
		YouTube: YouTube{
			OEmbedURL: defaultOEmbedURL,
			WatchURL:  defaultWatchURL,
		},
		JustWatch: JustWatch{
			BaseURL: defaultJustWatchBaseURL,
			Country: defaultJustWatchCountry,
		},
		YouTubeSync: YouTubeSync{
			PlaylistID: defaultSyncPlaylistID,
			MaxVideos:  defaultSyncMaxVideos,
		},
		Matching: Matching{
			MinScore:         defaultMinScore,
			GoodScore:        defaultGoodScore,
			TVMargin:         defaultTVMargin,
			FuzzyThreshold:   defaultFuzzyThreshold,
			SpellingFallback: true,
		},
		RateLimit: RateLimit{
			MinIntervalMS: defaultMinIntervalMS,
			Sources: map[string]SourceBudget{
				"tmdb":         {PerSecond: 4, Burst: 10},
				"justwatch":    {PerSecond: 1, Burst: 3},
				"open_library": {PerSecond: 2, Burst: 5},
				"google_books": {PerSecond: 2, Burst: 5},
				"letterboxd":   {PerSecond: 1, Burst: 2},
				"youtube":      {PerSecond: 2, Burst: 5},
				"podcast":      {PerSecond: 2, Burst: 5},
			},
		},
		Import: Import{
			PacingMS:              defaultImportPacingMS,
			PageCeiling:           defaultImportPageCeiling,
			RequestTimeoutSeconds: defaultRequestTimeoutSecs,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

// Budget returns the request budget for a source, falling back to the shared
// default when the source has no explicit entry.
func (r RateLimit) Budget(source string) SourceBudget {
	if budget, ok := r.Sources[source]; ok && budget.PerSecond > 0 {
		return budget
	}
	return SourceBudget{PerSecond: defaultSourcePerSecond, Burst: defaultSourceBurst}
}
