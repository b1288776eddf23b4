package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains file locations used by the pipeline.
type Paths struct {
	Database string `toml:"database"`
	LogDir   string `toml:"log_dir"`
	LockFile string `toml:"lock_file"`
}

// TMDB contains configuration for The Movie Database API.
type TMDB struct {
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
	Language string `toml:"language"`
}

// Books contains configuration for the two merged book catalogs.
type Books struct {
	GoogleBaseURL      string `toml:"google_base_url"`
	GoogleAPIKey       string `toml:"google_api_key"`
	OpenLibraryBaseURL string `toml:"open_library_base_url"`
	Language           string `toml:"language"`
}

// YouTube contains configuration for video metadata lookups.
type YouTube struct {
	OEmbedURL string `toml:"oembed_url"`
	WatchURL  string `toml:"watch_url"`
}

// JustWatch contains configuration for streaming offer enrichment.
type JustWatch struct {
	Enabled bool   `toml:"enabled"`
	BaseURL string `toml:"base_url"`
	Country string `toml:"country"`
}

// Jellyfin contains configuration for media server watched-state sync.
type Jellyfin struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
	APIKey  string `toml:"api_key"`
	UserID  string `toml:"user_id"`
}

// Kobo contains configuration for e-reader library sync.
type Kobo struct {
	Enabled     bool   `toml:"enabled"`
	URL         string `toml:"url"`
	DeviceToken string `toml:"device_token"`
}

// YouTubeSync contains OAuth credentials for watch-later playlist sync.
// The refresh token comes from a one-time device authorization against the
// YouTube Data API with the youtube scope.
type YouTubeSync struct {
	Enabled      bool   `toml:"enabled"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RefreshToken string `toml:"refresh_token"`
	PlaylistID   string `toml:"playlist_id"`
	MaxVideos    int    `toml:"max_videos"`
}

// Matching exposes the scoring thresholds. These are hand-tuned biases, not
// derived constants, so they stay configurable.
type Matching struct {
	// MinScore is the floor on the 100-point title+year scale below which a
	// candidate is discarded.
	MinScore float64 `toml:"min_score"`
	// GoodScore is the stricter bar below which a surviving match is still
	// weak enough to warrant a spelling-corrected retry.
	GoodScore float64 `toml:"good_score"`
	// TVMargin is how far a series score must exceed the film score before
	// the scorer switches type for an ambiguous title.
	TVMargin float64 `toml:"tv_margin"`
	// FuzzyThreshold is the 0-1 similarity floor used by re-enrichment.
	FuzzyThreshold float64 `toml:"fuzzy_threshold"`
	// SpellingFallback enables the web-search title correction pass.
	SpellingFallback bool `toml:"spelling_fallback"`
}

// SourceBudget is the outbound request budget for one external source.
type SourceBudget struct {
	PerSecond float64 `toml:"per_second"`
	Burst     int     `toml:"burst"`
}

// RateLimit contains per-source request budgets plus a global interval floor.
type RateLimit struct {
	MinIntervalMS int                     `toml:"min_interval_ms"`
	Sources       map[string]SourceBudget `toml:"sources"`
}

// Import contains batch driver pacing and safety limits.
type Import struct {
	// PacingMS is the delay inserted between items within one batch.
	PacingMS int `toml:"pacing_ms"`
	// PageCeiling bounds scrape pagination.
	PageCeiling int `toml:"page_ceiling"`
	// RequestTimeoutSeconds bounds each outbound adapter call.
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Yaad.
//
// Configuration sections by subsystem:
//   - Paths: database location, log directory, import lock file
//   - TMDB: movie/TV catalog credentials and locale
//   - Books: Google Books + Open Library endpoints
//   - YouTube: video metadata endpoints
//   - JustWatch: streaming offer enrichment
//   - Jellyfin/Kobo/YouTubeSync: platform sync targets
//   - Matching: scoring thresholds (configurable biases)
//   - RateLimit: per-source outbound request budgets
//   - Import: batch pacing and safety ceilings
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `toml:"paths"`
	TMDB        TMDB        `toml:"tmdb"`
	Books       Books       `toml:"books"`
	YouTube     YouTube     `toml:"youtube"`
	JustWatch   JustWatch   `toml:"justwatch"`
	Jellyfin    Jellyfin    `toml:"jellyfin"`
	Kobo        Kobo        `toml:"kobo"`
	YouTubeSync YouTubeSync `toml:"youtube_sync"`
	Matching    Matching    `toml:"matching"`
	RateLimit   RateLimit   `toml:"ratelimit"`
	Import      Import      `toml:"import"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/yaad/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("yaad.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories required before opening the store
// or writing logs.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.LogDir}
	if db := strings.TrimSpace(c.Paths.Database); db != "" {
		dirs = append(dirs, filepath.Dir(db))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
