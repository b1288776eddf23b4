package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTMDB(); err != nil {
		return err
	}
	if err := c.validateMatching(); err != nil {
		return err
	}
	if err := c.validateJellyfin(); err != nil {
		return err
	}
	if err := c.validateKobo(); err != nil {
		return err
	}
	if err := c.validateYouTubeSync(); err != nil {
		return err
	}
	if err := c.validateRateLimit(); err != nil {
		return err
	}
	if err := c.validateImport(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateTMDB() error {
	if c.TMDB.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/yaad/config.toml"
		}
		return fmt.Errorf("tmdb.api_key is required. Set TMDB_API_KEY env var or edit %s (create with 'yaad config init')", defaultPath)
	}
	if c.TMDB.BaseURL == "" {
		return errors.New("tmdb.base_url must be set")
	}
	return nil
}

func (c *Config) validateMatching() error {
	if c.Matching.MinScore < 0 || c.Matching.MinScore > 100 {
		return errors.New("matching.min_score must be between 0 and 100")
	}
	if c.Matching.GoodScore < 0 || c.Matching.GoodScore > 100 {
		return errors.New("matching.good_score must be between 0 and 100")
	}
	if c.Matching.GoodScore > 0 && c.Matching.GoodScore < c.Matching.MinScore {
		return errors.New("matching.good_score must not be below matching.min_score")
	}
	if c.Matching.TVMargin < 0 {
		return errors.New("matching.tv_margin must not be negative")
	}
	if c.Matching.FuzzyThreshold < 0 || c.Matching.FuzzyThreshold > 1 {
		return errors.New("matching.fuzzy_threshold must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateJellyfin() error {
	if !c.Jellyfin.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Jellyfin.URL) == "" {
		return errors.New("jellyfin.url must be set when jellyfin.enabled is true")
	}
	if strings.TrimSpace(c.Jellyfin.APIKey) == "" {
		return errors.New("jellyfin.api_key must be set when jellyfin.enabled is true")
	}
	if strings.TrimSpace(c.Jellyfin.UserID) == "" {
		return errors.New("jellyfin.user_id must be set when jellyfin.enabled is true")
	}
	return nil
}

func (c *Config) validateKobo() error {
	if !c.Kobo.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Kobo.URL) == "" {
		return errors.New("kobo.url must be set when kobo.enabled is true")
	}
	return nil
}

func (c *Config) validateYouTubeSync() error {
	if !c.YouTubeSync.Enabled {
		return nil
	}
	if strings.TrimSpace(c.YouTubeSync.ClientID) == "" {
		return errors.New("youtube_sync.client_id must be set when youtube_sync.enabled is true")
	}
	if strings.TrimSpace(c.YouTubeSync.ClientSecret) == "" {
		return errors.New("youtube_sync.client_secret must be set when youtube_sync.enabled is true")
	}
	if strings.TrimSpace(c.YouTubeSync.RefreshToken) == "" {
		return errors.New("youtube_sync.refresh_token must be set when youtube_sync.enabled is true")
	}
	if c.YouTubeSync.MaxVideos <= 0 {
		return errors.New("youtube_sync.max_videos must be positive")
	}
	return nil
}

func (c *Config) validateRateLimit() error {
	if c.RateLimit.MinIntervalMS < 0 {
		return errors.New("ratelimit.min_interval_ms must not be negative")
	}
	for name, budget := range c.RateLimit.Sources {
		if budget.PerSecond <= 0 {
			return fmt.Errorf("ratelimit.sources.%s.per_second must be positive", name)
		}
		if budget.Burst <= 0 {
			return fmt.Errorf("ratelimit.sources.%s.burst must be positive", name)
		}
	}
	return nil
}

func (c *Config) validateImport() error {
	if c.Import.PacingMS < 0 {
		return errors.New("import.pacing_ms must not be negative")
	}
	if c.Import.PageCeiling <= 0 {
		return errors.New("import.page_ceiling must be positive")
	}
	if c.Import.RequestTimeoutSeconds <= 0 {
		return errors.New("import.request_timeout_seconds must be positive")
	}
	return nil
}
