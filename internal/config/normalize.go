package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTMDB()
	c.normalizeBooks()
	c.normalizeJustWatch()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.Database, err = expandPath(c.Paths.Database); err != nil {
		return fmt.Errorf("paths.database: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.LockFile, err = expandPath(c.Paths.LockFile); err != nil {
		return fmt.Errorf("paths.lock_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeTMDB() {
	if env := strings.TrimSpace(os.Getenv("TMDB_API_KEY")); env != "" && strings.TrimSpace(c.TMDB.APIKey) == "" {
		c.TMDB.APIKey = env
	}
	c.TMDB.APIKey = strings.TrimSpace(c.TMDB.APIKey)
	c.TMDB.BaseURL = strings.TrimRight(strings.TrimSpace(c.TMDB.BaseURL), "/")
	c.TMDB.Language = strings.TrimSpace(c.TMDB.Language)
}

func (c *Config) normalizeBooks() {
	c.Books.GoogleBaseURL = strings.TrimRight(strings.TrimSpace(c.Books.GoogleBaseURL), "/")
	c.Books.OpenLibraryBaseURL = strings.TrimRight(strings.TrimSpace(c.Books.OpenLibraryBaseURL), "/")
	c.Books.GoogleAPIKey = strings.TrimSpace(c.Books.GoogleAPIKey)
}

func (c *Config) normalizeJustWatch() {
	c.JustWatch.BaseURL = strings.TrimRight(strings.TrimSpace(c.JustWatch.BaseURL), "/")
	c.JustWatch.Country = strings.ToUpper(strings.TrimSpace(c.JustWatch.Country))
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
