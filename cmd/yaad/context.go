package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"yaad/internal/cache"
	"yaad/internal/config"
	"yaad/internal/imports"
	"yaad/internal/library"
	"yaad/internal/logging"
	"yaad/internal/metadata/books"
	"yaad/internal/metadata/justwatch"
	"yaad/internal/metadata/podcast"
	"yaad/internal/metadata/tmdb"
	"yaad/internal/metadata/youtube"
	"yaad/internal/ratelimit"
	"yaad/internal/reconcile"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

// pipeline holds everything a command needs to run entries through
// reconciliation and into the library. Close releases the store and cache.
type pipeline struct {
	cfg       *config.Config
	logger    *slog.Logger
	limiter   *ratelimit.Limiter
	cache     *cache.Cache
	store     *library.Store
	service   *library.Service
	engine    *reconcile.Engine
	justwatch *justwatch.Client

	lock *flock.Flock
}

// openPipeline wires the metadata adapters, the reconciliation engine, and
// the library store. When exclusive is true the import lock is taken so two
// mutating runs cannot interleave on one database.
func (c *commandContext) openPipeline(exclusive bool) (*pipeline, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}

	p := &pipeline{cfg: cfg, logger: logger}
	if exclusive {
		p.lock = flock.New(cfg.Paths.LockFile)
		ok, err := p.lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("acquire import lock: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("another yaad run holds the lock at %s", cfg.Paths.LockFile)
		}
	}

	p.limiter = ratelimit.New(cfg.RateLimit)
	p.cache = cache.New()

	store, err := library.Open(cfg)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.store = store
	p.service = library.NewService(store, p.cache, logger)

	movies, err := tmdb.New(cfg.TMDB.APIKey, cfg.TMDB.BaseURL, cfg.TMDB.Language, p.limiter, logger, tmdb.WithCache(p.cache))
	if err != nil {
		p.Close()
		return nil, err
	}
	google, err := books.NewGoogle(cfg.Books.GoogleBaseURL, cfg.Books.GoogleAPIKey, p.limiter, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	openLibrary, err := books.NewOpenLibrary(cfg.Books.OpenLibraryBaseURL, p.limiter, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	merged := books.NewMerged(google, openLibrary, p.cache, logger)
	videos, err := youtube.New(cfg.YouTube.OEmbedURL, cfg.YouTube.WatchURL, p.limiter, logger, youtube.WithCache(p.cache))
	if err != nil {
		p.Close()
		return nil, err
	}

	podcasts := podcast.New(p.limiter, logger, podcast.WithCache(p.cache))

	p.engine = reconcile.New(movies, merged, videos, cfg.Matching, p.limiter, logger,
		reconcile.WithPodcasts(podcasts))

	if cfg.JustWatch.Enabled {
		client, err := justwatch.New(cfg.JustWatch.BaseURL, cfg.JustWatch.Country, p.limiter, logger, justwatch.WithCache(p.cache))
		if err != nil {
			p.Close()
			return nil, err
		}
		p.justwatch = client
	}
	return p, nil
}

func (p *pipeline) runner(opts ...imports.RunnerOption) *imports.Runner {
	return imports.NewRunner(p.engine, p.service, p.cfg.Import, p.logger, opts...)
}

func (p *pipeline) Close() {
	if p.store != nil {
		_ = p.store.Close()
	}
	if p.cache != nil {
		p.cache.Close()
	}
	if p.lock != nil {
		_ = p.lock.Unlock()
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
