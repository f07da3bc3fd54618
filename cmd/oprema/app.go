package main

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/erazemk/oprema/internal/config"
	"github.com/erazemk/oprema/internal/db"
	"github.com/erazemk/oprema/internal/fetch"
	"github.com/erazemk/oprema/internal/imagecache"
	"github.com/erazemk/oprema/internal/metrics"
	"github.com/erazemk/oprema/internal/store"
)

// globalOptions are the persistent flags. Non-empty values override the config file.
type globalOptions struct {
	configPath string
	dbPath     string
	cacheDir   string
	logPath    string
	logLevel   string
}

// app bundles the collaborators every subcommand needs.
type app struct {
	cfg     *config.Config
	db      *sql.DB
	store   *store.Store
	cache   *imagecache.Cache
	metrics *metrics.Metrics
	closers []func()
}

func (o *globalOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.dbPath != "" {
		cfg.Storage.DB = o.dbPath
	}
	if o.cacheDir != "" {
		cfg.Storage.CacheDir = o.cacheDir
	}
	if o.logPath != "" {
		cfg.Log.File = o.logPath
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, cfg.Validate()
}

// open loads configuration, sets up logging and opens the database and cache.
func (o *globalOptions) open() (*app, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return nil, err
	}
	closeLog, err := setupLogger(level, cfg.Log.File)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, metrics: metrics.New(), closers: []func(){closeLog}}

	a.db, err = db.Open(cfg.Storage.DB)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a.closers = append(a.closers, func() { a.db.Close() })

	if err := db.Migrate(a.db); err != nil {
		a.close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	a.cache, err = imagecache.New(cfg.Storage.CacheDir,
		imagecache.WithMetrics(a.metrics),
		imagecache.WithLogger(slog.Default().With("component", "imagecache")),
	)
	if err != nil {
		a.close()
		return nil, err
	}

	fetcher := fetch.New(
		fetch.WithTimeout(cfg.Fetch.Timeout),
		fetch.WithUserAgent(cfg.Fetch.UserAgent),
		fetch.WithMaxBytes(cfg.Fetch.MaxBytes),
		fetch.WithMetrics(a.metrics),
	)
	a.store = store.New(a.db,
		store.WithImages(a.cache, fetcher),
		store.WithMetrics(a.metrics),
		store.WithLogger(slog.Default().With("component", "store")),
	)

	slog.Debug("opened", "db", cfg.Storage.DB, "cache", a.cache.Root())
	return a, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
