// Package store owns the item table and the add-or-merge reconciliation rule.
package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/erazemk/oprema/internal/imagecache"
	"github.com/erazemk/oprema/internal/metrics"
)

var (
	// ErrNotFound is returned when no item matches the given name.
	ErrNotFound = errors.New("item not found")
	// ErrInvalidName is returned for names that are empty after trimming.
	ErrInvalidName = errors.New("item name required")
)

// ImageCache resolves a source locator to a relative cache key, fetching
// through f on a miss. *imagecache.Cache implements it.
type ImageCache interface {
	Resolve(ctx context.Context, locator, category string, f imagecache.Fetcher) (string, error)
}

// Store is the item store. It holds its own database handle; callers own
// the handle's lifecycle.
type Store struct {
	db      *sql.DB
	images  ImageCache
	fetcher imagecache.Fetcher
	now     func() time.Time
	metrics *metrics.Metrics
	log     *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithImages enables image resolution during Add-or-Merge and AttachImage.
func WithImages(images ImageCache, f imagecache.Fetcher) Option {
	return func(s *Store) {
		s.images = images
		s.fetcher = f
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMetrics records mutation outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithLogger sets the logger for absorbed image failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New returns a Store backed by db.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// nullString maps the empty string to NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
