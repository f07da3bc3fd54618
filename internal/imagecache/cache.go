// Package imagecache stores source images on disk under keys derived from
// their locator and keeps fixed-size PNG derivatives next to each original.
// There is no index: a file's path is a pure function of its key.
package imagecache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/erazemk/oprema/internal/imaging"
	"github.com/erazemk/oprema/internal/metrics"
	"github.com/erazemk/oprema/internal/model"
)

// DefaultURLPrefix is where the cache root is served over HTTP.
const DefaultURLPrefix = "/cache/"

// markerFile is a housekeeping file kept by Clear and ignored by Size.
const markerFile = ".gitkeep"

var (
	// ErrEmpty is returned when asked to cache zero bytes.
	ErrEmpty = errors.New("empty image data")
	// ErrNoLocator is returned when resolving an empty locator.
	ErrNoLocator = errors.New("no image locator")
	// ErrUndecodable is returned for bytes that are not a supported image.
	ErrUndecodable = errors.New("undecodable image data")
)

// Fetcher retrieves the bytes behind a source locator.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// Cache is an on-disk image cache rooted at a directory.
type Cache struct {
	root       string
	iconSize   int
	mediumSize int
	urlPrefix  string
	metrics    *metrics.Metrics
	log        *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithMetrics records lookups and derivative generation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithLogger sets the logger used for absorbed derivative errors.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.log = l }
}

// WithURLPrefix sets the URL path the cache root is served under.
func WithURLPrefix(prefix string) Option {
	return func(c *Cache) {
		if !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		c.urlPrefix = prefix
	}
}

// New creates the cache root if needed and returns a Cache.
func New(root string, opts ...Option) (*Cache, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving cache root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache root: %w", err)
	}

	c := &Cache{
		root:       abs,
		iconSize:   imaging.IconSize,
		mediumSize: imaging.MediumSize,
		urlPrefix:  DefaultURLPrefix,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Root returns the absolute cache directory.
func (c *Cache) Root() string {
	return c.root
}

// Path joins a relative key to the cache root. Keys escaping the root are rejected.
func (c *Cache) Path(key string) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(c.root, filepath.FromSlash(clean)), nil
}

// Exists reports whether the file for key is present.
func (c *Cache) Exists(key string) bool {
	p, err := c.Path(key)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// Lookup returns the key for locator if its original is already cached.
// Missing derivatives of a hit are regenerated.
func (c *Cache) Lookup(locator, category string) (string, bool) {
	if locator == "" {
		return "", false
	}
	key := Key(locator, category)
	if !c.Exists(key) {
		c.metrics.CacheLookup("miss")
		return "", false
	}
	if _, err := c.EnsureDerivatives(key); err != nil {
		if errors.Is(err, ErrUndecodable) {
			// A corrupt original is dropped so the next Resolve fetches again.
			c.log.Warn("dropping undecodable cached image", "key", key, "error", err)
			c.remove(key)
			c.metrics.CacheLookup("miss")
			return "", false
		}
		c.log.Warn("regenerating derivatives failed", "key", key, "error", err)
	}
	c.metrics.CacheLookup("hit")
	return key, true
}

// Put stores data as the original for locator and generates both derivatives.
// Data that does not decode as an image is rejected and nothing is written.
// Derivative write failures are logged; the original is kept and its key returned.
func (c *Cache) Put(locator, category string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	img, err := decode(data)
	if err != nil {
		c.metrics.Derivative("all", "error")
		return "", err
	}
	key := Key(locator, category)
	p, err := c.Path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("creating cache directory: %w", err)
	}
	if err := writeFileAtomic(p, data); err != nil {
		return "", fmt.Errorf("writing cached image: %w", err)
	}

	if err := c.writeDerivatives(key, img, false); err != nil {
		c.log.Warn("generating derivatives failed", "key", key, "error", err)
	}
	return key, nil
}

// PutFile stores the contents of a local file as the original for locator.
func (c *Cache) PutFile(locator, category, src string) (string, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("reading image file: %w", err)
	}
	return c.Put(locator, category, data)
}

// Resolve returns the cached key for locator, fetching and storing the image
// on a miss. A hit performs no fetch.
func (c *Cache) Resolve(ctx context.Context, locator, category string, f Fetcher) (string, error) {
	if locator == "" {
		return "", ErrNoLocator
	}
	if key, ok := c.Lookup(locator, category); ok {
		return key, nil
	}
	if f == nil {
		return "", fmt.Errorf("no fetcher for %q", locator)
	}

	data, err := f.Fetch(ctx, locator)
	if err != nil {
		c.metrics.CacheLookup("error")
		return "", fmt.Errorf("fetching image: %w", err)
	}
	return c.Put(locator, category, data)
}

// Derivatives returns the icon and medium keys for an original key.
func (c *Cache) Derivatives(key string) (icon, medium string) {
	return Derivatives(key)
}

// EnsureDerivatives generates whichever derivatives of key are missing and
// returns how many files it wrote.
func (c *Cache) EnsureDerivatives(key string) (int, error) {
	icon, medium := Derivatives(key)
	if c.Exists(icon) && c.Exists(medium) {
		return 0, nil
	}

	p, err := c.Path(key)
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return 0, fmt.Errorf("reading original: %w", err)
	}

	before := 0
	if c.Exists(icon) {
		before++
	}
	if c.Exists(medium) {
		before++
	}
	img, err := decode(data)
	if err != nil {
		c.metrics.Derivative("all", "error")
		return 0, err
	}
	if err := c.writeDerivatives(key, img, true); err != nil {
		return 0, err
	}
	return 2 - before, nil
}

// decode parses data as a supported image format.
func decode(data []byte) (image.Image, error) {
	img, _, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	return img, nil
}

// remove deletes the original for key and any derivatives.
func (c *Cache) remove(key string) {
	icon, medium := Derivatives(key)
	for _, k := range []string{key, icon, medium} {
		if p, err := c.Path(k); err == nil {
			_ = os.Remove(p)
		}
	}
}

// writeDerivatives writes the icon and medium PNGs for key.
// With onlyMissing set, existing derivative files are left alone.
func (c *Cache) writeDerivatives(key string, img image.Image, onlyMissing bool) error {
	icon, medium := Derivatives(key)
	targets := []struct {
		label string
		key   string
		box   int
	}{
		{"icon", icon, c.iconSize},
		{"medium", medium, c.mediumSize},
	}

	var errs []error
	for _, t := range targets {
		if onlyMissing && c.Exists(t.key) {
			continue
		}
		out, err := imaging.Derive(img, t.box)
		if err == nil {
			var p string
			if p, err = c.Path(t.key); err == nil {
				err = writeFileAtomic(p, out)
			}
		}
		if err != nil {
			c.metrics.Derivative(t.label, "error")
			errs = append(errs, fmt.Errorf("%s derivative: %w", t.label, err))
			continue
		}
		c.metrics.Derivative(t.label, "ok")
	}
	return errors.Join(errs...)
}

// URL converts a key into a servable resource path.
func (c *Cache) URL(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return c.urlPrefix + strings.Join(segments, "/")
}

// Images returns the URLs for an original key. Missing derivatives fall back
// to the original; a missing original yields no URLs.
func (c *Cache) Images(key string) model.Images {
	if key == "" || !c.Exists(key) {
		return model.Images{}
	}
	icon, medium := Derivatives(key)
	imgs := model.Images{
		Icon:   c.URL(key),
		Medium: c.URL(key),
		Full:   c.URL(key),
	}
	if c.Exists(icon) {
		imgs.Icon = c.URL(icon)
	}
	if c.Exists(medium) {
		imgs.Medium = c.URL(medium)
	}
	return imgs
}

// Clear removes cached files. An empty category clears the whole cache,
// keeping the marker file; otherwise only that category's directory goes.
func (c *Cache) Clear(category string) error {
	if dir := SanitizeCategory(category); dir != "" {
		p, err := c.Path(dir)
		if err != nil {
			return err
		}
		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("clearing category %q: %w", category, err)
		}
		return nil
	}

	entries, err := os.ReadDir(c.root)
	if err != nil {
		return fmt.Errorf("reading cache root: %w", err)
	}
	var errs []error
	for _, e := range entries {
		if e.Name() == markerFile {
			continue
		}
		if err := os.RemoveAll(filepath.Join(c.root, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	return nil
}

// Size returns the total bytes stored under the cache root.
func (c *Cache) Size() (int64, error) {
	var total int64
	err := filepath.WalkDir(c.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() == markerFile {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("measuring cache: %w", err)
	}
	return total, nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place, so readers never see a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}
