// Package fetch retrieves image bytes for a source locator. It is the only
// place that touches the network; the image cache itself never does.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/erazemk/oprema/internal/imaging"
	"github.com/erazemk/oprema/internal/metrics"
)

// Defaults for New.
const (
	DefaultTimeout   = 15 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (compatible; oprema/1.0)"
	DefaultMaxBytes  = imaging.MaxUploadBytes
)

var (
	// ErrNotFound is returned for HTTP 404 and missing local files.
	ErrNotFound = errors.New("image not found")
	// ErrEmpty is returned when the source yields zero bytes.
	ErrEmpty = errors.New("image is empty")
	// ErrTooLarge is returned when the source exceeds the byte limit.
	ErrTooLarge = errors.New("image too large")
	// ErrUnsupported is returned for locators that are neither URLs nor paths.
	ErrUnsupported = errors.New("unsupported locator")
)

// Fetcher downloads images over HTTP(S) or reads them from local files.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	metrics   *metrics.Metrics
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.client.Timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithMaxBytes caps the accepted body size.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithMetrics records fetch results.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

// New returns a Fetcher with defaults applied.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{Timeout: DefaultTimeout},
		userAgent: DefaultUserAgent,
		maxBytes:  DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the complete, non-empty contents behind locator.
func (f *Fetcher) Fetch(ctx context.Context, locator string) ([]byte, error) {
	data, err := f.fetch(ctx, locator)
	if err != nil {
		f.metrics.Fetch("error")
		return nil, err
	}
	f.metrics.Fetch("ok")
	return data, nil
}

func (f *Fetcher) fetch(ctx context.Context, locator string) ([]byte, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return nil, ErrUnsupported
	}

	u, err := url.Parse(locator)
	if err == nil {
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			return f.fetchHTTP(ctx, u.String())
		case "file":
			return f.readFile(u.Path)
		}
	}
	if filepath.IsAbs(locator) {
		return f.readFile(locator)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupported, locator)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("downloading %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	return f.readAll(resp.Body)
}

func (f *Fetcher) readFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	return f.readAll(file)
}

// readAll reads at most maxBytes and fails on empty or oversized input.
func (f *Fetcher) readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, ErrTooLarge
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	return data, nil
}
