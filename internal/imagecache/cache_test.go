package imagecache

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFetcher struct {
	data  []byte
	err   error
	calls int
}

func (f *countingFetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	f.calls++
	return f.data, f.err
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{0, 128, 255, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(t.TempDir())
	require.NoError(t, err)
	return c
}

func pngSize(t *testing.T, path string) (int, int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	return cfg.Width, cfg.Height
}

func TestPutWritesOriginalAndDerivatives(t *testing.T) {
	c := newTestCache(t)
	data := testPNG(t, 512, 256)

	key, err := c.Put("https://example.com/helmet.png", "Helmet", data)
	require.NoError(t, err)
	assert.Equal(t, Key("https://example.com/helmet.png", "Helmet"), key)

	p, err := c.Path(key)
	require.NoError(t, err)
	stored, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, data, stored)

	icon, medium := c.Derivatives(key)
	ip, _ := c.Path(icon)
	mp, _ := c.Path(medium)

	w, h := pngSize(t, ip)
	assert.Equal(t, 64, w)
	assert.Equal(t, 32, h)

	w, h = pngSize(t, mp)
	assert.Equal(t, 256, w)
	assert.Equal(t, 128, h)
}

func TestPutRejectsEmptyData(t *testing.T) {
	c := newTestCache(t)
	_, err := c.Put("x.png", "", nil)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestPutRejectsUndecodableData(t *testing.T) {
	c := newTestCache(t)

	_, err := c.Put("broken.png", "Torso", []byte("<html><body>Access denied</body></html>"))
	assert.ErrorIs(t, err, ErrUndecodable)

	key := Key("broken.png", "Torso")
	icon, medium := c.Derivatives(key)
	assert.False(t, c.Exists(key))
	assert.False(t, c.Exists(icon))
	assert.False(t, c.Exists(medium))
	assert.Empty(t, c.Images(key))
}

func TestImagesFallBackToOriginal(t *testing.T) {
	c := newTestCache(t)
	key, err := c.Put("a.png", "Torso", testPNG(t, 100, 100))
	require.NoError(t, err)

	icon, medium := c.Derivatives(key)
	for _, k := range []string{icon, medium} {
		p, err := c.Path(k)
		require.NoError(t, err)
		require.NoError(t, os.Remove(p))
	}

	imgs := c.Images(key)
	assert.Equal(t, c.URL(key), imgs.Icon)
	assert.Equal(t, c.URL(key), imgs.Medium)
	assert.Equal(t, c.URL(key), imgs.Full)
}

func TestResolveRejectsUndecodableFetch(t *testing.T) {
	c := newTestCache(t)
	f := &countingFetcher{data: []byte("<html>Access denied</html>")}
	ctx := context.Background()

	_, err := c.Resolve(ctx, "https://example.com/adp.png", "Torso", f)
	assert.ErrorIs(t, err, ErrUndecodable)

	f.data = testPNG(t, 50, 50)
	key, err := c.Resolve(ctx, "https://example.com/adp.png", "Torso", f)
	require.NoError(t, err)
	assert.True(t, c.Exists(key))
	assert.Equal(t, 2, f.calls, "a rejected download is fetched again")
}

// writeRaw plants a file directly under the cache root.
func writeRaw(t *testing.T, c *Cache, key string, data []byte) {
	t.Helper()
	p, err := c.Path(key)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, data, 0o644))
}

func TestLookupDropsCorruptOriginal(t *testing.T) {
	c := newTestCache(t)
	key := Key("https://example.com/old.png", "Torso")
	writeRaw(t, c, key, []byte("garbage"))

	_, ok := c.Lookup("https://example.com/old.png", "Torso")
	assert.False(t, ok)
	assert.False(t, c.Exists(key))

	f := &countingFetcher{data: testPNG(t, 20, 20)}
	got, err := c.Resolve(context.Background(), "https://example.com/old.png", "Torso", f)
	require.NoError(t, err)
	assert.Equal(t, key, got)
	assert.Equal(t, 1, f.calls)
}

func TestResolveFetchesOnce(t *testing.T) {
	c := newTestCache(t)
	f := &countingFetcher{data: testPNG(t, 100, 100)}
	ctx := context.Background()

	first, err := c.Resolve(ctx, "https://example.com/a.png", "Torso", f)
	require.NoError(t, err)
	second, err := c.Resolve(ctx, "https://example.com/a.png", "Torso", f)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.calls)
}

func TestResolveFetchFailure(t *testing.T) {
	c := newTestCache(t)
	f := &countingFetcher{err: errors.New("404")}

	_, err := c.Resolve(context.Background(), "https://example.com/missing.png", "", f)
	assert.Error(t, err)

	_, ok := c.Lookup("https://example.com/missing.png", "")
	assert.False(t, ok)
}

func TestResolveEmptyLocator(t *testing.T) {
	c := newTestCache(t)
	_, err := c.Resolve(context.Background(), "", "", &countingFetcher{})
	assert.ErrorIs(t, err, ErrNoLocator)
}

func TestLookupRegeneratesMissingDerivative(t *testing.T) {
	c := newTestCache(t)
	key, err := c.Put("a.png", "Legs", testPNG(t, 300, 300))
	require.NoError(t, err)

	icon, medium := c.Derivatives(key)
	ip, _ := c.Path(icon)
	mp, _ := c.Path(medium)
	require.NoError(t, os.Remove(ip))
	before, err := os.Stat(mp)
	require.NoError(t, err)

	got, ok := c.Lookup("a.png", "Legs")
	require.True(t, ok)
	assert.Equal(t, key, got)
	assert.True(t, c.Exists(icon))

	// The existing medium file was not rewritten.
	after, err := os.Stat(mp)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
}

func TestEnsureDerivativesCounts(t *testing.T) {
	c := newTestCache(t)
	key, err := c.Put("a.png", "", testPNG(t, 80, 80))
	require.NoError(t, err)

	n, err := c.EnsureDerivatives(key)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	icon, medium := c.Derivatives(key)
	ip, _ := c.Path(icon)
	mp, _ := c.Path(medium)
	require.NoError(t, os.Remove(ip))
	require.NoError(t, os.Remove(mp))

	n, err = c.EnsureDerivatives(key)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestImagesURLs(t *testing.T) {
	c := newTestCache(t)
	key, err := c.Put("a.png", "Heavy Armor", testPNG(t, 10, 10))
	require.NoError(t, err)

	imgs := c.Images(key)
	icon, medium := c.Derivatives(key)
	assert.Equal(t, "/cache/"+icon, imgs.Icon)
	assert.Equal(t, "/cache/"+medium, imgs.Medium)
	assert.Equal(t, "/cache/"+key, imgs.Full)

	assert.Empty(t, c.Images(""))
	assert.Empty(t, c.Images("Nope/missing.png"))
}

func TestURLEscapesSegments(t *testing.T) {
	c := newTestCache(t)
	assert.Equal(t, "/cache/Back%23Pack/abc.png", c.URL("Back#Pack/abc.png"))

	prefixed, err := New(t.TempDir(), WithURLPrefix("/img"))
	require.NoError(t, err)
	assert.Equal(t, "/img/abc.png", prefixed.URL("abc.png"))
}

func TestClearAll(t *testing.T) {
	c := newTestCache(t)
	marker := filepath.Join(c.Root(), markerFile)
	require.NoError(t, os.WriteFile(marker, nil, 0o644))

	_, err := c.Put("a.png", "Torso", testPNG(t, 10, 10))
	require.NoError(t, err)
	_, err = c.Put("b.png", "", testPNG(t, 10, 10))
	require.NoError(t, err)

	require.NoError(t, c.Clear(""))

	entries, err := os.ReadDir(c.Root())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, markerFile, entries[0].Name())
}

func TestClearCategory(t *testing.T) {
	c := newTestCache(t)
	torso, err := c.Put("a.png", "Torso", testPNG(t, 10, 10))
	require.NoError(t, err)
	legs, err := c.Put("b.png", "Legs", testPNG(t, 10, 10))
	require.NoError(t, err)

	require.NoError(t, c.Clear("Torso"))
	assert.False(t, c.Exists(torso))
	assert.True(t, c.Exists(legs))

	// Clearing a category that was never cached is fine.
	assert.NoError(t, c.Clear("Helmet"))
}

func TestSizeIgnoresMarker(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, os.WriteFile(filepath.Join(c.Root(), markerFile), []byte("keep"), 0o644))

	size, err := c.Size()
	require.NoError(t, err)
	assert.Zero(t, size)

	require.NoError(t, os.MkdirAll(filepath.Join(c.Root(), "Torso"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(c.Root(), "Torso", "x.png"), make([]byte, 100), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(c.Root(), "y.jpg"), make([]byte, 23), 0o644))

	size, err = c.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(123), size)
}

func TestSweep(t *testing.T) {
	c := newTestCache(t)
	key, err := c.Put("a.png", "Torso", testPNG(t, 100, 100))
	require.NoError(t, err)
	_, err = c.Put("b.png", "", testPNG(t, 100, 100))
	require.NoError(t, err)
	writeRaw(t, c, Key("c.png", ""), []byte("garbage"))

	icon, _ := c.Derivatives(key)
	ip, _ := c.Path(icon)
	require.NoError(t, os.Remove(ip))

	res, err := c.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Scanned)
	assert.Equal(t, 1, res.Derived)
	assert.Equal(t, 1, res.Failed)
	assert.True(t, c.Exists(icon))
}

func TestSweepHonoursCancellation(t *testing.T) {
	c := newTestCache(t)
	_, err := c.Put("a.png", "", testPNG(t, 10, 10))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.Sweep(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPutFile(t *testing.T) {
	c := newTestCache(t)
	src := filepath.Join(t.TempDir(), "in.png")
	require.NoError(t, os.WriteFile(src, testPNG(t, 20, 20), 0o644))

	key, err := c.PutFile("local:in.png", "Arms", src)
	require.NoError(t, err)
	assert.True(t, c.Exists(key))

	_, err = c.PutFile("local:none.png", "Arms", filepath.Join(t.TempDir(), "none.png"))
	assert.Error(t, err)
}
