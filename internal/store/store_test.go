package store

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/erazemk/oprema/internal/db"
	"github.com/erazemk/oprema/internal/imagecache"
	"github.com/erazemk/oprema/internal/model"
)

// stepClock returns a clock that advances one minute per call.
func stepClock() func() time.Time {
	t := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

type stubFetcher struct {
	data  []byte
	err   error
	calls int
}

func (f *stubFetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	f.calls++
	return f.data, f.err
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 300, 200))
	for x := 0; x < 300; x++ {
		for y := 0; y < 200; y++ {
			img.Set(x, y, color.RGBA{200, 40, 40, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithClock(stepClock())}, opts...)
	return New(db.NewTestDB(t), opts...)
}

func newImageStore(t *testing.T, f *stubFetcher) (*Store, *imagecache.Cache) {
	t.Helper()
	cache, err := imagecache.New(t.TempDir())
	require.NoError(t, err)
	return newTestStore(t, WithImages(cache, f)), cache
}

func qty(n int) *int { return &n }

func add(t *testing.T, s *Store, req model.AddRequest) *model.AddResult {
	t.Helper()
	res, err := s.AddOrMerge(context.Background(), req)
	require.NoError(t, err)
	return res
}
