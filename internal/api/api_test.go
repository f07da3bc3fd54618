package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/oprema/internal/auth"
	"github.com/erazemk/oprema/internal/db"
	"github.com/erazemk/oprema/internal/fetch"
	"github.com/erazemk/oprema/internal/imagecache"
	"github.com/erazemk/oprema/internal/metrics"
	"github.com/erazemk/oprema/internal/store"
)

const testJWTSecret = "test-secret"

type testEnv struct {
	server *httptest.Server
	images *httptest.Server
	store  *store.Store
	cache  *imagecache.Cache
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 320, 160))
	for x := 0; x < 320; x++ {
		for y := 0; y < 160; y++ {
			img.Set(x, y, color.RGBA{10, 200, 90, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	pngData := testPNG(t)
	images := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngData)
	}))
	t.Cleanup(images.Close)

	cache, err := imagecache.New(t.TempDir())
	require.NoError(t, err)
	m := metrics.New()
	s := store.New(db.NewTestDB(t), store.WithImages(cache, fetch.New(fetch.WithMetrics(m))), store.WithMetrics(m))

	handler := LoggingMiddleware(nil, m)(NewRouter(Deps{
		Store:     s,
		Cache:     cache,
		Metrics:   m,
		JWTSecret: testJWTSecret,
	}))
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &testEnv{server: server, images: images, store: s, cache: cache}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type itemJSON struct {
	Name      string  `json:"name"`
	Category  string  `json:"category"`
	Quantity  int     `json:"quantity"`
	Notes     string  `json:"notes"`
	Favorite  bool    `json:"is_favorite"`
	ImageKey  string  `json:"image_key"`
	AddedAt   *string `json:"added_to_inventory_at"`
	IconURL   string  `json:"icon_url"`
	MediumURL string  `json:"medium_url"`
	FullURL   string  `json:"full_url"`
}

type addJSON struct {
	Item        itemJSON `json:"item"`
	Created     bool     `json:"created"`
	ImageCached bool     `json:"image_cached"`
}

func TestAddOrMergeFlow(t *testing.T) {
	env := setupTestServer(t)

	resp := env.do(t, "POST", "/api/items", "", map[string]any{"name": "ADP Core", "category": "Armor", "quantity": 1})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[addJSON](t, resp)
	assert.True(t, created.Created)

	resp = env.do(t, "POST", "/api/items", "", map[string]any{"name": "adp core", "quantity": "2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	merged := decode[addJSON](t, resp)
	assert.False(t, merged.Created)
	assert.Equal(t, 3, merged.Item.Quantity)
	assert.Equal(t, "ADP Core", merged.Item.Name)

	resp = env.do(t, "GET", "/api/items?q=ADP", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := decode[[]itemJSON](t, resp)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)
}

func TestUnparseableQuantityCountsAsOne(t *testing.T) {
	env := setupTestServer(t)

	resp := env.do(t, "POST", "/api/items", "", map[string]any{"name": "Medpen", "quantity": "lots"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 1, decode[addJSON](t, resp).Item.Quantity)
}

func TestItemErrors(t *testing.T) {
	env := setupTestServer(t)

	resp := env.do(t, "POST", "/api/items", "", map[string]any{"name": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "name required", decode[map[string]string](t, resp)["error"])

	resp = env.do(t, "GET", "/api/items/Nothing", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, "PUT", "/api/items/Nothing/quantity", "", map[string]any{"quantity": 3})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, "GET", "/api/items?sort=price", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, "POST", "/api/items", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestItemEdits(t *testing.T) {
	env := setupTestServer(t)
	env.do(t, "POST", "/api/items", "", map[string]any{"name": "Rifle", "quantity": 0})

	resp := env.do(t, "PUT", "/api/items/rifle/notes", "", map[string]string{"notes": "scoped"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	item := decode[itemJSON](t, resp)
	assert.Equal(t, "scoped", item.Notes)
	assert.Nil(t, item.AddedAt)

	resp = env.do(t, "PUT", "/api/items/RIFLE/quantity", "", map[string]any{"quantity": -5})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, decode[itemJSON](t, resp).Quantity)

	resp = env.do(t, "PUT", "/api/items/Rifle/quantity", "", map[string]any{"quantity": 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotNil(t, decode[itemJSON](t, resp).AddedAt)

	resp = env.do(t, "PUT", "/api/items/Rifle/favorite", "", map[string]bool{"favorite": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[itemJSON](t, resp).Favorite)

	resp = env.do(t, "DELETE", "/api/items/Rifle", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = env.do(t, "DELETE", "/api/items/Rifle", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "delete is idempotent")
}

func TestImageURLsAndCacheServing(t *testing.T) {
	env := setupTestServer(t)

	resp := env.do(t, "POST", "/api/items", "", map[string]any{
		"name":      "Visor",
		"category":  "Armor",
		"image_url": env.images.URL + "/visor.png",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	res := decode[addJSON](t, resp)
	require.True(t, res.ImageCached)
	assert.True(t, strings.HasPrefix(res.Item.IconURL, "/cache/Armor/"))
	assert.True(t, strings.HasSuffix(res.Item.IconURL, "_thumb.png"))
	assert.True(t, strings.HasSuffix(res.Item.MediumURL, "_medium.png"))
	assert.NotEmpty(t, res.Item.FullURL)

	img, err := http.Get(env.server.URL + res.Item.IconURL)
	require.NoError(t, err)
	defer img.Body.Close()
	assert.Equal(t, http.StatusOK, img.StatusCode)
	cfg, err := png.DecodeConfig(img.Body)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Width)

	listing := env.do(t, "GET", "/cache/Armor/", "", nil)
	assert.Equal(t, http.StatusNotFound, listing.StatusCode)
}

func TestFailedImageDoesNotFailAdd(t *testing.T) {
	env := setupTestServer(t)

	resp := env.do(t, "POST", "/api/items", "", map[string]any{
		"name":      "Boots",
		"image_url": env.images.URL + "/missing.png",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	res := decode[addJSON](t, resp)
	assert.False(t, res.ImageCached)
	assert.Empty(t, res.Item.IconURL)
	assert.Equal(t, 1, res.Item.Quantity)
}

func TestAttachImage(t *testing.T) {
	env := setupTestServer(t)
	env.do(t, "POST", "/api/items", "", map[string]any{"name": "Cap"})

	resp := env.do(t, "PUT", "/api/items/cap/image", "", map[string]string{"url": env.images.URL + "/cap.png"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, decode[itemJSON](t, resp).ImageKey)

	resp = env.do(t, "PUT", "/api/items/cap/image", "", map[string]string{"url": env.images.URL + "/missing.png"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	resp = env.do(t, "PUT", "/api/items/ghost/image", "", map[string]string{"url": env.images.URL + "/cap.png"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func uploadRequest(t *testing.T, url string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "photo.bin")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest("POST", url, &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadImage(t *testing.T) {
	env := setupTestServer(t)
	env.do(t, "POST", "/api/items", "", map[string]any{"name": "Knife", "category": "Tools"})

	resp, err := http.DefaultClient.Do(uploadRequest(t, env.server.URL+"/api/items/knife/image", testPNG(t)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	item := decode[itemJSON](t, resp)
	assert.True(t, strings.HasPrefix(item.ImageKey, "Tools/"))
	assert.True(t, strings.HasSuffix(item.ImageKey, ".png"))
	assert.True(t, env.cache.Exists(item.ImageKey))

	resp2, err := http.DefaultClient.Do(uploadRequest(t, env.server.URL+"/api/items/knife/image", []byte("not an image")))
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestInventoryEndpoints(t *testing.T) {
	env := setupTestServer(t)
	env.do(t, "POST", "/api/items", "", map[string]any{"name": "A", "category": "Armor", "quantity": 2, "notes": "keep"})
	env.do(t, "POST", "/api/items", "", map[string]any{"name": "B", "category": "Weapons", "quantity": 1})

	resp := env.do(t, "GET", "/api/categories", "", nil)
	assert.Equal(t, []string{"Armor", "Weapons"}, decode[[]string](t, resp))

	resp = env.do(t, "GET", "/api/stats", "", nil)
	stats := decode[map[string]any](t, resp)
	assert.EqualValues(t, 2, stats["total_items_in_db"])
	assert.EqualValues(t, 3, stats["total_item_count"])

	resp = env.do(t, "POST", "/api/inventory/clear", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, decode[map[string]int64](t, resp)["cleared"])

	resp = env.do(t, "GET", "/api/items", "", nil)
	assert.Empty(t, decode[[]itemJSON](t, resp))

	resp = env.do(t, "GET", "/api/items?all=1", "", nil)
	all := decode[[]itemJSON](t, resp)
	require.Len(t, all, 2)
	assert.Equal(t, "keep", all[0].Notes)

	resp = env.do(t, "DELETE", "/api/items", "", nil)
	assert.EqualValues(t, 2, decode[map[string]int64](t, resp)["deleted"])
}

func TestCacheEndpoints(t *testing.T) {
	env := setupTestServer(t)
	env.do(t, "POST", "/api/items", "", map[string]any{"name": "Visor", "image_url": env.images.URL + "/visor.png"})

	resp := env.do(t, "GET", "/api/cache/size", "", nil)
	size := decode[cacheSizeResponse](t, resp)
	assert.Positive(t, size.Bytes)
	assert.NotEmpty(t, size.Human)

	resp = env.do(t, "POST", "/api/cache/sweep", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sweep := decode[imagecache.SweepResult](t, resp)
	assert.Equal(t, 1, sweep.Scanned)
	assert.Equal(t, 0, sweep.Derived)

	resp = env.do(t, "DELETE", "/api/cache", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, "GET", "/api/cache/size", "", nil)
	assert.Zero(t, decode[cacheSizeResponse](t, resp).Bytes)
}

func TestAuthFlow(t *testing.T) {
	env := setupTestServer(t)

	resp := env.do(t, "POST", "/api/auth/login", "", map[string]string{"passphrase": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "login without a configured passphrase")

	hash, err := auth.HashPassphrase("correct horse")
	require.NoError(t, err)
	require.NoError(t, env.store.SetPassphraseHash(context.Background(), hash))

	resp = env.do(t, "GET", "/api/items", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, "POST", "/api/auth/login", "", map[string]string{"passphrase": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, "POST", "/api/auth/login", "", map[string]string{"passphrase": "correct horse"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := decode[loginResponse](t, resp).Token
	require.NotEmpty(t, token)

	resp = env.do(t, "GET", "/api/items", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, "GET", "/api/items", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, "POST", "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, "GET", "/api/items", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRequestIDAndMetrics(t *testing.T) {
	env := setupTestServer(t)

	resp := env.do(t, "GET", "/api/items", "", nil)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))

	req, err := http.NewRequest("GET", env.server.URL+"/api/categories", nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "abc-123")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, "abc-123", resp2.Header.Get(RequestIDHeader))

	resp = env.do(t, "GET", "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "oprema_")
}
