package api

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/erazemk/oprema/internal/imagecache"
	"github.com/erazemk/oprema/internal/imaging"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/store"
)

// ItemsHandler handles item endpoints.
type ItemsHandler struct {
	Store *store.Store
	Cache *imagecache.Cache
}

// itemResponse is an item with its servable image URLs.
type itemResponse struct {
	model.Item
	model.Images
}

type addResponse struct {
	Item        itemResponse `json:"item"`
	Created     bool         `json:"created"`
	ImageCached bool         `json:"image_cached"`
}

type addItemRequest struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	// Quantity accepts numbers and numeric strings; anything else counts as 1.
	Quantity any    `json:"quantity"`
	Location string `json:"location"`
	Notes    string `json:"notes"`
	ImageURL string `json:"image_url"`
}

type quantityRequest struct {
	Quantity any `json:"quantity"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

type favoriteRequest struct {
	Favorite bool `json:"favorite"`
}

type imageRequest struct {
	URL string `json:"url"`
}

var uploadExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

func (h *ItemsHandler) respond(item *model.Item) itemResponse {
	resp := itemResponse{Item: *item}
	if h.Cache != nil && item.ImageKey != "" {
		resp.Images = h.Cache.Images(item.ImageKey)
	}
	return resp
}

func (h *ItemsHandler) respondAll(items []model.Item) []itemResponse {
	out := make([]itemResponse, 0, len(items))
	for i := range items {
		out = append(out, h.respond(&items[i]))
	}
	return out
}

// List handles GET /api/items.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := model.Query{
		Text:        params.Get("q"),
		IncludeZero: truthy(params.Get("all")),
		Category:    params.Get("category"),
		Sort:        params.Get("sort"),
		Desc:        strings.EqualFold(params.Get("order"), "desc"),
	}
	if q.Sort != "" && !model.ValidSort(q.Sort) {
		jsonError(w, http.StatusBadRequest, "invalid sort")
		return
	}

	items, err := h.Store.Search(r.Context(), q)
	if err != nil {
		storeError(w, err, "failed to list items")
		return
	}
	jsonResponse(w, http.StatusOK, h.respondAll(items))
}

// Create handles POST /api/items with add-or-merge semantics.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	add := model.AddRequest{
		Name:         req.Name,
		Category:     req.Category,
		Location:     req.Location,
		Notes:        req.Notes,
		ImageLocator: req.ImageURL,
	}
	if req.Quantity != nil {
		n := model.CoerceQuantity(req.Quantity)
		add.Quantity = &n
	}

	res, err := h.Store.AddOrMerge(r.Context(), add)
	if err != nil {
		storeError(w, err, "failed to add item")
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	jsonResponse(w, status, addResponse{
		Item:        h.respond(res.Item),
		Created:     res.Created,
		ImageCached: res.ImageCached,
	})
}

// Get handles GET /api/items/{name}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.Store.Get(r.Context(), r.PathValue("name"))
	if err != nil {
		storeError(w, err, "failed to get item")
		return
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}
	jsonResponse(w, http.StatusOK, h.respond(item))
}

// Delete handles DELETE /api/items/{name}.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Delete(r.Context(), r.PathValue("name")); err != nil {
		storeError(w, err, "failed to delete item")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "item deleted"})
}

// DeleteAll handles DELETE /api/items.
func (h *ItemsHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.Store.DeleteAll(r.Context())
	if err != nil {
		storeError(w, err, "failed to delete items")
		return
	}
	slog.Info("all items deleted", "count", n)
	jsonResponse(w, http.StatusOK, map[string]int64{"deleted": n})
}

// UpdateQuantity handles PUT /api/items/{name}/quantity.
func (h *ItemsHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := r.PathValue("name")
	if err := h.Store.UpdateQuantity(r.Context(), name, model.CoerceQuantity(req.Quantity)); err != nil {
		storeError(w, err, "failed to update quantity")
		return
	}
	h.Get(w, r)
}

// UpdateNotes handles PUT /api/items/{name}/notes.
func (h *ItemsHandler) UpdateNotes(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.Store.UpdateNotes(r.Context(), r.PathValue("name"), req.Notes); err != nil {
		storeError(w, err, "failed to update notes")
		return
	}
	h.Get(w, r)
}

// SetFavorite handles PUT /api/items/{name}/favorite.
func (h *ItemsHandler) SetFavorite(w http.ResponseWriter, r *http.Request) {
	var req favoriteRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.Store.SetFavorite(r.Context(), r.PathValue("name"), req.Favorite); err != nil {
		storeError(w, err, "failed to update favorite")
		return
	}
	h.Get(w, r)
}

// AttachImage handles PUT /api/items/{name}/image with a source URL.
func (h *ItemsHandler) AttachImage(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		jsonError(w, http.StatusBadRequest, "url required")
		return
	}

	item, err := h.Store.AttachImage(r.Context(), r.PathValue("name"), req.URL)
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		slog.Warn("attaching image failed", "item", r.PathValue("name"), "url", req.URL, "error", err)
		jsonError(w, http.StatusBadGateway, "image could not be cached")
		return
	}
	jsonResponse(w, http.StatusOK, h.respond(item))
}

// UploadImage handles POST /api/items/{name}/image with a multipart file.
// Uploads are keyed by content hash so re-uploading the same file is a cache hit.
func (h *ItemsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes)
	if err := r.ParseMultipartForm(imaging.MaxUploadBytes); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to read image")
		return
	}

	mime, err := imaging.Sniff(data)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image must be JPEG, PNG, GIF or WebP")
		return
	}

	item, err := h.Store.Get(r.Context(), name)
	if err != nil {
		storeError(w, err, "failed to get item")
		return
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}

	sum := sha256.Sum256(data)
	locator := "upload:" + hex.EncodeToString(sum[:]) + uploadExtensions[mime]
	key, err := h.Cache.Put(locator, item.Category, data)
	if err != nil {
		slog.Error("caching upload", "item", item.Name, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to save image")
		return
	}

	if err := h.Store.SetImageKey(r.Context(), name, locator, key); err != nil {
		storeError(w, err, "failed to save image")
		return
	}
	h.Get(w, r)
}

func truthy(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
