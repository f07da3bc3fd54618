package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dustin/go-humanize"

	"github.com/erazemk/oprema/internal/imagecache"
	"github.com/erazemk/oprema/internal/janitor"
	"github.com/erazemk/oprema/internal/store"
)

// InventoryHandler handles bulk inventory, stats and cache endpoints.
type InventoryHandler struct {
	Store   *store.Store
	Cache   *imagecache.Cache
	Janitor *janitor.Janitor
}

type cacheSizeResponse struct {
	Bytes int64  `json:"bytes"`
	Human string `json:"human"`
}

// Clear handles POST /api/inventory/clear.
func (h *InventoryHandler) Clear(w http.ResponseWriter, r *http.Request) {
	n, err := h.Store.ClearQuantities(r.Context())
	if err != nil {
		storeError(w, err, "failed to clear inventory")
		return
	}
	slog.Info("inventory cleared", "count", n)
	jsonResponse(w, http.StatusOK, map[string]int64{"cleared": n})
}

// Categories handles GET /api/categories.
func (h *InventoryHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Store.ListCategories(r.Context())
	if err != nil {
		storeError(w, err, "failed to list categories")
		return
	}
	jsonResponse(w, http.StatusOK, categories)
}

// Stats handles GET /api/stats.
func (h *InventoryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.Store.Stats(r.Context())
	if err != nil {
		storeError(w, err, "failed to get stats")
		return
	}
	if h.Cache != nil {
		size, err := h.Cache.Size()
		if err != nil {
			slog.Warn("measuring cache", "error", err)
		}
		st.CacheSizeBytes = size
	}
	jsonResponse(w, http.StatusOK, st)
}

// CacheSize handles GET /api/cache/size.
func (h *InventoryHandler) CacheSize(w http.ResponseWriter, r *http.Request) {
	size, err := h.Cache.Size()
	if err != nil {
		slog.Error("measuring cache", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to measure cache")
		return
	}
	jsonResponse(w, http.StatusOK, cacheSizeResponse{Bytes: size, Human: humanize.Bytes(uint64(size))})
}

// ClearCache handles DELETE /api/cache, optionally limited by ?category=.
func (h *InventoryHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if err := h.Cache.Clear(category); err != nil {
		slog.Error("clearing cache", "category", category, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to clear cache")
		return
	}
	slog.Info("cache cleared", "category", category)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "cache cleared"})
}

// Sweep handles POST /api/cache/sweep.
func (h *InventoryHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	var (
		res imagecache.SweepResult
		err error
	)
	if h.Janitor != nil {
		res, err = h.Janitor.RunOnce(r.Context())
	} else {
		res, err = h.Cache.Sweep(r.Context())
	}
	if errors.Is(err, janitor.ErrBusy) {
		jsonError(w, http.StatusConflict, "sweep already running")
		return
	}
	if err != nil {
		slog.Error("sweeping cache", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to sweep cache")
		return
	}
	jsonResponse(w, http.StatusOK, res)
}
