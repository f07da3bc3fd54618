// Package api exposes the item store and image cache over JSON HTTP.
package api

import (
	"net/http"
	"strings"

	"github.com/erazemk/oprema/internal/imagecache"
	"github.com/erazemk/oprema/internal/janitor"
	"github.com/erazemk/oprema/internal/metrics"
	"github.com/erazemk/oprema/internal/store"
)

// Deps are the collaborators the router serves. Janitor and Metrics may be nil.
type Deps struct {
	Store     *store.Store
	Cache     *imagecache.Cache
	Janitor   *janitor.Janitor
	Metrics   *metrics.Metrics
	JWTSecret string
}

// NewRouter creates the router with all endpoints registered.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{Store: d.Store, JWTSecret: d.JWTSecret}
	itemsHandler := &ItemsHandler{Store: d.Store, Cache: d.Cache}
	inventoryHandler := &InventoryHandler{Store: d.Store, Cache: d.Cache, Janitor: d.Janitor}

	authMW := AuthMiddleware(d.JWTSecret, d.Store)
	protect := func(h http.HandlerFunc) http.Handler { return authMW(h) }

	// Public.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.Handle("GET /cache/", http.StripPrefix("/cache/", noListing(http.FileServer(http.Dir(d.Cache.Root())))))
	mux.Handle("GET /metrics", d.Metrics.Handler())

	mux.Handle("POST /api/auth/logout", protect(authHandler.Logout))

	// Items.
	mux.Handle("GET /api/items", protect(itemsHandler.List))
	mux.Handle("POST /api/items", protect(itemsHandler.Create))
	mux.Handle("DELETE /api/items", protect(itemsHandler.DeleteAll))
	mux.Handle("GET /api/items/{name}", protect(itemsHandler.Get))
	mux.Handle("DELETE /api/items/{name}", protect(itemsHandler.Delete))
	mux.Handle("PUT /api/items/{name}/quantity", protect(itemsHandler.UpdateQuantity))
	mux.Handle("PUT /api/items/{name}/notes", protect(itemsHandler.UpdateNotes))
	mux.Handle("PUT /api/items/{name}/favorite", protect(itemsHandler.SetFavorite))
	mux.Handle("PUT /api/items/{name}/image", protect(itemsHandler.AttachImage))
	mux.Handle("POST /api/items/{name}/image", protect(itemsHandler.UploadImage))

	// Inventory and cache.
	mux.Handle("POST /api/inventory/clear", protect(inventoryHandler.Clear))
	mux.Handle("GET /api/categories", protect(inventoryHandler.Categories))
	mux.Handle("GET /api/stats", protect(inventoryHandler.Stats))
	mux.Handle("GET /api/cache/size", protect(inventoryHandler.CacheSize))
	mux.Handle("DELETE /api/cache", protect(inventoryHandler.ClearCache))
	mux.Handle("POST /api/cache/sweep", protect(inventoryHandler.Sweep))

	return mux
}

// noListing hides directory indexes.
func noListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
