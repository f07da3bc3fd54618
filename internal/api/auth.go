package api

import (
	"log/slog"
	"net/http"

	"github.com/erazemk/oprema/internal/auth"
	"github.com/erazemk/oprema/internal/store"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	Store     *store.Store
	JWTSecret string
}

type loginRequest struct {
	Passphrase string `json:"passphrase"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Passphrase == "" {
		jsonError(w, http.StatusBadRequest, "passphrase required")
		return
	}

	hash, err := h.Store.PassphraseHash(r.Context())
	if err != nil {
		slog.Error("loading passphrase", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if hash == "" {
		jsonError(w, http.StatusBadRequest, "authentication is not enabled")
		return
	}

	if err := auth.CheckPassphrase(hash, req.Passphrase); err != nil {
		slog.Warn("login failed", "remote", r.RemoteAddr)
		jsonError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := auth.GenerateToken(h.JWTSecret)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	slog.Info("logged in", "remote", r.RemoteAddr)
	jsonResponse(w, http.StatusOK, loginResponse{Token: token})
}

// Logout handles POST /api/auth/logout by revoking the presented token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims != nil && claims.ExpiresAt != nil {
		if err := h.Store.RevokeToken(r.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
			slog.Error("revoking token", "error", err)
			jsonError(w, http.StatusInternalServerError, "failed to log out")
			return
		}
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "logged out"})
}
