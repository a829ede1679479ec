package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/ichie-benjamin/market-pulse/internal/entity"
	"github.com/ichie-benjamin/market-pulse/internal/service/ingestion"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	store   entity.AssetStore
	manager *ingestion.Manager
	stats   func() (clients int, turboSymbols int)
}

func NewAssetHTTPHandler(store entity.AssetStore, manager *ingestion.Manager, stats func() (int, int)) *Handler {
	return &Handler{store: store, manager: manager, stats: stats}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/assets", h.GetAllAssets)
	mux.HandleFunc("GET /api/v1/assets/category/{category}", h.GetAssetsByCategory)
	mux.HandleFunc("GET /api/v1/assets/symbols", h.GetAssetsBySymbols)
	mux.HandleFunc("GET /api/v1/assets/{id}", h.GetAsset)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	mux.HandleFunc("POST /api/v1/admin/refresh", requireAPIKey(h.RefreshAll))
	mux.HandleFunc("POST /api/v1/admin/refresh/{category}", requireAPIKey(h.RefreshCategory))
	mux.HandleFunc("DELETE /api/v1/admin/cache", requireAPIKey(h.ClearAll))
	mux.HandleFunc("DELETE /api/v1/admin/cache/category/{category}", requireAPIKey(h.ClearCategory))
	mux.HandleFunc("DELETE /api/v1/admin/cache/asset/{id}", requireAPIKey(h.ClearAsset))
	mux.HandleFunc("DELETE /api/v1/admin/cache/symbol/{symbol}", requireAPIKey(h.ClearSymbol))
}

func (h *Handler) GetAllAssets(w http.ResponseWriter, r *http.Request) {
	assets := make([]entity.Asset, 0)
	for _, category := range entity.AllCategories {
		subset, err := h.store.GetByCategory(r.Context(), category)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		assets = append(assets, subset...)
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": assets, "count": len(assets)})
}

func (h *Handler) GetAssetsByCategory(w http.ResponseWriter, r *http.Request) {
	category, err := entity.ParseCategory(r.PathValue("category"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_category", err.Error())
		return
	}

	assets, err := h.store.GetByCategory(r.Context(), category)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": assets, "count": len(assets)})
}

func (h *Handler) GetAssetsBySymbols(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("symbols"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing_symbols", "symbols query parameter is required")
		return
	}

	assets, err := h.store.GetBySymbols(r.Context(), strings.Split(raw, ","))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": assets, "count": len(assets)})
}

func (h *Handler) GetAsset(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))

	asset, found, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found", entity.ErrAssetNotFound.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": asset})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	clients, turboSymbols := 0, 0
	if h.stats != nil {
		clients, turboSymbols = h.stats()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"categories":    h.manager.Health(),
		"clients":       clients,
		"turbo_symbols": turboSymbols,
	})
}

func (h *Handler) RefreshAll(w http.ResponseWriter, r *http.Request) {
	h.manager.RefreshAll()
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "refreshing"})
}

func (h *Handler) RefreshCategory(w http.ResponseWriter, r *http.Request) {
	category, err := entity.ParseCategory(r.PathValue("category"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_category", err.Error())
		return
	}

	if err := h.manager.RefreshCategory(category); err != nil {
		if errors.Is(err, entity.ErrProviderNotFound) {
			writeError(w, http.StatusNotFound, "no_provider", err.Error())
			return
		}

		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"status": "refreshing", "category": category})
}

func (h *Handler) ClearAll(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ClearAll(r.Context()); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "cleared"})
}

func (h *Handler) ClearCategory(w http.ResponseWriter, r *http.Request) {
	category, err := entity.ParseCategory(r.PathValue("category"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_category", err.Error())
		return
	}

	if err := h.store.ClearCategory(r.Context(), category); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "cleared", "category": category})
}

func (h *Handler) ClearAsset(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing_id", "asset id is required")
		return
	}

	if err := h.store.ClearAsset(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "cleared", "id": id})
}

func (h *Handler) ClearSymbol(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimSpace(r.PathValue("symbol"))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "missing_symbol", "symbol is required")
		return
	}

	if err := h.store.ClearBySymbol(r.Context(), symbol); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "cleared", "symbol": strings.ToUpper(symbol)})
}

func writeStoreError(w http.ResponseWriter, err error) {
	logrus.Errorf("store operation failed: %v", err)

	if errors.Is(err, entity.ErrStoreUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "cache is unavailable")
		return
	}

	writeError(w, http.StatusInternalServerError, "internal", "internal server error")
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": code, "message": message},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logrus.Errorf("response encode failed: %v", err)
	}
}
