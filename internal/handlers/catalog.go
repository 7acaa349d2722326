package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stellare-shop/builder/internal/platform/httpx"
	"github.com/stellare-shop/builder/internal/platform/pagination"
	"github.com/stellare-shop/builder/internal/services"
)

// CatalogHandlers exposes the read-only bracelet and charm listings.
type CatalogHandlers struct {
	catalog services.CatalogService
	pages   pagination.Options
}

// NewCatalogHandlers constructs handlers over the loaded catalog.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{
		catalog: catalog,
		pages:   pagination.Options{DefaultPageSize: 50, MaxPageSize: 100},
	}
}

// Routes wires the /catalog endpoints onto the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/bracelets", h.listBracelets)
	r.Get("/charms", h.listCharms)
	r.Get("/status", h.status)
}

type catalogListResponse struct {
	Items         []services.CatalogItemView `json:"items"`
	NextPageToken string                     `json:"nextPageToken,omitempty"`
}

type catalogStatusResponse struct {
	Loaded        bool     `json:"loaded"`
	BraceletCount int      `json:"braceletCount"`
	CharmCount    int      `json:"charmCount"`
	Notices       []string `json:"notices,omitempty"`
	LoadedAt      string   `json:"loadedAt,omitempty"`
}

func (h *CatalogHandlers) listBracelets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	params, err := pagination.FromRequest(r, h.pages)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	items, err := h.catalog.Bracelets(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	page, next, err := pagination.Slice(items, params)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, catalogListResponse{Items: page, NextPageToken: next})
}

func (h *CatalogHandlers) listCharms(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	params, err := pagination.FromRequest(r, h.pages)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	tag := strings.TrimSpace(r.URL.Query().Get("tag"))
	items, err := h.catalog.Charms(ctx, tag)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	page, next, err := pagination.Slice(items, params)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, catalogListResponse{Items: page, NextPageToken: next})
}

func (h *CatalogHandlers) status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	status := h.catalog.Status(ctx)
	payload := catalogStatusResponse{
		Loaded:        status.Loaded,
		BraceletCount: status.BraceletCount,
		CharmCount:    status.CharmCount,
		Notices:       status.Notices,
	}
	if !status.LoadedAt.IsZero() {
		payload.LoadedAt = status.LoadedAt.UTC().Format(time.RFC3339)
	}
	writeJSONResponse(w, http.StatusOK, payload)
}
