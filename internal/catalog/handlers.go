package catalog

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-pasar/internal/common"
)

// Handlers exposes the public catalogue endpoints.
type Handlers struct {
	Service Service
}

// List handles GET /api/v1/products.
func (h Handlers) List(w http.ResponseWriter, r *http.Request) {
	page, limit := common.ParsePagination(r, 20, 100)
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	result, err := h.Service.List(r.Context(), query, page, limit)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "CATALOG_LIST_FAILED", "unable to list products", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

// Get handles GET /api/v1/products/{slug}.
func (h Handlers) Get(w http.ResponseWriter, r *http.Request) {
	slug := strings.TrimSpace(chi.URLParam(r, "slug"))
	if slug == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "slug is required", nil)
		return
	}
	product, err := h.Service.GetBySlug(r.Context(), slug)
	if err != nil {
		if NotFound(err) {
			common.JSONError(w, http.StatusNotFound, "PRODUCT_NOT_FOUND", "product not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "CATALOG_GET_FAILED", "unable to load product", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": product})
}
