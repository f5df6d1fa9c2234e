package cart

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-pasar/internal/common"
	"github.com/noah-isme/backend-pasar/internal/pricing"
)

// Handlers exposes the cart endpoints. Carts are addressable by id alone so
// guests can check out without an account.
type Handlers struct {
	Store    Store
	Validate *validator.Validate
	TaxBps   int
}

type setItemRequest struct {
	ProductID string `json:"productId" validate:"required,uuid4"`
	Qty       int32  `json:"qty" validate:"required,gt=0,lte=999"`
}

type cartItemResponse struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Qty       int32  `json:"qty"`
	UnitPrice int64  `json:"unitPrice"`
}

type cartResponse struct {
	ID       string             `json:"id"`
	Status   string             `json:"status"`
	Items    []cartItemResponse `json:"items"`
	Subtotal int64              `json:"subtotal"`
	Tax      int64              `json:"tax"`
	Total    int64              `json:"total"`
}

// Create handles POST /api/v1/carts.
func (h Handlers) Create(w http.ResponseWriter, r *http.Request) {
	var userID pgtype.UUID
	if raw, ok := common.UserID(r.Context()); ok {
		if id, err := common.ToUUID(raw); err == nil {
			userID = id
		}
	}
	c, err := h.Store.Create(r.Context(), userID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "CART_CREATE_FAILED", "unable to create cart", nil)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": h.toResponse(c)})
}

// Get handles GET /api/v1/carts/{cartId}.
func (h Handlers) Get(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}
	c, err := h.Store.Get(r.Context(), cartID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.toResponse(c)})
}

// SetItem handles PUT /api/v1/carts/{cartId}/items.
func (h Handlers) SetItem(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}
	var req setItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid cart item", nil)
			return
		}
	}
	productID, err := common.ToUUID(req.ProductID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid productId", nil)
		return
	}
	if err := h.Store.SetItem(r.Context(), cartID, productID, req.Qty); err != nil {
		h.writeStoreError(w, err)
		return
	}
	c, err := h.Store.Get(r.Context(), cartID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.toResponse(c)})
}

// RemoveItem handles DELETE /api/v1/carts/{cartId}/items/{productId}.
func (h Handlers) RemoveItem(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}
	productID, err := common.ToUUID(chi.URLParam(r, "productId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid productId", nil)
		return
	}
	if err := h.Store.RemoveItem(r.Context(), cartID, productID); err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h Handlers) cartID(w http.ResponseWriter, r *http.Request) (pgtype.UUID, bool) {
	id, err := common.ToUUID(chi.URLParam(r, "cartId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid cartId", nil)
		return pgtype.UUID{}, false
	}
	return id, true
}

func (h Handlers) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrCartNotFound):
		common.JSONError(w, http.StatusNotFound, "CART_NOT_FOUND", "cart not found", nil)
	case errors.Is(err, ErrCartClosed):
		common.JSONError(w, http.StatusConflict, "CART_CLOSED", "cart has already been ordered", nil)
	case errors.Is(err, ErrProductUnavailable):
		common.JSONError(w, http.StatusUnprocessableEntity, "PRODUCT_UNAVAILABLE", "product unknown or out of stock", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "CART_ERROR", "unable to process cart", nil)
	}
}

func (h Handlers) toResponse(c Cart) cartResponse {
	resp := cartResponse{
		ID:     common.UUIDString(c.ID),
		Status: c.Status,
		Items:  make([]cartItemResponse, 0, len(c.Items)),
	}
	priced := make([]pricing.Item, 0, len(c.Items))
	for _, it := range c.Items {
		resp.Items = append(resp.Items, cartItemResponse{
			ProductID: common.UUIDString(it.ProductID),
			Name:      it.Name,
			Qty:       it.Qty,
			UnitPrice: it.UnitPrice,
		})
		priced = append(priced, pricing.Item{Qty: int(it.Qty), UnitPrice: it.UnitPrice})
	}
	sum := pricing.Compute(priced, h.TaxBps)
	resp.Subtotal = sum.Subtotal
	resp.Tax = sum.Tax
	resp.Total = sum.Total
	return resp
}
