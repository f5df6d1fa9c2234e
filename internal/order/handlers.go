package order

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-pasar/internal/common"
)

// Handlers exposes the authenticated order history endpoints.
type Handlers struct {
	Store Store
}

type orderItemResponse struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Qty       int32  `json:"qty"`
	UnitPrice int64  `json:"unitPrice"`
	LineTotal int64  `json:"lineTotal"`
}

type orderResponse struct {
	ID        string              `json:"id"`
	CartID    string              `json:"cartId"`
	Status    string              `json:"status"`
	Subtotal  int64               `json:"subtotal"`
	Tax       int64               `json:"tax"`
	Total     int64               `json:"total"`
	Currency  string              `json:"currency"`
	CreatedAt string              `json:"createdAt"`
	Items     []orderItemResponse `json:"items,omitempty"`
}

// List returns the caller's orders, newest first.
func (h Handlers) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	page, perPage := common.ParsePagination(r, 20, 100)
	orders, err := h.Store.ListByUser(r.Context(), userID, perPage, (page-1)*perPage)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "ORDER_LIST_FAILED", "unable to list orders", nil)
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toResponse(o))
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":    out,
		"page":    page,
		"perPage": perPage,
	})
}

// Get returns one order owned by the caller.
func (h Handlers) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	id, err := common.ToUUID(chi.URLParam(r, "orderId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	o, err := h.Store.GetByID(r.Context(), id)
	if errors.Is(err, ErrOrderNotFound) {
		common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found", nil)
		return
	}
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "ORDER_GET_FAILED", "unable to load order", nil)
		return
	}
	if !common.UUIDEqual(o.UserID, userID) {
		common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found", nil)
		return
	}
	common.JSON(w, http.StatusOK, toResponse(o))
}

func toResponse(o Order) orderResponse {
	resp := orderResponse{
		ID:       common.UUIDString(o.ID),
		CartID:   common.UUIDString(o.CartID),
		Status:   o.Status,
		Subtotal: o.Subtotal,
		Tax:      o.Tax,
		Total:    o.Total,
		Currency: o.Currency,
	}
	if o.CreatedAt.Valid {
		resp.CreatedAt = o.CreatedAt.Time.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ProductID: common.UUIDString(it.ProductID),
			Name:      it.Name,
			Qty:       it.Qty,
			UnitPrice: it.UnitPrice,
			LineTotal: it.LineTotal,
		})
	}
	return resp
}

func callerID(w http.ResponseWriter, r *http.Request) (pgtype.UUID, bool) {
	raw, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return pgtype.UUID{}, false
	}
	id, err := common.ToUUID(raw)
	if err != nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return pgtype.UUID{}, false
	}
	return id, true
}
