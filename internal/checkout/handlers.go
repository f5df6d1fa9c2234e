package checkout

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-pasar/internal/common"
)

// Handlers exposes the checkout endpoint.
type Handlers struct {
	Service  Service
	Validate *validator.Validate
}

// Start handles POST /api/v1/checkout. The response contains the form the
// browser auto-submits to the gateway's hosted page.
func (h Handlers) Start(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(in); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid checkout request", validationDetails(err))
			return
		}
	}
	form, err := h.Service.Start(r.Context(), in)
	if err != nil {
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "CHECKOUT_FAILED", "unable to start checkout", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": form})
}

func validationDetails(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return fields
}
