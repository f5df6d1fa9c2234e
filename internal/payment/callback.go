package payment

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pasar/internal/common"
	"github.com/noah-isme/backend-pasar/internal/obs"
)

// Callback is the browser-redirect ingress. Query parameters arrive from the
// user's browser and are attacker-controllable, so this handler decides only
// where to send the browser next. It verifies nothing and writes nothing; the
// webhook remains the sole authority on payment state.
type Callback struct {
	ErrorURL     string
	ReconcileURL string
	Logger       zerolog.Logger
}

// Handle routes the returning browser based on the gateway's outcome hint.
func (h Callback) Handle(w http.ResponseWriter, r *http.Request) {
	providerKey := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider")))
	q := r.URL.Query()
	status := strings.ToLower(strings.TrimSpace(q.Get("status")))
	cartRef := strings.TrimSpace(q.Get("udf1"))
	txnid := strings.TrimSpace(q.Get("txnid"))

	switch status {
	case "failure", "failed", "pending":
		// Explicit non-success hint: fast-fail the UX without waiting for the
		// webhook. No session is touched.
		h.Logger.Info().
			Str("provider", providerKey).
			Str("transaction_id", txnid).
			Str("status", status).
			Msg("callback fast-fail redirect")
		h.count(providerKey, "fast_fail")
		common.Redirect(w, r, h.errorLocation("payment_"+status))
		return
	}

	if cartRef == "" {
		h.Logger.Warn().
			Str("provider", providerKey).
			Str("transaction_id", txnid).
			Msg("callback missing cart reference")
		h.count(providerKey, "missing_ref")
		common.Redirect(w, r, h.errorLocation("missing_reference"))
		return
	}

	h.count(providerKey, "reconcile")
	common.Redirect(w, r, h.reconcileLocation(cartRef))
}

func (h Callback) errorLocation(reason string) string {
	u := h.ErrorURL
	if u == "" {
		u = "/checkout/error"
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "reason=" + url.QueryEscape(reason)
}

func (h Callback) reconcileLocation(cartRef string) string {
	base := strings.TrimRight(h.ReconcileURL, "/")
	if base == "" {
		base = "/api/v1/payments/reconcile"
	}
	return base + "/" + url.PathEscape(cartRef)
}

func (h Callback) count(provider, decision string) {
	if obs.PaymentCallbackTotal != nil {
		obs.PaymentCallbackTotal.WithLabelValues(provider, decision).Inc()
	}
}
