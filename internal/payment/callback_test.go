package payment_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pasar/internal/payment"
)

func callbackRequest(t *testing.T, h payment.Callback, target string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/payments/{provider}/callback", h.Handle)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCallbackFastFailsOnFailureHint(t *testing.T) {
	h := payment.Callback{
		ErrorURL:     "https://shop.example.com/checkout/error",
		ReconcileURL: "https://shop.example.com/api/v1/payments/reconcile",
		Logger:       zerolog.Nop(),
	}
	rec := callbackRequest(t, h, "/payments/payu/callback?status=failure&txnid=txn-1&udf1=cart-1")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if loc != "https://shop.example.com/checkout/error?reason=payment_failure" {
		t.Fatalf("unexpected redirect %q", loc)
	}
}

func TestCallbackMissingCartReference(t *testing.T) {
	h := payment.Callback{
		ErrorURL: "https://shop.example.com/checkout/error",
		Logger:   zerolog.Nop(),
	}
	rec := callbackRequest(t, h, "/payments/payu/callback?status=success&txnid=txn-1")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if loc != "https://shop.example.com/checkout/error?reason=missing_reference" {
		t.Fatalf("unexpected redirect %q", loc)
	}
}

func TestCallbackRoutesToReconcile(t *testing.T) {
	h := payment.Callback{
		ErrorURL:     "https://shop.example.com/checkout/error",
		ReconcileURL: "https://shop.example.com/api/v1/payments/reconcile",
		Logger:       zerolog.Nop(),
	}
	// A success hint from the browser is never trusted as an outcome; the
	// browser only gets parked on the reconcile endpoint.
	rec := callbackRequest(t, h, "/payments/payu/callback?status=success&udf1=11111111-2222-3333-4444-555555555555")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	loc := rec.Header().Get("Location")
	want := "https://shop.example.com/api/v1/payments/reconcile/11111111-2222-3333-4444-555555555555"
	if loc != want {
		t.Fatalf("unexpected redirect %q", loc)
	}
}
