package payment_test

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/noah-isme/backend-pasar/internal/payment"
)

const (
	testKey  = "gtKFFx"
	testSalt = "eCwWELxi"
)

func sha512hex(s string) string {
	sum := sha512.Sum512([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestBuildCheckoutForm(t *testing.T) {
	p := payment.PayU{MerchantKey: testKey, Salt: testSalt, Sandbox: true}
	form, err := p.BuildCheckout(context.Background(), payment.CheckoutRequest{
		TransactionID: "txn-100",
		Amount:        123456,
		ProductInfo:   "Kopi Arabica 250g",
		FirstName:     "Dewi",
		Email:         "dewi@example.com",
		CartID:        "11111111-2222-3333-4444-555555555555",
		CheckoutRef:   "ref-1",
		SuccessURL:    "https://shop.example.com/cb",
		FailureURL:    "https://shop.example.com/cb",
	})
	if err != nil {
		t.Fatalf("build checkout: %v", err)
	}
	if form.Action != "https://test.payu.in/_payment" {
		t.Fatalf("unexpected action %q", form.Action)
	}
	if form.Fields["amount"] != "1234.56" {
		t.Fatalf("unexpected amount %q", form.Fields["amount"])
	}
	want := sha512hex(strings.Join([]string{
		testKey, "txn-100", "1234.56", "Kopi Arabica 250g", "Dewi", "dewi@example.com",
		"11111111-2222-3333-4444-555555555555", "ref-1", "", "", "",
		"", "", "", "", "",
		testSalt,
	}, "|"))
	if form.Fields["hash"] != want {
		t.Fatalf("request hash mismatch\n got %s\nwant %s", form.Fields["hash"], want)
	}
}

func signedNotification(t *testing.T, status, amount, txnid, cartRef string) string {
	t.Helper()
	hash := sha512hex(strings.Join([]string{
		testSalt, status,
		"", "", "", "", "",
		"", "", "", "ref-1", cartRef,
		"dewi@example.com", "Dewi", "Kopi Arabica 250g", amount, txnid, testKey,
	}, "|"))
	v := url.Values{}
	v.Set("txnid", txnid)
	v.Set("status", status)
	v.Set("amount", amount)
	v.Set("productinfo", "Kopi Arabica 250g")
	v.Set("firstname", "Dewi")
	v.Set("email", "dewi@example.com")
	v.Set("udf1", cartRef)
	v.Set("udf2", "ref-1")
	v.Set("hash", hash)
	return v.Encode()
}

func TestVerifyWebhookAcceptsSignedPayload(t *testing.T) {
	p := payment.PayU{MerchantKey: testKey, Salt: testSalt}
	body := signedNotification(t, "success", "1234.56", "txn-100", "11111111-2222-3333-4444-555555555555")
	req, _ := http.NewRequest(http.MethodPost, "/webhooks/payment/payu", strings.NewReader(body))

	n, err := p.VerifyWebhook(req, []byte(body))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !n.Valid {
		t.Fatalf("expected valid notification, got err %v", n.Err)
	}
	if n.TransactionID != "txn-100" {
		t.Fatalf("unexpected transaction id %q", n.TransactionID)
	}
	if n.CartID != "11111111-2222-3333-4444-555555555555" {
		t.Fatalf("unexpected cart ref %q", n.CartID)
	}
	if n.Amount != 123456 {
		t.Fatalf("unexpected amount %d", n.Amount)
	}
	if n.Outcome != payment.StatusSucceeded {
		t.Fatalf("unexpected outcome %q", n.Outcome)
	}
}

func TestVerifyWebhookRejectsTamperedAmount(t *testing.T) {
	p := payment.PayU{MerchantKey: testKey, Salt: testSalt}
	body := signedNotification(t, "success", "1234.56", "txn-100", "cart-1")
	tampered := strings.Replace(body, "1234.56", "1.00", 1)
	req, _ := http.NewRequest(http.MethodPost, "/webhooks/payment/payu", strings.NewReader(tampered))

	n, err := p.VerifyWebhook(req, []byte(tampered))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if n.Valid {
		t.Fatal("tampered payload must not verify")
	}
}

func TestVerifyWebhookRejectsMissingHash(t *testing.T) {
	p := payment.PayU{MerchantKey: testKey, Salt: testSalt}
	body := "txnid=txn-100&status=success&amount=10.00"
	req, _ := http.NewRequest(http.MethodPost, "/webhooks/payment/payu", strings.NewReader(body))

	n, _ := p.VerifyWebhook(req, []byte(body))
	if n.Valid {
		t.Fatal("unsigned payload must not verify")
	}
}

func TestVerifyWebhookFailureOutcome(t *testing.T) {
	p := payment.PayU{MerchantKey: testKey, Salt: testSalt}
	body := signedNotification(t, "failure", "1234.56", "txn-101", "cart-1")
	req, _ := http.NewRequest(http.MethodPost, "/webhooks/payment/payu", strings.NewReader(body))

	n, _ := p.VerifyWebhook(req, []byte(body))
	if !n.Valid {
		t.Fatalf("expected valid notification, got err %v", n.Err)
	}
	if n.Outcome != payment.StatusFailed {
		t.Fatalf("unexpected outcome %q", n.Outcome)
	}
}
