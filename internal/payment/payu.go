package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// PayU implements the Provider interface for PayU hosted-checkout integrations.
// The gateway signs every message with SHA-512 over a fixed pipe-delimited
// field chain plus the shared salt; request and response chains run in
// opposite directions.
type PayU struct {
	MerchantKey string
	Salt        string
	BaseURL     string
	Sandbox     bool
}

// BuildCheckout assembles the form fields for the gateway's hosted payment
// page, including the forward request hash.
func (p PayU) BuildCheckout(_ context.Context, req CheckoutRequest) (CheckoutForm, error) {
	if strings.TrimSpace(req.TransactionID) == "" {
		return CheckoutForm{}, errors.New("transaction id is required")
	}
	if req.Amount <= 0 {
		return CheckoutForm{}, errors.New("amount must be positive")
	}
	amount := formatPayUAmount(req.Amount)
	fields := map[string]string{
		"key":         strings.TrimSpace(p.MerchantKey),
		"txnid":       req.TransactionID,
		"amount":      amount,
		"productinfo": req.ProductInfo,
		"firstname":   req.FirstName,
		"email":       req.Email,
		"udf1":        req.CartID,
		"udf2":        req.CheckoutRef,
		"surl":        req.SuccessURL,
		"furl":        req.FailureURL,
	}
	fields["hash"] = p.requestHash(req.TransactionID, amount, req.ProductInfo, req.FirstName, req.Email, req.CartID, req.CheckoutRef)
	return CheckoutForm{
		Provider: "payu",
		Action:   strings.TrimRight(p.host(), "/") + "/_payment",
		Fields:   fields,
	}, nil
}

func (p PayU) host() string {
	host := strings.TrimSpace(p.BaseURL)
	if host == "" {
		if p.Sandbox {
			return "https://test.payu.in"
		}
		return "https://secure.payu.in"
	}
	return host
}

// VerifyWebhook validates the reverse response hash over the exact bytes the
// gateway posted and normalises the payload into a Notification. The body
// must be the untouched form-encoded payload; callers decode nothing before
// handing it over.
func (p PayU) VerifyWebhook(_ *http.Request, body []byte) (Notification, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return Notification{Valid: false, Err: err}, nil
	}
	txnid := strings.TrimSpace(values.Get("txnid"))
	if txnid == "" {
		return Notification{Valid: false, Err: errors.New("missing transaction id")}, nil
	}
	status := strings.TrimSpace(values.Get("status"))
	amount := strings.TrimSpace(values.Get("amount"))

	expected := p.responseHash(
		status,
		values.Get("udf1"), values.Get("udf2"), values.Get("udf3"), values.Get("udf4"), values.Get("udf5"),
		values.Get("email"), values.Get("firstname"), values.Get("productinfo"),
		amount, txnid,
	)
	provided := strings.ToLower(strings.TrimSpace(values.Get("hash")))
	if expected == "" || provided == "" || !hmac.Equal([]byte(expected), []byte(provided)) {
		return Notification{Valid: false, TransactionID: txnid, Err: errors.New("invalid signature")}, nil
	}

	parsedAmount, err := parsePayUAmount(amount)
	if err != nil {
		return Notification{Valid: false, TransactionID: txnid, Err: err}, nil
	}

	return Notification{
		Valid:         true,
		TransactionID: txnid,
		CartID:        strings.TrimSpace(values.Get("udf1")),
		CheckoutRef:   strings.TrimSpace(values.Get("udf2")),
		Amount:        parsedAmount,
		Outcome:       normalisePayUStatus(status),
		RawBody:       body,
	}, nil
}

// requestHash computes the forward chain
// key|txnid|amount|productinfo|firstname|email|udf1..udf5||||||salt.
func (p PayU) requestHash(txnid, amount, productinfo, firstname, email, udf1, udf2 string) string {
	key := strings.TrimSpace(p.MerchantKey)
	salt := strings.TrimSpace(p.Salt)
	if key == "" || salt == "" {
		return ""
	}
	chain := strings.Join([]string{
		key, txnid, amount, productinfo, firstname, email,
		udf1, udf2, "", "", "",
		"", "", "", "", "",
		salt,
	}, "|")
	return sha512Hex(chain)
}

// responseHash computes the reverse chain
// salt|status||||||udf5..udf1|email|firstname|productinfo|amount|txnid|key.
func (p PayU) responseHash(status, udf1, udf2, udf3, udf4, udf5, email, firstname, productinfo, amount, txnid string) string {
	key := strings.TrimSpace(p.MerchantKey)
	salt := strings.TrimSpace(p.Salt)
	if key == "" || salt == "" {
		return ""
	}
	chain := strings.Join([]string{
		salt, status,
		"", "", "", "", "",
		udf5, udf4, udf3, udf2, udf1,
		email, firstname, productinfo, amount, txnid, key,
	}, "|")
	return sha512Hex(chain)
}

func sha512Hex(input string) string {
	sum := sha512.Sum512([]byte(input))
	return hex.EncodeToString(sum[:])
}

// formatPayUAmount renders minor units as the gateway's decimal string.
func formatPayUAmount(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}

func parsePayUAmount(value string) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	if !strings.Contains(trimmed, ".") {
		parsed, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return 0, err
		}
		return parsed * 100, nil
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(f * 100)), nil
}

func normalisePayUStatus(status string) Status {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "success", "captured":
		return StatusSucceeded
	case "failure", "failed", "deny":
		return StatusFailed
	default:
		return StatusPending
	}
}
