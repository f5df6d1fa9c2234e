package payment

import (
	"context"
	"net/http"
)

// Status enumerates the lifecycle states of a payment session.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
)

// Terminal reports whether the status admits no further gateway transitions.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusExpired
}

// CheckoutRequest captures the information required to open a hosted checkout
// with the gateway. The transaction id is merchant-assigned and becomes the
// correlation key for every later notification.
type CheckoutRequest struct {
	TransactionID string
	Amount        int64
	ProductInfo   string
	FirstName     string
	Email         string
	CartID        string
	CheckoutRef   string
	SuccessURL    string
	FailureURL    string
}

// CheckoutForm is the browser-facing form a client posts to the gateway's
// hosted payment page.
type CheckoutForm struct {
	Provider string            `json:"provider"`
	Action   string            `json:"action"`
	Fields   map[string]string `json:"fields"`
}

// Notification contains the normalised data extracted from a gateway
// notification after signature verification.
type Notification struct {
	Valid         bool
	TransactionID string
	CartID        string
	CheckoutRef   string
	Amount        int64
	Outcome       Status
	RawBody       []byte
	Err           error
}

// Provider abstracts the operations required from an upstream hosted gateway.
type Provider interface {
	BuildCheckout(ctx context.Context, req CheckoutRequest) (CheckoutForm, error)
	VerifyWebhook(r *http.Request, body []byte) (Notification, error)
}
