package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/backend-pasar/internal/common"
	"github.com/noah-isme/backend-pasar/internal/obs"
)

var svcTracer = otel.Tracer("pasar/payment")

// CheckoutIntent is what the checkout flow asks the payment layer to open.
type CheckoutIntent struct {
	CartID      pgtype.UUID
	CheckoutRef string
	Amount      int64
	ProductInfo string
	FirstName   string
	Email       string
}

// Service opens hosted-checkout forms against a configured gateway. It assigns
// the merchant transaction id that correlates the eventual notifications back
// to the cart.
type Service struct {
	Providers   map[string]Provider
	DefaultName string
	SuccessURL  string
	FailureURL  string
}

// CreateCheckout builds the browser form for the named provider. An empty
// provider name selects the default gateway.
func (s Service) CreateCheckout(ctx context.Context, providerName string, in CheckoutIntent) (CheckoutForm, error) {
	ctx, span := svcTracer.Start(ctx, "payment.CreateCheckout", trace.WithAttributes(
		attribute.String("payment.provider", providerName),
	))
	defer span.End()

	name := strings.ToLower(strings.TrimSpace(providerName))
	if name == "" {
		name = s.DefaultName
	}
	p, ok := s.Providers[name]
	if !ok {
		err := fmt.Errorf("payment: unknown provider %q", name)
		span.SetStatus(codes.Error, err.Error())
		countIntent("unknown_provider")
		return CheckoutForm{}, err
	}
	if in.Amount <= 0 {
		err := errors.New("payment: amount must be positive")
		span.SetStatus(codes.Error, err.Error())
		countIntent("invalid_amount")
		return CheckoutForm{}, err
	}
	cartRef := common.UUIDString(in.CartID)
	if cartRef == "" {
		err := errors.New("payment: cart id is required")
		span.SetStatus(codes.Error, err.Error())
		countIntent("invalid_cart")
		return CheckoutForm{}, err
	}

	txnID := uuid.NewString()
	span.SetAttributes(attribute.String("payment.transaction_id", txnID))

	form, err := p.BuildCheckout(ctx, CheckoutRequest{
		TransactionID: txnID,
		Amount:        in.Amount,
		ProductInfo:   in.ProductInfo,
		FirstName:     in.FirstName,
		Email:         in.Email,
		CartID:        cartRef,
		CheckoutRef:   in.CheckoutRef,
		SuccessURL:    s.SuccessURL,
		FailureURL:    s.FailureURL,
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		countIntent("error")
		return CheckoutForm{}, err
	}
	countIntent("ok")
	return form, nil
}

func countIntent(result string) {
	if obs.CheckoutIntentTotal != nil {
		obs.CheckoutIntentTotal.WithLabelValues(result).Inc()
	}
}
