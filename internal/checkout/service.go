package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/noah-isme/backend-pasar/internal/cart"
	"github.com/noah-isme/backend-pasar/internal/common"
	"github.com/noah-isme/backend-pasar/internal/payment"
	"github.com/noah-isme/backend-pasar/internal/pricing"
)

// Input is the buyer-supplied checkout request.
type Input struct {
	CartID    string `json:"cartId" validate:"required,uuid4"`
	Provider  string `json:"provider" validate:"omitempty,alphanum"`
	FirstName string `json:"firstName" validate:"required,max=120"`
	Email     string `json:"email" validate:"required,email"`
}

// Service turns an open cart into a hosted-checkout form.
type Service struct {
	Carts    cart.Store
	Payments payment.Service
	TaxBps   int
}

// Start prices the cart and asks the payment layer for a gateway form. The
// cart stays open until a verified gateway notification succeeds.
func (s Service) Start(ctx context.Context, in Input) (payment.CheckoutForm, error) {
	cartID, err := common.ToUUID(in.CartID)
	if err != nil {
		return payment.CheckoutForm{}, common.NewAppError("BAD_REQUEST", "invalid cartId", http.StatusBadRequest, err)
	}
	c, err := s.Carts.Get(ctx, cartID)
	if errors.Is(err, cart.ErrCartNotFound) {
		return payment.CheckoutForm{}, common.NewAppError("CART_NOT_FOUND", "cart not found", http.StatusNotFound, err)
	}
	if err != nil {
		return payment.CheckoutForm{}, err
	}
	if c.Status != "open" {
		return payment.CheckoutForm{}, common.NewAppError("CART_CLOSED", "cart has already been ordered", http.StatusConflict, nil)
	}
	if len(c.Items) == 0 {
		return payment.CheckoutForm{}, common.NewAppError("CART_EMPTY", "cart has no items", http.StatusUnprocessableEntity, nil)
	}

	priced := make([]pricing.Item, 0, len(c.Items))
	for _, it := range c.Items {
		priced = append(priced, pricing.Item{Qty: int(it.Qty), UnitPrice: it.UnitPrice})
	}
	sum := pricing.Compute(priced, s.TaxBps)

	form, err := s.Payments.CreateCheckout(ctx, in.Provider, payment.CheckoutIntent{
		CartID:      cartID,
		CheckoutRef: common.UUIDString(common.NewUUID()),
		Amount:      sum.Total,
		ProductInfo: describeCart(c),
		FirstName:   strings.TrimSpace(in.FirstName),
		Email:       strings.TrimSpace(strings.ToLower(in.Email)),
	})
	if err != nil {
		return payment.CheckoutForm{}, fmt.Errorf("create checkout: %w", err)
	}
	return form, nil
}

func describeCart(c cart.Cart) string {
	if len(c.Items) == 1 {
		return c.Items[0].Name
	}
	return fmt.Sprintf("%s and %d more", c.Items[0].Name, len(c.Items)-1)
}
