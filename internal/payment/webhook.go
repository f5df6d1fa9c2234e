package payment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgtype"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pasar/internal/common"
	"github.com/noah-isme/backend-pasar/internal/events"
	"github.com/noah-isme/backend-pasar/internal/obs"
)

// Materializer converts a confirmed payment session into exactly one order.
// Implementations must be idempotent per cart.
type Materializer interface {
	EnsureOrder(ctx context.Context, cartID, sessionID pgtype.UUID) (pgtype.UUID, error)
}

// RetryScheduler hands failed materialisations to an out-of-band worker.
type RetryScheduler interface {
	EnqueueMaterialize(ctx context.Context, cartID, sessionID string) error
}

// Webhook is the trusted server-to-server ingress. It is the only writer of
// authoritative payment status.
type Webhook struct {
	Store              SessionStore
	Providers          map[string]Provider
	Orders             Materializer
	Retry              RetryScheduler
	Replay             *redis.Client
	ReplayTTL          time.Duration
	MaterializeTimeout time.Duration
	Events             *events.Bus
	Logger             zerolog.Logger
}

// Handle processes gateway notifications for the configured provider(s).
// The gateway delivers at least once; every path through here is idempotent.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil || h.Providers == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	providerKey := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider")))
	provider, ok := h.Providers[providerKey]
	if !ok {
		common.JSONError(w, http.StatusNotFound, "PROVIDER_NOT_SUPPORTED", "unknown provider", nil)
		return
	}
	// The raw body is what the gateway signed; preserve it before any decoding.
	body, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	n, err := provider.VerifyWebhook(r, body)
	if err != nil {
		h.count(providerKey, "malformed")
		common.JSONError(w, http.StatusBadRequest, "WEBHOOK_INVALID", "unable to process notification", nil)
		return
	}
	if !n.Valid {
		// Security-relevant: either a forgery attempt or a key/salt mismatch.
		// The response stays generic; details go to the log only.
		h.Logger.Warn().
			Str("provider", providerKey).
			Str("transaction_id", n.TransactionID).
			Str("remote_addr", r.RemoteAddr).
			AnErr("reason", n.Err).
			Msg("webhook signature rejected")
		h.count(providerKey, "invalid_signature")
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}

	ctx := r.Context()
	if h.Replay != nil && h.ReplayTTL > 0 {
		key := fmt.Sprintf("wh:%s:%s", providerKey, common.Sha256Hex(body))
		fresh, err := h.Replay.SetNX(ctx, key, "1", h.ReplayTTL).Result()
		if err == nil && !fresh {
			// Byte-identical redelivery. The outcome is already recorded, so
			// ack it to stop the gateway's retry loop.
			h.Logger.Info().Str("provider", providerKey).Str("transaction_id", n.TransactionID).Msg("duplicate webhook delivery")
			h.count(providerKey, "duplicate")
			common.JSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
			return
		}
	}

	cartID, err := common.ToUUID(n.CartID)
	if err != nil {
		h.count(providerKey, "missing_cart")
		common.JSONError(w, http.StatusBadRequest, "INVALID_CART_REF", "invalid cart reference", nil)
		return
	}

	sess, err := h.Store.GetOrCreate(ctx, n.TransactionID, cartID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "SESSION_STORE_ERROR", "unable to record notification", nil)
		return
	}
	if sess.Status.Terminal() {
		// Late or repeated delivery after the session settled (including the
		// waiter's advisory expiry). Logged, never re-applied.
		h.Logger.Info().
			Str("provider", providerKey).
			Str("transaction_id", n.TransactionID).
			Str("status", string(sess.Status)).
			Str("outcome", string(n.Outcome)).
			Msg("webhook after terminal state ignored")
		h.count(providerKey, "duplicate")
		h.emit(ctx, events.TopicPaymentDuplicate, sess, n)
		common.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	if err := h.Store.RecordNotification(ctx, n.TransactionID, n.RawBody); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "SESSION_STORE_ERROR", "unable to record notification", nil)
		return
	}

	switch n.Outcome {
	case StatusSucceeded:
		applied, err := h.Store.CompareAndTransition(ctx, n.TransactionID, StatusPending, StatusSucceeded)
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "SESSION_STORE_ERROR", "unable to apply transition", nil)
			return
		}
		if !applied {
			h.count(providerKey, "duplicate")
			break
		}
		h.count(providerKey, "succeeded")
		h.emit(ctx, events.TopicPaymentSucceeded, sess, n)
		h.materialize(ctx, sess, cartID, n)
	case StatusFailed:
		applied, err := h.Store.CompareAndTransition(ctx, n.TransactionID, StatusPending, StatusFailed)
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "SESSION_STORE_ERROR", "unable to apply transition", nil)
			return
		}
		if applied {
			h.count(providerKey, "failed")
			h.emit(ctx, events.TopicPaymentFailed, sess, n)
		} else {
			h.count(providerKey, "duplicate")
		}
	default:
		// A pending notification carries no transition; the session stays open.
		h.count(providerKey, "pending")
	}

	common.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// materialize runs order creation synchronously within a bounded window. On
// failure the outcome is already recorded, so the gateway still gets its ack
// and the retry queue picks the work up.
func (h Webhook) materialize(ctx context.Context, sess Session, cartID pgtype.UUID, n Notification) {
	if h.Orders == nil {
		return
	}
	timeout := h.MaterializeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	mctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	orderID, err := h.Orders.EnsureOrder(mctx, cartID, sess.ID)
	if err != nil {
		h.Logger.Error().Err(err).
			Str("transaction_id", sess.TransactionID).
			Str("cart_id", common.UUIDString(cartID)).
			Msg("synchronous order materialisation failed, scheduling retry")
		if h.Retry != nil {
			if qErr := h.Retry.EnqueueMaterialize(context.WithoutCancel(ctx), common.UUIDString(cartID), common.UUIDString(sess.ID)); qErr != nil && !errors.Is(qErr, context.Canceled) {
				h.Logger.Error().Err(qErr).Str("cart_id", common.UUIDString(cartID)).Msg("enqueue materialisation retry")
			}
		}
		return
	}
	if err := h.Store.AttachOrder(ctx, sess.TransactionID, orderID); err != nil {
		h.Logger.Error().Err(err).Str("transaction_id", sess.TransactionID).Msg("attach order to session")
	}
	h.emit(ctx, events.TopicOrderPaid, sess, n)
}

func (h Webhook) emit(ctx context.Context, topic string, sess Session, n Notification) {
	if h.Events == nil {
		return
	}
	payload := map[string]any{
		"transactionId": sess.TransactionID,
		"cartId":        n.CartID,
		"amount":        n.Amount,
		"outcome":       string(n.Outcome),
	}
	if _, err := h.Events.Emit(ctx, topic, sess.ID, payload); err != nil {
		h.Logger.Error().Err(err).Str("topic", topic).Msg("emit domain event")
	}
}

func (h Webhook) count(provider, result string) {
	if obs.PaymentWebhookTotal != nil {
		obs.PaymentWebhookTotal.WithLabelValues(provider, result).Inc()
	}
}
