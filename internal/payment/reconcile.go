package payment

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pasar/internal/common"
	"github.com/noah-isme/backend-pasar/internal/events"
	"github.com/noah-isme/backend-pasar/internal/obs"
)

// Outcome is the terminal result observed by the reconciliation waiter.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timed_out"
)

// Waiter polls the session store for the authoritative outcome of a payment
// while the browser waits, bounded by a fixed ceiling.
type Waiter struct {
	Store        SessionStore
	Orders       Materializer
	Events       *events.Bus
	PollInterval time.Duration
	Ceiling      time.Duration
	Logger       zerolog.Logger
}

// Await polls until the session reaches a terminal state or the ceiling
// elapses. Cancellation of ctx (browser navigated away) stops the loop
// immediately without any advisory write.
func (wt *Waiter) Await(ctx context.Context, cartID pgtype.UUID) (Outcome, Session, error) {
	if wt == nil || wt.Store == nil {
		return "", Session{}, errors.New("payment: waiter not configured")
	}
	interval := wt.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ceiling := wt.Ceiling
	if ceiling <= 0 {
		ceiling = 60 * time.Second
	}
	deadline := time.Now().Add(ceiling)

	for {
		sess, err := wt.Store.GetByCart(ctx, cartID)
		switch {
		case errors.Is(err, ErrSessionNotFound):
			// No webhook observed yet; keep polling until the ceiling.
		case err != nil:
			return "", Session{}, err
		default:
			if outcome, done := wt.observe(ctx, &sess, cartID); done {
				return outcome, sess, nil
			}
		}

		if time.Now().After(deadline) {
			return wt.timeOut(ctx, cartID), Session{}, nil
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", Session{}, ctx.Err()
		case <-timer.C:
		}
	}
}

// observe reports the terminal outcome for a session, if any. When fallback
// materialisation runs it records the new order id on sess so the caller
// answers with the same session the webhook-first path would have produced.
func (wt *Waiter) observe(ctx context.Context, sess *Session, cartID pgtype.UUID) (Outcome, bool) {
	switch sess.Status {
	case StatusFailed:
		return OutcomeFailed, true
	case StatusExpired:
		return OutcomeTimedOut, true
	case StatusSucceeded:
		if !sess.OrderID.Valid && wt.Orders != nil {
			// The webhook recorded success but materialisation has not landed
			// yet. Trigger it from here; EnsureOrder is idempotent per cart.
			orderID, err := wt.Orders.EnsureOrder(ctx, cartID, sess.ID)
			if err != nil {
				wt.Logger.Error().Err(err).
					Str("transaction_id", sess.TransactionID).
					Msg("waiter fallback materialisation failed")
				return "", false
			}
			if err := wt.Store.AttachOrder(ctx, sess.TransactionID, orderID); err != nil {
				wt.Logger.Error().Err(err).Str("transaction_id", sess.TransactionID).Msg("attach order to session")
			}
			sess.OrderID = orderID
		}
		return OutcomeConfirmed, true
	default:
		return "", false
	}
}

// timeOut marks the session expired when one exists and is still pending.
// The advisory write is best effort; a pending payment that settles later is
// logged by the webhook, not re-applied.
func (wt *Waiter) timeOut(ctx context.Context, cartID pgtype.UUID) Outcome {
	sess, err := wt.Store.GetByCart(ctx, cartID)
	if err == nil && sess.Status == StatusPending {
		applied, err := wt.Store.CompareAndTransition(ctx, sess.TransactionID, StatusPending, StatusExpired)
		if err != nil {
			wt.Logger.Error().Err(err).Str("transaction_id", sess.TransactionID).Msg("advisory expiry failed")
		} else if applied && wt.Events != nil {
			payload := map[string]any{
				"transactionId": sess.TransactionID,
				"cartId":        common.UUIDString(cartID),
			}
			if _, err := wt.Events.Emit(ctx, events.TopicPaymentExpired, sess.ID, payload); err != nil {
				wt.Logger.Error().Err(err).Str("transaction_id", sess.TransactionID).Msg("emit payment expired")
			}
		}
	}
	return OutcomeTimedOut
}

// ReconcileHandler exposes the waiter over HTTP: a blocking wait that ends in
// a redirect, and an instantaneous status read for client-side polling.
type ReconcileHandler struct {
	Waiter     *Waiter
	Store      SessionStore
	SuccessURL string
	ErrorURL   string
	PendingURL string
}

// Wait blocks until the waiter reaches a terminal outcome, then redirects the
// browser to the matching page. TIMED_OUT sends the user to order history
// rather than back into payment, to avoid duplicate charges.
func (h ReconcileHandler) Wait(w http.ResponseWriter, r *http.Request) {
	if h.Waiter == nil {
		common.JSONError(w, http.StatusInternalServerError, "RECONCILE_NOT_CONFIGURED", "reconciliation unavailable", nil)
		return
	}
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}
	start := time.Now()
	outcome, sess, err := h.Waiter.Await(r.Context(), cartID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Browser went away; nothing left to answer.
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "RECONCILE_ERROR", "unable to determine payment outcome", nil)
		return
	}
	if obs.PaymentReconcileTotal != nil {
		obs.PaymentReconcileTotal.WithLabelValues(string(outcome)).Inc()
	}
	if obs.ReconcileWaitSeconds != nil {
		obs.ReconcileWaitSeconds.Observe(time.Since(start).Seconds())
	}
	switch outcome {
	case OutcomeConfirmed:
		loc := h.SuccessURL
		if oid := common.UUIDString(sess.OrderID); oid != "" {
			loc = appendQuery(loc, "order", oid)
		}
		common.Redirect(w, r, loc)
	case OutcomeFailed:
		common.Redirect(w, r, appendQuery(h.ErrorURL, "reason", "payment_failed"))
	default:
		common.Redirect(w, r, appendQuery(h.PendingURL, "reason", "status_unknown"))
	}
}

// Status returns the current session status for a cart without waiting.
func (h ReconcileHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "RECONCILE_NOT_CONFIGURED", "reconciliation unavailable", nil)
		return
	}
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}
	sess, err := h.Store.GetByCart(r.Context(), cartID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			common.JSON(w, http.StatusOK, map[string]any{"status": string(StatusPending)})
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "SESSION_STORE_ERROR", "unable to read session", nil)
		return
	}
	resp := map[string]any{"status": string(sess.Status)}
	if oid := common.UUIDString(sess.OrderID); oid != "" {
		resp["orderId"] = oid
	}
	common.JSON(w, http.StatusOK, resp)
}

func (h ReconcileHandler) cartID(w http.ResponseWriter, r *http.Request) (pgtype.UUID, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "cartId"))
	if raw == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "cartId is required", nil)
		return pgtype.UUID{}, false
	}
	cartID, err := common.ToUUID(raw)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid cartId", nil)
		return pgtype.UUID{}, false
	}
	return cartID, true
}

func appendQuery(base, key, value string) string {
	if base == "" {
		base = "/"
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + key + "=" + value
}
