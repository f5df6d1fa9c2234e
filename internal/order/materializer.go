package order

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pasar/internal/common"
	"github.com/noah-isme/backend-pasar/internal/events"
	"github.com/noah-isme/backend-pasar/internal/lock"
	"github.com/noah-isme/backend-pasar/internal/obs"
)

const uniqueViolation = "23505"

// Materializer turns a paid cart into exactly one order. Exactly-once rests
// on the orders.cart_id unique constraint; the Redis lock only narrows the
// window in which two workers do the same work concurrently.
type Materializer struct {
	Store   Store
	Locker  lock.Locker
	LockTTL time.Duration
	Events  *events.Bus
	Logger  zerolog.Logger

	// Trigger labels the materialisation path in metrics (webhook, waiter,
	// worker). WithTrigger derives a copy for each caller.
	Trigger string
}

// WithTrigger returns a copy recording the given trigger label.
func (m *Materializer) WithTrigger(trigger string) *Materializer {
	cp := *m
	cp.Trigger = trigger
	return &cp
}

// EnsureOrder creates the order for a cart if it does not exist and returns
// its id either way. Safe to call concurrently and repeatedly.
func (m *Materializer) EnsureOrder(ctx context.Context, cartID, sessionID pgtype.UUID) (pgtype.UUID, error) {
	if m == nil || m.Store == nil {
		return pgtype.UUID{}, errors.New("order: materializer not configured")
	}
	if existing, err := m.Store.GetByCart(ctx, cartID); err == nil {
		m.count("existing")
		return existing.ID, nil
	} else if !errors.Is(err, ErrOrderNotFound) {
		m.count("error")
		return pgtype.UUID{}, err
	}

	var orderID pgtype.UUID
	create := func(ctx context.Context) error {
		// Re-check under the lock; another holder may have finished already.
		if existing, err := m.Store.GetByCart(ctx, cartID); err == nil {
			orderID = existing.ID
			m.count("existing")
			return nil
		} else if !errors.Is(err, ErrOrderNotFound) {
			return err
		}

		o, err := m.Store.CreateFromCart(ctx, cartID)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				// Lost the race at the database; the winner's row is the order.
				won, ferr := m.Store.GetByCart(ctx, cartID)
				if ferr != nil {
					return ferr
				}
				orderID = won.ID
				m.count("existing")
				return nil
			}
			return err
		}
		orderID = o.ID
		m.count("created")
		m.emit(ctx, o, sessionID)
		return nil
	}

	var err error
	if m.Locker.R != nil {
		err = m.Locker.WithLock(ctx, lock.CartKey(common.UUIDString(cartID)), m.LockTTL, create)
	} else {
		err = create(ctx)
	}
	if err != nil {
		m.count("error")
		return pgtype.UUID{}, common.Retryable(err)
	}
	return orderID, nil
}

func (m *Materializer) emit(ctx context.Context, o Order, sessionID pgtype.UUID) {
	if m.Events == nil {
		return
	}
	payload := map[string]any{
		"orderId":   common.UUIDString(o.ID),
		"cartId":    common.UUIDString(o.CartID),
		"sessionId": common.UUIDString(sessionID),
		"total":     o.Total,
		"currency":  o.Currency,
	}
	if _, err := m.Events.Emit(ctx, events.TopicOrderCreated, o.ID, payload); err != nil {
		m.Logger.Error().Err(err).Str("order_id", common.UUIDString(o.ID)).Msg("emit order created")
	}
}

func (m *Materializer) count(result string) {
	if obs.OrderMaterializeTotal == nil {
		return
	}
	trigger := m.Trigger
	if trigger == "" {
		trigger = "webhook"
	}
	obs.OrderMaterializeTotal.WithLabelValues(trigger, result).Inc()
}
