package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pasar/internal/common"
)

// TypeMaterializeOrder is the task kind for deferred order materialisation.
// Tasks are enqueued when the synchronous attempt inside the webhook fails.
const TypeMaterializeOrder = "order:materialize"

// MaterializePayload carries the identifiers the worker needs to retry.
type MaterializePayload struct {
	CartID    string `json:"cartId"`
	SessionID string `json:"sessionId"`
}

// TaskEnqueuer publishes materialisation retries to asynq.
type TaskEnqueuer struct {
	Client *asynq.Client
	Logger zerolog.Logger
}

// EnqueueMaterialize schedules a retry for the given cart. The task carries a
// per-cart task id so repeated webhook failures collapse into one queue entry.
func (e TaskEnqueuer) EnqueueMaterialize(ctx context.Context, cartID, sessionID string) error {
	if e.Client == nil {
		return errors.New("order: task client not configured")
	}
	payload, err := json.Marshal(MaterializePayload{CartID: cartID, SessionID: sessionID})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeMaterializeOrder, payload)
	info, err := e.Client.EnqueueContext(ctx, task,
		asynq.TaskID(TypeMaterializeOrder+":"+cartID),
		asynq.MaxRetry(10),
		asynq.Timeout(30*time.Second),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return err
	}
	e.Logger.Info().Str("task_id", info.ID).Str("cart_id", cartID).Msg("materialisation retry enqueued")
	return nil
}

// AttachSession lets the worker link the materialised order back to the
// payment session without importing the payment package.
type AttachSession func(ctx context.Context, sessionID, orderID string) error

// TaskHandler processes deferred materialisation tasks.
type TaskHandler struct {
	Orders *Materializer
	Attach AttachSession
	Logger zerolog.Logger
}

// HandleMaterialize retries order creation for the cart in the payload.
// Errors are returned so asynq applies its backoff schedule.
func (h TaskHandler) HandleMaterialize(ctx context.Context, t *asynq.Task) error {
	var p MaterializePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("order: decode payload: %w: %w", err, asynq.SkipRetry)
	}
	cartID, err := common.ToUUID(p.CartID)
	if err != nil {
		return fmt.Errorf("order: bad cart id %q: %w: %w", p.CartID, err, asynq.SkipRetry)
	}
	sessionID, err := common.ToUUID(p.SessionID)
	if err != nil {
		return fmt.Errorf("order: bad session id %q: %w: %w", p.SessionID, err, asynq.SkipRetry)
	}

	orderID, err := h.Orders.EnsureOrder(ctx, cartID, sessionID)
	if err != nil {
		h.Logger.Warn().Err(err).Str("cart_id", p.CartID).Msg("deferred materialisation failed")
		return err
	}
	if h.Attach != nil {
		if err := h.Attach(ctx, p.SessionID, common.UUIDString(orderID)); err != nil {
			h.Logger.Error().Err(err).Str("session_id", p.SessionID).Msg("attach order to session")
		}
	}
	h.Logger.Info().Str("cart_id", p.CartID).Str("order_id", common.UUIDString(orderID)).Msg("order materialised from queue")
	return nil
}
