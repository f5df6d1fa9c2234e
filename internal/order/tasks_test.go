package order_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pasar/internal/common"
	"github.com/noah-isme/backend-pasar/internal/order"
)

func TestHandleMaterializeSkipsBadPayload(t *testing.T) {
	h := order.TaskHandler{
		Orders: &order.Materializer{Store: newStubOrderStore(), Logger: zerolog.Nop()},
		Logger: zerolog.Nop(),
	}

	err := h.HandleMaterialize(context.Background(), asynq.NewTask(order.TypeMaterializeOrder, []byte("{broken")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	payload, _ := json.Marshal(order.MaterializePayload{CartID: "nope", SessionID: "nope"})
	err = h.HandleMaterialize(context.Background(), asynq.NewTask(order.TypeMaterializeOrder, payload))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleMaterializeCreatesAndAttaches(t *testing.T) {
	store := newStubOrderStore()
	var attachedSession, attachedOrder string
	h := order.TaskHandler{
		Orders: &order.Materializer{Store: store, Logger: zerolog.Nop()},
		Attach: func(_ context.Context, sessionID, orderID string) error {
			attachedSession = sessionID
			attachedOrder = orderID
			return nil
		},
		Logger: zerolog.Nop(),
	}

	cartID := common.NewUUID()
	sessionID := common.NewUUID()
	payload, _ := json.Marshal(order.MaterializePayload{
		CartID:    common.UUIDString(cartID),
		SessionID: common.UUIDString(sessionID),
	})

	err := h.HandleMaterialize(context.Background(), asynq.NewTask(order.TypeMaterializeOrder, payload))
	require.NoError(t, err)
	require.Equal(t, 1, store.creates)
	require.Equal(t, common.UUIDString(sessionID), attachedSession)
	require.NotEmpty(t, attachedOrder)
}

func TestHandleMaterializePropagatesRetryableErrors(t *testing.T) {
	store := newStubOrderStore()
	store.failWith = context.DeadlineExceeded
	h := order.TaskHandler{
		Orders: &order.Materializer{Store: store, Logger: zerolog.Nop()},
		Logger: zerolog.Nop(),
	}

	payload, _ := json.Marshal(order.MaterializePayload{
		CartID:    common.UUIDString(common.NewUUID()),
		SessionID: common.UUIDString(common.NewUUID()),
	})
	err := h.HandleMaterialize(context.Background(), asynq.NewTask(order.TypeMaterializeOrder, payload))
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}
