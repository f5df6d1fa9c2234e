package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pasar/internal/common"
	"github.com/noah-isme/backend-pasar/internal/events"
)

type memoryEventStore struct {
	inserted []events.Event
	err      error
}

func (m *memoryEventStore) InsertDomainEvent(_ context.Context, topic string, aggregateID pgtype.UUID, payload []byte) (events.Event, error) {
	if m.err != nil {
		return events.Event{}, m.err
	}
	ev := events.Event{
		ID:          common.NewUUID(),
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     payload,
		OccurredAt:  time.Now(),
	}
	m.inserted = append(m.inserted, ev)
	return ev, nil
}

type capturingNotifier struct {
	events []events.Event
	err    error
}

func (c *capturingNotifier) Notify(_ context.Context, ev events.Event) error {
	c.events = append(c.events, ev)
	return c.err
}

func TestEmitPersistsAndNotifies(t *testing.T) {
	store := &memoryEventStore{}
	notifier := &capturingNotifier{}
	bus := &events.Bus{Store: store, Notifiers: []events.Notifier{notifier}}

	ev, err := bus.Emit(context.Background(), events.TopicPaymentSucceeded, common.NewUUID(), map[string]any{"amount": 250000})
	require.NoError(t, err)
	require.Equal(t, events.TopicPaymentSucceeded, ev.Topic)
	require.JSONEq(t, `{"amount":250000}`, string(ev.Payload))
	require.Len(t, store.inserted, 1)
	require.Len(t, notifier.events, 1)
}

func TestEmitRequiresTopicAndAggregate(t *testing.T) {
	bus := &events.Bus{Store: &memoryEventStore{}}

	_, err := bus.Emit(context.Background(), "  ", common.NewUUID(), nil)
	require.Error(t, err)

	_, err = bus.Emit(context.Background(), events.TopicOrderCreated, pgtype.UUID{}, nil)
	require.Error(t, err)
}

func TestEmitRejectsInvalidJSONBytes(t *testing.T) {
	bus := &events.Bus{Store: &memoryEventStore{}}

	_, err := bus.Emit(context.Background(), events.TopicOrderCreated, common.NewUUID(), []byte("{not-json"))
	require.Error(t, err)
}

func TestEmitCollectsNotifierErrors(t *testing.T) {
	store := &memoryEventStore{}
	failing := &capturingNotifier{err: errors.New("smtp down")}
	ok := &capturingNotifier{}
	bus := &events.Bus{Store: store, Notifiers: []events.Notifier{failing, ok}}

	_, err := bus.Emit(context.Background(), events.TopicOrderPaid, common.NewUUID(), nil)
	require.Error(t, err)
	// Every notifier still ran and the event was persisted.
	require.Len(t, store.inserted, 1)
	require.Len(t, ok.events, 1)
}
