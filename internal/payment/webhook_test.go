package payment_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgtype"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pasar/internal/common"
	"github.com/noah-isme/backend-pasar/internal/events"
	"github.com/noah-isme/backend-pasar/internal/payment"
)

const webhookCartID = "11111111-2222-3333-4444-555555555555"

type memorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]payment.Session

	notifications int
	attached      []pgtype.UUID
}

func newMemorySessionStore() *memorySessionStore {
	return &memorySessionStore{sessions: map[string]payment.Session{}}
}

func (m *memorySessionStore) GetOrCreate(_ context.Context, transactionID string, cartID pgtype.UUID) (payment.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[transactionID]; ok {
		return sess, nil
	}
	sess := payment.Session{
		ID:            common.NewUUID(),
		TransactionID: transactionID,
		CartID:        cartID,
		Status:        payment.StatusPending,
	}
	m.sessions[transactionID] = sess
	return sess, nil
}

func (m *memorySessionStore) CompareAndTransition(_ context.Context, transactionID string, from, to payment.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[transactionID]
	if !ok || sess.Status != from {
		return false, nil
	}
	sess.Status = to
	m.sessions[transactionID] = sess
	return true, nil
}

func (m *memorySessionStore) RecordNotification(_ context.Context, transactionID string, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications++
	sess := m.sessions[transactionID]
	sess.RawNotification = raw
	m.sessions[transactionID] = sess
	return nil
}

func (m *memorySessionStore) AttachOrder(_ context.Context, transactionID string, orderID pgtype.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := m.sessions[transactionID]
	sess.OrderID = orderID
	m.sessions[transactionID] = sess
	m.attached = append(m.attached, orderID)
	return nil
}

func (m *memorySessionStore) GetByTransaction(_ context.Context, transactionID string) (payment.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[transactionID]
	if !ok {
		return payment.Session{}, payment.ErrSessionNotFound
	}
	return sess, nil
}

func (m *memorySessionStore) GetByCart(_ context.Context, cartID pgtype.UUID) (payment.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sess := range m.sessions {
		if common.UUIDEqual(sess.CartID, cartID) {
			return sess, nil
		}
	}
	return payment.Session{}, payment.ErrSessionNotFound
}

func (m *memorySessionStore) status(transactionID string) payment.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[transactionID].Status
}

func (m *memorySessionStore) mutations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions) + m.notifications + len(m.attached)
}

type stubProvider struct {
	notification payment.Notification
}

func (s stubProvider) BuildCheckout(context.Context, payment.CheckoutRequest) (payment.CheckoutForm, error) {
	return payment.CheckoutForm{}, nil
}

func (s stubProvider) VerifyWebhook(_ *http.Request, body []byte) (payment.Notification, error) {
	n := s.notification
	n.RawBody = body
	return n, nil
}

type countingMaterializer struct {
	mu      sync.Mutex
	calls   int
	orderID pgtype.UUID
	err     error
}

func (c *countingMaterializer) EnsureOrder(context.Context, pgtype.UUID, pgtype.UUID) (pgtype.UUID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.orderID, c.err
}

func (c *countingMaterializer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type recordingEventStore struct {
	mu     sync.Mutex
	topics []string
}

func (r *recordingEventStore) InsertDomainEvent(_ context.Context, topic string, aggregateID pgtype.UUID, payload []byte) (events.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	return events.Event{ID: common.NewUUID(), Topic: topic, AggregateID: aggregateID, Payload: payload}, nil
}

func (r *recordingEventStore) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.topics...)
}

type recordingScheduler struct {
	mu      sync.Mutex
	cartIDs []string
}

func (r *recordingScheduler) EnqueueMaterialize(_ context.Context, cartID, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cartIDs = append(r.cartIDs, cartID)
	return nil
}

func deliverWebhook(t *testing.T, h payment.Webhook, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/webhooks/payment/{provider}", h.Handle)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment/payu", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestWebhookSuccessMaterializesOnce(t *testing.T) {
	store := newMemorySessionStore()
	orders := &countingMaterializer{orderID: common.NewUUID()}
	eventStore := &recordingEventStore{}
	h := payment.Webhook{
		Store: store,
		Providers: map[string]payment.Provider{"payu": stubProvider{notification: payment.Notification{
			Valid:         true,
			TransactionID: "txn-1",
			CartID:        webhookCartID,
			Amount:        250000,
			Outcome:       payment.StatusSucceeded,
		}}},
		Orders: orders,
		Events: &events.Bus{Store: eventStore},
		Logger: zerolog.Nop(),
	}

	rec := deliverWebhook(t, h, "raw-body")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, payment.StatusSucceeded, store.status("txn-1"))
	require.Equal(t, 1, orders.count())
	require.Len(t, store.attached, 1)
	require.True(t, common.UUIDEqual(store.attached[0], orders.orderID))
	require.Contains(t, eventStore.seen(), events.TopicPaymentSucceeded)
	require.Contains(t, eventStore.seen(), events.TopicOrderPaid)

	// Redelivery after the terminal transition is acked without reapplying;
	// only a duplicate event marks that it happened.
	rec = deliverWebhook(t, h, "raw-body")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, orders.count())
	require.Contains(t, eventStore.seen(), events.TopicPaymentDuplicate)
}

func TestWebhookReplayCacheShortCircuits(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := newMemorySessionStore()
	orders := &countingMaterializer{orderID: common.NewUUID()}
	h := payment.Webhook{
		Store: store,
		Providers: map[string]payment.Provider{"payu": stubProvider{notification: payment.Notification{
			Valid:         true,
			TransactionID: "txn-2",
			CartID:        webhookCartID,
			Outcome:       payment.StatusSucceeded,
		}}},
		Orders:    orders,
		Replay:    rdb,
		ReplayTTL: time.Minute,
		Logger:    zerolog.Nop(),
	}

	rec := deliverWebhook(t, h, "raw-body")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = deliverWebhook(t, h, "raw-body")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"duplicate"}`, rec.Body.String())
	require.Equal(t, 1, orders.count())
}

func TestWebhookInvalidSignatureWritesNothing(t *testing.T) {
	store := newMemorySessionStore()
	h := payment.Webhook{
		Store: store,
		Providers: map[string]payment.Provider{"payu": stubProvider{notification: payment.Notification{
			Valid: false,
		}}},
		Logger: zerolog.Nop(),
	}

	rec := deliverWebhook(t, h, "forged")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "INVALID_SIGNATURE")
	require.NotContains(t, rec.Body.String(), "salt")
	require.Zero(t, store.mutations())
}

func TestWebhookFailureOutcome(t *testing.T) {
	store := newMemorySessionStore()
	h := payment.Webhook{
		Store: store,
		Providers: map[string]payment.Provider{"payu": stubProvider{notification: payment.Notification{
			Valid:         true,
			TransactionID: "txn-3",
			CartID:        webhookCartID,
			Outcome:       payment.StatusFailed,
		}}},
		Logger: zerolog.Nop(),
	}

	rec := deliverWebhook(t, h, "raw-body")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, payment.StatusFailed, store.status("txn-3"))
}

func TestWebhookMaterializeFailureSchedulesRetry(t *testing.T) {
	store := newMemorySessionStore()
	orders := &countingMaterializer{err: context.DeadlineExceeded}
	retry := &recordingScheduler{}
	h := payment.Webhook{
		Store: store,
		Providers: map[string]payment.Provider{"payu": stubProvider{notification: payment.Notification{
			Valid:         true,
			TransactionID: "txn-4",
			CartID:        webhookCartID,
			Outcome:       payment.StatusSucceeded,
		}}},
		Orders: orders,
		Retry:  retry,
		Logger: zerolog.Nop(),
	}

	rec := deliverWebhook(t, h, "raw-body")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, payment.StatusSucceeded, store.status("txn-4"))
	require.Equal(t, []string{webhookCartID}, retry.cartIDs)
	require.Empty(t, store.attached)
}

func TestWebhookUnknownProvider(t *testing.T) {
	h := payment.Webhook{
		Store:     newMemorySessionStore(),
		Providers: map[string]payment.Provider{},
		Logger:    zerolog.Nop(),
	}
	r := chi.NewRouter()
	r.Post("/webhooks/payment/{provider}", h.Handle)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment/stripe", strings.NewReader("x"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
