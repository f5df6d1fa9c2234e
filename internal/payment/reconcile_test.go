package payment_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pasar/internal/common"
	"github.com/noah-isme/backend-pasar/internal/events"
	"github.com/noah-isme/backend-pasar/internal/payment"
)

// scriptedStore returns a pre-planned sequence of sessions from GetByCart and
// records transitions, to drive the waiter through its states.
type scriptedStore struct {
	memorySessionStore
	mu2         sync.Mutex
	script      []scriptStep
	pos         int
	transitions []string
}

type scriptStep struct {
	sess payment.Session
	err  error
}

func (s *scriptedStore) GetByCart(context.Context, pgtype.UUID) (payment.Session, error) {
	s.mu2.Lock()
	defer s.mu2.Unlock()
	if len(s.script) == 0 {
		return payment.Session{}, payment.ErrSessionNotFound
	}
	step := s.script[s.pos]
	if s.pos < len(s.script)-1 {
		s.pos++
	}
	return step.sess, step.err
}

func (s *scriptedStore) AttachOrder(_ context.Context, _ string, orderID pgtype.UUID) error {
	s.mu2.Lock()
	defer s.mu2.Unlock()
	s.attached = append(s.attached, orderID)
	return nil
}

func (s *scriptedStore) CompareAndTransition(_ context.Context, transactionID string, from, to payment.Status) (bool, error) {
	s.mu2.Lock()
	defer s.mu2.Unlock()
	s.transitions = append(s.transitions, transactionID+":"+string(from)+"->"+string(to))
	return true, nil
}

func newWaiter(store payment.SessionStore, orders payment.Materializer) *payment.Waiter {
	return &payment.Waiter{
		Store:        store,
		Orders:       orders,
		PollInterval: 2 * time.Millisecond,
		Ceiling:      250 * time.Millisecond,
		Logger:       zerolog.Nop(),
	}
}

func TestAwaitConfirmedAfterWebhook(t *testing.T) {
	orderID := common.NewUUID()
	store := &scriptedStore{script: []scriptStep{
		{err: payment.ErrSessionNotFound},
		{sess: payment.Session{TransactionID: "txn-1", Status: payment.StatusPending}},
		{sess: payment.Session{TransactionID: "txn-1", Status: payment.StatusSucceeded, OrderID: orderID}},
	}}

	outcome, sess, err := newWaiter(store, nil).Await(context.Background(), common.NewUUID())
	require.NoError(t, err)
	require.Equal(t, payment.OutcomeConfirmed, outcome)
	require.True(t, common.UUIDEqual(sess.OrderID, orderID))
}

func TestAwaitFailed(t *testing.T) {
	store := &scriptedStore{script: []scriptStep{
		{sess: payment.Session{TransactionID: "txn-2", Status: payment.StatusFailed}},
	}}

	outcome, _, err := newWaiter(store, nil).Await(context.Background(), common.NewUUID())
	require.NoError(t, err)
	require.Equal(t, payment.OutcomeFailed, outcome)
}

func TestAwaitCeilingMarksPendingExpired(t *testing.T) {
	store := &scriptedStore{script: []scriptStep{
		{sess: payment.Session{ID: common.NewUUID(), TransactionID: "txn-3", Status: payment.StatusPending}},
	}}
	eventStore := &recordingEventStore{}
	w := newWaiter(store, nil)
	w.Ceiling = 10 * time.Millisecond
	w.Events = &events.Bus{Store: eventStore}

	outcome, _, err := w.Await(context.Background(), common.NewUUID())
	require.NoError(t, err)
	require.Equal(t, payment.OutcomeTimedOut, outcome)
	require.Contains(t, store.transitions, "txn-3:pending->expired")
	require.Contains(t, eventStore.seen(), events.TopicPaymentExpired)
}

func TestAwaitFallbackMaterializes(t *testing.T) {
	sessID := common.NewUUID()
	store := &scriptedStore{script: []scriptStep{
		{sess: payment.Session{ID: sessID, TransactionID: "txn-4", Status: payment.StatusSucceeded}},
	}}
	orders := &countingMaterializer{orderID: common.NewUUID()}

	outcome, sess, err := newWaiter(store, orders).Await(context.Background(), common.NewUUID())
	require.NoError(t, err)
	require.Equal(t, payment.OutcomeConfirmed, outcome)
	require.Equal(t, 1, orders.count())
	require.Len(t, store.attached, 1)
	require.True(t, common.UUIDEqual(sess.OrderID, orders.orderID))
}

func TestReconcileWaitFallbackRedirectCarriesOrder(t *testing.T) {
	store := &scriptedStore{script: []scriptStep{
		{sess: payment.Session{ID: common.NewUUID(), TransactionID: "txn-8", Status: payment.StatusSucceeded}},
	}}
	orders := &countingMaterializer{orderID: common.NewUUID()}
	h := payment.ReconcileHandler{
		Waiter:     newWaiter(store, orders),
		Store:      store,
		SuccessURL: "https://shop.example.com/checkout/success",
		ErrorURL:   "https://shop.example.com/checkout/error",
		PendingURL: "https://shop.example.com/account/orders",
	}

	rec := reconcileRequest(t, h, "/payments/reconcile/"+webhookCartID)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t,
		"https://shop.example.com/checkout/success?order="+common.UUIDString(orders.orderID),
		rec.Header().Get("Location"))
}

func TestAwaitHonoursContextCancel(t *testing.T) {
	store := &scriptedStore{script: []scriptStep{
		{sess: payment.Session{TransactionID: "txn-5", Status: payment.StatusPending}},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := newWaiter(store, nil).Await(ctx, common.NewUUID())
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, store.transitions)
}

func reconcileRequest(t *testing.T, h payment.ReconcileHandler, target string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/payments/reconcile/{cartId}", h.Wait)
	r.Get("/payments/reconcile/{cartId}/status", h.Status)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestReconcileWaitRedirects(t *testing.T) {
	orderID := common.NewUUID()
	store := &scriptedStore{script: []scriptStep{
		{sess: payment.Session{TransactionID: "txn-6", Status: payment.StatusSucceeded, OrderID: orderID}},
	}}
	h := payment.ReconcileHandler{
		Waiter:     newWaiter(store, nil),
		Store:      store,
		SuccessURL: "https://shop.example.com/checkout/success",
		ErrorURL:   "https://shop.example.com/checkout/error",
		PendingURL: "https://shop.example.com/account/orders",
	}

	rec := reconcileRequest(t, h, "/payments/reconcile/"+webhookCartID)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t,
		"https://shop.example.com/checkout/success?order="+common.UUIDString(orderID),
		rec.Header().Get("Location"))
}

func TestReconcileWaitTimedOutGoesToPending(t *testing.T) {
	store := &scriptedStore{}
	w := newWaiter(store, nil)
	w.Ceiling = 5 * time.Millisecond
	h := payment.ReconcileHandler{
		Waiter:     w,
		Store:      store,
		SuccessURL: "https://shop.example.com/checkout/success",
		ErrorURL:   "https://shop.example.com/checkout/error",
		PendingURL: "https://shop.example.com/account/orders",
	}

	rec := reconcileRequest(t, h, "/payments/reconcile/"+webhookCartID)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t,
		"https://shop.example.com/account/orders?reason=status_unknown",
		rec.Header().Get("Location"))
}

func TestReconcileStatus(t *testing.T) {
	orderID := common.NewUUID()
	store := &scriptedStore{script: []scriptStep{
		{sess: payment.Session{TransactionID: "txn-7", Status: payment.StatusSucceeded, OrderID: orderID}},
	}}
	h := payment.ReconcileHandler{Store: store}

	rec := reconcileRequest(t, h, "/payments/reconcile/"+webhookCartID+"/status")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t,
		`{"status":"succeeded","orderId":"`+common.UUIDString(orderID)+`"}`,
		rec.Body.String())
}

func TestReconcileStatusUnknownCartReadsPending(t *testing.T) {
	h := payment.ReconcileHandler{Store: &scriptedStore{}}

	rec := reconcileRequest(t, h, "/payments/reconcile/"+webhookCartID+"/status")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"pending"}`, rec.Body.String())
}
