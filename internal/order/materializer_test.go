package order_test

import (
	"context"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pasar/internal/common"
	"github.com/noah-isme/backend-pasar/internal/order"
)

type stubOrderStore struct {
	mu      sync.Mutex
	byCart  map[string]order.Order
	creates int

	// failWith, when set, is returned from the next CreateFromCart call.
	failWith error
	// winner is installed into byCart alongside failWith, simulating the row
	// a concurrent creator committed first.
	winner *order.Order
}

func (s *stubOrderStore) CreateFromCart(_ context.Context, cartID pgtype.UUID) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if s.failWith != nil {
		err := s.failWith
		s.failWith = nil
		if s.winner != nil {
			s.byCart[common.UUIDString(cartID)] = *s.winner
		}
		return order.Order{}, err
	}
	o := order.Order{ID: common.NewUUID(), CartID: cartID, Status: "paid", Total: 123456, Currency: "IDR"}
	s.byCart[common.UUIDString(cartID)] = o
	return o, nil
}

func (s *stubOrderStore) GetByCart(_ context.Context, cartID pgtype.UUID) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byCart[common.UUIDString(cartID)]
	if !ok {
		return order.Order{}, order.ErrOrderNotFound
	}
	return o, nil
}

func (s *stubOrderStore) GetByID(_ context.Context, id pgtype.UUID) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.byCart {
		if common.UUIDEqual(o.ID, id) {
			return o, nil
		}
	}
	return order.Order{}, order.ErrOrderNotFound
}

func (s *stubOrderStore) ListByUser(context.Context, pgtype.UUID, int, int) ([]order.Order, error) {
	return nil, nil
}

func newStubOrderStore() *stubOrderStore {
	return &stubOrderStore{byCart: map[string]order.Order{}}
}

func TestEnsureOrderCreatesOnce(t *testing.T) {
	store := newStubOrderStore()
	m := &order.Materializer{Store: store, Logger: zerolog.Nop()}
	cartID := common.NewUUID()

	first, err := m.EnsureOrder(context.Background(), cartID, common.NewUUID())
	require.NoError(t, err)
	require.True(t, first.Valid)

	second, err := m.EnsureOrder(context.Background(), cartID, common.NewUUID())
	require.NoError(t, err)
	require.True(t, common.UUIDEqual(first, second))
	require.Equal(t, 1, store.creates)
}

func TestEnsureOrderLosesRaceToWinner(t *testing.T) {
	store := newStubOrderStore()
	winner := order.Order{ID: common.NewUUID(), Status: "paid"}
	store.failWith = &pgconn.PgError{Code: "23505"}
	store.winner = &winner

	m := &order.Materializer{Store: store, Logger: zerolog.Nop()}
	got, err := m.EnsureOrder(context.Background(), common.NewUUID(), common.NewUUID())
	require.NoError(t, err)
	require.True(t, common.UUIDEqual(got, winner.ID))
	require.Equal(t, 1, store.creates)
}

func TestEnsureOrderWrapsStoreErrorsRetryable(t *testing.T) {
	store := newStubOrderStore()
	store.failWith = context.DeadlineExceeded

	m := &order.Materializer{Store: store, Logger: zerolog.Nop()}
	_, err := m.EnsureOrder(context.Background(), common.NewUUID(), common.NewUUID())
	require.Error(t, err)
	require.ErrorIs(t, err, common.ErrRetryable)
}
