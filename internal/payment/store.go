package payment

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrSessionNotFound is returned when no session exists for the given key.
var ErrSessionNotFound = errors.New("payment: session not found")

// Session is the durable record of one payment attempt. Sessions are created
// on first verified webhook observation and never deleted.
type Session struct {
	ID              pgtype.UUID
	TransactionID   string
	CartID          pgtype.UUID
	Status          Status
	RawNotification []byte
	VerifiedAt      pgtype.Timestamptz
	OrderID         pgtype.UUID
	CreatedAt       pgtype.Timestamptz
	UpdatedAt       pgtype.Timestamptz
}

// SessionStore is the persistence contract for payment sessions. The
// compare-and-transition operation is the sole status mutation primitive.
type SessionStore interface {
	GetOrCreate(ctx context.Context, transactionID string, cartID pgtype.UUID) (Session, error)
	CompareAndTransition(ctx context.Context, transactionID string, from, to Status) (bool, error)
	RecordNotification(ctx context.Context, transactionID string, raw []byte) error
	AttachOrder(ctx context.Context, transactionID string, orderID pgtype.UUID) error
	GetByTransaction(ctx context.Context, transactionID string) (Session, error)
	GetByCart(ctx context.Context, cartID pgtype.UUID) (Session, error)
}

// PGSessionStore implements SessionStore on PostgreSQL. Atomicity of the
// conditional update rests on the database, not on application locking.
type PGSessionStore struct {
	Pool *pgxpool.Pool
}

const sessionColumns = `id, transaction_id, cart_id, status, raw_notification, verified_at, order_id, created_at, updated_at`

// GetOrCreate inserts a pending session for the transaction id if none exists
// and returns the current row either way.
func (s PGSessionStore) GetOrCreate(ctx context.Context, transactionID string, cartID pgtype.UUID) (Session, error) {
	if s.Pool == nil {
		return Session{}, errors.New("payment: store not configured")
	}
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO payment_sessions (transaction_id, cart_id, status)
		VALUES ($1, $2, 'pending')
		ON CONFLICT (transaction_id) DO NOTHING`, transactionID, cartID)
	if err != nil {
		return Session{}, err
	}
	return s.GetByTransaction(ctx, transactionID)
}

// CompareAndTransition applies from→to if and only if the stored status still
// equals from. It reports whether the transition was applied.
func (s PGSessionStore) CompareAndTransition(ctx context.Context, transactionID string, from, to Status) (bool, error) {
	if s.Pool == nil {
		return false, errors.New("payment: store not configured")
	}
	tag, err := s.Pool.Exec(ctx, `
		UPDATE payment_sessions
		SET status = $3, updated_at = now()
		WHERE transaction_id = $1 AND status = $2`, transactionID, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RecordNotification stores the last verified payload and stamps the first
// verification time.
func (s PGSessionStore) RecordNotification(ctx context.Context, transactionID string, raw []byte) error {
	if s.Pool == nil {
		return errors.New("payment: store not configured")
	}
	_, err := s.Pool.Exec(ctx, `
		UPDATE payment_sessions
		SET raw_notification = $2,
		    verified_at = COALESCE(verified_at, now()),
		    updated_at = now()
		WHERE transaction_id = $1`, transactionID, raw)
	return err
}

// AttachOrder links the materialised order to the session. The predicate keeps
// the order_id-iff-succeeded invariant inside the database.
func (s PGSessionStore) AttachOrder(ctx context.Context, transactionID string, orderID pgtype.UUID) error {
	if s.Pool == nil {
		return errors.New("payment: store not configured")
	}
	_, err := s.Pool.Exec(ctx, `
		UPDATE payment_sessions
		SET order_id = $2, updated_at = now()
		WHERE transaction_id = $1 AND status = 'succeeded' AND order_id IS NULL`, transactionID, orderID)
	return err
}

// GetByTransaction returns the session for a gateway transaction id.
func (s PGSessionStore) GetByTransaction(ctx context.Context, transactionID string) (Session, error) {
	if s.Pool == nil {
		return Session{}, errors.New("payment: store not configured")
	}
	row := s.Pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM payment_sessions WHERE transaction_id = $1`, transactionID)
	return scanSession(row)
}

// GetByCart returns the most recent session for a cart.
func (s PGSessionStore) GetByCart(ctx context.Context, cartID pgtype.UUID) (Session, error) {
	if s.Pool == nil {
		return Session{}, errors.New("payment: store not configured")
	}
	row := s.Pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM payment_sessions
		WHERE cart_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, cartID)
	return scanSession(row)
}

// AttachOrderBySession links an order to the session row itself, for callers
// that hold the session id rather than the gateway transaction id.
func (s PGSessionStore) AttachOrderBySession(ctx context.Context, sessionID, orderID pgtype.UUID) error {
	if s.Pool == nil {
		return errors.New("payment: store not configured")
	}
	_, err := s.Pool.Exec(ctx, `
		UPDATE payment_sessions
		SET order_id = $2, updated_at = now()
		WHERE id = $1 AND status = 'succeeded' AND order_id IS NULL`, sessionID, orderID)
	return err
}

func scanSession(row pgx.Row) (Session, error) {
	var sess Session
	err := row.Scan(
		&sess.ID,
		&sess.TransactionID,
		&sess.CartID,
		&sess.Status,
		&sess.RawNotification,
		&sess.VerifiedAt,
		&sess.OrderID,
		&sess.CreatedAt,
		&sess.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	return sess, nil
}
