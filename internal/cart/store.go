package cart

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrCartNotFound is returned when no cart matches the lookup key.
var ErrCartNotFound = errors.New("cart: not found")

// ErrCartClosed is returned when mutating a cart that has been ordered.
var ErrCartClosed = errors.New("cart: closed")

// ErrProductUnavailable is returned when an item references an unknown or
// out-of-stock product.
var ErrProductUnavailable = errors.New("cart: product unavailable")

// Cart is an open basket. user_id is null for guest carts.
type Cart struct {
	ID        pgtype.UUID
	UserID    pgtype.UUID
	Status    string
	CreatedAt pgtype.Timestamptz
	UpdatedAt pgtype.Timestamptz
	Items     []Item
}

// Item is one cart line with the product's current price attached.
type Item struct {
	ProductID pgtype.UUID
	Name      string
	Qty       int32
	UnitPrice int64
}

// Store is the persistence contract for carts.
type Store interface {
	Create(ctx context.Context, userID pgtype.UUID) (Cart, error)
	Get(ctx context.Context, id pgtype.UUID) (Cart, error)
	SetItem(ctx context.Context, cartID, productID pgtype.UUID, qty int32) error
	RemoveItem(ctx context.Context, cartID, productID pgtype.UUID) error
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	Pool *pgxpool.Pool
}

// Create opens a new cart. userID may be the zero value for guests.
func (s PGStore) Create(ctx context.Context, userID pgtype.UUID) (Cart, error) {
	if s.Pool == nil {
		return Cart{}, errors.New("cart: store not configured")
	}
	var c Cart
	err := s.Pool.QueryRow(ctx, `
		INSERT INTO carts (user_id, status)
		VALUES ($1, 'open')
		RETURNING id, user_id, status, created_at, updated_at`, userID).
		Scan(&c.ID, &c.UserID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// Get returns the cart with its lines and current prices.
func (s PGStore) Get(ctx context.Context, id pgtype.UUID) (Cart, error) {
	if s.Pool == nil {
		return Cart{}, errors.New("cart: store not configured")
	}
	var c Cart
	err := s.Pool.QueryRow(ctx, `
		SELECT id, user_id, status, created_at, updated_at FROM carts WHERE id = $1`, id).
		Scan(&c.ID, &c.UserID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Cart{}, ErrCartNotFound
	}
	if err != nil {
		return Cart{}, err
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT ci.product_id, p.name, ci.qty, p.price
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.created_at`, id)
	if err != nil {
		return Cart{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Qty, &it.UnitPrice); err != nil {
			return Cart{}, err
		}
		c.Items = append(c.Items, it)
	}
	return c, rows.Err()
}

// SetItem upserts one line. Quantity replaces, it does not accumulate.
func (s PGStore) SetItem(ctx context.Context, cartID, productID pgtype.UUID, qty int32) error {
	if s.Pool == nil {
		return errors.New("cart: store not configured")
	}
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM carts WHERE id = $1 FOR UPDATE`, cartID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrCartNotFound
	}
	if err != nil {
		return err
	}
	if status != "open" {
		return ErrCartClosed
	}

	var stock int32
	err = tx.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrProductUnavailable
	}
	if err != nil {
		return err
	}
	if stock < qty {
		return ErrProductUnavailable
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO cart_items (cart_id, product_id, qty)
		VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, product_id) DO UPDATE SET qty = EXCLUDED.qty`,
		cartID, productID, qty)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE carts SET updated_at = now() WHERE id = $1`, cartID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RemoveItem deletes one line.
func (s PGStore) RemoveItem(ctx context.Context, cartID, productID pgtype.UUID) error {
	if s.Pool == nil {
		return errors.New("cart: store not configured")
	}
	_, err := s.Pool.Exec(ctx, `
		DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`, cartID, productID)
	return err
}
