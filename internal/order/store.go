package order

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-pasar/internal/pricing"
)

// ErrOrderNotFound is returned when no order matches the lookup key.
var ErrOrderNotFound = errors.New("order: not found")

// ErrEmptyCart is returned when materialisation finds a cart with no items.
var ErrEmptyCart = errors.New("order: cart has no items")

// Order is the durable record produced once a payment for a cart succeeds.
// The cart_id unique constraint makes creation exactly-once per cart.
type Order struct {
	ID        pgtype.UUID
	CartID    pgtype.UUID
	UserID    pgtype.UUID
	Status    string
	Subtotal  int64
	Tax       int64
	Total     int64
	Currency  string
	CreatedAt pgtype.Timestamptz
	UpdatedAt pgtype.Timestamptz
	Items     []Item
}

// Item is one order line, priced at materialisation time.
type Item struct {
	ID        pgtype.UUID
	OrderID   pgtype.UUID
	ProductID pgtype.UUID
	Name      string
	Qty       int32
	UnitPrice int64
	LineTotal int64
}

// Store is the persistence contract for orders.
type Store interface {
	CreateFromCart(ctx context.Context, cartID pgtype.UUID) (Order, error)
	GetByCart(ctx context.Context, cartID pgtype.UUID) (Order, error)
	GetByID(ctx context.Context, id pgtype.UUID) (Order, error)
	ListByUser(ctx context.Context, userID pgtype.UUID, limit, offset int) ([]Order, error)
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	Pool     *pgxpool.Pool
	TaxBps   int
	Currency string
}

const orderColumns = `id, cart_id, user_id, status, subtotal, tax, total, currency, created_at, updated_at`

// CreateFromCart snapshots the cart into an order inside one transaction:
// line items copy current product names and prices, totals come from the
// pricing engine, and the cart is closed. A second call for the same cart
// fails on the cart_id unique constraint.
func (s PGStore) CreateFromCart(ctx context.Context, cartID pgtype.UUID) (Order, error) {
	if s.Pool == nil {
		return Order{}, errors.New("order: store not configured")
	}
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return Order{}, err
	}
	defer tx.Rollback(ctx)

	var userID pgtype.UUID
	err = tx.QueryRow(ctx, `SELECT user_id FROM carts WHERE id = $1`, cartID).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, err
	}

	rows, err := tx.Query(ctx, `
		SELECT ci.product_id, p.name, ci.qty, p.price
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.created_at`, cartID)
	if err != nil {
		return Order{}, err
	}
	var items []Item
	var priced []pricing.Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Qty, &it.UnitPrice); err != nil {
			rows.Close()
			return Order{}, err
		}
		it.LineTotal = int64(it.Qty) * it.UnitPrice
		items = append(items, it)
		priced = append(priced, pricing.Item{Qty: int(it.Qty), UnitPrice: it.UnitPrice})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Order{}, err
	}
	if len(items) == 0 {
		return Order{}, ErrEmptyCart
	}

	sum := pricing.Compute(priced, s.TaxBps)
	currency := s.Currency
	if currency == "" {
		currency = "INR"
	}

	var o Order
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (cart_id, user_id, status, subtotal, tax, total, currency)
		VALUES ($1, $2, 'paid', $3, $4, $5, $6)
		RETURNING `+orderColumns,
		cartID, userID, sum.Subtotal, sum.Tax, sum.Total, currency,
	).Scan(&o.ID, &o.CartID, &o.UserID, &o.Status, &o.Subtotal, &o.Tax, &o.Total, &o.Currency, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}

	for i := range items {
		items[i].OrderID = o.ID
		err = tx.QueryRow(ctx, `
			INSERT INTO order_items (order_id, product_id, name, qty, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			o.ID, items[i].ProductID, items[i].Name, items[i].Qty, items[i].UnitPrice, items[i].LineTotal,
		).Scan(&items[i].ID)
		if err != nil {
			return Order{}, err
		}
	}
	o.Items = items

	if _, err := tx.Exec(ctx, `UPDATE carts SET status = 'ordered', updated_at = now() WHERE id = $1`, cartID); err != nil {
		return Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return o, nil
}

// GetByCart returns the order materialised for a cart, if any.
func (s PGStore) GetByCart(ctx context.Context, cartID pgtype.UUID) (Order, error) {
	if s.Pool == nil {
		return Order{}, errors.New("order: store not configured")
	}
	row := s.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE cart_id = $1`, cartID)
	return s.scanWithItems(ctx, row)
}

// GetByID returns one order with its lines.
func (s PGStore) GetByID(ctx context.Context, id pgtype.UUID) (Order, error) {
	if s.Pool == nil {
		return Order{}, errors.New("order: store not configured")
	}
	row := s.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return s.scanWithItems(ctx, row)
}

// ListByUser returns the caller's orders, newest first, without lines.
func (s PGStore) ListByUser(ctx context.Context, userID pgtype.UUID, limit, offset int) ([]Order, error) {
	if s.Pool == nil {
		return nil, errors.New("order: store not configured")
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.CartID, &o.UserID, &o.Status, &o.Subtotal, &o.Tax, &o.Total, &o.Currency, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s PGStore) scanWithItems(ctx context.Context, row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.CartID, &o.UserID, &o.Status, &o.Subtotal, &o.Tax, &o.Total, &o.Currency, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, err
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT id, order_id, product_id, name, qty, unit_price, line_total
		FROM order_items
		WHERE order_id = $1`, o.ID)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Name, &it.Qty, &it.UnitPrice, &it.LineTotal); err != nil {
			return Order{}, err
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}
