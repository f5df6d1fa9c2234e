package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrProductNotFound is returned when no product matches the lookup key.
var ErrProductNotFound = errors.New("catalog: product not found")

// Product is the storefront catalogue entry. Prices are minor units.
type Product struct {
	ID          pgtype.UUID
	Slug        string
	Name        string
	Description pgtype.Text
	Price       int64
	Stock       int32
	CreatedAt   pgtype.Timestamptz
	UpdatedAt   pgtype.Timestamptz
}

// ListParams captures filters for product listing.
type ListParams struct {
	Query  string
	Limit  int
	Offset int
}

// Store is the persistence contract for the catalogue.
type Store interface {
	ListProducts(ctx context.Context, p ListParams) ([]Product, int64, error)
	GetProductBySlug(ctx context.Context, slug string) (Product, error)
	GetProductByID(ctx context.Context, id pgtype.UUID) (Product, error)
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	Pool *pgxpool.Pool
}

const productColumns = `id, slug, name, description, price, stock, created_at, updated_at`

// ListProducts returns one page of products plus the unfiltered total for the
// same query.
func (s PGStore) ListProducts(ctx context.Context, p ListParams) ([]Product, int64, error) {
	if s.Pool == nil {
		return nil, 0, errors.New("catalog: store not configured")
	}
	pattern := "%" + p.Query + "%"
	var total int64
	err := s.Pool.QueryRow(ctx, `
		SELECT count(*) FROM products
		WHERE $1 = '' OR name ILIKE $2`, p.Query, pattern).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE $1 = '' OR name ILIKE $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`, p.Query, pattern, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		var pr Product
		if err := rows.Scan(&pr.ID, &pr.Slug, &pr.Name, &pr.Description, &pr.Price, &pr.Stock, &pr.CreatedAt, &pr.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, pr)
	}
	return out, total, rows.Err()
}

// GetProductBySlug returns one product by its URL slug.
func (s PGStore) GetProductBySlug(ctx context.Context, slug string) (Product, error) {
	if s.Pool == nil {
		return Product{}, errors.New("catalog: store not configured")
	}
	row := s.Pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE slug = $1`, slug)
	return scanProduct(row)
}

// GetProductByID returns one product by id.
func (s PGStore) GetProductByID(ctx context.Context, id pgtype.UUID) (Product, error) {
	if s.Pool == nil {
		return Product{}, errors.New("catalog: store not configured")
	}
	row := s.Pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	return scanProduct(row)
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}
