package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/backend-pasar/internal/common"
)

// ProductView is the public product payload.
type ProductView struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       int64  `json:"price"`
	InStock     bool   `json:"inStock"`
}

// ListResult contains list data and pagination metadata.
type ListResult struct {
	Items []ProductView `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// Service orchestrates catalogue queries, DTO assembly, and caching.
type Service struct {
	Store Store
	Cache *Cache
}

// List returns one catalogue page. Full pages for the default query are
// served from cache when possible.
func (s Service) List(ctx context.Context, query string, page, limit int) (ListResult, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	key := ""
	if query == "" {
		key = fmt.Sprintf("catalog:list:%d:%d", page, limit)
		var cached ListResult
		if ok, err := s.Cache.GetJSON(ctx, key, &cached); err == nil && ok {
			return cached, nil
		}
	}

	products, total, err := s.Store.ListProducts(ctx, ListParams{
		Query:  query,
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return ListResult{}, err
	}
	result := ListResult{Total: total, Page: page, Limit: limit, Items: make([]ProductView, 0, len(products))}
	for _, p := range products {
		result.Items = append(result.Items, toView(p))
	}
	if key != "" {
		// Cache failures never fail the read path.
		_ = s.Cache.SetJSON(ctx, key, result)
	}
	return result, nil
}

// GetBySlug returns one product, cache first.
func (s Service) GetBySlug(ctx context.Context, slug string) (ProductView, error) {
	key := "catalog:product:" + slug
	var cached ProductView
	if ok, err := s.Cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	p, err := s.Store.GetProductBySlug(ctx, slug)
	if err != nil {
		return ProductView{}, err
	}
	view := toView(p)
	_ = s.Cache.SetJSON(ctx, key, view)
	return view, nil
}

// NotFound reports whether err means the product does not exist.
func NotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound)
}

func toView(p Product) ProductView {
	v := ProductView{
		ID:      common.UUIDString(p.ID),
		Slug:    p.Slug,
		Name:    p.Name,
		Price:   p.Price,
		InStock: p.Stock > 0,
	}
	if p.Description.Valid {
		v.Description = p.Description.String
	}
	return v
}
