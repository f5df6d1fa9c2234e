package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgtype"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pasar/internal/catalog"
	"github.com/noah-isme/backend-pasar/internal/common"
)

type fakeProductStore struct {
	products []catalog.Product
	listed   int
}

func (f *fakeProductStore) ListProducts(_ context.Context, p catalog.ListParams) ([]catalog.Product, int64, error) {
	f.listed++
	return f.products, int64(len(f.products)), nil
}

func (f *fakeProductStore) GetProductBySlug(_ context.Context, slug string) (catalog.Product, error) {
	for _, p := range f.products {
		if p.Slug == slug {
			return p, nil
		}
	}
	return catalog.Product{}, catalog.ErrProductNotFound
}

func (f *fakeProductStore) GetProductByID(_ context.Context, id pgtype.UUID) (catalog.Product, error) {
	for _, p := range f.products {
		if common.UUIDEqual(p.ID, id) {
			return p, nil
		}
	}
	return catalog.Product{}, catalog.ErrProductNotFound
}

func testCache(t *testing.T) *catalog.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return catalog.NewCache(rdb, time.Minute)
}

func seedProduct(slug, name string, price int64, stock int32) catalog.Product {
	return catalog.Product{ID: common.NewUUID(), Slug: slug, Name: name, Price: price, Stock: stock}
}

func TestListServesSecondReadFromCache(t *testing.T) {
	store := &fakeProductStore{products: []catalog.Product{
		seedProduct("kopi-arabica-250g", "Kopi Arabica 250g", 8500000, 12),
	}}
	svc := catalog.Service{Store: store, Cache: testCache(t)}

	first, err := svc.List(context.Background(), "", 1, 20)
	require.NoError(t, err)
	require.Len(t, first.Items, 1)
	require.Equal(t, 1, store.listed)

	second, err := svc.List(context.Background(), "", 1, 20)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, store.listed, "cached page must not hit the store")
}

func TestListFilteredQueryBypassesCache(t *testing.T) {
	store := &fakeProductStore{products: []catalog.Product{
		seedProduct("teh-melati-100g", "Teh Melati 100g", 2500000, 3),
	}}
	svc := catalog.Service{Store: store, Cache: testCache(t)}

	_, err := svc.List(context.Background(), "teh", 1, 20)
	require.NoError(t, err)
	_, err = svc.List(context.Background(), "teh", 1, 20)
	require.NoError(t, err)
	require.Equal(t, 2, store.listed)
}

func TestListWorksWithoutCache(t *testing.T) {
	store := &fakeProductStore{products: []catalog.Product{
		seedProduct("gula-aren-500g", "Gula Aren 500g", 3200000, 0),
	}}
	svc := catalog.Service{Store: store}

	res, err := svc.List(context.Background(), "", 1, 20)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	require.False(t, res.Items[0].InStock)
}

func TestGetBySlug(t *testing.T) {
	p := seedProduct("kopi-arabica-250g", "Kopi Arabica 250g", 8500000, 12)
	store := &fakeProductStore{products: []catalog.Product{p}}
	svc := catalog.Service{Store: store, Cache: testCache(t)}

	view, err := svc.GetBySlug(context.Background(), "kopi-arabica-250g")
	require.NoError(t, err)
	require.Equal(t, common.UUIDString(p.ID), view.ID)
	require.True(t, view.InStock)

	_, err = svc.GetBySlug(context.Background(), "missing")
	require.Error(t, err)
	require.True(t, catalog.NotFound(err))
}
