package catalog

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/common"
)

func testService(t *testing.T, cache *Cache) *Service {
	t.Helper()
	svc, err := NewService(ServiceConfig{
		Store:        NewStore(MockInventory()),
		Cache:        cache,
		DefaultLimit: 20,
		MaxLimit:     100,
	})
	require.NoError(t, err)
	return svc
}

func redisCache(t *testing.T) (*Cache, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, 30*time.Second), client
}

func TestParseListParams(t *testing.T) {
	svc := testService(t, nil)

	params, err := svc.ParseListParams(url.Values{"q": {" shirt "}, "sort": {"Price"}, "order": {"DESC"}}, 2, 10)
	require.NoError(t, err)
	require.Equal(t, ListParams{Query: "shirt", Sort: "price", Order: "desc", Page: 2, Limit: 10}, params)

	params, err = svc.ParseListParams(url.Values{}, 0, 0)
	require.NoError(t, err)
	require.Equal(t, "name", params.Sort)
	require.Equal(t, "asc", params.Order)
	require.Equal(t, 1, params.Page)
	require.Equal(t, 20, params.Limit)

	_, err = svc.ParseListParams(url.Values{"sort": {"color"}}, 1, 10)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "BAD_REQUEST", appErr.Code)

	_, err = svc.ParseListParams(url.Values{"order": {"sideways"}}, 1, 10)
	require.Error(t, err)
}

func TestListProductsFilterSortPaginate(t *testing.T) {
	svc := testService(t, nil)
	ctx := context.Background()

	res, err := svc.ListProducts(ctx, ListParams{Query: "shirt", Sort: "name", Order: "asc", Page: 1, Limit: 20})
	require.NoError(t, err)
	require.Equal(t, 2, res.Total)
	require.Equal(t, "Cotton T-Shirt", res.Items[0].Name)
	require.Equal(t, "Polo Shirt", res.Items[1].Name)

	res, err = svc.ListProducts(ctx, ListParams{Sort: "price", Order: "desc", Page: 1, Limit: 3})
	require.NoError(t, err)
	require.Equal(t, 8, res.Total)
	require.Len(t, res.Items, 3)
	require.Equal(t, "Leather Jacket", res.Items[0].Name)
	require.Equal(t, "199.99", res.Items[0].Price)

	// page beyond the data yields an empty page, not an error
	res, err = svc.ListProducts(ctx, ListParams{Sort: "name", Order: "asc", Page: 9, Limit: 20})
	require.NoError(t, err)
	require.Empty(t, res.Items)
	require.Equal(t, 8, res.Total)
}

func TestListProductsCacheInvalidation(t *testing.T) {
	cache, client := redisCache(t)
	svc := testService(t, cache)
	ctx := context.Background()

	params := ListParams{Sort: "name", Order: "asc", Page: 1, Limit: 20}
	res, err := svc.ListProducts(ctx, params)
	require.NoError(t, err)
	require.Equal(t, 8, res.Total)

	keys, err := client.Keys(ctx, "catalog:v0:*").Result()
	require.NoError(t, err)
	require.Len(t, keys, 1)

	_, err = svc.CreateProduct(ctx, ProductInput{Name: "Beanie", Price: "9.99", Stock: 30, LowStockThreshold: 5})
	require.NoError(t, err)

	// the version bump orphans the old key so the next list sees 9
	res, err = svc.ListProducts(ctx, params)
	require.NoError(t, err)
	require.Equal(t, 9, res.Total)
}

func TestStoreAccessorSeesServiceWrites(t *testing.T) {
	svc := testService(t, nil)
	ctx := context.Background()

	created, err := svc.CreateProduct(ctx, ProductInput{Name: "Scarf", SKU: "SC100", Price: "12.50", Stock: 3})
	require.NoError(t, err)

	// the register and the stock report resolve items through the
	// backing store, so service writes must be visible there
	item, err := svc.Store().FindByCode(ctx, "SC100")
	require.NoError(t, err)
	require.Equal(t, created.ID, item.ID)
	require.Equal(t, "Scarf", item.Name)
}

func TestProductCRUDValidation(t *testing.T) {
	svc := testService(t, nil)
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, ProductInput{Name: "", Price: "1.00"})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "VALIDATION", appErr.Code)

	_, err = svc.CreateProduct(ctx, ProductInput{Name: "Belt", Price: "not-money"})
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "VALIDATION", appErr.Code)

	_, err = svc.CreateProduct(ctx, ProductInput{Name: "Clone", SKU: "CT001", Price: "5.00"})
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "CONFLICT", appErr.Code)

	created, err := svc.CreateProduct(ctx, ProductInput{Name: "Belt", Price: "19.99", Stock: 4, LowStockThreshold: 5})
	require.NoError(t, err)
	require.True(t, created.LowStock)
	require.Equal(t, "19.99", created.Price)

	updated, err := svc.UpdateProduct(ctx, created.ID, ProductInput{Name: "Leather Belt", Price: "24.99", Stock: 10, LowStockThreshold: 5})
	require.NoError(t, err)
	require.Equal(t, "Leather Belt", updated.Name)
	require.False(t, updated.LowStock)

	require.NoError(t, svc.DeleteProduct(ctx, created.ID))
	_, err = svc.GetProduct(ctx, created.ID)
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "NOT_FOUND", appErr.Code)
}
