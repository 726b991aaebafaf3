package catalog_test

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/catalog"
)

type fakeRepo struct {
	mu       sync.Mutex
	products map[string]catalog.Product
	gets     int
	failDec  error
}

func newFakeRepo(products ...catalog.Product) *fakeRepo {
	r := &fakeRepo{products: map[string]catalog.Product{}}
	for _, p := range products {
		r.products[p.ID] = p
	}
	return r
}

func (r *fakeRepo) GetProduct(_ context.Context, id string) (catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	p, ok := r.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

func (r *fakeRepo) ListProducts(_ context.Context, f catalog.ListParams) ([]catalog.Product, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []catalog.Product
	for _, p := range r.products {
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		out = append(out, p)
	}
	return out, int64(len(out)), nil
}

func (r *fakeRepo) CreateProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = uuid.NewString()
	r.products[p.ID] = p
	return p, nil
}

func (r *fakeRepo) UpdateProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[p.ID]; !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	r.products[p.ID] = p
	return p, nil
}

func (r *fakeRepo) DeleteProduct(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[id]; !ok {
		return catalog.ErrNotFound
	}
	delete(r.products, id)
	return nil
}

func (r *fakeRepo) Decrement(_ context.Context, adjustments []catalog.Adjustment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failDec != nil {
		return r.failDec
	}
	for _, adj := range adjustments {
		p := r.products[adj.ProductID]
		if p.StockQuantity < adj.Quantity {
			return fmt.Errorf("%w: product %s", catalog.ErrInsufficientStock, adj.ProductID)
		}
		p.StockQuantity -= adj.Quantity
		p.InStock = p.StockQuantity > 0
		r.products[adj.ProductID] = p
	}
	return nil
}

func sampleProduct(stock int) catalog.Product {
	return catalog.Product{
		ID:            uuid.NewString(),
		Name:          "Handloom Saree",
		Price:         decimal.NewFromInt(2499),
		Category:      "sarees",
		Images:        []string{},
		StockQuantity: stock,
		InStock:       stock > 0,
		CreatedAt:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newService(t *testing.T, repo catalog.Repository) (*catalog.Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	svc, err := catalog.NewService(catalog.ServiceConfig{
		Repo:   repo,
		Cache:  catalog.NewCache(rdb, time.Minute),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	return svc, mr
}

func TestGetProductCachesSnapshot(t *testing.T) {
	p := sampleProduct(5)
	repo := newFakeRepo(p)
	svc, mr := newService(t, repo)
	ctx := context.Background()

	got, err := svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, p.Name, got.Name)
	require.True(t, mr.Exists("catalog:product:"+p.ID))

	got, err = svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, got.Price.Equal(p.Price))
	require.Equal(t, 1, repo.gets)
}

func TestGetProductUnknownOrMalformedID(t *testing.T) {
	svc, _ := newService(t, newFakeRepo())
	_, err := svc.GetProduct(context.Background(), "not-a-uuid")
	require.ErrorIs(t, err, catalog.ErrNotFound)
	_, err = svc.GetProduct(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestDecrementInvalidatesCache(t *testing.T) {
	p := sampleProduct(3)
	repo := newFakeRepo(p)
	svc, mr := newService(t, repo)
	ctx := context.Background()

	_, err := svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Decrement(ctx, []catalog.Adjustment{{ProductID: p.ID, Quantity: 2}}))
	require.False(t, mr.Exists("catalog:product:"+p.ID))

	got, err := svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.StockQuantity)

	err = svc.Decrement(ctx, []catalog.Adjustment{{ProductID: p.ID, Quantity: 2}})
	require.ErrorIs(t, err, catalog.ErrInsufficientStock)
}

func TestDecrementRejectsNonPositive(t *testing.T) {
	svc, _ := newService(t, newFakeRepo())
	err := svc.Decrement(context.Background(), []catalog.Adjustment{{ProductID: "x", Quantity: 0}})
	require.Error(t, err)
}

func TestCreateProductValidation(t *testing.T) {
	svc, _ := newService(t, newFakeRepo())
	name := "Kurta"
	_, err := svc.CreateProduct(context.Background(), catalog.ProductInput{Name: &name})
	require.ErrorIs(t, err, catalog.ErrInvalidProduct)

	category := "menswear"
	price := decimal.NewFromInt(799)
	stock := 4
	p, err := svc.CreateProduct(context.Background(), catalog.ProductInput{Name: &name, Category: &category, Price: &price, StockQuantity: &stock})
	require.NoError(t, err)
	require.True(t, p.InStock)
	require.NotEmpty(t, p.ID)
}

func TestUpdateProductMergesFields(t *testing.T) {
	p := sampleProduct(0)
	svc, _ := newService(t, newFakeRepo(p))
	stock := 7
	updated, err := svc.UpdateProduct(context.Background(), p.ID, catalog.ProductInput{StockQuantity: &stock})
	require.NoError(t, err)
	require.Equal(t, 7, updated.StockQuantity)
	require.True(t, updated.InStock)
	require.Equal(t, p.Name, updated.Name)
}

func TestParseListParams(t *testing.T) {
	svc, _ := newService(t, newFakeRepo())
	params, err := svc.ParseListParams(url.Values{"limit": {"500"}, "featured": {"true"}, "sort": {"price_asc"}})
	require.NoError(t, err)
	require.Equal(t, 100, params.Limit)
	require.NotNil(t, params.Featured)
	require.True(t, *params.Featured)
	require.Equal(t, "price_asc", params.Sort)

	_, err = svc.ParseListParams(url.Values{"page": {"0"}})
	require.Error(t, err)
	_, err = svc.ParseListParams(url.Values{"sort": {"random"}})
	require.Error(t, err)
}

func TestFeaturedLandingIsCachedUntilCatalogChanges(t *testing.T) {
	p := sampleProduct(2)
	svc, mr := newService(t, newFakeRepo(p))
	ctx := context.Background()
	featured := true

	res, err := svc.ListProducts(ctx, catalog.ListParams{Page: 1, Limit: 20, Featured: &featured})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	require.True(t, mr.Exists("catalog:products:list:featured"))

	_, err = svc.ListProducts(ctx, catalog.ListParams{Page: 2, Limit: 20, Featured: &featured})
	require.NoError(t, err)

	name, category, price, stock := "Kurta", "menswear", decimal.NewFromInt(799), 1
	_, err = svc.CreateProduct(ctx, catalog.ProductInput{Name: &name, Category: &category, Price: &price, StockQuantity: &stock})
	require.NoError(t, err)
	require.False(t, mr.Exists("catalog:products:list:featured"))
}
