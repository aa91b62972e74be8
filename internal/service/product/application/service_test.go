// internal/service/product/application/service_test.go
package application

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/trace/noop"

	"shopmesh/internal/service/product/domain"
)

// fakeProductRepo 是内存仓储假实现，记录调用供断言使用。
type fakeProductRepo struct {
	products map[string]*domain.Product

	reduceCalls   int
	increaseCalls int
}

func newFakeProductRepo(products ...*domain.Product) *fakeProductRepo {
	repo := &fakeProductRepo{products: make(map[string]*domain.Product)}
	for _, p := range products {
		repo.products[p.ID] = p
	}
	return repo
}

func (r *fakeProductRepo) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	product, ok := r.products[id]
	if !ok {
		return nil, &domain.NotFoundError{ID: id}
	}
	copied := *product
	return &copied, nil
}

func (r *fakeProductRepo) FindAll(ctx context.Context, filter domain.ListFilter, page domain.Page) ([]*domain.Product, int64, error) {
	var all []*domain.Product
	for _, p := range r.products {
		all = append(all, p)
	}
	return all, int64(len(all)), nil
}

func (r *fakeProductRepo) Create(ctx context.Context, product *domain.Product) error {
	r.products[product.ID] = product
	return nil
}

func (r *fakeProductRepo) Update(ctx context.Context, product *domain.Product) error {
	if _, ok := r.products[product.ID]; !ok {
		return &domain.NotFoundError{ID: product.ID}
	}
	r.products[product.ID] = product
	return nil
}

func (r *fakeProductRepo) Delete(ctx context.Context, id string) (bool, error) {
	if _, ok := r.products[id]; !ok {
		return false, nil
	}
	delete(r.products, id)
	return true, nil
}

func (r *fakeProductRepo) ReduceStock(ctx context.Context, id string, quantity int) (*domain.Product, error) {
	r.reduceCalls++
	product, ok := r.products[id]
	if !ok {
		return nil, &domain.NotFoundError{ID: id}
	}
	if product.Stock < quantity {
		return nil, &domain.InsufficientStockError{
			Requested: quantity, Available: product.Stock, ProductName: product.Name,
		}
	}
	product.Stock -= quantity
	copied := *product
	return &copied, nil
}

func (r *fakeProductRepo) IncreaseStock(ctx context.Context, id string, quantity int) (*domain.Product, error) {
	r.increaseCalls++
	product, ok := r.products[id]
	if !ok {
		return nil, &domain.NotFoundError{ID: id}
	}
	product.Stock += quantity
	copied := *product
	return &copied, nil
}

func (r *fakeProductRepo) Stats(ctx context.Context) (*domain.StoreStats, error) {
	return &domain.StoreStats{TotalProducts: int64(len(r.products))}, nil
}

// fakeCache 记录缓存交互。
type fakeCache struct {
	entries     map[string]*domain.Product
	invalidated []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*domain.Product)}
}

func (c *fakeCache) Get(ctx context.Context, id string) (*domain.Product, bool) {
	product, ok := c.entries[id]
	return product, ok
}

func (c *fakeCache) Set(ctx context.Context, product *domain.Product) {
	c.entries[product.ID] = product
}

func (c *fakeCache) Invalidate(ctx context.Context, id string) {
	delete(c.entries, id)
	c.invalidated = append(c.invalidated, id)
}

func newTestService(repo *fakeProductRepo, cache ProductCache) *ProductApplicationService {
	return NewProductApplicationService(repo, cache, noop.NewTracerProvider().Tracer("test"))
}

func seedProduct(id string, stock int) *domain.Product {
	return &domain.Product{ID: id, Name: "Widget", Description: "d", Price: 2.5, Stock: stock, CategoryID: "cat-1"}
}

func TestReduceStockRejectsInvalidQuantityBeforeRepo(t *testing.T) {
	repo := newFakeProductRepo(seedProduct("p-1", 5))
	service := newTestService(repo, nil)

	_, err := service.ReduceStock(context.Background(), "p-1", 0)
	var invalid *domain.InvalidQuantityError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidQuantityError, got %v", err)
	}
	if repo.reduceCalls != 0 {
		t.Errorf("repo must not be called for invalid quantity, got %d calls", repo.reduceCalls)
	}
}

func TestReduceStockInvalidatesCache(t *testing.T) {
	repo := newFakeProductRepo(seedProduct("p-1", 5))
	cache := newFakeCache()
	service := newTestService(repo, cache)

	product, err := service.ReduceStock(context.Background(), "p-1", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if product.Stock != 3 {
		t.Errorf("stock = %d, want 3", product.Stock)
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != "p-1" {
		t.Errorf("cache invalidations = %v, want [p-1]", cache.invalidated)
	}
}

func TestReduceStockInsufficient(t *testing.T) {
	repo := newFakeProductRepo(seedProduct("p-1", 1))
	service := newTestService(repo, nil)

	_, err := service.ReduceStock(context.Background(), "p-1", 3)
	var insufficient *domain.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if insufficient.Available != 1 {
		t.Errorf("Available = %d, want 1", insufficient.Available)
	}
}

func TestGetProductServedFromCache(t *testing.T) {
	repo := newFakeProductRepo()
	cache := newFakeCache()
	cached := seedProduct("p-1", 7)
	cache.Set(context.Background(), cached)
	service := newTestService(repo, cache)

	// 仓储里没有该商品，命中缓存才可能成功
	product, err := service.GetProduct(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if product.Stock != 7 {
		t.Errorf("stock = %d, want 7", product.Stock)
	}
}

func TestGetProductPopulatesCacheOnMiss(t *testing.T) {
	repo := newFakeProductRepo(seedProduct("p-1", 5))
	cache := newFakeCache()
	service := newTestService(repo, cache)

	if _, err := service.GetProduct(context.Background(), "p-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := cache.entries["p-1"]; !ok {
		t.Error("expected cache to be populated after miss")
	}
}

func TestIncreaseStockRejectsInvalidQuantity(t *testing.T) {
	repo := newFakeProductRepo(seedProduct("p-1", 5))
	service := newTestService(repo, nil)

	_, err := service.IncreaseStock(context.Background(), "p-1", -1)
	var invalid *domain.InvalidQuantityError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidQuantityError, got %v", err)
	}
	if repo.increaseCalls != 0 {
		t.Errorf("repo must not be called, got %d calls", repo.increaseCalls)
	}
}

func TestUpdateProductPartialFields(t *testing.T) {
	repo := newFakeProductRepo(seedProduct("p-1", 5))
	service := newTestService(repo, nil)

	newPrice := 9.99
	product, err := service.UpdateProduct(context.Background(), "p-1", nil, nil, &newPrice, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if product.Price != 9.99 {
		t.Errorf("price = %v, want 9.99", product.Price)
	}
	if product.Name != "Widget" {
		t.Errorf("name changed unexpectedly: %q", product.Name)
	}
}
