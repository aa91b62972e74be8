// internal/service/product/application/service.go
package application

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"shopmesh/internal/pkg/logger"
	"shopmesh/internal/service/product/domain"
)

// ProductCache 是读路径缓存的出站端口。
type ProductCache interface {
	Get(ctx context.Context, id string) (*domain.Product, bool)
	Set(ctx context.Context, product *domain.Product)
	Invalidate(ctx context.Context, id string)
}

// ProductApplicationService 编排商品和库存台账的所有用例。
type ProductApplicationService struct {
	repo   domain.ProductRepository
	cache  ProductCache // 可为 nil
	tracer trace.Tracer
}

func NewProductApplicationService(repo domain.ProductRepository, cache ProductCache, tracer trace.Tracer) *ProductApplicationService {
	return &ProductApplicationService{repo: repo, cache: cache, tracer: tracer}
}

// GetProduct 查询单个商品，读路径走旁路缓存。
func (s *ProductApplicationService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "app.GetProduct")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", id))

	if s.cache != nil {
		if product, ok := s.cache.Get(ctx, id); ok {
			span.AddEvent("Product served from cache")
			return product, nil
		}
	}

	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, product)
	}
	return product, nil
}

func (s *ProductApplicationService) ListProducts(ctx context.Context, filter domain.ListFilter, page domain.Page) ([]*domain.Product, int64, error) {
	ctx, span := s.tracer.Start(ctx, "app.ListProducts")
	defer span.End()

	if page.Page <= 0 {
		page.Page = 1
	}
	if page.Limit <= 0 {
		page.Limit = 10
	}
	return s.repo.FindAll(ctx, filter, page)
}

func (s *ProductApplicationService) CreateProduct(ctx context.Context, name, description string, price float64, stock int, categoryID string) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "app.CreateProduct")
	defer span.End()

	product, err := domain.NewProduct(name, description, price, stock, categoryID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.repo.Create(ctx, product); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create product")
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("product_id", product.ID).Msg("product created")
	return product, nil
}

// UpdateProduct 局部更新商品字段，nil 表示该字段保持不变。
func (s *ProductApplicationService) UpdateProduct(ctx context.Context, id string, name, description *string, price *float64, categoryID *string) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "app.UpdateProduct")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", id))

	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if name != nil {
		product.Name = *name
	}
	if description != nil {
		product.Description = *description
	}
	if price != nil {
		product.Price = *price
	}
	if categoryID != nil {
		product.CategoryID = *categoryID
	}
	if err := s.repo.Update(ctx, product); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}
	return product, nil
}

func (s *ProductApplicationService) DeleteProduct(ctx context.Context, id string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "app.DeleteProduct")
	defer span.End()

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if deleted && s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}
	return deleted, nil
}

// ReduceStock 是库存台账的扣减入口。
// 数量校验发生在任何 I/O 之前；真正的原子性由仓储层的条件更新保证。
func (s *ProductApplicationService) ReduceStock(ctx context.Context, id string, quantity int) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "app.ReduceStock")
	defer span.End()
	span.SetAttributes(
		attribute.String("product.id", id),
		attribute.Int("quantity", quantity),
	)

	if quantity <= 0 {
		err := &domain.InvalidQuantityError{Quantity: quantity}
		span.RecordError(err)
		return nil, err
	}

	product, err := s.repo.ReduceStock(ctx, id, quantity)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Stock reduction rejected")
		return nil, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}
	logger.Ctx(ctx).Info().
		Str("product_id", id).
		Int("quantity", quantity).
		Int("remaining", product.Stock).
		Msg("stock reduced")
	return product, nil
}

// IncreaseStock 回加库存，供对端的补偿流程调用。
func (s *ProductApplicationService) IncreaseStock(ctx context.Context, id string, quantity int) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "app.IncreaseStock")
	defer span.End()
	span.SetAttributes(
		attribute.String("product.id", id),
		attribute.Int("quantity", quantity),
	)

	if quantity <= 0 {
		err := &domain.InvalidQuantityError{Quantity: quantity}
		span.RecordError(err)
		return nil, err
	}

	product, err := s.repo.IncreaseStock(ctx, id, quantity)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}
	logger.Ctx(ctx).Info().
		Str("product_id", id).
		Int("quantity", quantity).
		Int("stock", product.Stock).
		Msg("stock increased")
	return product, nil
}

func (s *ProductApplicationService) StoreStats(ctx context.Context) (*domain.StoreStats, error) {
	ctx, span := s.tracer.Start(ctx, "app.StoreStats")
	defer span.End()
	return s.repo.Stats(ctx)
}
