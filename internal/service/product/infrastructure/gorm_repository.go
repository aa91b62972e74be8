// internal/service/product/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	goerrors "errors"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"shopmesh/internal/service/product/domain"
)

// GormProductRepository 是 ProductRepository 的 GORM 实现。
type GormProductRepository struct {
	db *gorm.DB
}

// NewGormProductRepository 创建一个新的 GORM 仓储实例。
func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

func (r *GormProductRepository) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	var model ProductModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if goerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &domain.NotFoundError{ID: id}
		}
		return nil, errors.Wrap(err, "failed to find product")
	}
	return ToDomainProduct(&model), nil
}

func (r *GormProductRepository) FindAll(ctx context.Context, filter domain.ListFilter, page domain.Page) ([]*domain.Product, int64, error) {
	query := r.db.WithContext(ctx).Model(&ProductModel{})

	if filter.CategoryID != "" {
		query = query.Where("category_id = ?", filter.CategoryID)
	}
	if filter.MinPrice != nil {
		query = query.Where("price >= ?", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		query = query.Where("price <= ?", *filter.MaxPrice)
	}
	if filter.InStock {
		query = query.Where("stock > 0")
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		query = query.Where("name LIKE ? OR description LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "failed to count products")
	}

	var models []*ProductModel
	offset := (page.Page - 1) * page.Limit
	err := query.Order("created_at DESC").Limit(page.Limit).Offset(offset).Find(&models).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list products")
	}

	products := make([]*domain.Product, len(models))
	for i, m := range models {
		products[i] = ToDomainProduct(m)
	}
	return products, total, nil
}

func (r *GormProductRepository) Create(ctx context.Context, product *domain.Product) error {
	if err := r.db.WithContext(ctx).Create(FromDomainProduct(product)).Error; err != nil {
		return errors.Wrap(err, "failed to create product")
	}
	return nil
}

func (r *GormProductRepository) Update(ctx context.Context, product *domain.Product) error {
	res := r.db.WithContext(ctx).Model(&ProductModel{}).Where("id = ?", product.ID).Updates(map[string]interface{}{
		"name":        product.Name,
		"description": product.Description,
		"price":       product.Price,
		"stock":       product.Stock,
		"category_id": product.CategoryID,
	})
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to update product")
	}
	if res.RowsAffected == 0 {
		return &domain.NotFoundError{ID: product.ID}
	}
	return nil
}

func (r *GormProductRepository) Delete(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&ProductModel{})
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "failed to delete product")
	}
	return res.RowsAffected > 0, nil
}

// ReduceStock 执行整个系统并发安全性所依赖的那条原子条件更新:
//
//	UPDATE products SET stock = stock - ? WHERE id = ? AND stock >= ?
//
// 零行生效意味着商品不存在或库存不足，读一次商品来区分两种情况。
func (r *GormProductRepository) ReduceStock(ctx context.Context, id string, quantity int) (*domain.Product, error) {
	res := r.db.WithContext(ctx).Model(&ProductModel{}).
		Where("id = ? AND stock >= ?", id, quantity).
		UpdateColumn("stock", gorm.Expr("stock - ?", quantity))
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "failed to reduce stock")
	}
	if res.RowsAffected == 0 {
		product, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, &domain.InsufficientStockError{
			Requested:   quantity,
			Available:   product.Stock,
			ProductName: product.Name,
		}
	}
	return r.FindByID(ctx, id)
}

// IncreaseStock 无条件回加库存，用于补偿。
func (r *GormProductRepository) IncreaseStock(ctx context.Context, id string, quantity int) (*domain.Product, error) {
	res := r.db.WithContext(ctx).Model(&ProductModel{}).
		Where("id = ?", id).
		UpdateColumn("stock", gorm.Expr("stock + ?", quantity))
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "failed to increase stock")
	}
	if res.RowsAffected == 0 {
		return nil, &domain.NotFoundError{ID: id}
	}
	return r.FindByID(ctx, id)
}

func (r *GormProductRepository) Stats(ctx context.Context) (*domain.StoreStats, error) {
	var stats domain.StoreStats
	row := r.db.WithContext(ctx).Model(&ProductModel{}).
		Select("COUNT(*), COALESCE(SUM(price * stock), 0), COALESCE(AVG(price), 0)").Row()
	if err := row.Scan(&stats.TotalProducts, &stats.TotalValue, &stats.AveragePrice); err != nil {
		return nil, errors.Wrap(err, "failed to aggregate store stats")
	}

	if err := r.db.WithContext(ctx).Model(&ProductModel{}).
		Where("stock = 0").Count(&stats.OutOfStockProducts).Error; err != nil {
		return nil, errors.Wrap(err, "failed to count out-of-stock products")
	}
	if err := r.db.WithContext(ctx).Model(&ProductModel{}).
		Where("stock > 0 AND stock <= 10").Count(&stats.LowStockProducts).Error; err != nil {
		return nil, errors.Wrap(err, "failed to count low-stock products")
	}
	return &stats, nil
}
