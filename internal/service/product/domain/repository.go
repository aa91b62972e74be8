// internal/service/product/domain/repository.go
package domain

import "context"

// ListFilter 是商品列表查询的过滤条件。
type ListFilter struct {
	CategoryID string
	MinPrice   *float64
	MaxPrice   *float64
	InStock    bool
	Search     string // 按名称或描述模糊匹配
}

// Page 是分页参数。
type Page struct {
	Page  int
	Limit int
}

// StoreStats 是商品库的整体统计。
type StoreStats struct {
	TotalProducts      int64
	TotalValue         float64
	LowStockProducts   int64 // 库存 1~10
	OutOfStockProducts int64
	AveragePrice       float64
}

// ProductRepository 是商品聚合的出站仓储端口。
type ProductRepository interface {
	FindByID(ctx context.Context, id string) (*Product, error)
	FindAll(ctx context.Context, filter ListFilter, page Page) ([]*Product, int64, error)
	Create(ctx context.Context, product *Product) error
	Update(ctx context.Context, product *Product) error
	Delete(ctx context.Context, id string) (bool, error)

	// ReduceStock 以单条条件更新的方式原子扣减库存:
	// 要么完整生效，要么完全不生效，并发扣减绝不会把库存打成负数。
	ReduceStock(ctx context.Context, id string, quantity int) (*Product, error)
	// IncreaseStock 无条件回加库存，仅用于补偿路径。台账本身不保证幂等，
	// 调用方必须保证每次成功扣减至多补偿一次。
	IncreaseStock(ctx context.Context, id string, quantity int) (*Product, error)

	Stats(ctx context.Context) (*StoreStats, error)
}
