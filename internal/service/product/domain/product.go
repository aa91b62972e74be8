// internal/service/product/domain/product.go
package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Product 是商品聚合的根实体，同时承担库存台账的角色。
// 不变量: 价格非负，库存非负。库存不变量在扣减点强制，而不是事后校验。
type Product struct {
	ID          string
	Name        string
	Description string
	Price       float64
	Stock       int
	CategoryID  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewProduct 创建一个新的商品实例。
func NewProduct(name, description string, price float64, stock int, categoryID string) (*Product, error) {
	if len(name) < 2 || len(name) > 255 {
		return nil, errors.New("product name must be between 2 and 255 characters")
	}
	if description == "" {
		return nil, errors.New("product description cannot be empty")
	}
	if price < 0 {
		return nil, errors.New("price must be a positive number")
	}
	if stock < 0 {
		return nil, errors.New("stock must be a non-negative number")
	}
	if categoryID == "" {
		return nil, errors.New("category ID cannot be empty")
	}
	now := time.Now()
	return &Product{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		Price:       price,
		Stock:       stock,
		CategoryID:  categoryID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// IsAvailable 判断商品当前是否有库存。
func (p *Product) IsAvailable() bool {
	return p.Stock > 0
}

// ReduceStock 在内存中扣减库存，只负责校验和状态流转，不负责持久化。
// 并发安全依赖仓储层的条件更新，这里的校验用于单对象路径。
func (p *Product) ReduceStock(quantity int) error {
	if quantity <= 0 {
		return &InvalidQuantityError{Quantity: quantity}
	}
	if p.Stock < quantity {
		return &InsufficientStockError{Requested: quantity, Available: p.Stock, ProductName: p.Name}
	}
	p.Stock -= quantity
	p.UpdatedAt = time.Now()
	return nil
}

// IncreaseStock 在内存中增加库存。
func (p *Product) IncreaseStock(quantity int) {
	p.Stock += quantity
	p.UpdatedAt = time.Now()
}

// NotFoundError 表示商品不存在。
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Product with ID '%s' not found", e.ID)
}

// InsufficientStockError 表示库存不足，携带请求量和实际可用量。
type InsufficientStockError struct {
	Requested   int
	Available   int
	ProductName string
}

func (e *InsufficientStockError) Error() string {
	productInfo := ""
	if e.ProductName != "" {
		productInfo = fmt.Sprintf(" for product '%s'", e.ProductName)
	}
	return fmt.Sprintf("Insufficient stock%s. Requested: %d, Available: %d", productInfo, e.Requested, e.Available)
}

// InvalidQuantityError 表示扣减数量非法（非正数）。
type InvalidQuantityError struct {
	Quantity int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("Invalid quantity: %d. Quantity must be a positive number", e.Quantity)
}
