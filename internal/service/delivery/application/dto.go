// internal/service/delivery/application/dto.go
package application

import (
	"time"

	"shopmesh/internal/service/delivery/domain"
)

// CreateDeliveryRequest 是创建配送单用例的输入数据。
type CreateDeliveryRequest struct {
	OrderID           string
	DeliveryAddress   string
	CustomerName      string
	CustomerPhone     string
	Notes             string
	EstimatedDelivery *time.Time
	Items             []domain.OrderItem
}

// StockError 描述一个行项的库存失败，给调用方完整的失败画像。
type StockError struct {
	ProductID         string
	ProductName       string
	RequestedQuantity int
	AvailableStock    int // -1 表示无法得知对端可用库存
	Message           string
}

// CreateDeliveryResult 是创建配送单的结构化结果。
// 库存失败不抛错误，而是在这里聚合返回; 只有真正意外的内部错误才走 error。
type CreateDeliveryResult struct {
	Delivery    *domain.Delivery
	StockErrors []StockError
	Success     bool
	Message     string
}

// UpdateStatusRequest 是状态更新用例的输入数据。
type UpdateStatusRequest struct {
	ID                string
	Status            domain.Status
	Notes             string
	EstimatedDelivery *time.Time
	ActualDelivery    *time.Time
}

// EnrichedOrderItem 是读路径上用商品服务实时数据补齐后的行项。
type EnrichedOrderItem struct {
	ProductID   string
	ProductName string
	Quantity    int
	Price       float64
	TotalPrice  float64
	IsAvailable bool
}
