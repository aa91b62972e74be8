// internal/service/delivery/domain/repository.go
package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDeliveryNotFound = errors.New("delivery not found")
	// ErrDuplicateOrder 表示该订单已经存在配送单 (orderId 唯一约束)。
	ErrDuplicateOrder = errors.New("delivery already exists for this order")
	// ErrDuplicateTracking 表示运单号撞上了唯一约束，调用方应重新生成后重试。
	ErrDuplicateTracking = errors.New("tracking number already exists")
	// ErrTrackingExhausted 表示运单号重试次数用尽，本次操作失败。
	ErrTrackingExhausted = errors.New("unable to generate unique tracking number after multiple attempts")
)

// ListFilter 是配送单列表查询的过滤条件。
type ListFilter struct {
	Status       *Status
	CustomerName string // 模糊匹配
	DateFrom     *time.Time
	DateTo       *time.Time
}

// Page 是分页参数。
type Page struct {
	Page  int
	Limit int
}

// Stats 是按状态桶聚合的配送统计。
type Stats struct {
	TotalDeliveries      int64
	PendingDeliveries    int64
	InProgressDeliveries int64 // confirmed ~ out_for_delivery
	CompletedDeliveries  int64 // delivered
	FailedDeliveries     int64 // failed + returned
}

// DeliveryRepository 是配送聚合的出站仓储端口。
// Create 和 Save 在本地事务内完成写入，唯一约束冲突映射为上面的哨兵错误。
type DeliveryRepository interface {
	Create(ctx context.Context, delivery *Delivery) error
	Save(ctx context.Context, delivery *Delivery) error
	FindByID(ctx context.Context, id string) (*Delivery, error)
	FindByOrderID(ctx context.Context, orderID string) (*Delivery, error)
	FindByTrackingNumber(ctx context.Context, trackingNumber string) (*Delivery, error)
	FindAll(ctx context.Context, filter ListFilter, page Page) ([]*Delivery, int64, error)
	Stats(ctx context.Context) (*Stats, error)
}
