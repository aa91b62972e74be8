// internal/service/delivery/infrastructure/gorm_model.go
package infrastructure

import (
	"database/sql"
	"time"
)

// DeliveryModel 对应数据库中的 deliveries 表。
// orderId 和 trackingNumber 上的唯一索引是幂等守卫和运单号分配的最终防线。
type DeliveryModel struct {
	ID                string         `gorm:"type:char(36);primaryKey"`
	OrderID           string         `gorm:"type:char(36);not null;uniqueIndex:uk_deliveries_order_id"`
	Status            string         `gorm:"size:32;not null;index"`
	DeliveryAddress   string         `gorm:"type:text;not null"`
	CustomerName      string         `gorm:"size:255;index"`
	CustomerPhone     string         `gorm:"size:20"`
	TrackingNumber    sql.NullString `gorm:"size:50;uniqueIndex:uk_deliveries_tracking_number"`
	EstimatedDelivery sql.NullTime
	ActualDelivery    sql.NullTime
	Notes             string    `gorm:"type:text"`
	OrderItems        string    `gorm:"type:json"` // 行项的最小形态 JSON
	CreatedAt         time.Time `gorm:"index"`
	UpdatedAt         time.Time
}

// TableName 指定 GORM 应该使用的表名。
func (DeliveryModel) TableName() string {
	return "deliveries"
}
