// internal/service/delivery/domain/events.go
package domain

import (
	"context"
	"time"
)

// DeliveryStatusChanged 在配送单创建或状态变化后发布。
type DeliveryStatusChanged struct {
	DeliveryID     string    `json:"deliveryId"`
	OrderID        string    `json:"orderId"`
	OldStatus      Status    `json:"oldStatus,omitempty"`
	NewStatus      Status    `json:"newStatus"`
	TrackingNumber string    `json:"trackingNumber,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// EventProducer 是配送事件的出站端口。发布是尽力而为的，
// 失败不应影响主流程的结果。
type EventProducer interface {
	PublishStatusChanged(ctx context.Context, event *DeliveryStatusChanged) error
}
