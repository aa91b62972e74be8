// internal/service/delivery/domain/delivery.go
package domain

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// OrderItem 是订单中的一个行项，只存最小形态。
// 价格和名称不落库，读取时从商品服务实时获取。
type OrderItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Delivery 是配送聚合的根实体。
// 不变量: orderId 全局唯一; 运单号一旦分配全局唯一且不可变;
// 状态只按 Transition 的规则流转; 行项数量恒为正。
// 只有库存预留 Saga 成功之后才会创建该聚合。
type Delivery struct {
	ID                string
	OrderID           string
	Status            Status
	DeliveryAddress   string
	CustomerName      string
	CustomerPhone     string
	TrackingNumber    string // 为空表示尚未分配
	EstimatedDelivery *time.Time
	ActualDelivery    *time.Time
	Notes             string
	Items             []OrderItem
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

var phonePattern = regexp.MustCompile(`^[\+]?[0-9\-\s\(\)]+$`)

// NewDelivery 创建一个新的配送单实例，初始状态为 pending，运单号尚未分配。
func NewDelivery(orderID, address, customerName, customerPhone, notes string, items []OrderItem, estimated *time.Time) (*Delivery, error) {
	if orderID == "" {
		return nil, errors.New("order ID cannot be empty")
	}
	if address == "" {
		return nil, errors.New("delivery address cannot be empty")
	}
	if len(items) == 0 {
		return nil, errors.New("cannot create delivery without order items")
	}
	for _, item := range items {
		if item.ProductID == "" || item.Quantity <= 0 {
			return nil, fmt.Errorf("invalid order item: productId=%q quantity=%d", item.ProductID, item.Quantity)
		}
	}
	if customerPhone != "" && !phonePattern.MatchString(customerPhone) {
		return nil, errors.New("invalid phone number format")
	}

	now := time.Now()
	return &Delivery{
		ID:                uuid.New().String(),
		OrderID:           orderID,
		Status:            StatusPending,
		DeliveryAddress:   address,
		CustomerName:      customerName,
		CustomerPhone:     customerPhone,
		Notes:             notes,
		Items:             items,
		EstimatedDelivery: estimated,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// GenerateTrackingNumber 生成一个运单号，格式: DEL-YYYYMMDD-NNNN。
// 随机尾号不保证全局唯一，唯一性由持久化时的唯一约束加重试兜底。
func GenerateTrackingNumber() string {
	return fmt.Sprintf("DEL-%s-%04d", time.Now().Format("20060102"), rand.Intn(10000))
}

// ApplyStatus 执行一次纯内存的状态流转，返回是否需要分配运单号。
// 这个方法只负责状态机和时间戳，持久化和运单号的唯一性由调用方处理。
func (d *Delivery) ApplyStatus(next Status, notes string, now time.Time) (needsTracking bool, err error) {
	if err := Transition(d.Status, next); err != nil {
		return false, err
	}

	d.Status = next
	if notes != "" {
		d.Notes = notes
	}
	d.UpdatedAt = now

	// 首次进入 confirmed 或 shipped 时分配运单号，已分配的绝不重新生成
	if (next == StatusConfirmed || next == StatusShipped) && d.TrackingNumber == "" {
		needsTracking = true
	}

	// 首次送达时打上实际送达时间
	if next == StatusDelivered && d.ActualDelivery == nil {
		t := now
		d.ActualDelivery = &t
	}
	return needsTracking, nil
}

// IsCompleted 判断配送是否已结束。
func (d *Delivery) IsCompleted() bool {
	return d.Status.IsCompleted()
}

// IsInProgress 判断配送是否在途。
func (d *Delivery) IsInProgress() bool {
	return d.Status.IsInProgress()
}
