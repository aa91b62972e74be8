// internal/service/delivery/infrastructure/mapper.go
package infrastructure

import (
	"database/sql"
	"encoding/json"
	"time"

	"shopmesh/internal/service/delivery/domain"
)

// ToDomainDelivery 将数据库模型转换为领域模型。
func ToDomainDelivery(model *DeliveryModel) *domain.Delivery {
	if model == nil {
		return nil
	}

	var items []domain.OrderItem
	if model.OrderItems != "" {
		// 解析失败按空行项处理，不让一条坏数据拖垮整个读路径
		_ = json.Unmarshal([]byte(model.OrderItems), &items)
	}

	return &domain.Delivery{
		ID:                model.ID,
		OrderID:           model.OrderID,
		Status:            domain.Status(model.Status),
		DeliveryAddress:   model.DeliveryAddress,
		CustomerName:      model.CustomerName,
		CustomerPhone:     model.CustomerPhone,
		TrackingNumber:    model.TrackingNumber.String,
		EstimatedDelivery: nullTimePtr(model.EstimatedDelivery),
		ActualDelivery:    nullTimePtr(model.ActualDelivery),
		Notes:             model.Notes,
		Items:             items,
		CreatedAt:         model.CreatedAt,
		UpdatedAt:         model.UpdatedAt,
	}
}

// FromDomainDelivery 将领域模型转换为数据库模型。
func FromDomainDelivery(delivery *domain.Delivery) (*DeliveryModel, error) {
	itemsJSON, err := json.Marshal(delivery.Items)
	if err != nil {
		return nil, err
	}

	return &DeliveryModel{
		ID:                delivery.ID,
		OrderID:           delivery.OrderID,
		Status:            string(delivery.Status),
		DeliveryAddress:   delivery.DeliveryAddress,
		CustomerName:      delivery.CustomerName,
		CustomerPhone:     delivery.CustomerPhone,
		TrackingNumber:    sql.NullString{String: delivery.TrackingNumber, Valid: delivery.TrackingNumber != ""},
		EstimatedDelivery: ptrNullTime(delivery.EstimatedDelivery),
		ActualDelivery:    ptrNullTime(delivery.ActualDelivery),
		Notes:             delivery.Notes,
		OrderItems:        string(itemsJSON),
		CreatedAt:         delivery.CreatedAt,
		UpdatedAt:         delivery.UpdatedAt,
	}, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func ptrNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
