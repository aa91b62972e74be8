// internal/service/delivery/infrastructure/adapter/delivery_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"shopmesh/internal/pkg/mq"
	"shopmesh/internal/service/delivery/domain"
)

// DeliveryKafkaAdapter 把配送状态事件发布到 Kafka，实现 EventProducer 端口。
// 以 orderId 作为消息 Key，同一订单的事件保持分区内有序。
type DeliveryKafkaAdapter struct {
	writer *kafka.Writer
}

// NewDeliveryKafkaAdapter 创建适配器。
func NewDeliveryKafkaAdapter(writer *kafka.Writer) *DeliveryKafkaAdapter {
	return &DeliveryKafkaAdapter{writer: writer}
}

func (a *DeliveryKafkaAdapter) PublishStatusChanged(ctx context.Context, event *domain.DeliveryStatusChanged) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to encode delivery status event")
	}
	if err := mq.ProduceMessage(ctx, a.writer, []byte(event.OrderID), data); err != nil {
		return errors.Wrap(err, "failed to publish delivery status event")
	}
	return nil
}
