// internal/service/delivery/application/service.go
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"shopmesh/internal/pkg/logger"
	"shopmesh/internal/service/delivery/application/saga"
	"shopmesh/internal/service/delivery/domain"
	"shopmesh/internal/service/delivery/domain/port"
)

// DeliveryApplicationService 编排配送单的创建、状态流转和查询。
// 创建是两个子系统唯一需要跨信任边界协调失败的地方:
// 远端库存预留成功但本地持久化失败时，必须先补偿再上报。
type DeliveryApplicationService struct {
	repo        domain.DeliveryRepository
	coordinator *saga.Coordinator
	stock       port.StockService
	producer    domain.EventProducer // 可为 nil
	tracer      trace.Tracer

	trackingMaxAttempts int
}

func NewDeliveryApplicationService(
	repo domain.DeliveryRepository,
	coordinator *saga.Coordinator,
	stock port.StockService,
	producer domain.EventProducer,
	tracer trace.Tracer,
	trackingMaxAttempts int,
) *DeliveryApplicationService {
	if trackingMaxAttempts <= 0 {
		trackingMaxAttempts = 10
	}
	return &DeliveryApplicationService{
		repo:                repo,
		coordinator:         coordinator,
		stock:               stock,
		producer:            producer,
		tracer:              tracer,
		trackingMaxAttempts: trackingMaxAttempts,
	}
}

// CreateDelivery 是创建入口: 幂等守卫 -> 库存预留 Saga -> 本地持久化。
func (s *DeliveryApplicationService) CreateDelivery(ctx context.Context, req *CreateDeliveryRequest) (*CreateDeliveryResult, error) {
	ctx, span := s.tracer.Start(ctx, "app.CreateDelivery")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", req.OrderID),
		attribute.Int("order.items", len(req.Items)),
	)

	// 1. 幂等守卫: 同一订单已有配送单时直接拒绝，绝不发起新的预留。
	existing, err := s.repo.FindByOrderID(ctx, req.OrderID)
	if err != nil && !errors.Is(err, domain.ErrDeliveryNotFound) {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to check existing delivery: %w", err)
	}
	if existing != nil {
		span.AddEvent("Duplicate order rejected before any reservation")
		return &CreateDeliveryResult{
			Success: false,
			Message: "Delivery already exists for this order",
		}, nil
	}

	// 2. 先构造聚合，把无效输入挡在任何远程扣减之前。
	delivery, err := domain.NewDelivery(
		req.OrderID, req.DeliveryAddress, req.CustomerName, req.CustomerPhone,
		req.Notes, req.Items, req.EstimatedDelivery,
	)
	if err != nil {
		span.RecordError(err)
		return &CreateDeliveryResult{Success: false, Message: err.Error()}, nil
	}

	// 3. 跨服务库存预留 Saga。
	items := make([]saga.LineItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = saga.LineItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	outcome := s.coordinator.Reserve(ctx, items)

	if !outcome.Success {
		span.SetStatus(codes.Error, "Stock reservation saga failed")
		logger.Ctx(ctx).Warn().
			Str("order_id", req.OrderID).
			Int("failed_items", len(outcome.FailedItems)).
			Msg("delivery creation rejected: stock reservation failed")
		return &CreateDeliveryResult{
			StockErrors: s.buildStockErrors(req.Items, outcome),
			Success:     false,
			Message: fmt.Sprintf("Unable to process order. %d items have insufficient stock or are unavailable.",
				len(outcome.FailedItems)),
		}, nil
	}

	// 4. 本地事务持久化。走到这里远端库存已经扣掉了:
	// 任何持久化失败都必须先补偿所有已扣减的行项，再向上暴露失败。
	if err := s.repo.Create(ctx, delivery); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Local persistence failed after successful reservation")
		logger.Ctx(ctx).Error().Err(err).
			Str("order_id", req.OrderID).
			Msg("persistence failed after stock reservation, compensating")
		s.coordinator.Compensate(ctx, outcome.Reductions)

		if errors.Is(err, domain.ErrDuplicateOrder) {
			return &CreateDeliveryResult{
				Success: false,
				Message: "Delivery already exists for this order",
			}, nil
		}
		return &CreateDeliveryResult{
			Success: false,
			Message: "Failed to create delivery due to an internal error",
		}, nil
	}

	s.publishStatusChange(ctx, delivery, "")
	logger.Ctx(ctx).Info().
		Str("delivery_id", delivery.ID).
		Str("order_id", delivery.OrderID).
		Msg("delivery created, stock reserved")
	span.AddEvent("Delivery created and stock reserved")

	return &CreateDeliveryResult{
		Delivery: delivery,
		Success:  true,
		Message:  "Delivery created successfully and stock has been reserved",
	}, nil
}

// buildStockErrors 把失败行项的 Saga 结果转换为面向调用方的错误列表。
func (s *DeliveryApplicationService) buildStockErrors(items []domain.OrderItem, outcome saga.Outcome) []StockError {
	requested := make(map[string]int, len(items))
	for _, item := range items {
		requested[item.ProductID] = item.Quantity
	}

	var stockErrors []StockError
	for _, result := range outcome.Results {
		if result.Success {
			continue
		}
		name := result.ProductName
		if name == "" {
			name = "Unknown Product"
		}
		message := result.Reason
		if message == "" {
			message = "Stock validation failed"
		}
		stockErrors = append(stockErrors, StockError{
			ProductID:         result.ProductID,
			ProductName:       name,
			RequestedQuantity: requested[result.ProductID],
			AvailableStock:    result.RemainingStock,
			Message:           message,
		})
	}
	return stockErrors
}

// UpdateDeliveryStatus 执行一次状态流转。
// 首次进入 confirmed/shipped 时分配运单号，冲突时重新生成，重试有上限。
func (s *DeliveryApplicationService) UpdateDeliveryStatus(ctx context.Context, req *UpdateStatusRequest) (*domain.Delivery, error) {
	ctx, span := s.tracer.Start(ctx, "app.UpdateDeliveryStatus")
	defer span.End()
	span.SetAttributes(
		attribute.String("delivery.id", req.ID),
		attribute.String("delivery.status", string(req.Status)),
	)

	delivery, err := s.repo.FindByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	if req.EstimatedDelivery != nil {
		delivery.EstimatedDelivery = req.EstimatedDelivery
	}
	if req.ActualDelivery != nil {
		delivery.ActualDelivery = req.ActualDelivery
	}

	oldStatus := delivery.Status
	needsTracking, err := delivery.ApplyStatus(req.Status, req.Notes, time.Now())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if needsTracking {
		if err := s.saveWithTrackingAllocation(ctx, delivery); err != nil {
			span.RecordError(err)
			return nil, err
		}
		span.AddEvent("Tracking number allocated",
			trace.WithAttributes(attribute.String("delivery.tracking_number", delivery.TrackingNumber)))
	} else {
		if err := s.repo.Save(ctx, delivery); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	s.publishStatusChange(ctx, delivery, oldStatus)
	logger.Ctx(ctx).Info().
		Str("delivery_id", delivery.ID).
		Str("from", string(oldStatus)).
		Str("to", string(delivery.Status)).
		Msg("delivery status updated")
	return delivery, nil
}

// saveWithTrackingAllocation 生成运单号并保存，撞上唯一约束就换号重试。
// 重试次数用尽视为致命错误，本次操作失败。
func (s *DeliveryApplicationService) saveWithTrackingAllocation(ctx context.Context, delivery *domain.Delivery) error {
	for attempt := 0; attempt < s.trackingMaxAttempts; attempt++ {
		delivery.TrackingNumber = domain.GenerateTrackingNumber()
		err := s.repo.Save(ctx, delivery)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrDuplicateTracking) {
			delivery.TrackingNumber = ""
			return err
		}
	}
	delivery.TrackingNumber = ""
	return domain.ErrTrackingExhausted
}

// CancelDelivery 取消配送，落到 failed 终态。
func (s *DeliveryApplicationService) CancelDelivery(ctx context.Context, id, reason string) (*domain.Delivery, error) {
	notes := "Delivery cancelled"
	if reason != "" {
		notes = "Cancelled: " + reason
	}
	return s.UpdateDeliveryStatus(ctx, &UpdateStatusRequest{
		ID:     id,
		Status: domain.StatusFailed,
		Notes:  notes,
	})
}

// MarkAsDelivered 标记送达，首次进入时打上实际送达时间。
func (s *DeliveryApplicationService) MarkAsDelivered(ctx context.Context, id, notes string) (*domain.Delivery, error) {
	return s.UpdateDeliveryStatus(ctx, &UpdateStatusRequest{
		ID:     id,
		Status: domain.StatusDelivered,
		Notes:  notes,
	})
}

func (s *DeliveryApplicationService) GetDelivery(ctx context.Context, id string) (*domain.Delivery, error) {
	ctx, span := s.tracer.Start(ctx, "app.GetDelivery")
	defer span.End()
	return s.repo.FindByID(ctx, id)
}

func (s *DeliveryApplicationService) GetDeliveryByOrderID(ctx context.Context, orderID string) (*domain.Delivery, error) {
	ctx, span := s.tracer.Start(ctx, "app.GetDeliveryByOrderID")
	defer span.End()
	return s.repo.FindByOrderID(ctx, orderID)
}

func (s *DeliveryApplicationService) GetDeliveryByTrackingNumber(ctx context.Context, trackingNumber string) (*domain.Delivery, error) {
	ctx, span := s.tracer.Start(ctx, "app.GetDeliveryByTrackingNumber")
	defer span.End()
	return s.repo.FindByTrackingNumber(ctx, trackingNumber)
}

func (s *DeliveryApplicationService) ListDeliveries(ctx context.Context, filter domain.ListFilter, page domain.Page) ([]*domain.Delivery, int64, error) {
	ctx, span := s.tracer.Start(ctx, "app.ListDeliveries")
	defer span.End()

	if page.Page <= 0 {
		page.Page = 1
	}
	if page.Limit <= 0 {
		page.Limit = 10
	}
	return s.repo.FindAll(ctx, filter, page)
}

func (s *DeliveryApplicationService) DeliveryStats(ctx context.Context) (*domain.Stats, error) {
	ctx, span := s.tracer.Start(ctx, "app.DeliveryStats")
	defer span.End()
	return s.repo.Stats(ctx)
}

// EnrichItems 用商品服务的实时数据补齐行项。配送单只存最小形态，
// 名称和价格在读取时现查; 查不到的行项保留最小数据并标记不可用。
func (s *DeliveryApplicationService) EnrichItems(ctx context.Context, delivery *domain.Delivery) []EnrichedOrderItem {
	ctx, span := s.tracer.Start(ctx, "app.EnrichItems")
	defer span.End()

	enriched := make([]EnrichedOrderItem, 0, len(delivery.Items))
	for _, item := range delivery.Items {
		e := EnrichedOrderItem{
			ProductID:   item.ProductID,
			ProductName: "Unknown Product",
			Quantity:    item.Quantity,
		}
		if product, err := s.stock.GetProduct(ctx, item.ProductID); err == nil && product != nil {
			e.ProductName = product.Name
			e.Price = product.Price
			e.TotalPrice = product.Price * float64(item.Quantity)
			e.IsAvailable = product.Stock > 0
		}
		enriched = append(enriched, e)
	}
	return enriched
}

// publishStatusChange 尽力而为地发布状态变更事件，失败只记录日志。
func (s *DeliveryApplicationService) publishStatusChange(ctx context.Context, delivery *domain.Delivery, oldStatus domain.Status) {
	if s.producer == nil {
		return
	}
	event := &domain.DeliveryStatusChanged{
		DeliveryID:     delivery.ID,
		OrderID:        delivery.OrderID,
		OldStatus:      oldStatus,
		NewStatus:      delivery.Status,
		TrackingNumber: delivery.TrackingNumber,
		OccurredAt:     time.Now(),
	}
	if err := s.producer.PublishStatusChanged(ctx, event); err != nil {
		logger.Ctx(ctx).Warn().Err(err).
			Str("delivery_id", delivery.ID).
			Msg("failed to publish delivery status event")
	}
}
