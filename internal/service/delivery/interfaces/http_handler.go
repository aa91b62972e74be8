// internal/service/delivery/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"shopmesh/internal/pkg/logger"
	"shopmesh/internal/service/delivery/application"
	"shopmesh/internal/service/delivery/domain"
)

const serviceName = "delivery-service"

// DeliveryHandler 封装了配送服务的 HTTP 处理器。
type DeliveryHandler struct {
	service *application.DeliveryApplicationService
}

// NewDeliveryHandler 创建一个新的 HTTP 处理器实例。
func NewDeliveryHandler(service *application.DeliveryApplicationService) *DeliveryHandler {
	return &DeliveryHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。
func (h *DeliveryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/create_delivery", h.createDelivery)
	mux.HandleFunc("/update_delivery_status", h.updateDeliveryStatus)
	mux.HandleFunc("/cancel_delivery", h.cancelDelivery)
	mux.HandleFunc("/mark_as_delivered", h.markAsDelivered)
	mux.HandleFunc("/get_delivery", h.getDelivery)
	mux.HandleFunc("/delivery_by_order", h.getDeliveryByOrder)
	mux.HandleFunc("/delivery_by_tracking", h.getDeliveryByTracking)
	mux.HandleFunc("/deliveries", h.listDeliveries)
	mux.HandleFunc("/delivery_stats", h.deliveryStats)
	mux.HandleFunc("/delivery_statuses", h.deliveryStatuses)
}

type orderItemPayload struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	TotalPrice  float64 `json:"totalPrice"`
	IsAvailable bool    `json:"isAvailable"`
}

type deliveryPayload struct {
	ID                string             `json:"id"`
	OrderID           string             `json:"orderId"`
	Status            string             `json:"status"`
	DeliveryAddress   string             `json:"deliveryAddress"`
	CustomerName      string             `json:"customerName"`
	CustomerPhone     string             `json:"customerPhone"`
	TrackingNumber    string             `json:"trackingNumber,omitempty"`
	EstimatedDelivery *string            `json:"estimatedDelivery"`
	ActualDelivery    *string            `json:"actualDelivery"`
	Notes             string             `json:"notes"`
	Items             []orderItemPayload `json:"items"`
	IsCompleted       bool               `json:"isCompleted"`
	IsInProgress      bool               `json:"isInProgress"`
	CreatedAt         string             `json:"createdAt"`
	UpdatedAt         string             `json:"updatedAt"`
}

type stockErrorPayload struct {
	ProductID         string `json:"productId"`
	ProductName       string `json:"productName"`
	RequestedQuantity int    `json:"requestedQuantity"`
	AvailableStock    int    `json:"availableStock"`
	Message           string `json:"message"`
}

type createDeliveryResponse struct {
	Success     bool                `json:"success"`
	Message     string              `json:"message"`
	Delivery    *deliveryPayload    `json:"delivery,omitempty"`
	StockErrors []stockErrorPayload `json:"stockErrors,omitempty"`
}

type errorEnvelope struct {
	Error string `json:"error"`
}

type paginationPayload struct {
	CurrentPage     int   `json:"currentPage"`
	TotalPages      int   `json:"totalPages"`
	TotalItems      int64 `json:"totalItems"`
	HasNextPage     bool  `json:"hasNextPage"`
	HasPreviousPage bool  `json:"hasPreviousPage"`
}

// toDeliveryPayload 拼装对外的配送单视图。
// 行项通过商品服务实时补齐，enrich 为 false 时只返回落库的最小形态。
func (h *DeliveryHandler) toDeliveryPayload(ctx context.Context, d *domain.Delivery, enrich bool) deliveryPayload {
	var items []orderItemPayload
	if enrich {
		for _, e := range h.service.EnrichItems(ctx, d) {
			items = append(items, orderItemPayload{
				ProductID:   e.ProductID,
				ProductName: e.ProductName,
				Quantity:    e.Quantity,
				Price:       e.Price,
				TotalPrice:  e.TotalPrice,
				IsAvailable: e.IsAvailable,
			})
		}
	} else {
		for _, item := range d.Items {
			items = append(items, orderItemPayload{ProductID: item.ProductID, Quantity: item.Quantity})
		}
	}

	return deliveryPayload{
		ID:                d.ID,
		OrderID:           d.OrderID,
		Status:            string(d.Status),
		DeliveryAddress:   d.DeliveryAddress,
		CustomerName:      d.CustomerName,
		CustomerPhone:     d.CustomerPhone,
		TrackingNumber:    d.TrackingNumber,
		EstimatedDelivery: formatTimePtr(d.EstimatedDelivery),
		ActualDelivery:    formatTimePtr(d.ActualDelivery),
		Notes:             d.Notes,
		Items:             items,
		IsCompleted:       d.IsCompleted(),
		IsInProgress:      d.IsInProgress(),
		CreatedAt:         d.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         d.UpdatedAt.Format(time.RFC3339),
	}
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func buildPagination(page, limit int, total int64) paginationPayload {
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return paginationPayload{
		CurrentPage:     page,
		TotalPages:      totalPages,
		TotalItems:      total,
		HasNextPage:     page < totalPages,
		HasPreviousPage: page > 1,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorEnvelope{Error: message})
}

// writeDeliveryError 把领域错误映射为 HTTP 状态码。
func writeDeliveryError(ctx context.Context, w http.ResponseWriter, err error) {
	var transitionErr *domain.TransitionError
	switch {
	case errors.Is(err, domain.ErrDeliveryNotFound):
		writeError(w, http.StatusNotFound, "Delivery not found")
	case errors.As(err, &transitionErr):
		writeError(w, http.StatusConflict, transitionErr.Error())
	case errors.Is(err, domain.ErrTrackingExhausted):
		logger.Ctx(ctx).Error().Err(err).Msg("tracking number allocation exhausted")
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		logger.Ctx(ctx).Error().Err(err).Msg("unexpected delivery operation failure")
		writeError(w, http.StatusInternalServerError, "Failed to process delivery operation")
	}
}

func (h *DeliveryHandler) startSpan(r *http.Request, name string) (context.Context, trace.Span) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	tracer := otel.Tracer(serviceName)
	return tracer.Start(ctx, name)
}

type createDeliveryRequest struct {
	OrderID           string  `json:"orderId"`
	DeliveryAddress   string  `json:"deliveryAddress"`
	CustomerName      string  `json:"customerName"`
	CustomerPhone     string  `json:"customerPhone"`
	Notes             string  `json:"notes"`
	EstimatedDelivery *string `json:"estimatedDelivery"`
	Items             []struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
}

func (h *DeliveryHandler) createDelivery(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "delivery-service.CreateDelivery")
	defer span.End()

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req createDeliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	appReq := &application.CreateDeliveryRequest{
		OrderID:         req.OrderID,
		DeliveryAddress: req.DeliveryAddress,
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		Notes:           req.Notes,
	}
	if req.EstimatedDelivery != nil {
		t, err := time.Parse(time.RFC3339, *req.EstimatedDelivery)
		if err != nil {
			writeError(w, http.StatusBadRequest, "estimatedDelivery must be RFC3339")
			return
		}
		appReq.EstimatedDelivery = &t
	}
	for _, item := range req.Items {
		appReq.Items = append(appReq.Items, domain.OrderItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	result, err := h.service.CreateDelivery(ctx, appReq)
	if err != nil {
		writeDeliveryError(ctx, w, err)
		return
	}

	// 业务层面的失败 (库存不足、重复订单、无效输入) 以结构化结果返回,
	// 调用方从 success 和 stockErrors 判断，不靠猜 HTTP 状态码。
	resp := createDeliveryResponse{Success: result.Success, Message: result.Message}
	for _, se := range result.StockErrors {
		resp.StockErrors = append(resp.StockErrors, stockErrorPayload{
			ProductID:         se.ProductID,
			ProductName:       se.ProductName,
			RequestedQuantity: se.RequestedQuantity,
			AvailableStock:    se.AvailableStock,
			Message:           se.Message,
		})
	}
	if result.Delivery != nil {
		payload := h.toDeliveryPayload(ctx, result.Delivery, true)
		resp.Delivery = &payload
	}
	if result.Success {
		writeJSON(w, http.StatusCreated, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type updateStatusRequest struct {
	DeliveryID        string  `json:"deliveryId"`
	Status            string  `json:"status"`
	Notes             string  `json:"notes"`
	EstimatedDelivery *string `json:"estimatedDelivery"`
	ActualDelivery    *string `json:"actualDelivery"`
}

func (h *DeliveryHandler) updateDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "delivery-service.UpdateDeliveryStatus")
	defer span.End()

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeliveryID == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	appReq := &application.UpdateStatusRequest{
		ID:     req.DeliveryID,
		Status: status,
		Notes:  req.Notes,
	}
	if req.EstimatedDelivery != nil {
		if t, parseErr := time.Parse(time.RFC3339, *req.EstimatedDelivery); parseErr == nil {
			appReq.EstimatedDelivery = &t
		}
	}
	if req.ActualDelivery != nil {
		if t, parseErr := time.Parse(time.RFC3339, *req.ActualDelivery); parseErr == nil {
			appReq.ActualDelivery = &t
		}
	}

	delivery, err := h.service.UpdateDeliveryStatus(ctx, appReq)
	if err != nil {
		writeDeliveryError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toDeliveryPayload(ctx, delivery, true))
}

func (h *DeliveryHandler) cancelDelivery(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "delivery-service.CancelDelivery")
	defer span.End()

	id := r.URL.Query().Get("deliveryId")
	if id == "" {
		writeError(w, http.StatusBadRequest, "deliveryId is required")
		return
	}

	delivery, err := h.service.CancelDelivery(ctx, id, r.URL.Query().Get("reason"))
	if err != nil {
		writeDeliveryError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toDeliveryPayload(ctx, delivery, true))
}

func (h *DeliveryHandler) markAsDelivered(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "delivery-service.MarkAsDelivered")
	defer span.End()

	id := r.URL.Query().Get("deliveryId")
	if id == "" {
		writeError(w, http.StatusBadRequest, "deliveryId is required")
		return
	}

	delivery, err := h.service.MarkAsDelivered(ctx, id, r.URL.Query().Get("notes"))
	if err != nil {
		writeDeliveryError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toDeliveryPayload(ctx, delivery, true))
}

func (h *DeliveryHandler) getDelivery(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "delivery-service.GetDelivery")
	defer span.End()

	id := r.URL.Query().Get("deliveryId")
	if id == "" {
		writeError(w, http.StatusBadRequest, "deliveryId is required")
		return
	}

	delivery, err := h.service.GetDelivery(ctx, id)
	if err != nil {
		writeDeliveryError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toDeliveryPayload(ctx, delivery, true))
}

func (h *DeliveryHandler) getDeliveryByOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "delivery-service.GetDeliveryByOrder")
	defer span.End()

	orderID := r.URL.Query().Get("orderId")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "orderId is required")
		return
	}

	delivery, err := h.service.GetDeliveryByOrderID(ctx, orderID)
	if err != nil {
		writeDeliveryError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toDeliveryPayload(ctx, delivery, true))
}

func (h *DeliveryHandler) getDeliveryByTracking(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "delivery-service.GetDeliveryByTracking")
	defer span.End()

	trackingNumber := r.URL.Query().Get("trackingNumber")
	if trackingNumber == "" {
		writeError(w, http.StatusBadRequest, "trackingNumber is required")
		return
	}

	delivery, err := h.service.GetDeliveryByTrackingNumber(ctx, trackingNumber)
	if err != nil {
		writeDeliveryError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toDeliveryPayload(ctx, delivery, true))
}

func (h *DeliveryHandler) listDeliveries(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "delivery-service.ListDeliveries")
	defer span.End()

	q := r.URL.Query()
	var filter domain.ListFilter
	if v := q.Get("status"); v != "" {
		status, err := domain.ParseStatus(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = &status
	}
	filter.CustomerName = q.Get("customerName")
	if v := q.Get("dateFrom"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.DateFrom = &t
		}
	}
	if v := q.Get("dateTo"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.DateTo = &t
		}
	}

	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}

	deliveries, total, err := h.service.ListDeliveries(ctx, filter, domain.Page{Page: page, Limit: limit})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch deliveries")
		return
	}

	// 列表不做逐单实时补齐，避免对商品服务的 N 次扇出
	payloads := make([]deliveryPayload, len(deliveries))
	for i, d := range deliveries {
		payloads[i] = h.toDeliveryPayload(ctx, d, false)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deliveries": payloads,
		"pagination": buildPagination(page, limit, total),
	})
}

func (h *DeliveryHandler) deliveryStats(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "delivery-service.DeliveryStats")
	defer span.End()

	stats, err := h.service.DeliveryStats(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch delivery stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"totalDeliveries":      stats.TotalDeliveries,
		"pendingDeliveries":    stats.PendingDeliveries,
		"inProgressDeliveries": stats.InProgressDeliveries,
		"completedDeliveries":  stats.CompletedDeliveries,
		"failedDeliveries":     stats.FailedDeliveries,
	})
}

func (h *DeliveryHandler) deliveryStatuses(w http.ResponseWriter, r *http.Request) {
	_, span := h.startSpan(r, "delivery-service.DeliveryStatuses")
	defer span.End()

	statuses := domain.AllStatuses()
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	writeJSON(w, http.StatusOK, map[string]any{"statuses": names})
}
