// internal/service/product/interfaces/http_handler.go
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
	"shopmesh/internal/service/product/application"
	"shopmesh/internal/service/product/domain"
)

const serviceName = "product-service"

// 错误码是商品服务对外契约的一部分，配送服务依赖它们做类型化的失败归因。
const (
	codeNotFound          = "NOT_FOUND"
	codeInsufficientStock = "INSUFFICIENT_STOCK"
	codeInvalidQuantity   = "INVALID_QUANTITY"
	codeInternal          = "INTERNAL_ERROR"
)

// ProductHandler 封装了商品服务的 HTTP 处理器。
type ProductHandler struct {
	service *application.ProductApplicationService
}

// NewProductHandler 创建一个新的 HTTP 处理器实例。
func NewProductHandler(service *application.ProductApplicationService) *ProductHandler {
	return &ProductHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。
func (h *ProductHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/get_product", h.getProduct)
	mux.HandleFunc("/products", h.listProducts)
	mux.HandleFunc("/create_product", h.createProduct)
	mux.HandleFunc("/update_product", h.updateProduct)
	mux.HandleFunc("/delete_product", h.deleteProduct)
	mux.HandleFunc("/reduce_stock", h.reduceStock)
	mux.HandleFunc("/increase_stock", h.increaseStock)
	mux.HandleFunc("/store_stats", h.storeStats)
}

type productPayload struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
	CategoryID  string  `json:"categoryId"`
	IsAvailable bool    `json:"isAvailable"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
}

type errorBody struct {
	Code           string `json:"code"`
	Message        string `json:"message"`
	AvailableStock *int   `json:"availableStock,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type paginationPayload struct {
	CurrentPage     int   `json:"currentPage"`
	TotalPages      int   `json:"totalPages"`
	TotalItems      int64 `json:"totalItems"`
	HasNextPage     bool  `json:"hasNextPage"`
	HasPreviousPage bool  `json:"hasPreviousPage"`
}

func toProductPayload(p *domain.Product) productPayload {
	return productPayload{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
		CategoryID:  p.CategoryID,
		IsAvailable: p.IsAvailable(),
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339),
	}
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

func writeError(w http.ResponseWriter, status int, code, message string, available *int) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: message, AvailableStock: available}})
}

// writeStockError 把领域错误映射为类型化的错误响应。
func writeStockError(ctx context.Context, w http.ResponseWriter, err error) {
	var notFound *domain.NotFoundError
	var insufficient *domain.InsufficientStockError
	var invalidQty *domain.InvalidQuantityError

	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, codeNotFound, notFound.Error(), nil)
	case errors.As(err, &insufficient):
		available := insufficient.Available
		writeError(w, http.StatusConflict, codeInsufficientStock, insufficient.Error(), &available)
	case errors.As(err, &invalidQty):
		writeError(w, http.StatusBadRequest, codeInvalidQuantity, invalidQty.Error(), nil)
	default:
		logger.Ctx(ctx).Error().Err(err).Msg("unexpected stock operation failure")
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to process stock operation", nil)
	}
}

func (h *ProductHandler) startSpan(r *http.Request, name string) (context.Context, trace.Span) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	tracer := otel.Tracer(serviceName)
	return tracer.Start(ctx, name)
}

func (h *ProductHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "product-service.GetProduct")
	defer span.End()

	id := r.URL.Query().Get("productId")
	if id == "" {
		writeError(w, http.StatusBadRequest, codeInternal, "productId is required", nil)
		return
	}

	product, err := h.service.GetProduct(ctx, id)
	if err != nil {
		writeStockError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductPayload(product))
}

func (h *ProductHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "product-service.ListProducts")
	defer span.End()

	q := r.URL.Query()
	filter := domain.ListFilter{
		CategoryID: q.Get("categoryId"),
		InStock:    q.Get("inStock") == "true",
		Search:     q.Get("search"),
	}
	if v := q.Get("minPrice"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			filter.MinPrice = &f
		}
	}
	if v := q.Get("maxPrice"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			filter.MaxPrice = &f
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

	products, total, err := h.service.ListProducts(ctx, filter, domain.Page{Page: page, Limit: limit})
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to fetch products", nil)
		return
	}

	payloads := make([]productPayload, len(products))
	for i, p := range products {
		payloads[i] = toProductPayload(p)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"products":   payloads,
		"pagination": buildPagination(page, limit, total),
	})
}

type createProductRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
	CategoryID  string  `json:"categoryId"`
}

func (h *ProductHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "product-service.CreateProduct")
	defer span.End()

	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInternal, "invalid request body", nil)
		return
	}

	product, err := h.service.CreateProduct(ctx, req.Name, req.Description, req.Price, req.Stock, req.CategoryID)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInternal, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, toProductPayload(product))
}

type updateProductRequest struct {
	ID          string   `json:"id"`
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price"`
	CategoryID  *string  `json:"categoryId"`
}

func (h *ProductHandler) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "product-service.UpdateProduct")
	defer span.End()

	var req updateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, codeInternal, "invalid request body", nil)
		return
	}

	product, err := h.service.UpdateProduct(ctx, req.ID, req.Name, req.Description, req.Price, req.CategoryID)
	if err != nil {
		writeStockError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductPayload(product))
}

func (h *ProductHandler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "product-service.DeleteProduct")
	defer span.End()

	id := r.URL.Query().Get("productId")
	deleted, err := h.service.DeleteProduct(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to delete product", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (h *ProductHandler) reduceStock(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "product-service.ReduceStock")
	defer span.End()

	id := r.URL.Query().Get("productId")
	quantity, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if id == "" || err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidQuantity, "productId and a numeric quantity are required", nil)
		return
	}

	product, err := h.service.ReduceStock(ctx, id, quantity)
	if err != nil {
		writeStockError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductPayload(product))
}

func (h *ProductHandler) increaseStock(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "product-service.IncreaseStock")
	defer span.End()

	id := r.URL.Query().Get("productId")
	quantity, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if id == "" || err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidQuantity, "productId and a numeric quantity are required", nil)
		return
	}

	product, err := h.service.IncreaseStock(ctx, id, quantity)
	if err != nil {
		writeStockError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductPayload(product))
}

func (h *ProductHandler) storeStats(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "product-service.StoreStats")
	defer span.End()

	stats, err := h.service.StoreStats(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to fetch store stats", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"totalProducts":      stats.TotalProducts,
		"totalValue":         stats.TotalValue,
		"lowStockProducts":   stats.LowStockProducts,
		"outOfStockProducts": stats.OutOfStockProducts,
		"averagePrice":       stats.AveragePrice,
	})
}
