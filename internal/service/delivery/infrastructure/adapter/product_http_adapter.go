// internal/service/delivery/infrastructure/adapter/product_http_adapter.go
package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"shopmesh/internal/pkg/httpclient"
	"shopmesh/internal/pkg/logger"
	"shopmesh/internal/service/delivery/domain/port"
)

const productServiceName = "product-service"

// stockPayload 同时容纳商品服务的成功体和错误信封，按状态码取用。
type stockPayload struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Stock int     `json:"stock"`
	Error *struct {
		Code           string `json:"code"`
		Message        string `json:"message"`
		AvailableStock *int   `json:"availableStock"`
	} `json:"error"`
}

// ProductHTTPAdapter 通过 HTTP 访问商品服务，实现 StockService 端口。
// 每次远端调用都带独立超时，慢响应不会拖垮整个 Saga。
type ProductHTTPAdapter struct {
	client  *httpclient.Client
	timeout time.Duration
}

// NewProductHTTPAdapter 创建适配器。timeout 是单次远端调用的上限。
func NewProductHTTPAdapter(client *httpclient.Client, timeout time.Duration) *ProductHTTPAdapter {
	return &ProductHTTPAdapter{client: client, timeout: timeout}
}

func (a *ProductHTTPAdapter) GetProduct(ctx context.Context, productID string) (*port.ProductInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	params := url.Values{"productId": {productID}}
	var payload stockPayload
	status, err := a.client.CallJSON(ctx, http.MethodGet, productServiceName, "/get_product", params, &payload)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusOK:
		return &port.ProductInfo{
			ID:    payload.ID,
			Name:  payload.Name,
			Price: payload.Price,
			Stock: payload.Stock,
		}, nil
	case status == http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("product service returned status %d: %s", status, payload.errorMessage())
	}
}

// ReduceStock 对远端台账发起恰好一次扣减调用。
// 契约要求从不返回 error: 传输失败折叠成 TRANSPORT_FAILURE 结果，
// 也绝不重试，重试会让非幂等的扣减二次生效。
func (a *ProductHTTPAdapter) ReduceStock(ctx context.Context, productID string, quantity int) port.ReservationResult {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	params := url.Values{
		"productId": {productID},
		"quantity":  {strconv.Itoa(quantity)},
	}
	var payload stockPayload
	status, err := a.client.CallJSON(ctx, http.MethodPost, productServiceName, "/reduce_stock", params, &payload)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("product_id", productID).
			Int("quantity", quantity).
			Msg("stock reduction call failed at transport level")
		return port.ReservationResult{
			ProductID:      productID,
			RemainingStock: port.RemainingStockUnknown,
			FailureCode:    port.FailureTransport,
			Reason:         fmt.Sprintf("stock service unreachable: %v", err),
		}
	}

	if status == http.StatusOK {
		return port.ReservationResult{
			ProductID:      productID,
			ProductName:    payload.Name,
			Success:        true,
			RemainingStock: payload.Stock,
		}
	}

	result := port.ReservationResult{
		ProductID:      productID,
		RemainingStock: port.RemainingStockUnknown,
		FailureCode:    port.FailureTransport,
		Reason:         payload.errorMessage(),
	}
	if payload.Error != nil {
		switch payload.Error.Code {
		case string(port.FailureNotFound):
			result.FailureCode = port.FailureNotFound
		case string(port.FailureInsufficientStock):
			result.FailureCode = port.FailureInsufficientStock
			if payload.Error.AvailableStock != nil {
				result.RemainingStock = *payload.Error.AvailableStock
			}
		case string(port.FailureInvalidQuantity):
			result.FailureCode = port.FailureInvalidQuantity
		}
	}
	return result
}

func (a *ProductHTTPAdapter) IncreaseStock(ctx context.Context, productID string, quantity int) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	params := url.Values{
		"productId": {productID},
		"quantity":  {strconv.Itoa(quantity)},
	}
	var payload stockPayload
	status, err := a.client.CallJSON(ctx, http.MethodPost, productServiceName, "/increase_stock", params, &payload)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("failed to increase stock for product '%s': %s", productID, payload.errorMessage())
	}
	return nil
}

func (p *stockPayload) errorMessage() string {
	if p.Error != nil && p.Error.Message != "" {
		return p.Error.Message
	}
	return "unexpected response from product service"
}
