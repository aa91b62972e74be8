// internal/service/delivery/domain/port/stock.go
package port

import "context"

// ProductInfo 是配送服务视角下的商品信息，真实数据由商品服务持有。
type ProductInfo struct {
	ID    string
	Name  string
	Price float64
	Stock int
}

// FailureCode 对远端库存操作的失败做类型化归因。
type FailureCode string

const (
	FailureNone              FailureCode = ""
	FailureNotFound          FailureCode = "NOT_FOUND"
	FailureInsufficientStock FailureCode = "INSUFFICIENT_STOCK"
	FailureInvalidQuantity   FailureCode = "INVALID_QUANTITY"
	FailureTransport         FailureCode = "TRANSPORT_FAILURE"
	// FailureCancelled 标记本身有效、但因同单其他行项失败而未执行的行项。
	FailureCancelled FailureCode = "CANCELLED"
)

// RemainingStockUnknown 表示失败时无法得知对端的可用库存。
const RemainingStockUnknown = -1

// ReservationResult 描述一个行项一次预留尝试的结果。
type ReservationResult struct {
	ProductID   string
	ProductName string // 已知时填充，用于拼装更友好的错误信息
	Success     bool
	// RemainingStock 成功时是扣减后的剩余库存;
	// 失败时如果能拿到对端的可用库存 (如库存不足) 则为该值，否则为 RemainingStockUnknown。
	RemainingStock int
	FailureCode    FailureCode
	Reason         string
}

// StockService 是远端库存台账的出站端口，由 HTTP 适配器实现。
// 通过构造器注入协调器，测试时可替换为内存假实现。
type StockService interface {
	// GetProduct 只读查询。商品不存在时返回 (nil, nil)，error 只代表传输层失败。
	GetProduct(ctx context.Context, productID string) (*ProductInfo, error)
	// ReduceStock 对一个行项执行恰好一次远端扣减调用，从不返回 error:
	// 所有传输和业务失败都折叠进结果里。扣减不幂等，这里也绝不自动重试。
	ReduceStock(ctx context.Context, productID string, quantity int) ReservationResult
	// IncreaseStock 回加库存，仅用于补偿。对每次成功扣减至多调用一次。
	IncreaseStock(ctx context.Context, productID string, quantity int) error
}
