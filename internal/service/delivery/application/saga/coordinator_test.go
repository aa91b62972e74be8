// internal/service/delivery/application/saga/coordinator_test.go
package saga

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/trace/noop"

	"shopmesh/internal/service/delivery/domain/port"
)

type stockCall struct {
	productID string
	quantity  int
}

// fakeStock 是内存库存台账假实现，记录全部扣减和回加调用。
type fakeStock struct {
	mu       sync.Mutex
	products map[string]*port.ProductInfo

	// failReduceOnce 让指定商品的下一次扣减失败，模拟预检后的竞态
	failReduceOnce map[string]bool
	getErr         error
	increaseErr    error

	reduceCalls   []stockCall
	increaseCalls []stockCall
}

func newFakeStock(products ...*port.ProductInfo) *fakeStock {
	s := &fakeStock{
		products:       make(map[string]*port.ProductInfo),
		failReduceOnce: make(map[string]bool),
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *fakeStock) GetProduct(ctx context.Context, productID string) (*port.ProductInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	product, ok := s.products[productID]
	if !ok {
		return nil, nil
	}
	copied := *product
	return &copied, nil
}

func (s *fakeStock) ReduceStock(ctx context.Context, productID string, quantity int) port.ReservationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reduceCalls = append(s.reduceCalls, stockCall{productID, quantity})

	product, ok := s.products[productID]
	if !ok {
		return port.ReservationResult{
			ProductID:      productID,
			RemainingStock: port.RemainingStockUnknown,
			FailureCode:    port.FailureNotFound,
			Reason:         "Product not found",
		}
	}
	if s.failReduceOnce[productID] {
		s.failReduceOnce[productID] = false
		return port.ReservationResult{
			ProductID:      productID,
			ProductName:    product.Name,
			RemainingStock: product.Stock,
			FailureCode:    port.FailureInsufficientStock,
			Reason:         "lost race",
		}
	}
	if product.Stock < quantity {
		return port.ReservationResult{
			ProductID:      productID,
			ProductName:    product.Name,
			RemainingStock: product.Stock,
			FailureCode:    port.FailureInsufficientStock,
			Reason:         "Insufficient stock",
		}
	}
	product.Stock -= quantity
	return port.ReservationResult{
		ProductID:      productID,
		ProductName:    product.Name,
		Success:        true,
		RemainingStock: product.Stock,
	}
}

func (s *fakeStock) IncreaseStock(ctx context.Context, productID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.increaseCalls = append(s.increaseCalls, stockCall{productID, quantity})
	if s.increaseErr != nil {
		return s.increaseErr
	}
	if product, ok := s.products[productID]; ok {
		product.Stock += quantity
	}
	return nil
}

func (s *fakeStock) stockOf(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[productID].Stock
}

func newTestCoordinator(stock port.StockService, strategy Strategy) *Coordinator {
	return NewCoordinator(stock, noop.NewTracerProvider().Tracer("test"), strategy)
}

func TestParseStrategy(t *testing.T) {
	for _, valid := range []string{"optimistic", "validate_first"} {
		if _, err := ParseStrategy(valid); err != nil {
			t.Errorf("ParseStrategy(%q) = %v, want nil", valid, err)
		}
	}
	if _, err := ParseStrategy("yolo"); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestValidateFirstFailureLeavesNoMutations(t *testing.T) {
	stock := newFakeStock(
		&port.ProductInfo{ID: "p-1", Name: "Widget", Stock: 5},
		&port.ProductInfo{ID: "p-2", Name: "Gadget", Stock: 1},
	)
	coordinator := newTestCoordinator(stock, StrategyValidateFirst)

	outcome := coordinator.Reserve(context.Background(), []LineItem{
		{ProductID: "p-1", Quantity: 2},
		{ProductID: "p-2", Quantity: 3},
	})

	if outcome.Success {
		t.Fatal("expected reservation to fail")
	}
	if len(stock.reduceCalls) != 0 {
		t.Fatalf("preflight failure must not trigger any reduction, got %v", stock.reduceCalls)
	}
	if stock.stockOf("p-1") != 5 || stock.stockOf("p-2") != 1 {
		t.Error("stock levels must be untouched")
	}
	if len(outcome.Reductions) != 0 {
		t.Errorf("Reductions must be empty on failure, got %v", outcome.Reductions)
	}

	// 失败聚合上报: 两个行项都要有结果，本身有效的行项标记为被取消
	if len(outcome.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(outcome.Results))
	}
	byID := make(map[string]port.ReservationResult)
	for _, r := range outcome.Results {
		byID[r.ProductID] = r
	}
	if byID["p-2"].FailureCode != port.FailureInsufficientStock {
		t.Errorf("p-2 failure code = %s, want INSUFFICIENT_STOCK", byID["p-2"].FailureCode)
	}
	if byID["p-2"].RemainingStock != 1 {
		t.Errorf("p-2 remaining stock = %d, want 1", byID["p-2"].RemainingStock)
	}
	if byID["p-1"].FailureCode != port.FailureCancelled {
		t.Errorf("p-1 failure code = %s, want CANCELLED", byID["p-1"].FailureCode)
	}
}

func TestValidateFirstSuccess(t *testing.T) {
	stock := newFakeStock(
		&port.ProductInfo{ID: "p-1", Name: "Widget", Stock: 5},
		&port.ProductInfo{ID: "p-2", Name: "Gadget", Stock: 3},
	)
	coordinator := newTestCoordinator(stock, StrategyValidateFirst)

	outcome := coordinator.Reserve(context.Background(), []LineItem{
		{ProductID: "p-1", Quantity: 2},
		{ProductID: "p-2", Quantity: 3},
	})

	if !outcome.Success {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if stock.stockOf("p-1") != 3 || stock.stockOf("p-2") != 0 {
		t.Errorf("stock = p-1:%d p-2:%d, want 3 and 0", stock.stockOf("p-1"), stock.stockOf("p-2"))
	}
	if len(outcome.Reductions) != 2 {
		t.Errorf("Reductions = %v, want both items", outcome.Reductions)
	}
	if len(stock.increaseCalls) != 0 {
		t.Errorf("no compensation expected, got %v", stock.increaseCalls)
	}
	// 扣减按调用方给定的顺序执行
	if stock.reduceCalls[0].productID != "p-1" || stock.reduceCalls[1].productID != "p-2" {
		t.Errorf("reduction order = %v, want p-1 then p-2", stock.reduceCalls)
	}
}

func TestValidateFirstCompensatesOnRaceLoss(t *testing.T) {
	stock := newFakeStock(
		&port.ProductInfo{ID: "p-1", Name: "Widget", Stock: 5},
		&port.ProductInfo{ID: "p-2", Name: "Gadget", Stock: 3},
	)
	// 预检能通过，但 p-2 的扣减输给并发订单
	stock.failReduceOnce["p-2"] = true
	coordinator := newTestCoordinator(stock, StrategyValidateFirst)

	outcome := coordinator.Reserve(context.Background(), []LineItem{
		{ProductID: "p-1", Quantity: 2},
		{ProductID: "p-2", Quantity: 3},
	})

	if outcome.Success {
		t.Fatal("expected failure after losing the race")
	}
	if len(stock.increaseCalls) != 1 || stock.increaseCalls[0] != (stockCall{"p-1", 2}) {
		t.Fatalf("compensation calls = %v, want exactly one for p-1 qty 2", stock.increaseCalls)
	}
	if stock.stockOf("p-1") != 5 {
		t.Errorf("p-1 stock = %d, want restored to 5", stock.stockOf("p-1"))
	}
}

func TestValidateFirstTransportFailure(t *testing.T) {
	stock := newFakeStock(&port.ProductInfo{ID: "p-1", Name: "Widget", Stock: 5})
	stock.getErr = errors.New("connection refused")
	coordinator := newTestCoordinator(stock, StrategyValidateFirst)

	outcome := coordinator.Reserve(context.Background(), []LineItem{{ProductID: "p-1", Quantity: 1}})

	if outcome.Success {
		t.Fatal("expected failure on transport error")
	}
	if outcome.Results[0].FailureCode != port.FailureTransport {
		t.Errorf("failure code = %s, want TRANSPORT_FAILURE", outcome.Results[0].FailureCode)
	}
	if len(stock.reduceCalls) != 0 {
		t.Error("transport failure in preflight must not trigger reductions")
	}
}

func TestValidateFirstUnknownProduct(t *testing.T) {
	stock := newFakeStock(&port.ProductInfo{ID: "p-1", Name: "Widget", Stock: 5})
	coordinator := newTestCoordinator(stock, StrategyValidateFirst)

	outcome := coordinator.Reserve(context.Background(), []LineItem{
		{ProductID: "p-1", Quantity: 1},
		{ProductID: "ghost", Quantity: 1},
	})

	if outcome.Success {
		t.Fatal("expected failure for unknown product")
	}
	byID := make(map[string]port.ReservationResult)
	for _, r := range outcome.Results {
		byID[r.ProductID] = r
	}
	if byID["ghost"].FailureCode != port.FailureNotFound {
		t.Errorf("ghost failure code = %s, want NOT_FOUND", byID["ghost"].FailureCode)
	}
}

func TestOptimisticCompensatesSuccessfulReductions(t *testing.T) {
	stock := newFakeStock(
		&port.ProductInfo{ID: "p-1", Name: "Widget", Stock: 5},
		&port.ProductInfo{ID: "p-2", Name: "Gadget", Stock: 1},
	)
	coordinator := newTestCoordinator(stock, StrategyOptimistic)

	outcome := coordinator.Reserve(context.Background(), []LineItem{
		{ProductID: "p-1", Quantity: 2},
		{ProductID: "p-2", Quantity: 3},
	})

	if outcome.Success {
		t.Fatal("expected failure")
	}
	// 乐观策略会先扣掉 p-1，失败后必须恰好补偿一次
	if len(stock.increaseCalls) != 1 || stock.increaseCalls[0] != (stockCall{"p-1", 2}) {
		t.Fatalf("compensation calls = %v, want exactly one for p-1 qty 2", stock.increaseCalls)
	}
	if stock.stockOf("p-1") != 5 {
		t.Errorf("p-1 stock = %d, want restored to 5", stock.stockOf("p-1"))
	}
}

func TestCompensationFailureDoesNotPanic(t *testing.T) {
	stock := newFakeStock(
		&port.ProductInfo{ID: "p-1", Name: "Widget", Stock: 5},
		&port.ProductInfo{ID: "p-2", Name: "Gadget", Stock: 1},
	)
	stock.increaseErr = errors.New("stock service down")
	coordinator := newTestCoordinator(stock, StrategyOptimistic)

	outcome := coordinator.Reserve(context.Background(), []LineItem{
		{ProductID: "p-1", Quantity: 2},
		{ProductID: "p-2", Quantity: 3},
	})

	// 补偿失败只记录，不改变整体结果
	if outcome.Success {
		t.Fatal("expected failure outcome to stand")
	}
	if len(stock.increaseCalls) != 1 {
		t.Errorf("compensation attempts = %d, want 1 (no retry)", len(stock.increaseCalls))
	}
}
