// internal/service/delivery/application/saga/coordinator.go
package saga

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"shopmesh/internal/pkg/logger"
	"shopmesh/internal/service/delivery/domain/port"
)

// Strategy 选择库存预留的执行策略。
type Strategy string

const (
	// StrategyOptimistic 先逐项扣减，失败后再回滚已成功的扣减。
	StrategyOptimistic Strategy = "optimistic"
	// StrategyValidateFirst 先做只读预检，全部通过后才开始扣减。
	// 预检失败时零变更，补偿窗口最小，错误归因也更准确，是默认策略。
	StrategyValidateFirst Strategy = "validate_first"
)

// ParseStrategy 校验配置中的策略名。
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyOptimistic, StrategyValidateFirst:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown saga strategy: %q", s)
}

// LineItem 是一次预留请求中的一个行项。
type LineItem struct {
	ProductID string
	Quantity  int
}

// Outcome 聚合整次 Saga 的结果。
// 失败是聚合上报的: 调用方拿到的是所有行项的完整结果，而不止第一个失败。
type Outcome struct {
	Success     bool
	Results     []port.ReservationResult
	FailedItems []string
	// Reductions 是实际生效的扣减。整体失败时补偿已经执行，这里为空。
	Reductions []LineItem
}

// Coordinator 在多个行项上编排 校验 -> 扣减 -> 提交或补偿 的 Saga。
// 没有跨服务事务可用，一致性靠台账侧的原子条件扣减加调用侧的补偿达成。
type Coordinator struct {
	stock    port.StockService
	tracer   trace.Tracer
	strategy Strategy
}

// NewCoordinator 创建协调器，库存端口通过构造器显式注入。
func NewCoordinator(stock port.StockService, tracer trace.Tracer, strategy Strategy) *Coordinator {
	return &Coordinator{stock: stock, tracer: tracer, strategy: strategy}
}

// Reserve 按配置的策略为一组行项预留库存。
// 行项严格按调用方给定的顺序扣减，补偿顺序与之相同。
func (c *Coordinator) Reserve(ctx context.Context, items []LineItem) Outcome {
	sagaAttempts.WithLabelValues(string(c.strategy)).Inc()
	switch c.strategy {
	case StrategyOptimistic:
		return c.reserveOptimistic(ctx, items)
	default:
		return c.reserveValidateFirst(ctx, items)
	}
}

// reserveOptimistic 实现先扣减后回滚的策略:
// 逐项扣减并收集结果，任何一项失败就补偿所有已成功的扣减。
func (c *Coordinator) reserveOptimistic(ctx context.Context, items []LineItem) Outcome {
	ctx, span := c.tracer.Start(ctx, "saga.ReserveStock")
	defer span.End()
	span.SetAttributes(
		attribute.String("saga.strategy", string(StrategyOptimistic)),
		attribute.Int("saga.items", len(items)),
	)

	results := make([]port.ReservationResult, 0, len(items))
	var reductions []LineItem
	var failed []string

	for _, item := range items {
		result := c.stock.ReduceStock(ctx, item.ProductID, item.Quantity)
		results = append(results, result)
		if result.Success {
			reductions = append(reductions, item)
		} else {
			failed = append(failed, item.ProductID)
		}
	}

	if len(failed) == 0 {
		span.AddEvent("All stock reductions successful")
		return Outcome{Success: true, Results: results, Reductions: reductions}
	}

	span.SetStatus(codes.Error, "Stock reservation failed, compensating")
	sagaFailures.WithLabelValues(string(StrategyOptimistic), "reduce").Inc()
	logger.Ctx(ctx).Warn().
		Int("failed_items", len(failed)).
		Int("to_compensate", len(reductions)).
		Msg("stock reservation failed, rolling back successful reductions")
	c.Compensate(ctx, reductions)

	return Outcome{Success: false, Results: results, FailedItems: failed}
}

// reserveValidateFirst 实现先校验后扣减的策略。
func (c *Coordinator) reserveValidateFirst(ctx context.Context, items []LineItem) Outcome {
	ctx, span := c.tracer.Start(ctx, "saga.ReserveStock")
	defer span.End()
	span.SetAttributes(
		attribute.String("saga.strategy", string(StrategyValidateFirst)),
		attribute.Int("saga.items", len(items)),
	)

	// 阶段 1: 只读预检，任何一项不通过就整单中止，此时零变更。
	results, failed := c.preflight(ctx, items)
	if len(failed) > 0 {
		span.SetStatus(codes.Error, "Preflight validation failed")
		sagaFailures.WithLabelValues(string(StrategyValidateFirst), "preflight").Inc()
		// 本身有效的行项标记为因同单其他行项失败而取消
		for i := range results {
			if results[i].Success {
				results[i] = port.ReservationResult{
					ProductID:      results[i].ProductID,
					ProductName:    results[i].ProductName,
					Success:        false,
					RemainingStock: results[i].RemainingStock,
					FailureCode:    port.FailureCancelled,
					Reason:         "cancelled due to other item failures",
				}
			}
		}
		return Outcome{Success: false, Results: results, FailedItems: failed}
	}
	span.AddEvent("Preflight validation passed for all items")

	// 阶段 2: 顺序扣减。预检通过后仍可能和并发订单竞争失败。
	results = results[:0]
	var reductions []LineItem
	failed = failed[:0]
	for _, item := range items {
		result := c.stock.ReduceStock(ctx, item.ProductID, item.Quantity)
		results = append(results, result)
		if result.Success {
			reductions = append(reductions, item)
		} else {
			failed = append(failed, item.ProductID)
		}
	}

	if len(failed) == 0 {
		span.AddEvent("All stock reductions successful")
		return Outcome{Success: true, Results: results, Reductions: reductions}
	}

	// 阶段 3: 预检后的竞态失败，按与乐观策略相同的方式补偿。
	span.SetStatus(codes.Error, "Reduction failed after preflight, compensating")
	sagaFailures.WithLabelValues(string(StrategyValidateFirst), "reduce").Inc()
	logger.Ctx(ctx).Warn().
		Int("failed_items", len(failed)).
		Int("to_compensate", len(reductions)).
		Msg("reduction lost race after preflight, rolling back")
	c.Compensate(ctx, reductions)

	return Outcome{Success: false, Results: results, FailedItems: failed}
}

// preflight 并发地对每个行项做只读校验。校验互不影响且无副作用，
// 可以安全并行; 扣减必须保持串行以维持既定的补偿语义。
func (c *Coordinator) preflight(ctx context.Context, items []LineItem) ([]port.ReservationResult, []string) {
	ctx, span := c.tracer.Start(ctx, "saga.PreflightValidation")
	defer span.End()

	results := make([]port.ReservationResult, len(items))
	g, gctx := errgroup.WithContext(ctx)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			results[i] = c.validateItem(gctx, item)
			return nil
		})
	}
	g.Wait()

	var failed []string
	for _, r := range results {
		if !r.Success {
			failed = append(failed, r.ProductID)
		}
	}
	return results, failed
}

func (c *Coordinator) validateItem(ctx context.Context, item LineItem) port.ReservationResult {
	product, err := c.stock.GetProduct(ctx, item.ProductID)
	switch {
	case err != nil:
		return port.ReservationResult{
			ProductID:      item.ProductID,
			RemainingStock: port.RemainingStockUnknown,
			FailureCode:    port.FailureTransport,
			Reason:         err.Error(),
		}
	case product == nil:
		return port.ReservationResult{
			ProductID:      item.ProductID,
			RemainingStock: port.RemainingStockUnknown,
			FailureCode:    port.FailureNotFound,
			Reason:         "Product not found",
		}
	case product.Stock < item.Quantity:
		return port.ReservationResult{
			ProductID:      item.ProductID,
			ProductName:    product.Name,
			RemainingStock: product.Stock,
			FailureCode:    port.FailureInsufficientStock,
			Reason: fmt.Sprintf("Insufficient stock for product '%s'. Requested: %d, Available: %d",
				product.Name, item.Quantity, product.Stock),
		}
	default:
		return port.ReservationResult{
			ProductID:      item.ProductID,
			ProductName:    product.Name,
			Success:        true,
			RemainingStock: product.Stock,
		}
	}
}

// Compensate 为每个已生效的扣减发起恰好一次回加。
// 补偿失败只记录并计数，不改变整体结果——整单已经失败，
// 原始失败原因不能被补偿错误掩盖。
func (c *Coordinator) Compensate(ctx context.Context, reductions []LineItem) {
	if len(reductions) == 0 {
		return
	}
	ctx, span := c.tracer.Start(ctx, "saga.compensation.RestoreStock")
	defer span.End()
	span.SetAttributes(attribute.Int("saga.compensations", len(reductions)))

	for _, item := range reductions {
		sagaCompensations.Inc()

		// 回加前读一次当前库存，留下补偿前后的审计线索
		if product, err := c.stock.GetProduct(ctx, item.ProductID); err == nil && product != nil {
			logger.Ctx(ctx).Info().
				Str("product_id", item.ProductID).
				Int("current_stock", product.Stock).
				Int("restoring", item.Quantity).
				Msg("restoring stock")
		}

		if err := c.stock.IncreaseStock(ctx, item.ProductID, item.Quantity); err != nil {
			sagaCompensationFailures.Inc()
			span.RecordError(err)
			logger.Ctx(ctx).Error().Err(err).
				Str("product_id", item.ProductID).
				Int("quantity", item.Quantity).
				Msg("failed to restore stock during compensation, manual intervention may be required")
		}
	}
}
