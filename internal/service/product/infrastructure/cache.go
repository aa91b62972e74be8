// internal/service/product/infrastructure/cache.go
package infrastructure

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"time"

	"github.com/redis/go-redis/v9"

	"shopmesh/internal/pkg/logger"
	"shopmesh/internal/service/product/domain"
)

const productCacheTTL = 5 * time.Minute

// ProductCache 是商品读路径的 Redis 旁路缓存。
// 所有库存变更都会使对应条目失效，缓存只服务读查询，绝不参与扣减判断。
type ProductCache struct {
	client *redis.Client
}

// NewProductCache 创建商品缓存。client 为 nil 时缓存退化为直通。
func NewProductCache(client *redis.Client) *ProductCache {
	return &ProductCache{client: client}
}

func cacheKey(id string) string {
	return "product:" + id
}

// Get 返回缓存中的商品，未命中或缓存不可用时返回 (nil, false)。
func (c *ProductCache) Get(ctx context.Context, id string) (*domain.Product, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	data, err := c.client.Get(ctx, cacheKey(id)).Bytes()
	if err != nil {
		if !goerrors.Is(err, redis.Nil) {
			logger.Ctx(ctx).Warn().Err(err).Str("product_id", id).Msg("product cache read failed")
		}
		return nil, false
	}
	var product domain.Product
	if err := json.Unmarshal(data, &product); err != nil {
		return nil, false
	}
	return &product, true
}

// Set 写入商品缓存，失败只记录日志。
func (c *ProductCache) Set(ctx context.Context, product *domain.Product) {
	if c == nil || c.client == nil || product == nil {
		return
	}
	data, err := json.Marshal(product)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(product.ID), data, productCacheTTL).Err(); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("product_id", product.ID).Msg("product cache write failed")
	}
}

// Invalidate 删除商品缓存条目。
func (c *ProductCache) Invalidate(ctx context.Context, id string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, cacheKey(id)).Err(); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("product_id", id).Msg("product cache invalidation failed")
	}
}
