// internal/service/delivery/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	goerrors "errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"shopmesh/internal/service/delivery/domain"
)

// GormDeliveryRepository 是 DeliveryRepository 的 GORM 实现。
type GormDeliveryRepository struct {
	db *gorm.DB
}

// NewGormDeliveryRepository 创建一个新的 GORM 仓储实例。
func NewGormDeliveryRepository(db *gorm.DB) *GormDeliveryRepository {
	return &GormDeliveryRepository{db: db}
}

// translateDuplicate 把 MySQL 1062 唯一约束冲突翻译为领域哨兵错误。
// 依据冲突报错中的索引名区分是订单幂等守卫还是运单号撞号。
func translateDuplicate(err error) error {
	var mysqlErr *mysql.MySQLError
	if goerrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		switch {
		case strings.Contains(mysqlErr.Message, "uk_deliveries_order_id"):
			return domain.ErrDuplicateOrder
		case strings.Contains(mysqlErr.Message, "uk_deliveries_tracking_number"):
			return domain.ErrDuplicateTracking
		}
	}
	return err
}

func (r *GormDeliveryRepository) Create(ctx context.Context, delivery *domain.Delivery) error {
	model, err := FromDomainDelivery(delivery)
	if err != nil {
		return errors.Wrap(err, "failed to encode delivery items")
	}
	// 本地事务只包配送聚合自身的写入，远端库存变更不在事务边界内
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(model).Error
	})
	if err != nil {
		if translated := translateDuplicate(err); translated != err {
			return translated
		}
		return errors.Wrap(err, "failed to create delivery")
	}
	return nil
}

func (r *GormDeliveryRepository) Save(ctx context.Context, delivery *domain.Delivery) error {
	model, err := FromDomainDelivery(delivery)
	if err != nil {
		return errors.Wrap(err, "failed to encode delivery items")
	}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Save(model).Error
	})
	if err != nil {
		if translated := translateDuplicate(err); translated != err {
			return translated
		}
		return errors.Wrap(err, "failed to save delivery")
	}
	return nil
}

func (r *GormDeliveryRepository) FindByID(ctx context.Context, id string) (*domain.Delivery, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *GormDeliveryRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.Delivery, error) {
	return r.findOne(ctx, "order_id = ?", orderID)
}

func (r *GormDeliveryRepository) FindByTrackingNumber(ctx context.Context, trackingNumber string) (*domain.Delivery, error) {
	return r.findOne(ctx, "tracking_number = ?", trackingNumber)
}

func (r *GormDeliveryRepository) findOne(ctx context.Context, query string, arg string) (*domain.Delivery, error) {
	var model DeliveryModel
	err := r.db.WithContext(ctx).Where(query, arg).First(&model).Error
	if err != nil {
		if goerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrDeliveryNotFound
		}
		return nil, errors.Wrap(err, "failed to find delivery")
	}
	return ToDomainDelivery(&model), nil
}

func (r *GormDeliveryRepository) FindAll(ctx context.Context, filter domain.ListFilter, page domain.Page) ([]*domain.Delivery, int64, error) {
	query := r.db.WithContext(ctx).Model(&DeliveryModel{})

	if filter.Status != nil {
		query = query.Where("status = ?", string(*filter.Status))
	}
	if filter.CustomerName != "" {
		query = query.Where("customer_name LIKE ?", "%"+filter.CustomerName+"%")
	}
	if filter.DateFrom != nil {
		query = query.Where("created_at >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("created_at <= ?", *filter.DateTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "failed to count deliveries")
	}

	var models []*DeliveryModel
	offset := (page.Page - 1) * page.Limit
	err := query.Order("created_at DESC").Limit(page.Limit).Offset(offset).Find(&models).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list deliveries")
	}

	deliveries := make([]*domain.Delivery, len(models))
	for i, m := range models {
		deliveries[i] = ToDomainDelivery(m)
	}
	return deliveries, total, nil
}

// Stats 按生命周期阶段聚合各状态桶的数量。
func (r *GormDeliveryRepository) Stats(ctx context.Context) (*domain.Stats, error) {
	var stats domain.Stats
	buckets := []struct {
		dest  *int64
		query *gorm.DB
	}{
		{&stats.TotalDeliveries, r.db.WithContext(ctx).Model(&DeliveryModel{})},
		{&stats.PendingDeliveries, r.db.WithContext(ctx).Model(&DeliveryModel{}).
			Where("status = ?", string(domain.StatusPending))},
		{&stats.InProgressDeliveries, r.db.WithContext(ctx).Model(&DeliveryModel{}).
			Where("status IN ?", []string{
				string(domain.StatusConfirmed),
				string(domain.StatusPacked),
				string(domain.StatusShipped),
				string(domain.StatusInTransit),
				string(domain.StatusOutForDelivery),
			})},
		{&stats.CompletedDeliveries, r.db.WithContext(ctx).Model(&DeliveryModel{}).
			Where("status = ?", string(domain.StatusDelivered))},
		{&stats.FailedDeliveries, r.db.WithContext(ctx).Model(&DeliveryModel{}).
			Where("status IN ?", []string{string(domain.StatusFailed), string(domain.StatusReturned)})},
	}
	for _, b := range buckets {
		if err := b.query.Count(b.dest).Error; err != nil {
			return nil, errors.Wrap(err, "failed to aggregate delivery stats")
		}
	}
	return &stats, nil
}
