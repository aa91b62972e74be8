// internal/service/product/infrastructure/gorm_model.go
package infrastructure

import "time"

// ProductModel 对应数据库中的 products 表。
type ProductModel struct {
	ID          string  `gorm:"type:char(36);primaryKey"`
	Name        string  `gorm:"size:255;not null;index"`
	Description string  `gorm:"type:text;not null"`
	Price       float64 `gorm:"type:decimal(10,2);not null;index"`
	Stock       int     `gorm:"not null;default:0"`
	CategoryID  string  `gorm:"type:char(36);not null;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName 指定 GORM 应该使用的表名。
func (ProductModel) TableName() string {
	return "products"
}
