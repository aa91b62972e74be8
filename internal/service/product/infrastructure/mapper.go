// internal/service/product/infrastructure/mapper.go
package infrastructure

import "shopmesh/internal/service/product/domain"

// ToDomainProduct 将数据库模型转换为领域模型。
func ToDomainProduct(model *ProductModel) *domain.Product {
	if model == nil {
		return nil
	}
	return &domain.Product{
		ID:          model.ID,
		Name:        model.Name,
		Description: model.Description,
		Price:       model.Price,
		Stock:       model.Stock,
		CategoryID:  model.CategoryID,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

// FromDomainProduct 将领域模型转换为数据库模型。
func FromDomainProduct(product *domain.Product) *ProductModel {
	return &ProductModel{
		ID:          product.ID,
		Name:        product.Name,
		Description: product.Description,
		Price:       product.Price,
		Stock:       product.Stock,
		CategoryID:  product.CategoryID,
		CreatedAt:   product.CreatedAt,
		UpdatedAt:   product.UpdatedAt,
	}
}
