package service

import (
	"context"
	"strings"

	"github.com/rl1809/zlagoda/internal/core/domain"
	"github.com/rl1809/zlagoda/internal/port"
)

// CatalogService manages categories and the products store rows are stocked from.
type CatalogService struct {
	repo port.CatalogRepository
}

func NewCatalogService(repo port.CatalogRepository) *CatalogService {
	return &CatalogService{repo: repo}
}

func (s *CatalogService) GetCategory(ctx context.Context, number int64) (domain.Category, error) {
	if number <= 0 {
		return domain.Category{}, &domain.ValidationError{Field: "category_number", Message: "must be positive"}
	}
	return s.repo.GetCategory(ctx, number)
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *CatalogService) SaveCategory(ctx context.Context, c domain.Category) error {
	if err := c.Validate(); err != nil {
		return err
	}
	return s.repo.SaveCategory(ctx, c)
}

func (s *CatalogService) DeleteCategory(ctx context.Context, number int64) error {
	if number <= 0 {
		return &domain.ValidationError{Field: "category_number", Message: "must be positive"}
	}
	return s.repo.DeleteCategory(ctx, number)
}

func (s *CatalogService) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	if id <= 0 {
		return domain.Product{}, &domain.ValidationError{Field: "product_id", Message: "must be positive"}
	}
	return s.repo.GetProduct(ctx, id)
}

func (s *CatalogService) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	if filter.CategoryNumber < 0 {
		return nil, &domain.ValidationError{Field: "category_number", Message: "must be positive"}
	}
	filter.Search = strings.TrimSpace(filter.Search)
	return s.repo.ListProducts(ctx, filter)
}

// SaveProduct returns domain.ErrNotFound when the category is unknown.
func (s *CatalogService) SaveProduct(ctx context.Context, p domain.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.repo.SaveProduct(ctx, p)
}

func (s *CatalogService) DeleteProduct(ctx context.Context, id int64) error {
	if id <= 0 {
		return &domain.ValidationError{Field: "product_id", Message: "must be positive"}
	}
	return s.repo.DeleteProduct(ctx, id)
}
