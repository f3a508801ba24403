package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rl1809/zlagoda/internal/core/domain"
)

func (m *MemoryAdapter) GetCategory(_ context.Context, number int64) (domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[number]
	if !ok {
		return domain.Category{}, fmt.Errorf("category %d: %w", number, domain.ErrNotFound)
	}
	return c, nil
}

func (m *MemoryAdapter) ListCategories(_ context.Context) ([]domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Category, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Number < out[j].Number
	})
	return out, nil
}

func (m *MemoryAdapter) SaveCategory(_ context.Context, c domain.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[c.Number] = c
	return nil
}

func (m *MemoryAdapter) DeleteCategory(_ context.Context, number int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[number]; !ok {
		return fmt.Errorf("category %d: %w", number, domain.ErrNotFound)
	}
	for _, p := range m.products {
		if p.CategoryNumber == number {
			return fmt.Errorf("category %d still holds product %d: %w", number, p.ID, domain.ErrConflict)
		}
	}
	delete(m.categories, number)
	return nil
}

func (m *MemoryAdapter) GetProduct(_ context.Context, id int64) (domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return domain.Product{}, fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

// ListProducts orders by name, then id.
func (m *MemoryAdapter) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	search := strings.ToLower(filter.Search)
	out := make([]domain.Product, 0, len(m.products))
	for _, p := range m.products {
		if filter.CategoryNumber != 0 && p.CategoryNumber != filter.CategoryNumber {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryAdapter) SaveProduct(_ context.Context, p domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[p.CategoryNumber]; !ok {
		return fmt.Errorf("category %d: %w", p.CategoryNumber, domain.ErrNotFound)
	}
	m.products[p.ID] = p
	return nil
}

func (m *MemoryAdapter) DeleteProduct(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
	}
	for _, rows := range []map[string]*memRow{m.rows, m.pending} {
		for code, r := range rows {
			if r.rec.ProductID == id {
				return fmt.Errorf("product %d is stocked as %s: %w", id, code, domain.ErrConflict)
			}
		}
	}
	delete(m.products, id)
	return nil
}
