package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rl1809/zlagoda/internal/core/domain"
)

func (s *SQLAdapter) GetCategory(ctx context.Context, number int64) (domain.Category, error) {
	var c domain.Category
	err := s.db.QueryRowContext(ctx, s.d.rebind(`
		SELECT category_number, category_name FROM category WHERE category_number = ?`), number,
	).Scan(&c.Number, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Category{}, fmt.Errorf("category %d: %w", number, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Category{}, s.d.classify("query category", err)
	}
	return c, nil
}

func (s *SQLAdapter) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category_number, category_name FROM category ORDER BY category_name, category_number`)
	if err != nil {
		return nil, s.d.classify("list categories", err)
	}
	defer rows.Close()

	var out []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.Number, &c.Name); err != nil {
			return nil, s.d.classify("scan category", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLAdapter) SaveCategory(ctx context.Context, c domain.Category) error {
	_, err := s.db.ExecContext(ctx, s.d.rebind(s.d.upsertCategory), c.Number, c.Name)
	return s.d.classify("upsert category", err)
}

// DeleteCategory leans on the product foreign key to refuse a category still in use.
func (s *SQLAdapter) DeleteCategory(ctx context.Context, number int64) error {
	result, err := s.db.ExecContext(ctx, s.d.rebind(`DELETE FROM category WHERE category_number = ?`), number)
	return s.affectedOne(result, err, "delete category", fmt.Sprintf("category %d", number))
}

const productColumns = `product_id, category_number, product_name, producer, characteristics`

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.CategoryNumber, &p.Name, &p.Producer, &p.Characteristics)
	return p, err
}

func (s *SQLAdapter) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, s.d.rebind(`
		SELECT `+productColumns+` FROM product WHERE product_id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Product{}, s.d.classify("query product", err)
	}
	return p, nil
}

func (s *SQLAdapter) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	var (
		where []string
		args  []any
	)
	if filter.CategoryNumber != 0 {
		where = append(where, "category_number = ?")
		args = append(args, filter.CategoryNumber)
	}
	if filter.Search != "" {
		where = append(where, "LOWER(product_name) LIKE ?")
		args = append(args, likePattern(filter.Search))
	}

	query := `SELECT ` + productColumns + ` FROM product`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY product_name, product_id"

	rows, err := s.db.QueryContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return nil, s.d.classify("list products", err)
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, s.d.classify("scan product", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLAdapter) SaveProduct(ctx context.Context, p domain.Product) error {
	_, err := s.db.ExecContext(ctx, s.d.rebind(s.d.upsertProduct),
		p.ID, p.CategoryNumber, p.Name, p.Producer, p.Characteristics)
	return s.d.classify("upsert product", err)
}

// DeleteProduct refuses while a store product row still carries the id.
func (s *SQLAdapter) DeleteProduct(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.d.classify("begin tx", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx, s.d.rebind(`SELECT 1 FROM product WHERE product_id = ? FOR UPDATE`), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return s.d.classify("lock product", err)
	}

	var code string
	err = tx.QueryRowContext(ctx, s.d.rebind(`SELECT product_code FROM inventory WHERE product_id = ? LIMIT 1`), id).Scan(&code)
	switch {
	case err == nil:
		return fmt.Errorf("product %d is stocked as %s: %w", id, code, domain.ErrConflict)
	case !errors.Is(err, sql.ErrNoRows):
		return s.d.classify("query stocked product", err)
	}

	if _, err := tx.ExecContext(ctx, s.d.rebind(`DELETE FROM product WHERE product_id = ?`), id); err != nil {
		return s.d.classifyDelete("delete product", err)
	}
	return s.d.classify("commit", tx.Commit())
}
