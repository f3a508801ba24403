package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/rl1809/zlagoda/internal/core/domain"
	"github.com/rl1809/zlagoda/internal/port"
)

type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// LockTimeout becomes innodb_lock_wait_timeout on every MySQL connection
	LockTimeout time.Duration
}

// Open connects to mysql or postgres and verifies the connection.
func Open(ctx context.Context, driver, dsn string, opts PoolOptions) (*sql.DB, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	if d.name == DriverMySQL {
		if dsn, err = withLockWaitTimeout(dsn, opts.LockTimeout); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(d.sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

type SQLAdapter struct {
	db          *sql.DB
	d           dialect
	lockTimeout time.Duration
}

var (
	_ port.Transactor          = (*SQLAdapter)(nil)
	_ port.InventoryRepository = (*SQLAdapter)(nil)
	_ port.ReceiptRepository   = (*SQLAdapter)(nil)
	_ port.CatalogRepository   = (*SQLAdapter)(nil)
	_ port.OutboxRepository    = (*SQLAdapter)(nil)
)

func NewSQLAdapter(db *sql.DB, driver string, lockTimeout time.Duration) (*SQLAdapter, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	return &SQLAdapter{db: db, d: d, lockTimeout: lockTimeout}, nil
}

func (s *SQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range s.d.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLAdapter) Begin(ctx context.Context) (port.UnitOfWork, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, s.d.classify("begin tx", err)
	}

	if stmt := s.d.lockTimeoutStmt(s.lockTimeout); stmt != "" {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return nil, s.d.classify("set lock timeout", err)
		}
	}

	return &sqlUnitOfWork{tx: tx, d: s.d}, nil
}

const inventoryColumns = `product_code, product_id, unit_price, quantity, promo_flag, promo_code, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInventory(row rowScanner) (domain.InventoryRecord, error) {
	var (
		rec   domain.InventoryRecord
		promo sql.NullString
	)
	err := row.Scan(&rec.ProductCode, &rec.ProductID, &rec.UnitPrice, &rec.Quantity,
		&rec.Promotional, &promo, &rec.UpdatedAt)
	if err != nil {
		return domain.InventoryRecord{}, err
	}
	if promo.Valid {
		rec.PromoCode = &promo.String
	}
	return rec, nil
}

func (s *SQLAdapter) GetInventory(ctx context.Context, productCode string) (domain.InventoryRecord, error) {
	rec, err := scanInventory(s.db.QueryRowContext(ctx, s.d.rebind(`
		SELECT `+inventoryColumns+` FROM inventory WHERE product_code = ?`), productCode))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.InventoryRecord{}, fmt.Errorf("product %s: %w", productCode, domain.ErrNotFound)
	}
	if err != nil {
		return domain.InventoryRecord{}, s.d.classify("query inventory", err)
	}
	return rec, nil
}

func (s *SQLAdapter) ListInventory(ctx context.Context, filter domain.InventoryFilter) ([]domain.InventoryListing, error) {
	query := `
		SELECT i.product_code, i.product_id, i.unit_price, i.quantity, i.promo_flag, i.promo_code, i.updated_at,
			COALESCE(p.product_name, '')
		FROM inventory i LEFT JOIN product p ON p.product_id = i.product_id`
	var args []any
	if filter.Promotional != nil {
		query += " WHERE i.promo_flag = ?"
		args = append(args, *filter.Promotional)
	}
	switch filter.SortBy {
	case domain.SortByName:
		query += " ORDER BY COALESCE(p.product_name, ''), i.product_code"
	case domain.SortByQuantity:
		query += " ORDER BY i.quantity DESC, i.product_code"
	default:
		query += " ORDER BY i.product_code"
	}

	rows, err := s.db.QueryContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return nil, s.d.classify("list inventory", err)
	}
	defer rows.Close()

	var out []domain.InventoryListing
	for rows.Next() {
		var (
			l     domain.InventoryListing
			promo sql.NullString
		)
		err := rows.Scan(&l.ProductCode, &l.ProductID, &l.UnitPrice, &l.Quantity,
			&l.Promotional, &promo, &l.UpdatedAt, &l.ProductName)
		if err != nil {
			return nil, s.d.classify("scan inventory", err)
		}
		if promo.Valid {
			l.PromoCode = &promo.String
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *SQLAdapter) SaveInventory(ctx context.Context, rec domain.InventoryRecord) error {
	_, err := s.db.ExecContext(ctx, s.d.rebind(s.d.upsertInventory),
		rec.ProductCode, rec.ProductID, rec.UnitPrice, rec.Quantity, rec.Promotional, rec.PromoCode)
	if err != nil {
		return s.d.classify("upsert inventory", err)
	}
	return nil
}

// Restock takes the same row lock as checkout so it never interleaves with a sale.
func (s *SQLAdapter) Restock(ctx context.Context, productCode string, quantity int) (domain.InventoryRecord, error) {
	uow, err := s.Begin(ctx)
	if err != nil {
		return domain.InventoryRecord{}, err
	}
	defer uow.Rollback()

	u := uow.(*sqlUnitOfWork)
	rec, err := u.LockForUpdate(ctx, productCode)
	if err != nil {
		return domain.InventoryRecord{}, err
	}
	if rec.Quantity > domain.MaxQuantity-quantity {
		return domain.InventoryRecord{}, restockOverflow(productCode)
	}

	_, err = u.tx.ExecContext(ctx, s.d.rebind(`
		UPDATE inventory SET quantity = quantity + ?, updated_at = CURRENT_TIMESTAMP
		WHERE product_code = ?`), quantity, productCode)
	if err != nil {
		return domain.InventoryRecord{}, s.d.classify("restock", err)
	}

	if err := uow.Commit(); err != nil {
		return domain.InventoryRecord{}, err
	}

	rec.Quantity += quantity
	return rec, nil
}

// DeleteInventory clears the regular row's link when the deleted row is its promotional entry.
func (s *SQLAdapter) DeleteInventory(ctx context.Context, productCode string) error {
	uow, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()

	u := uow.(*sqlUnitOfWork)
	rec, err := u.LockForUpdate(ctx, productCode)
	if err != nil {
		return err
	}
	if rec.PromoCode != nil {
		return fmt.Errorf("product %s is linked to promotional %s: %w", productCode, *rec.PromoCode, domain.ErrConflict)
	}

	if rec.Promotional {
		_, err := u.tx.ExecContext(ctx, s.d.rebind(`
			UPDATE inventory SET promo_code = NULL, updated_at = CURRENT_TIMESTAMP WHERE promo_code = ?`), productCode)
		if err != nil {
			return s.d.classify("unlink promotion", err)
		}
	}

	_, err = u.tx.ExecContext(ctx, s.d.rebind(`DELETE FROM inventory WHERE product_code = ?`), productCode)
	if err != nil {
		return s.d.classifyDelete("delete inventory "+productCode, err)
	}
	return uow.Commit()
}

func (s *SQLAdapter) GetReceipt(ctx context.Context, number string) (domain.Receipt, error) {
	var (
		h    domain.ReceiptHeader
		card sql.NullString
	)
	err := s.db.QueryRowContext(ctx, s.d.rebind(`
		SELECT receipt_number, employee_id, card_number, issued_at, total, tax
		FROM receipt WHERE receipt_number = ?`), number,
	).Scan(&h.Number, &h.EmployeeID, &card, &h.IssuedAt, &h.Total, &h.Tax)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Receipt{}, fmt.Errorf("receipt %s: %w", number, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Receipt{}, s.d.classify("query receipt", err)
	}
	if card.Valid {
		h.CardNumber = &card.String
	}

	rows, err := s.db.QueryContext(ctx, s.d.rebind(`
		SELECT product_code, receipt_number, quantity, unit_price
		FROM sale_line WHERE receipt_number = ? ORDER BY product_code`), number)
	if err != nil {
		return domain.Receipt{}, s.d.classify("query sale lines", err)
	}
	defer rows.Close()

	receipt := domain.Receipt{Header: h}
	for rows.Next() {
		var l domain.SaleLine
		if err := rows.Scan(&l.ProductCode, &l.ReceiptNumber, &l.Quantity, &l.UnitPrice); err != nil {
			return domain.Receipt{}, s.d.classify("scan sale line", err)
		}
		receipt.Lines = append(receipt.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return domain.Receipt{}, s.d.classify("iterate sale lines", err)
	}
	return receipt, nil
}

func (s *SQLAdapter) ListReceipts(ctx context.Context, filter domain.ReceiptFilter) ([]domain.ReceiptHeader, error) {
	var (
		where []string
		args  []any
	)
	if filter.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, filter.EmployeeID)
	}
	if !filter.From.IsZero() {
		where = append(where, "issued_at >= ?")
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		where = append(where, "issued_at < ?")
		args = append(args, filter.To)
	}

	query := `SELECT receipt_number, employee_id, card_number, issued_at, total, tax FROM receipt`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY issued_at, receipt_number"

	rows, err := s.db.QueryContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return nil, s.d.classify("list receipts", err)
	}
	defer rows.Close()

	var out []domain.ReceiptHeader
	for rows.Next() {
		var (
			h    domain.ReceiptHeader
			card sql.NullString
		)
		if err := rows.Scan(&h.Number, &h.EmployeeID, &card, &h.IssuedAt, &h.Total, &h.Tax); err != nil {
			return nil, s.d.classify("scan receipt", err)
		}
		if card.Valid {
			h.CardNumber = &card.String
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// DeleteReceipt relies on the sale_line cascade.
func (s *SQLAdapter) DeleteReceipt(ctx context.Context, number string) error {
	result, err := s.db.ExecContext(ctx, s.d.rebind(`DELETE FROM receipt WHERE receipt_number = ?`), number)
	return s.affectedOne(result, err, "delete receipt", fmt.Sprintf("receipt %s", number))
}

func (s *SQLAdapter) GetCard(ctx context.Context, cardNumber string) (domain.LoyaltyCard, error) {
	var c domain.LoyaltyCard
	err := s.db.QueryRowContext(ctx, s.d.rebind(`
		SELECT card_number, surname, name, discount_percent FROM customer_card WHERE card_number = ?`), cardNumber,
	).Scan(&c.Number, &c.Surname, &c.Name, &c.Percent)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LoyaltyCard{}, fmt.Errorf("card %s: %w", cardNumber, domain.ErrNotFound)
	}
	if err != nil {
		return domain.LoyaltyCard{}, s.d.classify("query card", err)
	}
	return c, nil
}

func (s *SQLAdapter) ListCards(ctx context.Context, filter domain.CardFilter) ([]domain.LoyaltyCard, error) {
	var (
		where []string
		args  []any
	)
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		where = append(where, "(LOWER(surname) LIKE ? OR LOWER(name) LIKE ?)")
		args = append(args, pattern, pattern)
	}
	if filter.Percent != nil {
		where = append(where, "discount_percent = ?")
		args = append(args, *filter.Percent)
	}

	query := `SELECT card_number, surname, name, discount_percent FROM customer_card`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY surname, card_number"

	rows, err := s.db.QueryContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return nil, s.d.classify("list cards", err)
	}
	defer rows.Close()

	var out []domain.LoyaltyCard
	for rows.Next() {
		var c domain.LoyaltyCard
		if err := rows.Scan(&c.Number, &c.Surname, &c.Name, &c.Percent); err != nil {
			return nil, s.d.classify("scan card", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLAdapter) SaveCard(ctx context.Context, card domain.LoyaltyCard) error {
	_, err := s.db.ExecContext(ctx, s.d.rebind(s.d.upsertCard), card.Number, card.Surname, card.Name, card.Percent)
	if err != nil {
		return s.d.classify("upsert card", err)
	}
	return nil
}

func (s *SQLAdapter) DeleteCard(ctx context.Context, cardNumber string) error {
	result, err := s.db.ExecContext(ctx, s.d.rebind(`DELETE FROM customer_card WHERE card_number = ?`), cardNumber)
	return s.affectedOne(result, err, "delete card", fmt.Sprintf("card %s", cardNumber))
}

// affectedOne finishes a single-row DELETE: referenced rows conflict, no match is ErrNotFound.
func (s *SQLAdapter) affectedOne(result sql.Result, err error, op, subject string) error {
	if err != nil {
		return s.d.classifyDelete(op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return s.d.classify(op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", subject, domain.ErrNotFound)
	}
	return nil
}

// likePattern builds a lower-case substring match with LIKE wildcards escaped.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(term)) + "%"
}

func (s *SQLAdapter) FetchPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	rows, err := s.db.QueryContext(ctx, s.d.rebind(`
		SELECT id, event_id, topic, msg_key, payload, created_at, sent_at
		FROM receipt_outbox WHERE sent_at IS NULL ORDER BY id LIMIT ?`), limit)
	if err != nil {
		return nil, s.d.classify("fetch outbox", err)
	}
	defer rows.Close()

	var out []domain.OutboxEvent
	for rows.Next() {
		var (
			ev      domain.OutboxEvent
			payload []byte
			sentAt  sql.NullTime
		)
		if err := rows.Scan(&ev.ID, &ev.EventID, &ev.Topic, &ev.Key, &payload, &ev.CreatedAt, &sentAt); err != nil {
			return nil, s.d.classify("scan outbox", err)
		}
		ev.Payload = json.RawMessage(payload)
		if sentAt.Valid {
			ev.SentAt = &sentAt.Time
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLAdapter) MarkSent(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, s.d.rebind(`UPDATE receipt_outbox SET sent_at = CURRENT_TIMESTAMP WHERE id = ?`), id)
	if err != nil {
		return s.d.classify("mark outbox sent", err)
	}
	return nil
}
