package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rl1809/zlagoda/internal/core/domain"
	"github.com/rl1809/zlagoda/internal/port"
)

// sqlUnitOfWork wraps one database transaction. It serves as both the
// inventory store and the receipt ledger for that transaction.
type sqlUnitOfWork struct {
	tx   *sql.Tx
	d    dialect
	done bool
}

func (u *sqlUnitOfWork) Inventory() port.InventoryStore { return u }
func (u *sqlUnitOfWork) Ledger() port.ReceiptLedger     { return u }

func (u *sqlUnitOfWork) LockForUpdate(ctx context.Context, productCode string) (domain.InventoryRecord, error) {
	rec, err := scanInventory(u.tx.QueryRowContext(ctx, u.d.rebind(`
		SELECT `+inventoryColumns+` FROM inventory WHERE product_code = ? FOR UPDATE`), productCode))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.InventoryRecord{}, fmt.Errorf("product %s: %w", productCode, domain.ErrNotFound)
	}
	if err != nil {
		return domain.InventoryRecord{}, u.d.classify("lock inventory "+productCode, err)
	}
	return rec, nil
}

func (u *sqlUnitOfWork) Decrement(ctx context.Context, productCode string, quantity int) error {
	result, err := u.tx.ExecContext(ctx, u.d.rebind(`
		UPDATE inventory
		SET quantity = quantity - ?, updated_at = CURRENT_TIMESTAMP
		WHERE product_code = ? AND quantity >= ?`),
		quantity, productCode, quantity,
	)
	if err != nil {
		return u.d.classify("decrement inventory "+productCode, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return u.d.classify("decrement inventory "+productCode, err)
	}
	if rows == 0 {
		return fmt.Errorf("product %s: %w", productCode, domain.ErrInsufficientStock)
	}
	return nil
}

func (u *sqlUnitOfWork) InsertInventory(ctx context.Context, rec domain.InventoryRecord) error {
	_, err := u.tx.ExecContext(ctx, u.d.rebind(`
		INSERT INTO inventory (product_code, product_id, unit_price, quantity, promo_flag, promo_code, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`),
		rec.ProductCode, rec.ProductID, rec.UnitPrice, rec.Quantity, rec.Promotional, rec.PromoCode,
	)
	if u.d.isUniqueViolation(err) {
		return fmt.Errorf("product %s already exists: %w: %w", rec.ProductCode, domain.ErrConflict, err)
	}
	return u.d.classify("insert inventory "+rec.ProductCode, err)
}

// UpdateInventory skips the RowsAffected check: MySQL reports zero for an unchanged row
// and the caller already holds the row lock.
func (u *sqlUnitOfWork) UpdateInventory(ctx context.Context, rec domain.InventoryRecord) error {
	_, err := u.tx.ExecContext(ctx, u.d.rebind(`
		UPDATE inventory
		SET product_id = ?, unit_price = ?, quantity = ?, promo_flag = ?, promo_code = ?, updated_at = CURRENT_TIMESTAMP
		WHERE product_code = ?`),
		rec.ProductID, rec.UnitPrice, rec.Quantity, rec.Promotional, rec.PromoCode, rec.ProductCode,
	)
	return u.d.classify("update inventory "+rec.ProductCode, err)
}

func (u *sqlUnitOfWork) InsertReceipt(ctx context.Context, h domain.ReceiptHeader) error {
	_, err := u.tx.ExecContext(ctx, u.d.rebind(`
		INSERT INTO receipt (receipt_number, employee_id, card_number, issued_at, total, tax)
		VALUES (?, ?, ?, ?, ?, ?)`),
		h.Number, h.EmployeeID, h.CardNumber, h.IssuedAt, h.Total, h.Tax,
	)
	if u.d.isUniqueViolation(err) {
		return fmt.Errorf("receipt %s: %w", h.Number, domain.ErrDuplicateReceipt)
	}
	return u.d.classify("insert receipt", err)
}

func (u *sqlUnitOfWork) InsertSaleLine(ctx context.Context, l domain.SaleLine) error {
	_, err := u.tx.ExecContext(ctx, u.d.rebind(`
		INSERT INTO sale_line (product_code, receipt_number, quantity, unit_price)
		VALUES (?, ?, ?, ?)`),
		l.ProductCode, l.ReceiptNumber, l.Quantity, l.UnitPrice,
	)
	return u.d.classify("insert sale line", err)
}

func (u *sqlUnitOfWork) CardExists(ctx context.Context, cardNumber string) (bool, error) {
	var one int
	err := u.tx.QueryRowContext(ctx, u.d.rebind(`SELECT 1 FROM customer_card WHERE card_number = ?`), cardNumber).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, u.d.classify("query card", err)
	}
	return true, nil
}

func (u *sqlUnitOfWork) AppendEvent(ctx context.Context, ev domain.OutboxEvent) error {
	_, err := u.tx.ExecContext(ctx, u.d.rebind(`
		INSERT INTO receipt_outbox (event_id, topic, msg_key, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`),
		ev.EventID, ev.Topic, ev.Key, string(ev.Payload), ev.CreatedAt,
	)
	return u.d.classify("insert outbox event", err)
}

func (u *sqlUnitOfWork) Commit() error {
	if u.done {
		return errors.New("unit of work already finished")
	}
	u.done = true
	return u.d.classify("commit", u.tx.Commit())
}

func (u *sqlUnitOfWork) Rollback() error {
	if u.done {
		return nil
	}
	u.done = true
	err := u.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}
