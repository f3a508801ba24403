package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rl1809/zlagoda/internal/core/domain"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type dialect struct {
	name string
	// sqlDriver is the name registered with database/sql
	sqlDriver       string
	schema          []string
	upsertInventory string
	upsertCard      string
	upsertCategory  string
	upsertProduct   string
}

var mysqlDialect = dialect{
	name:      DriverMySQL,
	sqlDriver: "mysql",
	schema:    mysqlSchema,
	upsertInventory: `
		INSERT INTO inventory (product_code, product_id, unit_price, quantity, promo_flag, promo_code, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON DUPLICATE KEY UPDATE product_id = VALUES(product_id), unit_price = VALUES(unit_price),
			quantity = VALUES(quantity), promo_flag = VALUES(promo_flag), promo_code = VALUES(promo_code),
			updated_at = CURRENT_TIMESTAMP`,
	upsertCard: `
		INSERT INTO customer_card (card_number, surname, name, discount_percent)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE surname = VALUES(surname), name = VALUES(name),
			discount_percent = VALUES(discount_percent)`,
	upsertCategory: `
		INSERT INTO category (category_number, category_name) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE category_name = VALUES(category_name)`,
	upsertProduct: `
		INSERT INTO product (product_id, category_number, product_name, producer, characteristics)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE category_number = VALUES(category_number), product_name = VALUES(product_name),
			producer = VALUES(producer), characteristics = VALUES(characteristics)`,
}

var postgresDialect = dialect{
	name:      DriverPostgres,
	sqlDriver: "pgx",
	schema:    postgresSchema,
	upsertInventory: `
		INSERT INTO inventory (product_code, product_id, unit_price, quantity, promo_flag, promo_code, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (product_code) DO UPDATE SET product_id = EXCLUDED.product_id,
			unit_price = EXCLUDED.unit_price, quantity = EXCLUDED.quantity, promo_flag = EXCLUDED.promo_flag,
			promo_code = EXCLUDED.promo_code, updated_at = CURRENT_TIMESTAMP`,
	upsertCard: `
		INSERT INTO customer_card (card_number, surname, name, discount_percent)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (card_number) DO UPDATE SET surname = EXCLUDED.surname, name = EXCLUDED.name,
			discount_percent = EXCLUDED.discount_percent`,
	upsertCategory: `
		INSERT INTO category (category_number, category_name) VALUES (?, ?)
		ON CONFLICT (category_number) DO UPDATE SET category_name = EXCLUDED.category_name`,
	upsertProduct: `
		INSERT INTO product (product_id, category_number, product_name, producer, characteristics)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (product_id) DO UPDATE SET category_number = EXCLUDED.category_number,
			product_name = EXCLUDED.product_name, producer = EXCLUDED.producer,
			characteristics = EXCLUDED.characteristics`,
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverMySQL:
		return mysqlDialect, nil
	case DriverPostgres, "pgx":
		return postgresDialect, nil
	}
	return dialect{}, fmt.Errorf("unsupported sql driver %q", driver)
}

// rebind rewrites ? placeholders to $n for postgres. Queries never carry literal question marks.
func (d dialect) rebind(query string) string {
	if d.name != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// lockTimeoutStmt bounds how long a statement in the current transaction waits for a row lock.
// MySQL has no transaction-scoped form; Open sets it per connection through the DSN instead.
func (d dialect) lockTimeoutStmt(timeout time.Duration) string {
	if timeout <= 0 || d.name != DriverPostgres {
		return ""
	}
	return fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", timeout.Milliseconds())
}

// withLockWaitTimeout adds innodb_lock_wait_timeout to a MySQL DSN. The driver
// issues it as a SET on every new connection, so all pooled connections agree.
func withLockWaitTimeout(dsn string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		return dsn, nil
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	// innodb only accepts whole seconds
	secs := int(math.Ceil(timeout.Seconds()))
	if secs < 1 {
		secs = 1
	}
	if cfg.Params == nil {
		cfg.Params = make(map[string]string)
	}
	cfg.Params["innodb_lock_wait_timeout"] = strconv.Itoa(secs)
	return cfg.FormatDSN(), nil
}

func (d dialect) isUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// isReferencedRow reports a delete blocked by rows that still point at the target.
// Postgres shares 23503 with inserts; callers only ask after a DELETE.
func (d dialect) isReferencedRow(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1451
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func (d dialect) isOutOfRange(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1264 || myErr.Number == 1690
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "22003"
	}
	return false
}

func (d dialect) isForeignKeyViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1452
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

// isLockFailure covers lock wait timeouts and deadlock victims; both abort the transaction and are retryable.
func (d dialect) isLockFailure(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1205 || myErr.Number == 1213
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03", "40P01", "40001", "57014":
			return true
		}
	}
	return false
}

// classify maps a driver error onto the domain taxonomy. Unknown errors become ErrStorage.
func (d dialect) classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case d.isLockFailure(err), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrLockTimeout, err)
	case d.isUniqueViolation(err):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrConflict, err)
	case d.isForeignKeyViolation(err):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrNotFound, err)
	case d.isOutOfRange(err):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrValidation, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorage, err)
}

// classifyDelete reports rows still referencing the target as a conflict.
func (d dialect) classifyDelete(op string, err error) error {
	if d.isReferencedRow(err) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrConflict, err)
	}
	return d.classify(op, err)
}
