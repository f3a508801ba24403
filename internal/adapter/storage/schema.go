package storage

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS category (
		category_number BIGINT NOT NULL PRIMARY KEY,
		category_name VARCHAR(50) NOT NULL
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS product (
		product_id BIGINT NOT NULL PRIMARY KEY,
		category_number BIGINT NOT NULL,
		product_name VARCHAR(50) NOT NULL,
		producer VARCHAR(50) NOT NULL,
		characteristics VARCHAR(100) NOT NULL,
		INDEX product_name_idx (product_name),
		CONSTRAINT product_category_fk FOREIGN KEY (category_number) REFERENCES category (category_number)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS inventory (
		product_code VARCHAR(12) NOT NULL PRIMARY KEY,
		product_id BIGINT NOT NULL,
		unit_price DECIMAL(13,4) NOT NULL,
		quantity INT NOT NULL,
		promo_flag BOOLEAN NOT NULL DEFAULT FALSE,
		promo_code VARCHAR(12) NULL,
		updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		INDEX inventory_product (product_id),
		CONSTRAINT inventory_quantity_nonneg CHECK (quantity >= 0),
		CONSTRAINT inventory_price_nonneg CHECK (unit_price >= 0)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS customer_card (
		card_number VARCHAR(13) NOT NULL PRIMARY KEY,
		surname VARCHAR(50) NOT NULL,
		name VARCHAR(50) NOT NULL,
		discount_percent INT NOT NULL,
		CONSTRAINT card_percent_range CHECK (discount_percent BETWEEN 0 AND 100)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS receipt (
		receipt_number VARCHAR(10) NOT NULL PRIMARY KEY,
		employee_id VARCHAR(10) NOT NULL,
		card_number VARCHAR(13) NULL,
		issued_at DATETIME(6) NOT NULL,
		total DECIMAL(13,4) NOT NULL,
		tax DECIMAL(13,4) NOT NULL,
		INDEX receipt_employee_issued (employee_id, issued_at),
		CONSTRAINT receipt_card_fk FOREIGN KEY (card_number) REFERENCES customer_card (card_number),
		CONSTRAINT receipt_total_nonneg CHECK (total >= 0),
		CONSTRAINT receipt_tax_nonneg CHECK (tax >= 0)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS sale_line (
		product_code VARCHAR(12) NOT NULL,
		receipt_number VARCHAR(10) NOT NULL,
		quantity INT NOT NULL,
		unit_price DECIMAL(13,4) NOT NULL,
		PRIMARY KEY (product_code, receipt_number),
		CONSTRAINT sale_inventory_fk FOREIGN KEY (product_code) REFERENCES inventory (product_code),
		CONSTRAINT sale_receipt_fk FOREIGN KEY (receipt_number) REFERENCES receipt (receipt_number) ON DELETE CASCADE,
		CONSTRAINT sale_quantity_pos CHECK (quantity > 0),
		CONSTRAINT sale_price_nonneg CHECK (unit_price >= 0)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS receipt_outbox (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		event_id VARCHAR(36) NOT NULL UNIQUE,
		topic VARCHAR(64) NOT NULL,
		msg_key VARCHAR(64) NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME(6) NOT NULL,
		sent_at DATETIME(6) NULL,
		INDEX outbox_pending (sent_at, id)
	) ENGINE=InnoDB`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS category (
		category_number BIGINT PRIMARY KEY,
		category_name VARCHAR(50) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS product (
		product_id BIGINT PRIMARY KEY,
		category_number BIGINT NOT NULL REFERENCES category (category_number),
		product_name VARCHAR(50) NOT NULL,
		producer VARCHAR(50) NOT NULL,
		characteristics VARCHAR(100) NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS product_name_idx ON product (product_name)`,
	`CREATE TABLE IF NOT EXISTS inventory (
		product_code VARCHAR(12) PRIMARY KEY,
		product_id BIGINT NOT NULL,
		unit_price NUMERIC(13,4) NOT NULL CHECK (unit_price >= 0),
		quantity INTEGER NOT NULL CHECK (quantity >= 0),
		promo_flag BOOLEAN NOT NULL DEFAULT FALSE,
		promo_code VARCHAR(12) NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS inventory_product ON inventory (product_id)`,
	`CREATE TABLE IF NOT EXISTS customer_card (
		card_number VARCHAR(13) PRIMARY KEY,
		surname VARCHAR(50) NOT NULL,
		name VARCHAR(50) NOT NULL,
		discount_percent INTEGER NOT NULL CHECK (discount_percent BETWEEN 0 AND 100)
	)`,
	`CREATE TABLE IF NOT EXISTS receipt (
		receipt_number VARCHAR(10) PRIMARY KEY,
		employee_id VARCHAR(10) NOT NULL,
		card_number VARCHAR(13) NULL REFERENCES customer_card (card_number),
		issued_at TIMESTAMPTZ NOT NULL,
		total NUMERIC(13,4) NOT NULL CHECK (total >= 0),
		tax NUMERIC(13,4) NOT NULL CHECK (tax >= 0)
	)`,
	`CREATE INDEX IF NOT EXISTS receipt_employee_issued ON receipt (employee_id, issued_at)`,
	`CREATE TABLE IF NOT EXISTS sale_line (
		product_code VARCHAR(12) NOT NULL REFERENCES inventory (product_code),
		receipt_number VARCHAR(10) NOT NULL REFERENCES receipt (receipt_number) ON DELETE CASCADE,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price NUMERIC(13,4) NOT NULL CHECK (unit_price >= 0),
		PRIMARY KEY (product_code, receipt_number)
	)`,
	`CREATE TABLE IF NOT EXISTS receipt_outbox (
		id BIGSERIAL PRIMARY KEY,
		event_id VARCHAR(36) NOT NULL UNIQUE,
		topic VARCHAR(64) NOT NULL,
		msg_key VARCHAR(64) NOT NULL,
		payload TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		sent_at TIMESTAMPTZ NULL
	)`,
	`CREATE INDEX IF NOT EXISTS outbox_pending ON receipt_outbox (id) WHERE sent_at IS NULL`,
}
