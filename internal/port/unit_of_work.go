package port

import (
	"context"

	"github.com/rl1809/zlagoda/internal/core/domain"
)

// InventoryStore is bound to one unit of work.
type InventoryStore interface {
	// LockForUpdate takes an exclusive lock on the row until the unit of work ends.
	// Returns domain.ErrNotFound or domain.ErrLockTimeout.
	LockForUpdate(ctx context.Context, productCode string) (domain.InventoryRecord, error)

	// Decrement requires a prior LockForUpdate on the same code in the same unit of work.
	Decrement(ctx context.Context, productCode string, quantity int) error

	// InsertInventory never replaces: returns domain.ErrConflict if the code is taken.
	// The new row stays locked by this unit of work.
	InsertInventory(ctx context.Context, rec domain.InventoryRecord) error

	// UpdateInventory rewrites a row locked by this unit of work.
	UpdateInventory(ctx context.Context, rec domain.InventoryRecord) error
}

// ReceiptLedger is bound to one unit of work.
type ReceiptLedger interface {
	// InsertReceipt returns domain.ErrDuplicateReceipt if the number is taken
	InsertReceipt(ctx context.Context, header domain.ReceiptHeader) error

	InsertSaleLine(ctx context.Context, line domain.SaleLine) error

	CardExists(ctx context.Context, cardNumber string) (bool, error)

	// AppendEvent stores an event for the outbox relay, committed with the receipt
	AppendEvent(ctx context.Context, event domain.OutboxEvent) error
}

type UnitOfWork interface {
	Inventory() InventoryStore
	Ledger() ReceiptLedger
	Commit() error
	// Rollback is a no-op after Commit
	Rollback() error
}

type Transactor interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}
