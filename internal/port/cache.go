package port

import (
	"context"

	"github.com/rl1809/zlagoda/internal/core/domain"
)

type StockCache interface {
	// GetInventory returns the cached snapshot, ok is false on a miss
	GetInventory(ctx context.Context, productCode string) (rec domain.InventoryRecord, ok bool, err error)

	// SetInventory stores a snapshot read from the database
	SetInventory(ctx context.Context, rec domain.InventoryRecord) error

	// Invalidate drops snapshots after their rows changed
	Invalidate(ctx context.Context, productCodes ...string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event domain.OutboxEvent) error
}
