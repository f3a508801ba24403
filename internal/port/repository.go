package port

import (
	"context"

	"github.com/rl1809/zlagoda/internal/core/domain"
)

type InventoryRepository interface {
	GetInventory(ctx context.Context, productCode string) (domain.InventoryRecord, error)
	ListInventory(ctx context.Context, filter domain.InventoryFilter) ([]domain.InventoryListing, error)

	// SaveInventory creates or replaces a store product row
	SaveInventory(ctx context.Context, rec domain.InventoryRecord) error

	// Restock adds quantity and returns the updated row
	Restock(ctx context.Context, productCode string, quantity int) (domain.InventoryRecord, error)

	// DeleteInventory returns domain.ErrConflict while sale lines or a promotional link reference the row
	DeleteInventory(ctx context.Context, productCode string) error
}

type ReceiptRepository interface {
	GetReceipt(ctx context.Context, number string) (domain.Receipt, error)
	ListReceipts(ctx context.Context, filter domain.ReceiptFilter) ([]domain.ReceiptHeader, error)

	// DeleteReceipt drops the receipt and its sale lines; stock is not restored
	DeleteReceipt(ctx context.Context, number string) error

	GetCard(ctx context.Context, cardNumber string) (domain.LoyaltyCard, error)
	ListCards(ctx context.Context, filter domain.CardFilter) ([]domain.LoyaltyCard, error)
	SaveCard(ctx context.Context, card domain.LoyaltyCard) error

	// DeleteCard returns domain.ErrConflict while receipts reference the card
	DeleteCard(ctx context.Context, cardNumber string) error
}

type CatalogRepository interface {
	GetCategory(ctx context.Context, number int64) (domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	SaveCategory(ctx context.Context, c domain.Category) error
	// DeleteCategory returns domain.ErrConflict while products belong to it
	DeleteCategory(ctx context.Context, number int64) error

	GetProduct(ctx context.Context, id int64) (domain.Product, error)
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	// SaveProduct returns domain.ErrNotFound when the category does not exist
	SaveProduct(ctx context.Context, p domain.Product) error
	// DeleteProduct returns domain.ErrConflict while store products stock it
	DeleteProduct(ctx context.Context, id int64) error
}

type OutboxRepository interface {
	FetchPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	MarkSent(ctx context.Context, id int64) error
}
