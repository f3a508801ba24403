package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rl1809/zlagoda/internal/core/access"
	"github.com/rl1809/zlagoda/internal/core/domain"
	"github.com/rl1809/zlagoda/internal/core/pricing"
	"github.com/rl1809/zlagoda/internal/port"
)

// Actor is the authenticated employee behind a request.
type Actor struct {
	EmployeeID string
	Role       access.Role
}

type QuoteItem struct {
	ProductCode string
	Quantity    int
}

type ReceiptService struct {
	receipts  port.ReceiptRepository
	inventory port.InventoryRepository
}

func NewReceiptService(receipts port.ReceiptRepository, inventory port.InventoryRepository) *ReceiptService {
	return &ReceiptService{receipts: receipts, inventory: inventory}
}

func (s *ReceiptService) Get(ctx context.Context, number string) (domain.Receipt, error) {
	if !domain.ValidReceiptNumber(number) {
		return domain.Receipt{}, &domain.ValidationError{Field: "receipt_number", Message: "must be CHECK followed by 3 to 5 digits"}
	}
	return s.receipts.GetReceipt(ctx, number)
}

// List returns receipts ordered by issue time. Cashiers only see their own.
func (s *ReceiptService) List(ctx context.Context, actor Actor, filter domain.ReceiptFilter) ([]domain.ReceiptHeader, error) {
	if actor.Role == access.Cashier {
		filter.EmployeeID = actor.EmployeeID
	}
	if filter.EmployeeID != "" && !domain.ValidEmployeeID(filter.EmployeeID) {
		return nil, &domain.ValidationError{Field: "employee_id", Message: "must be E followed by 3 digits"}
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.From.Before(filter.To) {
		return nil, &domain.ValidationError{Field: "to", Message: "must be after from"}
	}
	return s.receipts.ListReceipts(ctx, filter)
}

// Delete removes a receipt and its lines. Sold stock is not returned to inventory.
func (s *ReceiptService) Delete(ctx context.Context, number string) error {
	if !domain.ValidReceiptNumber(number) {
		return &domain.ValidationError{Field: "receipt_number", Message: "must be CHECK followed by 3 to 5 digits"}
	}
	return s.receipts.DeleteReceipt(ctx, number)
}

// Quote prices items at their current inventory price and applies the card discount.
func (s *ReceiptService) Quote(ctx context.Context, items []QuoteItem, cardNumber string) (pricing.Quote, error) {
	if len(items) == 0 {
		return pricing.Quote{}, &domain.ValidationError{Field: "items", Message: "must not be empty"}
	}

	lines := make([]pricing.Line, 0, len(items))
	for i, it := range items {
		if !domain.ValidProductCode(it.ProductCode) {
			return pricing.Quote{}, &domain.ValidationError{Field: fmt.Sprintf("items[%d].product_code", i), Message: "must be 12 digits"}
		}
		if it.Quantity <= 0 {
			return pricing.Quote{}, &domain.ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Message: "must be positive"}
		}
		rec, err := s.inventory.GetInventory(ctx, it.ProductCode)
		if err != nil {
			return pricing.Quote{}, err
		}
		lines = append(lines, pricing.Line{UnitPrice: rec.UnitPrice, Quantity: it.Quantity})
	}

	percent := 0
	if cardNumber != "" {
		card, err := s.GetCard(ctx, cardNumber)
		if err != nil {
			return pricing.Quote{}, err
		}
		percent = card.Percent
	}

	q, err := pricing.Calculate(lines, percent)
	if errors.Is(err, pricing.ErrDiscountPercent) || errors.Is(err, pricing.ErrNegativeAmount) {
		return pricing.Quote{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return q, err
}

func (s *ReceiptService) GetCard(ctx context.Context, number string) (domain.LoyaltyCard, error) {
	if !domain.ValidCardNumber(number) {
		return domain.LoyaltyCard{}, &domain.ValidationError{Field: "card_number", Message: "must be 12 digits"}
	}
	return s.receipts.GetCard(ctx, number)
}

func (s *ReceiptService) SaveCard(ctx context.Context, card domain.LoyaltyCard) error {
	switch {
	case !domain.ValidCardNumber(card.Number):
		return &domain.ValidationError{Field: "card_number", Message: "must be 12 digits"}
	case strings.TrimSpace(card.Surname) == "":
		return &domain.ValidationError{Field: "surname", Message: "is required"}
	case strings.TrimSpace(card.Name) == "":
		return &domain.ValidationError{Field: "name", Message: "is required"}
	case card.Percent < 0 || card.Percent > 100:
		return &domain.ValidationError{Field: "percent", Message: "must be between 0 and 100"}
	}
	return s.receipts.SaveCard(ctx, card)
}

func (s *ReceiptService) ListCards(ctx context.Context, filter domain.CardFilter) ([]domain.LoyaltyCard, error) {
	if filter.Percent != nil && (*filter.Percent < 0 || *filter.Percent > 100) {
		return nil, &domain.ValidationError{Field: "percent", Message: "must be between 0 and 100"}
	}
	filter.Search = strings.TrimSpace(filter.Search)
	return s.receipts.ListCards(ctx, filter)
}

func (s *ReceiptService) DeleteCard(ctx context.Context, number string) error {
	if !domain.ValidCardNumber(number) {
		return &domain.ValidationError{Field: "card_number", Message: "must be 12 digits"}
	}
	return s.receipts.DeleteCard(ctx, number)
}
