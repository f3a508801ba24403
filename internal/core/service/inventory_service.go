package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl1809/zlagoda/internal/core/domain"
	"github.com/rl1809/zlagoda/internal/core/pricing"
	"github.com/rl1809/zlagoda/internal/port"
)

type InventoryService struct {
	repo   port.InventoryRepository
	tx     port.Transactor
	cache  port.StockCache
	logger *zap.Logger
}

// NewInventoryService wires the repository with an optional cache; a nil cache reads straight through.
func NewInventoryService(repo port.InventoryRepository, tx port.Transactor, cache port.StockCache, logger *zap.Logger) *InventoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryService{repo: repo, tx: tx, cache: cache, logger: logger}
}

func (s *InventoryService) Get(ctx context.Context, productCode string) (domain.InventoryRecord, error) {
	if !domain.ValidProductCode(productCode) {
		return domain.InventoryRecord{}, &domain.ValidationError{Field: "product_code", Message: "must be 12 digits"}
	}

	if s.cache != nil {
		rec, ok, err := s.cache.GetInventory(ctx, productCode)
		if err != nil {
			s.logger.Warn("stock cache read failed", zap.String("product_code", productCode), zap.Error(err))
		} else if ok {
			return rec, nil
		}
	}

	rec, err := s.repo.GetInventory(ctx, productCode)
	if err != nil {
		return domain.InventoryRecord{}, err
	}

	if s.cache != nil {
		if err := s.cache.SetInventory(ctx, rec); err != nil {
			s.logger.Warn("stock cache write failed", zap.String("product_code", productCode), zap.Error(err))
		}
	}
	return rec, nil
}

// List bypasses the cache; listings are reports, not checkout reads.
func (s *InventoryService) List(ctx context.Context, filter domain.InventoryFilter) ([]domain.InventoryListing, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListInventory(ctx, filter)
}

func (s *InventoryService) Save(ctx context.Context, rec domain.InventoryRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if err := s.repo.SaveInventory(ctx, rec); err != nil {
		return err
	}
	s.invalidate(ctx, rec.ProductCode)
	return nil
}

func (s *InventoryService) Restock(ctx context.Context, productCode string, quantity int) (domain.InventoryRecord, error) {
	if !domain.ValidProductCode(productCode) {
		return domain.InventoryRecord{}, &domain.ValidationError{Field: "product_code", Message: "must be 12 digits"}
	}
	if quantity <= 0 {
		return domain.InventoryRecord{}, &domain.ValidationError{Field: "quantity", Message: "must be positive"}
	}
	if quantity > domain.MaxQuantity {
		return domain.InventoryRecord{}, &domain.ValidationError{Field: "quantity", Message: fmt.Sprintf("must not exceed %d", domain.MaxQuantity)}
	}

	rec, err := s.repo.Restock(ctx, productCode, quantity)
	if err != nil {
		return domain.InventoryRecord{}, err
	}
	s.invalidate(ctx, productCode)
	return rec, nil
}

func (s *InventoryService) Delete(ctx context.Context, productCode string) error {
	if !domain.ValidProductCode(productCode) {
		return &domain.ValidationError{Field: "product_code", Message: "must be 12 digits"}
	}
	codes, err := s.linkedCodes(ctx, productCode)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteInventory(ctx, productCode); err != nil {
		return err
	}
	s.invalidate(ctx, codes...)
	return nil
}

// linkedCodes is the row plus, for a promotional row, the regular row whose link the delete clears.
func (s *InventoryService) linkedCodes(ctx context.Context, productCode string) ([]string, error) {
	rec, err := s.repo.GetInventory(ctx, productCode)
	if err != nil || !rec.Promotional {
		return []string{productCode}, err
	}

	regularOnly := false
	regulars, err := s.repo.ListInventory(ctx, domain.InventoryFilter{Promotional: &regularOnly})
	if err != nil {
		return nil, err
	}
	codes := []string{productCode}
	for _, r := range regulars {
		if r.PromoCode != nil && *r.PromoCode == productCode {
			codes = append(codes, r.ProductCode)
		}
	}
	return codes, nil
}

// Promote stocks a promotional entry for a regular product under its own code,
// priced at the promotional rate, and links the regular row to it. Both rows
// are written in one unit of work. Promoting again with the current promotional
// code restocks that entry at the current rate; any other existing code conflicts.
func (s *InventoryService) Promote(ctx context.Context, regularCode, promoCode string, quantity int) (domain.InventoryRecord, error) {
	if !domain.ValidProductCode(promoCode) {
		return domain.InventoryRecord{}, &domain.ValidationError{Field: "promo_code", Message: "must be 12 digits"}
	}
	if promoCode == regularCode {
		return domain.InventoryRecord{}, &domain.ValidationError{Field: "promo_code", Message: "must differ from the regular code"}
	}
	if quantity < 0 || quantity > domain.MaxQuantity {
		return domain.InventoryRecord{}, &domain.ValidationError{Field: "quantity", Message: fmt.Sprintf("must be between 0 and %d", domain.MaxQuantity)}
	}

	uow, err := s.tx.Begin(ctx)
	if err != nil {
		return domain.InventoryRecord{}, err
	}
	defer uow.Rollback()
	inv := uow.Inventory()

	regular, err := inv.LockForUpdate(ctx, regularCode)
	if err != nil {
		return domain.InventoryRecord{}, err
	}
	if regular.Promotional {
		return domain.InventoryRecord{}, fmt.Errorf("product %s is already promotional: %w", regularCode, domain.ErrConflict)
	}
	if regular.PromoCode != nil && *regular.PromoCode != promoCode {
		return domain.InventoryRecord{}, fmt.Errorf("product %s is already promoted as %s: %w", regularCode, *regular.PromoCode, domain.ErrConflict)
	}

	price, err := pricing.PromotionalPrice(regular.UnitPrice)
	if err != nil {
		return domain.InventoryRecord{}, &domain.ValidationError{Field: "unit_price", Message: err.Error()}
	}
	promo := domain.InventoryRecord{
		ProductCode: promoCode,
		ProductID:   regular.ProductID,
		UnitPrice:   price,
		Quantity:    quantity,
		Promotional: true,
	}

	existing, err := inv.LockForUpdate(ctx, promoCode)
	switch {
	case err == nil:
		if regular.PromoCode == nil || !existing.Promotional || existing.ProductID != regular.ProductID {
			return domain.InventoryRecord{}, fmt.Errorf("product code %s is taken: %w", promoCode, domain.ErrConflict)
		}
		err = inv.UpdateInventory(ctx, promo)
	case errors.Is(err, domain.ErrNotFound):
		err = inv.InsertInventory(ctx, promo)
	}
	if err != nil {
		return domain.InventoryRecord{}, err
	}

	regular.PromoCode = &promoCode
	if err := inv.UpdateInventory(ctx, regular); err != nil {
		return domain.InventoryRecord{}, err
	}
	if err := uow.Commit(); err != nil {
		return domain.InventoryRecord{}, err
	}

	s.logger.Info("product promoted",
		zap.String("product_code", regularCode),
		zap.String("promo_code", promoCode),
		zap.Int("quantity", quantity))
	s.invalidate(ctx, regularCode, promoCode)
	return promo, nil
}

func (s *InventoryService) invalidate(ctx context.Context, codes ...string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, codes...); err != nil {
		s.logger.Warn("stock cache invalidation failed", zap.Strings("product_codes", codes), zap.Error(err))
	}
}
