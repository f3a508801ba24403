package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/zlagoda/internal/core/domain"
	"github.com/rl1809/zlagoda/internal/port"
)

func seedMemory(t *testing.T, lockTimeout time.Duration, stock map[string]int) *MemoryAdapter {
	t.Helper()
	m := NewMemoryAdapter(lockTimeout)
	var id int64
	for code, qty := range stock {
		id++
		err := m.SaveInventory(context.Background(), domain.InventoryRecord{
			ProductCode: code,
			ProductID:   id,
			UnitPrice:   decimal.RequireFromString("10"),
			Quantity:    qty,
		})
		if err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}
	return m
}

func memHeader(number string) domain.ReceiptHeader {
	return domain.ReceiptHeader{
		Number:     number,
		EmployeeID: "E001",
		IssuedAt:   time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
		Total:      decimal.RequireFromString("30"),
		Tax:        decimal.RequireFromString("6"),
	}
}

func TestMemoryAdapter_CommitAppliesStagedWrites(t *testing.T) {
	ctx := context.Background()
	m := seedMemory(t, time.Second, map[string]int{"100000000001": 5})

	uow, err := m.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer uow.Rollback()

	rec, err := uow.Inventory().LockForUpdate(ctx, "100000000001")
	if err != nil {
		t.Fatalf("LockForUpdate failed: %v", err)
	}
	if rec.Quantity != 5 {
		t.Fatalf("expected 5, got %d", rec.Quantity)
	}
	if err := uow.Ledger().InsertReceipt(ctx, memHeader("CHECK001")); err != nil {
		t.Fatalf("InsertReceipt failed: %v", err)
	}
	line := domain.SaleLine{ProductCode: "100000000001", ReceiptNumber: "CHECK001", Quantity: 3, UnitPrice: decimal.RequireFromString("10")}
	if err := uow.Ledger().InsertSaleLine(ctx, line); err != nil {
		t.Fatalf("InsertSaleLine failed: %v", err)
	}
	if err := uow.Inventory().Decrement(ctx, "100000000001", 3); err != nil {
		t.Fatalf("Decrement failed: %v", err)
	}

	// nothing is visible before commit
	got, _ := m.GetInventory(ctx, "100000000001")
	if got.Quantity != 5 {
		t.Errorf("uncommitted decrement leaked: %d", got.Quantity)
	}
	if _, err := m.GetReceipt(ctx, "CHECK001"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("uncommitted receipt leaked: %v", err)
	}

	if err := uow.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	got, _ = m.GetInventory(ctx, "100000000001")
	if got.Quantity != 2 {
		t.Errorf("expected 2, got %d", got.Quantity)
	}
	receipt, err := m.GetReceipt(ctx, "CHECK001")
	if err != nil {
		t.Fatalf("GetReceipt failed: %v", err)
	}
	if len(receipt.Lines) != 1 || receipt.Lines[0].Quantity != 3 {
		t.Errorf("unexpected lines: %+v", receipt.Lines)
	}

	if err := uow.Rollback(); err != nil {
		t.Errorf("Rollback after Commit should be a no-op, got %v", err)
	}
}

func TestMemoryAdapter_RollbackDiscards(t *testing.T) {
	ctx := context.Background()
	m := seedMemory(t, time.Second, map[string]int{"100000000001": 5})

	uow, _ := m.Begin(ctx)
	uow.Inventory().LockForUpdate(ctx, "100000000001")
	uow.Ledger().InsertReceipt(ctx, memHeader("CHECK002"))
	uow.Inventory().Decrement(ctx, "100000000001", 4)
	if err := uow.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	got, _ := m.GetInventory(ctx, "100000000001")
	if got.Quantity != 5 {
		t.Errorf("expected 5, got %d", got.Quantity)
	}

	// the receipt number is free again
	uow, _ = m.Begin(ctx)
	defer uow.Rollback()
	if err := uow.Ledger().InsertReceipt(ctx, memHeader("CHECK002")); err != nil {
		t.Errorf("expected number to be reusable after rollback, got %v", err)
	}
}

func TestMemoryAdapter_DecrementChecksStagedQuantity(t *testing.T) {
	ctx := context.Background()
	m := seedMemory(t, time.Second, map[string]int{"100000000001": 5})

	uow, _ := m.Begin(ctx)
	defer uow.Rollback()

	if err := uow.Inventory().Decrement(ctx, "100000000001", 1); !errors.Is(err, domain.ErrStorage) {
		t.Errorf("decrement without lock should fail, got %v", err)
	}

	uow.Inventory().LockForUpdate(ctx, "100000000001")
	if err := uow.Inventory().Decrement(ctx, "100000000001", 4); err != nil {
		t.Fatalf("Decrement failed: %v", err)
	}
	if err := uow.Inventory().Decrement(ctx, "100000000001", 2); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Errorf("expected insufficient stock, got %v", err)
	}

	rec, _ := uow.Inventory().LockForUpdate(ctx, "100000000001")
	if rec.Quantity != 1 {
		t.Errorf("relock should see staged quantity 1, got %d", rec.Quantity)
	}
}

func TestMemoryAdapter_LockTimeout(t *testing.T) {
	ctx := context.Background()
	m := seedMemory(t, 50*time.Millisecond, map[string]int{"100000000001": 5})

	holder, _ := m.Begin(ctx)
	defer holder.Rollback()
	if _, err := holder.Inventory().LockForUpdate(ctx, "100000000001"); err != nil {
		t.Fatalf("LockForUpdate failed: %v", err)
	}

	waiter, _ := m.Begin(ctx)
	defer waiter.Rollback()

	start := time.Now()
	_, err := waiter.Inventory().LockForUpdate(ctx, "100000000001")
	if !errors.Is(err, domain.ErrLockTimeout) {
		t.Fatalf("expected lock timeout, got %v", err)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Error("waiter gave up before the lock timeout")
	}

	holder.Rollback()
	if _, err := waiter.Inventory().LockForUpdate(ctx, "100000000001"); err != nil {
		t.Errorf("lock should be free after rollback, got %v", err)
	}
}

func TestMemoryAdapter_LockHonoursContextDeadline(t *testing.T) {
	m := seedMemory(t, 0, map[string]int{"100000000001": 5})

	holder, _ := m.Begin(context.Background())
	defer holder.Rollback()
	holder.Inventory().LockForUpdate(context.Background(), "100000000001")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	waiter, _ := m.Begin(ctx)
	defer waiter.Rollback()

	if _, err := waiter.Inventory().LockForUpdate(ctx, "100000000001"); !errors.Is(err, domain.ErrLockTimeout) {
		t.Errorf("expected lock timeout, got %v", err)
	}
}

func TestMemoryAdapter_DuplicateReceipt(t *testing.T) {
	ctx := context.Background()
	m := seedMemory(t, time.Second, map[string]int{"100000000001": 5})

	first, _ := m.Begin(ctx)
	defer first.Rollback()
	if err := first.Ledger().InsertReceipt(ctx, memHeader("CHECK003")); err != nil {
		t.Fatalf("InsertReceipt failed: %v", err)
	}

	second, _ := m.Begin(ctx)
	defer second.Rollback()
	if err := second.Ledger().InsertReceipt(ctx, memHeader("CHECK003")); !errors.Is(err, domain.ErrDuplicateReceipt) {
		t.Errorf("expected duplicate while reserved, got %v", err)
	}

	first.Commit()

	third, _ := m.Begin(ctx)
	defer third.Rollback()
	if err := third.Ledger().InsertReceipt(ctx, memHeader("CHECK003")); !errors.Is(err, domain.ErrDuplicateReceipt) {
		t.Errorf("expected duplicate after commit, got %v", err)
	}
}

func TestMemoryAdapter_UnknownCardAndProduct(t *testing.T) {
	ctx := context.Background()
	m := seedMemory(t, time.Second, map[string]int{"100000000001": 5})

	uow, _ := m.Begin(ctx)
	defer uow.Rollback()

	if _, err := uow.Inventory().LockForUpdate(ctx, "199999999999"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	card := "555555555555"
	h := memHeader("CHECK004")
	h.CardNumber = &card
	if err := uow.Ledger().InsertReceipt(ctx, h); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected card not found, got %v", err)
	}
	if ok, _ := uow.Ledger().CardExists(ctx, card); ok {
		t.Error("card should not exist")
	}

	m.SaveCard(ctx, domain.LoyaltyCard{Number: card, Surname: "Shevchenko", Name: "Taras", Percent: 5})
	if ok, _ := uow.Ledger().CardExists(ctx, card); !ok {
		t.Error("card should exist after save")
	}
}

func TestMemoryAdapter_ConcurrentDecrementsNeverOversell(t *testing.T) {
	ctx := context.Background()
	initialStock := 20
	m := seedMemory(t, 5*time.Second, map[string]int{"100000000001": initialStock})

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			uow, err := m.Begin(ctx)
			if err != nil {
				t.Errorf("Begin failed: %v", err)
				return
			}
			defer uow.Rollback()

			rec, err := uow.Inventory().LockForUpdate(ctx, "100000000001")
			if err != nil {
				t.Errorf("LockForUpdate failed: %v", err)
				return
			}
			if rec.Quantity < 1 {
				return
			}
			if err := uow.Inventory().Decrement(ctx, "100000000001", 1); err != nil {
				t.Errorf("Decrement failed: %v", err)
				return
			}
			if err := uow.Commit(); err == nil {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successes, got %d", initialStock, successCount.Load())
	}
	got, _ := m.GetInventory(ctx, "100000000001")
	if got.Quantity != 0 {
		t.Errorf("expected stock 0, got %d", got.Quantity)
	}
}

func TestMemoryAdapter_RestockAndListReceipts(t *testing.T) {
	ctx := context.Background()
	m := seedMemory(t, time.Second, map[string]int{"100000000001": 1})

	rec, err := m.Restock(ctx, "100000000001", 9)
	if err != nil {
		t.Fatalf("Restock failed: %v", err)
	}
	if rec.Quantity != 10 {
		t.Errorf("expected 10, got %d", rec.Quantity)
	}
	if _, err := m.Restock(ctx, "199999999999", 1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	for i, num := range []string{"CHECK011", "CHECK010", "CHECK012"} {
		uow, _ := m.Begin(ctx)
		h := memHeader(num)
		h.IssuedAt = h.IssuedAt.Add(time.Duration(i) * time.Hour)
		if i == 2 {
			h.EmployeeID = "E002"
		}
		uow.Ledger().InsertReceipt(ctx, h)
		uow.Ledger().AppendEvent(ctx, domain.OutboxEvent{EventID: num, Topic: domain.TopicReceiptCreated, Key: num})
		if err := uow.Commit(); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}
	}

	all, _ := m.ListReceipts(ctx, domain.ReceiptFilter{})
	if len(all) != 3 || all[0].Number != "CHECK011" || all[2].Number != "CHECK012" {
		t.Errorf("unexpected order: %+v", all)
	}
	mine, _ := m.ListReceipts(ctx, domain.ReceiptFilter{EmployeeID: "E002"})
	if len(mine) != 1 || mine[0].Number != "CHECK012" {
		t.Errorf("unexpected filter result: %+v", mine)
	}

	pending, _ := m.FetchPending(ctx, 2)
	if len(pending) != 2 || pending[0].ID != 1 {
		t.Fatalf("unexpected pending events: %+v", pending)
	}
	if err := m.MarkSent(ctx, pending[0].ID); err != nil {
		t.Fatalf("MarkSent failed: %v", err)
	}
	pending, _ = m.FetchPending(ctx, 10)
	if len(pending) != 2 || pending[0].EventID != "CHECK010" {
		t.Errorf("unexpected pending after mark: %+v", pending)
	}
}

func TestMemoryAdapter_InsertInventoryNeverReplaces(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter(time.Second)
	other := domain.InventoryRecord{ProductCode: "100000000002", ProductID: 2, UnitPrice: decimal.RequireFromString("99"), Quantity: 40}
	m.SaveInventory(ctx, other)

	uow, _ := m.Begin(ctx)
	defer uow.Rollback()

	promo := domain.InventoryRecord{ProductCode: "100000000002", ProductID: 1, UnitPrice: decimal.RequireFromString("8"), Quantity: 3, Promotional: true}
	if err := uow.Inventory().InsertInventory(ctx, promo); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	uow.Commit()

	got, _ := m.GetInventory(ctx, "100000000002")
	if got.ProductID != 2 || !got.UnitPrice.Equal(other.UnitPrice) || got.Quantity != 40 || got.Promotional {
		t.Errorf("existing row was replaced: %+v", got)
	}
}

func TestMemoryAdapter_InsertAndLinkCommitTogether(t *testing.T) {
	ctx := context.Background()
	m := seedMemory(t, 50*time.Millisecond, map[string]int{"100000000001": 8})
	promoCode := "100000000002"

	write := func() port.UnitOfWork {
		t.Helper()
		uow, _ := m.Begin(ctx)
		regular, err := uow.Inventory().LockForUpdate(ctx, "100000000001")
		if err != nil {
			t.Fatalf("LockForUpdate failed: %v", err)
		}
		promo := domain.InventoryRecord{ProductCode: promoCode, ProductID: regular.ProductID, UnitPrice: decimal.RequireFromString("8"), Quantity: 3, Promotional: true}
		if err := uow.Inventory().InsertInventory(ctx, promo); err != nil {
			t.Fatalf("InsertInventory failed: %v", err)
		}
		regular.PromoCode = &promoCode
		if err := uow.Inventory().UpdateInventory(ctx, regular); err != nil {
			t.Fatalf("UpdateInventory failed: %v", err)
		}
		return uow
	}

	uow := write()
	if _, err := m.GetInventory(ctx, promoCode); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("insert visible before commit: %v", err)
	}
	if err := m.SaveInventory(ctx, domain.InventoryRecord{ProductCode: promoCode, ProductID: 9, Quantity: 1}); !errors.Is(err, domain.ErrLockTimeout) {
		t.Errorf("a pending insert should hold its row lock, got %v", err)
	}
	other, _ := m.Begin(ctx)
	if err := other.Inventory().InsertInventory(ctx, domain.InventoryRecord{ProductCode: promoCode, ProductID: 9}); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected conflict against a pending insert, got %v", err)
	}
	other.Rollback()
	uow.Rollback()

	if _, err := m.GetInventory(ctx, promoCode); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("rolled back insert survived: %v", err)
	}
	if rec, _ := m.GetInventory(ctx, "100000000001"); rec.PromoCode != nil {
		t.Errorf("rolled back link survived: %v", *rec.PromoCode)
	}

	uow = write()
	if err := uow.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	promo, err := m.GetInventory(ctx, promoCode)
	if err != nil || !promo.Promotional || promo.Quantity != 3 {
		t.Errorf("unexpected promotional row %+v (%v)", promo, err)
	}
	regular, _ := m.GetInventory(ctx, "100000000001")
	if regular.PromoCode == nil || *regular.PromoCode != promoCode || regular.Quantity != 8 {
		t.Errorf("unexpected regular row %+v", regular)
	}

	// committed rows are ordinary rows again
	if _, err := m.Restock(ctx, promoCode, 1); err != nil {
		t.Errorf("Restock of committed insert failed: %v", err)
	}
}

func TestMemoryAdapter_DeleteInventory(t *testing.T) {
	ctx := context.Background()
	m := seedMemory(t, 50*time.Millisecond, map[string]int{"100000000001": 5, "100000000003": 5})
	promoCode := "100000000002"

	uow, _ := m.Begin(ctx)
	regular, _ := uow.Inventory().LockForUpdate(ctx, "100000000001")
	uow.Inventory().InsertInventory(ctx, domain.InventoryRecord{ProductCode: promoCode, ProductID: regular.ProductID, Quantity: 2, Promotional: true})
	regular.PromoCode = &promoCode
	uow.Inventory().UpdateInventory(ctx, regular)
	if err := uow.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if err := m.DeleteInventory(ctx, "100000000001"); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected conflict while linked, got %v", err)
	}
	if err := m.DeleteInventory(ctx, promoCode); err != nil {
		t.Fatalf("DeleteInventory failed: %v", err)
	}
	if rec, _ := m.GetInventory(ctx, "100000000001"); rec.PromoCode != nil {
		t.Errorf("link to deleted row kept: %s", *rec.PromoCode)
	}

	// sold rows are referenced by sale lines
	uow, _ = m.Begin(ctx)
	uow.Inventory().LockForUpdate(ctx, "100000000003")
	uow.Ledger().InsertReceipt(ctx, memHeader("CHECK050"))
	uow.Ledger().InsertSaleLine(ctx, domain.SaleLine{ProductCode: "100000000003", ReceiptNumber: "CHECK050", Quantity: 1})
	uow.Inventory().Decrement(ctx, "100000000003", 1)
	if err := uow.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := m.DeleteInventory(ctx, "100000000003"); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected conflict for a sold row, got %v", err)
	}
	if err := m.DeleteReceipt(ctx, "CHECK050"); err != nil {
		t.Fatalf("DeleteReceipt failed: %v", err)
	}
	if err := m.DeleteInventory(ctx, "100000000003"); err != nil {
		t.Fatalf("DeleteInventory after receipt delete failed: %v", err)
	}

	// a unit of work waiting on a deleted row sees it gone
	uow, _ = m.Begin(ctx)
	defer uow.Rollback()
	if _, err := uow.Inventory().LockForUpdate(ctx, "100000000003"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestMemoryAdapter_DeleteWaitsForRowLock(t *testing.T) {
	ctx := context.Background()
	m := seedMemory(t, 50*time.Millisecond, map[string]int{"100000000001": 5})

	holder, _ := m.Begin(ctx)
	holder.Inventory().LockForUpdate(ctx, "100000000001")

	if err := m.DeleteInventory(ctx, "100000000001"); !errors.Is(err, domain.ErrLockTimeout) {
		t.Errorf("expected lock timeout, got %v", err)
	}
	holder.Rollback()
	if err := m.DeleteInventory(ctx, "100000000001"); err != nil {
		t.Errorf("DeleteInventory failed: %v", err)
	}
}

func TestMemoryAdapter_RestockOverflow(t *testing.T) {
	ctx := context.Background()
	m := seedMemory(t, time.Second, map[string]int{"100000000001": 2})

	var ve *domain.ValidationError
	if _, err := m.Restock(ctx, "100000000001", domain.MaxQuantity-1); !errors.As(err, &ve) {
		t.Errorf("expected validation error, got %v", err)
	}
	rec, err := m.Restock(ctx, "100000000001", domain.MaxQuantity-2)
	if err != nil || rec.Quantity != domain.MaxQuantity {
		t.Errorf("expected restock to the bound, got %+v (%v)", rec, err)
	}
}

func TestMemoryAdapter_CardDeletedBeforeCommit(t *testing.T) {
	ctx := context.Background()
	m := seedMemory(t, time.Second, nil)
	card := "123456789012"
	m.SaveCard(ctx, domain.LoyaltyCard{Number: card, Surname: "Franko", Name: "Ivan", Percent: 5})

	uow, _ := m.Begin(ctx)
	h := memHeader("CHECK060")
	h.CardNumber = &card
	if err := uow.Ledger().InsertReceipt(ctx, h); err != nil {
		t.Fatalf("InsertReceipt failed: %v", err)
	}
	if err := m.DeleteCard(ctx, card); err != nil {
		t.Fatalf("DeleteCard failed: %v", err)
	}
	if err := uow.Commit(); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected commit to refuse a deleted card, got %v", err)
	}
	if _, err := m.GetReceipt(ctx, "CHECK060"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("receipt leaked: %v", err)
	}
}
