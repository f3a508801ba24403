package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/zlagoda/internal/adapter/storage"
	"github.com/rl1809/zlagoda/internal/core/domain"
	"github.com/rl1809/zlagoda/internal/core/service"
	"github.com/rl1809/zlagoda/internal/port"
)

const (
	codeA = "900000000001"
	codeB = "900000000002"
)

type backend interface {
	port.Transactor
	port.InventoryRepository
}

func main() {
	driver := flag.String("driver", "memory", "memory, mysql or postgres")
	dsn := flag.String("dsn", os.Getenv("DB_DSN"), "database DSN for mysql or postgres")
	stock := flag.Int("stock", 20, "initial units of each product")
	requests := flag.Int("requests", 50, "concurrent checkouts")
	lockTimeout := flag.Duration("lock-timeout", 3*time.Second, "row lock wait limit")
	flag.Parse()

	ctx := context.Background()

	var store backend
	if *driver == "memory" {
		store = storage.NewMemoryAdapter(*lockTimeout)
	} else {
		db, err := storage.Open(ctx, *driver, *dsn, storage.PoolOptions{MaxOpenConns: 50, LockTimeout: *lockTimeout})
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		adapter, err := storage.NewSQLAdapter(db, *driver, *lockTimeout)
		if err != nil {
			log.Fatalf("failed to create adapter: %v", err)
		}
		if err := adapter.Migrate(ctx); err != nil {
			log.Fatalf("failed to migrate: %v", err)
		}
		if _, err := db.ExecContext(ctx, "DELETE FROM sale_line"); err != nil {
			log.Fatalf("failed to clear sales: %v", err)
		}
		if _, err := db.ExecContext(ctx, "DELETE FROM receipt_outbox"); err != nil {
			log.Fatalf("failed to clear outbox: %v", err)
		}
		if _, err := db.ExecContext(ctx, "DELETE FROM receipt"); err != nil {
			log.Fatalf("failed to clear receipts: %v", err)
		}
		store = adapter
	}

	for i, code := range []string{codeA, codeB} {
		err := store.SaveInventory(ctx, domain.InventoryRecord{
			ProductCode: code,
			ProductID:   int64(9000 + i),
			UnitPrice:   decimal.RequireFromString("10"),
			Quantity:    *stock,
		})
		if err != nil {
			log.Fatalf("failed to set stock: %v", err)
		}
	}

	svc := service.NewCheckoutService(store)

	var committed, insufficient, lockTimeouts, other atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *requests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			// alternate submission order so every pair of checkouts contends on both rows
			first, second := codeA, codeB
			if n%2 == 1 {
				first, second = codeB, codeA
			}
			price := decimal.RequireFromString("10")
			req := domain.CheckoutRequest{
				Header: domain.ReceiptHeader{
					Number:     fmt.Sprintf("CHECK%05d", n),
					EmployeeID: "E001",
					Total:      decimal.RequireFromString("20"),
					Tax:        decimal.RequireFromString("4"),
				},
				Items: []domain.LineItem{
					{ProductCode: first, Quantity: 1, UnitPrice: price},
					{ProductCode: second, Quantity: 1, UnitPrice: price},
				},
			}

			_, err := svc.SubmitCheckout(ctx, req)
			switch {
			case err == nil:
				committed.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				insufficient.Add(1)
			case errors.Is(err, domain.ErrLockTimeout):
				lockTimeouts.Add(1)
			default:
				other.Add(1)
				log.Printf("checkout %d: %v", n, err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	finalA, errA := store.GetInventory(ctx, codeA)
	finalB, errB := store.GetInventory(ctx, codeB)
	if err := errors.Join(errA, errB); err != nil {
		log.Fatalf("failed to read final stock: %v", err)
	}

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Driver:           %s\n", *driver)
	fmt.Printf("Initial Stock:    %d per product\n", *stock)
	fmt.Printf("Total Requests:   %d\n", *requests)
	fmt.Printf("Committed:        %d\n", committed.Load())
	fmt.Printf("Insufficient:     %d\n", insufficient.Load())
	fmt.Printf("Lock Timeouts:    %d\n", lockTimeouts.Load())
	fmt.Printf("Other Errors:     %d\n", other.Load())
	fmt.Printf("Final Stock:      %s=%d %s=%d\n", codeA, finalA.Quantity, codeB, finalB.Quantity)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	ok := true
	sold := int(committed.Load())
	if finalA.Quantity < 0 || finalB.Quantity < 0 {
		fmt.Println("FAIL: stock went negative")
		ok = false
	}
	if finalA.Quantity != *stock-sold || finalB.Quantity != *stock-sold {
		fmt.Printf("FAIL: expected %d left of each, committed %d\n", *stock-sold, sold)
		ok = false
	}
	if lockTimeouts.Load() == 0 && sold != min(*stock, *requests) {
		fmt.Printf("FAIL: expected %d committed, got %d\n", min(*stock, *requests), sold)
		ok = false
	}
	if other.Load() > 0 {
		fmt.Println("FAIL: unexpected errors")
		ok = false
	}

	if !ok {
		os.Exit(1)
	}
	fmt.Println("PASS: no oversell, stock matches committed receipts")
}
