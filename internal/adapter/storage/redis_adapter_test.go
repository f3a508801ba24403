package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/zlagoda/internal/core/domain"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func cachedRecord(code string, qty int) domain.InventoryRecord {
	return domain.InventoryRecord{
		ProductCode: code,
		ProductID:   7,
		UnitPrice:   decimal.RequireFromString("12.50"),
		Quantity:    qty,
		UpdatedAt:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestRedisAdapter_SetAndGet(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client, time.Minute)
	code := "900000000001"

	client.Del(ctx, inventoryKeyPrefix+code, staleKeyPrefix+code)

	if err := adapter.SetInventory(ctx, cachedRecord(code, 5)); err != nil {
		t.Fatalf("SetInventory failed: %v", err)
	}

	got, ok, err := adapter.GetInventory(ctx, code)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Quantity != 5 || !got.UnitPrice.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("unexpected snapshot: %+v", got)
	}

	ttl := client.PTTL(ctx, inventoryKeyPrefix+code).Val()
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("expected ttl within a minute, got %v", ttl)
	}

	client.Del(ctx, inventoryKeyPrefix+code)
}

func TestRedisAdapter_Miss(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client, time.Minute)

	client.Del(ctx, inventoryKeyPrefix+"900000000002")

	_, ok, err := adapter.GetInventory(ctx, "900000000002")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected cache miss")
	}
}

func TestRedisAdapter_InvalidateBlocksStaleSet(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client, time.Minute)
	code := "900000000003"

	client.Del(ctx, inventoryKeyPrefix+code, staleKeyPrefix+code)
	adapter.SetInventory(ctx, cachedRecord(code, 5))

	if err := adapter.Invalidate(ctx, code); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, ok, _ := adapter.GetInventory(ctx, code); ok {
		t.Fatal("expected snapshot to be gone")
	}

	// a reader that loaded the row before the commit tries to refill the cache
	if err := adapter.SetInventory(ctx, cachedRecord(code, 5)); err != nil {
		t.Fatalf("SetInventory failed: %v", err)
	}
	if _, ok, _ := adapter.GetInventory(ctx, code); ok {
		t.Error("stale snapshot was cached after invalidation")
	}

	client.Del(ctx, staleKeyPrefix+code)
	if err := adapter.SetInventory(ctx, cachedRecord(code, 2)); err != nil {
		t.Fatalf("SetInventory failed: %v", err)
	}
	got, ok, _ := adapter.GetInventory(ctx, code)
	if !ok || got.Quantity != 2 {
		t.Errorf("expected fresh snapshot with quantity 2, got %+v ok=%v", got, ok)
	}

	client.Del(ctx, inventoryKeyPrefix+code)
}

func TestRedisAdapter_InvalidateNothing(t *testing.T) {
	adapter := NewRedisAdapter(nil, time.Minute)
	if err := adapter.Invalidate(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
