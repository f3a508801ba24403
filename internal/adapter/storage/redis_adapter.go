package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/zlagoda/internal/core/domain"
	"github.com/rl1809/zlagoda/internal/port"
)

const (
	inventoryKeyPrefix = "inventory:"
	staleKeyPrefix     = "inventory-stale:"
	staleMarkerTTL     = 2 * time.Second
)

// A snapshot read before a commit must not land after that commit's invalidation,
// so Invalidate leaves a short stale marker that blocks the set.
var setSnapshotScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
	return 0
end

redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 1
`)

type RedisAdapter struct {
	client *redis.Client
	ttl    time.Duration
}

var _ port.StockCache = (*RedisAdapter)(nil)

func NewRedisAdapter(client *redis.Client, ttl time.Duration) *RedisAdapter {
	return &RedisAdapter{client: client, ttl: ttl}
}

func (r *RedisAdapter) GetInventory(ctx context.Context, productCode string) (domain.InventoryRecord, bool, error) {
	raw, err := r.client.Get(ctx, inventoryKeyPrefix+productCode).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.InventoryRecord{}, false, nil
	}
	if err != nil {
		return domain.InventoryRecord{}, false, err
	}

	var rec domain.InventoryRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.InventoryRecord{}, false, fmt.Errorf("decode cached %s: %w", productCode, err)
	}
	return rec, true, nil
}

func (r *RedisAdapter) SetInventory(ctx context.Context, rec domain.InventoryRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	keys := []string{inventoryKeyPrefix + rec.ProductCode, staleKeyPrefix + rec.ProductCode}
	return setSnapshotScript.Run(ctx, r.client, keys, raw, r.ttl.Milliseconds()).Err()
}

func (r *RedisAdapter) Invalidate(ctx context.Context, productCodes ...string) error {
	if len(productCodes) == 0 {
		return nil
	}

	pipe := r.client.TxPipeline()
	for _, code := range productCodes {
		pipe.Set(ctx, staleKeyPrefix+code, 1, staleMarkerTTL)
		pipe.Del(ctx, inventoryKeyPrefix+code)
	}
	_, err := pipe.Exec(ctx)
	return err
}
