package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Dedupe records payment order codes whose webhook has already been
// processed, so redeliveries can be dropped without touching the ledger.
type Dedupe struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDedupe(client *redis.Client, ttl time.Duration) *Dedupe {
	return &Dedupe{client: client, ttl: ttl}
}

// Processed reports whether the order code was already recorded, i.e.
// this delivery is a redelivery of an applied event.
func (d *Dedupe) Processed(ctx context.Context, orderCode int64) (bool, error) {
	n, err := d.client.Exists(ctx, dedupeKey(orderCode)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkProcessed records the order code. Returns false when the code was
// already recorded.
func (d *Dedupe) MarkProcessed(ctx context.Context, orderCode int64) (bool, error) {
	return d.client.SetNX(ctx, dedupeKey(orderCode), 1, d.ttl).Result()
}

func dedupeKey(orderCode int64) string {
	return fmt.Sprintf("payproc:%d", orderCode)
}
