package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockStore holds soft seat holds: one TTL'd key per (trip, seat) for the
// exclusive grant, plus a per-trip hash mapping seat code to holder for
// bulk lookup and ownership checks. Hash fields carry the same TTL as the
// per-seat key so both views expire together.
type LockStore struct {
	client *redis.Client
}

func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

func seatKey(tripID, seatCode string) string {
	return fmt.Sprintf("seatlock:%s:%s", tripID, seatCode)
}

func mapKey(tripID string) string {
	return "seatmap:" + tripID
}

// TryAcquire attempts a non-blocking exclusive hold. Returns false when a
// live hold already exists for the seat.
func (s *LockStore) TryAcquire(ctx context.Context, tripID, seatCode, holderID string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, seatKey(tripID, seatCode), holderID, ttl).Result()
	if err != nil || !ok {
		return false, err
	}
	mk := mapKey(tripID)
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, mk, seatCode, holderID)
	pipe.HExpire(ctx, mk, ttl, seatCode)
	if _, err := pipe.Exec(ctx); err != nil {
		// Without a holder-map entry the seat key can never be released
		// by owner, so undo the grant rather than leave it until TTL.
		s.client.Del(ctx, seatKey(tripID, seatCode))
		return false, err
	}
	return true, nil
}

// Holder returns the current holder of a seat per the holder map, or ""
// when the seat is not held.
func (s *LockStore) Holder(ctx context.Context, tripID, seatCode string) (string, error) {
	holder, err := s.client.HGet(ctx, mapKey(tripID), seatCode).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return holder, nil
}

// Clear force-removes holds for the given seats regardless of holder.
func (s *LockStore) Clear(ctx context.Context, tripID string, seatCodes ...string) error {
	if len(seatCodes) == 0 {
		return nil
	}
	keys := make([]string, len(seatCodes))
	for i, code := range seatCodes {
		keys[i] = seatKey(tripID, code)
	}
	pipe := s.client.Pipeline()
	pipe.Del(ctx, keys...)
	pipe.HDel(ctx, mapKey(tripID), seatCodes...)
	_, err := pipe.Exec(ctx)
	return err
}

// Snapshot returns seat code → holder for every live hold on the trip.
func (s *LockStore) Snapshot(ctx context.Context, tripID string) (map[string]string, error) {
	return s.client.HGetAll(ctx, mapKey(tripID)).Result()
}
