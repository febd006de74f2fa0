package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	redisadapter "github.com/robertarktes/bus-reservations/internal/adapters/redis"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redisclient.Options {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForExec([]string{"redis-cli", "ping"}),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatal(err)
	}
	return &redisclient.Options{Addr: host + ":" + port.Port()}
}

func TestLockStore(t *testing.T) {
	client := redisclient.NewClient(startRedis(t))
	t.Cleanup(func() { client.Close() })
	store := redisadapter.NewLockStore(client)
	ctx := context.Background()

	ok, err := store.TryAcquire(ctx, "trip-1", "A1", "holder-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("TryAcquire = %v, %v; want granted", ok, err)
	}
	ok, err = store.TryAcquire(ctx, "trip-1", "A1", "holder-2", time.Minute)
	if err != nil || ok {
		t.Fatalf("second TryAcquire = %v, %v; want denied", ok, err)
	}

	holder, err := store.Holder(ctx, "trip-1", "A1")
	if err != nil || holder != "holder-1" {
		t.Fatalf("Holder = %q, %v; want holder-1", holder, err)
	}

	if _, err := store.TryAcquire(ctx, "trip-1", "A2", "holder-2", time.Minute); err != nil {
		t.Fatal(err)
	}
	snap, err := store.Snapshot(ctx, "trip-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap) != 2 || snap["A1"] != "holder-1" || snap["A2"] != "holder-2" {
		t.Errorf("Snapshot = %v", snap)
	}

	if err := store.Clear(ctx, "trip-1", "A1", "A2"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := store.TryAcquire(ctx, "trip-1", "A1", "holder-3", time.Minute); !ok {
		t.Error("seat must be grantable after Clear")
	}
}

// failNextPipeline lets one pipeline round-trip fail while plain commands
// keep working, the way a connection loss between SETNX and the holder-map
// write would.
type failNextPipeline struct {
	armed *bool
}

func (h failNextPipeline) DialHook(next redisclient.DialHook) redisclient.DialHook {
	return next
}

func (h failNextPipeline) ProcessHook(next redisclient.ProcessHook) redisclient.ProcessHook {
	return next
}

func (h failNextPipeline) ProcessPipelineHook(next redisclient.ProcessPipelineHook) redisclient.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redisclient.Cmder) error {
		if *h.armed {
			*h.armed = false
			return errors.New("broken pipe")
		}
		return next(ctx, cmds)
	}
}

func TestLockStore_NoOrphanOnPartialWrite(t *testing.T) {
	client := redisclient.NewClient(startRedis(t))
	t.Cleanup(func() { client.Close() })
	armed := false
	client.AddHook(failNextPipeline{armed: &armed})
	store := redisadapter.NewLockStore(client)
	ctx := context.Background()

	armed = true
	ok, err := store.TryAcquire(ctx, "trip-1", "A1", "holder-1", time.Hour)
	if err == nil || ok {
		t.Fatalf("TryAcquire with lost holder-map write = %v, %v; want error", ok, err)
	}

	// The seat key must not linger without a holder-map entry: the next
	// requester gets the seat instead of waiting out the TTL.
	ok, err = store.TryAcquire(ctx, "trip-1", "A1", "holder-2", time.Hour)
	if err != nil || !ok {
		t.Fatalf("TryAcquire after failed grant = %v, %v; want granted", ok, err)
	}
	holder, err := store.Holder(ctx, "trip-1", "A1")
	if err != nil || holder != "holder-2" {
		t.Errorf("Holder = %q, %v; want holder-2", holder, err)
	}
}

func TestDedupe(t *testing.T) {
	client := redisclient.NewClient(startRedis(t))
	t.Cleanup(func() { client.Close() })
	dedupe := redisadapter.NewDedupe(client, time.Hour)
	ctx := context.Background()

	seen, err := dedupe.Processed(ctx, 424242)
	if err != nil || seen {
		t.Fatalf("Processed before mark = %v, %v; want false", seen, err)
	}
	first, err := dedupe.MarkProcessed(ctx, 424242)
	if err != nil || !first {
		t.Fatalf("MarkProcessed = %v, %v; want first", first, err)
	}
	seen, err = dedupe.Processed(ctx, 424242)
	if err != nil || !seen {
		t.Errorf("Processed after mark = %v, %v; want true", seen, err)
	}
	if first, _ := dedupe.MarkProcessed(ctx, 424242); first {
		t.Error("second MarkProcessed must report the existing marker")
	}
}
