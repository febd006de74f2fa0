package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	mongoadapter "github.com/robertarktes/bus-reservations/internal/adapters/mongo"
	"github.com/robertarktes/bus-reservations/internal/adapters/postgres"
	"github.com/robertarktes/bus-reservations/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/bus-reservations/internal/adapters/redis"
	"github.com/robertarktes/bus-reservations/internal/booking"
	"github.com/robertarktes/bus-reservations/internal/config"
	"github.com/robertarktes/bus-reservations/internal/observability"
	"github.com/robertarktes/bus-reservations/internal/seatlock"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// The expiry worker reaps PENDING bookings whose payment never arrived:
// webhook lost, user walked away. Soft holds expire on their own in the
// lock store; this sweeps the durable side through the normal cancel path
// so seats and holds are released identically to a manual cancellation.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	ledger := postgres.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database("catalog")
	catalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	audit := mongoadapter.NewAuditLogger(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	lockStore := redisadapter.NewLockStore(redisClient)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}

	locks := seatlock.NewManager(lockStore, rabbitPub, logger, cfg.HoldTTL)
	bookings := booking.NewService(ledger, catalog, locks, audit, logger,
		cfg.BookingCodePrefix, cfg.BookingCodeLength, cfg.BookingCodeAttempts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go run(ctx, bookings, cfg.PendingTTL, time.Minute, logger)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown expiry worker")
}

func run(ctx context.Context, bookings *booking.Service, pendingTTL, interval time.Duration, logger observability.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			reaped, err := bookings.ExpireStalePending(ctx, now.Add(-pendingTTL))
			if err != nil {
				logger.WithError(err).Error("expiry: sweep failed")
				continue
			}
			if reaped > 0 {
				logger.WithField("count", reaped).Info("expiry: stale pending bookings cancelled")
			}
		}
	}
}
