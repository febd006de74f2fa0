package main

import (
	"context"
	"log"
	"net/http"
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
	httphandler "github.com/robertarktes/bus-reservations/internal/http"
	"github.com/robertarktes/bus-reservations/internal/observability"
	"github.com/robertarktes/bus-reservations/internal/payment"
	"github.com/robertarktes/bus-reservations/internal/rateLimit"
	"github.com/robertarktes/bus-reservations/internal/seatlock"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

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
	dedupe := redisadapter.NewDedupe(redisClient, 24*time.Hour)
	rl := rateLimit.NewRateLimiter(redisadapter.NewCache(redisClient))

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
	bridge := payment.NewBridge(ledger, bookings, dedupe, locks, nil, logger,
		cfg.PaymentSuccessCode, cfg.PaymentPendingCode, cfg.PaymentSandboxOrderCode, cfg.PaymentChecksumKey)

	handlers := httphandler.NewHandlers(bookings, bridge, locks, logger)
	r := httphandler.SetupRouter(handlers, logger, rl)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown Server ...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("server: %v", err)
	}
	logger.Info("Server exiting")
}
