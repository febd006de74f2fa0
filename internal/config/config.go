package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr     string
	PostgresDSN  string
	MongoURI     string
	RedisAddr    string
	RabbitURL    string
	OTLPEndpoint string

	// HoldTTL bounds how long a seat-picker soft hold lives without being
	// converted to a booking.
	HoldTTL time.Duration
	// PendingTTL bounds how long a PENDING booking may wait for payment
	// before the expiry worker cancels it.
	PendingTTL time.Duration

	// PaymentSuccessCode is the provider status code meaning "paid"; any
	// other terminal code is a failure.
	PaymentSuccessCode string
	// PaymentPendingCode is the provider status code for an order that is
	// not settled yet, left untouched by the verify fallback.
	PaymentPendingCode string
	// PaymentSandboxOrderCode marks the provider's test webhook, which is
	// acknowledged but never processed.
	PaymentSandboxOrderCode int64
	PaymentChecksumKey      string

	BookingCodePrefix   string
	BookingCodeLength   int
	BookingCodeAttempts int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	holdTTL, _ := time.ParseDuration(os.Getenv("HOLD_TTL"))
	if holdTTL == 0 {
		holdTTL = 10 * time.Minute
	}
	pendingTTL, _ := time.ParseDuration(os.Getenv("PENDING_TTL"))
	if pendingTTL == 0 {
		pendingTTL = 30 * time.Minute
	}

	successCode := os.Getenv("PAYMENT_SUCCESS_CODE")
	if successCode == "" {
		successCode = "00"
	}
	pendingCode := os.Getenv("PAYMENT_PENDING_CODE")
	if pendingCode == "" {
		pendingCode = "PENDING"
	}
	sandboxOrder, _ := strconv.ParseInt(os.Getenv("PAYMENT_SANDBOX_ORDER_CODE"), 10, 64)
	if sandboxOrder == 0 {
		sandboxOrder = 123
	}

	prefix := os.Getenv("BOOKING_CODE_PREFIX")
	if prefix == "" {
		prefix = "BK"
	}
	codeLen, _ := strconv.Atoi(os.Getenv("BOOKING_CODE_LENGTH"))
	if codeLen == 0 {
		codeLen = 8
	}
	attempts, _ := strconv.Atoi(os.Getenv("BOOKING_CODE_ATTEMPTS"))
	if attempts == 0 {
		attempts = 5
	}

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	return &Config{
		HTTPAddr:                addr,
		PostgresDSN:             os.Getenv("POSTGRES_DSN"),
		MongoURI:                os.Getenv("MONGO_URI"),
		RedisAddr:               os.Getenv("REDIS_ADDR"),
		RabbitURL:               os.Getenv("RABBIT_URL"),
		OTLPEndpoint:            os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		HoldTTL:                 holdTTL,
		PendingTTL:              pendingTTL,
		PaymentSuccessCode:      successCode,
		PaymentPendingCode:      pendingCode,
		PaymentSandboxOrderCode: sandboxOrder,
		PaymentChecksumKey:      os.Getenv("PAYMENT_CHECKSUM_KEY"),
		BookingCodePrefix:       prefix,
		BookingCodeLength:       codeLen,
		BookingCodeAttempts:     attempts,
	}, nil
}
