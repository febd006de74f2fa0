package payment

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"math"
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/bus-reservations/internal/domain"
	"github.com/robertarktes/bus-reservations/internal/observability"
)

// Transactions persists the correlation between bookings and provider
// order codes. The postgres adapter implements it.
type Transactions interface {
	CreateTransaction(ctx context.Context, t domain.PaymentTransaction) error
	TransactionByOrderCode(ctx context.Context, orderCode int64) (*domain.PaymentTransaction, error)
	SetTransactionStatus(ctx context.Context, orderCode int64, status domain.PaymentStatus) error
}

// Reconciler is the slice of the booking service the bridge drives.
type Reconciler interface {
	ByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	Confirm(ctx context.Context, id uuid.UUID) error
	Cancel(ctx context.Context, id uuid.UUID) error
}

// Dedupe drops redelivered webhook events by order code. Processed
// reports whether an order was already applied; MarkProcessed records it
// once the transition has taken effect.
type Dedupe interface {
	Processed(ctx context.Context, orderCode int64) (bool, error)
	MarkProcessed(ctx context.Context, orderCode int64) (bool, error)
}

// SeatLocks commits soft holds once their seats are durably paid for.
type SeatLocks interface {
	CommitForBooking(ctx context.Context, tripID string, seatCodes []string)
}

// ProviderClient polls the payment provider when the webhook is
// unreachable. Returns the provider's status code for the order.
type ProviderClient interface {
	PaymentStatus(ctx context.Context, orderCode int64) (string, error)
}

// WebhookEvent is the terminal payment signal delivered by the provider.
type WebhookEvent struct {
	OrderCode   int64  `json:"orderCode"`
	StatusCode  string `json:"code"`
	ReferenceID string `json:"reference"`
}

// Bridge turns terminal payment signals into booking state transitions:
// success confirms the booking and commits its seats, failure runs the
// same release path as a manual cancellation.
type Bridge struct {
	txs        Transactions
	reconciler Reconciler
	dedupe     Dedupe
	locks      SeatLocks
	provider   ProviderClient
	logger     observability.Logger

	successCode      string
	pendingCode      string
	sandboxOrderCode int64
	checksumKey      string
}

func NewBridge(txs Transactions, reconciler Reconciler, dedupe Dedupe, locks SeatLocks, provider ProviderClient, logger observability.Logger, successCode, pendingCode string, sandboxOrderCode int64, checksumKey string) *Bridge {
	return &Bridge{
		txs:              txs,
		reconciler:       reconciler,
		dedupe:           dedupe,
		locks:            locks,
		provider:         provider,
		logger:           logger,
		successCode:      successCode,
		pendingCode:      pendingCode,
		sandboxOrderCode: sandboxOrderCode,
		checksumKey:      checksumKey,
	}
}

// InitiatePayment opens a PENDING transaction for a PENDING booking and
// returns the order code the client hands to the payment provider.
func (b *Bridge) InitiatePayment(ctx context.Context, bookingID uuid.UUID) (*domain.PaymentTransaction, error) {
	bk, err := b.reconciler.ByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if bk.Status != domain.BookingPending {
		return nil, errors.Wrapf(domain.ErrInvalidState, "payment requires PENDING, booking %s is %s", bk.Code, bk.Status)
	}
	n, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return nil, err
	}
	t := domain.PaymentTransaction{
		ID:        uuid.New(),
		BookingID: bookingID,
		OrderCode: n.Int64(),
		Status:    domain.PaymentPending,
		Amount:    bk.TotalPrice,
	}
	if err := b.txs.CreateTransaction(ctx, t); err != nil {
		return nil, err
	}
	return &t, nil
}

// HandleWebhook processes one provider delivery. Signature failure rejects
// the request with no state change; sandbox, duplicate and already-terminal
// deliveries are logged and dropped.
func (b *Bridge) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if err := verifySignature(b.checksumKey, body, signature); err != nil {
		observability.WebhookEvents.WithLabelValues("bad_signature").Inc()
		return err
	}

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return errors.Wrap(domain.ErrInvalidInput, err.Error())
	}

	log := b.logger.WithField("order_code", event.OrderCode)

	if event.OrderCode == b.sandboxOrderCode {
		observability.WebhookEvents.WithLabelValues("sandbox").Inc()
		log.Info("payment: sandbox webhook ignored")
		return nil
	}

	seen, err := b.dedupe.Processed(ctx, event.OrderCode)
	if err != nil {
		return err
	}
	if seen {
		observability.WebhookEvents.WithLabelValues("duplicate").Inc()
		log.Info("payment: duplicate webhook dropped")
		return nil
	}

	t, err := b.txs.TransactionByOrderCode(ctx, event.OrderCode)
	if err != nil {
		return err
	}
	if t.Terminal() {
		observability.WebhookEvents.WithLabelValues("already_terminal").Inc()
		log.WithField("status", t.Status).Info("payment: transaction already settled, webhook dropped")
		return nil
	}

	if err := b.apply(ctx, t, event.StatusCode); err != nil {
		return err
	}
	// Marked only after the transition committed, so a provider retry
	// after a transient failure is not dropped as a duplicate. The
	// terminal-transaction check above keeps redeliveries idempotent even
	// when this marker write is lost.
	if _, err := b.dedupe.MarkProcessed(ctx, event.OrderCode); err != nil {
		log.WithError(err).Warn("payment: dedupe marker not recorded")
	}
	return nil
}

// Verify is the polling fallback for lost webhooks. Idempotent against an
// already-SUCCESS transaction; otherwise asks the provider for the order's
// status and applies the identical transition.
func (b *Bridge) Verify(ctx context.Context, orderCode int64) (*domain.PaymentTransaction, error) {
	t, err := b.txs.TransactionByOrderCode(ctx, orderCode)
	if err != nil {
		return nil, err
	}
	if t.Status == domain.PaymentSuccess {
		return t, nil
	}
	if b.provider == nil {
		return t, nil
	}
	status, err := b.provider.PaymentStatus(ctx, orderCode)
	if err != nil {
		return nil, err
	}
	if status == "" || status == b.pendingCode {
		return t, nil
	}
	if err := b.apply(ctx, t, status); err != nil {
		return nil, err
	}
	return b.txs.TransactionByOrderCode(ctx, orderCode)
}

// apply records the terminal transaction status and drives the booking
// transition: CONFIRMED plus seat commit on success, the shared
// cancel/release path on failure.
func (b *Bridge) apply(ctx context.Context, t *domain.PaymentTransaction, statusCode string) error {
	log := b.logger.WithField("order_code", t.OrderCode).WithField("booking_id", t.BookingID)

	if statusCode == b.successCode {
		if err := b.txs.SetTransactionStatus(ctx, t.OrderCode, domain.PaymentSuccess); err != nil {
			return err
		}
		bk, err := b.reconciler.ByID(ctx, t.BookingID)
		if err != nil {
			return err
		}
		seats := bk.SeatCodes()
		if err := b.reconciler.Confirm(ctx, t.BookingID); err != nil {
			return err
		}
		b.locks.CommitForBooking(ctx, bk.TripID.String(), seats)
		observability.WebhookEvents.WithLabelValues("success").Inc()
		log.Info("payment: booking confirmed")
		return nil
	}

	if err := b.txs.SetTransactionStatus(ctx, t.OrderCode, domain.PaymentFailed); err != nil {
		return err
	}
	if err := b.reconciler.Cancel(ctx, t.BookingID); err != nil {
		return err
	}
	observability.WebhookEvents.WithLabelValues("failed").Inc()
	log.WithField("status_code", statusCode).Info("payment: failed, booking cancelled")
	return nil
}
