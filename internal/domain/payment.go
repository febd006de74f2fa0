package domain

import (
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentSuccess PaymentStatus = "SUCCESS"
	PaymentFailed  PaymentStatus = "FAILED"
)

// PaymentTransaction correlates a booking with a payment-provider order
// code. The core only reacts to its terminal SUCCESS/FAILED signal.
type PaymentTransaction struct {
	ID        uuid.UUID
	BookingID uuid.UUID
	OrderCode int64
	Status    PaymentStatus
	Amount    float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Terminal reports whether the transaction already reached SUCCESS or
// FAILED, in which case webhook deliveries must not be re-applied.
func (t PaymentTransaction) Terminal() bool {
	return t.Status == PaymentSuccess || t.Status == PaymentFailed
}
