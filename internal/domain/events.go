package domain

import "github.com/google/uuid"

type SeatStatus string

const (
	SeatLocked    SeatStatus = "LOCKED"
	SeatAvailable SeatStatus = "AVAILABLE"
	SeatBooked    SeatStatus = "BOOKED"
)

// SeatStatusEvent is broadcast on a per-trip topic whenever a seat's
// soft-hold state changes. Pure UI hint, at-most-once delivery.
type SeatStatusEvent struct {
	SeatCode string     `json:"seat_code"`
	Status   SeatStatus `json:"status"`
	HolderID string     `json:"holder_id,omitempty"`
}

// OutboxEvent is a lifecycle notification persisted in the same
// transaction as the state change that produced it. The outbox publisher
// relays it to the broker afterwards; a crash between transition and relay
// delays the event but never loses it.
type OutboxEvent struct {
	EventType string
	BookingID uuid.UUID
	Payload   []byte
	DedupeKey string
}
