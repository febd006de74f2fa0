package domain

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingRefunded  BookingStatus = "REFUNDED"
)

// Booking is the durable record of a seat purchase on a trip. Status
// transitions are owned by the booking service; nobody else writes them.
type Booking struct {
	ID             uuid.UUID
	Code           string
	Status         BookingStatus
	TripID         uuid.UUID
	OwnerID        string // user uuid or guest token, empty for anonymous
	PassengerName  string
	PassengerPhone string
	PassengerEmail string
	ContactEmail   string
	PickupStopID   uuid.UUID
	DropoffStopID  uuid.UUID
	TotalPrice     float64
	Tickets        []Ticket
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Ticket binds one seat of a trip to a booking. (trip_id, seat_code) is
// unique in the ledger across all live bookings.
type Ticket struct {
	ID            uuid.UUID
	BookingID     uuid.UUID
	TripID        uuid.UUID
	SeatCode      string
	PassengerName string
	Price         float64
}

// SeatSelection is a requested seat with its catalog price.
type SeatSelection struct {
	SeatCode string
	Price    float64
}

// NewBooking assembles a PENDING booking with one ticket per selected seat.
// The total is computed from the per-seat prices, never taken from the
// client request.
func NewBooking(tripID uuid.UUID, ownerID string, code string, seats []SeatSelection) Booking {
	now := time.Now()
	b := Booking{
		ID:        uuid.New(),
		Code:      code,
		Status:    BookingPending,
		TripID:    tripID,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, s := range seats {
		b.Tickets = append(b.Tickets, Ticket{
			ID:        uuid.New(),
			BookingID: b.ID,
			TripID:    tripID,
			SeatCode:  s.SeatCode,
			Price:     s.Price,
		})
		b.TotalPrice += s.Price
	}
	return b
}

// SeatCodes lists the booking's seats in ticket order.
func (b Booking) SeatCodes() []string {
	codes := make([]string, len(b.Tickets))
	for i, t := range b.Tickets {
		codes[i] = t.SeatCode
	}
	return codes
}

// RecipientEmail resolves where a confirmation should go: the passenger's
// own email when present, otherwise the account contact email.
func (b Booking) RecipientEmail() string {
	if b.PassengerEmail != "" {
		return b.PassengerEmail
	}
	return b.ContactEmail
}

// SameSeatSet reports whether the booking's current seats are exactly the
// requested set, ignoring order.
func (b Booking) SameSeatSet(seats []SeatSelection) bool {
	if len(b.Tickets) != len(seats) {
		return false
	}
	have := make(map[string]bool, len(b.Tickets))
	for _, t := range b.Tickets {
		have[t.SeatCode] = true
	}
	for _, s := range seats {
		if !have[s.SeatCode] {
			return false
		}
	}
	return true
}
