package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/bus-reservations/internal/domain"
	"github.com/robertarktes/bus-reservations/internal/observability"
)

// Ledger is the durable booking store, the single source of truth for
// committed seats. The postgres adapter implements it.
type Ledger interface {
	ConflictingBookings(ctx context.Context, tripID uuid.UUID, seatCodes []string, exclude uuid.UUID) ([]domain.Booking, error)
	BookingByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	BookingByCode(ctx context.Context, code string) (*domain.Booking, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	CreateBooking(ctx context.Context, b domain.Booking, cancelIDs []uuid.UUID) error
	OverwriteDetails(ctx context.Context, b *domain.Booking) error
	TerminateBooking(ctx context.Context, id uuid.UUID, status domain.BookingStatus, ev *domain.OutboxEvent) error
	SetStatus(ctx context.Context, id uuid.UUID, status domain.BookingStatus, ev *domain.OutboxEvent) error
	ReplaceTickets(ctx context.Context, bookingID uuid.UUID, tickets []domain.Ticket, total float64) error
	StalePending(ctx context.Context, cutoff time.Time) ([]domain.Booking, error)
}

// Catalog reads trip data (departure, stops) maintained elsewhere.
type Catalog interface {
	TripByID(ctx context.Context, id uuid.UUID) (*domain.Trip, error)
}

// SeatLocks is the soft-hold layer the service clears after ledger writes.
type SeatLocks interface {
	ReleaseForBooking(ctx context.Context, tripID string, seatCodes []string)
	CommitForBooking(ctx context.Context, tripID string, seatCodes []string)
}

// Auditor records lifecycle transitions; best effort.
type Auditor interface {
	BookingEvent(ctx context.Context, action string, b domain.Booking)
}

// Service owns the booking lifecycle state machine. It is the only
// component permitted to transition booking status.
type Service struct {
	ledger  Ledger
	catalog Catalog
	locks   SeatLocks
	audit   Auditor
	logger  observability.Logger

	codePrefix   string
	codeLength   int
	codeAttempts int

	now func() time.Time
}

func NewService(ledger Ledger, catalog Catalog, locks SeatLocks, audit Auditor, logger observability.Logger, codePrefix string, codeLength, codeAttempts int) *Service {
	return &Service{
		ledger:       ledger,
		catalog:      catalog,
		locks:        locks,
		audit:        audit,
		logger:       logger,
		codePrefix:   codePrefix,
		codeLength:   codeLength,
		codeAttempts: codeAttempts,
		now:          time.Now,
	}
}

// outboxEvent renders the durable notification committed together with the
// transition it describes. Downstream consumers (confirmation mailer,
// dashboards) receive it via the outbox relay.
func outboxEvent(eventType string, b domain.Booking) (*domain.OutboxEvent, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"booking_id": b.ID,
		"code":       b.Code,
		"trip_id":    b.TripID,
		"status":     b.Status,
		"seats":      b.SeatCodes(),
		"total":      b.TotalPrice,
		"email":      b.RecipientEmail(),
	})
	if err != nil {
		return nil, err
	}
	return &domain.OutboxEvent{
		EventType: eventType,
		BookingID: b.ID,
		Payload:   payload,
		DedupeKey: fmt.Sprintf("%s:%s", eventType, b.ID),
	}, nil
}

type CreateInput struct {
	TripID         uuid.UUID
	OwnerID        string
	PassengerName  string
	PassengerPhone string
	PassengerEmail string
	ContactEmail   string
	PickupStopID   uuid.UUID
	DropoffStopID  uuid.UUID
	Seats          []domain.SeatSelection
}

// Create runs the reserve operation: authoritative ledger conflict check,
// self-healing against the requester's own PENDING booking, stop
// resolution, code generation and all-or-nothing persistence of the new
// PENDING booking. The soft-hold layer is not consulted here; callers
// commit their now-redundant holds once persistence succeeds.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Booking, error) {
	if len(in.Seats) == 0 || in.PassengerName == "" || in.PassengerPhone == "" {
		return nil, errors.Wrap(domain.ErrInvalidInput, "passenger name, phone and at least one seat required")
	}
	seen := make(map[string]bool, len(in.Seats))
	for _, seat := range in.Seats {
		if seat.SeatCode == "" || seen[seat.SeatCode] {
			return nil, errors.Wrapf(domain.ErrInvalidInput, "duplicate or empty seat code %q", seat.SeatCode)
		}
		seen[seat.SeatCode] = true
	}

	trip, err := s.catalog.TripByID(ctx, in.TripID)
	if err != nil {
		return nil, err
	}
	if trip.Departed(s.now()) {
		return nil, errors.Wrap(domain.ErrInvalidState, "trip already departed")
	}
	if err := validateStops(*trip, in.PickupStopID, in.DropoffStopID); err != nil {
		return nil, err
	}

	codes := make([]string, len(in.Seats))
	for i, seat := range in.Seats {
		codes[i] = seat.SeatCode
	}
	conflicts, err := s.ledger.ConflictingBookings(ctx, in.TripID, codes, uuid.Nil)
	if err != nil {
		return nil, err
	}

	var superseded []domain.Booking
	for _, existing := range conflicts {
		switch resolveConflict(existing, in.OwnerID, in.Seats) {
		case actUpdateInPlace:
			return s.updateInPlace(ctx, existing, in)
		case actSupersede:
			superseded = append(superseded, existing)
		default:
			observability.SeatConflicts.Inc()
			return nil, errors.Wrapf(domain.ErrSeatConflict, "seat %s", offendingSeat(existing, in.Seats))
		}
	}

	code, err := s.newCode(ctx)
	if err != nil {
		return nil, err
	}

	b := domain.NewBooking(in.TripID, in.OwnerID, code, in.Seats)
	b.PassengerName = in.PassengerName
	b.PassengerPhone = in.PassengerPhone
	b.PassengerEmail = in.PassengerEmail
	b.ContactEmail = in.ContactEmail
	b.PickupStopID = in.PickupStopID
	b.DropoffStopID = in.DropoffStopID
	for i := range b.Tickets {
		b.Tickets[i].PassengerName = in.PassengerName
	}

	cancelIDs := make([]uuid.UUID, len(superseded))
	for i, old := range superseded {
		cancelIDs[i] = old.ID
	}
	if err := s.ledger.CreateBooking(ctx, b, cancelIDs); err != nil {
		if errors.Is(err, domain.ErrSeatConflict) {
			// Lost the commit-time race with a concurrent reservation.
			observability.SeatConflicts.Inc()
		}
		return nil, err
	}

	tripID := in.TripID.String()
	for _, old := range superseded {
		s.locks.ReleaseForBooking(ctx, tripID, old.SeatCodes())
		old.Status = domain.BookingCancelled
		s.auditEvent(ctx, "booking.superseded", old)
	}
	s.auditEvent(ctx, "booking.created", b)
	return &b, nil
}

// updateInPlace handles the idempotent re-submission: same requester, same
// PENDING booking, identical seat set. Details are overwritten and the
// existing booking returned; no duplicate is created.
func (s *Service) updateInPlace(ctx context.Context, existing domain.Booking, in CreateInput) (*domain.Booking, error) {
	existing.PassengerName = in.PassengerName
	existing.PassengerPhone = in.PassengerPhone
	existing.PassengerEmail = in.PassengerEmail
	existing.ContactEmail = in.ContactEmail
	existing.PickupStopID = in.PickupStopID
	existing.DropoffStopID = in.DropoffStopID
	if err := s.ledger.OverwriteDetails(ctx, &existing); err != nil {
		return nil, err
	}
	s.auditEvent(ctx, "booking.resubmitted", existing)
	return &existing, nil
}

// validateStops checks that pickup and dropoff are legal for the route and
// that boarding happens strictly before alighting.
func validateStops(trip domain.Trip, pickupID, dropoffID uuid.UUID) error {
	pickup, ok := trip.ResolveStop(pickupID, true)
	if !ok {
		return errors.Wrapf(domain.ErrNotFound, "pickup stop %s not available on route", pickupID)
	}
	dropoff, ok := trip.ResolveStop(dropoffID, false)
	if !ok {
		return errors.Wrapf(domain.ErrNotFound, "dropoff stop %s not available on route", dropoffID)
	}
	if pickup.Seq >= dropoff.Seq {
		return errors.Wrapf(domain.ErrStopOrder, "pickup seq %d, dropoff seq %d", pickup.Seq, dropoff.Seq)
	}
	return nil
}

// Cancel releases a booking's seats back to the pool. CONFIRMED bookings
// can only be cancelled before the trip departs; CANCELLED and REFUNDED
// are terminal.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	b, err := s.ledger.BookingByID(ctx, id)
	if err != nil {
		return err
	}
	switch b.Status {
	case domain.BookingCancelled, domain.BookingRefunded:
		return errors.Wrapf(domain.ErrInvalidState, "booking %s is %s", b.Code, b.Status)
	case domain.BookingConfirmed:
		trip, err := s.catalog.TripByID(ctx, b.TripID)
		if err != nil {
			return err
		}
		if trip.Departed(s.now()) {
			return errors.Wrapf(domain.ErrInvalidState, "trip for booking %s already departed", b.Code)
		}
	}

	seats := b.SeatCodes()
	b.Status = domain.BookingCancelled
	ev, err := outboxEvent("booking.cancelled", *b)
	if err != nil {
		return err
	}
	if err := s.ledger.TerminateBooking(ctx, id, domain.BookingCancelled, ev); err != nil {
		return err
	}
	s.locks.ReleaseForBooking(ctx, b.TripID.String(), seats)
	s.auditEvent(ctx, "booking.cancelled", *b)
	return nil
}

// Confirm transitions PENDING → CONFIRMED, writing the confirmation event
// to the outbox in the same transaction as the status change.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) error {
	b, err := s.ledger.BookingByID(ctx, id)
	if err != nil {
		return err
	}
	if b.Status != domain.BookingPending {
		return errors.Wrapf(domain.ErrInvalidState, "confirm requires PENDING, booking %s is %s", b.Code, b.Status)
	}
	b.Status = domain.BookingConfirmed
	ev, err := outboxEvent("booking.confirmed", *b)
	if err != nil {
		return err
	}
	if err := s.ledger.SetStatus(ctx, id, domain.BookingConfirmed, ev); err != nil {
		return err
	}
	s.auditEvent(ctx, "booking.confirmed", *b)
	return nil
}

// Refund transitions CONFIRMED → REFUNDED, freeing the seats so the ledger
// index only ever carries live bookings.
func (s *Service) Refund(ctx context.Context, id uuid.UUID) error {
	b, err := s.ledger.BookingByID(ctx, id)
	if err != nil {
		return err
	}
	if b.Status != domain.BookingConfirmed {
		return errors.Wrapf(domain.ErrInvalidState, "refund requires CONFIRMED, booking %s is %s", b.Code, b.Status)
	}
	seats := b.SeatCodes()
	b.Status = domain.BookingRefunded
	ev, err := outboxEvent("booking.refunded", *b)
	if err != nil {
		return err
	}
	if err := s.ledger.TerminateBooking(ctx, id, domain.BookingRefunded, ev); err != nil {
		return err
	}
	s.locks.ReleaseForBooking(ctx, b.TripID.String(), seats)
	s.auditEvent(ctx, "booking.refunded", *b)
	return nil
}

type UpdateInput struct {
	PassengerName  string
	PassengerPhone string
	PassengerEmail string
	ContactEmail   string
	Seats          []domain.SeatSelection
}

// Update edits a PENDING booking. A new seat selection is re-validated
// against the ledger excluding the booking's own tickets; on conflict the
// whole update is rejected with no partial apply.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*domain.Booking, error) {
	b, err := s.ledger.BookingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != domain.BookingPending {
		return nil, errors.Wrapf(domain.ErrInvalidState, "update requires PENDING, booking %s is %s", b.Code, b.Status)
	}

	if len(in.Seats) > 0 && !b.SameSeatSet(in.Seats) {
		codes := make([]string, len(in.Seats))
		for i, seat := range in.Seats {
			codes[i] = seat.SeatCode
		}
		conflicts, err := s.ledger.ConflictingBookings(ctx, b.TripID, codes, b.ID)
		if err != nil {
			return nil, err
		}
		if len(conflicts) > 0 {
			observability.SeatConflicts.Inc()
			return nil, errors.Wrapf(domain.ErrSeatConflict, "seat %s", offendingSeat(conflicts[0], in.Seats))
		}

		name := b.PassengerName
		if in.PassengerName != "" {
			name = in.PassengerName
		}
		tickets := make([]domain.Ticket, len(in.Seats))
		var total float64
		for i, seat := range in.Seats {
			tickets[i] = domain.Ticket{
				ID:            uuid.New(),
				BookingID:     b.ID,
				TripID:        b.TripID,
				SeatCode:      seat.SeatCode,
				PassengerName: name,
				Price:         seat.Price,
			}
			total += seat.Price
		}
		if err := s.ledger.ReplaceTickets(ctx, b.ID, tickets, total); err != nil {
			if errors.Is(err, domain.ErrSeatConflict) {
				observability.SeatConflicts.Inc()
			}
			return nil, err
		}
	}

	if in.PassengerName != "" {
		b.PassengerName = in.PassengerName
	}
	if in.PassengerPhone != "" {
		b.PassengerPhone = in.PassengerPhone
	}
	if in.PassengerEmail != "" {
		b.PassengerEmail = in.PassengerEmail
	}
	if in.ContactEmail != "" {
		b.ContactEmail = in.ContactEmail
	}
	if err := s.ledger.OverwriteDetails(ctx, b); err != nil {
		return nil, err
	}

	updated, err := s.ledger.BookingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.auditEvent(ctx, "booking.updated", *updated)
	return updated, nil
}

// ByCode looks a booking up by its human-readable code.
func (s *Service) ByCode(ctx context.Context, code string) (*domain.Booking, error) {
	return s.ledger.BookingByCode(ctx, code)
}

// ByID looks a booking up by id.
func (s *Service) ByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return s.ledger.BookingByID(ctx, id)
}

// ExpireStalePending cancels PENDING bookings created before the cutoff,
// going through the normal cancel path so seats and holds are released the
// same way. Returns how many were reaped.
func (s *Service) ExpireStalePending(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := s.ledger.StalePending(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	reaped := 0
	for _, b := range stale {
		if err := s.Cancel(ctx, b.ID); err != nil {
			s.logger.WithError(err).WithField("booking_id", b.ID).Warn("expire: cancel failed")
			continue
		}
		reaped++
	}
	return reaped, nil
}

func (s *Service) auditEvent(ctx context.Context, action string, b domain.Booking) {
	if s.audit != nil {
		s.audit.BookingEvent(ctx, action, b)
	}
}
