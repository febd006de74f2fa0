package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/bus-reservations/internal/domain"
	"github.com/robertarktes/bus-reservations/internal/observability"
)

type fakeLedger struct {
	bookings map[uuid.UUID]*domain.Booking
	events   []string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{bookings: make(map[uuid.UUID]*domain.Booking)}
}

func (f *fakeLedger) live(b *domain.Booking) bool {
	return b.Status == domain.BookingPending || b.Status == domain.BookingConfirmed
}

func (f *fakeLedger) ConflictingBookings(_ context.Context, tripID uuid.UUID, seatCodes []string, exclude uuid.UUID) ([]domain.Booking, error) {
	requested := make(map[string]bool, len(seatCodes))
	for _, c := range seatCodes {
		requested[c] = true
	}
	var out []domain.Booking
	for _, b := range f.bookings {
		if b.ID == exclude || b.TripID != tripID || !f.live(b) {
			continue
		}
		for _, t := range b.Tickets {
			if requested[t.SeatCode] {
				out = append(out, *b)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeLedger) BookingByID(_ context.Context, id uuid.UUID) (*domain.Booking, error) {
	b, ok := f.bookings[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copy := *b
	return &copy, nil
}

func (f *fakeLedger) BookingByCode(_ context.Context, code string) (*domain.Booking, error) {
	for _, b := range f.bookings {
		if b.Code == code {
			copy := *b
			return &copy, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeLedger) CodeExists(_ context.Context, code string) (bool, error) {
	for _, b := range f.bookings {
		if b.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLedger) CreateBooking(_ context.Context, b domain.Booking, cancelIDs []uuid.UUID) error {
	for _, id := range cancelIDs {
		old, ok := f.bookings[id]
		if !ok {
			return domain.ErrNotFound
		}
		old.Status = domain.BookingCancelled
		old.Tickets = nil
	}
	// Unique index on (trip_id, seat_code): live tickets only, since
	// terminal transitions delete their rows.
	for _, t := range b.Tickets {
		for _, other := range f.bookings {
			if other.TripID != b.TripID || !f.live(other) {
				continue
			}
			for _, ot := range other.Tickets {
				if ot.SeatCode == t.SeatCode {
					return domain.ErrSeatConflict
				}
			}
		}
	}
	copy := b
	f.bookings[b.ID] = &copy
	return nil
}

func (f *fakeLedger) OverwriteDetails(_ context.Context, b *domain.Booking) error {
	stored, ok := f.bookings[b.ID]
	if !ok {
		return domain.ErrNotFound
	}
	stored.PassengerName = b.PassengerName
	stored.PassengerPhone = b.PassengerPhone
	stored.PassengerEmail = b.PassengerEmail
	stored.ContactEmail = b.ContactEmail
	stored.PickupStopID = b.PickupStopID
	stored.DropoffStopID = b.DropoffStopID
	return nil
}

func (f *fakeLedger) TerminateBooking(_ context.Context, id uuid.UUID, status domain.BookingStatus, ev *domain.OutboxEvent) error {
	b, ok := f.bookings[id]
	if !ok {
		return domain.ErrNotFound
	}
	b.Tickets = nil
	b.Status = status
	if ev != nil {
		f.events = append(f.events, ev.EventType)
	}
	return nil
}

func (f *fakeLedger) SetStatus(_ context.Context, id uuid.UUID, status domain.BookingStatus, ev *domain.OutboxEvent) error {
	b, ok := f.bookings[id]
	if !ok {
		return domain.ErrNotFound
	}
	b.Status = status
	if ev != nil {
		f.events = append(f.events, ev.EventType)
	}
	return nil
}

func (f *fakeLedger) ReplaceTickets(_ context.Context, bookingID uuid.UUID, tickets []domain.Ticket, total float64) error {
	b, ok := f.bookings[bookingID]
	if !ok {
		return domain.ErrNotFound
	}
	b.Tickets = tickets
	b.TotalPrice = total
	return nil
}

func (f *fakeLedger) StalePending(_ context.Context, cutoff time.Time) ([]domain.Booking, error) {
	var out []domain.Booking
	for _, b := range f.bookings {
		if b.Status == domain.BookingPending && !b.CreatedAt.After(cutoff) {
			out = append(out, *b)
		}
	}
	return out, nil
}

type fakeCatalog struct {
	trips map[uuid.UUID]domain.Trip
}

func (f *fakeCatalog) TripByID(_ context.Context, id uuid.UUID) (*domain.Trip, error) {
	t, ok := f.trips[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

type lockCall struct {
	tripID string
	seats  []string
	commit bool
}

type fakeLocks struct {
	calls []lockCall
}

func (f *fakeLocks) ReleaseForBooking(_ context.Context, tripID string, seatCodes []string) {
	f.calls = append(f.calls, lockCall{tripID: tripID, seats: seatCodes})
}

func (f *fakeLocks) CommitForBooking(_ context.Context, tripID string, seatCodes []string) {
	f.calls = append(f.calls, lockCall{tripID: tripID, seats: seatCodes, commit: true})
}

type tripFixture struct {
	trip    domain.Trip
	pickup  uuid.UUID
	dropoff uuid.UUID
}

func newTripFixture(departure time.Time) tripFixture {
	origin := uuid.New()
	mid := uuid.New()
	dest := uuid.New()
	return tripFixture{
		trip: domain.Trip{
			ID:        uuid.New(),
			RouteID:   uuid.New(),
			Departure: departure,
			Stops: []domain.RouteStop{
				{StopID: origin, Seq: 0},
				{StopID: mid, Seq: 1, Pickup: true, Dropoff: true},
				{StopID: dest, Seq: 2},
			},
		},
		pickup:  origin,
		dropoff: dest,
	}
}

type serviceFixture struct {
	svc     *Service
	ledger  *fakeLedger
	locks   *fakeLocks
	catalog *fakeCatalog
}

func newServiceFixture(t *testing.T, trips ...domain.Trip) *serviceFixture {
	t.Helper()
	catalog := &fakeCatalog{trips: make(map[uuid.UUID]domain.Trip)}
	for _, tr := range trips {
		catalog.trips[tr.ID] = tr
	}
	ledger := newFakeLedger()
	locks := &fakeLocks{}
	svc := NewService(ledger, catalog, locks, nil, observability.NewLogger(), "BK", 8, 5)
	return &serviceFixture{svc: svc, ledger: ledger, locks: locks, catalog: catalog}
}

func createInput(f tripFixture, owner string, seats ...string) CreateInput {
	return CreateInput{
		TripID:         f.trip.ID,
		OwnerID:        owner,
		PassengerName:  "Dana Osei",
		PassengerPhone: "+15550100",
		PassengerEmail: "dana@example.com",
		PickupStopID:   f.pickup,
		DropoffStopID:  f.dropoff,
		Seats:          selections(seats...),
	}
}

func TestCreateBooking(t *testing.T) {
	f := newTripFixture(time.Now().Add(24 * time.Hour))
	fix := newServiceFixture(t, f.trip)

	b, err := fix.svc.Create(context.Background(), createInput(f, "user-1", "A1", "A2"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.Status != domain.BookingPending {
		t.Errorf("status = %s, want PENDING", b.Status)
	}
	if b.TotalPrice != 20 {
		t.Errorf("total = %v, want 20 (sum of seat prices)", b.TotalPrice)
	}
	if len(b.Code) != 10 || b.Code[:2] != "BK" {
		t.Errorf("code = %q, want BK prefix and 8 random chars", b.Code)
	}
	if b.CreatedAt.IsZero() {
		t.Error("returned booking must carry its creation time")
	}
}

func TestCreateBooking_SeatTakenByOtherRequester(t *testing.T) {
	f := newTripFixture(time.Now().Add(24 * time.Hour))
	fix := newServiceFixture(t, f.trip)
	ctx := context.Background()

	if _, err := fix.svc.Create(ctx, createInput(f, "user-1", "A1")); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := fix.svc.Create(ctx, createInput(f, "user-2", "A1"))
	if !errors.Is(err, domain.ErrSeatConflict) {
		t.Fatalf("expected seat conflict, got %v", err)
	}
	if len(fix.ledger.bookings) != 1 {
		t.Errorf("rejected create must leave no partial booking, have %d", len(fix.ledger.bookings))
	}
}

func TestCreateBooking_IdempotentResubmit(t *testing.T) {
	f := newTripFixture(time.Now().Add(24 * time.Hour))
	fix := newServiceFixture(t, f.trip)
	ctx := context.Background()

	first, err := fix.svc.Create(ctx, createInput(f, "user-1", "A1", "A2"))
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	in := createInput(f, "user-1", "A2", "A1")
	in.PassengerName = "Dana O. Updated"
	second, err := fix.svc.Create(ctx, in)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("resubmit created a new booking %s, want %s", second.ID, first.ID)
	}
	if len(fix.ledger.bookings) != 1 {
		t.Errorf("resubmit duplicated the booking, have %d", len(fix.ledger.bookings))
	}
	stored, _ := fix.ledger.BookingByID(ctx, first.ID)
	if stored.PassengerName != "Dana O. Updated" {
		t.Errorf("details not overwritten, name = %q", stored.PassengerName)
	}
}

func TestCreateBooking_SelfHealOnSeatChange(t *testing.T) {
	f := newTripFixture(time.Now().Add(24 * time.Hour))
	fix := newServiceFixture(t, f.trip)
	ctx := context.Background()

	old, err := fix.svc.Create(ctx, createInput(f, "user-1", "A1", "A2"))
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	fresh, err := fix.svc.Create(ctx, createInput(f, "user-1", "A2", "B1"))
	if err != nil {
		t.Fatalf("seat change: %v", err)
	}
	if fresh.ID == old.ID {
		t.Fatal("seat change must create a new booking")
	}
	cancelled, _ := fix.ledger.BookingByID(ctx, old.ID)
	if cancelled.Status != domain.BookingCancelled {
		t.Errorf("old booking = %s, want CANCELLED", cancelled.Status)
	}

	// The old seats must be free for other requesters right away.
	if _, err := fix.svc.Create(ctx, createInput(f, "user-2", "A1")); err != nil {
		t.Errorf("old seat should be available after self-heal: %v", err)
	}

	released := false
	for _, c := range fix.locks.calls {
		if !c.commit && c.tripID == f.trip.ID.String() {
			released = true
		}
	}
	if !released {
		t.Error("self-heal must release the superseded booking's holds")
	}
}

func TestCreateBooking_StopValidation(t *testing.T) {
	f := newTripFixture(time.Now().Add(24 * time.Hour))
	fix := newServiceFixture(t, f.trip)
	ctx := context.Background()

	in := createInput(f, "user-1", "A1")
	in.PickupStopID, in.DropoffStopID = in.DropoffStopID, in.PickupStopID
	if _, err := fix.svc.Create(ctx, in); err == nil {
		t.Error("reversed stops must be rejected")
	}

	in = createInput(f, "user-1", "A1")
	in.PickupStopID = uuid.New()
	if _, err := fix.svc.Create(ctx, in); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown pickup stop: got %v, want not found", err)
	}

	mid := f.trip.Stops[1].StopID
	in = createInput(f, "user-1", "A1")
	in.PickupStopID = mid
	in.DropoffStopID = mid
	if _, err := fix.svc.Create(ctx, in); !errors.Is(err, domain.ErrStopOrder) {
		t.Errorf("pickup not before dropoff: got %v, want stop order error", err)
	}
}

func TestCreateBooking_DepartedTrip(t *testing.T) {
	f := newTripFixture(time.Now().Add(-time.Hour))
	fix := newServiceFixture(t, f.trip)

	_, err := fix.svc.Create(context.Background(), createInput(f, "user-1", "A1"))
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("got %v, want invalid state for departed trip", err)
	}
}

func TestCancel(t *testing.T) {
	f := newTripFixture(time.Now().Add(24 * time.Hour))
	fix := newServiceFixture(t, f.trip)
	ctx := context.Background()

	b, err := fix.svc.Create(ctx, createInput(f, "user-1", "A1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := fix.svc.Cancel(ctx, b.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	stored, _ := fix.ledger.BookingByID(ctx, b.ID)
	if stored.Status != domain.BookingCancelled || len(stored.Tickets) != 0 {
		t.Errorf("cancel must delete tickets and set CANCELLED, got %s with %d tickets", stored.Status, len(stored.Tickets))
	}
	if len(fix.ledger.events) == 0 || fix.ledger.events[len(fix.ledger.events)-1] != "booking.cancelled" {
		t.Errorf("cancel must record booking.cancelled with the status change, events = %v", fix.ledger.events)
	}

	if err := fix.svc.Cancel(ctx, b.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("second cancel: got %v, want invalid state", err)
	}

	// Seat is available again.
	if _, err := fix.svc.Create(ctx, createInput(f, "user-2", "A1")); err != nil {
		t.Errorf("seat should be free after cancel: %v", err)
	}
}

func TestCancel_ConfirmedAfterDeparture(t *testing.T) {
	f := newTripFixture(time.Now().Add(time.Hour))
	fix := newServiceFixture(t, f.trip)
	ctx := context.Background()

	b, err := fix.svc.Create(ctx, createInput(f, "user-1", "A1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := fix.svc.Confirm(ctx, b.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	// Before departure a confirmed booking may still be cancelled.
	fix.svc.now = func() time.Time { return f.trip.Departure.Add(-time.Minute) }
	if err := fix.svc.Cancel(ctx, b.ID); err != nil {
		t.Fatalf("cancel before departure: %v", err)
	}

	b2, err := fix.svc.Create(ctx, createInput(f, "user-1", "A2"))
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if err := fix.svc.Confirm(ctx, b2.ID); err != nil {
		t.Fatalf("confirm second: %v", err)
	}
	fix.svc.now = func() time.Time { return f.trip.Departure.Add(time.Minute) }
	if err := fix.svc.Cancel(ctx, b2.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("cancel after departure: got %v, want invalid state", err)
	}
}

func TestConfirm(t *testing.T) {
	f := newTripFixture(time.Now().Add(24 * time.Hour))
	fix := newServiceFixture(t, f.trip)
	ctx := context.Background()

	b, err := fix.svc.Create(ctx, createInput(f, "user-1", "A1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := fix.svc.Confirm(ctx, b.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	stored, _ := fix.ledger.BookingByID(ctx, b.ID)
	if stored.Status != domain.BookingConfirmed {
		t.Errorf("status = %s, want CONFIRMED", stored.Status)
	}
	if len(fix.ledger.events) == 0 || fix.ledger.events[len(fix.ledger.events)-1] != "booking.confirmed" {
		t.Errorf("confirm must record booking.confirmed with the status change, events = %v", fix.ledger.events)
	}

	if err := fix.svc.Confirm(ctx, b.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("confirm from CONFIRMED: got %v, want invalid state", err)
	}
}

func TestUpdate(t *testing.T) {
	f := newTripFixture(time.Now().Add(24 * time.Hour))
	fix := newServiceFixture(t, f.trip)
	ctx := context.Background()

	b, err := fix.svc.Create(ctx, createInput(f, "user-1", "A1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	other, err := fix.svc.Create(ctx, createInput(f, "user-2", "B1"))
	if err != nil {
		t.Fatalf("create other: %v", err)
	}

	// Conflicting seat change is rejected whole, no partial apply.
	_, err = fix.svc.Update(ctx, b.ID, UpdateInput{Seats: selections("B1", "C1")})
	if !errors.Is(err, domain.ErrSeatConflict) {
		t.Fatalf("got %v, want seat conflict", err)
	}
	stored, _ := fix.ledger.BookingByID(ctx, b.ID)
	if len(stored.Tickets) != 1 || stored.Tickets[0].SeatCode != "A1" {
		t.Errorf("rejected update must not touch tickets, got %v", stored.SeatCodes())
	}

	updated, err := fix.svc.Update(ctx, b.ID, UpdateInput{Seats: selections("C1", "C2")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.TotalPrice != 20 {
		t.Errorf("total = %v, want recomputed 20", updated.TotalPrice)
	}

	if err := fix.svc.Confirm(ctx, other.ID); err != nil {
		t.Fatalf("confirm other: %v", err)
	}
	if _, err := fix.svc.Update(ctx, other.ID, UpdateInput{PassengerName: "x"}); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("update of CONFIRMED booking: got %v, want invalid state", err)
	}
}

func TestExpireStalePending(t *testing.T) {
	f := newTripFixture(time.Now().Add(24 * time.Hour))
	fix := newServiceFixture(t, f.trip)
	ctx := context.Background()

	stale, err := fix.svc.Create(ctx, createInput(f, "user-1", "A1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	fix.ledger.bookings[stale.ID].CreatedAt = time.Now().Add(-time.Hour)

	fresh, err := fix.svc.Create(ctx, createInput(f, "user-2", "A2"))
	if err != nil {
		t.Fatalf("create fresh: %v", err)
	}
	fix.ledger.bookings[fresh.ID].CreatedAt = time.Now()

	reaped, err := fix.svc.ExpireStalePending(ctx, time.Now().Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if reaped != 1 {
		t.Fatalf("reaped = %d, want 1", reaped)
	}
	got, _ := fix.ledger.BookingByID(ctx, stale.ID)
	if got.Status != domain.BookingCancelled {
		t.Errorf("stale booking = %s, want CANCELLED", got.Status)
	}
	got, _ = fix.ledger.BookingByID(ctx, fresh.ID)
	if got.Status != domain.BookingPending {
		t.Errorf("fresh booking = %s, want PENDING", got.Status)
	}
}
