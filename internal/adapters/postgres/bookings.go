package postgres

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/bus-reservations/internal/domain"
)

const bookingColumns = `id, code, status, trip_id, owner_id, passenger_name,
	passenger_phone, passenger_email, contact_email, pickup_stop_id,
	dropoff_stop_id, total_price, created_at, updated_at`

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	var ownerID, passengerEmail, contactEmail *string
	err := row.Scan(&b.ID, &b.Code, &b.Status, &b.TripID, &ownerID,
		&b.PassengerName, &b.PassengerPhone, &passengerEmail, &contactEmail,
		&b.PickupStopID, &b.DropoffStopID, &b.TotalPrice, &b.CreatedAt, &b.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if ownerID != nil {
		b.OwnerID = *ownerID
	}
	if passengerEmail != nil {
		b.PassengerEmail = *passengerEmail
	}
	if contactEmail != nil {
		b.ContactEmail = *contactEmail
	}
	return &b, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *Repository) loadTickets(ctx context.Context, bookingIDs ...uuid.UUID) (map[uuid.UUID][]domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, booking_id, trip_id, seat_code, passenger_name, price
		FROM tickets WHERE booking_id = ANY($1)
		ORDER BY seat_code
	`, bookingIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byBooking := make(map[uuid.UUID][]domain.Ticket)
	for rows.Next() {
		var t domain.Ticket
		if err := rows.Scan(&t.ID, &t.BookingID, &t.TripID, &t.SeatCode, &t.PassengerName, &t.Price); err != nil {
			return nil, err
		}
		byBooking[t.BookingID] = append(byBooking[t.BookingID], t)
	}
	return byBooking, rows.Err()
}

// ConflictingBookings returns the live (PENDING or CONFIRMED) bookings that
// own any of the requested seats on the trip, tickets included, excluding
// the given booking id when non-nil. The ledger is the authority here,
// independent of the soft-hold layer.
func (r *Repository) ConflictingBookings(ctx context.Context, tripID uuid.UUID, seatCodes []string, exclude uuid.UUID) ([]domain.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT b.id
		FROM tickets t
		JOIN bookings b ON b.id = t.booking_id
		WHERE t.trip_id = $1 AND t.seat_code = ANY($2)
		  AND b.status IN ('PENDING', 'CONFIRMED')
		  AND b.id <> $3
	`, tripID, seatCodes, exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	bookings := make([]domain.Booking, 0, len(ids))
	for _, id := range ids {
		b, err := r.BookingByID(ctx, id)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, nil
}

func (r *Repository) BookingByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	b, err := scanBooking(r.pool.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	tickets, err := r.loadTickets(ctx, id)
	if err != nil {
		return nil, err
	}
	b.Tickets = tickets[id]
	return b, nil
}

func (r *Repository) BookingByCode(ctx context.Context, code string) (*domain.Booking, error) {
	b, err := scanBooking(r.pool.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE code = $1`, code))
	if err != nil {
		return nil, err
	}
	tickets, err := r.loadTickets(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	b.Tickets = tickets[b.ID]
	return b, nil
}

func (r *Repository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM bookings WHERE code = $1)`, code).Scan(&exists)
	return exists, err
}

// CreateBooking persists a PENDING booking with its tickets, cancelling the
// given prior bookings (the requester's own superseded selections) in the
// same transaction. A unique-index violation on tickets surfaces as
// domain.ErrSeatConflict and nothing is persisted.
func (r *Repository) CreateBooking(ctx context.Context, b domain.Booking, cancelIDs []uuid.UUID) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		for _, id := range cancelIDs {
			if err := terminateTx(ctx, tx, id, domain.BookingCancelled); err != nil {
				return err
			}
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO bookings (id, code, status, trip_id, owner_id,
				passenger_name, passenger_phone, passenger_email, contact_email,
				pickup_stop_id, dropoff_stop_id, total_price, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`, b.ID, b.Code, b.Status, b.TripID, nullable(b.OwnerID),
			b.PassengerName, b.PassengerPhone, nullable(b.PassengerEmail), nullable(b.ContactEmail),
			b.PickupStopID, b.DropoffStopID, b.TotalPrice, b.CreatedAt, b.UpdatedAt)
		if err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, t := range b.Tickets {
			batch.Queue(`
				INSERT INTO tickets (id, booking_id, trip_id, seat_code, passenger_name, price)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, t.ID, t.BookingID, t.TripID, t.SeatCode, t.PassengerName, t.Price)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// OverwriteDetails refreshes the passenger and stop fields of an existing
// booking in place. Used when a requester re-submits the exact same seat
// selection against their own PENDING booking.
func (r *Repository) OverwriteDetails(ctx context.Context, b *domain.Booking) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE bookings SET passenger_name = $2, passenger_phone = $3,
			passenger_email = $4, contact_email = $5, pickup_stop_id = $6,
			dropoff_stop_id = $7, updated_at = now()
		WHERE id = $1
	`, b.ID, b.PassengerName, b.PassengerPhone, nullable(b.PassengerEmail),
		nullable(b.ContactEmail), b.PickupStopID, b.DropoffStopID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func terminateTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.BookingStatus) error {
	if _, err := tx.Exec(ctx, `DELETE FROM tickets WHERE booking_id = $1`, id); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE bookings SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(domain.ErrNotFound, "booking %s", id)
	}
	return nil
}

// insertEvent writes the lifecycle event row inside the caller's
// transaction, so the notification commits with the transition or not at
// all.
func (r *Repository) insertEvent(ctx context.Context, tx pgx.Tx, ev *domain.OutboxEvent) error {
	if ev == nil {
		return nil
	}
	return r.InsertOutbox(ctx, tx, OutboxRecord{
		ID:            uuid.New(),
		AggregateType: "booking",
		AggregateID:   ev.BookingID,
		EventType:     ev.EventType,
		Payload:       ev.Payload,
		DedupeKey:     ev.DedupeKey,
	})
}

// TerminateBooking deletes the booking's tickets and sets the terminal
// status atomically, freeing the seat codes in the unique index. The
// outbox event, when given, joins the same transaction.
func (r *Repository) TerminateBooking(ctx context.Context, id uuid.UUID, status domain.BookingStatus, ev *domain.OutboxEvent) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		if err := terminateTx(ctx, tx, id, status); err != nil {
			return err
		}
		return r.insertEvent(ctx, tx, ev)
	})
}

func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, status domain.BookingStatus, ev *domain.OutboxEvent) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE bookings SET status = $2, updated_at = now() WHERE id = $1
		`, id, status)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		return r.insertEvent(ctx, tx, ev)
	})
}

// ReplaceTickets swaps a PENDING booking's tickets for a new set and stores
// the recomputed total, all or nothing.
func (r *Repository) ReplaceTickets(ctx context.Context, bookingID uuid.UUID, tickets []domain.Ticket, total float64) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM tickets WHERE booking_id = $1`, bookingID); err != nil {
			return err
		}
		for _, t := range tickets {
			if _, err := tx.Exec(ctx, `
				INSERT INTO tickets (id, booking_id, trip_id, seat_code, passenger_name, price)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, t.ID, t.BookingID, t.TripID, t.SeatCode, t.PassengerName, t.Price); err != nil {
				return err
			}
		}
		tag, err := tx.Exec(ctx, `
			UPDATE bookings SET total_price = $2, updated_at = now() WHERE id = $1
		`, bookingID, total)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

// StalePending lists PENDING bookings created before the cutoff, tickets
// included, for the expiry worker.
func (r *Repository) StalePending(ctx context.Context, cutoff time.Time) ([]domain.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE status = 'PENDING' AND created_at <= $1
		ORDER BY created_at
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(bookings) == 0 {
		return bookings, nil
	}

	ids := make([]uuid.UUID, len(bookings))
	for i := range bookings {
		ids[i] = bookings[i].ID
	}
	tickets, err := r.loadTickets(ctx, ids...)
	if err != nil {
		return nil, err
	}
	for i := range bookings {
		bookings[i].Tickets = tickets[bookings[i].ID]
	}
	return bookings, nil
}
