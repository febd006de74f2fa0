package postgres

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/bus-reservations/internal/domain"
)

const (
	uniqueViolationCode = "23505"
	ticketSeatUniqueKey = "tickets_trip_id_seat_code_key"
)

// Repository is the durable booking ledger. It is the single source of
// truth for committed seats; the unique index on tickets(trip_id,
// seat_code) closes the race the application-level conflict check leaves
// open between two fully concurrent first-time reservations.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return mapPgError(err)
	}

	return mapPgError(tx.Commit(ctx))
}

// mapPgError translates constraint violations into domain errors so the
// losing writer of a seat race sees the same "seat already booked" error
// as the pre-check.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode && pgErr.ConstraintName == ticketSeatUniqueKey {
		return errors.Mark(err, domain.ErrSeatConflict)
	}
	return err
}
