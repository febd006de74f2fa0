package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/bus-reservations/internal/domain"
)

func (r *Repository) CreateTransaction(ctx context.Context, t domain.PaymentTransaction) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO payment_transactions (id, booking_id, order_code, status, amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
	`, t.ID, t.BookingID, t.OrderCode, t.Status, t.Amount)
	return err
}

func (r *Repository) TransactionByOrderCode(ctx context.Context, orderCode int64) (*domain.PaymentTransaction, error) {
	var t domain.PaymentTransaction
	err := r.pool.QueryRow(ctx, `
		SELECT id, booking_id, order_code, status, amount, created_at, updated_at
		FROM payment_transactions WHERE order_code = $1
	`, orderCode).Scan(&t.ID, &t.BookingID, &t.OrderCode, &t.Status, &t.Amount, &t.CreatedAt, &t.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) SetTransactionStatus(ctx context.Context, orderCode int64, status domain.PaymentStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payment_transactions SET status = $2, updated_at = now() WHERE order_code = $1
	`, orderCode, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
