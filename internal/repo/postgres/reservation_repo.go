package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stayflow/guestgate/internal/domain"
)

type ReservationRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Reservation, error)
	// MarkGuestEntered bumps the reservation into the "entered" state after a
	// successful unit-door unlock. Returns false when the row was already in a
	// terminal state and nothing changed.
	MarkGuestEntered(ctx context.Context, id int64) (bool, error)
}

type reservationRepository struct {
	pool *pgxpool.Pool
}

func NewReservationRepository(pool *pgxpool.Pool) ReservationRepository {
	return &reservationRepository{pool: pool}
}

const reservationCols = `id, accommodation_id,
check_in_date, check_in_time, check_out_date, check_out_time,
total_guests, status_code, created_at, updated_at`

func (r *reservationRepository) GetByID(ctx context.Context, id int64) (*domain.Reservation, error) {
	const q = `SELECT ` + reservationCols + ` FROM reservations WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var res domain.Reservation
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&res.ID, &res.AccommodationID,
		&res.CheckInDate, &res.CheckInTime, &res.CheckOutDate, &res.CheckOutTime,
		&res.TotalGuests, &res.StatusCode, &res.CreatedAt, &res.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return &res, err
}

func (r *reservationRepository) MarkGuestEntered(ctx context.Context, id int64) (bool, error) {
	const q = `UPDATE reservations SET status_code=4, updated_at=now()
		WHERE id=$1 AND status_code IN (0, 1)`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}
