package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// GuestRepository is the read-side this subsystem needs from guest management.
// Guests are created and edited elsewhere; here they are only counted.
type GuestRepository interface {
	CountRegistered(ctx context.Context, reservationID int64) (int, error)
	// ReservationForEmail resolves which reservation a verified guest email
	// belongs to. Used when minting guest sessions.
	ReservationForEmail(ctx context.Context, email string) (int64, error)
}

type guestRepository struct {
	pool *pgxpool.Pool
}

func NewGuestRepository(pool *pgxpool.Pool) GuestRepository {
	return &guestRepository{pool: pool}
}

func (r *guestRepository) CountRegistered(ctx context.Context, reservationID int64) (int, error) {
	const q = `SELECT count(*) FROM guests
		WHERE reservation_id=$1 AND registration_complete=true`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var n int
	err := r.pool.QueryRow(ctx, q, reservationID).Scan(&n)
	return n, err
}

func (r *guestRepository) ReservationForEmail(ctx context.Context, email string) (int64, error) {
	const q = `SELECT reservation_id FROM guests
		WHERE lower(email)=lower($1)
		ORDER BY created_at DESC
		LIMIT 1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var id int64
	err := r.pool.QueryRow(ctx, q, email).Scan(&id)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	return id, err
}
