package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stayflow/guestgate/internal/domain"
)

// AuditRepository is the append-only unlock attempt log. Rows are never
// updated or deleted by this service.
type AuditRepository interface {
	Record(ctx context.Context, reservationID int64, guestID *int64, role domain.DoorRole, success bool, description string) (int64, error)
	History(ctx context.Context, reservationID int64, limit int) ([]domain.UnlockAttempt, error)
}

type auditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

func (r *auditRepository) Record(ctx context.Context, reservationID int64, guestID *int64, role domain.DoorRole, success bool, description string) (int64, error) {
	const q = `INSERT INTO unlock_attempts (reservation_id, guest_id, door_role, success, description, occurred_at)
		VALUES ($1,$2,$3,$4,$5,now())
		RETURNING id`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var id int64
	err := r.pool.QueryRow(ctx, q, reservationID, guestID, role, success, description).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *auditRepository) History(ctx context.Context, reservationID int64, limit int) ([]domain.UnlockAttempt, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	// Ties on occurred_at break by insertion order.
	const q = `SELECT id, reservation_id, guest_id, door_role, success, description, occurred_at
		FROM unlock_attempts
		WHERE reservation_id=$1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, reservationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []domain.UnlockAttempt
	for rows.Next() {
		var a domain.UnlockAttempt
		if err := rows.Scan(
			&a.ID, &a.ReservationID, &a.GuestID,
			&a.DoorRole, &a.Success, &a.Description, &a.OccurredAt,
		); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
