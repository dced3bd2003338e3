package postgres

import (
	"context"
	"net"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VerifyRepository stores one-time guest access codes and magic link tokens.
// Codes are kept argon2id-hashed; the plain code only ever travels by email.
type VerifyRepository interface {
	CreateGuestAccess(ctx context.Context, email, codeHash, magic string, expiresAt time.Time, ip net.IP) error
	// CheckGuestCode compares the submitted code against the newest unused,
	// unexpired hash for the email and consumes it on match.
	CheckGuestCode(ctx context.Context, email, code string) (bool, error)
	// ConsumeGuestMagic redeems a magic link token once, returning the email.
	ConsumeGuestMagic(ctx context.Context, token string) (string, bool, error)
	// DeleteExpired removes stale codes (maintenance).
	DeleteExpired(ctx context.Context) (int64, error)
}

type verifyRepository struct {
	pool *pgxpool.Pool
}

func NewVerifyRepository(pool *pgxpool.Pool) VerifyRepository {
	return &verifyRepository{pool: pool}
}

func (r *verifyRepository) CreateGuestAccess(ctx context.Context, email, codeHash, magic string, expiresAt time.Time, ip net.IP) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var ipStr *string
	if ip != nil {
		s := ip.String()
		ipStr = &s
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO guest_access_codes (email, code_hash, magic_token, expires_at, requested_ip)
         VALUES ($1, $2, $3, $4, $5)`,
		email, codeHash, magic, expiresAt, ipStr,
	)
	return err
}

func (r *verifyRepository) CheckGuestCode(ctx context.Context, email, code string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var id int64
	var codeHash string
	err := r.pool.QueryRow(ctx, `
SELECT id, code_hash FROM guest_access_codes
WHERE email = $1
  AND used_at IS NULL
  AND expires_at > now()
ORDER BY created_at DESC
LIMIT 1
`, email).Scan(&id, &codeHash)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	match, err := argon2id.ComparePasswordAndHash(code, codeHash)
	if err != nil || !match {
		return false, err
	}

	_, err = r.pool.Exec(ctx,
		`UPDATE guest_access_codes SET used_at = now() WHERE id = $1`, id)
	return err == nil, err
}

func (r *verifyRepository) ConsumeGuestMagic(ctx context.Context, token string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var email string
	// Redeem and return atomically, only if unused and unexpired.
	err := r.pool.QueryRow(ctx, `
UPDATE guest_access_codes
SET used_at = now()
WHERE magic_token = $1
  AND used_at IS NULL
  AND expires_at > now()
RETURNING email
`, token).Scan(&email)

	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return email, true, nil
}

func (r *verifyRepository) DeleteExpired(ctx context.Context) (int64, error) {
	const q = `DELETE FROM guest_access_codes WHERE expires_at < now() - interval '1 day'`

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
