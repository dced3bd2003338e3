package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	Email         string `json:"email"`
	ReservationID int64  `json:"reservation_id,omitempty"`
	Role          string `json:"role"`
	Scope         string `json:"scope"`
	jwt.RegisteredClaims
}

func NewAccessToken(email string, reservationID int64, role, scope, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email:         email,
		ReservationID: reservationID,
		Role:          role,
		Scope:         scope,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Audience:  []string{"guestgate-api"},
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func Parse(tokenString, secret string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := tok.Claims.(*Claims); ok && tok.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// NewGuestSession issues a short-lived session for a verified guest email.
// The reservation id is baked into the token so handlers can scope door
// operations without a second lookup.
func NewGuestSession(email string, reservationID int64, secret string, ttl time.Duration) (string, error) {
	return NewAccessToken(email, reservationID, "guest", "access:doors access:history", secret, ttl)
}
