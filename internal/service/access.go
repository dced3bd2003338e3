package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"

	"github.com/stayflow/guestgate/internal/domain"
	"github.com/stayflow/guestgate/internal/platform/mailer"
	"github.com/stayflow/guestgate/internal/repo/postgres"
	"github.com/stayflow/guestgate/pkg/auth"
	"github.com/stayflow/guestgate/pkg/config"
	"github.com/stayflow/guestgate/pkg/events"
	"github.com/stayflow/guestgate/pkg/logger"
)

type GuestSession struct {
	Token     string `json:"session_token"`
	ExpiresIn int64  `json:"expires_in"`
}

// AccessService runs the passwordless guest login: a registered guest email
// receives a 6-digit code plus a magic link; either one mints a session
// scoped to that guest's reservation.
type AccessService interface {
	RequestAccess(ctx context.Context, email string, clientIP net.IP) error
	VerifyCode(ctx context.Context, email, code string) (*GuestSession, error)
	VerifyMagic(ctx context.Context, token string) (*GuestSession, error)
}

type accessService struct {
	verify   postgres.VerifyRepository
	guests   postgres.GuestRepository
	mailer   mailer.Service
	eventBus events.Publisher
	cfg      *config.Config
}

func NewAccessService(
	verify postgres.VerifyRepository,
	guests postgres.GuestRepository,
	mailer mailer.Service,
	eventBus events.Publisher,
	cfg *config.Config,
) AccessService {
	return &accessService{
		verify:   verify,
		guests:   guests,
		mailer:   mailer,
		eventBus: eventBus,
		cfg:      cfg,
	}
}

func (s *accessService) RequestAccess(ctx context.Context, email string, clientIP net.IP) error {
	reservationID, err := s.guests.ReservationForEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to look up guest email: %w", err)
	}
	if reservationID == 0 {
		// Enumeration-safe: the caller gets the same "code sent" answer
		// whether or not the email is known.
		logger.InfoContext(ctx, "access code requested for unknown email")
		return nil
	}

	code, err := generateAccessCode()
	if err != nil {
		return fmt.Errorf("failed to generate access code: %w", err)
	}

	codeHash, err := argon2id.CreateHash(code, argon2id.DefaultParams)
	if err != nil {
		return fmt.Errorf("failed to hash access code: %w", err)
	}

	magic := uuid.NewString()
	expires := time.Now().Add(s.cfg.Auth.AccessCodeTTL)

	if err := s.verify.CreateGuestAccess(ctx, email, codeHash, magic, expires, clientIP); err != nil {
		return fmt.Errorf("failed to store access code: %w", err)
	}

	link := s.cfg.Email.AccessLinkURL + "?token=" + magic
	if err := s.mailer.SendGuestAccess(email, code, link); err != nil {
		// Code is stored; the guest can retry the email from the UI.
		logger.ErrorContext(ctx, "failed to send guest access email", "error", err)
	}

	if err := s.eventBus.Publish(ctx, events.AccessCodeRequested, events.AccessCodeRequestedEvent{
		Email:       email,
		RequestedAt: time.Now(),
	}); err != nil {
		logger.ErrorContext(ctx, "failed to publish access code event", "error", err)
	}

	return nil
}

func (s *accessService) VerifyCode(ctx context.Context, email, code string) (*GuestSession, error) {
	ok, err := s.verify.CheckGuestCode(ctx, email, code)
	if err != nil {
		return nil, fmt.Errorf("failed to verify access code: %w", err)
	}
	if !ok {
		return nil, domain.NewAccessError(domain.KindNotFound, "invalid or expired code", nil)
	}
	return s.mintSession(ctx, email)
}

func (s *accessService) VerifyMagic(ctx context.Context, token string) (*GuestSession, error) {
	email, ok, err := s.verify.ConsumeGuestMagic(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to consume magic token: %w", err)
	}
	if !ok {
		return nil, domain.NewAccessError(domain.KindNotFound, "invalid or expired magic link", nil)
	}
	return s.mintSession(ctx, email)
}

func (s *accessService) mintSession(ctx context.Context, email string) (*GuestSession, error) {
	reservationID, err := s.guests.ReservationForEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve reservation for session: %w", err)
	}
	if reservationID == 0 {
		return nil, domain.NewAccessError(domain.KindNotFound, "no reservation for this email", nil)
	}

	ttl := s.cfg.Auth.GuestSessionTTL
	token, err := auth.NewGuestSession(email, reservationID, s.cfg.Auth.JWTSecret, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to mint guest session: %w", err)
	}
	return &GuestSession{Token: token, ExpiresIn: int64(ttl.Seconds())}, nil
}

func generateAccessCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
