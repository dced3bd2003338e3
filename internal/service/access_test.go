package service

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"

	"github.com/stayflow/guestgate/internal/domain"
	"github.com/stayflow/guestgate/pkg/auth"
	"github.com/stayflow/guestgate/pkg/config"
)

// ---------- Mocks ----------

type mockVerifyRepo struct {
	hashes map[string]string // email -> code hash
	magic  map[string]string // token -> email
	lastIP net.IP
}

func newMockVerifyRepo() *mockVerifyRepo {
	return &mockVerifyRepo{
		hashes: make(map[string]string),
		magic:  make(map[string]string),
	}
}

func (m *mockVerifyRepo) CreateGuestAccess(_ context.Context, email, codeHash, magic string, _ time.Time, ip net.IP) error {
	m.hashes[email] = codeHash
	m.magic[magic] = email
	m.lastIP = ip
	return nil
}

func (m *mockVerifyRepo) CheckGuestCode(_ context.Context, email, code string) (bool, error) {
	hash, ok := m.hashes[email]
	if !ok {
		return false, nil
	}
	match, err := argon2id.ComparePasswordAndHash(code, hash)
	if err != nil {
		return false, err
	}
	if match {
		delete(m.hashes, email)
	}
	return match, nil
}

func (m *mockVerifyRepo) ConsumeGuestMagic(_ context.Context, token string) (string, bool, error) {
	email, ok := m.magic[token]
	if !ok {
		return "", false, nil
	}
	delete(m.magic, token)
	return email, true, nil
}

func (m *mockVerifyRepo) DeleteExpired(context.Context) (int64, error) { return 0, nil }

type mockGuestDirectory struct {
	reservations map[string]int64 // email -> reservation id
}

func (m *mockGuestDirectory) CountRegistered(context.Context, int64) (int, error) { return 0, nil }

func (m *mockGuestDirectory) ReservationForEmail(_ context.Context, email string) (int64, error) {
	return m.reservations[email], nil
}

type mockMailer struct {
	lastTo   string
	lastCode string
	lastLink string
	sendErr  error
}

func (m *mockMailer) SendGuestAccess(email, code, link string) error {
	m.lastTo = email
	m.lastCode = code
	m.lastLink = link
	return m.sendErr
}

// ---------- Test Setup ----------

func accessConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:       "test-secret",
			GuestSessionTTL: time.Hour,
			AccessCodeTTL:   15 * time.Minute,
		},
		Email: config.EmailConfig{
			AccessLinkURL: "https://guest.example.com/access",
		},
	}
}

func setupAccess() (AccessService, *mockVerifyRepo, *mockMailer, *fakeBus) {
	verify := newMockVerifyRepo()
	mail := &mockMailer{}
	bus := &fakeBus{}
	guests := &mockGuestDirectory{reservations: map[string]int64{"ana@example.com": 42}}
	svc := NewAccessService(verify, guests, mail, bus, accessConfig())
	return svc, verify, mail, bus
}

// ---------- Tests ----------

func TestRequestAccess_KnownEmail_SendsCodeAndLink(t *testing.T) {
	svc, verify, mail, bus := setupAccess()

	ip := net.ParseIP("203.0.113.9")
	if err := svc.RequestAccess(context.Background(), "ana@example.com", ip); err != nil {
		t.Fatalf("RequestAccess: %v", err)
	}

	if mail.lastTo != "ana@example.com" {
		t.Errorf("expected mail to ana@example.com, got %q", mail.lastTo)
	}
	if len(mail.lastCode) != 6 {
		t.Errorf("expected 6-digit code, got %q", mail.lastCode)
	}
	if !strings.HasPrefix(mail.lastLink, "https://guest.example.com/access?token=") {
		t.Errorf("unexpected magic link: %q", mail.lastLink)
	}
	if len(verify.hashes) != 1 {
		t.Errorf("expected one stored code hash, got %d", len(verify.hashes))
	}
	if verify.hashes["ana@example.com"] == mail.lastCode {
		t.Error("code must be stored hashed, not in plaintext")
	}
	if !verify.lastIP.Equal(ip) {
		t.Errorf("requester IP not recorded: %v", verify.lastIP)
	}
	if len(bus.subjects) != 1 {
		t.Errorf("expected one event, got %v", bus.subjects)
	}
}

func TestRequestAccess_UnknownEmail_SilentNoop(t *testing.T) {
	svc, verify, mail, _ := setupAccess()

	if err := svc.RequestAccess(context.Background(), "stranger@example.com", nil); err != nil {
		t.Fatalf("unknown email must not error: %v", err)
	}
	if mail.lastTo != "" {
		t.Error("no mail expected for an unknown email")
	}
	if len(verify.hashes) != 0 {
		t.Error("no code expected for an unknown email")
	}
}

func TestVerifyCode_MintsScopedSession(t *testing.T) {
	svc, _, mail, _ := setupAccess()
	ctx := context.Background()

	if err := svc.RequestAccess(ctx, "ana@example.com", nil); err != nil {
		t.Fatalf("RequestAccess: %v", err)
	}

	session, err := svc.VerifyCode(ctx, "ana@example.com", mail.lastCode)
	if err != nil {
		t.Fatalf("VerifyCode: %v", err)
	}
	if session.Token == "" || session.ExpiresIn != 3600 {
		t.Fatalf("unexpected session: %+v", session)
	}

	claims, err := auth.Parse(session.Token, "test-secret")
	if err != nil {
		t.Fatalf("parse session token: %v", err)
	}
	if claims.Email != "ana@example.com" || claims.Role != "guest" || claims.ReservationID != 42 {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestVerifyCode_WrongCode_NotFound(t *testing.T) {
	svc, _, _, _ := setupAccess()
	ctx := context.Background()

	if err := svc.RequestAccess(ctx, "ana@example.com", nil); err != nil {
		t.Fatalf("RequestAccess: %v", err)
	}

	_, err := svc.VerifyCode(ctx, "ana@example.com", "000000")
	if err == nil {
		t.Fatal("expected error for wrong code")
	}
	if domain.KindOf(err) != domain.KindNotFound {
		t.Errorf("expected KindNotFound, got %v", domain.KindOf(err))
	}
}

func TestVerifyCode_SingleUse(t *testing.T) {
	svc, _, mail, _ := setupAccess()
	ctx := context.Background()

	if err := svc.RequestAccess(ctx, "ana@example.com", nil); err != nil {
		t.Fatalf("RequestAccess: %v", err)
	}
	if _, err := svc.VerifyCode(ctx, "ana@example.com", mail.lastCode); err != nil {
		t.Fatalf("first verification: %v", err)
	}

	if _, err := svc.VerifyCode(ctx, "ana@example.com", mail.lastCode); err == nil {
		t.Fatal("a consumed code must not verify again")
	}
}

func TestVerifyMagic_MintsSessionAndConsumesToken(t *testing.T) {
	svc, verify, _, _ := setupAccess()
	ctx := context.Background()

	if err := svc.RequestAccess(ctx, "ana@example.com", nil); err != nil {
		t.Fatalf("RequestAccess: %v", err)
	}

	var token string
	for tok := range verify.magic {
		token = tok
	}

	session, err := svc.VerifyMagic(ctx, token)
	if err != nil {
		t.Fatalf("VerifyMagic: %v", err)
	}
	if session.Token == "" {
		t.Fatal("expected session token")
	}

	if _, err := svc.VerifyMagic(ctx, token); err == nil {
		t.Fatal("a consumed magic token must not verify again")
	}
}

func TestVerifyMagic_UnknownToken_NotFound(t *testing.T) {
	svc, _, _, _ := setupAccess()

	_, err := svc.VerifyMagic(context.Background(), "nope")
	if err == nil {
		t.Fatal("expected error")
	}
	if domain.KindOf(err) != domain.KindNotFound {
		t.Errorf("expected KindNotFound, got %v", domain.KindOf(err))
	}
}
