package service

import (
	"context"
	"testing"
	"time"

	"github.com/stayflow/guestgate/internal/domain"
	"github.com/stayflow/guestgate/internal/lockgateway"
	"github.com/stayflow/guestgate/internal/ratelimit"
	"github.com/stayflow/guestgate/pkg/events"
)

// ---------- Mocks ----------

type fakeLimiter struct {
	allowed bool
	retry   time.Duration
	calls   int
}

func (f *fakeLimiter) Allow(_ context.Context, _, _ string) ratelimit.Decision {
	f.calls++
	return ratelimit.Decision{Allowed: f.allowed, RetryAfter: f.retry}
}

type fakeEligibility struct {
	result *domain.EligibilityResult
	err    error
}

func (f *fakeEligibility) Evaluate(context.Context, int64) (*domain.EligibilityResult, error) {
	return f.result, f.err
}

type fakeDirectory struct {
	dir             *domain.LockDirectory
	accommodationID int64
}

func (f *fakeDirectory) Resolve(_ context.Context, accommodationID int64) *domain.LockDirectory {
	f.accommodationID = accommodationID
	return f.dir
}

type fakeGateway struct {
	result     lockgateway.Result
	calls      int
	lastDevice *domain.LockDevice
}

func (f *fakeGateway) Open(_ context.Context, device *domain.LockDevice) lockgateway.Result {
	f.calls++
	f.lastDevice = device
	return f.result
}

type auditRow struct {
	reservationID int64
	guestID       *int64
	role          domain.DoorRole
	success       bool
	description   string
}

type fakeAudit struct {
	rows      []auditRow
	recordErr error
	history   []domain.UnlockAttempt
}

func (f *fakeAudit) Record(_ context.Context, reservationID int64, guestID *int64, role domain.DoorRole, success bool, description string) (int64, error) {
	if f.recordErr != nil {
		return 0, f.recordErr
	}
	f.rows = append(f.rows, auditRow{reservationID, guestID, role, success, description})
	return int64(len(f.rows)), nil
}

func (f *fakeAudit) History(context.Context, int64, int) ([]domain.UnlockAttempt, error) {
	return f.history, nil
}

type fakeBus struct {
	subjects []string
}

func (f *fakeBus) Publish(_ context.Context, subject string, _ interface{}) error {
	f.subjects = append(f.subjects, subject)
	return nil
}

func (f *fakeBus) Close() error { return nil }

// ---------- Test Setup ----------

type unlockFixture struct {
	limiter      *fakeLimiter
	eligibility  *fakeEligibility
	directory    *fakeDirectory
	gateway      *fakeGateway
	audit        *fakeAudit
	reservations *stubReservationRepo
	bus          *fakeBus
	svc          UnlockService
}

func eligible(status int) *domain.EligibilityResult {
	return &domain.EligibilityResult{
		WithinStayWindow:    true,
		AllGuestsRegistered: true,
		Reservation: &domain.Reservation{
			ID:              1,
			AccommodationID: 10,
			TotalGuests:     2,
			StatusCode:      status,
		},
	}
}

func bothDoors() *domain.LockDirectory {
	return &domain.LockDirectory{
		HasLocks: true,
		Portal:   &domain.LockDevice{AccommodationID: 10, DeviceID: "dev-1", DoorID: "door-1", Role: domain.DoorPortal},
		Unit:     &domain.LockDevice{AccommodationID: 10, DeviceID: "dev-1", DoorID: "door-2", Role: domain.DoorUnit},
	}
}

func setupUnlock() *unlockFixture {
	f := &unlockFixture{
		limiter:      &fakeLimiter{allowed: true},
		eligibility:  &fakeEligibility{result: eligible(1)},
		directory:    &fakeDirectory{dir: bothDoors()},
		gateway:      &fakeGateway{result: lockgateway.Result{Success: true}},
		audit:        &fakeAudit{},
		reservations: &stubReservationRepo{},
		bus:          &fakeBus{},
	}
	f.svc = NewUnlockService(f.limiter, f.eligibility, f.directory, f.gateway, f.audit, f.reservations, f.bus)
	return f
}

func unitRequest() domain.UnlockRequest {
	return domain.UnlockRequest{
		ReservationID:     1,
		Role:              domain.DoorUnit,
		ClientKey:         "203.0.113.9",
		EnforceStayWindow: true,
	}
}

// ---------- Tests ----------

func TestUnlock_UnitDoor_Success(t *testing.T) {
	f := setupUnlock()

	out := f.svc.Unlock(context.Background(), unitRequest())

	if !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}
	if f.gateway.calls != 1 {
		t.Errorf("expected exactly one vendor call, got %d", f.gateway.calls)
	}
	if f.gateway.lastDevice == nil || f.gateway.lastDevice.DoorID != "door-2" {
		t.Errorf("expected unit device, got %+v", f.gateway.lastDevice)
	}
	if len(f.audit.rows) != 1 {
		t.Fatalf("expected exactly one audit row, got %d", len(f.audit.rows))
	}
	if !f.audit.rows[0].success || f.audit.rows[0].description != "door opened" {
		t.Errorf("unexpected audit row: %+v", f.audit.rows[0])
	}
	if len(f.reservations.enteredIDs) != 1 || f.reservations.enteredIDs[0] != 1 {
		t.Errorf("expected guest-entered bump for reservation 1, got %v", f.reservations.enteredIDs)
	}

	var sawEntered, sawUnlock bool
	for _, subj := range f.bus.subjects {
		switch subj {
		case events.GuestEntered:
			sawEntered = true
		case events.DoorUnlockAttempted:
			sawUnlock = true
		}
	}
	if !sawEntered || !sawUnlock {
		t.Errorf("expected guest-entered and unlock events, got %v", f.bus.subjects)
	}
}

func TestUnlock_PortalDoor_DoesNotMarkEntered(t *testing.T) {
	f := setupUnlock()

	req := unitRequest()
	req.Role = domain.DoorPortal
	out := f.svc.Unlock(context.Background(), req)

	if !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}
	if f.gateway.lastDevice.DoorID != "door-1" {
		t.Errorf("expected portal device, got %+v", f.gateway.lastDevice)
	}
	if len(f.reservations.enteredIDs) != 0 {
		t.Errorf("portal unlock must not mark guest entered, got %v", f.reservations.enteredIDs)
	}
}

func TestUnlock_RateLimited_NoAuditRow(t *testing.T) {
	f := setupUnlock()
	f.limiter.allowed = false
	f.limiter.retry = 30 * time.Second

	out := f.svc.Unlock(context.Background(), unitRequest())

	if out.Success {
		t.Fatal("expected rejection")
	}
	if out.FailureKind != domain.KindRateLimited {
		t.Errorf("expected KindRateLimited, got %v", out.FailureKind)
	}
	if len(f.audit.rows) != 0 {
		t.Errorf("rate-limited requests must not be audited, got %d rows", len(f.audit.rows))
	}
	if f.gateway.calls != 0 {
		t.Errorf("vendor must not be called, got %d calls", f.gateway.calls)
	}
	if len(f.bus.subjects) != 0 {
		t.Errorf("no events expected, got %v", f.bus.subjects)
	}
}

func TestUnlock_ReservationNotFound_Audited(t *testing.T) {
	f := setupUnlock()
	f.eligibility.result = nil
	f.eligibility.err = domain.NewAccessError(domain.KindNotFound, "reservation not found", nil)

	out := f.svc.Unlock(context.Background(), unitRequest())

	if out.FailureKind != domain.KindNotFound {
		t.Errorf("expected KindNotFound, got %v", out.FailureKind)
	}
	if len(f.audit.rows) != 1 {
		t.Fatalf("expected exactly one audit row, got %d", len(f.audit.rows))
	}
	if f.audit.rows[0].success {
		t.Error("audit row must record failure")
	}
}

func TestUnlock_CanceledReservation_Ineligible(t *testing.T) {
	f := setupUnlock()
	f.eligibility.result = eligible(2)

	out := f.svc.Unlock(context.Background(), unitRequest())

	if out.FailureKind != domain.KindIneligible {
		t.Errorf("expected KindIneligible, got %v", out.FailureKind)
	}
	if f.gateway.calls != 0 {
		t.Error("vendor must not be called for a canceled reservation")
	}
	if len(f.audit.rows) != 1 {
		t.Fatalf("expected exactly one audit row, got %d", len(f.audit.rows))
	}
}

func TestUnlock_RegistrationIncomplete_Ineligible(t *testing.T) {
	f := setupUnlock()
	f.eligibility.result.AllGuestsRegistered = false

	out := f.svc.Unlock(context.Background(), unitRequest())

	if out.FailureKind != domain.KindIneligible {
		t.Errorf("expected KindIneligible, got %v", out.FailureKind)
	}
	if f.gateway.calls != 0 {
		t.Error("vendor must not be called before the party is registered")
	}
	if len(f.audit.rows) != 1 {
		t.Fatalf("expected exactly one audit row, got %d", len(f.audit.rows))
	}
	if f.audit.rows[0].description != "guest registration incomplete" {
		t.Errorf("unexpected audit description: %q", f.audit.rows[0].description)
	}
}

func TestUnlock_OutsideWindow_EnforcedOnlyOnRequest(t *testing.T) {
	f := setupUnlock()
	f.eligibility.result.WithinStayWindow = false

	out := f.svc.Unlock(context.Background(), unitRequest())
	if out.FailureKind != domain.KindIneligible {
		t.Errorf("expected KindIneligible with enforcement on, got %v", out.FailureKind)
	}

	f = setupUnlock()
	f.eligibility.result.WithinStayWindow = false
	req := unitRequest()
	req.EnforceStayWindow = false

	out = f.svc.Unlock(context.Background(), req)
	if !out.Success {
		t.Errorf("expected success with enforcement off, got %+v", out)
	}
}

func TestUnlock_NoLocksConfigured(t *testing.T) {
	f := setupUnlock()
	f.directory.dir = &domain.LockDirectory{HasLocks: false}

	out := f.svc.Unlock(context.Background(), unitRequest())

	if out.FailureKind != domain.KindNoLockConfigured {
		t.Errorf("expected KindNoLockConfigured, got %v", out.FailureKind)
	}
	if f.gateway.calls != 0 {
		t.Error("vendor must not be called without a lock")
	}
	if len(f.audit.rows) != 1 {
		t.Fatalf("expected exactly one audit row, got %d", len(f.audit.rows))
	}
}

func TestUnlock_DoorRoleNotConfigured(t *testing.T) {
	f := setupUnlock()
	f.directory.dir = &domain.LockDirectory{
		HasLocks: true,
		Portal:   &domain.LockDevice{DeviceID: "dev-1", DoorID: "door-1", Role: domain.DoorPortal},
	}

	out := f.svc.Unlock(context.Background(), unitRequest())

	if out.FailureKind != domain.KindDoorNotConfigured {
		t.Errorf("expected KindDoorNotConfigured, got %v", out.FailureKind)
	}
	if f.gateway.calls != 0 {
		t.Error("vendor must not be called for a missing door")
	}
}

func TestUnlock_GatewayFailure_Audited(t *testing.T) {
	f := setupUnlock()
	f.gateway.result = lockgateway.Result{Success: false, ErrorMessage: "vendor timeout"}

	out := f.svc.Unlock(context.Background(), unitRequest())

	if out.FailureKind != domain.KindGatewayFailure {
		t.Errorf("expected KindGatewayFailure, got %v", out.FailureKind)
	}
	if len(f.audit.rows) != 1 {
		t.Fatalf("expected exactly one audit row, got %d", len(f.audit.rows))
	}
	if f.audit.rows[0].description != "gateway failure: vendor timeout" {
		t.Errorf("unexpected audit description: %q", f.audit.rows[0].description)
	}
	if len(f.reservations.enteredIDs) != 0 {
		t.Error("failed unlock must not mark guest entered")
	}
}

func TestUnlock_AuditWriteFailure_DecisionStands(t *testing.T) {
	f := setupUnlock()
	f.audit.recordErr = context.DeadlineExceeded

	out := f.svc.Unlock(context.Background(), unitRequest())

	if !out.Success {
		t.Errorf("an audit write failure must not fail the unlock, got %+v", out)
	}
	if f.gateway.calls != 1 {
		t.Errorf("expected one vendor call, got %d", f.gateway.calls)
	}
}

func TestDoorInfo_ComposesEligibilityAndDirectory(t *testing.T) {
	f := setupUnlock()
	f.eligibility.result.WithinStayWindow = false
	f.directory.dir.PortalInfo = "Street door, key pad on the right"

	info, err := f.svc.DoorInfo(context.Background(), 1)
	if err != nil {
		t.Fatalf("DoorInfo: %v", err)
	}
	if !info.HasLocks || !info.PortalConfigured || !info.UnitConfigured {
		t.Errorf("unexpected directory view: %+v", info)
	}
	if info.WithinStayWindow {
		t.Error("expected within_stay_window=false")
	}
	if info.PortalInfo != "Street door, key pad on the right" {
		t.Errorf("portal info not carried: %q", info.PortalInfo)
	}
	if f.directory.accommodationID != 10 {
		t.Errorf("resolved wrong accommodation: %d", f.directory.accommodationID)
	}
}

func TestHistory_PassesThrough(t *testing.T) {
	f := setupUnlock()
	f.audit.history = []domain.UnlockAttempt{
		{ID: 2, ReservationID: 1, Success: true},
		{ID: 1, ReservationID: 1, Success: false},
	}

	attempts, err := f.svc.History(context.Background(), 1, 20)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(attempts) != 2 || attempts[0].ID != 2 {
		t.Errorf("unexpected history: %+v", attempts)
	}
}
