package service

import (
	"context"
	"time"

	"github.com/stayflow/guestgate/internal/domain"
	"github.com/stayflow/guestgate/internal/lockgateway"
	"github.com/stayflow/guestgate/internal/ratelimit"
	"github.com/stayflow/guestgate/internal/repo/postgres"
	"github.com/stayflow/guestgate/pkg/events"
	"github.com/stayflow/guestgate/pkg/logger"
)

// DoorInfo is the advisory view used to render UI affordances. It is not a
// gate: the orchestrator re-checks everything on the unlock path.
type DoorInfo struct {
	HasLocks            bool   `json:"has_locks"`
	PortalConfigured    bool   `json:"portal_configured"`
	UnitConfigured      bool   `json:"unit_configured"`
	PortalInfo          string `json:"portal_info,omitempty"`
	UnitInfo            string `json:"unit_info,omitempty"`
	WithinStayWindow    bool   `json:"within_stay_window"`
	AllGuestsRegistered bool   `json:"all_guests_registered"`
}

// UnlockService sequences one door-unlock decision: throttle, eligibility,
// directory, vendor call, audit. Every request that clears the throttle
// writes exactly one audit row, whatever the outcome.
type UnlockService interface {
	Unlock(ctx context.Context, req domain.UnlockRequest) domain.UnlockOutcome
	DoorInfo(ctx context.Context, reservationID int64) (*DoorInfo, error)
	History(ctx context.Context, reservationID int64, limit int) ([]domain.UnlockAttempt, error)
}

type unlockService struct {
	limiter      ratelimit.Limiter
	eligibility  EligibilityService
	directory    DirectoryService
	gateway      lockgateway.Gateway
	audit        postgres.AuditRepository
	reservations postgres.ReservationRepository
	eventBus     events.Publisher

	now func() time.Time
}

func NewUnlockService(
	limiter ratelimit.Limiter,
	eligibility EligibilityService,
	directory DirectoryService,
	gateway lockgateway.Gateway,
	audit postgres.AuditRepository,
	reservations postgres.ReservationRepository,
	eventBus events.Publisher,
) UnlockService {
	return &unlockService{
		limiter:      limiter,
		eligibility:  eligibility,
		directory:    directory,
		gateway:      gateway,
		audit:        audit,
		reservations: reservations,
		eventBus:     eventBus,
		now:          time.Now,
	}
}

func (s *unlockService) Unlock(ctx context.Context, req domain.UnlockRequest) domain.UnlockOutcome {
	// Throttle first. Rejections here are an operational concern, not an
	// access decision, so they are the one path that leaves no audit row.
	if d := s.limiter.Allow(ctx, ratelimit.ActionUnlock, req.ClientKey); !d.Allowed {
		return domain.UnlockOutcome{
			Success:     false,
			Message:     "Too many unlock attempts. Please wait a moment and try again.",
			FailureKind: domain.KindRateLimited,
			Timestamp:   s.now(),
		}
	}

	elig, err := s.eligibility.Evaluate(ctx, req.ReservationID)
	if err != nil {
		kind := domain.KindOf(err)
		switch kind {
		case domain.KindNotFound:
			return s.fail(ctx, req, kind, "Reservation not found.", "reservation not found")
		case domain.KindInvalidState:
			return s.fail(ctx, req, kind, "Your reservation dates could not be read. Please contact support.", "stay window unparseable: "+err.Error())
		default:
			logger.ErrorContext(ctx, "eligibility evaluation failed", "error", err, "reservation_id", req.ReservationID)
			return s.fail(ctx, req, domain.KindInvalidState, "Something went wrong. Please try again.", "eligibility check error: "+err.Error())
		}
	}

	if !elig.Reservation.GrantsAccess() {
		return s.fail(ctx, req, domain.KindIneligible,
			"Your reservation is not active.",
			"reservation status does not grant access")
	}
	if !elig.AllGuestsRegistered {
		return s.fail(ctx, req, domain.KindIneligible,
			"All guests must complete registration before the door can be opened.",
			"guest registration incomplete")
	}
	if req.EnforceStayWindow && !elig.WithinStayWindow {
		return s.fail(ctx, req, domain.KindIneligible,
			"The door can only be opened during your stay.",
			"outside stay window")
	}

	dir := s.directory.Resolve(ctx, elig.Reservation.AccommodationID)
	if !dir.HasLocks {
		return s.fail(ctx, req, domain.KindNoLockConfigured,
			"This accommodation has no smart lock.",
			"no locks configured")
	}

	device := dir.Device(req.Role)
	if device == nil {
		return s.fail(ctx, req, domain.KindDoorNotConfigured,
			"This door is not configured for remote opening.",
			"door type not configured: "+string(req.Role))
	}

	result := s.gateway.Open(ctx, device)
	if !result.Success {
		return s.fail(ctx, req, domain.KindGatewayFailure,
			"Could not open the door: "+result.ErrorMessage,
			"gateway failure: "+result.ErrorMessage)
	}

	outcome := domain.UnlockOutcome{Success: true, Message: "Door opened.", Timestamp: s.now()}
	s.record(ctx, req, true, "door opened")

	if req.Role == domain.DoorUnit {
		if _, err := s.reservations.MarkGuestEntered(ctx, req.ReservationID); err != nil {
			logger.ErrorContext(ctx, "failed to mark guest entered", "error", err, "reservation_id", req.ReservationID)
		} else if err := s.eventBus.Publish(ctx, events.GuestEntered, events.GuestEnteredEvent{
			ReservationID: req.ReservationID,
			EnteredAt:     outcome.Timestamp,
		}); err != nil {
			logger.ErrorContext(ctx, "failed to publish guest entered event", "error", err, "reservation_id", req.ReservationID)
		}
	}

	s.publishUnlock(ctx, req, true, "door opened", outcome.Timestamp)

	return outcome
}

// fail writes the request's single audit row and shapes the guest-facing
// outcome. description is the internal audit text, message the guest text.
func (s *unlockService) fail(ctx context.Context, req domain.UnlockRequest, kind domain.FailureKind, message, description string) domain.UnlockOutcome {
	ts := s.now()
	s.record(ctx, req, false, description)
	s.publishUnlock(ctx, req, false, description, ts)
	return domain.UnlockOutcome{
		Success:     false,
		Message:     message,
		FailureKind: kind,
		Timestamp:   ts,
	}
}

func (s *unlockService) record(ctx context.Context, req domain.UnlockRequest, success bool, description string) {
	if _, err := s.audit.Record(ctx, req.ReservationID, req.GuestID, req.Role, success, description); err != nil {
		// The decision stands even if the audit write fails; losing the row is
		// an incident, not a reason to re-run the vendor call.
		logger.ErrorContext(ctx, "failed to record unlock attempt",
			"error", err, "reservation_id", req.ReservationID, "door_role", req.Role)
	}
}

func (s *unlockService) publishUnlock(ctx context.Context, req domain.UnlockRequest, success bool, description string, ts time.Time) {
	if err := s.eventBus.Publish(ctx, events.DoorUnlockAttempted, events.DoorUnlockEvent{
		ReservationID: req.ReservationID,
		GuestID:       req.GuestID,
		DoorRole:      string(req.Role),
		Success:       success,
		Description:   description,
		OccurredAt:    ts,
	}); err != nil {
		logger.ErrorContext(ctx, "failed to publish unlock event", "error", err, "reservation_id", req.ReservationID)
	}
}

func (s *unlockService) DoorInfo(ctx context.Context, reservationID int64) (*DoorInfo, error) {
	elig, err := s.eligibility.Evaluate(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	dir := s.directory.Resolve(ctx, elig.Reservation.AccommodationID)

	return &DoorInfo{
		HasLocks:            dir.HasLocks,
		PortalConfigured:    dir.Portal != nil,
		UnitConfigured:      dir.Unit != nil,
		PortalInfo:          dir.PortalInfo,
		UnitInfo:            dir.UnitInfo,
		WithinStayWindow:    elig.WithinStayWindow,
		AllGuestsRegistered: elig.AllGuestsRegistered,
	}, nil
}

func (s *unlockService) History(ctx context.Context, reservationID int64, limit int) ([]domain.UnlockAttempt, error) {
	return s.audit.History(ctx, reservationID, limit)
}
