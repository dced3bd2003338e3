package service

import (
	"context"
	"fmt"
	"time"

	"github.com/stayflow/guestgate/internal/domain"
	"github.com/stayflow/guestgate/internal/repo/postgres"
)

// EligibilityService answers whether a reservation may currently operate
// doors: is "now" inside the stay window, and is the party fully registered.
type EligibilityService interface {
	Evaluate(ctx context.Context, reservationID int64) (*domain.EligibilityResult, error)
}

type eligibilityService struct {
	reservations postgres.ReservationRepository
	guests       postgres.GuestRepository
	location     *time.Location
	checkInTime  string // HH:MM fallback when the record has none
	checkOutTime string

	now func() time.Time
}

func NewEligibilityService(
	reservations postgres.ReservationRepository,
	guests postgres.GuestRepository,
	location *time.Location,
	defaultCheckIn, defaultCheckOut string,
) EligibilityService {
	return &eligibilityService{
		reservations: reservations,
		guests:       guests,
		location:     location,
		checkInTime:  defaultCheckIn,
		checkOutTime: defaultCheckOut,
		now:          time.Now,
	}
}

func (s *eligibilityService) Evaluate(ctx context.Context, reservationID int64) (*domain.EligibilityResult, error) {
	res, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load reservation: %w", err)
	}
	if res == nil {
		return nil, domain.NewAccessError(domain.KindNotFound, "reservation not found", nil)
	}

	checkIn, err := s.combine(res.CheckInDate, res.CheckInTime, s.checkInTime)
	if err != nil {
		return nil, domain.NewAccessError(domain.KindInvalidState, "reservation has an unreadable check-in", err)
	}
	checkOut, err := s.combine(res.CheckOutDate, res.CheckOutTime, s.checkOutTime)
	if err != nil {
		return nil, domain.NewAccessError(domain.KindInvalidState, "reservation has an unreadable check-out", err)
	}

	// The property's clock decides, never the caller's.
	now := s.now().In(s.location)
	withinWindow := !now.Before(checkIn) && !now.After(checkOut)

	registered, err := s.guests.CountRegistered(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to count registered guests: %w", err)
	}

	// A zero expected party size means the import never told us how many
	// guests to wait for; that is "not computable", not "complete".
	allRegistered := res.TotalGuests > 0 && registered >= res.TotalGuests

	return &domain.EligibilityResult{
		WithinStayWindow:    withinWindow,
		AllGuestsRegistered: allRegistered,
		Reservation:         res,
	}, nil
}

func (s *eligibilityService) combine(date string, tod *string, fallback string) (time.Time, error) {
	t := fallback
	if tod != nil && *tod != "" {
		t = *tod
	}
	instant, err := time.ParseInLocation("2006-01-02 15:04", date+" "+t, s.location)
	if err != nil {
		return time.Time{}, err
	}
	return instant, nil
}
