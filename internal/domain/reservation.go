package domain

import "time"

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCanceled  ReservationStatus = "canceled"
	ReservationCompleted ReservationStatus = "completed"
	ReservationEntered   ReservationStatus = "entered"
	ReservationUnknown   ReservationStatus = "unknown"
)

// statusCodes maps the numeric codes delivered by the booking import to
// textual states. Codes arrive from an external channel manager and are not
// under our control.
var statusCodes = map[int]ReservationStatus{
	0: ReservationPending,
	1: ReservationConfirmed,
	2: ReservationCanceled,
	3: ReservationCompleted,
	4: ReservationEntered,
}

// Reservation is read-only from this subsystem's perspective, except for the
// "guest entered" status bump after a successful unit-door unlock.
//
// Check-in and check-out are kept as the raw date and time-of-day strings the
// booking import wrote; they are combined into instants by the eligibility
// evaluator in the property's time zone.
type Reservation struct {
	ID              int64     `json:"id"`
	AccommodationID int64     `json:"accommodation_id"`
	CheckInDate     string    `json:"check_in_date"`  // YYYY-MM-DD
	CheckInTime     *string   `json:"check_in_time"`  // HH:MM, nil means property default
	CheckOutDate    string    `json:"check_out_date"` // YYYY-MM-DD
	CheckOutTime    *string   `json:"check_out_time"` // HH:MM, nil means property default
	TotalGuests     int       `json:"total_guests"`
	StatusCode      int       `json:"status_code"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (r *Reservation) Status() ReservationStatus {
	if s, ok := statusCodes[r.StatusCode]; ok {
		return s
	}
	return ReservationUnknown
}

// GrantsAccess reports whether the reservation's lifecycle state allows door
// operations at all. Pending reservations grant provisional access so guests
// can enter while the channel-manager import is still settling.
func (r *Reservation) GrantsAccess() bool {
	switch r.Status() {
	case ReservationConfirmed, ReservationPending, ReservationEntered:
		return true
	default:
		return false
	}
}

type Guest struct {
	ID                   int64     `json:"id"`
	ReservationID        int64     `json:"reservation_id"`
	IsResponsible        bool      `json:"is_responsible"`
	RegistrationComplete bool      `json:"registration_complete"`
	CreatedAt            time.Time `json:"created_at"`
}

// EligibilityResult is the evaluator's answer for one reservation at one
// instant. The snapshot rides along so the orchestrator does not re-read.
type EligibilityResult struct {
	WithinStayWindow    bool
	AllGuestsRegistered bool
	Reservation         *Reservation
}
