package domain

import "time"

// UnlockAttempt is one immutable audit row. Attempts are written exactly once
// per unlock decision, including decisions that never reached the vendor.
type UnlockAttempt struct {
	ID            int64     `json:"id"`
	ReservationID int64     `json:"reservation_id"`
	GuestID       *int64    `json:"guest_id,omitempty"`
	DoorRole      DoorRole  `json:"door_role"`
	Success       bool      `json:"success"`
	Description   string    `json:"description"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// UnlockRequest carries everything the orchestrator needs for one decision.
// ClientKey is resolved at the HTTP boundary and threaded through explicitly.
type UnlockRequest struct {
	ReservationID     int64
	GuestID           *int64
	Role              DoorRole
	ClientKey         string
	EnforceStayWindow bool
}

type UnlockOutcome struct {
	Success     bool        `json:"success"`
	Message     string      `json:"message,omitempty"`
	FailureKind FailureKind `json:"-"`
	Timestamp   time.Time   `json:"timestamp"`
}
