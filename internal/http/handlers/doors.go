package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/stayflow/guestgate/internal/domain"
	"github.com/stayflow/guestgate/internal/http/response"
	"github.com/stayflow/guestgate/pkg/logger"
)

type unlockIn struct {
	DoorRole string `json:"door_role"`
	GuestID  *int64 `json:"guest_id,omitempty"`
	// CheckStayWindow defaults to true; the pre-check-in walkthrough flow in
	// the app turns it off so hosts can demo doors before the stay starts.
	CheckStayWindow *bool `json:"check_stay_window,omitempty"`
}

func (h *Handlers) Unlock(w http.ResponseWriter, r *http.Request) {
	reservationID, ok := h.reservationFromPath(w, r)
	if !ok {
		return
	}

	var in unlockIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}

	role, ok := domain.ParseDoorRole(in.DoorRole)
	if !ok {
		response.BadRequest(w, "door_role must be portal or unit")
		return
	}

	enforceWindow := true
	if in.CheckStayWindow != nil {
		enforceWindow = *in.CheckStayWindow
	}

	outcome := h.unlock.Unlock(r.Context(), domain.UnlockRequest{
		ReservationID:     reservationID,
		GuestID:           in.GuestID,
		Role:              role,
		ClientKey:         clientKey(r),
		EnforceStayWindow: enforceWindow,
	})

	writeJSON(w, statusForOutcome(outcome), outcome)
}

func (h *Handlers) DoorInfo(w http.ResponseWriter, r *http.Request) {
	reservationID, ok := h.reservationFromPath(w, r)
	if !ok {
		return
	}

	info, err := h.unlock.DoorInfo(r.Context(), reservationID)
	if err != nil {
		switch domain.KindOf(err) {
		case domain.KindNotFound:
			response.NotFound(w, "Reservation not found")
		case domain.KindInvalidState:
			response.WriteError(w, http.StatusConflict, "Reservation dates could not be read", response.CodeInvalidState)
		default:
			logger.ErrorContext(r.Context(), "door info lookup failed", "error", err)
			response.InternalError(w, "Failed to load door information")
		}
		return
	}

	writeJSON(w, http.StatusOK, info)
}

func (h *Handlers) UnlockHistory(w http.ResponseWriter, r *http.Request) {
	reservationID, ok := h.reservationFromPath(w, r)
	if !ok {
		return
	}

	attempts, err := h.unlock.History(r.Context(), reservationID, parseLimit(r))
	if err != nil {
		logger.ErrorContext(r.Context(), "unlock history lookup failed", "error", err)
		response.InternalError(w, "Failed to load unlock history")
		return
	}

	if attempts == nil {
		attempts = []domain.UnlockAttempt{}
	}
	writeJSON(w, http.StatusOK, attempts)
}

func statusForOutcome(o domain.UnlockOutcome) int {
	if o.Success {
		return http.StatusOK
	}
	switch o.FailureKind {
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindIneligible:
		return http.StatusForbidden
	case domain.KindNoLockConfigured, domain.KindDoorNotConfigured:
		return http.StatusConflict
	case domain.KindGatewayFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func isNotFound(err error) bool {
	return domain.KindOf(err) == domain.KindNotFound
}
