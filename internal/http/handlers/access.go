package handlers

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"unicode"

	"github.com/stayflow/guestgate/internal/http/response"
	"github.com/stayflow/guestgate/internal/ratelimit"
	"github.com/stayflow/guestgate/pkg/logger"
)

type accessRequestIn struct {
	Email string `json:"email"`
}

func (h *Handlers) RequestAccess(w http.ResponseWriter, r *http.Request) {
	if d := h.limiter.Allow(r.Context(), ratelimit.ActionAccessRequest, clientKey(r)); !d.Allowed {
		response.RateLimit(w, "Too many requests. Try again later.")
		return
	}

	var in accessRequestIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}

	in.Email = normalizeEmail(in.Email)
	if in.Email == "" {
		response.BadRequest(w, "Email is required")
		return
	}
	if !isValidEmail(in.Email) {
		response.BadRequest(w, "Invalid email format")
		return
	}

	var ip net.IP
	if key := clientKey(r); key != "" {
		ip = net.ParseIP(key)
	}

	if err := h.access.RequestAccess(r.Context(), in.Email, ip); err != nil {
		logger.ErrorContext(r.Context(), "failed to create guest access", "error", err)
		response.InternalError(w, "Failed to create access code")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Access code sent to your email",
	})
}

type verifyIn struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (h *Handlers) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var in verifyIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}

	in.Email = normalizeEmail(in.Email)
	in.Code = strings.TrimSpace(in.Code)

	if in.Email == "" || in.Code == "" {
		response.BadRequest(w, "Email and code are required")
		return
	}
	if len(in.Code) != 6 || !allDigits(in.Code) {
		response.BadRequest(w, "Code must be 6 digits")
		return
	}

	session, err := h.access.VerifyCode(r.Context(), in.Email, in.Code)
	if err != nil {
		if isNotFound(err) {
			response.WriteError(w, http.StatusUnauthorized, "Invalid or expired code", response.CodeExpiredToken)
			return
		}
		logger.ErrorContext(r.Context(), "failed to verify access code", "error", err)
		response.InternalError(w, "Failed to verify code")
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func (h *Handlers) VerifyMagic(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		response.BadRequest(w, "Token parameter is required")
		return
	}

	session, err := h.access.VerifyMagic(r.Context(), token)
	if err != nil {
		if isNotFound(err) {
			response.WriteError(w, http.StatusUnauthorized, "Invalid or expired magic link", response.CodeExpiredToken)
			return
		}
		logger.ErrorContext(r.Context(), "failed to consume magic link", "error", err)
		response.InternalError(w, "Failed to process magic link")
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isValidEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	local, domain := parts[0], parts[1]
	return len(local) > 0 && len(domain) > 2 && strings.Contains(domain, ".")
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
