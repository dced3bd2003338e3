package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stayflow/guestgate/internal/http/response"
	"github.com/stayflow/guestgate/internal/ratelimit"
	"github.com/stayflow/guestgate/internal/service"
	"github.com/stayflow/guestgate/pkg/auth"
	"github.com/stayflow/guestgate/pkg/config"
)

type sessionKey string

const guestClaimsKey sessionKey = "guest_claims"

type Handlers struct {
	access  service.AccessService
	unlock  service.UnlockService
	limiter ratelimit.Limiter
	cfg     *config.Config
}

func New(access service.AccessService, unlock service.UnlockService, limiter ratelimit.Limiter, cfg *config.Config) *Handlers {
	return &Handlers{
		access:  access,
		unlock:  unlock,
		limiter: limiter,
		cfg:     cfg,
	}
}

func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/access", func(r chi.Router) {
		r.Post("/request", h.RequestAccess)
		r.Post("/verify", h.VerifyCode)
		r.Post("/magic", h.VerifyMagic)
	})

	r.Route("/reservations/{id}", func(r chi.Router) {
		r.Use(h.RequireGuestSession)
		r.Post("/unlock", h.Unlock)
		r.Get("/door-info", h.DoorInfo)
		r.Get("/unlock-history", h.UnlockHistory)
	})

	return r
}

// RequireGuestSession authenticates the guest session JWT and pins the
// claims to the request context.
func (h *Handlers) RequireGuestSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		if strings.HasPrefix(token, "Bearer ") {
			token = strings.TrimPrefix(token, "Bearer ")
		} else {
			token = r.URL.Query().Get("session_token")
		}

		if token == "" {
			response.Unauthorized(w, "Guest session required")
			return
		}

		claims, err := auth.Parse(token, h.cfg.Auth.JWTSecret)
		if err != nil || claims.Role != "guest" {
			response.Unauthorized(w, "Invalid guest session")
			return
		}

		ctx := context.WithValue(r.Context(), guestClaimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func getGuestClaims(r *http.Request) *auth.Claims {
	if claims, ok := r.Context().Value(guestClaimsKey).(*auth.Claims); ok {
		return claims
	}
	return nil
}

// reservationFromPath parses {id} and checks it against the session scope.
func (h *Handlers) reservationFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, "Invalid reservation id")
		return 0, false
	}

	claims := getGuestClaims(r)
	if claims == nil || claims.ReservationID != id {
		response.Forbidden(w, "Session does not grant access to this reservation")
		return 0, false
	}
	return id, true
}

// clientKey identifies the caller for throttling. Derived here at the HTTP
// boundary and passed down explicitly; the core never reads request state.
func clientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func parseLimit(r *http.Request) int {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	return limit
}
