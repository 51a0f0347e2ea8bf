package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/bbernstein/runofshow-go/internal/protocol"
	"github.com/bbernstein/runofshow-go/internal/services/timer"
)

// Disconnector force-closes a user's connections in one event.
type Disconnector interface {
	DisconnectUser(eventID, userID, reason string) int
}

// PresenceLister lists viewers per event.
type PresenceLister interface {
	All() map[string][]protocol.Viewer
}

// AdminHandler serves /api/admin. Every route requires ?key=<AdminKey>.
type AdminHandler struct {
	svc          *timer.Service
	presence     PresenceLister
	disconnector Disconnector
	key          string
}

// NewAdminHandler returns an AdminHandler. An empty key rejects every request.
func NewAdminHandler(svc *timer.Service, presence PresenceLister, disconnector Disconnector, key string) *AdminHandler {
	return &AdminHandler{svc: svc, presence: presence, disconnector: disconnector, key: key}
}

// Routes registers the admin routes.
func (h *AdminHandler) Routes(r chi.Router) {
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(h.requireKey)
		r.Get("/running-timers", h.RunningTimers)
		r.Post("/events/{eventId}/stop-timer", h.StopTimer)
		r.Get("/presence", h.Presence)
		r.Post("/disconnect-user", h.DisconnectUser)
	})
}

func (h *AdminHandler) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.URL.Query().Get("key")
		if h.key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.key)) != 1 {
			log.Warn().Str("path", r.URL.Path).Str("remote_addr", r.RemoteAddr).Msg("admin request rejected")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RunningTimers handles GET /api/admin/running-timers.
func (h *AdminHandler) RunningTimers(w http.ResponseWriter, r *http.Request) {
	timers := h.svc.RunningTimers()
	if timers == nil {
		timers = []timer.RunningTimer{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"serverTime": h.svc.Now(),
		"timers":     timers,
	})
}

// StopTimer handles POST /api/admin/events/{eventId}/stop-timer.
func (h *AdminHandler) StopTimer(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	snap, err := h.svc.StopTimers(r.Context(), eventID)
	if err == nil {
		log.Info().Str("event_id", eventID).Msg("admin stopped timers")
	}
	respond(w, "admin_stop_timer", snap, err)
}

// Presence handles GET /api/admin/presence.
func (h *AdminHandler) Presence(w http.ResponseWriter, r *http.Request) {
	all := map[string][]protocol.Viewer{}
	if h.presence != nil {
		all = h.presence.All()
	}
	writeJSON(w, http.StatusOK, all)
}

type disconnectRequest struct {
	EventID string `json:"eventId"`
	UserID  string `json:"userId"`
	Reason  string `json:"reason"`
}

// DisconnectUser handles POST /api/admin/disconnect-user.
func (h *AdminHandler) DisconnectUser(w http.ResponseWriter, r *http.Request) {
	var req disconnectRequest
	if !decode(w, r, &req) {
		return
	}
	if req.EventID == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "eventId and userId are required")
		return
	}
	if req.Reason == "" {
		req.Reason = "disconnected by admin"
	}
	n := 0
	if h.disconnector != nil {
		n = h.disconnector.DisconnectUser(req.EventID, req.UserID, req.Reason)
	}
	log.Info().Str("event_id", req.EventID).Str("user_id", req.UserID).Int("connections", n).Msg("admin disconnected user")
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "disconnected": n})
}
