// Package api exposes the operator console and schedule editor calls over REST.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/bbernstein/runofshow-go/internal/protocol"
	"github.com/bbernstein/runofshow-go/internal/schedule"
	"github.com/bbernstein/runofshow-go/internal/services/timer"
)

// errNotFound marks lookups of unknown items.
var errNotFound = errors.New("not found")

// Handler serves the per-event REST surface.
type Handler struct {
	svc *timer.Service
}

// NewHandler returns a Handler over svc.
func NewHandler(svc *timer.Service) *Handler {
	return &Handler{svc: svc}
}

// Routes registers every per-event route under /api/events/{eventId}.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/events/{eventId}", func(r chi.Router) {
		r.Get("/", h.GetSnapshot)
		r.Get("/schedule", h.GetSchedule)
		r.Put("/schedule", h.PutSchedule)
		r.Get("/display-times", h.GetDisplayTimes)
		r.Get("/items/{itemId}/display-time", h.GetDisplayTime)

		r.Post("/timer/load", h.LoadCue)
		r.Post("/timer/start", h.timerOp(h.svc.Start))
		r.Post("/timer/stop", h.timerOp(h.svc.Stop))
		r.Post("/timer/clear", h.timerOp(h.svc.Clear))
		r.Post("/timer/adjust", h.AdjustDuration)

		r.Post("/subcue/load", h.LoadSubCue)
		r.Post("/subcue/start", h.timerOp(h.svc.StartSubCue))
		r.Post("/subcue/run", h.RunSubCue)
		r.Post("/subcue/stop", h.timerOp(h.svc.StopSubCue))

		r.Post("/timers/stop", h.timerOp(h.svc.StopTimers))
		r.Post("/reset", h.timerOp(h.svc.ResetAllStates))

		r.Post("/overtime", h.SetOvertime)
		r.Post("/overtime/show-start", h.SetShowStartOvertime)
		r.Post("/overtime/reset", h.timerOp(h.svc.ResetOvertime))
		r.Put("/start-cue", h.SetStartCue)

		r.Put("/indents/{itemId}", h.SetIndent)
		r.Delete("/indents/{itemId}", h.itemOp(h.svc.RemoveIndent))
		r.Delete("/indents", h.timerOp(h.svc.ClearIndents))

		r.Put("/completed/{itemId}", h.itemOp(h.svc.MarkCompleted))
		r.Delete("/completed/{itemId}", h.itemOp(h.svc.UnmarkCompleted))
		r.Delete("/completed", h.timerOp(h.svc.ClearCompleted))
	})
}

type cueRequest struct {
	ItemID          *int64 `json:"itemId"`
	DurationSeconds int    `json:"durationSeconds"`
	Label           string `json:"label"`
}

type adjustRequest struct {
	DurationSeconds *int `json:"durationSeconds"`
}

type overtimeRequest struct {
	ItemID        *int64 `json:"itemId"`
	Minutes       int    `json:"minutes"`
	ScheduledTime string `json:"scheduledTime"`
	ActualTime    string `json:"actualTime"`
}

type startCueRequest struct {
	ItemID *int64 `json:"itemId"`
}

type indentRequest struct {
	ParentID *int64 `json:"parentId"`
}

// GetSnapshot handles GET /api/events/{eventId}.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		writeServiceError(w, "snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetSchedule handles GET /api/events/{eventId}/schedule, the passive resync pull.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.ScheduleState(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		writeServiceError(w, "schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// PutSchedule handles PUT /api/events/{eventId}/schedule from the editor.
func (h *Handler) PutSchedule(w http.ResponseWriter, r *http.Request) {
	var sched schedule.Schedule
	if !decode(w, r, &sched) {
		return
	}
	st, err := h.svc.PutSchedule(r.Context(), chi.URLParam(r, "eventId"), sched)
	if err != nil {
		writeServiceError(w, "put_schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// GetDisplayTimes handles GET /api/events/{eventId}/display-times.
func (h *Handler) GetDisplayTimes(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Projection(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		writeServiceError(w, "display_times", err)
		return
	}
	rows := p.Rows()
	if rows == nil {
		rows = []schedule.Row{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// GetDisplayTime handles GET /api/events/{eventId}/items/{itemId}/display-time.
func (h *Handler) GetDisplayTime(w http.ResponseWriter, r *http.Request) {
	itemID, ok := itemParam(w, r)
	if !ok {
		return
	}
	p, err := h.svc.Projection(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		writeServiceError(w, "display_time", err)
		return
	}
	row, found := p.Row(itemID)
	if !found {
		writeServiceError(w, "display_time", fmt.Errorf("%w: item %d", errNotFound, itemID))
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// LoadCue handles POST /api/events/{eventId}/timer/load.
func (h *Handler) LoadCue(w http.ResponseWriter, r *http.Request) {
	h.cueOp(w, r, h.svc.Load)
}

// LoadSubCue handles POST /api/events/{eventId}/subcue/load.
func (h *Handler) LoadSubCue(w http.ResponseWriter, r *http.Request) {
	h.cueOp(w, r, h.svc.LoadSubCue)
}

// RunSubCue handles POST /api/events/{eventId}/subcue/run.
func (h *Handler) RunSubCue(w http.ResponseWriter, r *http.Request) {
	h.cueOp(w, r, h.svc.RunSubCue)
}

// AdjustDuration handles POST /api/events/{eventId}/timer/adjust.
func (h *Handler) AdjustDuration(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if !decode(w, r, &req) {
		return
	}
	if req.DurationSeconds == nil {
		writeError(w, http.StatusBadRequest, "durationSeconds is required")
		return
	}
	snap, err := h.svc.AdjustDuration(r.Context(), chi.URLParam(r, "eventId"), *req.DurationSeconds)
	respond(w, "adjust_duration", snap, err)
}

// SetOvertime handles POST /api/events/{eventId}/overtime.
func (h *Handler) SetOvertime(w http.ResponseWriter, r *http.Request) {
	var req overtimeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ItemID == nil {
		writeError(w, http.StatusBadRequest, "itemId is required")
		return
	}
	snap, err := h.svc.SetOvertime(r.Context(), chi.URLParam(r, "eventId"), *req.ItemID, req.Minutes)
	respond(w, "set_overtime", snap, err)
}

// SetShowStartOvertime handles POST /api/events/{eventId}/overtime/show-start.
func (h *Handler) SetShowStartOvertime(w http.ResponseWriter, r *http.Request) {
	var req overtimeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ItemID == nil {
		writeError(w, http.StatusBadRequest, "itemId is required")
		return
	}
	snap, err := h.svc.SetShowStartOvertime(r.Context(), chi.URLParam(r, "eventId"),
		*req.ItemID, req.Minutes, req.ScheduledTime, req.ActualTime)
	respond(w, "set_show_start_overtime", snap, err)
}

// SetStartCue handles PUT /api/events/{eventId}/start-cue. A null itemId clears the selection.
func (h *Handler) SetStartCue(w http.ResponseWriter, r *http.Request) {
	var req startCueRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := h.svc.SetStartCue(r.Context(), chi.URLParam(r, "eventId"), req.ItemID)
	respond(w, "set_start_cue", snap, err)
}

// SetIndent handles PUT /api/events/{eventId}/indents/{itemId}.
func (h *Handler) SetIndent(w http.ResponseWriter, r *http.Request) {
	itemID, ok := itemParam(w, r)
	if !ok {
		return
	}
	var req indentRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ParentID == nil {
		writeError(w, http.StatusBadRequest, "parentId is required")
		return
	}
	snap, err := h.svc.SetIndent(r.Context(), chi.URLParam(r, "eventId"), itemID, *req.ParentID)
	respond(w, "set_indent", snap, err)
}

func (h *Handler) cueOp(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, eventID string, itemID int64, durationSeconds int, label string) (protocol.Snapshot, error)) {
	var req cueRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ItemID == nil {
		writeError(w, http.StatusBadRequest, "itemId is required")
		return
	}
	snap, err := fn(r.Context(), chi.URLParam(r, "eventId"), *req.ItemID, req.DurationSeconds, req.Label)
	respond(w, "cue", snap, err)
}

// timerOp adapts an operation that takes no body.
func (h *Handler) timerOp(fn func(ctx context.Context, eventID string) (protocol.Snapshot, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := fn(r.Context(), chi.URLParam(r, "eventId"))
		respond(w, r.URL.Path, snap, err)
	}
}

// itemOp adapts an operation keyed by the {itemId} path parameter.
func (h *Handler) itemOp(fn func(ctx context.Context, eventID string, itemID int64) (protocol.Snapshot, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, ok := itemParam(w, r)
		if !ok {
			return
		}
		snap, err := fn(r.Context(), chi.URLParam(r, "eventId"), itemID)
		respond(w, r.URL.Path, snap, err)
	}
}

func itemParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "itemId")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid item id %q", raw))
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		log.Debug().Err(err).Str("path", r.URL.Path).Msg("invalid request body")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func respond(w http.ResponseWriter, op string, snap protocol.Snapshot, err error) {
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, timer.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, timer.ErrInvalidArgument), errors.Is(err, schedule.ErrInvalidClock):
		return http.StatusBadRequest
	case errors.Is(err, errNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("op", op).Msg("request failed")
		writeError(w, status, "internal error")
		return
	}
	log.Info().Err(err).Str("op", op).Int("status", status).Msg("request rejected")
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
