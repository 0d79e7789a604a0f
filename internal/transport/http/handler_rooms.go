package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	"velvet-rooms/internal/engine"
	"velvet-rooms/internal/reveal"
	"velvet-rooms/internal/slots"
	"velvet-rooms/internal/wallet"

	"github.com/go-chi/chi/v5"
)

type RoomHandlers struct {
	engine *engine.Engine
}

func NewRoomHandlers(eng *engine.Engine) *RoomHandlers {
	return &RoomHandlers{engine: eng}
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrRoomNotFound):
		WriteHTTPError(w, http.StatusNotFound, "room_not_found")
	case errors.Is(err, engine.ErrRoomEnded):
		WriteHTTPError(w, http.StatusGone, "room_ended")
	case errors.Is(err, engine.ErrNotJoined):
		WriteHTTPError(w, http.StatusBadRequest, "not_joined")
	case errors.Is(err, engine.ErrNotHost):
		WriteHTTPError(w, http.StatusForbidden, "not_host")
	case errors.Is(err, wallet.ErrInsufficientFunds):
		WriteHTTPError(w, http.StatusPaymentRequired, "insufficient_funds")
	case errors.Is(err, wallet.ErrInvalidAmount):
		WriteHTTPError(w, http.StatusBadRequest, "invalid_amount")
	case errors.Is(err, wallet.ErrAccountNotFound):
		WriteHTTPError(w, http.StatusNotFound, "account_not_found")
	case errors.Is(err, slots.ErrNoSlotAvailable):
		WriteHTTPError(w, http.StatusConflict, "no_slot_available")
	case errors.Is(err, slots.ErrAlreadyOccupying):
		WriteHTTPError(w, http.StatusConflict, "already_occupying")
	case errors.Is(err, slots.ErrUnknownSlotKind):
		WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
	case errors.Is(err, reveal.ErrRevealInProgress):
		WriteHTTPError(w, http.StatusConflict, "reveal_in_progress")
	case errors.Is(err, reveal.ErrConcurrentUpdate):
		WriteHTTPError(w, http.StatusConflict, "concurrent_update")
	case errors.Is(err, reveal.ErrUnknownCardKind):
		WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
	default:
		WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
	}
}

func (h *RoomHandlers) Join() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "room_id")
		userID := UserID(r)
		if roomID == "" || userID == "" {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		p, err := h.engine.JoinRoom(r.Context(), roomID, userID)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "participant": p})
	}
}

func (h *RoomHandlers) Leave() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "room_id")
		userID := UserID(r)
		if roomID == "" || userID == "" {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		if err := h.engine.LeaveRoom(r.Context(), roomID, userID); err != nil {
			writeEngineError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
}

func (h *RoomHandlers) ClaimSlot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "room_id")
		userID := UserID(r)
		var body struct {
			Kind string `json:"kind"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if roomID == "" || userID == "" || body.Kind == "" {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		sl, err := h.engine.ClaimCameraSlot(r.Context(), roomID, userID, body.Kind)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "slot": sl})
	}
}

func (h *RoomHandlers) ReleaseSlot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "room_id")
		userID := UserID(r)
		if roomID == "" || userID == "" {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		if err := h.engine.ReleaseCameraSlot(r.Context(), roomID, userID); err != nil {
			writeEngineError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
}

func (h *RoomHandlers) RequestReveal() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "room_id")
		userID := UserID(r)
		var body struct {
			Kind string `json:"kind"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if roomID == "" || userID == "" || body.Kind == "" {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		content, err := h.engine.RequestReveal(r.Context(), roomID, userID, body.Kind)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "reveal": content})
	}
}

func (h *RoomHandlers) ClearReveal() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "room_id")
		if roomID == "" {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		if err := h.engine.ClearReveal(r.Context(), roomID); err != nil {
			writeEngineError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
}

func (h *RoomHandlers) End() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "room_id")
		userID := UserID(r)
		if roomID == "" || userID == "" {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		if err := h.engine.EndRoom(r.Context(), roomID, userID); err != nil {
			writeEngineError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
}

func (h *RoomHandlers) Snapshot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "room_id")
		if roomID == "" {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		snap, err := h.engine.Snapshot(r.Context(), roomID, UserID(r))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(snap)
	}
}
