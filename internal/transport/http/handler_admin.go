package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"velvet-rooms/internal/engine"
	"velvet-rooms/internal/store"
	"velvet-rooms/internal/wallet"
)

// Pinger is the liveness slice of the persistence collaborator.
type Pinger interface {
	Ping(ctx context.Context) error
}

type AdminHandlers struct {
	db     Pinger
	ledger *wallet.Ledger
	engine *engine.Engine
}

func NewAdminHandlers(db Pinger, led *wallet.Ledger, eng *engine.Engine) *AdminHandlers {
	return &AdminHandlers{db: db, ledger: led, engine: eng}
}

func (h *AdminHandlers) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "db": "down"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "db": "up"})
	}
}

func (h *AdminHandlers) Ledger() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := ParsePagination(r)
		f := store.TransactionFilter{
			UserID: r.URL.Query().Get("user_id"),
			RoomID: r.URL.Query().Get("room_id"),
			Kind:   r.URL.Query().Get("kind"),
		}
		items, err := h.ledger.History(r.Context(), f, limit, offset)
		if err != nil {
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"items": items, "limit": limit, "offset": offset})
	}
}

func (h *AdminHandlers) Topup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			UserID   string `json:"user_id"`
			AmountCC int64  `json:"amount_cc"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if body.UserID == "" || body.AmountCC <= 0 {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		bal, err := h.ledger.Topup(r.Context(), body.UserID, body.AmountCC)
		if err != nil {
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "spendable_cc": bal})
	}
}

// Settle moves a host's pending earnings into their spendable balance. The
// payout pipeline is upstream; this endpoint is its manual stand-in.
func (h *AdminHandlers) Settle() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			UserID string `json:"user_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if body.UserID == "" {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		settled, err := h.ledger.Settle(r.Context(), body.UserID)
		if err != nil {
			if errors.Is(err, wallet.ErrAccountNotFound) {
				WriteHTTPError(w, http.StatusNotFound, "account_not_found")
				return
			}
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "settled_cc": settled})
	}
}

func (h *AdminHandlers) CreateRoom() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			HostID      string `json:"host_id"`
			BasePriceCC int64  `json:"base_price_cc"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if body.HostID == "" || body.BasePriceCC < 0 {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		room, err := h.engine.CreateRoom(r.Context(), body.HostID, body.BasePriceCC)
		if err != nil {
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "room": room})
	}
}
