package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/DoyleJ11/classroom-games-backend/internal/apperr"
	"github.com/DoyleJ11/classroom-games-backend/internal/engine"
	"github.com/DoyleJ11/classroom-games-backend/internal/hub"
	"github.com/DoyleJ11/classroom-games-backend/internal/registry"
	"github.com/DoyleJ11/classroom-games-backend/internal/roomcode"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func Healthz(h *hub.Hub, reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := h.Stats(r.Context())
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "stopping"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"rooms":       stats.Rooms,
			"connections": reg.Len(),
		})
	}
}

type roomStatus struct {
	Exists    bool          `json:"exists"`
	Code      string        `json:"code,omitempty"`
	Players   int           `json:"players"`
	Connected int           `json:"connected"`
	Joinable  bool          `json:"joinable"`
	Game      engine.GameID `json:"game,omitempty"`
}

// RoomStatus lets a join screen check a typed code before opening a socket.
func RoomStatus(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := roomcode.Normalize(chi.URLParam(r, "code"))
		if !roomcode.Valid(code) {
			writeJSON(w, http.StatusNotFound, roomStatus{})
			return
		}
		rm, err := h.Room(r.Context(), code)
		if err != nil {
			writeJSON(w, http.StatusNotFound, roomStatus{})
			return
		}
		in, err := rm.Info(r.Context())
		if errors.Is(err, apperr.ErrRoomClosed) {
			writeJSON(w, http.StatusNotFound, roomStatus{})
			return
		}
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, roomStatus{
			Exists:    true,
			Code:      in.Code,
			Players:   len(in.Players),
			Connected: in.Connected,
			Joinable:  in.Joinable,
			Game:      in.Game,
		})
	}
}
