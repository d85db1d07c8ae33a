package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/classroom-games-backend/internal/engine"
	"github.com/DoyleJ11/classroom-games-backend/internal/hub"
	"github.com/DoyleJ11/classroom-games-backend/internal/registry"
	"github.com/DoyleJ11/classroom-games-backend/internal/room"
	"github.com/DoyleJ11/classroom-games-backend/pkg/protocol"
)

func testRouter(t *testing.T) (http.Handler, *hub.Hub, *registry.Registry) {
	t.Helper()
	h := hub.NewHub(context.Background(), hub.Config{
		MaxRooms: 5,
		Room: room.Config{
			MaxPlayers:     2,
			ReconnectGrace: time.Minute,
			HostGrace:      time.Minute,
			Game:           engine.DefaultSettings(),
		},
	}, zap.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	})
	reg := registry.New()
	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	return SetupRoutes(Deps{Hub: h, Registry: reg, WS: ws, Log: zap.NewNop()}), h, reg
}

func get(t *testing.T, h http.Handler, path string, v any) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if v != nil {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
	}
	return w.Code
}

func TestHealthz(t *testing.T) {
	r, h, reg := testRouter(t)
	_, err := h.CreateRoom(context.Background())
	require.NoError(t, err)
	reg.Add("c1")

	var body struct {
		Status      string `json:"status"`
		Rooms       int    `json:"rooms"`
		Connections int    `json:"connections"`
	}
	assert.Equal(t, http.StatusOK, get(t, r, "/healthz", &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.Rooms)
	assert.Equal(t, 1, body.Connections)
}

func TestRoomStatus(t *testing.T) {
	r, h, _ := testRouter(t)
	rm, err := h.CreateRoom(context.Background())
	require.NoError(t, err)

	var st roomStatus
	assert.Equal(t, http.StatusNotFound, get(t, r, "/rooms/ZZZZZZ", &st))
	assert.False(t, st.Exists)
	assert.Equal(t, http.StatusNotFound, get(t, r, "/rooms/bad", &st))

	for _, name := range []string{"Anna", "Bo"} {
		_, err := rm.Join(context.Background(), name, name, make(chan protocol.Outbound, 16))
		require.NoError(t, err)
	}
	assert.Equal(t, http.StatusOK, get(t, r, "/rooms/"+rm.Code(), &st))
	assert.True(t, st.Exists)
	assert.Equal(t, rm.Code(), st.Code)
	assert.Equal(t, 2, st.Players)
	assert.Equal(t, 2, st.Connected)
	assert.False(t, st.Joinable, "room is at MaxPlayers")
}

func TestWSRouteIsMounted(t *testing.T) {
	r, _, _ := testRouter(t)
	assert.Equal(t, http.StatusTeapot, get(t, r, "/ws", nil))
}
