package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/classroom-games-backend/internal/apperr"
	"github.com/DoyleJ11/classroom-games-backend/internal/engine"
	"github.com/DoyleJ11/classroom-games-backend/internal/hub"
	"github.com/DoyleJ11/classroom-games-backend/internal/registry"
	"github.com/DoyleJ11/classroom-games-backend/internal/room"
	"github.com/DoyleJ11/classroom-games-backend/pkg/protocol"
)

type frame struct {
	Event string          `json:"event"`
	Seq   uint64          `json:"seq"`
	Data  json.RawMessage `json:"data"`
	Ref   string          `json:"ref"`
}

type testClient struct {
	t    *testing.T
	conn *websocket.Conn
}

type testServer struct {
	url string
	reg *registry.Registry
}

func newServer(t *testing.T) testServer {
	t.Helper()
	h := hub.NewHub(context.Background(), hub.Config{
		MaxRooms: 10,
		Room: room.Config{
			MaxPlayers:     10,
			ReconnectGrace: time.Minute,
			HostGrace:      time.Minute,
			Game:           engine.DefaultSettings(),
		},
	}, zap.NewNop())
	reg := registry.New()
	srv := httptest.NewServer(NewHandler(h, reg, Options{}, zap.NewNop()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
		srv.Close()
	})
	return testServer{url: "ws" + strings.TrimPrefix(srv.URL, "http"), reg: reg}
}

func (s testServer) dial(t *testing.T) *testClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, s.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return &testClient{t: t, conn: conn}
}

func (c *testClient) send(event string, data any) {
	c.t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(c.t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(c.t, wsjson.Write(ctx, c.conn, protocol.Inbound{Event: event, Data: raw, Ref: "r-" + event}))
}

// expect reads frames until event arrives and decodes its data into v.
func (c *testClient) expect(event string, v any) frame {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		var f frame
		require.NoError(c.t, wsjson.Read(ctx, c.conn, &f), "waiting for %s", event)
		if f.Event != event {
			continue
		}
		if v != nil {
			require.NoError(c.t, json.Unmarshal(f.Data, v))
		}
		return f
	}
}

func (c *testClient) expectError(code string) protocol.ErrorData {
	c.t.Helper()
	var e protocol.ErrorData
	c.expect(protocol.Error, &e)
	assert.Equal(c.t, code, e.Code, e.Message)
	return e
}

type created struct {
	RoomCode  string `json:"roomCode"`
	HostToken string `json:"hostToken"`
}

type joined struct {
	PlayerID    string `json:"playerId"`
	Reconnected bool   `json:"reconnected"`
}

func TestCreateJoinAndReconnect(t *testing.T) {
	srv := newServer(t)

	host := srv.dial(t)
	host.send(protocol.HostCreateRoom, nil)
	var rc created
	host.expect(protocol.RoomCreated, &rc)
	require.Len(t, rc.RoomCode, 6)
	require.NotEmpty(t, rc.HostToken)

	anna := srv.dial(t)
	anna.send(protocol.PlayerJoinRoom, protocol.JoinRoomData{RoomCode: strings.ToLower(rc.RoomCode), PlayerName: "Anna"})
	var me joined
	anna.expect(protocol.RoomJoined, &me)
	require.NotEmpty(t, me.PlayerID)
	anna.expect(protocol.GameStateSync, nil)
	host.expect(protocol.RoomPlayerJoined, nil)

	anna.send(protocol.HostStartGame, map[string]string{"gameId": "quiz"})
	e := anna.expectError(apperr.CodeNotHost)
	assert.Equal(t, protocol.HostStartGame, e.Request)

	anna.send(protocol.PlayerJoinRoom, protocol.JoinRoomData{RoomCode: rc.RoomCode, PlayerName: "Again"})
	anna.expectError(apperr.CodeValidationFailed)

	require.NoError(t, anna.conn.Close(websocket.StatusNormalClosure, "bye"))
	var conn struct {
		PlayerID    string `json:"playerId"`
		IsConnected bool   `json:"isConnected"`
	}
	host.expect(protocol.RoomPlayerConnected, &conn)
	assert.Equal(t, me.PlayerID, conn.PlayerID)
	assert.False(t, conn.IsConnected)

	back := srv.dial(t)
	back.send(protocol.PlayerReconnect, protocol.PlayerReconnectData{RoomCode: rc.RoomCode, PlayerID: me.PlayerID})
	var again joined
	back.expect(protocol.RoomJoined, &again)
	assert.Equal(t, me.PlayerID, again.PlayerID)
	assert.True(t, again.Reconnected)
}

func TestRejectsBeforeBinding(t *testing.T) {
	srv := newServer(t)
	c := srv.dial(t)

	c.send(protocol.LobbyGetScores, nil)
	c.expectError(apperr.CodeValidationFailed)

	c.send(protocol.PlayerJoinRoom, protocol.JoinRoomData{RoomCode: "ZZZZZZ", PlayerName: "Anna"})
	c.expectError(apperr.CodeRoomNotFound)

	c.send(protocol.PlayerReconnect, protocol.PlayerReconnectData{RoomCode: "nope", PlayerID: "x"})
	c.expectError(apperr.CodeRoomNotFound)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.conn.Write(ctx, websocket.MessageText, []byte("not json")))
	c.expectError(apperr.CodeValidationFailed)
}

func TestHostReconnectNeedsToken(t *testing.T) {
	srv := newServer(t)
	host := srv.dial(t)
	host.send(protocol.HostCreateLobby, protocol.CreateRoomData{LobbyMinigameID: "snake"})
	var rc created
	host.expect(protocol.RoomCreated, &rc)
	var scores struct {
		LobbyMinigameID string `json:"lobbyMinigameId"`
	}
	host.expect(protocol.LobbyScores, &scores)
	assert.Equal(t, "snake", scores.LobbyMinigameID)

	thief := srv.dial(t)
	thief.send(protocol.HostReconnect, protocol.HostReconnectData{RoomCode: rc.RoomCode, HostToken: "guess"})
	thief.expectError(apperr.CodeNotHost)

	require.Eventually(t, func() bool { return srv.reg.Len() == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, host.conn.Close(websocket.StatusNormalClosure, "bye"))

	second := srv.dial(t)
	second.send(protocol.HostReconnect, protocol.HostReconnectData{RoomCode: rc.RoomCode, HostToken: rc.HostToken})
	second.expect(protocol.GameStateSync, nil)
}
