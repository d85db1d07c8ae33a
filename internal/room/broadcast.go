package room

import (
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/classroom-games-backend/internal/engine"
	"github.com/DoyleJ11/classroom-games-backend/internal/roster"
	"github.com/DoyleJ11/classroom-games-backend/internal/score"
	"github.com/DoyleJ11/classroom-games-backend/pkg/protocol"
)

// RoomView is the room part of every snapshot.
type RoomView struct {
	Code            string           `json:"code"`
	Players         []roster.Player  `json:"players"`
	HostConnected   bool             `json:"hostConnected"`
	SelectedGame    engine.GameID    `json:"selectedGame,omitempty"`
	CurrentGame     engine.GameID    `json:"currentGame,omitempty"`
	LobbyMinigameID string           `json:"lobbyMinigameId,omitempty"`
	Leaderboard     []score.Standing `json:"leaderboard"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// Sync is a full snapshot for one viewer: enough to redraw the screen
// without any earlier event.
type Sync struct {
	Room     RoomView     `json:"room"`
	GameData *engine.View `json:"gameData,omitempty"`
}

func (r *Room) roomView() RoomView {
	v := RoomView{
		Code:            r.code,
		Players:         r.roster.Snapshot(),
		HostConnected:   r.hostConn != "",
		SelectedGame:    r.selected,
		LobbyMinigameID: r.lobbyGame,
		Leaderboard:     score.Leaderboard(r.roster),
		CreatedAt:       r.createdAt,
	}
	if r.game != nil {
		v.CurrentGame = r.game.Game
	}
	return v
}

func (r *Room) syncPayload(room RoomView, c *client) Sync {
	s := Sync{Room: room}
	if r.game != nil {
		v := r.game.View(engine.Viewer{Host: c.host(), PlayerID: c.playerID})
		s.GameData = &v
	}
	return s
}

// deliver never blocks the room: a client whose outbox is full is dropped
// and handled as a disconnect once the current message is done. It will
// resync from a snapshot when it reconnects.
func (r *Room) deliver(c *client, f protocol.Outbound) {
	if c.dropped || r.clients[c.connID] != c {
		return
	}
	select {
	case c.outbox <- f:
	default:
		c.dropped = true
		r.dropped = append(r.dropped, c.connID)
		r.log.Warn("dropping slow client", zap.String("conn", c.connID), zap.String("event", f.Event))
	}
}

// broadcast sends one event to every client under the next sequence number.
func (r *Room) broadcast(event string, data any) {
	r.seq++
	f := protocol.Outbound{Event: event, Seq: r.seq, Data: data}
	for _, c := range r.clients {
		r.deliver(c, f)
	}
}

// syncAll broadcasts a snapshot rendered for each viewer. It counts as one
// event in the sequence.
func (r *Room) syncAll(event string) {
	r.seq++
	room := r.roomView()
	for _, c := range r.clients {
		r.deliver(c, protocol.Outbound{Event: event, Seq: r.seq, Data: r.syncPayload(room, c)})
	}
}

// direct sends to one client without advancing the sequence.
func (r *Room) direct(c *client, event string, data any, ref string) {
	r.deliver(c, protocol.Outbound{Event: event, Seq: r.seq, Data: data, Ref: ref})
}

func (r *Room) toPlayer(playerID, event string, data any) {
	if c, ok := r.connOf(playerID); ok {
		r.direct(c, event, data, "")
	}
}

func (r *Room) toHost(event string, data any) {
	if c, ok := r.clients[r.hostConn]; ok {
		r.direct(c, event, data, "")
	}
}
