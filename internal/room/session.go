package room

import (
	"go.uber.org/zap"

	"github.com/DoyleJ11/classroom-games-backend/internal/apperr"
	"github.com/DoyleJ11/classroom-games-backend/pkg/protocol"
)

func (r *Room) addClient(connID, playerID string, out chan<- protocol.Outbound) *client {
	c := &client{connID: connID, playerID: playerID, outbox: out}
	r.clients[connID] = c
	return c
}

// release forgets a connection and closes its outbox, which makes the
// transport close the socket once the queued frames are written.
func (r *Room) release(connID string) {
	c, ok := r.clients[connID]
	if !ok {
		return
	}
	delete(r.clients, connID)
	close(c.outbox)
	if connID == r.hostConn {
		r.hostConn = ""
	}
}

func (r *Room) connOf(playerID string) (*client, bool) {
	for _, c := range r.clients {
		if c.playerID == playerID {
			return c, true
		}
	}
	return nil, false
}

func (r *Room) attachHost(msg HostAttach) error {
	if msg.Token != r.hostToken {
		return apperr.ErrNotHost
	}
	if r.hostConn != "" {
		r.release(r.hostConn)
	}
	c := r.addClient(msg.ConnID, "", msg.Outbox)
	r.hostConn = msg.ConnID
	r.stopHostGrace()

	if !r.hostSeen {
		r.hostSeen = true
		r.log.Info("host attached", zap.String("conn", msg.ConnID))
		r.direct(c, protocol.RoomCreated, map[string]any{
			"roomCode":  r.code,
			"hostToken": r.hostToken,
			"room":      r.roomView(),
		}, "")
		return nil
	}

	r.log.Info("host reattached", zap.String("conn", msg.ConnID))
	r.direct(c, protocol.GameStateSync, r.syncPayload(r.roomView(), c), "")
	if r.suspended {
		r.suspended = false
		r.broadcast(protocol.RoomHostBack, map[string]any{"room": r.roomView()})
	}
	return nil
}

func (r *Room) join(msg Join) (string, error) {
	p, err := r.roster.Add(msg.Name)
	if err != nil {
		return "", err
	}
	c := r.addClient(msg.ConnID, p.ID, msg.Outbox)
	r.log.Info("player joined", zap.String("player", p.ID), zap.String("name", p.Name))

	room := r.roomView()
	r.direct(c, protocol.RoomJoined, map[string]any{"playerId": p.ID, "room": room}, "")
	r.direct(c, protocol.GameStateSync, r.syncPayload(room, c), "")
	r.broadcast(protocol.RoomPlayerJoined, map[string]any{"playerId": p.ID, "room": room})
	return p.ID, nil
}

// rejoin resumes a player whose id is still on the roster. Score, buzzer
// cooldowns and elimination are untouched.
func (r *Room) rejoin(msg Rejoin) error {
	p, ok := r.roster.Get(msg.PlayerID)
	if !ok {
		return apperr.ErrSessionExpired
	}
	if old, ok := r.connOf(p.ID); ok {
		r.release(old.connID)
	}
	r.stopGrace(p.ID)
	p.Connected = true
	c := r.addClient(msg.ConnID, p.ID, msg.Outbox)
	r.log.Info("player reconnected", zap.String("player", p.ID))

	room := r.roomView()
	r.direct(c, protocol.RoomJoined, map[string]any{"playerId": p.ID, "room": room, "reconnected": true}, "")
	r.direct(c, protocol.GameStateSync, r.syncPayload(room, c), "")
	r.broadcast(protocol.RoomPlayerConnected, map[string]any{"playerId": p.ID, "isConnected": true, "room": room})
	return nil
}

// detach turns a dropped transport into a grace period. A player keeps
// their place until ReconnectGrace runs out; a missing host suspends
// player game actions until HostGrace runs out and the room closes.
func (r *Room) detach(connID string) {
	c, ok := r.clients[connID]
	if !ok {
		return
	}
	r.release(connID)

	if c.host() {
		r.suspended = true
		r.startHostGrace()
		r.log.Info("host disconnected", zap.Duration("grace", r.cfg.HostGrace))
		r.broadcast(protocol.RoomHostLeft, map[string]any{"graceMs": r.cfg.HostGrace.Milliseconds()})
		return
	}

	p, ok := r.roster.Get(c.playerID)
	if !ok {
		return
	}
	p.Connected = false
	r.startGrace(p.ID)
	r.log.Debug("player disconnected", zap.String("player", p.ID))
	r.broadcast(protocol.RoomPlayerConnected, map[string]any{
		"playerId":    p.ID,
		"isConnected": false,
		"graceMs":     r.cfg.ReconnectGrace.Milliseconds(),
		"room":        r.roomView(),
	})
	r.rosterChanged()
}

// flushDropped detaches clients whose outbox overflowed while handling the
// last message.
func (r *Room) flushDropped() {
	for len(r.dropped) > 0 && !r.closed {
		id := r.dropped[0]
		r.dropped = r.dropped[1:]
		r.detach(id)
	}
	r.dropped = nil
}

func (r *Room) graceOver(msg graceExpired) {
	pt, ok := r.graces[msg.playerID]
	if !ok || pt.gen != msg.gen {
		return
	}
	delete(r.graces, msg.playerID)
	p, ok := r.roster.Get(msg.playerID)
	if !ok || p.Connected {
		return
	}
	r.log.Info("reconnect grace expired", zap.String("player", p.ID))
	r.removePlayer(p.ID, "timeout")
}

// removePlayer takes a player off the roster for good.
func (r *Room) removePlayer(playerID, reason string) {
	if c, ok := r.connOf(playerID); ok {
		if reason == "kicked" {
			r.direct(c, protocol.RoomKicked, map[string]any{"reason": reason}, "")
		}
		r.release(c.connID)
	}
	r.stopGrace(playerID)
	r.roster.Remove(playerID)
	r.lobby.Forget(playerID)
	r.broadcast(protocol.RoomPlayerLeft, map[string]any{
		"playerId": playerID,
		"reason":   reason,
		"room":     r.roomView(),
	})
	r.rosterChanged()
}
