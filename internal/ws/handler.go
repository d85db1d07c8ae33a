// Package ws is the WebSocket transport. Each connection gets a reader loop
// that turns frames into room messages, and once it is bound to a room, a
// writer goroutine draining the outbox the room writes to.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/classroom-games-backend/internal/apperr"
	"github.com/DoyleJ11/classroom-games-backend/internal/hub"
	"github.com/DoyleJ11/classroom-games-backend/internal/registry"
	"github.com/DoyleJ11/classroom-games-backend/internal/room"
	"github.com/DoyleJ11/classroom-games-backend/internal/roomcode"
	"github.com/DoyleJ11/classroom-games-backend/pkg/protocol"
)

var errAlreadyBound = apperr.Invalid("connection already belongs to a room")

const (
	readLimit     = 1 << 20
	detachTimeout = 2 * time.Second
)

type Options struct {
	// OriginPatterns are extra origins allowed besides the request host.
	OriginPatterns []string
	OutboxSize     int
	PingInterval   time.Duration
	WriteTimeout   time.Duration
}

type Handler struct {
	hub  *hub.Hub
	reg  *registry.Registry
	opts Options
	log  *zap.Logger
}

func NewHandler(h *hub.Hub, reg *registry.Registry, opts Options, log *zap.Logger) *Handler {
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	return &Handler{hub: h, reg: reg, opts: opts, log: log.Named("ws")}
}

type session struct {
	h    *Handler
	conn *websocket.Conn
	id   string
	log  *zap.Logger
	ctx  context.Context
	stop context.CancelFunc
	room *room.Room
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.opts.OriginPatterns,
	})
	if err != nil {
		h.log.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s := &session{h: h, conn: conn, id: uuid.NewString(), ctx: ctx, stop: cancel}
	s.log = h.log.With(zap.String("conn", s.id))
	h.reg.Add(s.id)
	defer h.reg.Remove(s.id)
	s.log.Debug("connected", zap.String("remote", r.RemoteAddr))

	if h.opts.PingInterval > 0 {
		go s.pingLoop()
	}
	s.readLoop()
	s.detach()
}

func (s *session) readLoop() {
	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				s.log.Debug("closed by peer")
			default:
				s.log.Debug("read ended", zap.Error(err))
			}
			return
		}

		var in protocol.Inbound
		if err := json.Unmarshal(data, &in); err != nil || in.Event == "" {
			s.reject("", "", apperr.Invalid("frames must be JSON objects with an event"))
			continue
		}
		if err := s.handle(in); err != nil {
			if errors.Is(err, apperr.ErrRoomClosed) && s.room != nil {
				return
			}
			s.log.Debug("rejected", zap.String("event", in.Event), zap.Error(err))
			s.reject(in.Event, in.Ref, err)
		}
	}
}

// handle routes one frame. Binding events are served here; everything else
// goes to the bound room, which answers on the outbox.
func (s *session) handle(in protocol.Inbound) error {
	switch in.Event {
	case protocol.HostCreateRoom, protocol.HostCreateLobby:
		if s.bound() {
			return errAlreadyBound
		}
		return s.createRoom(in)

	case protocol.HostReconnect:
		if s.bound() {
			return errAlreadyBound
		}
		d, err := decode[protocol.HostReconnectData](in.Data)
		if err != nil {
			return err
		}
		r, err := s.lookup(d.RoomCode)
		if err != nil {
			return err
		}
		return s.bind(r, registry.RoleHost, func(out chan<- protocol.Outbound) (string, error) {
			return "", r.AttachHost(s.ctx, s.id, d.HostToken, out)
		})

	case protocol.PlayerJoinRoom:
		if s.bound() {
			return errAlreadyBound
		}
		d, err := decode[protocol.JoinRoomData](in.Data)
		if err != nil {
			return err
		}
		r, err := s.lookup(d.RoomCode)
		if err != nil {
			return err
		}
		return s.bind(r, registry.RolePlayer, func(out chan<- protocol.Outbound) (string, error) {
			return r.Join(s.ctx, s.id, d.PlayerName, out)
		})

	case protocol.PlayerReconnect:
		if s.bound() {
			return errAlreadyBound
		}
		d, err := decode[protocol.PlayerReconnectData](in.Data)
		if err != nil {
			return err
		}
		r, err := s.lookup(d.RoomCode)
		if err != nil {
			return err
		}
		return s.bind(r, registry.RolePlayer, func(out chan<- protocol.Outbound) (string, error) {
			return d.PlayerID, r.Rejoin(s.ctx, s.id, d.PlayerID, out)
		})
	}

	if s.room == nil {
		return apperr.Invalid("create or join a room first")
	}
	return s.room.Send(s.ctx, room.Command{ConnID: s.id, Event: in.Event, Data: in.Data, Ref: in.Ref})
}

func (s *session) createRoom(in protocol.Inbound) error {
	var d protocol.CreateRoomData
	if len(in.Data) > 0 {
		var err error
		if d, err = decode[protocol.CreateRoomData](in.Data); err != nil {
			return err
		}
	}
	r, err := s.h.hub.CreateRoom(s.ctx)
	if err != nil {
		return err
	}
	err = s.bind(r, registry.RoleHost, func(out chan<- protocol.Outbound) (string, error) {
		return "", r.AttachHost(s.ctx, s.id, r.HostToken(), out)
	})
	if err != nil {
		r.Shutdown("host-left")
		return err
	}
	if in.Event == protocol.HostCreateLobby {
		raw, _ := json.Marshal(d)
		return r.Send(s.ctx, room.Command{ConnID: s.id, Event: protocol.HostCreateLobby, Data: raw, Ref: in.Ref})
	}
	return nil
}

func (s *session) bound() bool {
	_, ok := s.h.reg.Get(s.id)
	return ok
}

func (s *session) lookup(code string) (*room.Room, error) {
	code = roomcode.Normalize(code)
	if !roomcode.Valid(code) {
		return nil, apperr.ErrRoomNotFound
	}
	return s.h.hub.Room(s.ctx, code)
}

// bind hands the room a fresh outbox through attach and, once the room
// has accepted it, starts writing that outbox to the socket. attach returns
// the player id, or "" for the host.
func (s *session) bind(r *room.Room, role registry.Role, attach func(out chan<- protocol.Outbound) (string, error)) error {
	out := make(chan protocol.Outbound, s.h.opts.OutboxSize)
	playerID, err := attach(out)
	if err != nil {
		if errors.Is(err, apperr.ErrRoomClosed) {
			return apperr.ErrRoomNotFound
		}
		return err
	}
	s.room = r
	if err := s.h.reg.Bind(s.id, registry.Identity{RoomCode: r.Code(), PlayerID: playerID, Role: role}); err != nil {
		s.log.Warn("registry bind", zap.Error(err))
	}
	s.log.Debug("bound", zap.String("room", r.Code()), zap.String("role", string(role)), zap.String("player", playerID))
	go s.writeLoop(out)
	return nil
}

// writeLoop ends when the room closes the outbox, which it does when it
// lets go of this connection (kick, leave, slow client, room closed).
func (s *session) writeLoop(out <-chan protocol.Outbound) {
	for f := range out {
		if err := s.write(f); err != nil {
			s.log.Debug("write failed", zap.Error(err))
			s.stop()
			return
		}
	}
	_ = s.conn.Close(websocket.StatusNormalClosure, "released")
	s.stop()
}

func (s *session) write(f protocol.Outbound) error {
	b, err := json.Marshal(f)
	if err != nil {
		s.log.Error("encode frame", zap.String("event", f.Event), zap.Error(err))
		return nil
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.h.opts.WriteTimeout)
	defer cancel()
	return s.conn.Write(ctx, websocket.MessageText, b)
}

// reject answers the sender directly; these frames never pass through a
// room so they carry no sequence number.
func (s *session) reject(event, ref string, err error) {
	if werr := s.write(protocol.Outbound{Event: protocol.Error, Data: protocol.NewError(err, event), Ref: ref}); werr != nil {
		s.stop()
	}
}

func (s *session) pingLoop() {
	t := time.NewTicker(s.h.opts.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(s.ctx, s.h.opts.PingInterval)
			err := s.conn.Ping(ctx)
			cancel()
			if err != nil {
				s.log.Debug("ping failed", zap.Error(err))
				s.stop()
				return
			}
		}
	}
}

// detach tells the room the transport is gone so the grace period starts.
func (s *session) detach() {
	if s.room == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), detachTimeout)
	defer cancel()
	if err := s.room.Send(ctx, room.Detach{ConnID: s.id}); err != nil && !errors.Is(err, apperr.ErrRoomClosed) {
		s.log.Warn("detach not delivered", zap.Error(err))
	}
}

func decode[T any](data json.RawMessage) (T, error) {
	var v T
	if len(data) == 0 {
		return v, apperr.Invalid("missing data")
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, apperr.Invalid("malformed payload: %v", err)
	}
	return v, nil
}
