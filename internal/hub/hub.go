// Package hub owns the set of live rooms. Like a room it is an actor: one
// goroutine holds the code -> room map and everything else asks it.
package hub

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/DoyleJ11/classroom-games-backend/internal/apperr"
	"github.com/DoyleJ11/classroom-games-backend/internal/room"
	"github.com/DoyleJ11/classroom-games-backend/internal/roomcode"
)

const maxCodeAttempts = 32

type Config struct {
	MaxRooms int
	Room     room.Config
}

type HubMsg interface{ isHubMsg() }

// CreateRoom opens a room under a fresh code. Reply must be buffered.
type CreateRoom struct {
	Reply chan<- CreateResult
}

type CreateResult struct {
	Room *room.Room
	Err  error
}

type GetRoom struct {
	Code  string
	Reply chan<- *room.Room
}

// RemoveRoom is posted by a room once it has torn down.
type RemoveRoom struct {
	Code string
}

type GetStats struct {
	Reply chan<- Stats
}

type ShutdownHub struct {
	Reply chan<- []*room.Room
}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (GetStats) isHubMsg()    {}
func (ShutdownHub) isHubMsg() {}

type Stats struct {
	Rooms int `json:"rooms"`
}

type Hub struct {
	cfg     Config
	log     *zap.Logger
	roomLog *zap.Logger
	inbox   chan HubMsg
	done    chan struct{}
	rooms   map[string]*room.Room
	ctx     context.Context
	cancel  context.CancelFunc

	// newCode is swapped in tests to force collisions.
	newCode func() (string, error)
}

func NewHub(parent context.Context, cfg Config, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		cfg:     cfg,
		log:     log.Named("hub"),
		roomLog: log.Named("room"),
		inbox:   make(chan HubMsg, 64),
		done:    make(chan struct{}),
		rooms:   make(map[string]*room.Room),
		ctx:     ctx,
		cancel:  cancel,
		newCode: roomcode.Generate,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) send(ctx context.Context, m HubMsg) error {
	select {
	case <-h.done:
		return apperr.ErrRoomClosed
	default:
	}
	select {
	case h.inbox <- m:
		return nil
	case <-h.done:
		return apperr.ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) CreateRoom(ctx context.Context) (*room.Room, error) {
	reply := make(chan CreateResult, 1)
	if err := h.send(ctx, CreateRoom{Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case res := <-reply:
		return res.Room, res.Err
	case <-h.done:
		return nil, apperr.ErrRoomClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Room finds a live room by its code.
func (h *Hub) Room(ctx context.Context, code string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	if err := h.send(ctx, GetRoom{Code: roomcode.Normalize(code), Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case r := <-reply:
		if r == nil {
			return nil, apperr.ErrRoomNotFound
		}
		return r, nil
	case <-h.done:
		return nil, apperr.ErrRoomNotFound
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	if err := h.send(ctx, GetStats{Reply: reply}); err != nil {
		return Stats{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-h.done:
		return Stats{}, apperr.ErrRoomClosed
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

// Shutdown closes every room and waits for them to tear down, or for ctx.
// Rooms are told to close outside the hub loop: a closing room posts
// RemoveRoom back to the hub.
func (h *Hub) Shutdown(ctx context.Context) error {
	defer h.cancel()
	reply := make(chan []*room.Room, 1)
	if err := h.send(ctx, ShutdownHub{Reply: reply}); err != nil {
		if errors.Is(err, apperr.ErrRoomClosed) {
			return nil
		}
		return err
	}
	var rooms []*room.Room
	select {
	case rooms = <-reply:
	case <-ctx.Done():
		return ctx.Err()
	}
	for _, r := range rooms {
		r.Shutdown("shutdown")
	}
	for _, r := range rooms {
		select {
		case <-r.Done():
		case <-ctx.Done():
			return fmt.Errorf("waiting for room %s: %w", r.Code(), ctx.Err())
		}
	}
	h.log.Info("hub stopped", zap.Int("rooms", len(rooms)))
	return nil
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			close(h.done)
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				r, err := h.create()
				msg.Reply <- CreateResult{Room: r, Err: err}

			case GetRoom:
				msg.Reply <- h.rooms[msg.Code] // may be nil

			case RemoveRoom:
				if _, ok := h.rooms[msg.Code]; ok {
					delete(h.rooms, msg.Code)
					h.log.Info("room removed", zap.String("room", msg.Code), zap.Int("rooms", len(h.rooms)))
				}

			case GetStats:
				msg.Reply <- Stats{Rooms: len(h.rooms)}

			case ShutdownHub:
				rooms := make([]*room.Room, 0, len(h.rooms))
				for _, r := range h.rooms {
					rooms = append(rooms, r)
				}
				clear(h.rooms)
				msg.Reply <- rooms
				close(h.done)
				return
			}
		}
	}
}

func (h *Hub) create() (*room.Room, error) {
	if h.cfg.MaxRooms > 0 && len(h.rooms) >= h.cfg.MaxRooms {
		return nil, fmt.Errorf("server at capacity: %w", apperr.ErrRoomFull)
	}
	for range maxCodeAttempts {
		code, err := h.newCode()
		if err != nil {
			return nil, fmt.Errorf("generate room code: %w", err)
		}
		if _, taken := h.rooms[code]; taken {
			continue
		}
		r := room.New(h.ctx, code, h.cfg.Room, h.roomLog, h.onRoomClosed)
		h.rooms[code] = r
		h.log.Info("room created", zap.String("room", code), zap.Int("rooms", len(h.rooms)))
		return r, nil
	}
	return nil, fmt.Errorf("no free room code after %d attempts", maxCodeAttempts)
}

// onRoomClosed runs on the closing room's goroutine.
func (h *Hub) onRoomClosed(code string) {
	select {
	case h.inbox <- RemoveRoom{Code: code}:
	case <-h.done:
	}
}
