// Package room runs one classroom session as an actor. A single goroutine
// owns the roster, the running game and the attached connections; every
// input, including timer fires, reaches it through the inbox.
package room

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/classroom-games-backend/internal/apperr"
	"github.com/DoyleJ11/classroom-games-backend/internal/engine"
	"github.com/DoyleJ11/classroom-games-backend/internal/roster"
	"github.com/DoyleJ11/classroom-games-backend/internal/score"
	"github.com/DoyleJ11/classroom-games-backend/pkg/protocol"
)

const inboxSize = 256

type Config struct {
	MaxPlayers     int
	ReconnectGrace time.Duration
	HostGrace      time.Duration
	IdleTTL        time.Duration
	Game           engine.Settings
}

type Msg interface{ isRoomMsg() }

// HostAttach binds a connection as the host. The first attach is answered
// with room:created; later ones resume a host that dropped.
// Reply must be buffered.
type HostAttach struct {
	ConnID string
	Token  string
	Outbox chan<- protocol.Outbound
	Reply  chan<- error
}

// Join adds a new player. The room closes Outbox when it lets go of the
// connection; if the join fails the outbox is never used.
type Join struct {
	ConnID string
	Name   string
	Outbox chan<- protocol.Outbound
	Reply  chan<- JoinResult
}

type JoinResult struct {
	PlayerID string
	Err      error
}

// Rejoin resumes an existing player on a new connection.
type Rejoin struct {
	ConnID   string
	PlayerID string
	Outbox   chan<- protocol.Outbound
	Reply    chan<- error
}

// Detach reports that a connection's transport went away.
type Detach struct{ ConnID string }

// Command is any other event from an attached connection. The answer, ack
// or error, goes to that connection's outbox.
type Command struct {
	ConnID string
	Event  string
	Data   json.RawMessage
	Ref    string
}

type GetState struct{ Reply chan<- Info }

type Shutdown struct{ Reason string }

type timerFired struct {
	name string
	gen  uint64
}

type graceExpired struct {
	playerID string
	gen      uint64
}

type hostGraceExpired struct{ gen uint64 }

func (HostAttach) isRoomMsg()       {}
func (Join) isRoomMsg()             {}
func (Rejoin) isRoomMsg()           {}
func (Detach) isRoomMsg()           {}
func (Command) isRoomMsg()          {}
func (GetState) isRoomMsg()         {}
func (Shutdown) isRoomMsg()         {}
func (timerFired) isRoomMsg()       {}
func (graceExpired) isRoomMsg()     {}
func (hostGraceExpired) isRoomMsg() {}

// Info is a point-in-time summary, safe to read from any goroutine.
type Info struct {
	Code          string
	CreatedAt     time.Time
	Players       []roster.Player
	Connected     int
	Clients       int
	HostConnected bool
	Suspended     bool
	Joinable      bool
	Game          engine.GameID
	Phase         engine.Phase
	Seq           uint64
}

type client struct {
	connID   string
	playerID string // empty for the host
	outbox   chan<- protocol.Outbound
	dropped  bool
}

func (c *client) host() bool { return c.playerID == "" }

type pendingTimer struct {
	t   *time.Timer
	gen uint64
}

type Room struct {
	code      string
	hostToken string
	cfg       Config
	log       *zap.Logger
	onClose   func(code string)

	inbox  chan Msg
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	now       func() time.Time
	rng       *rand.Rand
	createdAt time.Time
	lastInput time.Time

	roster    *roster.Roster
	lobby     *score.LobbyBoard
	lobbyGame string
	selected  engine.GameID
	game      *engine.State
	seq       uint64

	clients   map[string]*client
	hostConn  string
	hostSeen  bool
	suspended bool
	dropped   []string
	closed    bool

	gen       uint64
	timers    map[string]*pendingTimer
	graces    map[string]*pendingTimer
	hostGrace *pendingTimer
}

// New starts the room's goroutine. onClose runs on that goroutine once the
// room has torn down. The host has HostGrace to attach before the room
// gives up on it.
func New(parent context.Context, code string, cfg Config, log *zap.Logger, onClose func(code string)) *Room {
	ctx, cancel := context.WithCancel(parent)
	now := time.Now()
	r := &Room{
		code:      code,
		hostToken: uuid.NewString(),
		cfg:       cfg,
		log:       log.With(zap.String("room", code)),
		onClose:   onClose,
		inbox:     make(chan Msg, inboxSize),
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		now:       time.Now,
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		createdAt: now,
		lastInput: now,
		roster:    roster.New(cfg.MaxPlayers),
		lobby:     score.NewLobbyBoard(),
		clients:   make(map[string]*client),
		timers:    make(map[string]*pendingTimer),
		graces:    make(map[string]*pendingTimer),
	}
	r.startHostGrace()
	go r.loop()
	return r
}

func (r *Room) Code() string { return r.code }

// HostToken is the secret a host presents to attach or reattach.
func (r *Room) HostToken() string { return r.hostToken }

// Done is closed once the room has torn down.
func (r *Room) Done() <-chan struct{} { return r.done }

// Expose the inbox so tests or the WS layer can send messages.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Send queues m, failing with ErrRoomClosed once the room is gone.
func (r *Room) Send(ctx context.Context, m Msg) error {
	select {
	case <-r.done:
		return apperr.ErrRoomClosed
	default:
	}
	select {
	case r.inbox <- m:
		return nil
	case <-r.done:
		return apperr.ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) AttachHost(ctx context.Context, connID, token string, out chan<- protocol.Outbound) error {
	reply := make(chan error, 1)
	if err := r.Send(ctx, HostAttach{ConnID: connID, Token: token, Outbox: out, Reply: reply}); err != nil {
		return err
	}
	err, waitErr := await(ctx, r.done, reply)
	if waitErr != nil {
		return waitErr
	}
	return err
}

func (r *Room) Join(ctx context.Context, connID, name string, out chan<- protocol.Outbound) (string, error) {
	reply := make(chan JoinResult, 1)
	if err := r.Send(ctx, Join{ConnID: connID, Name: name, Outbox: out, Reply: reply}); err != nil {
		return "", err
	}
	res, err := await(ctx, r.done, reply)
	if err != nil {
		return "", err
	}
	return res.PlayerID, res.Err
}

func (r *Room) Rejoin(ctx context.Context, connID, playerID string, out chan<- protocol.Outbound) error {
	reply := make(chan error, 1)
	if err := r.Send(ctx, Rejoin{ConnID: connID, PlayerID: playerID, Outbox: out, Reply: reply}); err != nil {
		return err
	}
	err, waitErr := await(ctx, r.done, reply)
	if waitErr != nil {
		return waitErr
	}
	return err
}

func (r *Room) Info(ctx context.Context) (Info, error) {
	reply := make(chan Info, 1)
	if err := r.Send(ctx, GetState{Reply: reply}); err != nil {
		return Info{}, err
	}
	return await(ctx, r.done, reply)
}

// Shutdown asks the room to close with reason and returns without waiting.
func (r *Room) Shutdown(reason string) {
	_ = r.Send(context.Background(), Shutdown{Reason: reason})
}

func await[T any](ctx context.Context, done <-chan struct{}, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-done:
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, apperr.ErrRoomClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// post is used by timer callbacks, which run on their own goroutines.
func (r *Room) post(m Msg) {
	select {
	case r.inbox <- m:
	case <-r.done:
	}
}

func (r *Room) loop() {
	var idle <-chan time.Time
	if r.cfg.IdleTTL > 0 {
		t := time.NewTicker(min(r.cfg.IdleTTL, time.Minute))
		defer t.Stop()
		idle = t.C
	}
	for {
		select {
		case <-r.ctx.Done():
			r.teardown("shutdown")
			return

		case <-idle:
			if r.now().Sub(r.lastInput) >= r.cfg.IdleTTL {
				r.log.Info("closing idle room", zap.Duration("idle", r.now().Sub(r.lastInput)))
				r.teardown("idle")
				return
			}

		case m := <-r.inbox:
			r.dispatch(m)
			if r.closed {
				return
			}
		}
	}
}

// dispatch handles one message. A panic means a game or room invariant
// broke; the room cannot be trusted any more and is closed.
func (r *Room) dispatch(m Msg) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("room invariant violated", zap.Any("panic", p), zap.Stack("stack"))
			r.teardown("internal")
		}
	}()
	r.handle(m)
	r.flushDropped()
}

func (r *Room) handle(m Msg) {
	switch msg := m.(type) {
	case HostAttach:
		r.lastInput = r.now()
		msg.Reply <- r.attachHost(msg)

	case Join:
		r.lastInput = r.now()
		id, err := r.join(msg)
		msg.Reply <- JoinResult{PlayerID: id, Err: err}

	case Rejoin:
		r.lastInput = r.now()
		msg.Reply <- r.rejoin(msg)

	case Detach:
		r.detach(msg.ConnID)

	case Command:
		r.lastInput = r.now()
		r.command(msg)

	case GetState:
		msg.Reply <- r.info()

	case Shutdown:
		r.teardown(msg.Reason)

	case timerFired:
		r.fire(msg)

	case graceExpired:
		r.graceOver(msg)

	case hostGraceExpired:
		if r.hostGrace == nil || r.hostGrace.gen != msg.gen || r.hostConn != "" {
			return
		}
		r.log.Info("host grace expired")
		r.teardown("host-left")
	}
}

// teardown tells every client why the room is going away before letting
// go of them.
func (r *Room) teardown(reason string) {
	if r.closed {
		return
	}
	r.closed = true
	r.broadcast(protocol.RoomClosed, map[string]any{"reason": reason})
	for id := range r.clients {
		r.release(id)
	}
	r.stopAllTimers()
	for id := range r.graces {
		r.stopGrace(id)
	}
	r.stopHostGrace()
	r.cancel()
	close(r.done)
	r.log.Info("room closed", zap.String("reason", reason), zap.Int("players", r.roster.Len()))
	if r.onClose != nil {
		r.onClose(r.code)
	}
}

func (r *Room) info() Info {
	in := Info{
		Code:          r.code,
		CreatedAt:     r.createdAt,
		Players:       r.roster.Snapshot(),
		Connected:     r.roster.ConnectedCount(),
		Clients:       len(r.clients),
		HostConnected: r.hostConn != "",
		Suspended:     r.suspended,
		Joinable:      r.cfg.MaxPlayers <= 0 || r.roster.Len() < r.cfg.MaxPlayers,
		Seq:           r.seq,
	}
	if r.game != nil {
		in.Game = r.game.Game
		in.Phase = r.game.Phase
	}
	return in
}

func (r *Room) env() engine.Env {
	players := r.roster.Players()
	ps := make([]engine.Participant, len(players))
	for i, p := range players {
		ps[i] = engine.Participant{ID: p.ID, Name: p.Name, Connected: p.Connected, Eliminated: p.Eliminated}
	}
	return engine.Env{Now: r.now(), Players: ps, Settings: r.cfg.Game, Rand: r.rng}
}
