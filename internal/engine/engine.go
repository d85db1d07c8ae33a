// Package engine holds the authoritative rules of every mini-game.
//
// Each game is a sum type payload plus pure transition functions looked up
// in a dispatch table. Apply never mutates its input: on success it returns
// the next state and the effects the room must carry out (broadcasts,
// score deltas, timers); on failure it returns the input unchanged.
package engine

import (
	"encoding/json"
	"math/rand/v2"
	"time"

	"github.com/DoyleJ11/classroom-games-backend/internal/apperr"
)

type GameID string

type Phase string

// PhaseFinished is shared by every game once its last round is resolved.
const PhaseFinished Phase = "finished"

// Payload is the game-specific part of a State. Implementations must be
// deep-copyable and able to render a view for any viewer, which is what
// late joiners and reconnecting clients are sent.
type Payload interface {
	Clone() Payload
	View(phase Phase, round int, v Viewer) any
}

// Viewer identifies who a view is rendered for. The host sees answers.
type Viewer struct {
	Host     bool
	PlayerID string
}

type State struct {
	Game    GameID  `json:"game"`
	Phase   Phase   `json:"phase"`
	Round   int     `json:"roundIndex"`
	Payload Payload `json:"payload"`
}

// View is the JSON shape of a game state as seen by one viewer.
type View struct {
	Game    GameID `json:"game"`
	Family  Family `json:"family"`
	Phase   Phase  `json:"phase"`
	Round   int    `json:"roundIndex"`
	Payload any    `json:"payload"`
}

func (s State) View(v Viewer) View {
	var payload any
	if s.Payload != nil {
		payload = s.Payload.View(s.Phase, s.Round, v)
	}
	return View{
		Game:    s.Game,
		Family:  registry[s.Game].Family,
		Phase:   s.Phase,
		Round:   s.Round,
		Payload: payload,
	}
}

type ActionKind int

const (
	KindHost ActionKind = iota + 1
	KindPlayer
	KindTick
)

// TimerRoster is never scheduled; the room sends it as a tick whenever a
// player disconnects or leaves so games can re-check "everyone answered".
// Places and turns are only given up once the player is off the roster.
const TimerRoster = "roster"

type Action struct {
	Kind     ActionKind
	Name     string
	PlayerID string
	Data     json.RawMessage
}

// Participant is the engine's read-only view of a roster entry.
type Participant struct {
	ID         string
	Name       string
	Connected  bool
	Eliminated bool
}

type Env struct {
	Now      time.Time
	Players  []Participant
	Settings Settings
	Rand     *rand.Rand
}

func (e Env) Player(id string) (Participant, bool) {
	for _, p := range e.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

// Active lists connected players who are still in the game, in join order.
func (e Env) Active() []Participant {
	out := make([]Participant, 0, len(e.Players))
	for _, p := range e.Players {
		if p.Connected && !p.Eliminated {
			out = append(out, p)
		}
	}
	return out
}

func (e Env) activeIDs() []string {
	active := e.Active()
	ids := make([]string, len(active))
	for i, p := range active {
		ids[i] = p.ID
	}
	return ids
}

func (e Env) isActive(id string) bool {
	p, ok := e.Player(id)
	return ok && p.Connected && !p.Eliminated
}

// onRoster reports whether id is still a member of the room. A player in
// their reconnect grace window is, even though they are not active.
func (e Env) onRoster(id string) bool {
	_, ok := e.Player(id)
	return ok
}

func (e Env) rng() *rand.Rand {
	if e.Rand != nil {
		return e.Rand
	}
	return rand.New(rand.NewPCG(uint64(e.Now.UnixNano()), 0x9e3779b97f4a7c15))
}

// Start builds round zero of game from the host's config.
func Start(game GameID, config json.RawMessage, env Env) (State, []Effect, error) {
	rules, ok := registry[game]
	if !ok {
		return State{}, nil, apperr.Invalid("unknown game %q", game)
	}
	return rules.Start(config, env)
}

// Apply runs one action through the game's transition table.
func Apply(s State, a Action, env Env) (State, []Effect, error) {
	rules, ok := registry[s.Game]
	if !ok || s.Payload == nil {
		return s, nil, apperr.Phase("no game running")
	}
	if a.Kind == KindPlayer {
		p, ok := env.Player(a.PlayerID)
		if !ok || !p.Connected {
			return s, nil, apperr.ErrUnknownPlayer
		}
	}
	if s.Phase == PhaseFinished {
		return s, nil, apperr.Phase("game is finished")
	}

	var h Handler
	switch a.Kind {
	case KindHost:
		h = rules.Host
	case KindPlayer:
		h = rules.Player
	case KindTick:
		h = rules.Tick
	}
	if h == nil {
		return s, nil, apperr.Phase("action not supported by %s", s.Game)
	}

	next := s
	next.Payload = s.Payload.Clone()
	out, effects, err := h(next, a, env)
	if err != nil {
		return s, nil, err
	}
	return out, effects, nil
}
