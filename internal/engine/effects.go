package engine

import "time"

type EffectKind string

const (
	EffectEmit      EffectKind = "emit"
	EffectAward     EffectKind = "award"
	EffectEliminate EffectKind = "eliminate"
	EffectCount     EffectKind = "count"
	EffectSchedule  EffectKind = "schedule"
	EffectCancel    EffectKind = "cancel"
	EffectFinish    EffectKind = "finish"
	EffectReply     EffectKind = "reply"
	// EffectDeltaOnly marks a transition whose emitted events already
	// carry the whole change, so no game:state-update follows.
	EffectDeltaOnly EffectKind = "delta-only"
)

// Effect is an instruction for the room actor. Only the fields relevant
// to Kind are set.
type Effect struct {
	Kind EffectKind

	// emit, reply
	Event    string
	Data     any
	To       string // single player; empty means the whole room
	HostOnly bool

	// award, eliminate, count
	PlayerID string
	Delta    int
	Counter  string

	// schedule, cancel
	Timer string
	After time.Duration
}

func emit(event string, data any) Effect {
	return Effect{Kind: EffectEmit, Event: event, Data: data}
}

func emitTo(playerID, event string, data any) Effect {
	return Effect{Kind: EffectEmit, Event: event, Data: data, To: playerID}
}

func emitHost(event string, data any) Effect {
	return Effect{Kind: EffectEmit, Event: event, Data: data, HostOnly: true}
}

func award(playerID string, delta int) Effect {
	return Effect{Kind: EffectAward, PlayerID: playerID, Delta: delta}
}

func eliminate(playerID string) Effect {
	return Effect{Kind: EffectEliminate, PlayerID: playerID}
}

func count(playerID, counter string, delta int) Effect {
	return Effect{Kind: EffectCount, PlayerID: playerID, Counter: counter, Delta: delta}
}

func schedule(timer string, after time.Duration) Effect {
	return Effect{Kind: EffectSchedule, Timer: timer, After: after}
}

func cancel(timer string) Effect {
	return Effect{Kind: EffectCancel, Timer: timer}
}

func finish() Effect {
	return Effect{Kind: EffectFinish}
}

// reply carries data back to whoever sent the action, in its ack.
func reply(data any) Effect {
	return Effect{Kind: EffectReply, Data: data}
}

func deltaOnly() Effect {
	return Effect{Kind: EffectDeltaOnly}
}

// ContainsEffect reports whether effects has one of kind, optionally
// narrowed to an event name.
func ContainsEffect(effects []Effect, kind EffectKind, event string) bool {
	for _, e := range effects {
		if e.Kind == kind && (event == "" || e.Event == event) {
			return true
		}
	}
	return false
}

// Timer names games schedule.
const (
	TimerAnswer = "answer"
	TimerRound  = "round"
	TimerTurn   = "turn"
)
