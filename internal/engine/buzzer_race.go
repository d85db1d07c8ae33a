package engine

import (
	"time"

	"github.com/DoyleJ11/classroom-games-backend/internal/apperr"
	"github.com/DoyleJ11/classroom-games-backend/internal/arbiter"
	"github.com/DoyleJ11/classroom-games-backend/internal/textnorm"
	"github.com/DoyleJ11/classroom-games-backend/pkg/protocol"
)

// Buzzer race: the host reveals a prompt, opens the buzzers, picks a
// player from the queue and rules on the answer.
const (
	PhaseRevealing  Phase = "revealing"
	PhaseBuzzerOpen Phase = "buzzerOpen"
	PhaseAnswering  Phase = "answering"
	PhaseValidated  Phase = "validated"
)

const defaultBuzzPoints = 100

func init() {
	for id, mode := range map[GameID]arbiter.Mode{
		GameImageGuess:   arbiter.ClearSelected,
		GameWhatsMissing: arbiter.ClearSelected,
		GameEmojiRiddle:  arbiter.ClearAll,
	} {
		register(id, Rules{
			Family: FamilyBuzzerRace,
			Start:  startBuzzerRace(id, mode),
			Host:   buzzerHost,
			Player: buzzerPlayer,
			Tick:   buzzerTick,
		})
	}
}

type buzzItem struct {
	Prompt string `json:"prompt"`
	Media  string `json:"media,omitempty"`
	Answer string `json:"answer,omitempty"`
	Points int    `json:"points,omitempty"`
}

type buzzerConfig struct {
	baseConfig
	Items        []buzzItem `json:"items"`
	Points       int        `json:"points"`
	WrongPenalty int        `json:"wrongPenalty"`
}

type buzzerState struct {
	Mode          arbiter.Mode
	Items         []buzzItem
	Queue         arbiter.Queue
	Points        int
	Penalty       int
	AnswerTimeout time.Duration
	Cooldown      time.Duration
	Typed         string
	Winner        string
	AnswerShown   bool
}

func (st *buzzerState) Clone() Payload {
	c := *st
	c.Items = append([]buzzItem(nil), st.Items...)
	c.Queue = st.Queue.Clone()
	return &c
}

type buzzerView struct {
	Prompt      string           `json:"prompt"`
	Media       string           `json:"media,omitempty"`
	Answer      string           `json:"answer,omitempty"`
	Rounds      int              `json:"rounds"`
	Queue       []string         `json:"queue"`
	Active      string           `json:"activePlayerId,omitempty"`
	Cooldowns   map[string]int64 `json:"cooldownUntilMs,omitempty"`
	Winner      string           `json:"winnerId,omitempty"`
	TypedAnswer string           `json:"typedAnswer,omitempty"`
}

func (st *buzzerState) View(_ Phase, round int, v Viewer) any {
	item := st.Items[round]
	view := buzzerView{
		Prompt: item.Prompt,
		Media:  item.Media,
		Rounds: len(st.Items),
		Queue:  append([]string{}, st.Queue.Order...),
		Active: st.Queue.Active,
		Winner: st.Winner,
	}
	if v.Host || st.AnswerShown {
		view.Answer = item.Answer
	}
	if v.Host || v.PlayerID == st.Queue.Active {
		view.TypedAnswer = st.Typed
	}
	if len(st.Queue.Cooldowns) > 0 {
		view.Cooldowns = make(map[string]int64, len(st.Queue.Cooldowns))
		for id, until := range st.Queue.Cooldowns {
			view.Cooldowns[id] = until.UnixMilli()
		}
	}
	return view
}

func startBuzzerRace(id GameID, mode arbiter.Mode) func([]byte, Env) (State, []Effect, error) {
	return func(raw []byte, env Env) (State, []Effect, error) {
		cfg, err := decode[buzzerConfig](raw)
		if err != nil {
			return State{}, nil, err
		}
		if err := cfg.validate(); err != nil {
			return State{}, nil, err
		}
		if len(cfg.Items) == 0 {
			return State{}, nil, apperr.Invalid("at least one item is required")
		}
		for i, it := range cfg.Items {
			if it.Prompt == "" && it.Media == "" {
				return State{}, nil, apperr.Invalid("item %d needs a prompt or media", i)
			}
			if it.Points < 0 {
				return State{}, nil, apperr.Invalid("item %d has negative points", i)
			}
		}
		if cfg.Points <= 0 {
			cfg.Points = defaultBuzzPoints
		}
		if cfg.WrongPenalty < 0 {
			return State{}, nil, apperr.Invalid("wrongPenalty must not be negative")
		}
		st := &buzzerState{
			Mode:          mode,
			Items:         cfg.Items,
			Points:        cfg.Points,
			Penalty:       cfg.WrongPenalty,
			AnswerTimeout: cfg.timer(env.Settings.AnswerTimeout),
			Cooldown:      env.Settings.BuzzCooldown,
		}
		s := State{Game: id, Phase: PhaseRevealing, Payload: st}
		return s, []Effect{emit(protocol.GameRoundStarted, roundStarted{Round: 0, Rounds: len(st.Items)})}, nil
	}
}

type roundStarted struct {
	Round  int `json:"roundIndex"`
	Rounds int `json:"rounds"`
}

type selectData struct {
	PlayerID string `json:"playerId"`
}

type validateData struct {
	Correct bool `json:"correct"`
}

type textData struct {
	Text string `json:"text"`
}

func buzzerHost(s State, a Action, env Env) (State, []Effect, error) {
	st := s.Payload.(*buzzerState)
	switch a.Name {
	case "open-buzzer":
		if err := expectPhase(s, PhaseRevealing); err != nil {
			return s, nil, err
		}
		s.Phase = PhaseBuzzerOpen
		return s, []Effect{emit(protocol.GameBuzzerOpen, roundStarted{Round: s.Round, Rounds: len(st.Items)})}, nil

	case "select":
		if err := expectPhase(s, PhaseBuzzerOpen); err != nil {
			return s, nil, err
		}
		d, err := decode[selectData](a.Data)
		if err != nil {
			return s, nil, err
		}
		if err := requireActive(env, d.PlayerID); err != nil {
			return s, nil, err
		}
		if err := st.Queue.Select(d.PlayerID, st.Mode); err != nil {
			return s, nil, err
		}
		st.Typed = ""
		s.Phase = PhaseAnswering
		return s, []Effect{
			schedule(TimerAnswer, st.AnswerTimeout),
			emit(protocol.GamePlayerSelected, map[string]any{
				"playerId":  d.PlayerID,
				"queue":     append([]string{}, st.Queue.Order...),
				"timeoutMs": st.AnswerTimeout.Milliseconds(),
			}),
		}, nil

	case "validate":
		if err := expectPhase(s, PhaseAnswering); err != nil {
			return s, nil, err
		}
		d, err := decode[validateData](a.Data)
		if err != nil {
			return s, nil, err
		}
		reason := "wrong"
		if d.Correct {
			reason = "correct"
		}
		s, effects := st.resolve(s, env, d.Correct, reason)
		return s, effects, nil

	case "reveal":
		if err := expectPhase(s, PhaseRevealing, PhaseBuzzerOpen, PhaseAnswering); err != nil {
			return s, nil, err
		}
		st.Queue.Reset()
		st.AnswerShown = true
		s.Phase = PhaseValidated
		return s, []Effect{
			cancel(TimerAnswer),
			emit(protocol.GameReveal, map[string]any{"answer": st.Items[s.Round].Answer}),
		}, nil

	case "next-round":
		if err := expectPhase(s, PhaseValidated); err != nil {
			return s, nil, err
		}
		if s.Round+1 >= len(st.Items) {
			s, effects := finishGame(s, nil)
			return s, effects, nil
		}
		s.Round++
		s.Phase = PhaseRevealing
		st.Queue.Reset()
		st.Typed, st.Winner, st.AnswerShown = "", "", false
		return s, []Effect{emit(protocol.GameRoundStarted, roundStarted{Round: s.Round, Rounds: len(st.Items)})}, nil
	}
	return s, nil, unknownAction(s, a.Name)
}

func buzzerPlayer(s State, a Action, env Env) (State, []Effect, error) {
	st := s.Payload.(*buzzerState)
	switch a.Name {
	case "buzz":
		if err := expectPhase(s, PhaseBuzzerOpen, PhaseAnswering); err != nil {
			return s, nil, err
		}
		if err := requireActive(env, a.PlayerID); err != nil {
			return s, nil, err
		}
		before := len(st.Queue.Order)
		pos, err := st.Queue.Buzz(a.PlayerID, env.Now)
		if err != nil {
			return s, nil, err
		}
		ack := reply(map[string]any{"position": pos})
		if len(st.Queue.Order) == before {
			// Already queued: nothing to broadcast.
			return s, []Effect{ack}, nil
		}
		return s, []Effect{ack, emit(protocol.GamePlayerBuzzed, map[string]any{
			"playerId": a.PlayerID,
			"position": pos,
			"queue":    append([]string{}, st.Queue.Order...),
		})}, nil

	case "answer":
		if err := expectPhase(s, PhaseAnswering); err != nil {
			return s, nil, err
		}
		if a.PlayerID != st.Queue.Active {
			return s, nil, apperr.Phase("not the active answerer")
		}
		d, err := decode[textData](a.Data)
		if err != nil {
			return s, nil, err
		}
		text := textnorm.Clean(d.Text)
		if text == "" || len(text) > 200 {
			return s, nil, apperr.Invalid("answer must be 1-200 characters")
		}
		st.Typed = text
		expected := st.Items[s.Round].Answer
		if expected == "" {
			// Host rules on it.
			return s, []Effect{emitHost(protocol.GameAnswerReceived, map[string]any{"playerId": a.PlayerID, "text": text})}, nil
		}
		correct := textnorm.Fold(text) == textnorm.Fold(expected)
		reason := "wrong"
		if correct {
			reason = "correct"
		}
		s, effects := st.resolve(s, env, correct, reason)
		return s, effects, nil
	}
	return s, nil, unknownAction(s, a.Name)
}

func buzzerTick(s State, a Action, env Env) (State, []Effect, error) {
	st := s.Payload.(*buzzerState)
	switch a.Name {
	case TimerAnswer:
		if err := expectPhase(s, PhaseAnswering); err != nil {
			return s, nil, err
		}
		id := st.Queue.Active
		s, effects := st.resolve(s, env, false, "timeout")
		return s, append(effects, emit(protocol.GameAnswerTimeout, map[string]any{"playerId": id})), nil

	case TimerRoster:
		// A disconnected player keeps their place; the answer timer covers
		// an answerer who does not come back in time.
		changed := false
		for _, id := range append([]string{}, st.Queue.Order...) {
			if !env.onRoster(id) {
				st.Queue.Remove(id)
				changed = true
			}
		}
		var effects []Effect
		if active := st.Queue.Active; active != "" && !env.onRoster(active) {
			st.Queue.Remove(active)
			st.Typed = ""
			s.Phase = PhaseBuzzerOpen
			effects = append(effects, cancel(TimerAnswer))
			changed = true
		}
		if !changed {
			return s, nil, apperr.Phase("nothing to update")
		}
		return s, effects, nil
	}
	return s, nil, unknownAction(s, a.Name)
}

// resolve closes the active answer. A correct answer ends the round; a
// wrong one penalises the answerer and reopens the buzzers with the rest
// of the queue intact.
func (st *buzzerState) resolve(s State, env Env, correct bool, reason string) (State, []Effect) {
	item := st.Items[s.Round]
	id, _ := st.Queue.Resolve(correct, env.Now, st.Cooldown)
	effects := []Effect{cancel(TimerAnswer)}

	if correct {
		pts := item.Points
		if pts == 0 {
			pts = st.Points
		}
		st.Queue.Reset()
		st.Winner = id
		st.AnswerShown = true
		s.Phase = PhaseValidated
		return s, append(effects,
			award(id, pts),
			count(id, "correct", 1),
			emit(protocol.GameGuessResult, map[string]any{
				"playerId": id,
				"correct":  true,
				"points":   pts,
				"answer":   item.Answer,
			}),
		)
	}

	s.Phase = PhaseBuzzerOpen
	result := map[string]any{
		"playerId": id,
		"correct":  false,
		"reason":   reason,
		"queue":    append([]string{}, st.Queue.Order...),
	}
	if until, ok := st.Queue.Cooldowns[id]; ok {
		result["cooldownUntilMs"] = until.UnixMilli()
	}
	if reason == "wrong" && st.Penalty > 0 {
		effects = append(effects, award(id, -st.Penalty))
		result["points"] = -st.Penalty
	}
	return s, append(effects, emit(protocol.GameGuessResult, result))
}
