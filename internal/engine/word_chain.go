package engine

import (
	"time"
	"unicode/utf8"

	"github.com/DoyleJ11/classroom-games-backend/internal/apperr"
	"github.com/DoyleJ11/classroom-games-backend/internal/arbiter"
	"github.com/DoyleJ11/classroom-games-backend/internal/textnorm"
	"github.com/DoyleJ11/classroom-games-backend/pkg/protocol"
)

// Word chain relay: players take turns adding a word that starts with the
// last letter of the previous one. Only the turn holder may add a word.
const (
	PhaseWaiting Phase = "waiting"
	PhasePlaying Phase = "playing"
)

const (
	defaultChainMaxWords  = 30
	defaultChainLetterPts = 10
	maxChainWordLen       = 30
)

func init() {
	register(GameWordChain, Rules{
		Family: FamilySharedCanvas,
		Start:  startWordChain,
		Host:   chainHost,
		Player: chainPlayer,
		Tick:   chainTick,
	})
}

type chainConfig struct {
	baseConfig
	StartWord       string `json:"startWord"`
	MaxWords        int    `json:"maxWords"`
	PointsPerLetter int    `json:"pointsPerLetter"`
	Strict          bool   `json:"strict"`
}

type chainLink struct {
	PlayerID string `json:"playerId,omitempty"`
	Word     string `json:"word"`
}

type chainState struct {
	Links     []chainLink
	Turn      string
	TurnSince time.Time
	Timer     time.Duration
	MaxWords  int
	LetterPts int
	Strict    bool
}

func (st *chainState) Clone() Payload {
	c := *st
	c.Links = append([]chainLink(nil), st.Links...)
	return &c
}

type chainView struct {
	Links      []chainLink `json:"links"`
	Turn       string      `json:"turnPlayerId,omitempty"`
	NextLetter string      `json:"nextLetter,omitempty"`
	DeadlineMs int64       `json:"deadlineMs,omitempty"`
	MaxWords   int         `json:"maxWords"`
}

func (st *chainState) View(phase Phase, _ int, _ Viewer) any {
	v := chainView{
		Links:      append([]chainLink{}, st.Links...),
		Turn:       st.Turn,
		NextLetter: st.nextLetter(),
		MaxWords:   st.MaxWords,
	}
	if phase == PhasePlaying && st.Turn != "" {
		v.DeadlineMs = st.TurnSince.Add(st.Timer).UnixMilli()
	}
	return v
}

func (st *chainState) nextLetter() string {
	if len(st.Links) == 0 {
		return ""
	}
	w := st.Links[len(st.Links)-1].Word
	r, _ := utf8.DecodeLastRuneInString(w)
	return string(r)
}

func (st *chainState) used(word string) bool {
	for _, l := range st.Links {
		if l.Word == word {
			return true
		}
	}
	return false
}

func startWordChain(raw []byte, env Env) (State, []Effect, error) {
	cfg, err := decode[chainConfig](raw)
	if err != nil {
		return State{}, nil, err
	}
	if err := cfg.validate(); err != nil {
		return State{}, nil, err
	}
	if cfg.MaxWords <= 0 {
		cfg.MaxWords = defaultChainMaxWords
	}
	if cfg.PointsPerLetter <= 0 {
		cfg.PointsPerLetter = defaultChainLetterPts
	}
	st := &chainState{
		Timer:     cfg.timer(env.Settings.RelayTurnTimer),
		MaxWords:  cfg.MaxWords,
		LetterPts: cfg.PointsPerLetter,
		Strict:    cfg.Strict,
	}
	if cfg.StartWord != "" {
		w := textnorm.Letters(cfg.StartWord)
		if w == "" {
			return State{}, nil, apperr.Invalid("startWord must contain letters")
		}
		st.Links = append(st.Links, chainLink{Word: w})
	}
	return State{Game: GameWordChain, Phase: PhaseWaiting, Payload: st}, nil, nil
}

func chainHost(s State, a Action, env Env) (State, []Effect, error) {
	st := s.Payload.(*chainState)
	switch a.Name {
	case "start":
		if err := expectPhase(s, PhaseWaiting); err != nil {
			return s, nil, err
		}
		s.Phase = PhasePlaying
		s, effects := st.passTurn(s, env, "", "start")
		return s, effects, nil

	case "skip":
		if err := expectPhase(s, PhasePlaying); err != nil {
			return s, nil, err
		}
		s, effects := st.passTurn(s, env, st.Turn, "skipped")
		return s, effects, nil

	case "end":
		if err := expectPhase(s, PhaseWaiting, PhasePlaying); err != nil {
			return s, nil, err
		}
		s, effects := finishGame(s, nil)
		return s, effects, nil
	}
	return s, nil, unknownAction(s, a.Name)
}

type wordData struct {
	Word string `json:"word"`
}

func chainPlayer(s State, a Action, env Env) (State, []Effect, error) {
	st := s.Payload.(*chainState)
	if a.Name != "submit" {
		return s, nil, unknownAction(s, a.Name)
	}
	if err := expectPhase(s, PhasePlaying); err != nil {
		return s, nil, err
	}
	if a.PlayerID != st.Turn {
		return s, nil, apperr.Phase("not your turn")
	}
	d, err := decode[wordData](a.Data)
	if err != nil {
		return s, nil, err
	}
	word := textnorm.Letters(d.Word)
	n := utf8.RuneCountInString(word)
	if n < 2 || n > maxChainWordLen {
		return s, nil, apperr.Invalid("word must be 2-%d letters", maxChainWordLen)
	}
	if next := st.nextLetter(); next != "" {
		first, _ := utf8.DecodeRuneInString(word)
		if string(first) != next {
			return s, nil, apperr.Invalid("word must start with %q", next)
		}
	}
	if st.used(word) {
		return s, nil, apperr.Invalid("%q was already used", word)
	}
	if st.Strict && !inDictionary(word, nil) {
		return s, nil, apperr.Invalid("%q is not in the dictionary", word)
	}

	pts := n * st.LetterPts
	st.Links = append(st.Links, chainLink{PlayerID: a.PlayerID, Word: word})
	effects := []Effect{
		award(a.PlayerID, pts),
		count(a.PlayerID, "words", 1),
		emit(protocol.GameWordAdded, map[string]any{"playerId": a.PlayerID, "word": word, "points": pts}),
	}
	if len(st.Links) >= st.MaxWords {
		s, effects = finishGame(s, effects)
		return s, effects, nil
	}
	s, more := st.passTurn(s, env, a.PlayerID, "played")
	return s, append(effects, more...), nil
}

func chainTick(s State, a Action, env Env) (State, []Effect, error) {
	st := s.Payload.(*chainState)
	switch a.Name {
	case TimerTurn:
		if err := expectPhase(s, PhasePlaying); err != nil {
			return s, nil, err
		}
		s, effects := st.passTurn(s, env, st.Turn, "timeout")
		return s, effects, nil
	case TimerRoster:
		if s.Phase != PhasePlaying || env.onRoster(st.Turn) {
			return s, nil, apperr.Phase("nothing to update")
		}
		s, effects := st.passTurn(s, env, st.Turn, "left")
		return s, effects, nil
	}
	return s, nil, unknownAction(s, a.Name)
}

// passTurn hands the turn to the next active player after from. With
// nobody left to play the game ends.
func (st *chainState) passTurn(s State, env Env, from, reason string) (State, []Effect) {
	next, ok := arbiter.NextTurn(playerIDs(env), from, env.isActive)
	if !ok {
		st.Turn = ""
		return finishGame(s, nil)
	}
	st.Turn = next
	st.TurnSince = env.Now
	return s, []Effect{
		schedule(TimerTurn, st.Timer),
		emit(protocol.GameTurnChanged, map[string]any{
			"playerId":   next,
			"previousId": from,
			"reason":     reason,
			"nextLetter": st.nextLetter(),
			"deadlineMs": env.Now.Add(st.Timer).UnixMilli(),
		}),
	}
}

// playerIDs lists every roster id in join order, so turn order survives
// players dropping in and out.
func playerIDs(env Env) []string {
	ids := make([]string, len(env.Players))
	for i, p := range env.Players {
		ids[i] = p.ID
	}
	return ids
}
