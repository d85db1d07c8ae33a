package engine

import (
	"math"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/DoyleJ11/classroom-games-backend/internal/apperr"
	"github.com/DoyleJ11/classroom-games-backend/internal/arbiter"
	"github.com/DoyleJ11/classroom-games-backend/internal/textnorm"
	"github.com/DoyleJ11/classroom-games-backend/pkg/protocol"
)

// Draw and guess: one drawer per round sketches a secret word while the
// others guess. The stroke history is kept so a late joiner can redraw
// the canvas.
const (
	PhaseDrawing  Phase = "drawing"
	PhaseRoundEnd Phase = "roundEnd"
)

const (
	maxStrokePoints = 500
	maxCanvasOps    = 5000
	maxGuessLog     = 200
	drawerBonus     = 25
)

func init() {
	register(GameDrawGuess, Rules{
		Family: FamilySharedCanvas,
		Start:  startDrawGuess,
		Host:   drawHost,
		Player: drawPlayer,
		Tick:   drawTick,
	})
}

// drawOp is one entry in a canvas history: a stroke or a clear.
type drawOp struct {
	Kind   string       `json:"kind"`
	Points [][2]float64 `json:"points,omitempty"`
	Color  string       `json:"color,omitempty"`
	Width  float64      `json:"width,omitempty"`
}

func validateStroke(op drawOp) error {
	if len(op.Points) == 0 || len(op.Points) > maxStrokePoints {
		return apperr.Invalid("stroke needs 1-%d points", maxStrokePoints)
	}
	for _, p := range op.Points {
		for _, c := range p {
			if math.IsNaN(c) || c < 0 || c > 1 {
				return apperr.Invalid("stroke coordinates must be normalised to 0..1")
			}
		}
	}
	if op.Width < 0 || op.Width > 100 {
		return apperr.Invalid("stroke width out of range")
	}
	if len(op.Color) > 32 {
		return apperr.Invalid("color too long")
	}
	return nil
}

func cloneOps(ops []drawOp) []drawOp {
	out := make([]drawOp, len(ops))
	for i, op := range ops {
		op.Points = slices.Clone(op.Points)
		out[i] = op
	}
	return out
}

type drawConfig struct {
	baseConfig
	Words  []string `json:"words"`
	Rounds int      `json:"rounds"`
	Points int      `json:"points"`
}

type guessEntry struct {
	PlayerID string `json:"playerId"`
	Text     string `json:"text"`
}

type drawState struct {
	Words     []string
	Rounds    int
	Points    int
	Drawer    string
	Ops       []drawOp
	Guessed   []string
	Log       []guessEntry
	StartedAt time.Time
	Timer     time.Duration
}

func (st *drawState) Clone() Payload {
	c := *st
	c.Words = slices.Clone(st.Words)
	c.Ops = cloneOps(st.Ops)
	c.Guessed = slices.Clone(st.Guessed)
	c.Log = slices.Clone(st.Log)
	return &c
}

func (st *drawState) word(round int) string {
	return st.Words[round%len(st.Words)]
}

type drawView struct {
	Drawer     string       `json:"drawerId"`
	Word       string       `json:"word,omitempty"`
	Hint       string       `json:"hint"`
	Rounds     int          `json:"rounds"`
	Ops        []drawOp     `json:"ops"`
	Guessed    []string     `json:"guessedIds"`
	Log        []guessEntry `json:"guesses"`
	DeadlineMs int64        `json:"deadlineMs"`
}

func (st *drawState) View(phase Phase, round int, v Viewer) any {
	word := st.word(round)
	view := drawView{
		Drawer:     st.Drawer,
		Hint:       maskWord(word),
		Rounds:     st.Rounds,
		Ops:        cloneOps(st.Ops),
		Guessed:    append([]string{}, st.Guessed...),
		Log:        append([]guessEntry{}, st.Log...),
		DeadlineMs: st.StartedAt.Add(st.Timer).UnixMilli(),
	}
	if v.Host || v.PlayerID == st.Drawer || phase != PhaseDrawing || slices.Contains(st.Guessed, v.PlayerID) {
		view.Word = word
	}
	return view
}

// maskWord keeps spaces and hides letters: "ice cream" -> "___ _____".
func maskWord(w string) string {
	var b strings.Builder
	for _, r := range w {
		if r == ' ' {
			b.WriteRune(' ')
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func startDrawGuess(raw []byte, env Env) (State, []Effect, error) {
	cfg, err := decode[drawConfig](raw)
	if err != nil {
		return State{}, nil, err
	}
	if err := cfg.validate(); err != nil {
		return State{}, nil, err
	}
	var words []string
	for _, w := range cfg.Words {
		if w = textnorm.Clean(w); w != "" && utf8.RuneCountInString(w) <= 40 {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return State{}, nil, apperr.Invalid("at least one word is required")
	}
	rounds := cfg.Rounds
	if rounds <= 0 {
		rounds = max(1, len(env.Active()))
	}
	if cfg.Points <= 0 {
		cfg.Points = defaultBuzzPoints
	}
	r := env.rng()
	r.Shuffle(len(words), func(i, j int) { words[i], words[j] = words[j], words[i] })

	drawer, ok := arbiter.NextTurn(playerIDs(env), "", env.isActive)
	if !ok {
		return State{}, nil, apperr.Phase("no players to draw")
	}
	st := &drawState{
		Words:  words,
		Rounds: rounds,
		Points: cfg.Points,
		Timer:  cfg.timer(env.Settings.DrawTimer),
	}
	s := State{Game: GameDrawGuess, Phase: PhaseDrawing, Payload: st}
	return s, st.beginRound(s, env, drawer), nil
}

func (st *drawState) beginRound(s State, env Env, drawer string) []Effect {
	st.Drawer = drawer
	st.Ops, st.Guessed, st.Log = nil, nil, nil
	st.StartedAt = env.Now
	word := st.word(s.Round)
	return []Effect{
		schedule(TimerRound, st.Timer),
		emit(protocol.GameRoundStarted, map[string]any{
			"roundIndex": s.Round,
			"rounds":     st.Rounds,
			"drawerId":   drawer,
			"hint":       maskWord(word),
			"deadlineMs": env.Now.Add(st.Timer).UnixMilli(),
		}),
		emitTo(drawer, protocol.GameSecretWord, map[string]any{"word": word}),
	}
}

func (st *drawState) endRound(s State, reason string) (State, []Effect) {
	s.Phase = PhaseRoundEnd
	return s, []Effect{
		cancel(TimerRound),
		emit(protocol.GameReveal, map[string]any{
			"word":       st.word(s.Round),
			"guessedIds": append([]string{}, st.Guessed...),
			"reason":     reason,
		}),
	}
}

func drawHost(s State, a Action, env Env) (State, []Effect, error) {
	st := s.Payload.(*drawState)
	switch a.Name {
	case "end-round":
		if err := expectPhase(s, PhaseDrawing); err != nil {
			return s, nil, err
		}
		s, effects := st.endRound(s, "host")
		return s, effects, nil

	case "next-round":
		if err := expectPhase(s, PhaseRoundEnd); err != nil {
			return s, nil, err
		}
		if s.Round+1 >= st.Rounds {
			s, effects := finishGame(s, nil)
			return s, effects, nil
		}
		next, ok := arbiter.NextTurn(playerIDs(env), st.Drawer, env.isActive)
		if !ok {
			s, effects := finishGame(s, nil)
			return s, effects, nil
		}
		s.Round++
		s.Phase = PhaseDrawing
		return s, st.beginRound(s, env, next), nil
	}
	return s, nil, unknownAction(s, a.Name)
}

func drawPlayer(s State, a Action, env Env) (State, []Effect, error) {
	st := s.Payload.(*drawState)
	if err := expectPhase(s, PhaseDrawing); err != nil {
		return s, nil, err
	}
	switch a.Name {
	case "stroke", "clear", "undo":
		if a.PlayerID != st.Drawer {
			return s, nil, apperr.Phase("only the drawer can draw")
		}
		return st.canvas(s, a)
	case "guess":
		return st.guess(s, a, env)
	}
	return s, nil, unknownAction(s, a.Name)
}

func (st *drawState) canvas(s State, a Action) (State, []Effect, error) {
	if len(st.Ops) >= maxCanvasOps {
		return s, nil, apperr.Invalid("canvas is full, clear it first")
	}
	switch a.Name {
	case "stroke":
		op, err := decode[drawOp](a.Data)
		if err != nil {
			return s, nil, err
		}
		op.Kind = "stroke"
		if err := validateStroke(op); err != nil {
			return s, nil, err
		}
		st.Ops = append(st.Ops, op)
		return s, []Effect{emit(protocol.GameStroke, op), deltaOnly()}, nil

	case "clear":
		st.Ops = append(st.Ops, drawOp{Kind: "clear"})
		return s, []Effect{emit(protocol.GameCanvasCleared, nil), deltaOnly()}, nil

	default: // undo
		n := len(st.Ops)
		if n == 0 || st.Ops[n-1].Kind != "stroke" {
			return s, nil, apperr.Invalid("nothing to undo")
		}
		st.Ops = st.Ops[:n-1]
		return s, []Effect{emit(protocol.GameStrokeUndone, nil), deltaOnly()}, nil
	}
}

func (st *drawState) guess(s State, a Action, env Env) (State, []Effect, error) {
	if a.PlayerID == st.Drawer {
		return s, nil, apperr.Phase("the drawer cannot guess")
	}
	if err := requireActive(env, a.PlayerID); err != nil {
		return s, nil, err
	}
	if slices.Contains(st.Guessed, a.PlayerID) {
		return s, nil, apperr.Phase("already guessed")
	}
	d, err := decode[textData](a.Data)
	if err != nil {
		return s, nil, err
	}
	text := textnorm.Clean(d.Text)
	if text == "" || utf8.RuneCountInString(text) > 60 {
		return s, nil, apperr.Invalid("guess must be 1-60 characters")
	}

	if textnorm.Letters(text) != textnorm.Letters(st.word(s.Round)) {
		if len(st.Log) < maxGuessLog {
			st.Log = append(st.Log, guessEntry{PlayerID: a.PlayerID, Text: text})
		}
		return s, []Effect{emit(protocol.GameGuessResult, map[string]any{
			"playerId": a.PlayerID,
			"correct":  false,
			"text":     text,
		})}, nil
	}

	order := len(st.Guessed)
	pts := max(st.Points/2, st.Points-order*st.Points/10)
	st.Guessed = append(st.Guessed, a.PlayerID)
	effects := []Effect{
		award(a.PlayerID, pts),
		award(st.Drawer, drawerBonus),
		count(a.PlayerID, "correct", 1),
		emit(protocol.GameGuessResult, map[string]any{
			"playerId": a.PlayerID,
			"correct":  true,
			"points":   pts,
			"order":    order + 1,
		}),
	}
	if st.everyoneGuessed(env) {
		s, more := st.endRound(s, "all-guessed")
		return s, append(effects, more...), nil
	}
	return s, effects, nil
}

func (st *drawState) everyoneGuessed(env Env) bool {
	guessers := 0
	for _, p := range env.Active() {
		if p.ID == st.Drawer {
			continue
		}
		guessers++
		if !slices.Contains(st.Guessed, p.ID) {
			return false
		}
	}
	return guessers > 0
}

func drawTick(s State, a Action, env Env) (State, []Effect, error) {
	st := s.Payload.(*drawState)
	switch a.Name {
	case TimerRound:
		if err := expectPhase(s, PhaseDrawing); err != nil {
			return s, nil, err
		}
		s, effects := st.endRound(s, "timeout")
		return s, effects, nil
	case TimerRoster:
		if s.Phase != PhaseDrawing {
			return s, nil, apperr.Phase("nothing to update")
		}
		if !env.onRoster(st.Drawer) {
			s, effects := st.endRound(s, "drawer-left")
			return s, effects, nil
		}
		if st.everyoneGuessed(env) {
			s, effects := st.endRound(s, "all-guessed")
			return s, effects, nil
		}
		return s, nil, apperr.Phase("nothing to update")
	}
	return s, nil, unknownAction(s, a.Name)
}
