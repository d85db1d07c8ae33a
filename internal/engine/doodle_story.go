package engine

import (
	"slices"
	"time"
	"unicode/utf8"

	"github.com/DoyleJ11/classroom-games-backend/internal/apperr"
	"github.com/DoyleJ11/classroom-games-backend/internal/arbiter"
	"github.com/DoyleJ11/classroom-games-backend/internal/textnorm"
	"github.com/DoyleJ11/classroom-games-backend/pkg/protocol"
)

// Doodle story: players add one captioned panel each, in turn, continuing
// the story from the panel before. The host screen shows every panel;
// players only see the one they are continuing until the story is shown.
const PhasePresenting Phase = "presenting"

const (
	panelPoints     = 50
	maxCaptionLen   = 140
	maxPanelStrokes = 400
)

func init() {
	register(GameDoodleStory, Rules{
		Family: FamilySharedCanvas,
		Start:  startDoodleStory,
		Host:   storyHost,
		Player: storyPlayer,
		Tick:   storyTick,
	})
}

type storyConfig struct {
	baseConfig
	Prompt    string `json:"prompt"`
	MaxPanels int    `json:"maxPanels"`
}

type panel struct {
	PlayerID string   `json:"playerId"`
	Caption  string   `json:"caption,omitempty"`
	Strokes  []drawOp `json:"strokes,omitempty"`
}

type storyState struct {
	Prompt    string
	Panels    []panel
	Author    string
	Done      []string
	MaxPanels int
	TurnSince time.Time
	Timer     time.Duration
}

func (st *storyState) Clone() Payload {
	c := *st
	c.Panels = make([]panel, len(st.Panels))
	for i, p := range st.Panels {
		p.Strokes = cloneOps(p.Strokes)
		c.Panels[i] = p
	}
	c.Done = slices.Clone(st.Done)
	return &c
}

type storyView struct {
	Prompt     string  `json:"prompt"`
	Author     string  `json:"authorId,omitempty"`
	Panels     []panel `json:"panels"`
	PanelCount int     `json:"panelCount"`
	MaxPanels  int     `json:"maxPanels"`
	DeadlineMs int64   `json:"deadlineMs,omitempty"`
}

func (st *storyState) View(phase Phase, _ int, v Viewer) any {
	view := storyView{
		Prompt:     st.Prompt,
		Author:     st.Author,
		PanelCount: len(st.Panels),
		MaxPanels:  st.MaxPanels,
		Panels:     []panel{},
	}
	switch {
	case v.Host || phase != PhaseDrawing:
		for _, p := range st.Panels {
			p.Strokes = cloneOps(p.Strokes)
			view.Panels = append(view.Panels, p)
		}
	case len(st.Panels) > 0:
		last := st.Panels[len(st.Panels)-1]
		last.Strokes = cloneOps(last.Strokes)
		view.Panels = append(view.Panels, last)
	}
	if phase == PhaseDrawing {
		view.DeadlineMs = st.TurnSince.Add(st.Timer).UnixMilli()
	}
	return view
}

func startDoodleStory(raw []byte, env Env) (State, []Effect, error) {
	cfg, err := decode[storyConfig](raw)
	if err != nil {
		return State{}, nil, err
	}
	if err := cfg.validate(); err != nil {
		return State{}, nil, err
	}
	prompt := textnorm.Clean(cfg.Prompt)
	if prompt == "" || utf8.RuneCountInString(prompt) > 280 {
		return State{}, nil, apperr.Invalid("prompt must be 1-280 characters")
	}
	if cfg.MaxPanels <= 0 {
		cfg.MaxPanels = max(1, len(env.Active()))
	}
	st := &storyState{
		Prompt:    prompt,
		MaxPanels: cfg.MaxPanels,
		Timer:     cfg.timer(env.Settings.StoryTurnTimer),
	}
	s := State{Game: GameDoodleStory, Phase: PhaseDrawing, Payload: st}
	s, effects := st.advance(s, env, "start")
	return s, effects, nil
}

// advance hands the pen to the next active player who has not drawn yet,
// or moves to the presentation once nobody is left or the story is long
// enough.
func (st *storyState) advance(s State, env Env, reason string) (State, []Effect) {
	if st.Author != "" && !slices.Contains(st.Done, st.Author) {
		st.Done = append(st.Done, st.Author)
	}
	prev := st.Author
	next, ok := arbiter.NextTurn(playerIDs(env), prev, func(id string) bool {
		return env.isActive(id) && !slices.Contains(st.Done, id)
	})
	if !ok || len(st.Panels) >= st.MaxPanels {
		st.Author = ""
		s.Phase = PhasePresenting
		return s, []Effect{
			cancel(TimerTurn),
			emit(protocol.GameReveal, map[string]any{"panels": len(st.Panels)}),
		}
	}
	st.Author = next
	st.TurnSince = env.Now
	return s, []Effect{
		schedule(TimerTurn, st.Timer),
		emit(protocol.GameTurnChanged, map[string]any{
			"playerId":   next,
			"previousId": prev,
			"reason":     reason,
			"deadlineMs": env.Now.Add(st.Timer).UnixMilli(),
		}),
	}
}

func storyHost(s State, a Action, env Env) (State, []Effect, error) {
	st := s.Payload.(*storyState)
	switch a.Name {
	case "skip":
		if err := expectPhase(s, PhaseDrawing); err != nil {
			return s, nil, err
		}
		s, effects := st.advance(s, env, "skipped")
		return s, effects, nil
	case "present":
		if err := expectPhase(s, PhaseDrawing); err != nil {
			return s, nil, err
		}
		st.Author = ""
		s.Phase = PhasePresenting
		return s, []Effect{cancel(TimerTurn), emit(protocol.GameReveal, map[string]any{"panels": len(st.Panels)})}, nil
	case "end":
		if err := expectPhase(s, PhasePresenting); err != nil {
			return s, nil, err
		}
		s, effects := finishGame(s, nil)
		return s, effects, nil
	}
	return s, nil, unknownAction(s, a.Name)
}

type panelData struct {
	Caption string   `json:"caption"`
	Strokes []drawOp `json:"strokes"`
}

func storyPlayer(s State, a Action, env Env) (State, []Effect, error) {
	st := s.Payload.(*storyState)
	if a.Name != "submit-panel" {
		return s, nil, unknownAction(s, a.Name)
	}
	if err := expectPhase(s, PhaseDrawing); err != nil {
		return s, nil, err
	}
	if a.PlayerID != st.Author {
		return s, nil, apperr.Phase("not your turn")
	}
	d, err := decode[panelData](a.Data)
	if err != nil {
		return s, nil, err
	}
	caption := textnorm.Clean(d.Caption)
	if utf8.RuneCountInString(caption) > maxCaptionLen {
		return s, nil, apperr.Invalid("caption longer than %d characters", maxCaptionLen)
	}
	if caption == "" && len(d.Strokes) == 0 {
		return s, nil, apperr.Invalid("panel needs a drawing or a caption")
	}
	if len(d.Strokes) > maxPanelStrokes {
		return s, nil, apperr.Invalid("panel has more than %d strokes", maxPanelStrokes)
	}
	for i := range d.Strokes {
		d.Strokes[i].Kind = "stroke"
		if err := validateStroke(d.Strokes[i]); err != nil {
			return s, nil, err
		}
	}

	p := panel{PlayerID: a.PlayerID, Caption: caption, Strokes: d.Strokes}
	st.Panels = append(st.Panels, p)
	effects := []Effect{
		award(a.PlayerID, panelPoints),
		count(a.PlayerID, "panels", 1),
		emitHost(protocol.GamePanelAdded, map[string]any{"index": len(st.Panels) - 1, "panel": p}),
	}
	s, more := st.advance(s, env, "submitted")
	return s, append(effects, more...), nil
}

func storyTick(s State, a Action, env Env) (State, []Effect, error) {
	st := s.Payload.(*storyState)
	switch a.Name {
	case TimerTurn:
		if err := expectPhase(s, PhaseDrawing); err != nil {
			return s, nil, err
		}
		s, effects := st.advance(s, env, "timeout")
		return s, effects, nil
	case TimerRoster:
		if s.Phase != PhaseDrawing || env.onRoster(st.Author) {
			return s, nil, apperr.Phase("nothing to update")
		}
		s, effects := st.advance(s, env, "left")
		return s, effects, nil
	}
	return s, nil, unknownAction(s, a.Name)
}
