package engine

import (
	"encoding/json"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/classroom-games-backend/internal/apperr"
	"github.com/DoyleJ11/classroom-games-backend/pkg/protocol"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newEnv(ids ...string) Env {
	players := make([]Participant, len(ids))
	for i, id := range ids {
		players[i] = Participant{ID: id, Name: id, Connected: true}
	}
	return Env{
		Now:      t0,
		Players:  players,
		Settings: DefaultSettings(),
		Rand:     rand.New(rand.NewPCG(7, 11)),
	}
}

func (e Env) at(d time.Duration) Env {
	e.Now = t0.Add(d)
	return e
}

func (e Env) without(id string) Env {
	players := make([]Participant, 0, len(e.Players))
	for _, p := range e.Players {
		if p.ID == id {
			p.Connected = false
		}
		players = append(players, p)
	}
	e.Players = players
	return e
}

// gone drops id from the roster, as after a kick, a leave or an expired
// reconnect grace.
func (e Env) gone(id string) Env {
	players := make([]Participant, 0, len(e.Players))
	for _, p := range e.Players {
		if p.ID != id {
			players = append(players, p)
		}
	}
	e.Players = players
	return e
}

func hostAct(name string, data any) Action {
	return Action{Kind: KindHost, Name: name, Data: mustJSON(data)}
}

func playerAct(id, name string, data any) Action {
	return Action{Kind: KindPlayer, Name: name, PlayerID: id, Data: mustJSON(data)}
}

func tickAct(name string) Action {
	return Action{Kind: KindTick, Name: name}
}

func mustJSON(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok {
		return json.RawMessage(s)
	}
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func mustStart(t *testing.T, game GameID, config string, env Env) (State, []Effect) {
	t.Helper()
	s, effects, err := Start(game, json.RawMessage(config), env)
	require.NoError(t, err)
	return s, effects
}

func mustApply(t *testing.T, s State, a Action, env Env) (State, []Effect) {
	t.Helper()
	next, effects, err := Apply(s, a, env)
	require.NoError(t, err, "%s %s", s.Game, a.Name)
	return next, effects
}

func awards(effects []Effect) map[string]int {
	out := map[string]int{}
	for _, e := range effects {
		if e.Kind == EffectAward {
			out[e.PlayerID] += e.Delta
		}
	}
	return out
}

func effectsOf(effects []Effect, kind EffectKind) []Effect {
	var out []Effect
	for _, e := range effects {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func TestEveryGameIsRegistered(t *testing.T) {
	games := Games()
	require.Len(t, games, 13)
	for _, id := range games {
		assert.True(t, Known(id), id)
		assert.NotEmpty(t, registry[id].Family, id)
	}
	assert.False(t, Known("tic-tac-toe"))
}

func TestStartRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name   string
		game   GameID
		config string
	}{
		{name: "unknown game", game: "chess", config: `{}`},
		{name: "malformed json", game: GameQuiz, config: `{"questions": [`},
		{name: "no items", game: GameImageGuess, config: `{"items": []}`},
		{name: "negative timer", game: GameEmojiRiddle, config: `{"timerSeconds": -1, "items": [{"prompt": "x"}]}`},
		{name: "quiz without choices", game: GameQuiz, config: `{"questions": [{"prompt": "2+2?"}]}`},
		{name: "quiz correct out of range", game: GameQuiz, config: `{"questions": [{"prompt": "2+2?", "choices": ["3", "4"], "correct": 5}]}`},
		{name: "draw guess without words", game: GameDrawGuess, config: `{"words": ["  "]}`},
		{name: "story without prompt", game: GameDoodleStory, config: `{}`},
		{name: "sort set too small", game: GameTimelineSort, config: `{"sets": [{"items": [{"label": "a"}]}]}`},
		{name: "word hunt tiles too short", game: GameWordHunt, config: `{"letters": "ab"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Start(tc.game, json.RawMessage(tc.config), newEnv("anna"))
			require.Error(t, err)
			assert.ErrorIs(t, err, apperr.ErrValidationFailed)
		})
	}
}

func TestApplySharedFailures(t *testing.T) {
	env := newEnv("anna", "bo")
	s, _ := mustStart(t, GameImageGuess, `{"items": [{"prompt": "what is this?", "answer": "cat"}]}`, env)
	open, _ := mustApply(t, s, hostAct("open-buzzer", nil), env)

	cases := []struct {
		name    string
		state   State
		action  Action
		env     Env
		wantErr error
	}{
		{name: "wrong phase", state: s, action: playerAct("anna", "buzz", nil), env: env, wantErr: apperr.ErrInvalidPhase},
		{name: "unknown player", state: s, action: playerAct("ghost", "buzz", nil), env: env, wantErr: apperr.ErrUnknownPlayer},
		{name: "disconnected player", state: s, action: playerAct("bo", "buzz", nil), env: env.without("bo"), wantErr: apperr.ErrUnknownPlayer},
		{name: "unknown host action", state: s, action: hostAct("explode", nil), env: env, wantErr: apperr.ErrValidationFailed},
		{name: "malformed payload", state: open, action: hostAct("select", `{"playerId": 7}`), env: env, wantErr: apperr.ErrValidationFailed},
		{name: "select without buzz", state: open, action: hostAct("select", map[string]string{"playerId": "bo"}), env: env, wantErr: apperr.ErrValidationFailed},
		{name: "no game", state: State{}, action: hostAct("reveal", nil), env: env, wantErr: apperr.ErrInvalidPhase},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, effects, err := Apply(tc.state, tc.action, tc.env)
			require.ErrorIs(t, err, tc.wantErr)
			assert.Nil(t, effects)
			assert.Equal(t, tc.state, next)
		})
	}
}

func TestApplyLeavesInputUntouched(t *testing.T) {
	env := newEnv("anna", "bo")
	s0, _ := mustStart(t, GameImageGuess, `{"items": [{"prompt": "p", "answer": "cat"}]}`, env)
	s1, _ := mustApply(t, s0, hostAct("open-buzzer", nil), env)
	s2, _ := mustApply(t, s1, playerAct("anna", "buzz", nil), env)

	assert.Equal(t, PhaseRevealing, s0.Phase)
	assert.Empty(t, s1.Payload.(*buzzerState).Queue.Order)
	assert.Equal(t, []string{"anna"}, s2.Payload.(*buzzerState).Queue.Order)
}

func TestFinishedGameRejectsEverything(t *testing.T) {
	env := newEnv("anna")
	s, _ := mustStart(t, GameWordChain, `{}`, env)
	s, effects := mustApply(t, s, hostAct("end", nil), env)
	require.Equal(t, PhaseFinished, s.Phase)
	assert.NotEmpty(t, effectsOf(effects, EffectFinish))

	_, _, err := Apply(s, hostAct("start", nil), env)
	assert.ErrorIs(t, err, apperr.ErrInvalidPhase)
}

func TestViewIncludesFamily(t *testing.T) {
	env := newEnv("anna")
	s, _ := mustStart(t, GameQuiz, `{"questions": [{"prompt": "2+2?", "choices": ["3", "4"], "correct": 1}]}`, env)
	v := s.View(Viewer{PlayerID: "anna"})
	assert.Equal(t, FamilySimultaneous, v.Family)
	assert.Equal(t, GameQuiz, v.Game)
	assert.Equal(t, PhaseQuestion, v.Phase)

	b, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"roundIndex":0`)
}

func TestEffectsEmitted(t *testing.T) {
	env := newEnv("anna")
	_, effects := mustStart(t, GameQuiz, `{"questions": [{"prompt": "2+2?", "choices": ["3", "4"], "correct": 1}]}`, env)
	assert.True(t, ContainsEffect(effects, EffectEmit, protocol.GameRoundStarted))
	assert.True(t, ContainsEffect(effects, EffectSchedule, ""))
	assert.False(t, ContainsEffect(effects, EffectEmit, protocol.GameReveal))
}
