package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/classroom-games-backend/internal/apperr"
	"github.com/DoyleJ11/classroom-games-backend/pkg/protocol"
)

const buzzItems = `{"items": [{"prompt": "guess the animal", "answer": "Cat"}, {"prompt": "and this one"}]}`

func openBuzzer(t *testing.T, game GameID, env Env) State {
	t.Helper()
	s, _ := mustStart(t, game, buzzItems, env)
	s, _ = mustApply(t, s, hostAct("open-buzzer", nil), env)
	return s
}

func TestBuzzerWrongAnswerKeepsQueue(t *testing.T) {
	env := newEnv("anna", "bo")
	s := openBuzzer(t, GameImageGuess, env)

	s, _ = mustApply(t, s, playerAct("anna", "buzz", nil), env)
	s, _ = mustApply(t, s, playerAct("bo", "buzz", nil), env.at(5*time.Millisecond))
	require.Equal(t, []string{"anna", "bo"}, s.Payload.(*buzzerState).Queue.Order)

	s, effects := mustApply(t, s, hostAct("select", map[string]string{"playerId": "bo"}), env)
	assert.Equal(t, PhaseAnswering, s.Phase)
	assert.Equal(t, []string{"anna"}, s.Payload.(*buzzerState).Queue.Order)
	assert.True(t, ContainsEffect(effects, EffectSchedule, ""))

	s, effects = mustApply(t, s, playerAct("bo", "answer", map[string]string{"text": "dog"}), env.at(time.Second))
	st := s.Payload.(*buzzerState)
	assert.Equal(t, PhaseBuzzerOpen, s.Phase)
	assert.Equal(t, []string{"anna"}, st.Queue.Order)
	assert.Equal(t, t0.Add(time.Second+env.Settings.BuzzCooldown), st.Queue.Cooldowns["bo"])
	assert.Empty(t, awards(effects))
	assert.True(t, ContainsEffect(effects, EffectEmit, protocol.GameGuessResult))

	_, _, err := Apply(s, playerAct("bo", "buzz", nil), env.at(2*time.Second))
	var cd *apperr.CooldownError
	require.ErrorAs(t, err, &cd)
	assert.ErrorIs(t, err, apperr.ErrCooldown)
	assert.Equal(t, 2*time.Second, cd.Remaining)

	s, _ = mustApply(t, s, playerAct("bo", "buzz", nil), env.at(5*time.Second))
	assert.Equal(t, []string{"anna", "bo"}, s.Payload.(*buzzerState).Queue.Order)
}

func TestBuzzerCorrectAnswerScores(t *testing.T) {
	env := newEnv("anna", "bo")
	s := openBuzzer(t, GameWhatsMissing, env)
	s, _ = mustApply(t, s, playerAct("anna", "buzz", nil), env)
	s, _ = mustApply(t, s, hostAct("select", map[string]string{"playerId": "anna"}), env)

	s, effects := mustApply(t, s, playerAct("anna", "answer", map[string]string{"text": "  cat "}), env)
	assert.Equal(t, PhaseValidated, s.Phase)
	assert.Equal(t, map[string]int{"anna": defaultBuzzPoints}, awards(effects))
	assert.Equal(t, "anna", s.Payload.(*buzzerState).Winner)

	s, _ = mustApply(t, s, hostAct("next-round", nil), env)
	assert.Equal(t, 1, s.Round)
	assert.Equal(t, PhaseRevealing, s.Phase)
}

func TestBuzzerHostValidatesFreeAnswers(t *testing.T) {
	env := newEnv("anna")
	s, _ := mustStart(t, GameImageGuess, `{"items": [{"prompt": "no key", "points": 300}]}`, env)
	s, _ = mustApply(t, s, hostAct("open-buzzer", nil), env)
	s, _ = mustApply(t, s, playerAct("anna", "buzz", nil), env)
	s, _ = mustApply(t, s, hostAct("select", map[string]string{"playerId": "anna"}), env)

	s, effects := mustApply(t, s, playerAct("anna", "answer", map[string]string{"text": "a lighthouse"}), env)
	require.Len(t, effects, 1)
	assert.True(t, effects[0].HostOnly)
	assert.Equal(t, PhaseAnswering, s.Phase)

	s, effects = mustApply(t, s, hostAct("validate", map[string]bool{"correct": true}), env)
	assert.Equal(t, map[string]int{"anna": 300}, awards(effects))

	s, effects = mustApply(t, s, hostAct("next-round", nil), env)
	assert.Equal(t, PhaseFinished, s.Phase)
	assert.True(t, ContainsEffect(effects, EffectFinish, ""))
}

func TestBuzzerRepeatBuzzOnlyReplies(t *testing.T) {
	env := newEnv("anna", "bo")
	s := openBuzzer(t, GameImageGuess, env)
	s, _ = mustApply(t, s, playerAct("anna", "buzz", nil), env)
	s, _ = mustApply(t, s, playerAct("bo", "buzz", nil), env)

	s, effects := mustApply(t, s, playerAct("bo", "buzz", nil), env)
	require.Len(t, effects, 1)
	assert.Equal(t, EffectReply, effects[0].Kind)
	assert.Equal(t, map[string]any{"position": 2}, effects[0].Data)
	assert.Equal(t, []string{"anna", "bo"}, s.Payload.(*buzzerState).Queue.Order)
}

func TestEmojiRiddleClearsQueueOnSelect(t *testing.T) {
	env := newEnv("anna", "bo", "cy")
	s := openBuzzer(t, GameEmojiRiddle, env)
	for _, id := range []string{"anna", "bo", "cy"} {
		s, _ = mustApply(t, s, playerAct(id, "buzz", nil), env)
	}
	s, _ = mustApply(t, s, hostAct("select", map[string]string{"playerId": "bo"}), env)
	assert.Empty(t, s.Payload.(*buzzerState).Queue.Order)
	assert.Equal(t, "bo", s.Payload.(*buzzerState).Queue.Active)
}

func TestBuzzerAnswerTimeout(t *testing.T) {
	env := newEnv("anna", "bo")
	s := openBuzzer(t, GameImageGuess, env)
	s, _ = mustApply(t, s, playerAct("anna", "buzz", nil), env)
	s, _ = mustApply(t, s, playerAct("bo", "buzz", nil), env)
	s, _ = mustApply(t, s, hostAct("select", map[string]string{"playerId": "anna"}), env)

	s, effects := mustApply(t, s, tickAct(TimerAnswer), env.at(10*time.Second))
	assert.Equal(t, PhaseBuzzerOpen, s.Phase)
	assert.True(t, ContainsEffect(effects, EffectEmit, protocol.GameAnswerTimeout))
	assert.Equal(t, []string{"bo"}, s.Payload.(*buzzerState).Queue.Order)

	// A second fire for the same timer finds nothing to resolve.
	_, _, err := Apply(s, tickAct(TimerAnswer), env.at(10*time.Second))
	assert.ErrorIs(t, err, apperr.ErrInvalidPhase)
}

func TestBuzzerRosterTickKeepsDisconnectedPlaces(t *testing.T) {
	env := newEnv("anna", "bo", "cy")
	s := openBuzzer(t, GameImageGuess, env)
	s, _ = mustApply(t, s, playerAct("anna", "buzz", nil), env)
	s, _ = mustApply(t, s, playerAct("bo", "buzz", nil), env)
	s, _ = mustApply(t, s, playerAct("cy", "buzz", nil), env)
	s, _ = mustApply(t, s, hostAct("select", map[string]string{"playerId": "anna"}), env)

	_, _, err := Apply(s, tickAct(TimerRoster), env.without("anna").without("bo"))
	assert.ErrorIs(t, err, apperr.ErrInvalidPhase, "a dropped connection keeps its place")
	assert.Equal(t, "anna", s.Payload.(*buzzerState).Queue.Active)
	assert.Equal(t, []string{"bo", "cy"}, s.Payload.(*buzzerState).Queue.Order)
}

func TestBuzzerRosterTickDropsDepartedPlayers(t *testing.T) {
	env := newEnv("anna", "bo", "cy")
	s := openBuzzer(t, GameImageGuess, env)
	s, _ = mustApply(t, s, playerAct("anna", "buzz", nil), env)
	s, _ = mustApply(t, s, playerAct("bo", "buzz", nil), env)
	s, _ = mustApply(t, s, playerAct("cy", "buzz", nil), env)
	s, _ = mustApply(t, s, hostAct("select", map[string]string{"playerId": "anna"}), env)

	left := env.gone("anna").gone("bo")
	s, effects := mustApply(t, s, tickAct(TimerRoster), left)
	assert.Equal(t, PhaseBuzzerOpen, s.Phase)
	assert.Empty(t, s.Payload.(*buzzerState).Queue.Active)
	assert.Equal(t, []string{"cy"}, s.Payload.(*buzzerState).Queue.Order)
	assert.True(t, ContainsEffect(effects, EffectCancel, ""))

	_, _, err := Apply(s, tickAct(TimerRoster), left)
	assert.ErrorIs(t, err, apperr.ErrInvalidPhase)
}

func TestBuzzerViewHidesAnswerFromPlayers(t *testing.T) {
	env := newEnv("anna")
	s := openBuzzer(t, GameImageGuess, env)

	player := s.View(Viewer{PlayerID: "anna"}).Payload.(buzzerView)
	host := s.View(Viewer{Host: true}).Payload.(buzzerView)
	assert.Empty(t, player.Answer)
	assert.Equal(t, "Cat", host.Answer)

	s, _ = mustApply(t, s, hostAct("reveal", nil), env)
	player = s.View(Viewer{PlayerID: "anna"}).Payload.(buzzerView)
	assert.Equal(t, "Cat", player.Answer)
	assert.Equal(t, PhaseValidated, s.Phase)
}
