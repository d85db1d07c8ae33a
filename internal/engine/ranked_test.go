package engine

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/DoyleJ11/classroom-games-backend/internal/apperr"
)

const timelineConfig = `{"sets": [
	{"prompt": "Oldest first", "items": [
		{"label": "Moon landing", "value": 1969},
		{"label": "Printing press", "value": 1440},
		{"label": "World wide web", "value": 1989},
		{"label": "Steam engine", "value": 1712}
	]},
	{"prompt": "Again", "items": [{"label": "a", "value": 1}, {"label": "b", "value": 2}]}
]}`

func TestRankUnits(t *testing.T) {
	truth := []string{"a", "b", "c", "d", "e"}
	cases := []struct {
		name  string
		order []string
		want  int
	}{
		{name: "exact", order: []string{"a", "b", "c", "d", "e"}, want: 10},
		{name: "one adjacent swap", order: []string{"a", "c", "b", "d", "e"}, want: 2*3 + 2},
		{name: "far swap", order: []string{"e", "b", "c", "d", "a"}, want: 6},
		{name: "reversed", order: []string{"e", "d", "c", "b", "a"}, want: 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, rankUnits(tc.order, truth))
		})
	}
}

func TestRankUnitsProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, maxSortItems).Draw(t, "n")
		truth := make([]string, n)
		for i := range truth {
			truth[i] = string(rune('a' + i))
		}
		if got := rankUnits(truth, truth); got != 2*n {
			t.Fatalf("exact order scored %d, want %d", got, 2*n)
		}

		i := rapid.IntRange(0, n-2).Draw(t, "swap")
		swapped := slices.Clone(truth)
		swapped[i], swapped[i+1] = swapped[i+1], swapped[i]
		if got := rankUnits(swapped, truth); got != 2*(n-2)+2 {
			t.Fatalf("adjacent swap scored %d, want %d", got, 2*(n-2)+2)
		}

		perm := rapid.Permutation(truth).Draw(t, "perm")
		if got := rankUnits(perm, truth); got < 0 || got > 2*n {
			t.Fatalf("score %d out of range", got)
		}
	})
}

func TestTimelineSortLocks(t *testing.T) {
	env := newEnv("anna", "bo")
	s, _ := mustStart(t, GameTimelineSort, timelineConfig, env)
	st := s.Payload.(*rankedState)
	truth := st.Truth[0]
	require.Equal(t, []string{"1", "3", "0", "2"}, truth)
	assert.NotEqual(t, truth, st.Shown[0], "cards are dealt shuffled")

	player := s.View(Viewer{PlayerID: "anna"}).Payload.(rankedView)
	assert.Nil(t, player.Truth)
	for _, it := range player.Items {
		assert.Nil(t, it.Value)
	}

	_, _, err := Apply(s, playerAct("anna", "lock", map[string][]string{"order": {"1", "3", "0"}}), env)
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)
	_, _, err = Apply(s, playerAct("anna", "lock", map[string][]string{"order": {"1", "1", "0", "2"}}), env)
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)

	s, effects := mustApply(t, s, playerAct("anna", "lock", map[string][]string{"order": truth}), env)
	assert.Equal(t, EffectReply, effects[0].Kind)
	assert.Equal(t, PhaseSorting, s.Phase)

	_, _, err = Apply(s, playerAct("anna", "lock", map[string][]string{"order": {"3", "1", "0", "2"}}), env)
	assert.ErrorIs(t, err, apperr.ErrInvalidPhase, "only the first lock counts")

	s, effects = mustApply(t, s, playerAct("bo", "lock", map[string][]string{"order": {"3", "1", "0", "2"}}), env)
	assert.Equal(t, PhaseRevealed, s.Phase)
	assert.Equal(t, map[string]int{"anna": 80, "bo": 60}, awards(effects))

	_, _, err = Apply(s, playerAct("bo", "lock", map[string][]string{"order": truth}), env)
	assert.ErrorIs(t, err, apperr.ErrInvalidPhase, "late lock after the reveal")

	s, _ = mustApply(t, s, hostAct("next", nil), env)
	assert.Equal(t, 1, s.Round)
	assert.Empty(t, s.Payload.(*rankedState).Locks)
}

func TestSizeSortDescending(t *testing.T) {
	env := newEnv("anna")
	s, _ := mustStart(t, GameSizeSort, `{"descending": true, "pointsPerUnit": 5, "sets": [{"items": [
		{"label": "ant", "value": 0.005}, {"label": "whale", "value": 30}, {"label": "horse", "value": 2.4}
	]}]}`, env)
	truth := s.Payload.(*rankedState).Truth[0]
	require.Equal(t, []string{"1", "2", "0"}, truth)

	s, effects := mustApply(t, s, tickAct(TimerRound), env)
	assert.Equal(t, PhaseRevealed, s.Phase)
	assert.Empty(t, awards(effects))

	s, effects = mustApply(t, s, hostAct("next", nil), env)
	assert.Equal(t, PhaseFinished, s.Phase)
	assert.True(t, ContainsEffect(effects, EffectFinish, ""))
}
