package arbiter

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/DoyleJ11/classroom-games-backend/internal/apperr"
)

var t0 = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

func TestQueue_BuzzOrderAndIdempotence(t *testing.T) {
	var q Queue
	pos, err := q.Buzz("anna", t0)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	pos, err = q.Buzz("bo", t0.Add(5*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	pos, err = q.Buzz("anna", t0.Add(6*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
	assert.Equal(t, []string{"anna", "bo"}, q.Order)
}

func TestQueue_SelectWrongAnswerKeepsOthers(t *testing.T) {
	var q Queue
	_, _ = q.Buzz("anna", t0)
	_, _ = q.Buzz("bo", t0)

	require.NoError(t, q.Select("bo", ClearSelected))
	assert.Equal(t, []string{"anna"}, q.Order)
	assert.Equal(t, "bo", q.Active)

	// At most one active answerer.
	err := q.Select("anna", ClearSelected)
	assert.ErrorIs(t, err, apperr.ErrInvalidPhase)

	id, ok := q.Resolve(false, t0, 3*time.Second)
	require.True(t, ok)
	assert.Equal(t, "bo", id)
	assert.Equal(t, []string{"anna"}, q.Order)
	assert.Empty(t, q.Active)

	_, err = q.Buzz("bo", t0.Add(time.Second))
	var ce *apperr.CooldownError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 2*time.Second, ce.Remaining)

	pos, err := q.Buzz("bo", t0.Add(3*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, pos)
}

func TestQueue_SelectTwiceIsRejected(t *testing.T) {
	var q Queue
	_, _ = q.Buzz("bo", t0)
	require.NoError(t, q.Select("bo", ClearSelected))
	assert.ErrorIs(t, q.Select("bo", ClearSelected), apperr.ErrInvalidPhase)

	q.Resolve(true, t0, 0)
	assert.ErrorIs(t, q.Select("bo", ClearSelected), apperr.ErrValidationFailed)
}

func TestQueue_ClearAll(t *testing.T) {
	var q Queue
	_, _ = q.Buzz("anna", t0)
	_, _ = q.Buzz("bo", t0)
	require.NoError(t, q.Select("anna", ClearAll))
	assert.Empty(t, q.Order)
}

func TestQueue_RemoveReleasesActive(t *testing.T) {
	var q Queue
	_, _ = q.Buzz("anna", t0)
	require.NoError(t, q.Select("anna", ClearSelected))
	assert.True(t, q.Remove("anna"))
	assert.Empty(t, q.Active)
	assert.False(t, q.Remove("anna"))
}

func TestQueue_CloneIsDeep(t *testing.T) {
	var q Queue
	_, _ = q.Buzz("anna", t0)
	q.Penalize("bo", t0.Add(time.Second))

	c := q.Clone()
	c.Order[0] = "zed"
	c.Cooldowns["bo"] = t0
	assert.Equal(t, "anna", q.Order[0])
	assert.Equal(t, t0.Add(time.Second), q.Cooldowns["bo"])
}

// Whatever the arrival sequence, the queue holds each buzzer once, in
// first-arrival order.
func TestQueue_OrderMatchesArrival(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ids := []string{"a", "b", "c", "d", "e"}
		arrivals := rapid.SliceOf(rapid.SampledFrom(ids)).Draw(t, "arrivals")

		var q Queue
		var want []string
		seen := map[string]bool{}
		for i, id := range arrivals {
			if _, err := q.Buzz(id, t0.Add(time.Duration(i)*time.Millisecond)); err != nil {
				t.Fatalf("buzz %s: %v", id, err)
			}
			if !seen[id] {
				seen[id] = true
				want = append(want, id)
			}
		}
		if len(q.Order) != len(want) {
			t.Fatalf("queue %v, want %v", q.Order, want)
		}
		for i := range want {
			if q.Order[i] != want[i] {
				t.Fatalf("queue %v, want %v", q.Order, want)
			}
		}
	})
}

func TestNextTurn(t *testing.T) {
	ids := []string{"a", "b", "c"}
	skipB := func(id string) bool { return id != "b" }

	cases := []struct {
		name  string
		after string
		elig  func(string) bool
		want  string
		ok    bool
	}{
		{"from start", "", nil, "a", true},
		{"next", "a", nil, "b", true},
		{"wraps", "c", nil, "a", true},
		{"skips ineligible", "a", skipB, "c", true},
		{"unknown after starts over", "zz", nil, "a", true},
		{"nobody eligible", "a", func(string) bool { return false }, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := NextTurn(ids, tc.after, tc.elig)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}
