package score

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/classroom-games-backend/internal/apperr"
	"github.com/DoyleJ11/classroom-games-backend/internal/roster"
)

func seed(t *testing.T, names ...string) (*roster.Roster, []*roster.Player) {
	t.Helper()
	r := roster.New(0)
	var out []*roster.Player
	for _, n := range names {
		p, err := r.Add(n)
		require.NoError(t, err)
		out = append(out, p)
	}
	return r, out
}

func TestAward_Deltas(t *testing.T) {
	r, ps := seed(t, "Anna")
	require.NoError(t, Award(r, ps[0].ID, 100))
	require.NoError(t, Award(r, ps[0].ID, -30))
	assert.Equal(t, 70, ps[0].Score)

	assert.ErrorIs(t, Award(r, "ghost", 10), apperr.ErrUnknownPlayer)
}

func TestLeaderboard_SortsAndBreaksTiesByJoinOrder(t *testing.T) {
	r, ps := seed(t, "Anna", "Bo", "Cy", "Dee")
	require.NoError(t, Award(r, ps[0].ID, 50))
	require.NoError(t, Award(r, ps[1].ID, 80))
	require.NoError(t, Award(r, ps[2].ID, 50))

	board := Leaderboard(r)
	require.Len(t, board, 4)

	names := []string{board[0].Name, board[1].Name, board[2].Name, board[3].Name}
	assert.Equal(t, []string{"Bo", "Anna", "Cy", "Dee"}, names)
	assert.Equal(t, []int{1, 2, 2, 4}, []int{board[0].Rank, board[1].Rank, board[2].Rank, board[3].Rank})
}

func TestLobbyBoard_KeepsBest(t *testing.T) {
	r, ps := seed(t, "Anna", "Bo", "Cy")
	b := NewLobbyBoard()

	improved, err := b.Submit(ps[0].ID, 40)
	require.NoError(t, err)
	assert.True(t, improved)

	improved, err = b.Submit(ps[0].ID, 10)
	require.NoError(t, err)
	assert.False(t, improved)

	_, err = b.Submit(ps[1].ID, 90)
	require.NoError(t, err)

	_, err = b.Submit(ps[2].ID, -1)
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)

	got := b.Standings(r)
	require.Len(t, got, 2)
	assert.Equal(t, "Bo", got[0].Name)
	assert.Equal(t, 90, got[0].Score)
	assert.Equal(t, "Anna", got[1].Name)
	assert.Equal(t, 40, got[1].Score)
}
