package score

import (
	"sort"

	"github.com/DoyleJ11/classroom-games-backend/internal/apperr"
	"github.com/DoyleJ11/classroom-games-backend/internal/roster"
)

// MaxLobbyScore bounds what a client may report for the waiting-room minigame.
const MaxLobbyScore = 1_000_000

// LobbyBoard keeps each player's best waiting-room minigame score. It is
// cosmetic and never touches game scores.
type LobbyBoard struct {
	best map[string]int
}

func NewLobbyBoard() *LobbyBoard {
	return &LobbyBoard{best: make(map[string]int)}
}

// Submit records score if it beats the player's previous best and reports
// whether it did.
func (b *LobbyBoard) Submit(playerID string, score int) (bool, error) {
	if score < 0 || score > MaxLobbyScore {
		return false, apperr.Invalid("score must be between 0 and %d", MaxLobbyScore)
	}
	prev, seen := b.best[playerID]
	if seen && prev >= score {
		return false, nil
	}
	b.best[playerID] = score
	return true, nil
}

func (b *LobbyBoard) Forget(playerID string) { delete(b.best, playerID) }

func (b *LobbyBoard) Reset() { clear(b.best) }

// Standings lists players that have submitted, best first, ties by join order.
func (b *LobbyBoard) Standings(r *roster.Roster) []Standing {
	players := r.Players()
	sort.SliceStable(players, func(i, j int) bool {
		return b.best[players[i].ID] > b.best[players[j].ID]
	})
	out := make([]Standing, 0, len(b.best))
	for _, p := range players {
		s, ok := b.best[p.ID]
		if !ok {
			continue
		}
		rank := len(out) + 1
		if n := len(out); n > 0 && out[n-1].Score == s {
			rank = out[n-1].Rank
		}
		out = append(out, Standing{Rank: rank, PlayerID: p.ID, Name: p.Name, Score: s})
	}
	return out
}
