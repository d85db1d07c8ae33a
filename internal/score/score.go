package score

import (
	"sort"

	"github.com/DoyleJ11/classroom-games-backend/internal/apperr"
	"github.com/DoyleJ11/classroom-games-backend/internal/roster"
)

type Standing struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
}

// Award is the only way a score changes. Deltas come from the game
// engine; clients never send absolute scores.
func Award(r *roster.Roster, playerID string, delta int) error {
	p, ok := r.Get(playerID)
	if !ok {
		return apperr.ErrUnknownPlayer
	}
	p.Score += delta
	return nil
}

// Leaderboard is recomputed on every read: score descending, ties by join
// order. Equal scores share a rank.
func Leaderboard(r *roster.Roster) []Standing {
	players := r.Players()
	sort.SliceStable(players, func(i, j int) bool {
		if players[i].Score != players[j].Score {
			return players[i].Score > players[j].Score
		}
		return players[i].JoinSeq < players[j].JoinSeq
	})

	out := make([]Standing, len(players))
	for i, p := range players {
		rank := i + 1
		if i > 0 && p.Score == out[i-1].Score {
			rank = out[i-1].Rank
		}
		out[i] = Standing{Rank: rank, PlayerID: p.ID, Name: p.Name, Score: p.Score}
	}
	return out
}
