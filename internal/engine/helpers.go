package engine

import (
	"slices"
	"strconv"

	"github.com/DoyleJ11/classroom-games-backend/internal/apperr"
)

func expectPhase(s State, phases ...Phase) error {
	if slices.Contains(phases, s.Phase) {
		return nil
	}
	return apperr.Phase("%s not allowed during %s", s.Game, s.Phase)
}

func unknownAction(s State, name string) error {
	return apperr.Invalid("unknown %s action %q", s.Game, name)
}

// requireActive rejects players that are eliminated or not in the room.
func requireActive(env Env, id string) error {
	p, ok := env.Player(id)
	if !ok || !p.Connected {
		return apperr.ErrUnknownPlayer
	}
	if p.Eliminated {
		return apperr.Phase("player is eliminated")
	}
	return nil
}

func finishGame(s State, effects []Effect) (State, []Effect) {
	s.Phase = PhaseFinished
	return s, append(effects, cancel(TimerAnswer), cancel(TimerRound), cancel(TimerTurn), finish())
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
