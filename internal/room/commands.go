package room

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/DoyleJ11/classroom-games-backend/internal/apperr"
	"github.com/DoyleJ11/classroom-games-backend/internal/engine"
	"github.com/DoyleJ11/classroom-games-backend/internal/score"
	"github.com/DoyleJ11/classroom-games-backend/pkg/protocol"
)

const maxLobbyGameLen = 64

func decodeData[T any](data json.RawMessage) (T, error) {
	var v T
	if len(bytes.TrimSpace(data)) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, apperr.Invalid("malformed payload: %v", err)
	}
	return v, nil
}

// command answers every request with exactly one ack or error frame,
// unless the request itself ended the connection.
func (r *Room) command(msg Command) {
	c, ok := r.clients[msg.ConnID]
	if !ok {
		r.log.Debug("command from detached connection", zap.String("conn", msg.ConnID), zap.String("event", msg.Event))
		return
	}
	var (
		result any
		err    error
	)
	if c.host() {
		result, err = r.hostCommand(msg)
	} else {
		result, err = r.playerCommand(c, msg)
	}
	if err != nil {
		r.log.Debug("rejected", zap.String("event", msg.Event), zap.String("conn", msg.ConnID), zap.Error(err))
		r.direct(c, protocol.Error, protocol.NewError(err, msg.Event), msg.Ref)
		return
	}
	r.direct(c, protocol.Ack, protocol.AckData{Request: msg.Event, Result: result}, msg.Ref)
}

func (r *Room) hostCommand(msg Command) (any, error) {
	switch msg.Event {
	case protocol.HostSelectGame:
		d, err := decodeData[protocol.SelectGameData](msg.Data)
		if err != nil {
			return nil, err
		}
		return nil, r.selectGame(engine.GameID(d.GameID))

	case protocol.HostStartGame:
		d, err := decodeData[protocol.StartGameData](msg.Data)
		if err != nil {
			return nil, err
		}
		return r.startGame(engine.GameID(d.GameID), d.Config)

	case protocol.HostEndGame:
		d, err := decodeData[protocol.EndGameData](msg.Data)
		if err != nil {
			return nil, err
		}
		if r.game == nil {
			return nil, apperr.Phase("no game running")
		}
		r.endGame(d.ReturnToLobby)
		return nil, nil

	case protocol.HostReturnToLobby:
		r.endGame(true)
		return nil, nil

	case protocol.HostKickPlayer:
		d, err := decodeData[protocol.KickPlayerData](msg.Data)
		if err != nil {
			return nil, err
		}
		if _, ok := r.roster.Get(d.PlayerID); !ok {
			return nil, apperr.ErrUnknownPlayer
		}
		r.log.Info("player kicked", zap.String("player", d.PlayerID))
		r.removePlayer(d.PlayerID, "kicked")
		return nil, nil

	case protocol.HostGameAction:
		d, err := decodeData[protocol.GameActionData](msg.Data)
		if err != nil {
			return nil, err
		}
		if d.Action == "" {
			return nil, apperr.Invalid("action is required")
		}
		return r.applyGame(engine.Action{Kind: engine.KindHost, Name: d.Action, Data: d.Data})

	case protocol.HostCreateLobby:
		d, err := decodeData[protocol.CreateRoomData](msg.Data)
		if err != nil {
			return nil, err
		}
		if len(d.LobbyMinigameID) > maxLobbyGameLen {
			return nil, apperr.Invalid("lobbyMinigameId too long")
		}
		r.lobbyGame = d.LobbyMinigameID
		r.lobby.Reset()
		r.broadcast(protocol.LobbyScores, r.lobbyScores())
		return nil, nil

	case protocol.LobbyGetScores:
		return r.lobbyScores(), nil

	case protocol.HostCloseRoom:
		r.teardown("host-closed")
		return nil, nil
	}
	if strings.HasPrefix(msg.Event, "player:") || msg.Event == protocol.LobbySubmitScore {
		return nil, apperr.Invalid("%s is a player event", msg.Event)
	}
	return nil, apperr.Invalid("unknown event %q", msg.Event)
}

func (r *Room) playerCommand(c *client, msg Command) (any, error) {
	switch msg.Event {
	case protocol.PlayerGameAction:
		if r.suspended {
			return nil, apperr.ErrSuspended
		}
		d, err := decodeData[protocol.GameActionData](msg.Data)
		if err != nil {
			return nil, err
		}
		if d.Action == "" {
			return nil, apperr.Invalid("action is required")
		}
		return r.applyGame(engine.Action{Kind: engine.KindPlayer, Name: d.Action, PlayerID: c.playerID, Data: d.Data})

	case protocol.LobbySubmitScore:
		d, err := decodeData[protocol.SubmitScoreData](msg.Data)
		if err != nil {
			return nil, err
		}
		improved, err := r.lobby.Submit(c.playerID, d.Score)
		if err != nil {
			return nil, err
		}
		if improved {
			r.broadcast(protocol.LobbyScores, r.lobbyScores())
		}
		return map[string]any{"improved": improved}, nil

	case protocol.LobbyGetScores:
		return r.lobbyScores(), nil

	case protocol.PlayerLeave:
		r.log.Info("player left", zap.String("player", c.playerID))
		r.removePlayer(c.playerID, "left")
		return nil, nil
	}
	if strings.HasPrefix(msg.Event, "host:") {
		return nil, apperr.ErrNotHost
	}
	return nil, apperr.Invalid("unknown event %q", msg.Event)
}

func (r *Room) lobbyScores() map[string]any {
	return map[string]any{
		"lobbyMinigameId": r.lobbyGame,
		"scores":          r.lobby.Standings(r.roster),
	}
}

func (r *Room) selectGame(id engine.GameID) error {
	if !engine.Known(id) {
		return apperr.Invalid("unknown game %q", id)
	}
	if r.running() {
		return apperr.Phase("a game is already running")
	}
	r.selected = id
	r.broadcast(protocol.GameSelected, map[string]any{"gameId": id})
	return nil
}

func (r *Room) running() bool {
	return r.game != nil && r.game.Phase != engine.PhaseFinished
}

func (r *Room) startGame(id engine.GameID, config json.RawMessage) (any, error) {
	if id == "" {
		id = r.selected
	}
	if id == "" {
		return nil, apperr.Invalid("no game selected")
	}
	if r.running() {
		return nil, apperr.Phase("a game is already running")
	}
	// The new game sees everyone back in; the roster itself is only reset
	// once Start has accepted the config.
	env := r.env()
	for i := range env.Players {
		env.Players[i].Eliminated = false
	}
	s, effects, err := engine.Start(id, config, env)
	if err != nil {
		return nil, err
	}
	r.stopAllTimers()
	r.roster.ResetForGame()
	r.selected = id
	r.game = &s
	r.log.Info("game started", zap.String("game", string(id)), zap.Int("players", r.roster.Len()))
	r.syncAll(protocol.GameStarted)
	return r.runEffects(effects, false), nil
}

// endGame stops the running game and shows the final standings. With
// toLobby the room goes back to having no game at all.
func (r *Room) endGame(toLobby bool) {
	r.stopAllTimers()
	if r.game != nil {
		r.game.Phase = engine.PhaseFinished
		r.broadcast(protocol.GameEnded, map[string]any{
			"game":          r.game.Game,
			"leaderboard":   score.Leaderboard(r.roster),
			"returnToLobby": toLobby,
		})
	}
	if toLobby {
		r.game = nil
		r.selected = ""
		r.roster.ResetForGame()
	}
	r.syncAll(protocol.GameStateSync)
}

func (r *Room) applyGame(a engine.Action) (any, error) {
	if r.game == nil {
		return nil, apperr.Phase("no game running")
	}
	next, effects, err := engine.Apply(*r.game, a, r.env())
	if err != nil {
		return nil, err
	}
	r.game = &next
	return r.runEffects(effects, true), nil
}

// tick runs a timer or roster change through the game. Rejections are
// normal here: the awaited action may already have happened.
func (r *Room) tick(name string) {
	if !r.running() {
		return
	}
	if _, err := r.applyGame(engine.Action{Kind: engine.KindTick, Name: name}); err != nil {
		if !errors.Is(err, apperr.ErrInvalidPhase) {
			r.log.Warn("tick failed", zap.String("timer", name), zap.Error(err))
		}
	}
}

func (r *Room) rosterChanged() { r.tick(engine.TimerRoster) }

// runEffects carries out what a transition asked for, then sends every
// viewer the new state unless the transition's own events already did. It returns the data meant for the caller's ack.
func (r *Room) runEffects(effects []engine.Effect, update bool) any {
	var (
		result   any
		finished bool
	)
	for _, e := range effects {
		switch e.Kind {
		case engine.EffectEmit:
			switch {
			case e.To != "":
				r.toPlayer(e.To, e.Event, e.Data)
			case e.HostOnly:
				r.toHost(e.Event, e.Data)
			default:
				r.broadcast(e.Event, e.Data)
			}
		case engine.EffectAward:
			if err := score.Award(r.roster, e.PlayerID, e.Delta); err != nil {
				r.log.Debug("award for departed player", zap.String("player", e.PlayerID))
			}
		case engine.EffectEliminate:
			if err := r.roster.Eliminate(e.PlayerID); err == nil {
				r.broadcast(protocol.GameEliminated, map[string]any{"playerId": e.PlayerID})
			}
		case engine.EffectCount:
			_ = r.roster.Count(e.PlayerID, e.Counter, e.Delta)
		case engine.EffectSchedule:
			r.schedule(e.Timer, e.After)
		case engine.EffectCancel:
			r.stopTimer(e.Timer)
		case engine.EffectFinish:
			finished = true
		case engine.EffectReply:
			result = e.Data
		case engine.EffectDeltaOnly:
			update = false
		}
	}
	if update {
		r.syncAll(protocol.GameStateUpdate)
	}
	if finished {
		r.stopAllTimers()
		r.log.Info("game finished", zap.String("game", string(r.game.Game)))
		r.broadcast(protocol.GameFinished, map[string]any{
			"game":        r.game.Game,
			"leaderboard": score.Leaderboard(r.roster),
		})
	}
	return result
}
