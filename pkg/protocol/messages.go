package protocol

import (
	"encoding/json"
	"errors"

	"github.com/DoyleJ11/classroom-games-backend/internal/apperr"
)

// Inbound is a frame sent by a browser.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ref   string          `json:"ref,omitempty"`
}

// Outbound is a frame sent to a browser. Seq increases by one for every
// event a room broadcasts; direct replies reuse the room's current Seq.
type Outbound struct {
	Event string `json:"event"`
	Seq   uint64 `json:"seq,omitempty"`
	Data  any    `json:"data,omitempty"`
	Ref   string `json:"ref,omitempty"`
}

type ErrorData struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Request   string `json:"request,omitempty"`
	RetryInMs int64  `json:"retryInMs,omitempty"`
}

// NewError builds the payload of an error frame. Cooldown rejections carry
// the remaining time so clients can count down.
func NewError(err error, request string) ErrorData {
	d := ErrorData{Code: apperr.Code(err), Message: err.Error(), Request: request}
	var cd *apperr.CooldownError
	if errors.As(err, &cd) {
		d.RetryInMs = cd.Remaining.Milliseconds()
	}
	return d
}

// AckData answers a request that succeeded. Result is request specific,
// e.g. the buzzer position.
type AckData struct {
	Request string `json:"request"`
	Result  any    `json:"result,omitempty"`
}

type CreateRoomData struct {
	LobbyMinigameID string `json:"lobbyMinigameId,omitempty"`
}

type JoinRoomData struct {
	RoomCode   string `json:"roomCode"`
	PlayerName string `json:"playerName"`
}

type PlayerReconnectData struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
}

type HostReconnectData struct {
	RoomCode  string `json:"roomCode"`
	HostToken string `json:"hostToken"`
}

type SelectGameData struct {
	GameID string `json:"gameId"`
}

type StartGameData struct {
	GameID string          `json:"gameId,omitempty"`
	Config json.RawMessage `json:"config,omitempty"`
}

type EndGameData struct {
	ReturnToLobby bool `json:"returnToLobby"`
}

type KickPlayerData struct {
	PlayerID string `json:"playerId"`
}

type GameActionData struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type SubmitScoreData struct {
	Score int `json:"score"`
}
