// Package protocol names the events exchanged between browsers and the
// room coordinator. Every frame is a JSON object
//
//	{"event": "player:join-room", "data": {...}, "ref": "optional-client-id"}
//
// ref is echoed on the direct reply (ack or error) so a client can match
// responses to requests.
package protocol

// Host -> server
const (
	HostCreateRoom    = "host:create-room"
	HostCreateLobby   = "host:create-lobby"
	HostReconnect     = "host:reconnect"
	HostSelectGame    = "host:select-game"
	HostStartGame     = "host:start-game"
	HostEndGame       = "host:end-game"
	HostKickPlayer    = "host:kick-player"
	HostGameAction    = "host:game-action"
	HostReturnToLobby = "host:return-to-lobby"
	HostCloseRoom     = "host:close-room"
)

// Player -> server
const (
	PlayerJoinRoom   = "player:join-room"
	PlayerReconnect  = "player:reconnect"
	PlayerGameAction = "player:game-action"
	PlayerLeave      = "player:leave"
	LobbySubmitScore = "lobby:submit-score"
	LobbyGetScores   = "lobby:get-scores"
)

// Server -> clients
const (
	RoomCreated         = "room:created"
	RoomJoined          = "room:joined"
	RoomPlayerJoined    = "room:player-joined"
	RoomPlayerLeft      = "room:player-left"
	RoomClosed          = "room:closed"
	RoomKicked          = "room:kicked"
	RoomHostLeft        = "room:host-disconnected"
	RoomHostBack        = "room:host-reconnected"
	RoomPlayerConnected = "room:player-connection"

	GameSelected    = "game:selected"
	GameStarted     = "game:started"
	GameStateUpdate = "game:state-update"
	GameStateSync   = "game:state-sync"
	GameEnded       = "game:ended"
	GameFinished    = "game:finished"

	LobbyScores = "lobby:scores"

	Ack   = "ack"
	Error = "error"
)

// Per-game events. Each carries only what its transition changed; the
// following game:state-update carries the full picture, except after
// canvas edits, which are sent as deltas only.
const (
	GameRoundStarted   = "game:round-started"
	GameBuzzerOpen     = "game:buzzer-open"
	GamePlayerBuzzed   = "game:player-buzzed"
	GamePlayerSelected = "game:player-selected"
	GameGuessResult    = "game:guess-result"
	GameAnswerTimeout  = "game:answer-timeout"
	GameAnswerReceived = "game:answer-received"
	GameReveal         = "game:reveal"
	GameEliminated     = "game:player-eliminated"
	GameTurnChanged    = "game:turn-changed"
	GameWordAdded      = "game:word-added"
	GameStroke         = "game:stroke"
	GameCanvasCleared  = "game:canvas-cleared"
	GameStrokeUndone   = "game:stroke-undone"
	GameSecretWord     = "game:secret-word"
	GamePanelAdded     = "game:panel-added"
	GameWordFound      = "game:word-found"
	GameWordCounts     = "game:word-counts"
	GameOrderLocked    = "game:order-locked"
)
