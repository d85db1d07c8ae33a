// Package apperr defines the rejection taxonomy shared by the room actor,
// the game engine and the transport layer.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomFull         = errors.New("room is full")
	ErrNameTaken        = errors.New("name already taken")
	ErrInvalidPhase     = errors.New("action not allowed in current phase")
	ErrUnknownPlayer    = errors.New("unknown player")
	ErrNotHost          = errors.New("only the host can do that")
	ErrSessionExpired   = errors.New("session expired")
	ErrValidationFailed = errors.New("validation failed")
	ErrCooldown         = errors.New("buzzer cooling down")
	ErrSuspended        = errors.New("room suspended while host is away")
	ErrRoomClosed       = errors.New("room closed")
)

// Wire codes sent to clients in error frames.
const (
	CodeRoomNotFound     = "RoomNotFound"
	CodeRoomFull         = "RoomFull"
	CodeNameTaken        = "NameTaken"
	CodeInvalidPhase     = "InvalidPhase"
	CodeUnknownPlayer    = "UnknownPlayer"
	CodeNotHost          = "NotHost"
	CodeSessionExpired   = "SessionExpired"
	CodeValidationFailed = "ValidationFailed"
	CodeCooldown         = "Cooldown"
	CodeSuspended        = "Suspended"
	CodeInternal         = "Internal"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrRoomNotFound, CodeRoomNotFound},
	{ErrRoomClosed, CodeRoomNotFound},
	{ErrRoomFull, CodeRoomFull},
	{ErrNameTaken, CodeNameTaken},
	{ErrInvalidPhase, CodeInvalidPhase},
	{ErrUnknownPlayer, CodeUnknownPlayer},
	{ErrNotHost, CodeNotHost},
	{ErrSessionExpired, CodeSessionExpired},
	{ErrValidationFailed, CodeValidationFailed},
	{ErrCooldown, CodeCooldown},
	{ErrSuspended, CodeSuspended},
}

// Code maps err onto its wire code. Errors outside the taxonomy map to Internal.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// Invalid wraps ErrValidationFailed with a human readable reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidationFailed, fmt.Sprintf(format, args...))
}

// Phase wraps ErrInvalidPhase with a reason.
func Phase(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPhase, fmt.Sprintf(format, args...))
}

// CooldownError is returned when a penalised player buzzes before their
// cooldown elapses. Clients use Until to render a countdown.
type CooldownError struct {
	Until     time.Time
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("buzzer cooling down for %s", e.Remaining.Round(time.Millisecond))
}

func (e *CooldownError) Is(target error) bool { return target == ErrCooldown }
