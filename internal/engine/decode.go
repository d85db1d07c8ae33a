package engine

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/DoyleJ11/classroom-games-backend/internal/apperr"
)

// decode unmarshals an action or config payload, turning every failure
// into ErrValidationFailed. Empty input decodes to the zero value.
func decode[T any](data []byte) (T, error) {
	var v T
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, apperr.Invalid("malformed payload: %v", err)
	}
	return v, nil
}

// baseConfig holds the knobs every game accepts.
type baseConfig struct {
	TimerSeconds int `json:"timerSeconds"`
}

func (c baseConfig) timer(fallback time.Duration) time.Duration {
	if c.TimerSeconds > 0 {
		return time.Duration(c.TimerSeconds) * time.Second
	}
	return fallback
}

func (c baseConfig) validate() error {
	if c.TimerSeconds < 0 || c.TimerSeconds > 600 {
		return apperr.Invalid("timerSeconds must be between 0 and 600")
	}
	return nil
}
