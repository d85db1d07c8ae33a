// Package config loads server settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/DoyleJ11/classroom-games-backend/internal/engine"
)

type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type GameConfig struct {
	AnswerTimeout  time.Duration `env:"ANSWER_TIMEOUT" envDefault:"10s"`
	BuzzCooldown   time.Duration `env:"BUZZ_COOLDOWN" envDefault:"3s"`
	QuizTimer      time.Duration `env:"QUIZ_TIMER" envDefault:"20s"`
	SortTimer      time.Duration `env:"SORT_TIMER" envDefault:"60s"`
	WordHuntTimer  time.Duration `env:"WORD_HUNT_TIMER" envDefault:"80s"`
	DrawTimer      time.Duration `env:"DRAW_TIMER" envDefault:"75s"`
	RelayTurnTimer time.Duration `env:"RELAY_TURN_TIMER" envDefault:"15s"`
	StoryTurnTimer time.Duration `env:"STORY_TURN_TIMER" envDefault:"60s"`
}

// Settings converts the timing config into what the game engine reads.
func (g GameConfig) Settings() engine.Settings {
	return engine.Settings{
		AnswerTimeout:  g.AnswerTimeout,
		BuzzCooldown:   g.BuzzCooldown,
		QuizTimer:      g.QuizTimer,
		SortTimer:      g.SortTimer,
		WordHuntTimer:  g.WordHuntTimer,
		DrawTimer:      g.DrawTimer,
		RelayTurnTimer: g.RelayTurnTimer,
		StoryTurnTimer: g.StoryTurnTimer,
	}
}

type Config struct {
	HTTPAddr       string        `env:"HTTP_ADDR" envDefault:":8080"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
	MaxRooms       int           `env:"MAX_ROOMS" envDefault:"1000"`
	MaxPlayers     int           `env:"MAX_PLAYERS" envDefault:"60"`
	ReconnectGrace time.Duration `env:"RECONNECT_GRACE" envDefault:"30s"`
	HostGrace      time.Duration `env:"HOST_GRACE" envDefault:"60s"`
	RoomIdleTTL    time.Duration `env:"ROOM_IDLE_TTL" envDefault:"2h"`
	PingInterval   time.Duration `env:"PING_INTERVAL" envDefault:"20s"`
	WriteTimeout   time.Duration `env:"WRITE_TIMEOUT" envDefault:"5s"`
	OutboxSize     int           `env:"OUTBOX_SIZE" envDefault:"64"`
	ShutdownGrace  time.Duration `env:"SHUTDOWN_GRACE" envDefault:"10s"`

	Logging LoggingConfig
	Game    GameConfig
}

// Load reads envFile if it exists, then the environment, then validates.
// Variables already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every bad setting at once.
func (c Config) Validate() error {
	var err error
	if c.HTTPAddr == "" {
		err = multierr.Append(err, errors.New("HTTP_ADDR must not be empty"))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		err = multierr.Append(err, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		err = multierr.Append(err, fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format))
	}
	if c.MaxRooms < 1 {
		err = multierr.Append(err, fmt.Errorf("MAX_ROOMS must be positive, got %d", c.MaxRooms))
	}
	if c.MaxPlayers < 1 {
		err = multierr.Append(err, fmt.Errorf("MAX_PLAYERS must be positive, got %d", c.MaxPlayers))
	}
	if c.OutboxSize < 1 {
		err = multierr.Append(err, fmt.Errorf("OUTBOX_SIZE must be positive, got %d", c.OutboxSize))
	}
	positive := []struct {
		name string
		d    time.Duration
	}{
		{"RECONNECT_GRACE", c.ReconnectGrace},
		{"HOST_GRACE", c.HostGrace},
		{"ROOM_IDLE_TTL", c.RoomIdleTTL},
		{"PING_INTERVAL", c.PingInterval},
		{"WRITE_TIMEOUT", c.WriteTimeout},
		{"ANSWER_TIMEOUT", c.Game.AnswerTimeout},
		{"QUIZ_TIMER", c.Game.QuizTimer},
		{"SORT_TIMER", c.Game.SortTimer},
		{"WORD_HUNT_TIMER", c.Game.WordHuntTimer},
		{"DRAW_TIMER", c.Game.DrawTimer},
		{"RELAY_TURN_TIMER", c.Game.RelayTurnTimer},
		{"STORY_TURN_TIMER", c.Game.StoryTurnTimer},
	}
	for _, p := range positive {
		if p.d <= 0 {
			err = multierr.Append(err, fmt.Errorf("%s must be positive, got %s", p.name, p.d))
		}
	}
	if c.Game.BuzzCooldown < 0 {
		err = multierr.Append(err, fmt.Errorf("BUZZ_COOLDOWN must not be negative, got %s", c.Game.BuzzCooldown))
	}
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
