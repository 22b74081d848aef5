// Package config loads server configuration: built-in defaults, then an
// optional YAML file, then GOTRIS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"

	"github.com/hersh/gotris-engine/internal/game"
)

const EnvPrefix = "GOTRIS_"

type Config struct {
	Server   ServerConfig   `mapstructure:"server" envPrefix:"SERVER_"`
	Game     game.Config    `mapstructure:"game" envPrefix:"GAME_"`
	Sessions SessionsConfig `mapstructure:"sessions" envPrefix:"SESSIONS_"`
	Logging  LoggingConfig  `mapstructure:"logging" envPrefix:"LOGGING_"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address" env:"ADDRESS"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" env:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" env:"REQUEST_TIMEOUT"`
}

type SessionsConfig struct {
	// Max bounds the number of live sessions; 0 means unlimited.
	Max int `mapstructure:"max" env:"MAX"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" env:"LEVEL"`
	Format string `mapstructure:"format" env:"FORMAT"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RequestTimeout:  15 * time.Second,
		},
		Game:     game.DefaultConfig(),
		Sessions: SessionsConfig{Max: 64},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds the configuration. A missing file at path is not an error;
// an empty path skips the file layer.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

func (c Config) Validate() error {
	if c.Server.Address == "" {
		return errors.New("config: server.address is empty")
	}
	if c.Sessions.Max < 0 {
		return fmt.Errorf("config: sessions.max %d is negative", c.Sessions.Max)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown logging.level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: unknown logging.format %q", c.Logging.Format)
	}
	if err := c.Game.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
