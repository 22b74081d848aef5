package game

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned when an engine is built from bounds or
// dimensions that cannot describe a playable field.
var ErrInvalidConfig = errors.New("invalid game config")

// Config bounds the field and tunes level progression.
type Config struct {
	Width     int `mapstructure:"width" env:"WIDTH"`
	Height    int `mapstructure:"height" env:"HEIGHT"`
	MinWidth  int `mapstructure:"min_width" env:"MIN_WIDTH"`
	MaxWidth  int `mapstructure:"max_width" env:"MAX_WIDTH"`
	MinHeight int `mapstructure:"min_height" env:"MIN_HEIGHT"`
	MaxHeight int `mapstructure:"max_height" env:"MAX_HEIGHT"`

	MaxLevel      int `mapstructure:"max_level" env:"MAX_LEVEL"`
	LinesPerLevel int `mapstructure:"lines_per_level" env:"LINES_PER_LEVEL"`

	// Gravity speed in drops per second at level 1 and at MaxLevel.
	MinSpeed float64 `mapstructure:"min_speed" env:"MIN_SPEED"`
	MaxSpeed float64 `mapstructure:"max_speed" env:"MAX_SPEED"`

	// SpawnOffset is how many rows below the top edge a new piece's local
	// grid is anchored. It must lie in [4, MinHeight] so the full 4x4 grid
	// starts inside the field.
	SpawnOffset int `mapstructure:"spawn_offset" env:"SPAWN_OFFSET"`
}

func DefaultConfig() Config {
	return Config{
		Width:         7,
		Height:        15,
		MinWidth:      4,
		MaxWidth:      30,
		MinHeight:     6,
		MaxHeight:     50,
		MaxLevel:      10,
		LinesPerLevel: 5,
		MinSpeed:      1,
		MaxSpeed:      8,
		SpawnOffset:   4,
	}
}

func (c Config) Validate() error {
	switch {
	case c.MinWidth < 4 || c.MaxWidth < c.MinWidth:
		return fmt.Errorf("%w: width bounds [%d,%d]", ErrInvalidConfig, c.MinWidth, c.MaxWidth)
	case c.MinHeight < 1 || c.MaxHeight < c.MinHeight:
		return fmt.Errorf("%w: height bounds [%d,%d]", ErrInvalidConfig, c.MinHeight, c.MaxHeight)
	case !c.WidthInRange(c.Width):
		return fmt.Errorf("%w: width %d outside [%d,%d]", ErrInvalidConfig, c.Width, c.MinWidth, c.MaxWidth)
	case !c.HeightInRange(c.Height):
		return fmt.Errorf("%w: height %d outside [%d,%d]", ErrInvalidConfig, c.Height, c.MinHeight, c.MaxHeight)
	case c.MaxLevel < 1:
		return fmt.Errorf("%w: max level %d", ErrInvalidConfig, c.MaxLevel)
	case c.LinesPerLevel < 1:
		return fmt.Errorf("%w: lines per level %d", ErrInvalidConfig, c.LinesPerLevel)
	case c.MinSpeed <= 0 || c.MaxSpeed < c.MinSpeed:
		return fmt.Errorf("%w: speed range [%g,%g]", ErrInvalidConfig, c.MinSpeed, c.MaxSpeed)
	case c.SpawnOffset < 4 || c.SpawnOffset > c.MinHeight:
		return fmt.Errorf("%w: spawn offset %d outside [4,%d]", ErrInvalidConfig, c.SpawnOffset, c.MinHeight)
	}
	return nil
}

func (c Config) WidthInRange(w int) bool {
	return w >= c.MinWidth && w <= c.MaxWidth
}

func (c Config) HeightInRange(h int) bool {
	return h >= c.MinHeight && h <= c.MaxHeight
}

// LevelFor maps cumulative cleared lines to a level, capped at MaxLevel.
func (c Config) LevelFor(lines int) int {
	return min(lines/c.LinesPerLevel+1, c.MaxLevel)
}

// DropInterval interpolates linearly from MinSpeed at level 1 to MaxSpeed at
// MaxLevel and converts drops per second into a tick interval. Scaling by
// (level-1)/(MaxLevel-1) rather than level/MaxLevel keeps level 1 at
// exactly MinSpeed, which is also the speed a reset game starts at.
func (c Config) DropInterval(level int) time.Duration {
	speed := c.MinSpeed
	if c.MaxLevel > 1 {
		frac := float64(level-1) / float64(c.MaxLevel-1)
		speed += (c.MaxSpeed - c.MinSpeed) * frac
	}
	return time.Duration(float64(time.Second) / speed)
}
