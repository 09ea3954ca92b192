package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/jazzify/rhythmcore/internal/stage"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath   string     `env:"DB_PATH" envDefault:"data/rhythmcore.db"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	RedisURL string     `env:"REDIS_URL"`

	// AdminTokenHash is the bcrypt hash of the bearer token that guards stage
	// editing. Empty disables the admin routes.
	AdminTokenHash string   `env:"ADMIN_TOKEN_HASH"`
	CORSOrigins    []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	TickInterval   time.Duration `env:"TICK_INTERVAL" envDefault:"4ms"`
	JudgmentWindow time.Duration `env:"JUDGMENT_WINDOW" envDefault:"200ms"`
	PerfectWindow  time.Duration `env:"PERFECT_WINDOW" envDefault:"50ms"`

	AudioEnabled bool `env:"AUDIO_ENABLED" envDefault:"false"`
	SeedStages   bool `env:"SEED_STAGES" envDefault:"true"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL must be positive, got %s", c.TickInterval)
	}
	if c.PerfectWindow <= 0 || c.JudgmentWindow < c.PerfectWindow {
		return fmt.Errorf("need 0 < PERFECT_WINDOW (%s) <= JUDGMENT_WINDOW (%s)", c.PerfectWindow, c.JudgmentWindow)
	}
	return nil
}

// Windows returns the judgment timing the sessions run with.
func (c *Config) Windows() stage.Windows {
	return stage.Windows{
		Judgment: c.JudgmentWindow,
		Perfect:  c.PerfectWindow,
		Tick:     c.TickInterval,
	}
}
