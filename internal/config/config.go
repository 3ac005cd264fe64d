package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Core
	BotToken    string `env:"BOT_TOKEN,required"`
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Animind backend
	BackendURL string `env:"BACKEND_URL" envDefault:"http://localhost:8008"`

	// OAuth callback server
	CallbackBaseURL string `env:"CALLBACK_BASE_URL" envDefault:"http://localhost:3000"`
	Port            int    `env:"PORT" envDefault:"3000"`

	// Bot behavior
	DropPendingUpdates bool `env:"BOT_DROP_PENDING_UPDATES" envDefault:"false"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// CallbackURL is the full redirect target registered with the OAuth
// provider.
func (c *Config) CallbackURL() string {
	return c.CallbackBaseURL + "/auth/callback"
}
