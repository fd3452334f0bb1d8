package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Store modes of the game client.
const (
	StoreMemory = "memory"
	StoreRemote = "remote"
)

// Question sources of the game client.
const (
	QuestionsProvider = "provider"
	QuestionsService  = "service"
)

// Client configures cmd/partyquiz.
type Client struct {
	Env          string        `env:"APP_ENV" envDefault:"development"`
	StoreMode    string        `env:"PARTYQUIZ_STORE" envDefault:"remote"`
	QuestionsVia string        `env:"PARTYQUIZ_QUESTIONS" envDefault:"provider"`
	APIBaseURL   string        `env:"PARTYQUIZ_API_URL" envDefault:"http://localhost:8080"`
	Platform     string        `env:"PARTYQUIZ_PLATFORM" envDefault:"native"`
	PollInterval time.Duration `env:"PARTYQUIZ_POLL_INTERVAL" envDefault:"3s"`
	Debounce     time.Duration `env:"PARTYQUIZ_DEBOUNCE"`
	ProfilePath  string        `env:"PARTYQUIZ_PROFILE" envDefault:"partyquiz.yaml"`
	HTTPTimeout  time.Duration `env:"PARTYQUIZ_HTTP_TIMEOUT" envDefault:"10s"`

	Provider Provider
}

// LoadClient parses the client environment and checks the enumerations.
func LoadClient() (*Client, error) {
	cfg := &Client{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse client config: %w", err)
	}
	switch cfg.StoreMode {
	case StoreMemory, StoreRemote:
	default:
		return nil, fmt.Errorf("parse client config: PARTYQUIZ_STORE must be %q or %q, got %q", StoreMemory, StoreRemote, cfg.StoreMode)
	}
	switch cfg.QuestionsVia {
	case QuestionsProvider:
	case QuestionsService:
		if cfg.StoreMode != StoreRemote {
			return nil, fmt.Errorf("parse client config: PARTYQUIZ_QUESTIONS=%s needs PARTYQUIZ_STORE=%s", QuestionsService, StoreRemote)
		}
	default:
		return nil, fmt.Errorf("parse client config: PARTYQUIZ_QUESTIONS must be %q or %q, got %q", QuestionsProvider, QuestionsService, cfg.QuestionsVia)
	}
	switch cfg.Platform {
	case "native", "web":
	default:
		return nil, fmt.Errorf("parse client config: PARTYQUIZ_PLATFORM must be native or web, got %q", cfg.Platform)
	}
	return cfg, nil
}
