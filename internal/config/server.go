package config

import "github.com/caarlos0/env/v11"

type ServerConfig struct {
	PostgresDSN string `env:"POSTGRES_DSN"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`

	AdminAPIKey string `env:"ADMIN_API_KEY"`

	// DevMode runs against the in-memory store binding; no Postgres needed.
	DevMode bool `env:"DEV_MODE" envDefault:"false"`

	NotifyWebhookURL string `env:"NOTIFY_WEBHOOK_URL"`
}

func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	err := env.Parse(&cfg)
	return cfg, err
}
