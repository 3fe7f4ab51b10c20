// Package config loads runtime configuration from the environment,
// with a .env file honored in development.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// StoreDriver selects the protocol persistence backend:
	// "postgres" in production, "memory" for local development.
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	JWTSecret string        `env:"JWT_SECRET,required"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"72h"`

	// Commission percentages applied when an order is created.
	BuyerCommissionPct  float64 `env:"BUYER_COMMISSION_PCT" envDefault:"5.90"`
	SellerCommissionPct float64 `env:"SELLER_COMMISSION_PCT" envDefault:"9.90"`

	// PollInterval is the snapshot refresh cadence advertised to
	// clients.
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"7s"`

	// VerifyCodeLimit caps code submissions per user per window.
	VerifyCodeLimit  int           `env:"VERIFY_CODE_LIMIT" envDefault:"10"`
	VerifyCodeWindow time.Duration `env:"VERIFY_CODE_WINDOW" envDefault:"1m"`

	MailFrom     string `env:"MAIL_FROM" envDefault:"no-reply@tradepost.local"`
	PlunkAPIKey  string `env:"PLUNK_API_KEY"`
	PlunkBaseURL string `env:"PLUNK_BASE_URL" envDefault:"https://api.useplunk.com/v1"`
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.StoreDriver == "postgres" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required with STORE_DRIVER=postgres")
	}
	return cfg, nil
}
