// Package config loads application configuration from environment variables
// into `env`-tagged structs.
//
// It wraps github.com/joho/godotenv and github.com/caarlos0/env/v11: the
// default .env file (when present) is loaded once per process, then the
// environment is parsed into any struct using field tags.
//
// Usage:
//
//	type LockConfig struct {
//		TTL          time.Duration `env:"LOCK_TTL" envDefault:"30s"`
//		PollInterval time.Duration `env:"LOCK_POLL_INTERVAL" envDefault:"500ms"`
//	}
//
//	var cfg LockConfig
//	config.MustLoad(&cfg)
//
// Every package in this module that talks to external infrastructure exposes
// such a Config struct so deployments are wired entirely through the
// environment.
package config
