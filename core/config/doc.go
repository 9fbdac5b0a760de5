// Package config provides type-safe environment variable loading with
// per-type caching. A .env file is loaded automatically on first use; struct
// fields are parsed with the caarlos0/env library.
//
//	type BackendConfig struct {
//		BaseURL string `env:"BACKEND_BASE_URL,required"`
//		Timeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"15s"`
//	}
//
//	var cfg BackendConfig
//	config.MustLoad(&cfg)
package config
