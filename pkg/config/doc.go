// Package config loads typed configuration structs from environment
// variables.
//
// Configuration is declared with `env` struct tags (see
// github.com/caarlos0/env) and loaded with the generic Load function. A
// local .env file, when present, is read once per process before the first
// parse, which keeps development setups out of shell profiles without
// affecting production deployments.
//
//	type GatewayConfig struct {
//		APIKey      string `env:"PADDLE_API_KEY,required"`
//		Environment string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
//	}
//
//	var cfg GatewayConfig
//	config.MustLoad(&cfg)
//
// Errors are reported through sentinel values (ErrParsingConfig,
// ErrNilPointer) joined with the underlying parser error, so callers can use
// errors.Is for classification.
package config
