package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Env holds process settings read from the environment.
type Env struct {
	Addr            string        `env:"DELIB_ADDR" envDefault:"127.0.0.1:8080"`
	BasePath        string        `env:"DELIB_BASE_PATH" envDefault:"/v0"`
	LogLevel        string        `env:"DELIB_LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"DELIB_LOG_FORMAT" envDefault:"console"`
	ShutdownTimeout time.Duration `env:"DELIB_SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// ParseEnv loads Env from environment variables.
func ParseEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return e, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}
