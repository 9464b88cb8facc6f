package e2e

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_WAIT_TIMEOUT bounds how long a scenario waits for a frame to arrive
	WaitTimeout time.Duration `envconfig:"E2E_WAIT_TIMEOUT" default:"5s"`
	// E2E_WRITE_TIMEOUT is the router's per-connection write budget
	WriteTimeout time.Duration `envconfig:"E2E_WRITE_TIMEOUT" default:"2s"`
	// E2E_PENDING_WINDOW is how long an optimistic echo may stay unconfirmed
	PendingWindow time.Duration `envconfig:"E2E_PENDING_WINDOW" default:"10s"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
