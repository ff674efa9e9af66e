package test

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config tunes the integration scenario from the environment, so the
// same test can be pushed harder on CI without editing code.
type Config struct {
	Workers    int `envconfig:"SCENARIO_WORKERS" default:"4"`
	BufferSize int `envconfig:"SCENARIO_BUFFER_SIZE" default:"100"`
	// SCENARIO_LIMIT_MESSAGES caps retained messages per room
	LimitMessages int           `envconfig:"SCENARIO_LIMIT_MESSAGES" default:"100"`
	SinkTimeout   time.Duration `envconfig:"SCENARIO_SINK_TIMEOUT" default:"3s"`
	WaitTimeout   time.Duration `envconfig:"SCENARIO_WAIT_TIMEOUT" default:"3s"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
