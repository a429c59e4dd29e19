package main

import (
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/mwaprotocol/mwa-go/internal/logging"
)

// Config is the demo server's runtime configuration, loaded from
// environment variables via cleanenv.
type Config struct {
	ListenAddr  string `env:"MWA_LISTEN_ADDR" env-default:":8137"`
	LogFormat   string `env:"MWA_LOG_FORMAT" env-default:"json"`
	LogLevel    string `env:"MWA_LOG_LEVEL" env-default:"info"`
	MetricsAddr string `env:"MWA_METRICS_ADDR" env-default:":9137"`
}

func loadConfig() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) logger() logging.Logger {
	return logging.New(logging.Config{Format: c.LogFormat, Level: logging.Level(c.LogLevel)})
}
