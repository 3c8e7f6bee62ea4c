package config

import (
	"errors"
	"strings"
	"time"

	libconfig "chargesync/libs/config"
)

// Config defines station agent configuration.
type Config struct {
	Backend struct {
		URL     string        `yaml:"url" env:"STATION_BACKEND_URL"`
		Timeout time.Duration `yaml:"timeout" env:"STATION_BACKEND_TIMEOUT"`
	} `yaml:"backend"`
	Redis struct {
		Addr     string `yaml:"addr" env:"STATION_REDIS_ADDR"`
		Password string `yaml:"password" env:"STATION_REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"STATION_REDIS_DB"`
	} `yaml:"redis"`
	Station struct {
		ID string `yaml:"id" env:"STATION_ID"`
	} `yaml:"station"`
	Polling struct {
		Interval time.Duration `yaml:"interval" env:"STATION_POLL_INTERVAL"`
		Timeout  time.Duration `yaml:"timeout" env:"STATION_POLL_TIMEOUT"`
	} `yaml:"polling"`
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.Backend.URL = "http://localhost:8080"
	cfg.Backend.Timeout = 10 * time.Second
	cfg.Polling.Interval = 30 * time.Second
	cfg.Polling.Timeout = 10 * time.Second

	if err := libconfig.Load(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Backend.URL) == "" {
		return nil, errors.New("config: backend url required")
	}
	if strings.TrimSpace(cfg.Station.ID) == "" {
		return nil, errors.New("config: station id required")
	}
	return cfg, nil
}
