package config

import (
	"errors"
	"strings"
	"time"

	libconfig "chargesync/libs/config"
)

// Config defines driver agent configuration. An empty redis addr selects the
// in-process estimate channel (single-device mode).
type Config struct {
	Backend struct {
		URL     string        `yaml:"url" env:"DRIVER_BACKEND_URL"`
		Timeout time.Duration `yaml:"timeout" env:"DRIVER_BACKEND_TIMEOUT"`
	} `yaml:"backend"`
	Redis struct {
		Addr     string `yaml:"addr" env:"DRIVER_REDIS_ADDR"`
		Password string `yaml:"password" env:"DRIVER_REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"DRIVER_REDIS_DB"`
	} `yaml:"redis"`
	Vehicle struct {
		Plate      string  `yaml:"plate" env:"DRIVER_VEHICLE_PLATE"`
		InitialSoc float64 `yaml:"initialSoc" env:"DRIVER_VEHICLE_INITIAL_SOC"`
	} `yaml:"vehicle"`
	Simulation struct {
		TickInterval       time.Duration `yaml:"tickInterval" env:"DRIVER_TICK_INTERVAL"`
		PublishInterval    time.Duration `yaml:"publishInterval" env:"DRIVER_PUBLISH_INTERVAL"`
		RatedPowerKW       float64       `yaml:"ratedPowerKW" env:"DRIVER_RATED_POWER_KW"`
		BatteryCapacityKWh float64       `yaml:"batteryCapacityKWh" env:"DRIVER_BATTERY_CAPACITY_KWH"`
	} `yaml:"simulation"`
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.Backend.URL = "http://localhost:8080"
	cfg.Backend.Timeout = 10 * time.Second
	cfg.Vehicle.InitialSoc = 20
	cfg.Simulation.TickInterval = time.Second
	cfg.Simulation.PublishInterval = 2 * time.Second
	cfg.Simulation.RatedPowerKW = 22
	cfg.Simulation.BatteryCapacityKWh = 60

	if err := libconfig.Load(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Backend.URL) == "" {
		return nil, errors.New("config: backend url required")
	}
	return cfg, nil
}
