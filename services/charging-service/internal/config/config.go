package config

import (
	"fmt"
	"strings"

	libconfig "chargesync/libs/config"
)

// Config defines charging service configuration. An empty DSN selects the
// in-memory store (dev mode).
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"CHARGING_HTTP_PORT"`
	} `yaml:"http"`
	Database struct {
		DSN string `yaml:"dsn" env:"CHARGING_POSTGRES_DSN"`
	} `yaml:"database"`
	Tariff struct {
		PricePerKWh float64 `yaml:"pricePerKWh" env:"CHARGING_PRICE_PER_KWH"`
		Currency    string  `yaml:"currency" env:"CHARGING_CURRENCY"`
	} `yaml:"tariff"`
	Charging struct {
		RatedPowerKW       float64 `yaml:"ratedPowerKW" env:"CHARGING_RATED_POWER_KW"`
		BatteryCapacityKWh float64 `yaml:"batteryCapacityKWh" env:"CHARGING_BATTERY_CAPACITY_KWH"`
	} `yaml:"charging"`
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Port = "8080"
	cfg.Tariff.PricePerKWh = 0.30
	cfg.Tariff.Currency = "EUR"
	cfg.Charging.RatedPowerKW = 22
	cfg.Charging.BatteryCapacityKWh = 60

	if err := libconfig.Load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}
