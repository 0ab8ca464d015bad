package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Backend struct {
		URL string `yaml:"url"`
	} `yaml:"backend"`
	Quiz struct {
		SetID               string `yaml:"setId"`
		QuestionSeconds     int    `yaml:"questionSeconds"`
		IntermissionSeconds int    `yaml:"intermissionSeconds"`
	} `yaml:"quiz"`
	Store struct {
		Backend string `yaml:"backend"` // memory, file, or redis
		Dir     string `yaml:"dir"`
	} `yaml:"store"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
}

// Load reads YAML config from path. A missing file yields defaults so
// the client runs with flags alone.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// Seconds returns raw when positive, otherwise the fallback budget.
func Seconds(raw, fallback int) int {
	if raw > 0 {
		return raw
	}
	return fallback
}
