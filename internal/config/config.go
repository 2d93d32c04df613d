// Package config loads the coordinator's YAML configuration file and
// applies environment-variable overrides, mirroring the teacher's
// LoadTeamsConfig convention for ambient settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every ambient knob the kernel needs; everything else
// (auth, storage driver, transport credentials) is a collaborator concern.
type Config struct {
	Port            int           `yaml:"port"`
	DBPath          string        `yaml:"db_path"`
	NATSUrl         string        `yaml:"nats_url"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ClaimLeaseTTL   time.Duration `yaml:"claim_lease_ttl"`
	HeartbeatWindow time.Duration `yaml:"heartbeat_window"`
	StaleThreshold  time.Duration `yaml:"stale_threshold"`
	PlanStaleWindow time.Duration `yaml:"plan_stale_window"`
	SchedulerTick   time.Duration `yaml:"scheduler_tick"`
	StaleCheckTick  time.Duration `yaml:"stale_check_tick"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout"`
}

// Defaults returns the kernel's baseline configuration, matching the
// thresholds spec.md §5 names explicitly.
func Defaults() Config {
	return Config{
		Port:            8080,
		DBPath:          "./coordinator.db",
		ClaimLeaseTTL:   15 * time.Minute,
		HeartbeatWindow: 90 * time.Second,
		StaleThreshold:  5 * time.Minute,
		PlanStaleWindow: 15 * time.Minute,
		SchedulerTick:   30 * time.Second,
		StaleCheckTick:  60 * time.Second,
		ProbeTimeout:    10 * time.Second,
	}
}

// Load reads filepath (if non-empty) over the defaults, then applies
// COORDINATORD_-prefixed environment variable overrides.
func Load(filepath string) (Config, error) {
	cfg := Defaults()

	if filepath != "" {
		data, err := os.ReadFile(filepath)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("COORDINATORD_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("COORDINATORD_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("COORDINATORD_NATS_URL"); v != "" {
		cfg.NATSUrl = v
	}
	if v := os.Getenv("COORDINATORD_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = strings.Split(v, ",")
	}
}
