package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Store       StoreConfig               `yaml:"store"`
	NATS        NATSConfig                `yaml:"nats"`
	Accelerator string                    `yaml:"accelerator"`
	Trails      TrailsConfig              `yaml:"trails"`
	Admission   AdmissionConfig           `yaml:"admission"`
	Roles       map[string]RoleDefinition `yaml:"roles"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type NATSConfig struct {
	Port int `yaml:"port"`
}

type TrailsConfig struct {
	DecayRate     float64 `yaml:"decay_rate"`
	DecayFloor    float64 `yaml:"decay_floor"`
	DecaySchedule string  `yaml:"decay_schedule"`
}

type AdmissionConfig struct {
	SoftLimit       int           `yaml:"soft_limit"`
	HardLimit       int           `yaml:"hard_limit"`
	MaxDepth        int           `yaml:"max_depth"`
	AutoProcess     bool          `yaml:"auto_process"`
	ProcessInterval time.Duration `yaml:"process_interval"`
	RootRole        string        `yaml:"root_role"`
}

// RoleDefinition describes one agent role: how deep its lineage may
// recurse and which roles it is allowed to spawn ("*" for any).
type RoleDefinition struct {
	Description string   `yaml:"description"`
	MaxDepth    int      `yaml:"max_depth"`
	CanSpawn    []string `yaml:"can_spawn"`
}

func defaults() Config {
	return Config{
		Store: StoreConfig{
			Path: "data/hivemind.db",
		},
		NATS: NATSConfig{
			Port: 4222,
		},
		Accelerator: "native",
		Trails: TrailsConfig{
			DecayRate:     0.1,
			DecayFloor:    0.01,
			DecaySchedule: `{"kind":"interval","interval_ms":60000}`,
		},
		Admission: AdmissionConfig{
			SoftLimit:       50,
			HardLimit:       100,
			MaxDepth:        3,
			AutoProcess:     true,
			ProcessInterval: 10 * time.Second,
			RootRole:        "coordinator",
		},
		Roles: map[string]RoleDefinition{
			"coordinator": {Description: "lineage root", MaxDepth: 3, CanSpawn: []string{"*"}},
			"worker":      {Description: "task executor", MaxDepth: 2, CanSpawn: []string{"worker"}},
		},
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("HIVEMIND_CONFIG")
	if path == "" {
		path = "config/hivemind.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults + env
	} else {
		// Expand environment variables in YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Admission.HardLimit <= 0 {
		return fmt.Errorf("admission.hard_limit must be positive")
	}
	if c.Admission.SoftLimit > c.Admission.HardLimit {
		return fmt.Errorf("admission.soft_limit exceeds hard_limit")
	}
	if c.Trails.DecayRate <= 0 || c.Trails.DecayRate >= 1 {
		return fmt.Errorf("trails.decay_rate must be in (0,1)")
	}
	switch c.Accelerator {
	case "", "native", "reference":
	default:
		return fmt.Errorf("unknown accelerator backend: %s", c.Accelerator)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("HIVEMIND_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("HIVEMIND_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := os.Getenv("HIVEMIND_ACCELERATOR"); v != "" {
		cfg.Accelerator = v
	}
	if v := os.Getenv("HIVEMIND_SOFT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Admission.SoftLimit = n
		}
	}
	if v := os.Getenv("HIVEMIND_HARD_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Admission.HardLimit = n
		}
	}
	if v := os.Getenv("HIVEMIND_MAX_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Admission.MaxDepth = n
		}
	}
}
