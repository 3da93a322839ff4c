package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/cartridge/valuerl/internal/learner"
)

// EnvPrefix is the prefix for environment variable overrides, e.g.
// VALUERL_AGENT_BATCH_SIZE.
const EnvPrefix = "VALUERL"

// Config holds all trainer configuration
type Config struct {
	// Agent settings
	Variant  string `mapstructure:"variant"`
	Capacity int    `mapstructure:"capacity"`
	Seed     int64  `mapstructure:"seed"`

	// Episode management
	Episodes       int `mapstructure:"episodes"`
	MaxSteps       int `mapstructure:"max_steps"`
	CorridorLength int `mapstructure:"corridor_length"`

	// Status surfaces
	HTTPAddr    string `mapstructure:"http_addr"`
	GRPCAddr    string `mapstructure:"grpc_addr"`
	NATSURL     string `mapstructure:"nats_url"`
	NATSSubject string `mapstructure:"nats_subject"`
	ChartPath   string `mapstructure:"chart_path"`

	// Logging
	LogLevel string `mapstructure:"log_level"`

	Agent Hyperparameters `mapstructure:"agent"`
}

// Default returns a config with sensible defaults
func Default() *Config {
	return &Config{
		Variant:        learner.DQN.String(),
		Capacity:       100000,
		Seed:           0,  // seeded from the clock
		Episodes:       -1, // unlimited
		MaxSteps:       500,
		CorridorLength: 8,
		NATSSubject:    "valuerl.training",
		LogLevel:       "info",
		Agent:          DefaultHyperparameters(learner.DQN),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	variant, err := learner.ParseVariant(c.Variant)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if c.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive", ErrConfiguration)
	}
	if c.Episodes == 0 || c.Episodes < -1 {
		return fmt.Errorf("%w: episodes must be positive or -1 for unlimited", ErrConfiguration)
	}
	if c.MaxSteps <= 0 {
		return fmt.Errorf("%w: max_steps must be positive", ErrConfiguration)
	}
	if c.CorridorLength < 2 {
		return fmt.Errorf("%w: corridor_length must be at least 2", ErrConfiguration)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level: %v", ErrConfiguration, err)
	}
	if err := c.Agent.Validate(variant); err != nil {
		return err
	}
	if c.Capacity < c.Agent.BurnInPeriod {
		return fmt.Errorf("%w: capacity (%d) is smaller than burn_in_period (%d); learning would never start",
			ErrConfiguration, c.Capacity, c.Agent.BurnInPeriod)
	}
	return nil
}

// ParsedVariant returns the learning rule named by Variant.
func (c *Config) ParsedVariant() learner.Variant {
	v, _ := learner.ParseVariant(c.Variant)
	return v
}

// Load builds a Config from defaults, an optional config file named by the
// "config" key, VALUERL_* environment variables and any flags bound to v.
// Agent defaults follow the selected variant.
func Load(v *viper.Viper) (*Config, error) {
	for key, value := range Default().asMap() {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	variant, err := learner.ParseVariant(v.GetString("variant"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	for key, value := range DefaultHyperparameters(variant).asMap() {
		v.SetDefault("agent."+key, value)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) asMap() map[string]any {
	return map[string]any{
		"variant":         c.Variant,
		"capacity":        c.Capacity,
		"seed":            c.Seed,
		"episodes":        c.Episodes,
		"max_steps":       c.MaxSteps,
		"corridor_length": c.CorridorLength,
		"http_addr":       c.HTTPAddr,
		"grpc_addr":       c.GRPCAddr,
		"nats_url":        c.NATSURL,
		"nats_subject":    c.NATSSubject,
		"chart_path":      c.ChartPath,
		"log_level":       c.LogLevel,
	}
}
