// Package config loads jump host tool settings from an optional YAML file
// and JUMPHOST_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// DefaultAddressWait bounds the wait for a new jump host to get its public
// address.
const DefaultAddressWait = 2 * time.Minute

// Config holds tool settings. Command-line flags are applied on top by the
// caller.
type Config struct {
	Profile      string        `yaml:"profile"`
	Region       string        `yaml:"region"`
	LogLevel     string        `yaml:"log_level" validate:"oneof=trace debug info warn error disabled"`
	InstanceType string        `yaml:"instance_type" validate:"required"`
	KeyDir       string        `yaml:"key_dir"`
	AddressWait  time.Duration `yaml:"address_wait" validate:"min=0"`
	Image        ImageConfig   `yaml:"image"`
}

// ImageConfig selects the jump host AMI family.
type ImageConfig struct {
	Owner        string `yaml:"owner" validate:"required"`
	NamePattern  string `yaml:"name_pattern" validate:"required"`
	Architecture string `yaml:"architecture" validate:"required,oneof=x86_64 arm64"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		LogLevel:     "info",
		InstanceType: "t3.small",
		AddressWait:  DefaultAddressWait,
		Image: ImageConfig{
			Owner:        "amazon",
			NamePattern:  "al2023-ami-2023.*-x86_64",
			Architecture: "x86_64",
		},
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Profile = getEnv("JUMPHOST_PROFILE", c.Profile)
	c.Region = getEnv("JUMPHOST_REGION", c.Region)
	c.LogLevel = getEnv("JUMPHOST_LOG_LEVEL", c.LogLevel)
	c.InstanceType = getEnv("JUMPHOST_INSTANCE_TYPE", c.InstanceType)
	c.KeyDir = getEnv("JUMPHOST_KEY_DIR", c.KeyDir)
	if v := os.Getenv("JUMPHOST_ADDRESS_WAIT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("JUMPHOST_ADDRESS_WAIT: %w", err)
		}
		c.AddressWait = d
	}
	return nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s fails %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
