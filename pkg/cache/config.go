package cache

import (
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rxtech-lab/histcache/pkg/errors"
	"github.com/rxtech-lab/histcache/pkg/provider"
)

// FieldPolicy selects how Update treats a cached column that has no vendor
// code in the field lookup.
type FieldPolicy string

const (
	// FieldPolicyAbort fails the whole batch before any session is opened.
	FieldPolicyAbort FieldPolicy = "abort"
	// FieldPolicySkip skips only the offending instrument.
	FieldPolicySkip FieldPolicy = "skip"
)

// Config wires a Manager: vendor binding, store location and naming files.
type Config struct {
	Provider    provider.Config `yaml:"provider"`
	DataDir     string          `yaml:"data_dir" validate:"required"`
	NamingDir   string          `yaml:"naming_dir" validate:"required"`
	FieldPolicy FieldPolicy     `yaml:"field_policy" validate:"omitempty,oneof=abort skip"`
}

func (c *Config) applyDefaults() {
	if c.FieldPolicy == "" {
		c.FieldPolicy = FieldPolicyAbort
	}
}

// Validate checks the configuration, including the nested provider section.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid configuration", err)
	}

	return nil
}

// LoadConfig reads a YAML config file, expands ${VAR} environment variables,
// applies defaults and validates the result.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config file %s", path)
	}

	expanded := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse config yaml", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}
