// Package config loads engine settings from defaults, an optional YAML file
// and FANOUT_* environment variables, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/hyperterse/fanout/core/observability"
)

// DefaultFile is read when no config path is given and it exists in the
// working directory.
const DefaultFile = "fanout.yaml"

// Config holds every tunable of the engine and its transports.
type Config struct {
	MaxConcurrency  int           `yaml:"max_concurrency" validate:"gte=1"`
	QueryTimeout    time.Duration `yaml:"query_timeout" validate:"gt=0"`
	DispatchTimeout time.Duration `yaml:"dispatch_timeout" validate:"gte=0"`
	MaxRows         int           `yaml:"max_rows" validate:"gte=0"`
	PoolSize        int           `yaml:"pool_size" validate:"gte=1"`
	SchemaCacheTTL  time.Duration `yaml:"schema_cache_ttl" validate:"gte=0"`

	// ProfilesPath is the YAML file connection profiles are persisted to.
	// It is ignored when RedisURL is set.
	ProfilesPath string `yaml:"profiles_path"`
	RedisURL     string `yaml:"redis_url"`

	Port      int    `yaml:"port" validate:"gte=1,lte=65535"`
	LogLevel  int    `yaml:"log_level" validate:"gte=1,lte=4"`
	LogTags   string `yaml:"log_tags"`
	RateLimit int    `yaml:"rate_limit" validate:"gte=0"`

	Observability observability.Config `yaml:"otel"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		MaxConcurrency: 4,
		QueryTimeout:   30 * time.Second,
		MaxRows:        0,
		PoolSize:       4,
		SchemaCacheTTL: 30 * time.Second,
		Port:           7766,
		LogLevel:       3,
		Observability:  observability.DefaultConfig(),
	}
}

var validate = validator.New()

// Load builds the configuration. An empty path falls back to DefaultFile
// when it exists; a named file that does not exist is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.Observability = observability.ResolveConfig(cfg.Observability)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	for _, field := range []*string{&c.ProfilesPath, &c.RedisURL, &c.Observability.OTLPEndpoint} {
		value, err := SubstituteEnvVars(*field)
		if err != nil {
			return err
		}
		*field = value
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed '%s=%s' (got %v)",
					strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag(), fe.Param(), fe.Value()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
