package config

import (
	"encoding/json"
	"fmt"
	"os"
)

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// EngineConfig names one engine provider. Path points at the shared object
// to load; an empty Path selects a builtin (in-process) engine registered
// under Name. Symbol overrides the factory symbol and is rarely needed.
type EngineConfig struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Symbol string `json:"symbol"`
}

type Config struct {
	Listen            string         `json:"listen"`
	HealthPort        int            `json:"health_port"`
	Engines           []EngineConfig `json:"engines"`
	Redis             RedisConfig    `json:"redis"`
	RequestTimeout    int            `json:"request_timeout"`
	MaxDocumentSizeMB int            `json:"max_document_size_mb"`
	CacheTTLSeconds   int            `json:"cache_ttl_seconds"`
}

func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	setDefaults(&config)

	return &config, nil
}

func validateConfig(config *Config) error {
	if len(config.Engines) == 0 {
		return fmt.Errorf("at least one engine must be configured")
	}

	seen := make(map[string]bool)
	for i, ec := range config.Engines {
		if ec.Name == "" {
			return fmt.Errorf("engines[%d]: name is required", i)
		}
		if seen[ec.Name] {
			return fmt.Errorf("engines[%d]: duplicate engine name '%s'", i, ec.Name)
		}
		seen[ec.Name] = true
		if ec.Path == "" && ec.Symbol != "" {
			return fmt.Errorf("engines[%d]: symbol is only valid with a library path", i)
		}
	}

	return nil
}

func setDefaults(config *Config) {
	if config.Listen == "" {
		config.Listen = ":8143"
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 30
	}
	if config.MaxDocumentSizeMB == 0 {
		config.MaxDocumentSizeMB = 10
	}
	if config.CacheTTLSeconds == 0 {
		config.CacheTTLSeconds = 300
	}
}

// CacheEnabled reports whether a Redis result cache is configured.
func (c *Config) CacheEnabled() bool {
	return c.Redis.Addr != ""
}

// EngineNamed returns the configuration for the named engine, or nil.
func (c *Config) EngineNamed(name string) *EngineConfig {
	for i := range c.Engines {
		if c.Engines[i].Name == name {
			return &c.Engines[i]
		}
	}
	return nil
}
