// Package config loads service configuration from the environment, optionally
// overlaid by a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration.
type Config struct {
	DatabasePath   string   `yaml:"database_path"`
	Port           string   `yaml:"port"`
	BindIP         string   `yaml:"bind_ip"`
	Debug          bool     `yaml:"debug"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	NotifyFrom     string   `yaml:"notify_from"`
	AuditSource    string   `yaml:"audit_source"`
}

// Load reads the environment, with defaults for anything unset.
func Load() *Config {
	return &Config{
		DatabasePath:   getEnv("DATABASE_PATH", "woodland-review.db"),
		Port:           getEnv("PORT", "8080"),
		BindIP:         getEnv("BIND_IP", "0.0.0.0"),
		Debug:          getEnvBool("DEBUG", false),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		NotifyFrom:     getEnv("NOTIFY_FROM", "noreply@woodland-review.local"),
		AuditSource:    getEnv("AUDIT_SOURCE", "woodland-officer-review"),
	}
}

// LoadFile loads the environment and then overlays the YAML file at path.
// Keys absent from the file keep their environment value.
func LoadFile(path string) (*Config, error) {
	cfg := Load()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return c.BindIP + ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
