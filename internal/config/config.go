package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Schema struct {
		Source string `yaml:"source"`
		TTL    string `yaml:"ttl"`
		// Root resolves relative file sources.
		Root string `yaml:"root"`
		// AllowedSources lists the sources clients may request besides Source.
		// Entries ending in "*" match by prefix.
		AllowedSources []string `yaml:"allowed_sources"`
	} `yaml:"schema"`
	Report struct {
		Endpoint string `yaml:"endpoint"`
		Timeout  string `yaml:"timeout"`
	} `yaml:"report"`
	Questionnaire struct {
		StrictRequired bool `yaml:"strict_required"`
		// SessionIdleTTL evicts sessions untouched for longer; "0s" disables it.
		SessionIdleTTL string `yaml:"session_idle_ttl"`
	} `yaml:"questionnaire"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
}

// Load reads YAML config from path and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// ApplyEnv overrides file values with non-empty environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	overrides := []struct {
		key string
		dst *string
	}{
		{"PORT", &c.Server.Port},
		{"REDIS_ADDR", &c.Redis.Addr},
		{"POSTGRES_URL", &c.Postgres.URL},
		{"SQLITE_PATH", &c.SQLite.Path},
		{"SCHEMA_SOURCE", &c.Schema.Source},
		{"REPORT_ENDPOINT", &c.Report.Endpoint},
		{"LOG_LEVEL", &c.Log.Level},
	}
	for _, o := range overrides {
		if v, ok := lookup(o.key); ok && strings.TrimSpace(v) != "" {
			*o.dst = strings.TrimSpace(v)
		}
	}
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
