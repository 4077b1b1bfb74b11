// Package config provides configuration types and loading for Railguard.
package config

import "time"

// Config is the top-level Railguard configuration.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Storage selects the policy/attachment persistence backend.
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Resolver configures policy resolution.
	Resolver ResolverConfig `yaml:"resolver" mapstructure:"resolver"`

	// Pipeline configures guardrail pipeline execution.
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`

	// Guardrails configures the builtin and remote guardrails registered
	// at startup.
	Guardrails GuardrailsConfig `yaml:"guardrails" mapstructure:"guardrails"`

	// Seed optionally loads policies and attachments from a YAML file.
	Seed SeedConfig `yaml:"seed" mapstructure:"seed"`

	// Tracing configures OpenTelemetry span export.
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`

	// DevMode enables development features (verbose logging, etc).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server listener.
type ServerConfig struct {
	// Addr is the listen address. Default: "127.0.0.1:8600".
	Addr string `yaml:"addr" mapstructure:"addr" validate:"required"`
	// LogLevel is one of debug, info, warn, error. Default: "info".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Backend is "memory" or "sqlite". Default: "memory".
	Backend string `yaml:"backend" mapstructure:"backend" validate:"required,oneof=memory sqlite"`
	// Path is the SQLite database file. Required for the sqlite backend.
	Path string `yaml:"path" mapstructure:"path" validate:"required_if=Backend sqlite"`
}

// ResolverConfig configures policy resolution.
type ResolverConfig struct {
	// CacheSize bounds the resolution LRU cache. Default: 1024.
	CacheSize int `yaml:"cache_size" mapstructure:"cache_size" validate:"omitempty,min=1"`
}

// PipelineConfig configures guardrail pipeline execution.
type PipelineConfig struct {
	// FailOpen treats guardrail technical failures as passes instead of
	// blocks. Default: false (fail closed).
	FailOpen bool `yaml:"fail_open" mapstructure:"fail_open"`
	// StepTimeout bounds each guardrail invocation. Default: "10s".
	StepTimeout time.Duration `yaml:"step_timeout" mapstructure:"step_timeout"`
}

// GuardrailsConfig configures the guardrails registered at startup.
type GuardrailsConfig struct {
	// PII configures the builtin PII detector.
	PII PIIConfig `yaml:"pii" mapstructure:"pii"`
	// Blocklist configures the builtin keyword blocklist.
	Blocklist BlocklistConfig `yaml:"blocklist" mapstructure:"blocklist"`
	// Remote lists HTTP guardrail endpoints to register.
	Remote []RemoteGuardrailConfig `yaml:"remote" mapstructure:"remote" validate:"omitempty,dive"`
}

// PIIConfig configures the builtin PII detector.
type PIIConfig struct {
	// Enabled registers the detector under the name "pii". Default: true.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Redact replaces detections instead of flagging the request.
	Redact bool `yaml:"redact" mapstructure:"redact"`
	// Patterns restricts detection to the named builtin patterns.
	// Empty means all.
	Patterns []string `yaml:"patterns" mapstructure:"patterns"`
}

// BlocklistConfig configures the builtin keyword blocklist.
type BlocklistConfig struct {
	// Enabled registers the blocklist under the name "blocklist".
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Keywords are matched case-insensitively.
	Keywords []string `yaml:"keywords" mapstructure:"keywords"`
}

// RemoteGuardrailConfig configures one remote HTTP guardrail.
type RemoteGuardrailConfig struct {
	// Name is the registry name the guardrail is looked up by.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`
	// URL is the invocation endpoint.
	URL string `yaml:"url" mapstructure:"url" validate:"required,url"`
	// Timeout bounds each invocation. Default: "10s".
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// SeedConfig configures declarative policy loading.
type SeedConfig struct {
	// File is a YAML file of policies and attachments applied at boot.
	File string `yaml:"file" mapstructure:"file"`
	// Watch re-applies the file on change. Default: false.
	Watch bool `yaml:"watch" mapstructure:"watch"`
}

// TracingConfig configures OpenTelemetry span export.
type TracingConfig struct {
	// Enabled turns on span export to stdout. Default: false.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// SetDefaults fills in defaults for unset optional fields.
func (c *Config) SetDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8600"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	if c.Resolver.CacheSize == 0 {
		c.Resolver.CacheSize = 1024
	}
	if c.Pipeline.StepTimeout == 0 {
		c.Pipeline.StepTimeout = 10 * time.Second
	}
	for i := range c.Guardrails.Remote {
		if c.Guardrails.Remote[i].Timeout == 0 {
			c.Guardrails.Remote[i].Timeout = 10 * time.Second
		}
	}
}

// SetDevDefaults applies permissive development defaults when DevMode is set.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	c.Server.LogLevel = "debug"
	if !c.Guardrails.PII.Enabled && !c.Guardrails.Blocklist.Enabled && len(c.Guardrails.Remote) == 0 {
		c.Guardrails.PII.Enabled = true
	}
}
