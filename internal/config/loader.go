package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and
// environment variables. If configFile is empty, railguard.yaml/.yml is
// searched in standard locations. The search requires an explicit YAML
// extension so the binary itself is never matched.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		viper.SetConfigName("railguard")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: RAILGUARD_SERVER_ADDR etc.
	viper.SetEnvPrefix("RAILGUARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a railguard config
// file with an explicit YAML extension.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".railguard"),
		"/etc/railguard",
	}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "railguard"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds nested config keys for environment overrides.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.addr")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("storage.backend")
	_ = viper.BindEnv("storage.path")
	_ = viper.BindEnv("resolver.cache_size")
	_ = viper.BindEnv("pipeline.fail_open")
	_ = viper.BindEnv("pipeline.step_timeout")
	_ = viper.BindEnv("seed.file")
	_ = viper.BindEnv("seed.watch")
	_ = viper.BindEnv("tracing.enabled")
	_ = viper.BindEnv("dev_mode")
	// guardrails.remote is an array; use the config file for it.
}

// LoadConfig reads the configuration file, applies environment
// overrides, sets defaults, and validates the result.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file: run on env vars and defaults.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// ConfigFileUsed returns the path of the loaded configuration file, or
// empty when running on environment variables only.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
