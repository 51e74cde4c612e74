package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file, interpolating ${VAR}
// environment references and applying defaults before validation.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyDefaults(&cfg)

	// Resolve the secrets path relative to the config file so the pair can
	// move together.
	if cfg.Secrets.Path != "" && !filepath.IsAbs(cfg.Secrets.Path) {
		cfg.Secrets.Path = filepath.Join(filepath.Dir(absPath), cfg.Secrets.Path)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// DiscoverConfigPath finds the config file by checking standard locations.
// Priority order: $EDGED_CONFIG, ~/.config/edged/config.yaml, /etc/edged/config.yaml, ./config.yaml
func DiscoverConfigPath() (string, error) {
	if path := os.Getenv("EDGED_CONFIG"); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(homeDir, ".config", "edged", "config.yaml")
		if _, err := os.Stat(userConfig); err == nil {
			return userConfig, nil
		}
	}

	systemConfig := "/etc/edged/config.yaml"
	if _, err := os.Stat(systemConfig); err == nil {
		return systemConfig, nil
	}

	legacyConfig := "./config.yaml"
	if _, err := os.Stat(legacyConfig); err == nil {
		return legacyConfig, nil
	}

	return "", fmt.Errorf("no config found (checked: $EDGED_CONFIG, ~/.config/edged, /etc/edged, ./config.yaml)")
}

func applyDefaults(cfg *Config) {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}

	if cfg.Server.Listen == "" {
		cfg.Server.Listen = defaults.Server.Listen
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaults.Server.ReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaults.Server.WriteTimeout
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = defaults.Server.MaxBodyBytes
	}

	if cfg.RateLimit.Backend == "" {
		cfg.RateLimit.Backend = defaults.RateLimit.Backend
	}
	if cfg.RateLimit.SQLitePath == "" {
		cfg.RateLimit.SQLitePath = defaults.RateLimit.SQLitePath
	}
	if cfg.RateLimit.SweepEvery == "" {
		cfg.RateLimit.SweepEvery = defaults.RateLimit.SweepEvery
	}

	if cfg.Alerts.Cooldown == 0 {
		cfg.Alerts.Cooldown = defaults.Alerts.Cooldown
	}

	if cfg.Monitor.SlowThreshold == 0 {
		cfg.Monitor.SlowThreshold = defaults.Monitor.SlowThreshold
	}
	if cfg.Monitor.CriticalThreshold == 0 {
		cfg.Monitor.CriticalThreshold = defaults.Monitor.CriticalThreshold
	}
	if cfg.Monitor.BufferSize == 0 {
		cfg.Monitor.BufferSize = defaults.Monitor.BufferSize
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

var validProviders = map[string]bool{
	"stripe":   true,
	"mailgun":  true,
	"postmark": true,
	"twilio":   true,
	"generic":  true,
}

func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	switch cfg.RateLimit.Backend {
	case "sqlite":
		if cfg.RateLimit.SQLitePath == "" {
			return fmt.Errorf("rate_limit.sqlite_path is required for the sqlite backend")
		}
	case "redis":
		if cfg.RateLimit.Redis.Addr == "" {
			return fmt.Errorf("rate_limit.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("rate_limit.backend must be sqlite or redis (got %q)", cfg.RateLimit.Backend)
	}

	for name, policy := range cfg.RateLimit.Policies {
		if policy.MaxRequests <= 0 {
			return fmt.Errorf("rate_limit.policies.%s.max_requests must be positive", name)
		}
		if policy.Window <= 0 {
			return fmt.Errorf("rate_limit.policies.%s.window must be positive", name)
		}
	}

	seen := make(map[string]bool, len(cfg.Webhooks))
	for i, hook := range cfg.Webhooks {
		if hook.Path == "" {
			return fmt.Errorf("webhooks[%d].path is required", i)
		}
		if !strings.HasPrefix(hook.Path, "/") {
			return fmt.Errorf("webhooks[%d].path must start with / (got %q)", i, hook.Path)
		}
		if seen[hook.Path] {
			return fmt.Errorf("webhooks[%d]: duplicate path %q", i, hook.Path)
		}
		seen[hook.Path] = true

		if !validProviders[hook.Provider] {
			return fmt.Errorf("webhooks[%d].provider must be one of: stripe, mailgun, postmark, twilio, generic (got %q)", i, hook.Provider)
		}
		if hook.SecretRef == "" {
			return fmt.Errorf("webhooks[%d].secret_ref is required", i)
		}
		// Unresolved env vars in secret refs mean the secret is absent, not
		// literally "${STRIPE_SECRET}".
		if envVarPattern.MatchString(hook.SecretRef) {
			matches := envVarPattern.FindStringSubmatch(hook.SecretRef)
			return fmt.Errorf("webhooks[%d].secret_ref: environment variable ${%s} is not set", i, matches[1])
		}
		if hook.Tolerance < 0 {
			return fmt.Errorf("webhooks[%d].tolerance must not be negative", i)
		}
		switch hook.Algorithm {
		case "", "sha1", "sha256", "sha512":
		default:
			return fmt.Errorf("webhooks[%d].algorithm must be sha1, sha256, or sha512 (got %q)", i, hook.Algorithm)
		}
		switch hook.Encoding {
		case "", "hex", "base64":
		default:
			return fmt.Errorf("webhooks[%d].encoding must be hex or base64 (got %q)", i, hook.Encoding)
		}
	}

	if len(cfg.Webhooks) > 0 && cfg.Secrets.Path == "" {
		return fmt.Errorf("secrets.path is required when webhooks are configured")
	}

	return nil
}
