package config

import (
	"time"

	"github.com/dj-pearson/gym-unity-edge/internal/ratelimit"
)

// Config is the root configuration for the edge daemon.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Server    ServerConfig    `yaml:"server"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Webhooks  []WebhookConfig `yaml:"webhooks"`
	Secrets   SecretsConfig   `yaml:"secrets"`
}

type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

type ServerConfig struct {
	Listen         string        `yaml:"listen"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type RateLimitConfig struct {
	// Backend selects the counter store: "sqlite" or "redis".
	Backend    string                      `yaml:"backend"`
	SQLitePath string                      `yaml:"sqlite_path"`
	Redis      ratelimit.RedisConfig       `yaml:"redis"`
	Policies   map[string]ratelimit.Policy `yaml:"policies"`
	SweepEvery string                      `yaml:"sweep_every"`
}

type AlertsConfig struct {
	Cooldown    time.Duration `yaml:"cooldown"`
	PagerKey    string        `yaml:"pager_key"`
	ChatWebhook string        `yaml:"chat_webhook"`
	WebhookURL  string        `yaml:"webhook_url"`
}

type MonitorConfig struct {
	SlowThreshold     time.Duration `yaml:"slow_threshold"`
	CriticalThreshold time.Duration `yaml:"critical_threshold"`
	BufferSize        int           `yaml:"buffer_size"`
}

// WebhookConfig describes one inbound webhook endpoint.
type WebhookConfig struct {
	Path      string `yaml:"path"`
	Provider  string `yaml:"provider"`
	SecretRef string `yaml:"secret_ref"`
	// Header overrides the provider's default signature header.
	Header string `yaml:"header,omitempty"`
	// Algorithm and Encoding apply to the generic provider only.
	Algorithm string `yaml:"algorithm,omitempty"`
	Encoding  string `yaml:"encoding,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
	// Tolerance bounds timestamp skew for timestamped schemes, in seconds.
	Tolerance    int64    `yaml:"tolerance,omitempty"`
	MaxBodyBytes int64    `yaml:"max_body_bytes,omitempty"`
	AllowedIPs   []string `yaml:"allowed_ips,omitempty"`
	Schema       string   `yaml:"schema,omitempty"`
	RateLimit    string   `yaml:"rate_limit,omitempty"`
}

// SecretsConfig points at the secrets file holding webhook signing keys.
type SecretsConfig struct {
	Path string `yaml:"path"`
	// Locked requires the secrets file to match its recorded checksum.
	Locked bool `yaml:"locked"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "edged",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Server: ServerConfig{
			Listen:       ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			MaxBodyBytes: 1 << 20,
		},
		RateLimit: RateLimitConfig{
			Backend:    "sqlite",
			SQLitePath: "./edged.db",
			SweepEvery: "hourly",
		},
		Alerts: AlertsConfig{
			Cooldown: 5 * time.Minute,
		},
		Monitor: MonitorConfig{
			SlowThreshold:     500 * time.Millisecond,
			CriticalThreshold: time.Second,
			BufferSize:        1000,
		},
	}
}
