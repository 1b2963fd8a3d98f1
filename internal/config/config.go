// Package config loads and validates the server configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Auth       AuthConfig       `yaml:"auth"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Chain      ChainConfig      `yaml:"chain"`
	Store      StoreConfig      `yaml:"store"`
	Health     HealthConfig     `yaml:"health"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

type AuthConfig struct {
	// TokenSecret verifies access tokens issued by the identity service.
	// Usually supplied via SITEWARDEN_TOKEN_SECRET rather than the file.
	TokenSecret string `yaml:"token_secret"`

	// AdminWallets are the subjects allowed to adjudicate and dismiss
	// reports.
	AdminWallets []string `yaml:"admin_wallets"`
}

type ClassifierConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type ChainConfig struct {
	// GatewayURL is the base URL of the chain gateway sidecar holding
	// the backend signing identity.
	GatewayURL string        `yaml:"gateway_url"`
	Timeout    time.Duration `yaml:"timeout"`

	// ReportContract is the report ledger contract address.
	ReportContract string `yaml:"report_contract"`

	// RewardsContract is the rewards/ban ledger contract address.
	RewardsContract string `yaml:"rewards_contract"`
}

type StoreConfig struct {
	// Dir holds the sqlite databases (dismissal overlay, marketplace
	// catalog).
	Dir string `yaml:"dir"`
}

type HealthConfig struct {
	Path          string `yaml:"path"`
	ReadinessPath string `yaml:"readiness_path"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return LoadFromBytes(b)
}

func LoadFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "127.0.0.1:8080"
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Classifier.URL == "" {
		cfg.Classifier.URL = "http://127.0.0.1:5000/predict"
	}
	if cfg.Classifier.Timeout <= 0 {
		cfg.Classifier.Timeout = 10 * time.Second
	}
	if cfg.Chain.Timeout <= 0 {
		cfg.Chain.Timeout = 30 * time.Second
	}
	if cfg.Store.Dir == "" {
		cfg.Store.Dir = "./data"
	}
	if cfg.Health.Path == "" {
		cfg.Health.Path = "/healthz"
	}
	if cfg.Health.ReadinessPath == "" {
		cfg.Health.ReadinessPath = "/readyz"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SITEWARDEN_TOKEN_SECRET"); v != "" {
		cfg.Auth.TokenSecret = v
	}
	if v := os.Getenv("SITEWARDEN_CHAIN_GATEWAY"); v != "" {
		cfg.Chain.GatewayURL = v
	}
	if v := os.Getenv("SITEWARDEN_CLASSIFIER_URL"); v != "" {
		cfg.Classifier.URL = v
	}
}

func validateConfig(cfg *Config) error {
	if strings.TrimSpace(cfg.Auth.TokenSecret) == "" {
		return fmt.Errorf("auth.token_secret is required (or set SITEWARDEN_TOKEN_SECRET)")
	}
	if strings.TrimSpace(cfg.Chain.GatewayURL) == "" {
		return fmt.Errorf("chain.gateway_url is required")
	}
	if strings.TrimSpace(cfg.Chain.ReportContract) == "" {
		return fmt.Errorf("chain.report_contract is required")
	}
	if strings.TrimSpace(cfg.Chain.RewardsContract) == "" {
		return fmt.Errorf("chain.rewards_contract is required")
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", cfg.Logging.Format)
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", cfg.Logging.Level)
	}
	return nil
}
