// Package config loads service configuration from YAML with environment
// overrides for secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port        string `yaml:"port"`
	LogLevel    string `yaml:"logLevel"`
	DatabaseURL string `yaml:"databaseURL"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	// llm provider: "openai" or "compat" (any OpenAI-compatible endpoint)
	LLMProvider string `yaml:"llmProvider"`
	LLMBaseURL  string `yaml:"llmBaseURL"`
	LLMAPIKey   string `yaml:"llmAPIKey"`
	LLMModel    string `yaml:"llmModel"`

	AuthJWKSURL string `yaml:"authJWKSURL"`
	JWTIssuer   string `yaml:"jwtIssuer"`
	JWTAudience string `yaml:"jwtAudience"`

	RenderServiceURL string `yaml:"renderServiceURL"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	MailProviderURL string `yaml:"mailProviderURL"`
	MailFrom        string `yaml:"mailFrom"`

	BillingURL      string `yaml:"billingURL"`
	BillingAPIKey   string `yaml:"billingAPIKey"`
	BillingPriceKey string `yaml:"billingPriceKey"`

	AppBaseURL string `yaml:"appBaseURL"`

	ChatRateLimit         int `yaml:"chatRateLimit"`
	ChatRateWindowSeconds int `yaml:"chatRateWindowSeconds"`
	LeaseTTLSeconds       int `yaml:"leaseTTLSeconds"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLMAPIKey = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("BILLING_API_KEY"); v != "" {
		cfg.BillingAPIKey = v
	}
	if v := os.Getenv("CHAT_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ChatRateLimit = n
		}
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
	}
	if cfg.LLMAPIKey == "" && cfg.LLMProvider != "compat" {
		return errors.New("config: llmAPIKey is required (set in config.yaml or LLM_API_KEY)")
	}
	if cfg.LLMModel == "" {
		return errors.New("config: llmModel is required (set in config.yaml)")
	}
	if cfg.AuthJWKSURL == "" {
		return errors.New("config: authJWKSURL is required (set in config.yaml)")
	}
	return nil
}
