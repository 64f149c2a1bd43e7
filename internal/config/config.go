package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port               string   `mapstructure:"PORT"`
	Env                string   `mapstructure:"ENV"`
	DatabaseURL        string   `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32    `mapstructure:"DB_MIN_CONNS"`
	TerminologyBaseURL string   `mapstructure:"TERMINOLOGY_BASE_URL"`
	CORSOrigins        []string `mapstructure:"CORS_ORIGINS"`
	WorkerCount        int      `mapstructure:"WORKER_COUNT"`
	MaxScanDepth       int      `mapstructure:"MAX_SCAN_DEPTH"`
	UnsupportedPolicy  string   `mapstructure:"UNSUPPORTED_POLICY"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("WORKER_COUNT", 4)
	v.SetDefault("MAX_SCAN_DEPTH", 64)
	v.SetDefault("UNSUPPORTED_POLICY", "silent")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("TERMINOLOGY_BASE_URL")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("WORKER_COUNT")
	v.BindEnv("MAX_SCAN_DEPTH")
	v.BindEnv("UNSUPPORTED_POLICY")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	if cfg.MaxScanDepth < 1 {
		return nil, fmt.Errorf("MAX_SCAN_DEPTH must be positive")
	}

	switch cfg.UnsupportedPolicy {
	case "silent", "report":
	default:
		return nil, fmt.Errorf("invalid UNSUPPORTED_POLICY %q: expected silent or report", cfg.UnsupportedPolicy)
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}
