// Package config loads settings from config.env in the working directory,
// overridden by environment variables of the same name.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DSN               string        `mapstructure:"DSN"`
	JWTSecret         string        `mapstructure:"JWT_SECRET"`
	MidtransServerKey string        `mapstructure:"MIDTRANS_SERVER_KEY"`
	MidtransEnv       string        `mapstructure:"MIDTRANS_ENV"`
	GatewayTimeout    time.Duration `mapstructure:"GATEWAY_TIMEOUT"`
	HTTPAddr          string        `mapstructure:"HTTP_ADDR"`
	RedisURL          string        `mapstructure:"REDIS_URL"`
	RedisChannel      string        `mapstructure:"REDIS_CHANNEL"`
	CORSOrigins       []string      `mapstructure:"CORS_ALLOWED_ORIGINS"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	AutoMigrate       bool          `mapstructure:"AUTO_MIGRATE"`
}

var defaults = map[string]any{
	"DSN":                  "",
	"JWT_SECRET":           "",
	"MIDTRANS_SERVER_KEY":  "",
	"MIDTRANS_ENV":         "sandbox",
	"GATEWAY_TIMEOUT":      "10s",
	"HTTP_ADDR":            ":8080",
	"REDIS_URL":            "",
	"REDIS_CHANNEL":        "donation-events",
	"CORS_ALLOWED_ORIGINS": "*",
	"LOG_LEVEL":            "info",
	"AUTO_MIGRATE":         true,
}

// Load reads config.env from path, if present, then the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// AutomaticEnv only sees keys viper already knows about.
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	return cfg, nil
}

// Validate checks the settings the API server cannot start without.
func (c Config) Validate() error {
	var missing []string
	if c.DSN == "" {
		missing = append(missing, "DSN")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.MidtransServerKey == "" {
		missing = append(missing, "MIDTRANS_SERVER_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	if c.GatewayTimeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT must be positive, got %s", c.GatewayTimeout)
	}
	return nil
}

// splitList accepts both a comma separated env value and a real list.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
