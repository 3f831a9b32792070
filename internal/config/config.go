package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the realtime gateway.
type Config struct {
	AppName              string
	AppEnv               string
	AppPort              string
	DatabaseURL          string
	RedisURL             string
	NATSURL              string
	ChannelBase          string
	JWTSecret            string
	PlacementTimeout     time.Duration
	DuplicateWindow      time.Duration
	TypingClearInterval  time.Duration
	OrderRateLimitPerMin int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("DINEHUB")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "DineHub Realtime Gateway")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("channel.base", "dinehub")
	v.SetDefault("placement.timeout", "10s")
	v.SetDefault("duplicate.window", "120s")
	v.SetDefault("typing.clear_interval", "4s")
	v.SetDefault("order.rate_limit_per_min", 20)

	placementTimeout, err := time.ParseDuration(v.GetString("placement.timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid placement timeout: %w", err)
	}

	duplicateWindow, err := time.ParseDuration(v.GetString("duplicate.window"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid duplicate window: %w", err)
	}

	typingClear, err := time.ParseDuration(v.GetString("typing.clear_interval"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid typing clear interval: %w", err)
	}

	cfg := Config{
		AppName:              v.GetString("app.name"),
		AppEnv:               v.GetString("app.env"),
		AppPort:              v.GetString("app.port"),
		DatabaseURL:          v.GetString("database.url"),
		RedisURL:             v.GetString("redis.url"),
		NATSURL:              v.GetString("nats.url"),
		ChannelBase:          v.GetString("channel.base"),
		JWTSecret:            v.GetString("jwt.secret"),
		PlacementTimeout:     placementTimeout,
		DuplicateWindow:      duplicateWindow,
		TypingClearInterval:  typingClear,
		OrderRateLimitPerMin: v.GetInt("order.rate_limit_per_min"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.OrderRateLimitPerMin <= 0 {
		cfg.OrderRateLimitPerMin = 20
	}

	return cfg, nil
}
