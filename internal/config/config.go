package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every environment-variable-driven setting this adapter
// reads at startup.
type Config struct {
	ListenAddr        string
	RedisURL          string
	ScanLimit         int
	RateLimit         int
	RateWindow        time.Duration
	AllowScan         bool
	LogLevel          string
	MetricsListenAddr string
}

// Load reads Config from the environment, applying the same fallback
// defaults described in the adapter's operator documentation.
func Load() (*Config, error) {
	rateWindowSeconds, err := strconv.Atoi(getEnv("RATE_WINDOW_SECONDS", "60"))
	if err != nil {
		return nil, fmt.Errorf("parse RATE_WINDOW_SECONDS: %w", err)
	}

	scanLimit, err := strconv.Atoi(getEnv("SCAN_LIMIT", "100"))
	if err != nil {
		return nil, fmt.Errorf("parse SCAN_LIMIT: %w", err)
	}

	rateLimit, err := strconv.Atoi(getEnv("RATE_LIMIT", "100"))
	if err != nil {
		return nil, fmt.Errorf("parse RATE_LIMIT: %w", err)
	}

	allowScan, err := strconv.ParseBool(getEnv("ALLOW_SCAN", "true"))
	if err != nil {
		return nil, fmt.Errorf("parse ALLOW_SCAN: %w", err)
	}

	cfg := &Config{
		ListenAddr:        ":" + getEnv("LISTEN_PORT", "3306"),
		RedisURL:          getEnv("REDIS_URL", "redis://127.0.0.1:6379"),
		ScanLimit:         scanLimit,
		RateLimit:         rateLimit,
		RateWindow:        time.Duration(rateWindowSeconds) * time.Second,
		AllowScan:         allowScan,
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		MetricsListenAddr: getEnv("METRICS_LISTEN_ADDR", ":9090"),
	}

	return cfg, cfg.Validate()
}

// Validate rejects settings that cannot possibly be correct, independent
// of anything the adapter connects to.
func (c *Config) Validate() error {
	if c.ScanLimit < 0 {
		return fmt.Errorf("SCAN_LIMIT must not be negative, got %d", c.ScanLimit)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("RATE_LIMIT must not be negative, got %d", c.RateLimit)
	}
	if c.RateWindow < 0 {
		return fmt.Errorf("RATE_WINDOW_SECONDS must not be negative, got %s", c.RateWindow)
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL must not be empty")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
