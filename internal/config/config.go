package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	DBDriver    string
	DBDSN       string
	AutoMigrate bool

	// HardwareURL is the base URL of the pump controller service.
	HardwareURL     string
	HardwareTimeout time.Duration

	// BillingInterval is seconds or a cron expression; the DB setting
	// "billing_interval" overrides it at runtime.
	BillingInterval string

	AuthEnabled bool
}

// FromEnv builds a Config from environment variables, with sane defaults.
func FromEnv() Config {
	cfg := Config{
		Port:            getenv("PORT", "8000"),
		DBDriver:        getenv("WATEROPS_DB_DRIVER", "sqlite"),
		DBDSN:           getenv("WATEROPS_DB_DSN", "waterops.db"),
		HardwareURL:     getenv("WATEROPS_HARDWARE_URL", "http://localhost:5000"),
		HardwareTimeout: 30 * time.Second,
		BillingInterval: getenv("WATEROPS_BILLING_INTERVAL", "7200"),
		AuthEnabled:     boolenv("WATEROPS_AUTH_ENABLED", true),
	}
	cfg.AutoMigrate = boolenv("WATEROPS_AUTO_MIGRATE", false)
	if raw := os.Getenv("WATEROPS_HARDWARE_TIMEOUT_SECONDS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			cfg.HardwareTimeout = time.Duration(v) * time.Second
		}
	}
	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func boolenv(key string, def bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}
