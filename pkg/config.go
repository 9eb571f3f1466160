package pkg

import (
	"net"
	"os"
	"strconv"
)

const envPrefix = "PRESENCE_"

// Config holds the listen addresses for the presence and metrics servers.
type Config struct {
	Host        string
	Port        int
	MetricsPort int
}

func defaultConfig() Config {
	return Config{
		Host:        "0.0.0.0",
		Port:        3000,
		MetricsPort: 3001,
	}
}

// NewConfigFromEnv builds a Config from the environment. PRESENCE_-prefixed
// variables take precedence over bare names; unset or invalid values fall
// back to defaults.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if host := lookupEnv("HOST"); host != "" {
		cfg.Host = host
	}
	if port := lookupEnv("PORT"); port != "" {
		cfg.Port = parsePort(port, cfg.Port)
	}
	if port := lookupEnv("METRICS_PORT"); port != "" {
		cfg.MetricsPort = parsePort(port, cfg.MetricsPort)
	}

	return &cfg
}

func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) MetricsAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.MetricsPort))
}

func lookupEnv(key string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return os.Getenv(key)
}

func parsePort(value string, defaultValue int) int {
	if port, err := strconv.Atoi(value); err == nil && port > 0 && port < 65536 {
		return port
	}
	return defaultValue
}
