package ratelimit

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EndpointConfig represents rate limiting configuration for one endpoint pattern.
type EndpointConfig struct {
	Pattern string        // Path pattern; "*" matches one segment, a trailing "/" matches any suffix
	Method  string        // HTTP method (GET, POST, etc.)
	Limit   int           // Maximum requests per window; 0 means unlimited
	Window  time.Duration // Time window
	Burst   int           // Burst capacity (defaults to Limit if 0)
}

// LoadConfig loads rate limiting configuration from environment variables.
func LoadConfig() *Config {
	enabled := getEnvBool("RATE_LIMIT_ENABLED", true)
	if !enabled {
		return &Config{
			Enabled: false,
		}
	}

	return &Config{
		Enabled:         enabled,
		DefaultLimit:    getEnvInt("RATE_LIMIT_DEFAULT_LIMIT", 1000),
		DefaultWindow:   getEnvDuration("RATE_LIMIT_DEFAULT_WINDOW", time.Minute),
		CleanupInterval: getEnvDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		Whitelist:       parseIPList(os.Getenv("RATE_LIMIT_WHITELIST")),
		Blacklist:       parseIPList(os.Getenv("RATE_LIMIT_BLACKLIST")),
		EndpointConfigs: DefaultEndpointConfigs(),
	}
}

// DefaultEndpointConfigs returns the default endpoint-specific configurations.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		// Tier 0: health and long-lived event streams (unlimited)
		{Pattern: "/health", Method: "GET", Limit: 0},
		{Pattern: "/sessions/*/events", Method: "GET", Limit: 0},
		{Pattern: "/sessions/*/ws", Method: "GET", Limit: 0},

		// Tier 1: calls that reach the ingestion webhook or the database
		{Pattern: "/sessions/*/ingest", Method: "POST", Limit: 10, Window: time.Hour, Burst: 3},
		{Pattern: "/sessions/*/publish", Method: "POST", Limit: 60, Window: time.Hour, Burst: 10},
		{Pattern: "/sessions/*/resume/*", Method: "POST", Limit: 60, Window: time.Hour, Burst: 10},

		// Tier 2: session creation and authentication
		{Pattern: "/sessions", Method: "POST", Limit: 100, Window: time.Minute, Burst: 20},
		{Pattern: "/sessions/*/auth", Method: "POST", Limit: 30, Window: time.Minute, Burst: 10},

		// Tier 3: everything else uses the default limit
	}
}

// getEnvInt gets an environment variable as an integer with a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as a boolean with a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration gets an environment variable as a duration with a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// parseIPList parses a comma-separated list of IP addresses into a set.
func parseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	for _, ip := range strings.Split(list, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			result[ip] = true
		}
	}
	return result
}
