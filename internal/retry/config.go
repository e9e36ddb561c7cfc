package retry

import (
	"os"
	"strconv"
	"time"
)

// Config holds retry configuration for transport calls
type Config struct {
	Enabled      bool          // Enable/disable retry mechanism
	MaxRetries   int           // Maximum number of retry attempts
	InitialDelay time.Duration // Initial delay before first retry
	MaxDelay     time.Duration // Maximum delay between retries
}

// DefaultConfig keeps the retry window short; callers waiting on receipts
// have their own polling budget
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		MaxRetries:   3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
	}
}

// LoadConfig loads retry configuration from environment variables
func LoadConfig() Config {
	return LoadConfigFrom(DefaultConfig())
}

// LoadConfigFrom overrides base with the RETRY_* variables that are set
func LoadConfigFrom(base Config) Config {
	return Config{
		Enabled:      getEnvAsBool("RETRY_ENABLED", base.Enabled),
		MaxRetries:   getEnvAsInt("RETRY_MAX_RETRIES", base.MaxRetries),
		InitialDelay: time.Duration(getEnvAsInt("RETRY_INITIAL_DELAY_MS", int(base.InitialDelay/time.Millisecond))) * time.Millisecond,
		MaxDelay:     time.Duration(getEnvAsInt("RETRY_MAX_DELAY_MS", int(base.MaxDelay/time.Millisecond))) * time.Millisecond,
	}
}

// Helper: get bool from env
func getEnvAsBool(key string, defaultVal bool) bool {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

// Helper: get int from env
func getEnvAsInt(key string, defaultVal int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}
