package config

import (
	"bufio"
	"fmt"
	"math/big"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/naoina/toml"

	"contractkit/internal/retry"
)

type Config struct {
	// JSON-RPC endpoint of the node
	RPCURL string

	// Expected chain id, 0 means ask the node
	ChainID uint64

	// Signing key: a hex private key or a keystore file
	PrivateKey         string
	KeystoreFile       string
	KeystorePassphrase string

	// Gas policy. GasLimit 0 means estimate and add GasMarginPercent;
	// an empty GasPriceWei means eth_gasPrice.
	GasLimit         uint64
	GasPriceWei      string
	GasMarginPercent uint64

	// Receipt polling
	PollInterval      time.Duration
	MaxWait           time.Duration
	MaxNetworkRetries int

	// Transport
	RPCRateLimit float64 // requests per second, 0 disables
	RPCTimeout   time.Duration
	Retry        retry.Config

	// Persistence and API. An empty DatabaseURL keeps records in memory.
	DatabaseURL string
	APIPort     string

	// Extra artifacts loaded next to the built-in contracts
	ArtifactsDir string

	// Logging
	LogLevel string
	LogFile  string

	ScenarioParallelism int
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		RPCURL:              "http://127.0.0.1:8545",
		GasMarginPercent:    20,
		PollInterval:        500 * time.Millisecond,
		MaxWait:             60 * time.Second,
		MaxNetworkRetries:   5,
		RPCTimeout:          30 * time.Second,
		Retry:               retry.DefaultConfig(),
		APIPort:             "8080",
		LogLevel:            "info",
		ScenarioParallelism: 4,
	}
}

// Load returns the defaults overridden by environment variables
func Load() *Config {
	return FromEnv(Default())
}

// LoadFile reads a TOML file over the defaults, then applies environment
// variables on top
func LoadFile(file string) (*Config, error) {
	cfg := Default()
	if err := decodeFile(file, cfg); err != nil {
		return nil, err
	}
	return FromEnv(cfg), nil
}

// FromEnv overrides fields of cfg with the environment variables that are set
func FromEnv(cfg *Config) *Config {
	cfg.RPCURL = getEnv("RPC_URL", cfg.RPCURL)
	cfg.ChainID = getEnvAsUint("CHAIN_ID", cfg.ChainID)
	cfg.PrivateKey = getEnv("PRIVATE_KEY", cfg.PrivateKey)
	cfg.KeystoreFile = getEnv("KEYSTORE_FILE", cfg.KeystoreFile)
	cfg.KeystorePassphrase = getEnv("KEYSTORE_PASSPHRASE", cfg.KeystorePassphrase)
	cfg.GasLimit = getEnvAsUint("GAS_LIMIT", cfg.GasLimit)
	cfg.GasPriceWei = getEnv("GAS_PRICE_WEI", cfg.GasPriceWei)
	cfg.GasMarginPercent = getEnvAsUint("GAS_MARGIN_PERCENT", cfg.GasMarginPercent)
	cfg.PollInterval = getEnvAsDuration("POLL_INTERVAL_MS", time.Millisecond, cfg.PollInterval)
	cfg.MaxWait = getEnvAsDuration("MAX_WAIT_SEC", time.Second, cfg.MaxWait)
	cfg.MaxNetworkRetries = getEnvAsInt("MAX_NETWORK_RETRIES", cfg.MaxNetworkRetries)
	cfg.RPCRateLimit = getEnvAsFloat("RPC_RATE_LIMIT", cfg.RPCRateLimit)
	cfg.RPCTimeout = getEnvAsDuration("RPC_TIMEOUT_SEC", time.Second, cfg.RPCTimeout)
	cfg.Retry = retry.LoadConfigFrom(cfg.Retry)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.APIPort = getEnv("API_PORT", cfg.APIPort)
	cfg.ArtifactsDir = getEnv("ARTIFACTS_DIR", cfg.ArtifactsDir)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)
	cfg.ScenarioParallelism = getEnvAsInt("SCENARIO_PARALLELISM", cfg.ScenarioParallelism)
	return cfg
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}
	if c.PrivateKey != "" && c.KeystoreFile != "" {
		return fmt.Errorf("PRIVATE_KEY and KEYSTORE_FILE are mutually exclusive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL_MS must be positive")
	}
	if c.MaxWait < c.PollInterval {
		return fmt.Errorf("MAX_WAIT_SEC must not be shorter than POLL_INTERVAL_MS")
	}
	if c.MaxNetworkRetries < 0 {
		return fmt.Errorf("MAX_NETWORK_RETRIES must not be negative")
	}
	if c.RPCRateLimit < 0 {
		return fmt.Errorf("RPC_RATE_LIMIT must not be negative")
	}
	if c.ScenarioParallelism < 1 {
		return fmt.Errorf("SCENARIO_PARALLELISM must be at least 1")
	}
	if _, err := c.GasPrice(); err != nil {
		return err
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}
	return nil
}

// GasPrice parses GasPriceWei. Nil means ask the node.
func (c *Config) GasPrice() (*big.Int, error) {
	if c.GasPriceWei == "" {
		return nil, nil
	}
	price, ok := new(big.Int).SetString(c.GasPriceWei, 10)
	if !ok || price.Sign() < 0 {
		return nil, fmt.Errorf("GAS_PRICE_WEI %q is not a non-negative integer", c.GasPriceWei)
	}
	return price, nil
}

// File keys are the Go field names, as in geth's config files.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

func decodeFile(file string, cfg *Config) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if err := tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg); err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}
	return nil
}

// Helper: get string from env
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// Helper: get int from env
func getEnvAsInt(key string, defaultVal int) int {
	val, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return val
}

// Helper: get uint64 from env
func getEnvAsUint(key string, defaultVal uint64) uint64 {
	val, err := strconv.ParseUint(os.Getenv(key), 10, 64)
	if err != nil {
		return defaultVal
	}
	return val
}

// Helper: get float from env
func getEnvAsFloat(key string, defaultVal float64) float64 {
	val, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultVal
	}
	return val
}

// Helper: get a duration counted in unit from env
func getEnvAsDuration(key string, unit time.Duration, defaultVal time.Duration) time.Duration {
	val, err := strconv.ParseInt(os.Getenv(key), 10, 64)
	if err != nil {
		return defaultVal
	}
	return time.Duration(val) * unit
}
