package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 60*time.Second, cfg.MaxWait)
	assert.Equal(t, 5, cfg.MaxNetworkRetries)
	assert.True(t, cfg.Retry.Enabled)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RPC_URL", "http://node:8545")
	t.Setenv("CHAIN_ID", "1337")
	t.Setenv("GAS_LIMIT", "300000")
	t.Setenv("GAS_PRICE_WEI", "1000000000")
	t.Setenv("POLL_INTERVAL_MS", "50")
	t.Setenv("MAX_WAIT_SEC", "3")
	t.Setenv("MAX_NETWORK_RETRIES", "2")
	t.Setenv("RPC_RATE_LIMIT", "12.5")
	t.Setenv("RETRY_MAX_RETRIES", "7")
	t.Setenv("SCENARIO_PARALLELISM", "8")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://node:8545", cfg.RPCURL)
	assert.Equal(t, uint64(1337), cfg.ChainID)
	assert.Equal(t, uint64(300000), cfg.GasLimit)
	assert.Equal(t, 50*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 3*time.Second, cfg.MaxWait)
	assert.Equal(t, 2, cfg.MaxNetworkRetries)
	assert.Equal(t, 12.5, cfg.RPCRateLimit)
	assert.Equal(t, 7, cfg.Retry.MaxRetries)
	assert.Equal(t, 8, cfg.ScenarioParallelism)
	assert.Equal(t, "debug", cfg.LogLevel)

	price, err := cfg.GasPrice()
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1_000_000_000), price)
}

func TestMalformedEnvKeepsDefault(t *testing.T) {
	t.Setenv("MAX_NETWORK_RETRIES", "many")
	assert.Equal(t, 5, Load().MaxNetworkRetries)
}

func TestValidate(t *testing.T) {
	tests := map[string]func(*Config){
		"missing rpc url": func(c *Config) { c.RPCURL = "" },
		"two keys":        func(c *Config) { c.PrivateKey, c.KeystoreFile = "0x01", "key.json" },
		"zero poll":       func(c *Config) { c.PollInterval = 0 },
		"wait below poll": func(c *Config) { c.MaxWait = time.Millisecond },
		"bad gas price":   func(c *Config) { c.GasPriceWei = "1gwei" },
		"bad log level":   func(c *Config) { c.LogLevel = "verbose" },
		"no parallelism":  func(c *Config) { c.ScenarioParallelism = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFileLayersBelowEnv(t *testing.T) {
	file := filepath.Join(t.TempDir(), "contractkit.toml")
	require.NoError(t, os.WriteFile(file, []byte(`
RPCURL = "http://file:8545"
ChainID = 5
GasMarginPercent = 50
ArtifactsDir = "./artifacts"
`), 0o600))

	t.Setenv("CHAIN_ID", "1337")

	cfg, err := LoadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "http://file:8545", cfg.RPCURL)
	assert.Equal(t, uint64(1337), cfg.ChainID)
	assert.Equal(t, uint64(50), cfg.GasMarginPercent)
	assert.Equal(t, "./artifacts", cfg.ArtifactsDir)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	file := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(file, []byte("RpcEndpoint = \"x\"\n"), 0o600))

	_, err := LoadFile(file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.toml")
}
