package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), cfg.ChainID)
	assert.Equal(t, "ETH", cfg.AssetSymbol)
	assert.Equal(t, time.Hour, cfg.Step)
	assert.Equal(t, 5*time.Minute, cfg.AlignOffset)
	assert.Equal(t, 900*time.Millisecond, cfg.IndexerInterval)
	assert.True(t, cfg.MinDeposit.Equal(decimal.RequireFromString("0.001")))
	assert.Equal(t, "0 5 * * * *", cfg.Schedule)
	assert.GreaterOrEqual(t, cfg.LockTTL, cfg.RunTimeout)
	assert.True(t, cfg.Now.IsZero())
}

func TestLoadEnvAndFlags(t *testing.T) {
	t.Setenv("RATESYNC_SUBGRAPH_URL", "https://indexer.example/graphql")
	t.Setenv("RATESYNC_TOKENS", "reETH, rsETH,,")
	t.Setenv("RATESYNC_STEP", "2h")
	t.Setenv("RATESYNC_NOW", "2024-03-01T10:00:00Z")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("rpc", "", "")
	flags.Uint64("chain-id", 1, "")
	require.NoError(t, flags.Parse([]string{"--rpc", "http://node:8545", "--chain-id", "17000"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)

	assert.Equal(t, "http://node:8545", cfg.RPCURL)
	assert.Equal(t, uint64(17000), cfg.ChainID)
	assert.Equal(t, "https://indexer.example/graphql", cfg.SubgraphURL)
	assert.Equal(t, []string{"reETH", "rsETH"}, cfg.Tokens)
	assert.Equal(t, 2*time.Hour, cfg.Step)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), cfg.Now)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ratesync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pg-dsn: postgres://u:p@db/rates\ntokens:\n  - reETH\n  - ezETH\nmin-deposit: \"0.5\"\n"), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db/rates", cfg.PGDSN)
	assert.Equal(t, []string{"reETH", "ezETH"}, cfg.Tokens)
	assert.True(t, cfg.MinDeposit.Equal(decimal.RequireFromString("0.5")))
}

func TestLoadRejectsBadMinDeposit(t *testing.T) {
	t.Setenv("RATESYNC_MIN_DEPOSIT", "dust")
	_, err := Load("", nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())

	cfg.RPCURL = "http://node:8545"
	cfg.SubgraphURL = "https://indexer.example/graphql"
	cfg.PGDSN = "postgres://localhost/rates"
	assert.NoError(t, cfg.Validate())

	cfg.AlignOffset = 2 * time.Hour
	assert.Error(t, cfg.Validate())
}

func TestValidateStepAndLockTTL(t *testing.T) {
	valid := func() Config {
		cfg, err := Load("", nil)
		require.NoError(t, err)
		cfg.RPCURL = "http://node:8545"
		cfg.SubgraphURL = "https://indexer.example/graphql"
		cfg.PGDSN = "postgres://localhost/rates"
		return cfg
	}

	for _, step := range []time.Duration{30 * time.Minute, 90 * time.Minute, -time.Hour} {
		cfg := valid()
		cfg.Step = step
		assert.Error(t, cfg.Validate(), "step=%s", step)
	}

	cfg := valid()
	cfg.Step = 3 * time.Hour
	assert.NoError(t, cfg.Validate())

	cfg = valid()
	cfg.LockTTL = 30 * time.Minute
	cfg.RunTimeout = 50 * time.Minute
	assert.Error(t, cfg.Validate())
}

func TestLoadIngest(t *testing.T) {
	t.Setenv("RATESYNC_ADDRESS", "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa,0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	cfg, err := LoadIngest("", nil)
	require.NoError(t, err)

	assert.Len(t, cfg.Addresses, 2)
	assert.Equal(t, uint64(2000), cfg.BatchSize)
	assert.Equal(t, 5, cfg.MaxRetries)
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("1700000000")
	require.NoError(t, err)
	assert.Equal(t, uint64(1700000000), ts)

	ts, err = ParseTimestamp("2023-11-14T22:13:20Z")
	require.NoError(t, err)
	assert.Equal(t, uint64(1700000000), ts)

	ts, err = ParseTimestamp("")
	require.NoError(t, err)
	assert.Zero(t, ts)

	_, err = ParseTimestamp("yesterday")
	assert.Error(t, err)
}
